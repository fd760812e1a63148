package llm

import (
	"fmt"

	"github.com/cloudwego/eino/schema"
)

const systemPromptTemplate = `You're a Python data scientist. Analyze the dataset at '%[1]s' and answer user queries by generating Python code.
Write one runnable snippet in a single ` + "```python" + ` fenced block. Load the data with pandas from exactly '%[1]s'.
End the snippet with the value you want to show (a DataFrame, a number, or a figure).`

// SystemPrompt returns the instruction naming the dataset path.
func SystemPrompt(datasetPath string) string {
	return fmt.Sprintf(systemPromptTemplate, datasetPath)
}

// BuildMessages returns the two-turn exchange sent to the model: system then user.
func BuildMessages(question, datasetPath string) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(SystemPrompt(datasetPath)),
		schema.UserMessage(question),
	}
}
