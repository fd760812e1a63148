package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPythonBlock(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "single block with prose",
			in:   "Here is code:\n```python\nprint(1+1)\n```\nDone.",
			want: "print(1+1)",
		},
		{
			name: "no fence",
			in:   "The dataset has three rows.",
			want: "",
		},
		{
			name: "only first of two blocks",
			in:   "```python\na = 1\n```\nand\n```python\nb = 2\n```",
			want: "a = 1",
		},
		{
			name: "multi-line body kept byte for byte",
			in:   "x\n```python\nimport pandas as pd\n\ndf = pd.read_csv('./sales.csv')\n  df.head()\t\n```",
			want: "import pandas as pd\n\ndf = pd.read_csv('./sales.csv')\n  df.head()\t",
		},
		{
			name: "other language fence ignored",
			in:   "```sql\nSELECT 1\n```\n```python\nprint('py')\n```",
			want: "print('py')",
		},
		{
			name: "unterminated fence",
			in:   "```python\nprint(1)\n",
			want: "",
		},
		{
			name: "empty text",
			in:   "",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PythonBlock(tt.in))
		})
	}
}

func TestPythonBlockDeterministic(t *testing.T) {
	in := "prefix\n```python\nimport pandas as pd\nprint(len(pd.read_csv('./d.csv')))\n```\nsuffix"
	first := PythonBlock(in)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, PythonBlock(in))
	}
	// idempotent on its own fenced output
	assert.Equal(t, first, PythonBlock("```python\n"+first+"\n```"))
}

func TestPythonBlockIndependentOfProse(t *testing.T) {
	body := "df = pd.read_csv('./x.csv')\nprint(df.shape[0])"
	fenced := "```python\n" + body + "\n```"
	for _, wrap := range []struct{ before, after string }{
		{"", ""},
		{"Sure! ", " Hope this helps."},
		{"Line one\nLine two\n", "\n\nTrailing ``` noise"},
	} {
		assert.Equal(t, body, PythonBlock(wrap.before+fenced+wrap.after))
	}
}

func TestHasPythonBlock(t *testing.T) {
	assert.True(t, HasPythonBlock("```python\nx\n```"))
	assert.False(t, HasPythonBlock("```\nx\n```"))
}
