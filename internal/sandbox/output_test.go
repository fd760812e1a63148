package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/vizai/pkg/models"
)

func TestParseOutput(t *testing.T) {
	out := "warning from a C extension\n" +
		`@@vizai {"type":"stdout","text":"total 30\n"}` + "\n" +
		`@@vizai {"type":"artifact","artifact":{"kind":"chart","chart":{"data":[{"type":"bar"}]}}}` + "\n" +
		`@@vizai {"type":"artifact","artifact":{"kind":"text","text":"30"}}` + "\n"

	var exec Execution
	require.NoError(t, parseOutput([]byte(out), &exec))
	assert.Equal(t, "warning from a C extension\ntotal 30\n", exec.Stdout)
	require.Len(t, exec.Artifacts, 2)
	assert.Equal(t, models.ArtifactChart, exec.Artifacts[0].Kind)
	assert.JSONEq(t, `{"data":[{"type":"bar"}]}`, string(exec.Artifacts[0].Chart))
	assert.Equal(t, "30", exec.Artifacts[1].Text)
	assert.Nil(t, exec.Error)
}

func TestParseOutputRejectsMalformed(t *testing.T) {
	tests := map[string]string{
		"bad json":      "@@vizai {not json\n",
		"unknown type":  `@@vizai {"type":"banner"}` + "\n",
		"empty table":   `@@vizai {"type":"artifact","artifact":{"kind":"table"}}` + "\n",
		"missing image": `@@vizai {"type":"artifact","artifact":{"kind":"image"}}` + "\n",
	}
	for name, out := range tests {
		t.Run(name, func(t *testing.T) {
			var exec Execution
			assert.Error(t, parseOutput([]byte(out), &exec))
		})
	}
}

func TestParseOutputEmpty(t *testing.T) {
	var exec Execution
	require.NoError(t, parseOutput(nil, &exec))
	assert.Empty(t, exec.Stdout)
	assert.Empty(t, exec.Artifacts)
}
