package sandbox

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/vizai/pkg/models"
)

// runLocal executes the embedded runner with a local interpreter.
func runLocal(t *testing.T, code string, files map[string]string) *Execution {
	t.Helper()
	python, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not available")
	}
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	runner := filepath.Join(dir, "runner.py")
	snippet := filepath.Join(dir, "snippet.py")
	require.NoError(t, os.WriteFile(runner, runnerSource, 0644))
	require.NoError(t, os.WriteFile(snippet, []byte(code), 0644))

	cmd := exec.Command(python, runner, snippet)
	cmd.Dir = dir
	out, _ := cmd.Output()

	res := &Execution{ExitCode: cmd.ProcessState.ExitCode()}
	require.NoError(t, parseOutput(out, res))
	return res
}

func TestRunnerScalarResult(t *testing.T) {
	res := runLocal(t, "rows = open('./d.csv').read().splitlines()[1:]\nprint('counting')\nlen(rows)", map[string]string{
		"d.csv": "a,b\n1,2\n3,4\n5,6\n",
	})
	assert.Equal(t, 0, res.ExitCode)
	assert.Nil(t, res.Error)
	assert.Equal(t, "counting\n", res.Stdout)
	require.Len(t, res.Artifacts, 1)
	assert.Equal(t, models.ArtifactText, res.Artifacts[0].Kind)
	assert.Equal(t, "3", res.Artifacts[0].Text)
}

func TestRunnerReportsException(t *testing.T) {
	res := runLocal(t, "x = {}\nx['Region']", nil)
	assert.Equal(t, 1, res.ExitCode)
	require.NotNil(t, res.Error)
	assert.Equal(t, "KeyError", res.Error.Name)
	assert.Contains(t, res.Error.Traceback, "<snippet>")
	assert.Empty(t, res.Artifacts)
}

func TestRunnerStatementOnly(t *testing.T) {
	res := runLocal(t, "total = 1 + 2", nil)
	assert.Nil(t, res.Error)
	assert.Empty(t, res.Artifacts)
}

func TestRunnerTabularResult(t *testing.T) {
	if err := exec.Command("python3", "-c", "import pandas").Run(); err != nil {
		t.Skip("pandas not available")
	}
	res := runLocal(t, "import pandas as pd\npd.read_csv('./d.csv')", map[string]string{
		"d.csv": "region,sales\nN,10\nS,20\nE,30\n",
	})
	require.Nil(t, res.Error)
	require.Len(t, res.Artifacts, 1)
	tbl := res.Artifacts[0].Table
	require.NotNil(t, tbl)
	assert.Equal(t, []string{"region", "sales"}, tbl.Columns)
	assert.Len(t, tbl.Rows, 3)
}

func TestRunnerStandaloneFigureResult(t *testing.T) {
	if err := exec.Command("python3", "-c", "import matplotlib").Run(); err != nil {
		t.Skip("matplotlib not available")
	}
	res := runLocal(t, "from matplotlib.figure import Figure\nfig = Figure()\nfig.subplots().plot([1, 2, 3])\nfig", nil)
	require.Nil(t, res.Error)
	require.Len(t, res.Artifacts, 1)
	assert.Equal(t, models.ArtifactImage, res.Artifacts[0].Kind)
	assert.NotEmpty(t, res.Artifacts[0].Image)
}

func TestRunnerPyplotFigureNotDuplicated(t *testing.T) {
	if err := exec.Command("python3", "-c", "import matplotlib").Run(); err != nil {
		t.Skip("matplotlib not available")
	}
	res := runLocal(t, "import matplotlib\nmatplotlib.use('Agg')\nimport matplotlib.pyplot as plt\nfig, ax = plt.subplots()\nax.plot([1, 2])\nax", nil)
	require.Nil(t, res.Error)
	require.Len(t, res.Artifacts, 1)
	assert.Equal(t, models.ArtifactImage, res.Artifacts[0].Kind)
}
