package sandbox

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/shehryarbajwa/vizai/pkg/models"
)

// recordPrefix marks runner records on stdout. Anything else is plain output.
const recordPrefix = "@@vizai "

type record struct {
	Type     string                 `json:"type"` // stdout|artifact|error
	Text     string                 `json:"text,omitempty"`
	Artifact *models.Artifact       `json:"artifact,omitempty"`
	Error    *models.ExecutionError `json:"error,omitempty"`
}

// parseOutput splits the runner's stdout into artifacts, printed text and an error.
func parseOutput(stdout []byte, exec *Execution) error {
	var text strings.Builder
	sc := bufio.NewScanner(bytes.NewReader(stdout))
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)

	for sc.Scan() {
		line := sc.Text()
		payload, ok := strings.CutPrefix(line, recordPrefix)
		if !ok {
			text.WriteString(line)
			text.WriteByte('\n')
			continue
		}
		var rec record
		if err := sonic.UnmarshalString(payload, &rec); err != nil {
			return fmt.Errorf("decode runner record: %w", err)
		}
		switch rec.Type {
		case "stdout":
			text.WriteString(rec.Text)
		case "artifact":
			if rec.Artifact == nil {
				return fmt.Errorf("artifact record without payload")
			}
			if err := validateArtifact(*rec.Artifact); err != nil {
				return err
			}
			exec.Artifacts = append(exec.Artifacts, *rec.Artifact)
		case "error":
			if rec.Error != nil {
				exec.Error = rec.Error
			}
		default:
			return fmt.Errorf("unknown runner record type %q", rec.Type)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read runner output: %w", err)
	}
	exec.Stdout = text.String()
	return nil
}

func validateArtifact(a models.Artifact) error {
	ok := false
	switch a.Kind {
	case models.ArtifactTable:
		ok = a.Table != nil
	case models.ArtifactChart:
		ok = len(a.Chart) > 0
	case models.ArtifactImage:
		ok = a.Image != ""
	case models.ArtifactText:
		ok = true
	}
	if !ok {
		return fmt.Errorf("malformed %q artifact", a.Kind)
	}
	return nil
}
