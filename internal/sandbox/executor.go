// Package sandbox runs generated code away from the server process.
package sandbox

import (
	"context"
	"errors"
	"time"

	"github.com/shehryarbajwa/vizai/pkg/models"
)

// ErrMissingKey is returned when a sandbox key is required but not supplied.
var ErrMissingKey = errors.New("sandbox API key is required")

// Job is one snippet to run against one uploaded dataset.
type Job struct {
	APIKey  string
	Dataset models.Dataset
	Code    string
}

// Execution is what came back from running a Job. Error is set when the
// code raised; it is not a Go error because the analysis still completes.
type Execution struct {
	Artifacts []models.Artifact
	Stdout    string
	Stderr    string
	Error     *models.ExecutionError
	ExitCode  int
	Duration  time.Duration
}

// Executor runs code for the configured execution mode.
type Executor interface {
	Mode() models.ExecutionMode
	Execute(ctx context.Context, job Job) (*Execution, error)
}

// DisplayExecutor never runs code. It backs the display-only deployment.
type DisplayExecutor struct{}

func NewDisplayExecutor() *DisplayExecutor {
	return &DisplayExecutor{}
}

func (DisplayExecutor) Mode() models.ExecutionMode { return models.ModeDisplay }

// Execute returns an empty Execution.
func (DisplayExecutor) Execute(context.Context, Job) (*Execution, error) {
	return &Execution{}, nil
}
