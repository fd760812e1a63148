package models

import (
	"encoding/json"
	"time"
)

// ArtifactKind tags what an execution output is and how to render it.
type ArtifactKind string

const (
	ArtifactTable ArtifactKind = "table" // render as a table
	ArtifactChart ArtifactKind = "chart" // interactive Plotly figure
	ArtifactImage ArtifactKind = "image" // static PNG, e.g. a matplotlib figure
	ArtifactText  ArtifactKind = "text"  // any other value
)

// Table is a rendered DataFrame or Series.
type Table struct {
	Columns []string `json:"columns"`
	Index   []string `json:"index,omitempty"`
	Rows    [][]any  `json:"rows"`
}

// Artifact is one output of executed code. Exactly one payload field is set, matching Kind.
type Artifact struct {
	Kind  ArtifactKind    `json:"kind"`
	Table *Table          `json:"table,omitempty"`
	Chart json.RawMessage `json:"chart,omitempty"`
	Image string          `json:"image,omitempty"` // base64 PNG
	Text  string          `json:"text,omitempty"`
}

// ExecutionMode is how extracted code is handled by a deployment.
type ExecutionMode string

const (
	ModeSandbox ExecutionMode = "sandbox"
	ModeDisplay ExecutionMode = "display"
)

// ExecutionError is an error raised while running generated code.
type ExecutionError struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Traceback string `json:"traceback,omitempty"`
}

func (e *ExecutionError) Error() string {
	if e.Name == "" {
		return e.Value
	}
	return e.Name + ": " + e.Value
}

// AnalyzeRequest is the payload for POST /v1/sessions/{id}/analyze
type AnalyzeRequest struct {
	Question string `json:"question"`
}

// AnalysisResult is everything rendered after one analyze action.
type AnalysisResult struct {
	Question       string          `json:"question"`
	Response       string          `json:"response"`
	Code           string          `json:"code,omitempty"`
	Mode           ExecutionMode   `json:"mode"`
	Artifacts      []Artifact      `json:"artifacts,omitempty"`
	Stdout         string          `json:"stdout,omitempty"`
	Warnings       []string        `json:"warnings,omitempty"`
	ExecutionError *ExecutionError `json:"executionError,omitempty"`
}

// ModelOption is one entry of the model dropdown.
type ModelOption struct {
	Label    string `json:"label" yaml:"label"`
	ID       string `json:"id" yaml:"id"`
	Provider string `json:"provider" yaml:"provider"`
}

// ErrorResponse is the JSON body for failed API calls.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// Progress stages published while an analysis runs.
const (
	StageLLM     = "llm"
	StageExecute = "execute"
	StageDone    = "done"
	StageError   = "error"
)

// ProgressEvent is one status update streamed to the session's listeners.
type ProgressEvent struct {
	SessionID string    `json:"sessionId"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}
