// Package analyze runs one question against one dataset: ask the model,
// extract its code and hand the code to the configured executor.
package analyze

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/vizai/internal/extract"
	"github.com/shehryarbajwa/vizai/internal/llm"
	"github.com/shehryarbajwa/vizai/internal/logger"
	"github.com/shehryarbajwa/vizai/internal/sandbox"
	"github.com/shehryarbajwa/vizai/pkg/models"
)

// NoCodeWarning is shown when the reply has no python block.
const NoCodeWarning = "No Python code found in LLM response."

// Progress messages published per stage.
const (
	msgLLM     = "Getting response from LLM..."
	msgExecute = "Executing code in sandbox..."
	msgDone    = "Done"
)

var (
	ErrNoDataset     = errors.New("upload a CSV dataset first")
	ErrEmptyQuestion = errors.New("question is empty")
)

// CredentialsError lists what must be entered before an analysis can run.
type CredentialsError struct {
	Missing []string
}

func (e *CredentialsError) Error() string {
	return "missing credentials: " + strings.Join(e.Missing, ", ")
}

// ProviderError is a failed model call. The session is left as it was.
type ProviderError struct {
	Auth bool
	Err  error
}

func (e *ProviderError) Error() string {
	return e.Err.Error()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Asker is the model side of an analysis.
type Asker interface {
	Ask(ctx context.Context, cfg models.SessionConfig, question, datasetPath string) (string, error)
	RequiresKey(modelID string) (bool, error)
}

// Reporter receives stage updates for a session.
type Reporter interface {
	Publish(sessionID, stage, message string)
}

type nopReporter struct{}

func (nopReporter) Publish(string, string, string) {}

// Request is one analyze action.
type Request struct {
	SessionID string
	Config    models.SessionConfig
	Dataset   *models.Dataset
	Question  string
}

// Service wires the model, the extractor and the executor together.
type Service struct {
	llm               Asker
	exec              sandbox.Executor
	requireSandboxKey bool
	progress          Reporter
	log               zerolog.Logger
}

// NewService creates the pipeline. progress may be nil.
func NewService(asker Asker, exec sandbox.Executor, requireSandboxKey bool, progress Reporter) *Service {
	if progress == nil {
		progress = nopReporter{}
	}
	return &Service{
		llm:               asker,
		exec:              exec,
		requireSandboxKey: requireSandboxKey,
		progress:          progress,
		log:               logger.With("analyze"),
	}
}

// Mode is the executor's mode.
func (s *Service) Mode() models.ExecutionMode {
	return s.exec.Mode()
}

// Validate checks credentials and the model without touching the network.
func (s *Service) Validate(cfg models.SessionConfig) error {
	needsKey, err := s.llm.RequiresKey(cfg.Model)
	if err != nil {
		return err
	}
	var missing []string
	if needsKey && strings.TrimSpace(cfg.LLMAPIKey) == "" {
		missing = append(missing, "LLM API key")
	}
	if s.exec.Mode() == models.ModeSandbox && s.requireSandboxKey && strings.TrimSpace(cfg.SandboxAPIKey) == "" {
		missing = append(missing, "sandbox API key")
	}
	if len(missing) > 0 {
		return &CredentialsError{Missing: missing}
	}
	return nil
}

// Check reports whether req could run: credentials, model, dataset and a
// non-blank question. It makes no network calls.
func (s *Service) Check(req Request) error {
	if err := s.Validate(req.Config); err != nil {
		return err
	}
	if req.Dataset == nil {
		return ErrNoDataset
	}
	if strings.TrimSpace(req.Question) == "" {
		return ErrEmptyQuestion
	}
	return nil
}

// Run executes the pipeline. Execution failures are reported in the result;
// only validation and model failures are returned as errors.
func (s *Service) Run(ctx context.Context, req Request) (*models.AnalysisResult, error) {
	if err := s.Check(req); err != nil {
		return nil, err
	}

	log := s.log.With().Str("session", req.SessionID).Logger()
	start := time.Now()

	s.progress.Publish(req.SessionID, models.StageLLM, msgLLM)
	reply, err := s.llm.Ask(ctx, req.Config, req.Question, req.Dataset.Path)
	if err != nil {
		s.progress.Publish(req.SessionID, models.StageError, err.Error())
		if llm.IsProviderError(err) {
			return nil, &ProviderError{Auth: llm.IsAuthError(err), Err: err}
		}
		return nil, err
	}

	result := &models.AnalysisResult{
		Question: req.Question,
		Response: reply,
		Mode:     s.exec.Mode(),
	}

	code := extract.PythonBlock(reply)
	if code == "" {
		log.Info().Msg("no python block in reply")
		result.Warnings = append(result.Warnings, NoCodeWarning)
		s.progress.Publish(req.SessionID, models.StageDone, msgDone)
		return result, nil
	}
	result.Code = code

	if result.Mode == models.ModeSandbox {
		s.progress.Publish(req.SessionID, models.StageExecute, msgExecute)
	}
	exec, err := s.exec.Execute(ctx, sandbox.Job{
		APIKey:  req.Config.SandboxAPIKey,
		Dataset: *req.Dataset,
		Code:    code,
	})
	switch {
	case err != nil && ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil:
		log.Warn().Err(err).Msg("sandbox call failed")
		result.ExecutionError = &models.ExecutionError{Name: "SandboxError", Value: err.Error()}
	case exec.Error != nil:
		// artifacts from a failed run are not trusted
		result.ExecutionError = exec.Error
		result.Stdout = exec.Stdout
	default:
		result.Artifacts = exec.Artifacts
		result.Stdout = exec.Stdout
	}

	if result.ExecutionError != nil {
		s.progress.Publish(req.SessionID, models.StageError, result.ExecutionError.Error())
	} else {
		s.progress.Publish(req.SessionID, models.StageDone, msgDone)
	}
	log.Info().
		Str("mode", string(result.Mode)).
		Int("artifacts", len(result.Artifacts)).
		Bool("execution_error", result.ExecutionError != nil).
		Dur("elapsed", time.Since(start)).
		Msg("analysis finished")
	return result, nil
}

// IsClientError reports errors caused by the request rather than a dependency.
func IsClientError(err error) bool {
	var ce *CredentialsError
	return errors.As(err, &ce) ||
		errors.Is(err, ErrNoDataset) ||
		errors.Is(err, ErrEmptyQuestion) ||
		errors.Is(err, llm.ErrUnknownModel)
}
