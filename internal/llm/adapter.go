// Package llm sends an analysis question to a chat model and returns its raw reply.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/vizai/internal/config"
	"github.com/shehryarbajwa/vizai/internal/logger"
	"github.com/shehryarbajwa/vizai/pkg/models"
)

// Supported providers.
const (
	ProviderTogether   = "together"
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderDeepSeek   = "deepseek"
	ProviderOllama     = "ollama"
)

// ChatModel is the part of an eino chat model the adapter needs.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// ModelOptions are the per-call settings handed to a Factory.
type ModelOptions struct {
	Model   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Factory builds a chat model for one request.
type Factory func(ctx context.Context, opts ModelOptions) (ChatModel, error)

type providerSpec struct {
	requiresKey bool
	factory     Factory
}

var providers = map[string]providerSpec{
	ProviderTogether:   {requiresKey: true, factory: newOpenAICompatible},
	ProviderOpenAI:     {requiresKey: true, factory: newOpenAICompatible},
	ProviderOpenRouter: {requiresKey: true, factory: newOpenAICompatible},
	ProviderDeepSeek:   {requiresKey: true, factory: newDeepSeek},
	ProviderOllama:     {requiresKey: false, factory: newOllama},
}

func newOpenAICompatible(ctx context.Context, o ModelOptions) (ChatModel, error) {
	return openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  o.APIKey,
		BaseURL: o.BaseURL,
		Model:   o.Model,
		Timeout: o.Timeout,
	})
}

func newDeepSeek(ctx context.Context, o ModelOptions) (ChatModel, error) {
	return deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
		APIKey:  o.APIKey,
		BaseURL: o.BaseURL,
		Model:   o.Model,
		Timeout: o.Timeout,
	})
}

func newOllama(ctx context.Context, o ModelOptions) (ChatModel, error) {
	return ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
		BaseURL: o.BaseURL,
		Model:   o.Model,
		Timeout: o.Timeout,
	})
}

// Adapter turns a question plus session credentials into one model reply.
// It holds no per-user state; credentials arrive with each call.
type Adapter struct {
	catalog   *Catalog
	baseURLs  map[string]string
	factories map[string]Factory
	timeout   time.Duration
	log       zerolog.Logger
}

// NewAdapter creates an adapter over the catalog using endpoints from cfg.
func NewAdapter(catalog *Catalog, cfg config.LLMConfig) *Adapter {
	a := &Adapter{
		catalog: catalog,
		baseURLs: map[string]string{
			ProviderTogether:   cfg.TogetherBaseURL,
			ProviderOpenAI:     cfg.OpenAIBaseURL,
			ProviderOpenRouter: cfg.OpenRouterURL,
			ProviderDeepSeek:   cfg.DeepSeekBaseURL,
			ProviderOllama:     cfg.OllamaHost,
		},
		factories: make(map[string]Factory, len(providers)),
		timeout:   cfg.Timeout,
		log:       logger.With("llm"),
	}
	for name, spec := range providers {
		a.factories[name] = spec.factory
	}
	return a
}

// SetFactory replaces how models for a provider are built.
func (a *Adapter) SetFactory(provider string, f Factory) {
	a.factories[provider] = f
}

// Catalog returns the models this adapter accepts.
func (a *Adapter) Catalog() *Catalog {
	return a.catalog
}

// Resolve returns the catalog entry for id, falling back to the default model when id is empty.
func (a *Adapter) Resolve(id string) (models.ModelOption, error) {
	if id == "" {
		return a.catalog.Default(), nil
	}
	opt, ok := a.catalog.Lookup(id)
	if !ok {
		return models.ModelOption{}, fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	return opt, nil
}

// RequiresKey reports whether calls to the model need an LLM API key.
func (a *Adapter) RequiresKey(id string) (bool, error) {
	opt, err := a.Resolve(id)
	if err != nil {
		return false, err
	}
	return providers[opt.Provider].requiresKey, nil
}

// Ask sends the system prompt naming datasetPath and the question, and
// returns the reply text unchanged.
func (a *Adapter) Ask(ctx context.Context, cfg models.SessionConfig, question, datasetPath string) (string, error) {
	opt, err := a.Resolve(cfg.Model)
	if err != nil {
		return "", err
	}
	factory, ok := a.factories[opt.Provider]
	if !ok {
		return "", fmt.Errorf("no factory for provider %s", opt.Provider)
	}

	cm, err := factory(ctx, ModelOptions{
		Model:   opt.ID,
		APIKey:  cfg.LLMAPIKey,
		BaseURL: a.baseURLs[opt.Provider],
		Timeout: a.timeout,
	})
	if err != nil {
		return "", &ProviderError{Provider: opt.Provider, Model: opt.ID, Err: err}
	}

	start := time.Now()
	a.log.Debug().Str("model", opt.ID).Str("provider", opt.Provider).Msg("sending question")

	msg, err := cm.Generate(ctx, BuildMessages(question, datasetPath))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		a.log.Warn().Err(err).Str("model", opt.ID).Msg("model call failed")
		return "", classify(opt.Provider, opt.ID, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", &ProviderError{Provider: opt.Provider, Model: opt.ID, Err: ErrEmptyResponse}
	}

	a.log.Info().
		Str("model", opt.ID).
		Dur("elapsed", time.Since(start)).
		Int("chars", len(msg.Content)).
		Msg("model replied")
	return msg.Content, nil
}
