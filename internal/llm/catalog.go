package llm

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/shehryarbajwa/vizai/pkg/models"
)

// ErrUnknownModel is returned for a model outside the curated catalog.
var ErrUnknownModel = errors.New("unknown model")

// defaultModels mirrors the dropdown the tool ships with.
var defaultModels = []models.ModelOption{
	{Label: "Meta-Llama 3.1 405B", ID: "meta-llama/Meta-Llama-3.1-405B-Instruct-Turbo", Provider: ProviderTogether},
	{Label: "DeepSeek V3", ID: "deepseek-ai/DeepSeek-V3", Provider: ProviderTogether},
	{Label: "Qwen 2.5 7B", ID: "Qwen/Qwen2.5-7B-Instruct-Turbo", Provider: ProviderTogether},
	{Label: "Meta-Llama 3.3 70B", ID: "meta-llama/Llama-3.3-70B-Instruct-Turbo", Provider: ProviderTogether},
}

// Catalog is the fixed set of models a user may pick from.
type Catalog struct {
	options []models.ModelOption
	byID    map[string]models.ModelOption
}

type catalogFile struct {
	Models []models.ModelOption `yaml:"models"`
}

// NewCatalog validates and indexes the given options. Order is kept for display.
func NewCatalog(opts []models.ModelOption) (*Catalog, error) {
	if len(opts) == 0 {
		return nil, errors.New("model catalog is empty")
	}
	c := &Catalog{byID: make(map[string]models.ModelOption, len(opts))}
	for i, o := range opts {
		if o.ID == "" {
			return nil, fmt.Errorf("model %d: id is required", i)
		}
		if _, ok := providers[o.Provider]; !ok {
			return nil, fmt.Errorf("model %s: unsupported provider %q", o.ID, o.Provider)
		}
		if _, dup := c.byID[o.ID]; dup {
			return nil, fmt.Errorf("model %s: duplicate id", o.ID)
		}
		if o.Label == "" {
			o.Label = o.ID
		}
		c.options = append(c.options, o)
		c.byID[o.ID] = o
	}
	return c, nil
}

// DefaultCatalog returns the built-in model list.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(defaultModels)
	if err != nil {
		panic(err)
	}
	return c
}

// LoadCatalog reads a YAML file of the form:
//
//	models:
//	  - label: DeepSeek V3
//	    id: deepseek-ai/DeepSeek-V3
//	    provider: together
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse model catalog: %w", err)
	}
	return NewCatalog(f.Models)
}

// Options returns the models in display order.
func (c *Catalog) Options() []models.ModelOption {
	out := make([]models.ModelOption, len(c.options))
	copy(out, c.options)
	return out
}

// Lookup finds a model by id.
func (c *Catalog) Lookup(id string) (models.ModelOption, bool) {
	o, ok := c.byID[id]
	return o, ok
}

// Default is the first model in the catalog.
func (c *Catalog) Default() models.ModelOption {
	return c.options[0]
}
