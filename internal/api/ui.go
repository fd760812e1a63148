package api

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/shehryarbajwa/vizai/pkg/models"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// DefaultQuestion prefills the question box.
const DefaultQuestion = "Example: Compare sales by region."

type keyLink struct {
	Label string
	URL   string
}

type indexData struct {
	Title           string
	Models          []models.ModelOption
	DefaultQuestion string
	SandboxEnabled  bool
	KeyLinks        []keyLink
}

// Index handles GET /
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	data := indexData{
		Title:           "VizAI: Data Visualization Assistant",
		Models:          h.catalog.Options(),
		DefaultQuestion: DefaultQuestion,
		SandboxEnabled:  h.analyzer.Mode() == models.ModeSandbox,
		KeyLinks: []keyLink{
			{Label: "Get Together AI API Key", URL: "https://api.together.ai/signin"},
		},
	}
	if data.SandboxEnabled {
		data.KeyLinks = append(data.KeyLinks, keyLink{Label: "Get Sandbox API Key", URL: "https://e2b.dev/docs/legacy/getting-started/api-key"})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		h.log.Error().Err(err).Msg("failed to render index")
	}
}
