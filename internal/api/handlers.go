package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/vizai/internal/analyze"
	"github.com/shehryarbajwa/vizai/internal/dataset"
	"github.com/shehryarbajwa/vizai/internal/events"
	"github.com/shehryarbajwa/vizai/internal/llm"
	"github.com/shehryarbajwa/vizai/internal/logger"
	"github.com/shehryarbajwa/vizai/internal/ratelimit"
	"github.com/shehryarbajwa/vizai/internal/session"
	"github.com/shehryarbajwa/vizai/pkg/models"
)

const missingCredentialsMessage = "Please provide API keys in the sidebar."

// Handler holds dependencies for HTTP handlers
type Handler struct {
	sessions    *session.Manager
	datasets    *dataset.Store
	analyzer    *analyze.Service
	catalog     *llm.Catalog
	hub         *events.Hub
	limiter     *ratelimit.Limiter
	previewRows int
	maxUpload   int64
	log         zerolog.Logger
}

// Options configures a Handler.
type Options struct {
	Sessions    *session.Manager
	Datasets    *dataset.Store
	Analyzer    *analyze.Service
	Catalog     *llm.Catalog
	Hub         *events.Hub
	Limiter     *ratelimit.Limiter
	PreviewRows int
	MaxUpload   int64 // bytes
}

// NewHandler creates a new HTTP handler
func NewHandler(opts Options) *Handler {
	return &Handler{
		sessions:    opts.Sessions,
		datasets:    opts.Datasets,
		analyzer:    opts.Analyzer,
		catalog:     opts.Catalog,
		hub:         opts.Hub,
		limiter:     opts.Limiter,
		previewRows: opts.PreviewRows,
		maxUpload:   opts.MaxUpload,
		log:         logger.With("api"),
	}
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"mode":   string(h.analyzer.Mode()),
	})
}

// ListModels handles GET /v1/models
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Options())
}

// CreateSession handles POST /v1/sessions. The body is optional.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var cfg models.SessionConfig
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
			return
		}
	}
	if cfg.Model == "" {
		cfg.Model = h.catalog.Default().ID
	}
	if _, ok := h.catalog.Lookup(cfg.Model); !ok {
		writeError(w, http.StatusBadRequest, "unknown_model", "unknown model: "+cfg.Model)
		return
	}

	s, err := h.sessions.CreateSession(r.Context(), cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, s.View())
}

// ListSessions handles GET /v1/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	status := models.SessionStatus(r.URL.Query().Get("status"))
	sessions, err := h.sessions.ListSessions(r.Context(), status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	views := make([]models.Session, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, s.View())
	}
	writeJSON(w, http.StatusOK, views)
}

// GetSession handles GET /v1/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

// DeleteSession handles DELETE /v1/sessions/{id}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.sessions.DeleteSession(r.Context(), id); err != nil {
		h.writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateConfig handles PUT /v1/sessions/{id}/config
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Model != nil {
		if _, ok := h.catalog.Lookup(*req.Model); !ok {
			writeError(w, http.StatusBadRequest, "unknown_model", "unknown model: "+*req.Model)
			return
		}
	}

	s, err := h.sessions.UpdateConfig(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

// UploadDataset handles POST /v1/sessions/{id}/dataset (multipart field "file")
func (h *Handler) UploadDataset(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	if h.maxUpload > 0 {
		// room for multipart framing around the file
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1<<20)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", dataset.ErrTooLarge.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	ds, err := h.datasets.Save(s.ID, header.Filename, file)
	switch {
	case errors.Is(err, dataset.ErrNotCSV), errors.Is(err, dataset.ErrBadName):
		writeError(w, http.StatusBadRequest, "invalid_file", err.Error())
		return
	case errors.Is(err, dataset.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	preview, err := dataset.Preview(ds.LocalPath, h.previewRows)
	if err != nil {
		h.datasets.Remove(s.ID)
		writeError(w, http.StatusBadRequest, "invalid_file", "could not parse CSV: "+err.Error())
		return
	}

	s, err = h.sessions.AttachDataset(r.Context(), s.ID, ds)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"session": s.View(),
		"preview": preview,
	})
}

// PreviewDataset handles GET /v1/sessions/{id}/dataset/preview?rows=N
func (h *Handler) PreviewDataset(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	if s.Dataset == nil {
		writeError(w, http.StatusNotFound, "no_dataset", analyze.ErrNoDataset.Error())
		return
	}

	rows := h.previewRows
	if v := r.URL.Query().Get("rows"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "bad_request", "rows must be between 1 and 1000")
			return
		}
		rows = n
	}

	preview, err := dataset.Preview(s.Dataset.LocalPath, rows)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_file", "could not parse CSV: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// Analyze handles POST /v1/sessions/{id}/analyze. Only requests that pass
// the credential and dataset checks count against the rate limit.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req models.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	s, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	run := analyze.Request{
		SessionID: s.ID,
		Config:    s.Config,
		Dataset:   s.Dataset,
		Question:  req.Question,
	}
	if err := h.analyzer.Check(run); err != nil {
		h.writeAnalyzeError(w, err)
		return
	}

	release, err := h.sessions.Acquire(s.ID)
	if err != nil {
		writeError(w, http.StatusConflict, "busy", err.Error())
		return
	}
	defer release()

	if !h.allowAnalyze(w, s.ID) {
		return
	}

	// keep the session alive while the model and sandbox run
	if err := h.sessions.Touch(r.Context(), s.ID); err != nil {
		h.writeSessionError(w, err)
		return
	}

	result, err := h.analyzer.Run(r.Context(), run)
	if err != nil {
		h.writeAnalyzeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Events handles GET /v1/sessions/{id}/events (WebSocket)
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	h.hub.ServeWS(w, r, s.ID)
}

func (h *Handler) loadSession(w http.ResponseWriter, r *http.Request) (*models.Session, bool) {
	s, err := h.sessions.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeSessionError(w, err)
		return nil, false
	}
	return s, true
}

func (h *Handler) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Session not found")
	case errors.Is(err, session.ErrExpired):
		writeError(w, http.StatusGone, "expired", "Session expired")
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func (h *Handler) writeAnalyzeError(w http.ResponseWriter, err error) {
	var credErr *analyze.CredentialsError
	var provErr *analyze.ProviderError
	switch {
	case errors.As(err, &credErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   missingCredentialsMessage,
			"kind":    "missing_credentials",
			"missing": credErr.Missing,
		})
	case errors.As(err, &provErr):
		kind := "provider_error"
		if provErr.Auth {
			kind = "provider_auth_error"
		}
		writeError(w, http.StatusBadGateway, kind, provErr.Error())
	case analyze.IsClientError(err):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	default:
		h.log.Error().Err(err).Msg("analysis failed")
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg, Kind: kind})
}
