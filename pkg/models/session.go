package models

import "time"

// SessionStatus represents the current state of an analysis session
type SessionStatus string

const (
	StatusActive  SessionStatus = "ACTIVE"
	StatusClosed  SessionStatus = "CLOSED"
	StatusExpired SessionStatus = "EXPIRED"
)

// SessionConfig holds the credentials and model picked by the user.
// It is passed explicitly into every analysis rather than read from ambient state.
type SessionConfig struct {
	LLMAPIKey     string `json:"llmApiKey,omitempty"`
	SandboxAPIKey string `json:"sandboxApiKey,omitempty"`
	Model         string `json:"model,omitempty"`
}

// Masked returns a copy safe to send back to clients.
func (c SessionConfig) Masked() SessionConfig {
	return SessionConfig{
		LLMAPIKey:     MaskSecret(c.LLMAPIKey),
		SandboxAPIKey: MaskSecret(c.SandboxAPIKey),
		Model:         c.Model,
	}
}

// MaskSecret hides all but the edges of a secret.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}

// Session is one interactive user session
type Session struct {
	ID           string        `json:"id"`
	Status       SessionStatus `json:"status"`
	Config       SessionConfig `json:"config"`
	Dataset      *Dataset      `json:"dataset,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	LastActiveAt time.Time     `json:"lastActiveAt"`
	ExpiresAt    time.Time     `json:"expiresAt"`
}

// View is the client-facing copy of a session with secrets masked.
func (s Session) View() Session {
	s.Config = s.Config.Masked()
	if s.Dataset != nil {
		ds := *s.Dataset
		ds.LocalPath = ""
		s.Dataset = &ds
	}
	return s
}

// UpdateConfigRequest is the payload for PUT /v1/sessions/{id}/config.
// Nil fields are left unchanged.
type UpdateConfigRequest struct {
	LLMAPIKey     *string `json:"llmApiKey,omitempty"`
	SandboxAPIKey *string `json:"sandboxApiKey,omitempty"`
	Model         *string `json:"model,omitempty"`
}

// Apply merges the request into cfg.
func (r UpdateConfigRequest) Apply(cfg SessionConfig) SessionConfig {
	if r.LLMAPIKey != nil {
		cfg.LLMAPIKey = *r.LLMAPIKey
	}
	if r.SandboxAPIKey != nil {
		cfg.SandboxAPIKey = *r.SandboxAPIKey
	}
	if r.Model != nil {
		cfg.Model = *r.Model
	}
	return cfg
}
