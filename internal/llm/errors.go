package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyResponse is returned when the provider answers with no content.
var ErrEmptyResponse = errors.New("empty response from model")

// ProviderError is any failure reported by the LLM provider: network,
// HTTP status, quota or a bad model name. The analysis is aborted.
type ProviderError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Provider, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// AuthError is a ProviderError caused by a rejected API key.
type AuthError struct {
	ProviderError
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.ProviderError.Error()
}

var authMarkers = []string{
	"401",
	"403",
	"unauthorized",
	"invalid api key",
	"invalid_api_key",
	"incorrect api key",
	"authentication",
}

func classify(provider, modelID string, err error) error {
	pe := ProviderError{Provider: provider, Model: modelID, Err: err}
	msg := strings.ToLower(err.Error())
	for _, m := range authMarkers {
		if strings.Contains(msg, m) {
			return &AuthError{ProviderError: pe}
		}
	}
	return &pe
}

// IsAuthError reports whether err is an authentication failure.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsProviderError reports whether err came from the provider, auth failures included.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) || IsAuthError(err)
}
