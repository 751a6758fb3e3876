// Package llm is the boundary to the external language model.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/pavelanni/studyhall/internal/model"
)

// Variant selects which configured model serves a request.
type Variant int

const (
	VariantText Variant = iota
	VariantVision
)

func (v Variant) String() string {
	if v == VariantVision {
		return "vision"
	}
	return "text"
}

// VariantFor returns the vision variant when any part is an image.
func VariantFor(parts []model.ContentPart) Variant {
	if model.HasImage(parts) {
		return VariantVision
	}
	return VariantText
}

// Request is one completion call: a system instruction plus user content.
type Request struct {
	System      string
	Parts       []model.ContentPart
	Variant     Variant
	JSON        bool    // ask the provider for a JSON object response
	Temperature float32 // zero leaves the provider default
}

// Client produces a completion for a request.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

var (
	// ErrMissingCredential is returned on every call when no API key is configured.
	ErrMissingCredential = errors.New("llm: api key is not configured")
	// ErrUnauthorized is returned when the provider rejects the credential.
	ErrUnauthorized = errors.New("llm: credential rejected by provider")
	// ErrUnavailable wraps failures to reach the provider at all.
	ErrUnavailable = errors.New("llm: provider unreachable")
)

// StatusError is a non-success response other than an auth failure.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm: provider returned status %d: %s", e.Status, e.Body)
}

func statusError(code int, body string) error {
	if code == 401 || code == 403 {
		return fmt.Errorf("%w (status %d): %s", ErrUnauthorized, code, body)
	}
	return &StatusError{Status: code, Body: body}
}

// Config selects and configures a provider.
type Config struct {
	Provider    string // "openai" (default) or "gemini"
	BaseURL     string
	APIKey      string
	TextModel   string
	VisionModel string
}

func (c Config) modelFor(v Variant) string {
	if v == VariantVision && c.VisionModel != "" {
		return c.VisionModel
	}
	return c.TextModel
}

// New returns a client for the configured provider. A missing API key is not
// an error here; the client reports it on every call instead.
func New(ctx context.Context, cfg Config) (Client, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAI(cfg), nil
	case "gemini":
		return NewGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
