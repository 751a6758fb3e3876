package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/option"

	"github.com/pavelanni/studyhall/internal/model"
)

// Gemini talks to the Google Gemini API.
type Gemini struct {
	cfg    Config
	client *genai.Client
}

// NewGemini creates the underlying client only when a key is configured.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	g := &Gemini{cfg: cfg}
	if cfg.APIKey == "" {
		return g, nil
	}
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize Gemini client: %w", err)
	}
	g.client = client
	return g, nil
}

func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	if g.client == nil {
		return "", ErrMissingCredential
	}

	name := g.cfg.modelFor(req.Variant)
	m := g.client.GenerativeModel(name)
	if req.System != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.JSON {
		m.ResponseMIMEType = "application/json"
	}
	if req.Temperature > 0 {
		m.SetTemperature(req.Temperature)
	}

	parts, err := geminiParts(req.Parts)
	if err != nil {
		return "", err
	}
	resp, err := m.GenerateContent(ctx, parts...)
	if isBlocked(err) {
		// Blocked content reads as an empty completion.
		slog.Warn("Gemini blocked the response", "model", name, "error", err)
		return "", nil
	}
	if err != nil {
		return "", classifyGemini(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		slog.Warn("Gemini returned no candidates", "model", name)
		return "", nil
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if txt, ok := p.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	slog.Debug("LLM response", "model", name, "raw", sb.String())
	return sb.String(), nil
}

func geminiParts(parts []model.ContentPart) ([]genai.Part, error) {
	out := make([]genai.Part, 0, len(parts))
	for _, p := range parts {
		if p.Kind != model.PartImage {
			out = append(out, genai.Text(p.Value))
			continue
		}
		data, err := base64.StdEncoding.DecodeString(p.Value)
		if err != nil {
			return nil, fmt.Errorf("decode image part: %w", err)
		}
		out = append(out, genai.Blob{MIMEType: p.MediaType, Data: data})
	}
	return out, nil
}

func isBlocked(err error) bool {
	var blocked *genai.BlockedError
	return errors.As(err, &blocked)
}

func classifyGemini(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPCode() > 0 {
		return statusError(apiErr.HTTPCode(), apiErr.Error())
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
