package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/studyhall/internal/model"
)

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	cfg Config
	api *openai.Client
}

func NewOpenAI(cfg Config) *OpenAI {
	c := &OpenAI{cfg: cfg}
	if cfg.APIKey != "" {
		config := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			config.BaseURL = cfg.BaseURL
		}
		c.api = openai.NewClientWithConfig(config)
	}
	return c
}

func (c *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	if c.api == nil {
		return "", ErrMissingCredential
	}

	var msgs []openai.ChatCompletionMessage
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	msgs = append(msgs, userMessage(req.Parts))

	chatReq := openai.ChatCompletionRequest{
		Model:       c.cfg.modelFor(req.Variant),
		Messages:    msgs,
		Temperature: req.Temperature,
	}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", classifyOpenAI(err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("LLM returned no choices", "model", chatReq.Model)
		return "", nil
	}
	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "model", chatReq.Model, "raw", raw)
	return raw, nil
}

// userMessage sends plain content when there are no images, since not every
// compatible server accepts multi-part content.
func userMessage(parts []model.ContentPart) openai.ChatCompletionMessage {
	if !model.HasImage(parts) {
		texts := make([]string, 0, len(parts))
		for _, p := range parts {
			texts = append(texts, p.Value)
		}
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: strings.Join(texts, "\n\n")}
	}
	multi := make([]openai.ChatMessagePart, 0, len(parts))
	for _, p := range parts {
		switch p.Kind {
		case model.PartImage:
			multi = append(multi, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: "data:" + p.MediaType + ";base64," + p.Value},
			})
		default:
			multi = append(multi, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: p.Value})
		}
	}
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: multi}
}

func classifyOpenAI(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError(apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusError(reqErr.HTTPStatusCode, reqErr.Error())
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
