package assistant

import (
	"context"
	"errors"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

var (
	errMissingAPIKey  = errors.New("assistant api key is required")
	errMissingModel   = errors.New("assistant model is required")
	errInvalidTokens  = errors.New("assistant max tokens must be positive")
	errEmptyResponder = errors.New("assistant returned no text")
)

// Responder produces the assistant's reply to a prompt.
type Responder interface {
	Respond(ctx context.Context, prompt Prompt) (string, error)
}

// AnthropicResponder answers prompts through the Anthropic Messages API.
type AnthropicResponder struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicResponder builds a responder for model using apiKey.
func NewAnthropicResponder(apiKey, model string, maxTokens int64, opts ...option.RequestOption) (*AnthropicResponder, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errMissingAPIKey
	}
	if strings.TrimSpace(model) == "" {
		return nil, errMissingModel
	}
	if maxTokens <= 0 {
		return nil, errInvalidTokens
	}
	requestOptions := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicResponder{
		client:    anthropic.NewClient(requestOptions...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// Respond sends prompt as a single user turn and joins the text blocks of the reply.
func (r *AnthropicResponder) Respond(ctx context.Context, prompt Prompt) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: r.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.Message)),
		},
	}
	if prompt.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: prompt.System}}
	}
	msg, err := r.client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}
	var builder strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			builder.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(builder.String())
	if text == "" {
		return "", errEmptyResponder
	}
	return text, nil
}
