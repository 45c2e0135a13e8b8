// Package openai adapts the OpenAI Chat Completions API to the
// planner.Predictor port, mirroring the teacher's features/model/openai
// client but narrowed to a single user message and a parsed JSON reply
// instead of tool-calling.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fantastic-router/router/planner"
)

// ChatClient captures the subset of the go-openai client used by the
// adapter, so callers can pass either a real client or a test double.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Options configures the adapter's default model.
type Options struct {
	Model string
	// MaxTokens bounds the completion length. Defaults to 1024 when zero.
	MaxTokens int
}

// Predictor implements planner.Predictor via OpenAI Chat Completions, asking
// the model to respond with a JSON object (response_format json_object) so
// parsing never needs a prose-stripping fallback the way the Anthropic
// adapter does.
type Predictor struct {
	chat      ChatClient
	model     string
	maxTokens int
}

// New builds a Predictor from an OpenAI chat client.
func New(chat ChatClient, opts Options) (*Predictor, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		return nil, errors.New("openai: model is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Predictor{chat: chat, model: model, maxTokens: maxTokens}, nil
}

// NewFromAPIKey constructs a Predictor using the default go-openai HTTP
// client.
func NewFromAPIKey(apiKey, model string) (*Predictor, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	return New(openai.NewClient(apiKey), Options{Model: model})
}

// Predict issues one chat completion at the given temperature, constraining
// the response to a JSON object, and decodes it into a planner.Prediction.
func (p *Predictor) Predict(ctx context.Context, prompt string, temperature float64) (planner.Prediction, error) {
	request := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:    float32(temperature),
		MaxTokens:      p.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	response, err := p.chat.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, planner.NewWithCause(planner.KindPredictorFailure, "openai chat completion failed", err)
	}
	if len(response.Choices) == 0 {
		return nil, planner.New(planner.KindParseFailure, "openai response contained no choices")
	}

	content := strings.TrimSpace(response.Choices[0].Message.Content)
	if content == "" {
		return nil, planner.New(planner.KindParseFailure, "openai response contained no content")
	}

	var prediction planner.Prediction
	if err := json.Unmarshal([]byte(content), &prediction); err != nil {
		return nil, planner.NewWithCause(planner.KindParseFailure, "could not parse openai response as JSON", err)
	}
	return prediction, nil
}
