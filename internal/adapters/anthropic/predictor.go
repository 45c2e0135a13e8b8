// Package anthropic adapts the Anthropic Claude Messages API to the
// planner.Predictor port. It is a deliberately narrowed sibling of the
// teacher's features/model/anthropic client: a single user message goes out,
// a single JSON object comes back, no tool-calling and no streaming, since
// the planner's Single-Call Planner (§4.C6) only ever needs one structured
// prediction per query.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/fantastic-router/router/planner"
)

// MessagesClient captures the subset of the Anthropic SDK used by the
// adapter, so callers can pass either a real client or a test double.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures the adapter's default model and generation limits.
type Options struct {
	// Model is the Claude model identifier, e.g.
	// string(sdk.ModelClaudeSonnet4_5_20250929).
	Model string
	// MaxTokens bounds the completion length. Defaults to 1024 when zero.
	MaxTokens int
}

// Predictor implements planner.Predictor on top of Anthropic Claude Messages.
type Predictor struct {
	msg       MessagesClient
	model     string
	maxTokens int
}

// New builds a Predictor from an Anthropic Messages client.
func New(msg MessagesClient, opts Options) (*Predictor, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("anthropic: model identifier is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Predictor{msg: msg, model: opts.Model, maxTokens: maxTokens}, nil
}

// NewFromAPIKey constructs a Predictor using the default Anthropic HTTP
// client, reading additional defaults (retries, base URL) from the
// environment via the SDK's standard option resolution.
func NewFromAPIKey(apiKey, model string) (*Predictor, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&client.Messages, Options{Model: model})
}

// Predict renders prompt as a single user message at the given temperature
// and parses the assistant's text reply as a JSON object. Any failure -
// transport error, rate limiting, or unparseable content - is surfaced as a
// planner.Error with the matching Kind rather than a bare error. PlanAction
// (§4.C6) degrades any Predictor error into a low-confidence plan; the Kind
// is what the ratelimit wrapper inspects to detect upstream failures.
func (p *Predictor) Predict(ctx context.Context, prompt string, temperature float64) (planner.Prediction, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(p.model),
		MaxTokens: int64(p.maxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	}
	if temperature > 0 {
		params.Temperature = sdk.Float(temperature)
	}

	msg, err := p.msg.New(ctx, params)
	if err != nil {
		return nil, planner.NewWithCause(planner.KindPredictorFailure, "anthropic messages.new failed", err)
	}

	text := concatenateText(msg)
	if text == "" {
		return nil, planner.New(planner.KindParseFailure, "anthropic response contained no text content")
	}

	prediction, err := parsePrediction(text)
	if err != nil {
		return nil, planner.NewWithCause(planner.KindParseFailure, "could not parse anthropic response as JSON", err)
	}
	return prediction, nil
}

func concatenateText(msg *sdk.Message) string {
	if msg == nil {
		return ""
	}
	var out string
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			out += block.Text
		}
	}
	return out
}

// parsePrediction extracts and decodes a JSON object from text. Models
// sometimes wrap their JSON in prose or a fenced code block, so this first
// tries a direct unmarshal and falls back to scanning for the first
// brace-balanced object in the text.
func parsePrediction(text string) (planner.Prediction, error) {
	var direct planner.Prediction
	if err := json.Unmarshal([]byte(text), &direct); err == nil {
		return direct, nil
	}

	obj, ok := extractBalancedObject(text)
	if !ok {
		return nil, fmt.Errorf("no JSON object found in response text")
	}
	var prediction planner.Prediction
	if err := json.Unmarshal([]byte(obj), &prediction); err != nil {
		return nil, fmt.Errorf("decode extracted JSON object: %w", err)
	}
	return prediction, nil
}

// extractBalancedObject scans text for the first top-level '{'...'}' span,
// tracking brace depth and skipping braces inside string literals so a
// string value containing "}" does not terminate the scan early.
func extractBalancedObject(text string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range text {
		if start == -1 {
			if r == '{' {
				start = i
				depth = 1
			}
			continue
		}
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
