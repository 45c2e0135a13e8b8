package openai

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fantastic-router/router/planner"
)

type fakeChatClient struct {
	resp openai.ChatCompletionResponse
	err  error
}

func (f *fakeChatClient) CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return f.resp, f.err
}

func chatResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestPredict_DecodesJSONObjectResponse(t *testing.T) {
	client := &fakeChatClient{resp: chatResponse(`{"overall_confidence": 0.7}`)}
	p, err := New(client, Options{Model: "gpt-test"})
	require.NoError(t, err)

	prediction, err := p.Predict(context.Background(), "plan this", 0.1)
	require.NoError(t, err)
	assert.Equal(t, 0.7, prediction["overall_confidence"])
}

func TestPredict_TransportErrorWrapsAsPredictorFailure(t *testing.T) {
	client := &fakeChatClient{err: errors.New("upstream unavailable")}
	p, err := New(client, Options{Model: "gpt-test"})
	require.NoError(t, err)

	_, err = p.Predict(context.Background(), "plan this", 0.1)
	require.Error(t, err)
	var plannerErr *planner.Error
	require.ErrorAs(t, err, &plannerErr)
	assert.Equal(t, planner.KindPredictorFailure, plannerErr.Kind)
}

func TestPredict_EmptyChoicesIsParseFailure(t *testing.T) {
	client := &fakeChatClient{resp: openai.ChatCompletionResponse{}}
	p, err := New(client, Options{Model: "gpt-test"})
	require.NoError(t, err)

	_, err = p.Predict(context.Background(), "plan this", 0.1)
	require.Error(t, err)
	var plannerErr *planner.Error
	require.ErrorAs(t, err, &plannerErr)
	assert.Equal(t, planner.KindParseFailure, plannerErr.Kind)
}

func TestPredict_MalformedJSONIsParseFailure(t *testing.T) {
	client := &fakeChatClient{resp: chatResponse("not json")}
	p, err := New(client, Options{Model: "gpt-test"})
	require.NoError(t, err)

	_, err = p.Predict(context.Background(), "plan this", 0.1)
	require.Error(t, err)
	var plannerErr *planner.Error
	require.ErrorAs(t, err, &plannerErr)
	assert.Equal(t, planner.KindParseFailure, plannerErr.Kind)
}

func TestNew_RejectsMissingModel(t *testing.T) {
	_, err := New(&fakeChatClient{}, Options{})
	require.Error(t, err)
}
