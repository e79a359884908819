package service

import (
	"context"
	"errors"
	"testing"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/apperr"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	reply    string
	err      error
	messages []llms.MessageContent
}

func (m *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestLLMServiceComplete(t *testing.T) {
	model := &fakeModel{reply: "  Shipping takes three days.  "}
	svc := NewLLMServiceFromModel(model, &config.LLMConfig{Model: "gpt-test"})

	answer, err := svc.Complete(context.Background(), "How long is shipping?", "[1] Shipping: 3 days")
	require.NoError(t, err)
	assert.Equal(t, "Shipping takes three days.", answer)
	assert.Equal(t, "gpt-test", svc.Model())

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	human := model.messages[1].Parts[0].(llms.TextContent).Text
	assert.Contains(t, human, "Shipping: 3 days")
}

func TestLLMServiceFailuresAreUnavailable(t *testing.T) {
	svc := NewLLMServiceFromModel(&fakeModel{err: errors.New("502")}, &config.LLMConfig{})
	_, err := svc.Complete(context.Background(), "q", "")
	assert.ErrorIs(t, err, apperr.ErrLLMUnavailable)

	svc = NewLLMServiceFromModel(&fakeModel{reply: "   "}, &config.LLMConfig{})
	_, err = svc.Complete(context.Background(), "q", "")
	assert.ErrorIs(t, err, apperr.ErrLLMUnavailable)
}

func TestNewLLMServiceRequiresKey(t *testing.T) {
	_, err := NewLLMService(&config.LLMConfig{Model: "gpt-4o-mini"})
	assert.Error(t, err)
}
