package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/apperr"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/config"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/prompts"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LLM produces an answer to a question given assembled knowledge context. Empty
// knowledge means the model answers directly.
type LLM interface {
	Complete(ctx context.Context, question, knowledge string) (string, error)
	Model() string
}

// LLMService talks to an OpenAI-compatible chat completion API through langchaingo.
type LLMService struct {
	llm         llms.Model
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

// NewLLMService creates the chat model client.
// Parameters:
//   - cfg: model name, credentials, base URL and generation limits.
// Returns:
//   - *LLMService: ready client.
//   - error: non-nil if the API key is missing or the client cannot be built.
func NewLLMService(cfg *config.LLMConfig) (*LLMService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: api_key is required")
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai model: %w", err)
	}

	return NewLLMServiceFromModel(model, cfg), nil
}

// NewLLMServiceFromModel wraps an existing langchaingo model.
func NewLLMServiceFromModel(model llms.Model, cfg *config.LLMConfig) *LLMService {
	return &LLMService{
		llm:         model,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
	}
}

// Model returns the LLM model name.
func (s *LLMService) Model() string {
	return s.model
}

// Complete answers question using the store support prompts.
// Every failure is reported as apperr.ErrLLMUnavailable.
func (s *LLMService) Complete(ctx context.Context, question, knowledge string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, prompts.ChatSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompts.BuildChatUserPrompt(question, knowledge)),
	}

	callOpts := []llms.CallOption{llms.WithTemperature(s.temperature)}
	if s.maxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(s.maxTokens))
	}

	response, err := s.llm.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrLLMUnavailable, err, "chat completion failed")
	}
	if len(response.Choices) == 0 {
		return "", apperr.New(apperr.ErrLLMUnavailable, "chat completion returned no choices")
	}

	answer := strings.TrimSpace(response.Choices[0].Content)
	if answer == "" {
		return "", apperr.New(apperr.ErrLLMUnavailable, "chat completion returned an empty answer")
	}
	return answer, nil
}
