package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/incidentops/teams-copilot/internal/config"
	"github.com/incidentops/teams-copilot/internal/models"
	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// Service represents the LLM service interface
type Service interface {
	Complete(ctx context.Context, messages []models.Message) (string, error)
	CompleteJSON(ctx context.Context, messages []models.Message) (string, error)
}

// AzureAI implements Service against an Azure OpenAI deployment
type AzureAI struct {
	client     *openai.Client
	deployment string
	logger     *logrus.Logger
}

// NewAzureAI creates an Azure OpenAI backed service
func NewAzureAI(cfg *config.AzureConfig, logger *logrus.Logger) *AzureAI {
	clientCfg := openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
	clientCfg.APIVersion = cfg.APIVersion
	clientCfg.AzureModelMapperFunc = func(model string) string {
		return cfg.Deployment
	}

	logger.WithFields(logrus.Fields{
		"endpoint":   cfg.Endpoint,
		"deployment": cfg.Deployment,
	}).Info("Azure OpenAI service initialized")

	return &AzureAI{
		client:     openai.NewClientWithConfig(clientCfg),
		deployment: cfg.Deployment,
		logger:     logger,
	}
}

// Complete gets a free-text completion with retry logic
func (s *AzureAI) Complete(ctx context.Context, messages []models.Message) (string, error) {
	return s.complete(ctx, messages, nil)
}

// CompleteJSON gets a completion constrained to a JSON object response
func (s *AzureAI) CompleteJSON(ctx context.Context, messages []models.Message) (string, error) {
	return s.complete(ctx, messages, &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	})
}

func (s *AzureAI) complete(ctx context.Context, messages []models.Message, format *openai.ChatCompletionResponseFormat) (string, error) {
	const maxRetries = 3
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		response, err := s.completeOnce(ctx, messages, format, attempt)
		if err == nil {
			return response, nil
		}

		lastErr = err
		s.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err.Error(),
		}).Warn("LLM request failed, retrying...")

		// Client errors won't succeed on retry
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 {
			return "", err
		}

		if attempt < maxRetries {
			// Exponential backoff: 2s, 4s
			waitTime := time.Duration(2<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(waitTime):
			}
		}
	}

	return "", fmt.Errorf("all retry attempts failed: %w", lastErr)
}

func (s *AzureAI) completeOnce(ctx context.Context, messages []models.Message, format *openai.ChatCompletionResponseFormat, attempt int) (string, error) {
	oaMsgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		oaMsgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	req := openai.ChatCompletionRequest{
		Model:          s.deployment,
		Messages:       oaMsgs,
		Temperature:    0.7,
		ResponseFormat: format,
	}
	if format != nil {
		// Structured outputs should be stable
		req.Temperature = 0
	}

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	s.logger.WithFields(logrus.Fields{
		"deployment": s.deployment,
		"messages":   len(messages),
		"attempt":    attempt,
	}).Debug("Sending LLM request")

	resp, err := s.client.CreateChatCompletion(reqCtx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("no response from LLM")
	}

	return resp.Choices[0].Message.Content, nil
}
