package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"github.com/yukikurage/observation-record-api/internal/observability"
)

// SummaryUnavailable is returned by Summarize whenever no summary could be produced.
const SummaryUnavailable = "N/A"

// Summarizer produces a short description of free text. It never fails; an
// unavailable summary is reported as SummaryUnavailable.
type Summarizer interface {
	Summarize(ctx context.Context, text string) string
}

// AIServiceConfig configures the OpenAI-backed summarizer.
type AIServiceConfig struct {
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
	MaxInput int
}

type AIService struct {
	client   *openai.Client
	timeout  time.Duration
	maxInput int
	metrics  *observability.Metrics
	log      logrus.FieldLogger
}

// NewAIService creates a summarizer. Without an API key every call returns
// SummaryUnavailable.
func NewAIService(cfg AIServiceConfig, metrics *observability.Metrics, log logrus.FieldLogger) *AIService {
	s := &AIService{
		timeout:  cfg.Timeout,
		maxInput: cfg.MaxInput,
		metrics:  metrics,
		log:      log,
	}
	if cfg.APIKey != "" {
		clientCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
		s.client = openai.NewClientWithConfig(clientCfg)
	}
	return s
}

// Summarize asks the model for a very short description of text. Input is
// truncated to the configured number of characters and the call is bounded by
// the configured timeout.
func (s *AIService) Summarize(ctx context.Context, text string) string {
	summary, err := s.summarize(ctx, text)
	if err != nil {
		s.log.WithError(err).Warn("Summary unavailable")
		s.metrics.Summaries.WithLabelValues("unavailable").Inc()
		return SummaryUnavailable
	}
	s.metrics.Summaries.WithLabelValues("success").Inc()
	return summary
}

func (s *AIService) summarize(ctx context.Context, text string) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("OpenAI client not initialized")
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	prompt := fmt.Sprintf("Give very short description about the following text %q", truncateRunes(text, s.maxInput))

	resp, err := s.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: openai.GPT4oMini,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			Temperature: 0.3,
		},
	)
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}

	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", fmt.Errorf("empty summary")
	}
	return summary, nil
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
