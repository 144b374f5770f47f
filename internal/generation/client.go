// Package generation wraps the external answer-generation capability. The
// core treats it as a black box: it sends a question plus assembled context
// and persists whatever confidence the generator reports.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/docqa/backend/internal/domain"
	"github.com/docqa/backend/pkg/circuitbreaker"
	"github.com/docqa/backend/pkg/logger"
	"github.com/docqa/backend/pkg/retry"
)

type Result struct {
	AnswerText      string
	ConfidenceScore float64
}

type Config struct {
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

type Client struct {
	client *openai.Client
	cfg    Config
	cb     *circuitbreaker.CircuitBreaker
	retry  retry.Config
}

func NewClient(apiKey string, cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}

	cb := circuitbreaker.New("generation", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	logger.Info("Generation client initialized", zap.String("model", cfg.Model))

	return &Client{
		client: openai.NewClient(apiKey),
		cfg:    cfg,
		cb:     cb,
		retry: retry.Config{
			MaxAttempts:    3,
			InitialDelay:   500 * time.Millisecond,
			MaxDelay:       5 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
			RetryableErrors: []error{
				errTransient,
			},
			Logger: logger.GetLogger(),
		},
	}
}

var errTransient = errors.New("transient generation error")

const systemPrompt = `You are a document analysis assistant. Answer the question using ONLY the
provided document context. If the context does not contain the answer, say so
plainly. End your reply with a line of the form "CONFIDENCE: <0.0-1.0>"
rating how well the context supports your answer.`

// GenerateAnswer sends the question and context payload to the generator and
// returns its answer with the self-reported confidence. Transient transport
// errors are retried; everything else maps to domain.ErrGenerationFailure.
func (c *Client) GenerateAnswer(ctx context.Context, questionText, contextPayload string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	userPrompt := fmt.Sprintf("Document context:\n%s\n\nQuestion: %s", contextPayload, questionText)
	if strings.TrimSpace(contextPayload) == "" {
		userPrompt = fmt.Sprintf("No document context is available.\n\nQuestion: %s", questionText)
	}

	var content string

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retry, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.cfg.Model,
					Temperature: c.cfg.Temperature,
					MaxTokens:   c.cfg.MaxTokens,
					Messages: []openai.ChatCompletionMessage{
						{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
						{Role: openai.ChatMessageRoleUser, Content: userPrompt},
					},
				},
			)
			if err != nil {
				return classifyError(err)
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("generator returned no choices")
			}
			content = resp.Choices[0].Message.Content
			return nil
		})
	})

	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGenerationFailure, err)
	}

	answer, confidence := splitConfidence(content)

	logger.Debug("Answer generated",
		zap.Int("answer_length", len(answer)),
		zap.Float64("confidence", confidence),
	)

	return &Result{AnswerText: answer, ConfidenceScore: confidence}, nil
}

func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 502, 503, 504:
			return fmt.Errorf("%w: %v", errTransient, err)
		}
		return err
	}
	// transport-level failures are worth a retry
	return fmt.Errorf("%w: %v", errTransient, err)
}

// splitConfidence strips the trailing CONFIDENCE marker. A missing or
// unparsable marker yields a neutral 0.5.
func splitConfidence(content string) (string, float64) {
	confidence := 0.5

	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) == 0 {
		return content, confidence
	}

	last := strings.TrimSpace(lines[len(lines)-1])
	if rest, ok := strings.CutPrefix(last, "CONFIDENCE:"); ok {
		if v, err := strconv.ParseFloat(strings.TrimSpace(rest), 64); err == nil {
			if v < 0 {
				v = 0
			}
			if v > 1 {
				v = 1
			}
			confidence = v
			lines = lines[:len(lines)-1]
		}
	}

	return strings.TrimSpace(strings.Join(lines, "\n")), confidence
}
