package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/docqa/backend/pkg/circuitbreaker"
	"github.com/docqa/backend/pkg/logger"
)

// OpenAIUpstream implements Upstream against an OpenAI-compatible
// embeddings endpoint, guarded by a circuit breaker.
type OpenAIUpstream struct {
	client *openai.Client
	model  string
	cb     *circuitbreaker.CircuitBreaker
}

func NewOpenAIUpstream(apiKey, model string) *OpenAIUpstream {
	cb := circuitbreaker.New("embedding", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	logger.Info("Embedding upstream initialized", zap.String("model", model))

	return &OpenAIUpstream{
		client: openai.NewClient(apiKey),
		model:  model,
		cb:     cb,
	}
}

func (u *OpenAIUpstream) Embed(ctx context.Context, text string) ([]float32, error) {
	var embedding []float32

	err := u.cb.Execute(ctx, func() error {
		resp, err := u.client.CreateEmbeddings(
			ctx,
			openai.EmbeddingRequest{
				Input: []string{text},
				Model: openai.EmbeddingModel(u.model),
			},
		)
		if err != nil {
			return classifyError(err)
		}
		if len(resp.Data) == 0 {
			return fmt.Errorf("embedding response contained no data")
		}

		embedding = make([]float32, len(resp.Data[0].Embedding))
		copy(embedding, resp.Data[0].Embedding)
		return nil
	})

	if err != nil {
		return nil, err
	}

	return embedding, nil
}

// classifyError separates errors worth retrying (rate limits, upstream
// outages, transport failures) from permanent ones (bad request, auth),
// which fail the call on the first attempt.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 502, 503, 504:
			return fmt.Errorf("%w: %v", errTransient, err)
		}
		return err
	}
	return fmt.Errorf("%w: %v", errTransient, err)
}
