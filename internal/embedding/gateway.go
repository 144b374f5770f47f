// Package embedding wraps the external embedding capability with batching,
// retry, truncation, and optional memoization.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/docqa/backend/internal/domain"
	"github.com/docqa/backend/internal/metrics"
	"github.com/docqa/backend/pkg/logger"
	"github.com/docqa/backend/pkg/retry"
	"github.com/docqa/backend/pkg/utils"
)

// Upstream is the external text → vector capability. Model and
// dimensionality are configured on the implementation, not here.
type Upstream interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// MemoCache memoizes embeddings by text hash. Implementations must treat a
// miss as (nil, false, nil).
type MemoCache interface {
	Get(ctx context.Context, textHash string) ([]float32, bool, error)
	Set(ctx context.Context, textHash string, embedding []float32) error
}

type Config struct {
	MaxTextLen  int
	MaxAttempts int
	Timeout     time.Duration
	Workers     int
}

type Gateway struct {
	upstream Upstream
	memo     MemoCache // may be nil
	cfg      Config
	retryCfg retry.Config
}

// BatchResult is one slot of an EmbedBatch response, at the same index as
// its input text. A failed item carries Err and a nil embedding.
type BatchResult struct {
	Embedding []float32
	Err       error
}

func NewGateway(upstream Upstream, memo MemoCache, cfg Config) *Gateway {
	if cfg.MaxTextLen == 0 {
		cfg.MaxTextLen = 8192
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Workers == 0 {
		cfg.Workers = 4
	}

	return &Gateway{
		upstream: upstream,
		memo:     memo,
		cfg:      cfg,
		retryCfg: retry.Config{
			MaxAttempts:    cfg.MaxAttempts,
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

var errTransient = errors.New("transient embedding error")

// Embed returns the embedding for text. Over-long input is truncated at the
// same rune boundary every call and reported as a warning, not an error.
// Transient upstream failures are retried with exponential backoff; once
// attempts are exhausted the call fails with domain.ErrEmbeddingUnavailable.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is empty", domain.ErrInvalidArgument)
	}

	text = g.truncate(text)

	key := utils.HashText(text)
	if g.memo != nil {
		if vec, ok, err := g.memo.Get(ctx, key); err == nil && ok {
			logger.Debug("Embedding memo hit", zap.String("text_hash", key))
			return vec, nil
		} else if err != nil {
			logger.Warn("Embedding memo lookup failed", zap.Error(err))
		}
	}

	var embedding []float32

	err := retry.Do(ctx, g.retryCfg, func() error {
		callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()

		vec, err := g.upstream.Embed(callCtx, text)
		if err != nil {
			return err
		}
		embedding = vec
		return nil
	})

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
	}

	if g.memo != nil {
		if err := g.memo.Set(ctx, key, embedding); err != nil {
			logger.Warn("Embedding memo write failed", zap.Error(err))
		}
	}

	return embedding, nil
}

// EmbedBatch embeds every text concurrently through a bounded worker pool
// and returns results in input order. A single item's failure yields a
// marker result without aborting its siblings.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) []BatchResult {
	results := make([]BatchResult, len(texts))
	if len(texts) == 0 {
		return results
	}

	sem := make(chan struct{}, g.cfg.Workers)
	var wg sync.WaitGroup

	for i, text := range texts {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, text string) {
			defer wg.Done()
			defer func() { <-sem }()

			vec, err := g.Embed(ctx, text)
			if err != nil {
				metrics.EmbeddingFailures.Inc()
				logger.Warn("Batch item failed to embed",
					zap.Int("index", i),
					zap.Error(err),
				)
				results[i] = BatchResult{Err: err}
				return
			}
			results[i] = BatchResult{Embedding: vec}
		}(i, text)
	}

	wg.Wait()

	return results
}

func (g *Gateway) truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= g.cfg.MaxTextLen {
		return text
	}

	metrics.EmbeddingTruncations.Inc()
	logger.Warn("Text truncated before embedding",
		zap.Int("original_len", len(runes)),
		zap.Int("max_len", g.cfg.MaxTextLen),
	)

	return string(runes[:g.cfg.MaxTextLen])
}
