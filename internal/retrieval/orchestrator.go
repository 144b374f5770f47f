// Package retrieval drives a question through embedding, cache lookup,
// vector search, context assembly, and generation.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docqa/backend/internal/domain"
	"github.com/docqa/backend/internal/generation"
	"github.com/docqa/backend/internal/metrics"
	"github.com/docqa/backend/internal/storage/models"
	"github.com/docqa/backend/internal/vector"
	"github.com/docqa/backend/pkg/logger"
)

// ErrCannotAnswer is the single user-facing failure category. The precise
// internal kind is logged, never surfaced.
var ErrCannotAnswer = errors.New("could not answer the question")

// NoEvidenceNotice flags answers produced without any supporting fragments.
const NoEvidenceNotice = "no supporting evidence found"

type State string

const (
	StateReceived           State = "RECEIVED"
	StateEmbedding          State = "EMBEDDING"
	StateCacheCheck         State = "CACHE_CHECK"
	StateSearching          State = "SEARCHING"
	StateContextAssembly    State = "CONTEXT_ASSEMBLY"
	StateAwaitingGeneration State = "AWAITING_GENERATION"
	StateCacheWrite         State = "CACHE_WRITE"
	StateDone               State = "DONE"
	StateFailed             State = "FAILED"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Searcher interface {
	Search(ctx context.Context, documentID string, queryEmbedding []float32, k int) ([]vector.SearchResult, error)
}

type AnswerCache interface {
	Lookup(ctx context.Context, documentID string, questionEmbedding []float32, threshold float64) (*models.CachedQA, error)
	Store(ctx context.Context, documentID, questionText string, questionEmbedding []float32, answerText string, confidence float64) (*models.CachedQA, error)
	DefaultThreshold() float64
}

type Generator interface {
	GenerateAnswer(ctx context.Context, questionText, contextPayload string) (*generation.Result, error)
}

// HistoryWriter records answered questions for audit. Optional.
type HistoryWriter interface {
	InsertQueryRecord(record *models.QueryRecord) error
}

type Config struct {
	TopK          int
	ContextBudget int
}

type Orchestrator struct {
	embedder  Embedder
	searcher  Searcher
	cache     AnswerCache
	generator Generator
	history   HistoryWriter // may be nil
	cfg       Config
}

// Answer is the outcome of one query: the text, its provenance (cached vs
// freshly generated), and latency accounting.
type Answer struct {
	QueryID      string
	DocumentID   string
	QuestionText string
	AnswerText   string
	Confidence   float64
	Cached       bool
	NoEvidence   bool
	Sources      []vector.SearchResult
	LatencyMS    int
	GenerationMS int
}

func NewOrchestrator(embedder Embedder, searcher Searcher, cache AnswerCache, generator Generator, history HistoryWriter, cfg Config) *Orchestrator {
	if cfg.TopK == 0 {
		cfg.TopK = 5
	}
	if cfg.ContextBudget == 0 {
		cfg.ContextBudget = 6000
	}

	return &Orchestrator{
		embedder:  embedder,
		searcher:  searcher,
		cache:     cache,
		generator: generator,
		history:   history,
		cfg:       cfg,
	}
}

type query struct {
	id    string
	state State
}

func (q *query) transition(to State) {
	logger.Debug("Query state transition",
		zap.String("query_id", q.id),
		zap.String("from", string(q.state)),
		zap.String("to", string(to)),
	)
	q.state = to
}

// Answer runs the query state machine for one question. Cache hits return
// immediately with zero generation latency attributed; misses retrieve
// top-K fragments, assemble a budgeted context payload, call the generator,
// and write the fresh answer back into the cache before returning.
func (o *Orchestrator) Answer(ctx context.Context, documentID, questionText string) (*Answer, error) {
	startTime := time.Now()
	q := &query{id: uuid.New().String(), state: StateReceived}

	logger.Info("Processing question",
		zap.String("query_id", q.id),
		zap.String("document_id", documentID),
	)

	if documentID == "" || strings.TrimSpace(questionText) == "" {
		return nil, fmt.Errorf("%w: document id and question text are required", domain.ErrInvalidArgument)
	}

	q.transition(StateEmbedding)
	questionEmbedding, err := o.embedder.Embed(ctx, questionText)
	if err != nil {
		return nil, o.fail(q, "embed question", err)
	}

	q.transition(StateCacheCheck)
	hit, err := o.cache.Lookup(ctx, documentID, questionEmbedding, o.cache.DefaultThreshold())
	if err != nil {
		return nil, o.fail(q, "cache lookup", err)
	}

	if hit != nil {
		q.transition(StateDone)
		metrics.CacheHits.Inc()
		latency := int(time.Since(startTime).Milliseconds())

		answer := &Answer{
			QueryID:      q.id,
			DocumentID:   documentID,
			QuestionText: questionText,
			AnswerText:   hit.AnswerText,
			Confidence:   hit.ConfidenceScore,
			Cached:       true,
			LatencyMS:    latency,
			GenerationMS: 0,
		}
		o.record(answer)
		o.observe(answer, "cached")

		logger.Info("Question answered from cache",
			zap.String("query_id", q.id),
			zap.String("cache_entry", hit.ID),
			zap.Int("latency_ms", latency),
		)

		return answer, nil
	}
	metrics.CacheMisses.Inc()

	q.transition(StateSearching)
	results, err := o.searcher.Search(ctx, documentID, questionEmbedding, o.cfg.TopK)
	if err != nil {
		return nil, o.fail(q, "vector search", err)
	}
	metrics.FragmentsRetrieved.Observe(float64(len(results)))

	q.transition(StateContextAssembly)
	contextPayload, used := AssembleContext(results, o.cfg.ContextBudget)
	noEvidence := len(results) == 0

	q.transition(StateAwaitingGeneration)
	genStart := time.Now()
	generated, err := o.generator.GenerateAnswer(ctx, questionText, contextPayload)
	if err != nil {
		return nil, o.fail(q, "generate answer", err)
	}
	generationMS := int(time.Since(genStart).Milliseconds())

	q.transition(StateCacheWrite)
	_, err = o.cache.Store(ctx, documentID, questionText, questionEmbedding, generated.AnswerText, generated.ConfidenceScore)
	if err != nil {
		return nil, o.fail(q, "cache write", err)
	}

	q.transition(StateDone)
	latency := int(time.Since(startTime).Milliseconds())

	answer := &Answer{
		QueryID:      q.id,
		DocumentID:   documentID,
		QuestionText: questionText,
		AnswerText:   generated.AnswerText,
		Confidence:   generated.ConfidenceScore,
		Cached:       false,
		NoEvidence:   noEvidence,
		Sources:      results[:used],
		LatencyMS:    latency,
		GenerationMS: generationMS,
	}
	o.record(answer)
	o.observe(answer, "generated")

	logger.Info("Question answered",
		zap.String("query_id", q.id),
		zap.Int("fragments_used", used),
		zap.Bool("no_evidence", noEvidence),
		zap.Float64("confidence", answer.Confidence),
		zap.Int("latency_ms", latency),
	)

	return answer, nil
}

// fail moves the query to FAILED, logs the originating error, and collapses
// it into the single user-facing category. Caller mistakes and cancellation
// pass through unchanged.
func (o *Orchestrator) fail(q *query, step string, err error) error {
	q.transition(StateFailed)
	metrics.QueryTotal.WithLabelValues("failed").Inc()

	logger.Error("Query failed",
		zap.String("query_id", q.id),
		zap.String("step", step),
		zap.Error(err),
	)

	if errors.Is(err, domain.ErrInvalidArgument) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return fmt.Errorf("%w: %s", ErrCannotAnswer, step)
}

func (o *Orchestrator) record(a *Answer) {
	if o.history == nil {
		return
	}

	err := o.history.InsertQueryRecord(&models.QueryRecord{
		ID:           a.QueryID,
		DocumentID:   a.DocumentID,
		QuestionText: a.QuestionText,
		AnswerText:   a.AnswerText,
		Confidence:   a.Confidence,
		Cached:       a.Cached,
		NoEvidence:   a.NoEvidence,
		LatencyMS:    a.LatencyMS,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		logger.Warn("Failed to record query history", zap.String("query_id", a.QueryID), zap.Error(err))
	}
}

func (o *Orchestrator) observe(a *Answer, outcome string) {
	metrics.QueryTotal.WithLabelValues("ok").Inc()
	metrics.QueryDuration.WithLabelValues(outcome).Observe(float64(a.LatencyMS) / 1000)
	metrics.ConfidenceScore.Observe(a.Confidence)
}

// AssembleContext concatenates fragment texts in descending similarity
// order until the next fragment would exceed the budget; that fragment and
// all lower-ranked ones are dropped whole, never truncated mid-fragment.
// Returns the payload and how many fragments it contains.
func AssembleContext(results []vector.SearchResult, budget int) (string, int) {
	const separator = "\n\n"

	var b strings.Builder
	used := 0

	for _, r := range results {
		cost := len(r.Text)
		if used > 0 {
			cost += len(separator)
		}
		if b.Len()+cost > budget {
			break
		}
		if used > 0 {
			b.WriteString(separator)
		}
		b.WriteString(r.Text)
		used++
	}

	return b.String(), used
}
