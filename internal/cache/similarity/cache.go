// Package similarity maps previously answered questions to cached answers
// by embedding proximity, scoped per document.
package similarity

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docqa/backend/internal/domain"
	"github.com/docqa/backend/internal/storage/models"
	"github.com/docqa/backend/internal/storage/sqlite"
	"github.com/docqa/backend/pkg/logger"
	"github.com/docqa/backend/pkg/utils"
)

type Config struct {
	// DefaultThreshold is the cosine similarity a cached question must meet
	// to satisfy a new one.
	DefaultThreshold float64

	// MaxEntriesPerDoc caps cached entries per document, evicting
	// oldest-first. Zero means uncapped.
	MaxEntriesPerDoc int
}

type Cache struct {
	db  *sqlite.Client // nil means ephemeral, in-memory only
	cfg Config

	mu      sync.RWMutex
	entries map[string][]models.CachedQA // documentID -> entries, oldest first

	lockMu   sync.Mutex
	docLocks map[string]*sync.Mutex
}

func NewCache(db *sqlite.Client, cfg Config) (*Cache, error) {
	if cfg.DefaultThreshold == 0 {
		cfg.DefaultThreshold = 0.92
	}

	c := &Cache{
		db:       db,
		cfg:      cfg,
		entries:  make(map[string][]models.CachedQA),
		docLocks: make(map[string]*sync.Mutex),
	}

	if db != nil {
		all, err := db.ListAllCachedQA()
		if err != nil {
			return nil, fmt.Errorf("failed to load cached qa: %w", err)
		}
		for _, e := range all {
			c.entries[e.DocumentID] = append(c.entries[e.DocumentID], e)
		}
		for docID := range c.entries {
			sort.SliceStable(c.entries[docID], func(i, j int) bool {
				return c.entries[docID][i].CreatedAt.Before(c.entries[docID][j].CreatedAt)
			})
		}

		logger.Info("Similarity cache loaded",
			zap.Int("entries", len(all)),
			zap.Int("documents", len(c.entries)),
		)
	}

	return c, nil
}

func (c *Cache) docLock(documentID string) *sync.Mutex {
	c.lockMu.Lock()
	defer c.lockMu.Unlock()

	l, ok := c.docLocks[documentID]
	if !ok {
		l = &sync.Mutex{}
		c.docLocks[documentID] = l
	}
	return l
}

// DefaultThreshold exposes the configured threshold for callers that do not
// override it per lookup.
func (c *Cache) DefaultThreshold() float64 {
	return c.cfg.DefaultThreshold
}

// Lookup returns the highest-similarity entry for the document whose
// similarity to questionEmbedding meets or exceeds threshold, or nil on a
// miss. Equally similar entries are broken by most recent creation.
func (c *Cache) Lookup(ctx context.Context, documentID string, questionEmbedding []float32, threshold float64) (*models.CachedQA, error) {
	if len(questionEmbedding) == 0 {
		return nil, fmt.Errorf("%w: question embedding is empty", domain.ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var best *models.CachedQA
	var bestScore float64

	for i := range c.entries[documentID] {
		e := &c.entries[documentID][i]
		score := utils.CosineSimilarity(questionEmbedding, e.QuestionEmbedding)
		if score < threshold {
			continue
		}
		if best == nil || score > bestScore ||
			(score == bestScore && e.CreatedAt.After(best.CreatedAt)) {
			best = e
			bestScore = score
		}
	}

	if best == nil {
		return nil, nil
	}

	logger.Debug("Similarity cache hit",
		zap.String("document_id", documentID),
		zap.String("entry_id", best.ID),
		zap.Float64("score", bestScore),
	)

	// copy so callers cannot mutate the cached entry
	hit := *best
	return &hit, nil
}

// Store appends a new entry. Near-identical entries are not deduplicated;
// when a per-document cap is configured the oldest entries are evicted
// first. The entry is written atomically: all fields or none.
func (c *Cache) Store(ctx context.Context, documentID, questionText string, questionEmbedding []float32, answerText string, confidence float64) (*models.CachedQA, error) {
	if documentID == "" || questionText == "" {
		return nil, fmt.Errorf("%w: document id and question text are required", domain.ErrInvalidArgument)
	}
	if len(questionEmbedding) == 0 {
		return nil, fmt.Errorf("%w: question embedding is empty", domain.ErrInvalidArgument)
	}
	// an abandoned query must not leave a partially written entry; bail out
	// before the write, never during it
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entry := models.CachedQA{
		ID:                uuid.New().String(),
		DocumentID:        documentID,
		QuestionText:      questionText,
		QuestionEmbedding: append([]float32(nil), questionEmbedding...),
		AnswerText:        answerText,
		ConfidenceScore:   confidence,
		CreatedAt:         time.Now(),
	}

	lock := c.docLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	var evicted []string
	if c.cfg.MaxEntriesPerDoc > 0 {
		c.mu.RLock()
		existing := c.entries[documentID]
		if over := len(existing) + 1 - c.cfg.MaxEntriesPerDoc; over > 0 {
			for i := 0; i < over; i++ {
				evicted = append(evicted, existing[i].ID)
			}
		}
		c.mu.RUnlock()
	}

	if c.db != nil {
		if err := c.db.InsertCachedQA(&entry); err != nil {
			return nil, err
		}
		for _, id := range evicted {
			if err := c.db.DeleteCachedQA(id); err != nil {
				logger.Warn("Failed to evict cached qa", zap.String("entry_id", id), zap.Error(err))
			}
		}
	}

	c.mu.Lock()
	entries := c.entries[documentID]
	if n := len(evicted); n > 0 {
		entries = entries[n:]
	}
	c.entries[documentID] = append(entries, entry)
	c.mu.Unlock()

	if len(evicted) > 0 {
		logger.Debug("Similarity cache evicted oldest entries",
			zap.String("document_id", documentID),
			zap.Int("evicted", len(evicted)),
		)
	}

	return &entry, nil
}

// PurgeDocument drops every cached entry for a document. Idempotent.
func (c *Cache) PurgeDocument(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := c.docLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	if c.db != nil {
		if err := c.db.DeleteCachedQAForDocument(documentID); err != nil {
			return err
		}
	}

	c.mu.Lock()
	delete(c.entries, documentID)
	c.mu.Unlock()

	return nil
}
