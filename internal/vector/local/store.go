// Package local implements the fragment store as a brute-force cosine scan
// over per-document in-memory indexes, persisted write-through to sqlite.
package local

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/docqa/backend/internal/domain"
	"github.com/docqa/backend/internal/storage/models"
	"github.com/docqa/backend/internal/storage/sqlite"
	"github.com/docqa/backend/internal/vector"
	"github.com/docqa/backend/pkg/logger"
	"github.com/docqa/backend/pkg/utils"
)

type Store struct {
	db *sqlite.Client // nil means ephemeral, in-memory only

	mu   sync.RWMutex
	dim  int // 0 until the first insert establishes it
	docs map[string]map[string]models.Fragment

	// Writes to the same document's fragment set are serialized to prevent
	// lost updates during concurrent ingestion.
	lockMu   sync.Mutex
	docLocks map[string]*sync.Mutex
}

// NewStore builds a store backed by db. Pass nil for a purely in-memory
// store; otherwise the index is rebuilt from the fragments table.
func NewStore(db *sqlite.Client) (*Store, error) {
	s := &Store{
		db:       db,
		docs:     make(map[string]map[string]models.Fragment),
		docLocks: make(map[string]*sync.Mutex),
	}

	if db != nil {
		fragments, err := db.ListAllFragments()
		if err != nil {
			return nil, fmt.Errorf("failed to load fragments: %w", err)
		}

		for _, f := range fragments {
			if s.dim == 0 {
				s.dim = len(f.Embedding)
			} else if len(f.Embedding) != s.dim {
				return nil, fmt.Errorf("%w: fragment %s has dim %d, store has %d",
					domain.ErrDimensionMismatch, f.ID, len(f.Embedding), s.dim)
			}
			byID, ok := s.docs[f.DocumentID]
			if !ok {
				byID = make(map[string]models.Fragment)
				s.docs[f.DocumentID] = byID
			}
			byID[f.ID] = f
		}

		logger.Info("Vector store loaded",
			zap.Int("fragments", len(fragments)),
			zap.Int("documents", len(s.docs)),
			zap.Int("dim", s.dim),
		)
	}

	return s, nil
}

func (s *Store) docLock(documentID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	l, ok := s.docLocks[documentID]
	if !ok {
		l = &sync.Mutex{}
		s.docLocks[documentID] = l
	}
	return l
}

func (s *Store) Upsert(ctx context.Context, fragment models.Fragment) error {
	if fragment.ID == "" || fragment.DocumentID == "" {
		return fmt.Errorf("%w: fragment id and document id are required", domain.ErrInvalidArgument)
	}
	if len(fragment.Embedding) == 0 {
		return fmt.Errorf("%w: fragment embedding is empty", domain.ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := s.docLock(fragment.DocumentID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	if s.dim == 0 {
		s.dim = len(fragment.Embedding)
	} else if len(fragment.Embedding) != s.dim {
		dim := s.dim
		s.mu.Unlock()
		return fmt.Errorf("%w: got %d, store established %d",
			domain.ErrDimensionMismatch, len(fragment.Embedding), dim)
	}
	s.mu.Unlock()

	if s.db != nil {
		if err := s.db.UpsertFragment(&fragment); err != nil {
			return err
		}
	}

	s.mu.Lock()
	byID, ok := s.docs[fragment.DocumentID]
	if !ok {
		byID = make(map[string]models.Fragment)
		s.docs[fragment.DocumentID] = byID
	}
	byID[fragment.ID] = fragment
	s.mu.Unlock()

	logger.Debug("Fragment upserted",
		zap.String("fragment_id", fragment.ID),
		zap.String("document_id", fragment.DocumentID),
		zap.String("kind", string(fragment.Kind)),
	)

	return nil
}

func (s *Store) Search(ctx context.Context, documentID string, queryEmbedding []float32, k int) ([]vector.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidArgument, k)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dim != 0 && len(queryEmbedding) != s.dim {
		return nil, fmt.Errorf("%w: query has dim %d, store established %d",
			domain.ErrDimensionMismatch, len(queryEmbedding), s.dim)
	}

	byID, ok := s.docs[documentID]
	if !ok {
		return []vector.SearchResult{}, nil
	}

	results := make([]vector.SearchResult, 0, len(byID))
	for _, f := range byID {
		results = append(results, vector.SearchResult{
			FragmentID: f.ID,
			Score:      utils.CosineSimilarity(queryEmbedding, f.Embedding),
			Text:       f.Text,
			Kind:       f.Kind,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].FragmentID < results[j].FragmentID
	})

	if len(results) > k {
		results = results[:k]
	}

	return results, nil
}

func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := s.docLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	if s.db != nil {
		if err := s.db.DeleteFragments(documentID); err != nil {
			return err
		}
	}

	s.mu.Lock()
	count := len(s.docs[documentID])
	delete(s.docs, documentID)
	s.mu.Unlock()

	if count > 0 {
		logger.Info("Document fragments deleted",
			zap.String("document_id", documentID),
			zap.Int("fragments", count),
		)
	}

	return nil
}
