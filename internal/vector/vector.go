// Package vector defines the ranked-result contract of the fragment store.
package vector

import (
	"context"

	"github.com/docqa/backend/internal/domain"
	"github.com/docqa/backend/internal/storage/models"
)

// SearchResult is ephemeral, produced per query, ordered by descending
// similarity.
type SearchResult struct {
	FragmentID string
	Score      float64
	Text       string
	Kind       domain.FragmentKind
}

type Store interface {
	// Upsert inserts or replaces a fragment by id. The first insert
	// establishes the store's dimensionality; later mismatches fail with
	// domain.ErrDimensionMismatch and leave the store untouched.
	Upsert(ctx context.Context, fragment models.Fragment) error

	// Search returns up to k results restricted to the given document,
	// ordered by descending cosine similarity. Unknown or empty documents
	// yield an empty slice; k <= 0 fails with domain.ErrInvalidArgument.
	Search(ctx context.Context, documentID string, queryEmbedding []float32, k int) ([]SearchResult, error)

	// DeleteDocument removes every fragment of a document. Idempotent.
	DeleteDocument(ctx context.Context, documentID string) error
}
