package models

import (
	"time"

	"github.com/docqa/backend/internal/domain"
)

type Document struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Fragment is an immutable unit of embedded content. Re-analysis of a
// document appends new fragments rather than mutating existing ones.
type Fragment struct {
	ID         string
	DocumentID string
	Text       string
	Kind       domain.FragmentKind
	Embedding  []float32
	CreatedAt  time.Time
}

// CachedQA is a previously answered question, retrievable by embedding
// proximity within the same document.
type CachedQA struct {
	ID                string
	DocumentID        string
	QuestionText      string
	QuestionEmbedding []float32
	AnswerText        string
	ConfidenceScore   float64
	CreatedAt         time.Time
}

// QueryRecord is an answered-question audit row: provenance (cached or
// freshly generated) and latency accounting.
type QueryRecord struct {
	ID           string
	DocumentID   string
	QuestionText string
	AnswerText   string
	Confidence   float64
	Cached       bool
	NoEvidence   bool
	LatencyMS    int
	CreatedAt    time.Time
}
