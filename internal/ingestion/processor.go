// Package ingestion turns analyzed document fragments into embedded,
// searchable vector store entries.
package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docqa/backend/internal/domain"
	"github.com/docqa/backend/internal/embedding"
	"github.com/docqa/backend/internal/metrics"
	"github.com/docqa/backend/internal/storage/models"
	"github.com/docqa/backend/internal/storage/sqlite"
	"github.com/docqa/backend/internal/vector"
	"github.com/docqa/backend/pkg/logger"
)

// FragmentInput is one unit of analyzed content handed in by the upstream
// document pipeline: plain text plus what kind of content produced it.
type FragmentInput struct {
	Text string
	Kind domain.FragmentKind
}

// Report summarizes one ingestion run. Failed items are skipped, not fatal.
type Report struct {
	DocumentID string
	Ingested   int
	Skipped    int
}

// AnswerCache is the slice of the similarity cache ingestion needs: dropping
// a document's cached answers when the document goes away.
type AnswerCache interface {
	PurgeDocument(ctx context.Context, documentID string) error
}

type Processor struct {
	db       *sqlite.Client // may be nil for ephemeral stores
	store    vector.Store
	embedder *embedding.Gateway
	cache    AnswerCache // may be nil
}

func NewProcessor(db *sqlite.Client, store vector.Store, embedder *embedding.Gateway, cache AnswerCache) *Processor {
	return &Processor{
		db:       db,
		store:    store,
		embedder: embedder,
		cache:    cache,
	}
}

// IngestFragments embeds a batch of fragments and upserts them into the
// vector store under the given document. Items whose embedding fails are
// skipped so one bad fragment cannot sink the batch; the report says how
// many made it in.
func (p *Processor) IngestFragments(ctx context.Context, documentID, title string, inputs []FragmentInput) (*Report, error) {
	if documentID == "" {
		return nil, fmt.Errorf("%w: document id is required", domain.ErrInvalidArgument)
	}

	logger.Info("Ingesting fragments",
		zap.String("document_id", documentID),
		zap.Int("count", len(inputs)),
	)

	texts := make([]string, len(inputs))
	for i, in := range inputs {
		if strings.TrimSpace(in.Text) == "" {
			return nil, fmt.Errorf("%w: fragment %d has empty text", domain.ErrInvalidArgument, i)
		}
		texts[i] = in.Text
	}

	if p.db != nil {
		now := time.Now()
		err := p.db.UpsertDocument(&models.Document{
			ID:        documentID,
			Title:     title,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to upsert document: %w", err)
		}
	}

	results := p.embedder.EmbedBatch(ctx, texts)

	report := &Report{DocumentID: documentID}
	for i, res := range results {
		if res.Err != nil {
			logger.Warn("Skipping fragment, embedding failed",
				zap.String("document_id", documentID),
				zap.Int("index", i),
				zap.Error(res.Err),
			)
			report.Skipped++
			continue
		}

		fragment := models.Fragment{
			ID:         uuid.New().String(),
			DocumentID: documentID,
			Text:       inputs[i].Text,
			Kind:       inputs[i].Kind,
			Embedding:  res.Embedding,
			CreatedAt:  time.Now(),
		}

		if err := p.store.Upsert(ctx, fragment); err != nil {
			return report, fmt.Errorf("failed to store fragment %d: %w", i, err)
		}
		report.Ingested++
	}

	metrics.DocumentsIngested.Inc()
	metrics.FragmentsIngested.Add(float64(report.Ingested))

	logger.Info("Fragments ingested",
		zap.String("document_id", documentID),
		zap.Int("ingested", report.Ingested),
		zap.Int("skipped", report.Skipped),
	)

	return report, nil
}

// RemoveDocument deletes a document's fragments from the vector store and,
// when persistence is enabled, its rows and cached answers. Idempotent.
func (p *Processor) RemoveDocument(ctx context.Context, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("%w: document id is required", domain.ErrInvalidArgument)
	}

	if err := p.store.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete document vectors: %w", err)
	}

	if p.cache != nil {
		if err := p.cache.PurgeDocument(ctx, documentID); err != nil {
			return fmt.Errorf("failed to purge cached answers: %w", err)
		}
	}

	if p.db != nil {
		if err := p.db.DeleteFragments(documentID); err != nil {
			return fmt.Errorf("failed to delete fragment rows: %w", err)
		}
	}

	logger.Info("Document removed", zap.String("document_id", documentID))
	return nil
}
