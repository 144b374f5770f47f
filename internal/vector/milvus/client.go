// Package milvus backs the fragment store contract with an external Milvus
// collection.
package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/docqa/backend/internal/domain"
	"github.com/docqa/backend/internal/storage/models"
	"github.com/docqa/backend/internal/vector"
	"github.com/docqa/backend/pkg/logger"
)

type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

func NewClient(endpoint, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewGrpcClient(
		context.Background(),
		endpoint,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) EnsureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Document fragment embeddings",
		Fields: []*entity.Field{
			{
				Name:       "fragment_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "document_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     "text",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "8192",
				},
			},
			{
				Name:     "kind",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "32",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.vectorDim),
				},
			},
			{
				Name:     "created_at",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	err = m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	err = m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = m.client.LoadCollection(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))

	return nil
}

func (m *Client) Upsert(ctx context.Context, fragment models.Fragment) error {
	if fragment.ID == "" || fragment.DocumentID == "" {
		return fmt.Errorf("%w: fragment id and document id are required", domain.ErrInvalidArgument)
	}
	if len(fragment.Embedding) != m.vectorDim {
		return fmt.Errorf("%w: got %d, collection configured for %d",
			domain.ErrDimensionMismatch, len(fragment.Embedding), m.vectorDim)
	}

	createdAt := fragment.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := m.client.Upsert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("fragment_id", []string{fragment.ID}),
		entity.NewColumnVarChar("document_id", []string{fragment.DocumentID}),
		entity.NewColumnVarChar("text", []string{fragment.Text}),
		entity.NewColumnVarChar("kind", []string{string(fragment.Kind)}),
		entity.NewColumnFloatVector("embedding", m.vectorDim, [][]float32{fragment.Embedding}),
		entity.NewColumnInt64("created_at", []int64{createdAt.Unix()}),
	)

	if err != nil {
		return fmt.Errorf("failed to upsert fragment: %w", err)
	}

	return nil
}

func (m *Client) Search(ctx context.Context, documentID string, queryEmbedding []float32, k int) ([]vector.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidArgument, k)
	}
	if len(queryEmbedding) != m.vectorDim {
		return nil, fmt.Errorf("%w: query has dim %d, collection configured for %d",
			domain.ErrDimensionMismatch, len(queryEmbedding), m.vectorDim)
	}

	expr := fmt.Sprintf(`document_id == "%s"`, documentID)

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		expr,
		[]string{"fragment_id", "text", "kind"},
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		"embedding",
		entity.COSINE,
		k,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]vector.SearchResult, 0)
	for _, sr := range searchResult {
		fragmentIDCol := sr.Fields.GetColumn("fragment_id")
		textCol := sr.Fields.GetColumn("text")
		kindCol := sr.Fields.GetColumn("kind")

		for i := 0; i < sr.ResultCount; i++ {
			fragmentID, _ := fragmentIDCol.Get(i)
			text, _ := textCol.Get(i)
			kind, _ := kindCol.Get(i)

			results = append(results, vector.SearchResult{
				FragmentID: fragmentID.(string),
				Score:      float64(sr.Scores[i]),
				Text:       text.(string),
				Kind:       domain.FragmentKind(kind.(string)),
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.String("document_id", documentID),
		zap.Int("k", k),
		zap.Int("results", len(results)),
	)

	return results, nil
}

func (m *Client) DeleteDocument(ctx context.Context, documentID string) error {
	expr := fmt.Sprintf(`document_id == "%s"`, documentID)

	err := m.client.Delete(ctx, m.collectionName, "", expr)
	if err != nil {
		return fmt.Errorf("failed to delete document fragments: %w", err)
	}

	logger.Info("Document fragments deleted", zap.String("document_id", documentID))
	return nil
}
