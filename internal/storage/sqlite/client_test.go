package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docqa/backend/internal/domain"
	"github.com/docqa/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	c, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	require.NoError(t, c.InitSchema())
	return c
}

func TestInitSchema_Idempotent(t *testing.T) {
	c := newTestClient(t)
	require.NoError(t, c.InitSchema())
}

func TestFragmentRoundTrip(t *testing.T) {
	c := newTestClient(t)

	f := &models.Fragment{
		ID:         "f1",
		DocumentID: "d1",
		Text:       "the intake step validates the request",
		Kind:       domain.KindFlowchart,
		Embedding:  []float32{0.1, -0.5, 2.25},
		CreatedAt:  time.Now(),
	}
	require.NoError(t, c.UpsertFragment(f))

	got, err := c.ListFragments("d1")
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, f.ID, got[0].ID)
	assert.Equal(t, f.Text, got[0].Text)
	assert.Equal(t, domain.KindFlowchart, got[0].Kind)
	assert.Equal(t, f.Embedding, got[0].Embedding)
}

func TestUpsertFragment_ReplacesByID(t *testing.T) {
	c := newTestClient(t)

	f := &models.Fragment{
		ID:         "f1",
		DocumentID: "d1",
		Text:       "original",
		Kind:       domain.KindText,
		Embedding:  []float32{1, 0},
		CreatedAt:  time.Now(),
	}
	require.NoError(t, c.UpsertFragment(f))

	f.Text = "replaced"
	f.Embedding = []float32{0, 1}
	require.NoError(t, c.UpsertFragment(f))

	got, err := c.ListFragments("d1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "replaced", got[0].Text)
	assert.Equal(t, []float32{0, 1}, got[0].Embedding)
}

func TestDeleteFragments_ScopedToDocument(t *testing.T) {
	c := newTestClient(t)

	for _, docID := range []string{"d1", "d2"} {
		require.NoError(t, c.UpsertFragment(&models.Fragment{
			ID:         docID + "-f",
			DocumentID: docID,
			Text:       "content",
			Kind:       domain.KindText,
			Embedding:  []float32{1},
			CreatedAt:  time.Now(),
		}))
	}

	require.NoError(t, c.DeleteFragments("d1"))

	got, err := c.ListFragments("d1")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = c.ListFragments("d2")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCachedQARoundTrip(t *testing.T) {
	c := newTestClient(t)

	entry := &models.CachedQA{
		ID:                "qa1",
		DocumentID:        "d1",
		QuestionText:      "what happens first?",
		QuestionEmbedding: []float32{0.3, 0.7},
		AnswerText:        "the intake step runs",
		ConfidenceScore:   0.85,
		CreatedAt:         time.Now(),
	}
	require.NoError(t, c.InsertCachedQA(entry))

	got, err := c.ListCachedQA("d1")
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, entry.QuestionText, got[0].QuestionText)
	assert.Equal(t, entry.QuestionEmbedding, got[0].QuestionEmbedding)
	assert.Equal(t, entry.AnswerText, got[0].AnswerText)
	assert.Equal(t, entry.ConfidenceScore, got[0].ConfidenceScore)

	require.NoError(t, c.DeleteCachedQAForDocument("d1"))
	got, err = c.ListCachedQA("d1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQueryHistory_NewestFirst(t *testing.T) {
	c := newTestClient(t)

	base := time.Now().Add(-time.Hour)
	for i, q := range []string{"first", "second", "third"} {
		require.NoError(t, c.InsertQueryRecord(&models.QueryRecord{
			ID:           q,
			DocumentID:   "d1",
			QuestionText: q,
			AnswerText:   "a",
			Confidence:   0.5,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	records, err := c.GetQueryHistory("d1", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "third", records[0].QuestionText)
	assert.Equal(t, "second", records[1].QuestionText)
}

func TestCounts_ScopedToDocument(t *testing.T) {
	c := newTestClient(t)

	for i, docID := range []string{"d1", "d1", "d2"} {
		require.NoError(t, c.UpsertFragment(&models.Fragment{
			ID:         string(rune('a' + i)),
			DocumentID: docID,
			Text:       "content",
			Kind:       domain.KindText,
			Embedding:  []float32{1},
			CreatedAt:  time.Now(),
		}))
	}
	require.NoError(t, c.InsertCachedQA(&models.CachedQA{
		ID:                "qa1",
		DocumentID:        "d1",
		QuestionText:      "q",
		QuestionEmbedding: []float32{1},
		AnswerText:        "a",
		ConfidenceScore:   0.5,
		CreatedAt:         time.Now(),
	}))

	fragments, err := c.CountFragments("d1")
	require.NoError(t, err)
	assert.Equal(t, 2, fragments)

	cached, err := c.CountCachedQA("d1")
	require.NoError(t, err)
	assert.Equal(t, 1, cached)

	fragments, err = c.CountFragments("missing")
	require.NoError(t, err)
	assert.Zero(t, fragments)
}

func TestDecodeEmbedding_DimensionMismatch(t *testing.T) {
	blob := encodeEmbedding([]float32{1, 2, 3})

	_, err := decodeEmbedding(blob, 4)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	vec, err := decodeEmbedding(blob, 3)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vec)
}
