package similarity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docqa/backend/internal/domain"
)

func newTestCache(t *testing.T, cfg Config) *Cache {
	t.Helper()
	c, err := NewCache(nil, cfg)
	require.NoError(t, err)
	return c
}

func TestStoreThenLookup_RoundTrip(t *testing.T) {
	c := newTestCache(t, Config{})
	ctx := context.Background()
	emb := []float32{0.2, 0.8, 0.1}

	stored, err := c.Store(ctx, "d1", "what is step one?", emb, "the intake step", 0.9)
	require.NoError(t, err)

	hit, err := c.Lookup(ctx, "d1", emb, 1.0)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, stored.ID, hit.ID)
	assert.Equal(t, "the intake step", hit.AnswerText)
	assert.Equal(t, 0.9, hit.ConfidenceScore)
}

func TestLookup_MissIsNil(t *testing.T) {
	c := newTestCache(t, Config{})

	hit, err := c.Lookup(context.Background(), "d1", []float32{1, 0}, 0.5)
	require.NoError(t, err)
	assert.Nil(t, hit)
}

func TestLookup_ThresholdBoundaries(t *testing.T) {
	c := newTestCache(t, Config{})
	ctx := context.Background()

	_, err := c.Store(ctx, "d1", "q", []float32{1, 0}, "a", 0.5)
	require.NoError(t, err)

	// threshold 1.0 only matches an exact-embedding duplicate
	hit, err := c.Lookup(ctx, "d1", []float32{1, 0}, 1.0)
	require.NoError(t, err)
	assert.NotNil(t, hit)

	hit, err = c.Lookup(ctx, "d1", []float32{1, 0.1}, 1.0)
	require.NoError(t, err)
	assert.Nil(t, hit)

	// threshold 0.0 matches any entry for the document
	hit, err = c.Lookup(ctx, "d1", []float32{0, 1}, 0.0)
	require.NoError(t, err)
	assert.NotNil(t, hit)
}

func TestLookup_ExactDuplicateAtThresholdOne(t *testing.T) {
	c := newTestCache(t, Config{})
	ctx := context.Background()

	// components whose norm computation is prone to rounding below 1.0
	emb := []float32{0.7, 0.7}

	stored, err := c.Store(ctx, "d1", "repeat question", emb, "repeat answer", 0.9)
	require.NoError(t, err)

	hit, err := c.Lookup(ctx, "d1", emb, 1.0)
	require.NoError(t, err)
	require.NotNil(t, hit, "identical embedding must match at threshold 1.0")
	assert.Equal(t, stored.ID, hit.ID)
}

func TestLookup_NearDuplicateAtThreshold(t *testing.T) {
	c := newTestCache(t, Config{})
	ctx := context.Background()

	// cosine(first, second) ≈ 0.9487: a hit at 0.92, a miss at 0.97
	first := []float32{1, 0}
	second := []float32{0.9, 0.3}

	_, err := c.Store(ctx, "d1", "original question", first, "original answer", 0.8)
	require.NoError(t, err)

	hit, err := c.Lookup(ctx, "d1", second, 0.92)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "original answer", hit.AnswerText)

	hit, err = c.Lookup(ctx, "d1", second, 0.97)
	require.NoError(t, err)
	assert.Nil(t, hit)
}

func TestLookup_ScopedToDocument(t *testing.T) {
	c := newTestCache(t, Config{})
	ctx := context.Background()
	emb := []float32{1, 0}

	_, err := c.Store(ctx, "d1", "q", emb, "a", 0.5)
	require.NoError(t, err)

	hit, err := c.Lookup(ctx, "d2", emb, 0.0)
	require.NoError(t, err)
	assert.Nil(t, hit)
}

func TestLookup_TieBreakPrefersMostRecent(t *testing.T) {
	c := newTestCache(t, Config{})
	ctx := context.Background()
	emb := []float32{1, 0}

	_, err := c.Store(ctx, "d1", "q", emb, "older", 0.5)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = c.Store(ctx, "d1", "q", emb, "newer", 0.5)
	require.NoError(t, err)

	hit, err := c.Lookup(ctx, "d1", emb, 0.9)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "newer", hit.AnswerText)
}

func TestStore_CapacityEvictsOldestFirst(t *testing.T) {
	c := newTestCache(t, Config{MaxEntriesPerDoc: 2})
	ctx := context.Background()

	_, err := c.Store(ctx, "d1", "q1", []float32{1, 0}, "first", 0.5)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = c.Store(ctx, "d1", "q2", []float32{0, 1}, "second", 0.5)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = c.Store(ctx, "d1", "q3", []float32{0.7, 0.7}, "third", 0.5)
	require.NoError(t, err)

	// the oldest entry is gone
	hit, err := c.Lookup(ctx, "d1", []float32{1, 0}, 0.999)
	require.NoError(t, err)
	assert.Nil(t, hit)

	hit, err = c.Lookup(ctx, "d1", []float32{0, 1}, 0.999)
	require.NoError(t, err)
	assert.NotNil(t, hit)
}

func TestStore_Validation(t *testing.T) {
	c := newTestCache(t, Config{})
	ctx := context.Background()

	_, err := c.Store(ctx, "", "q", []float32{1}, "a", 0.5)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = c.Store(ctx, "d1", "q", nil, "a", 0.5)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestStore_CancelledContextWritesNothing(t *testing.T) {
	c := newTestCache(t, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Store(ctx, "d1", "q", []float32{1, 0}, "a", 0.5)
	require.Error(t, err)

	hit, err := c.Lookup(context.Background(), "d1", []float32{1, 0}, 0.0)
	require.NoError(t, err)
	assert.Nil(t, hit)
}

func TestPurgeDocument(t *testing.T) {
	c := newTestCache(t, Config{})
	ctx := context.Background()
	emb := []float32{1, 0}

	_, err := c.Store(ctx, "d1", "q", emb, "a", 0.5)
	require.NoError(t, err)

	require.NoError(t, c.PurgeDocument(ctx, "d1"))
	require.NoError(t, c.PurgeDocument(ctx, "d1"))

	hit, err := c.Lookup(ctx, "d1", emb, 0.0)
	require.NoError(t, err)
	assert.Nil(t, hit)
}
