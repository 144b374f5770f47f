package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docqa/backend/internal/domain"
)

type fakeUpstream struct {
	mu       sync.Mutex
	calls    int
	seen     []string
	failures int // fail this many calls before succeeding
	failWith error
}

func (f *fakeUpstream) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.seen = append(f.seen, text)

	if f.failures > 0 {
		f.failures--
		if f.failWith != nil {
			return nil, f.failWith
		}
		return nil, fmt.Errorf("%w: rate limited", errTransient)
	}

	return []float32{float32(len(text)), 1, 0}, nil
}

type fakeMemo struct {
	mu    sync.Mutex
	store map[string][]float32
}

func newFakeMemo() *fakeMemo {
	return &fakeMemo{store: make(map[string][]float32)}
}

func (m *fakeMemo) Get(ctx context.Context, key string) ([]float32, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vec, ok := m.store[key]
	return vec, ok, nil
}

func (m *fakeMemo) Set(ctx context.Context, key string, vec []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[key] = vec
	return nil
}

func testConfig() Config {
	return Config{
		MaxTextLen:  50,
		MaxAttempts: 3,
		Timeout:     time.Second,
		Workers:     2,
	}
}

func TestEmbed_EmptyText(t *testing.T) {
	g := NewGateway(&fakeUpstream{}, nil, testConfig())

	_, err := g.Embed(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = g.Embed(context.Background(), "   \n\t ")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestEmbed_Success(t *testing.T) {
	up := &fakeUpstream{}
	g := NewGateway(up, nil, testConfig())

	vec, err := g.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.Equal(t, 1, up.calls)
}

func TestEmbed_TransientFailuresMasked(t *testing.T) {
	// fails twice, succeeds on the third attempt within the ceiling
	up := &fakeUpstream{failures: 2}
	g := NewGateway(up, nil, testConfig())

	vec, err := g.Embed(context.Background(), "flaky upstream")
	require.NoError(t, err)
	assert.NotEmpty(t, vec)
	assert.Equal(t, 3, up.calls)
}

func TestEmbed_ExhaustedAttempts(t *testing.T) {
	up := &fakeUpstream{failures: 100}
	g := NewGateway(up, nil, testConfig())

	_, err := g.Embed(context.Background(), "always down")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.Equal(t, 3, up.calls)
}

func TestEmbed_PermanentErrorNotRetried(t *testing.T) {
	up := &fakeUpstream{failures: 100, failWith: errors.New("invalid api key")}
	g := NewGateway(up, nil, testConfig())

	_, err := g.Embed(context.Background(), "rejected outright")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.Equal(t, 1, up.calls, "a permanent upstream error must fail on the first attempt")
}

func TestEmbed_TruncationDeterministic(t *testing.T) {
	up := &fakeUpstream{}
	g := NewGateway(up, nil, testConfig())

	long := strings.Repeat("a", 200) + strings.Repeat("b", 200)

	_, err := g.Embed(context.Background(), long)
	require.NoError(t, err)
	_, err = g.Embed(context.Background(), long)
	require.NoError(t, err)

	require.Len(t, up.seen, 2)
	assert.Equal(t, up.seen[0], up.seen[1])
	assert.Len(t, []rune(up.seen[0]), 50)
}

func TestEmbed_MemoShortCircuitsUpstream(t *testing.T) {
	up := &fakeUpstream{}
	g := NewGateway(up, newFakeMemo(), testConfig())

	first, err := g.Embed(context.Background(), "memoized")
	require.NoError(t, err)

	second, err := g.Embed(context.Background(), "memoized")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, up.calls)
}

func TestEmbedBatch_PreservesOrder(t *testing.T) {
	g := NewGateway(&fakeUpstream{}, nil, testConfig())

	texts := []string{"a", "bb", "ccc", "dddd"}
	results := g.EmbedBatch(context.Background(), texts)

	require.Len(t, results, 4)
	for i, r := range results {
		require.NoError(t, r.Err)
		// fake embeds text length into the first component
		assert.Equal(t, float32(len(texts[i])), r.Embedding[0])
	}
}

func TestEmbedBatch_PartialFailure(t *testing.T) {
	g := NewGateway(&fakeUpstream{}, nil, testConfig())

	results := g.EmbedBatch(context.Background(), []string{"ok", "", "also ok"})

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, domain.ErrInvalidArgument)
	assert.Nil(t, results[1].Embedding)
	assert.NoError(t, results[2].Err)
}

func TestEmbedBatch_Empty(t *testing.T) {
	g := NewGateway(&fakeUpstream{}, nil, testConfig())
	assert.Empty(t, g.EmbedBatch(context.Background(), nil))
}

func TestClassifyError_RateLimitIsTransient(t *testing.T) {
	err := classifyError(&openai.APIError{HTTPStatusCode: 429})
	assert.ErrorIs(t, err, errTransient)
}

func TestClassifyError_BadRequestIsNot(t *testing.T) {
	err := classifyError(&openai.APIError{HTTPStatusCode: 400})
	assert.False(t, errors.Is(err, errTransient))
}

func TestClassifyError_TransportIsTransient(t *testing.T) {
	err := classifyError(errors.New("connection reset"))
	assert.ErrorIs(t, err, errTransient)
}
