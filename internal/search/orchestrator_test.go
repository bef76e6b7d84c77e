package search

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ideabank/internal/item"
	"github.com/fyrsmithlabs/ideabank/internal/vectorstore"
)

// mockEmbedder encodes each text as a distinct one-hot-ish vector.
type mockEmbedder struct {
	err error
}

func (m *mockEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = m.vectorFor(text)
	}
	return out, nil
}

func (m *mockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.vectorFor(text), nil
}

func (m *mockEmbedder) vectorFor(text string) []float32 {
	v := make([]float32, 4)
	for i, c := range text {
		v[i%4] += float32(c) / 1000.0
	}
	return v
}

// mockSearchStore serves canned fragments keyed by seed text and can
// fail a specific seed.
type mockSearchStore struct {
	vectorstore.Store

	results  map[string][]vectorstore.SearchResult
	failSeed string
	embedder *mockEmbedder
	calls    int
}

func (m *mockSearchStore) Search(ctx context.Context, collection string, vector []float32, k int, minScore float32) ([]vectorstore.SearchResult, error) {
	m.calls++
	for seed, results := range m.results {
		if vectorsEqual(vector, m.embedder.vectorFor(seed)) {
			if seed == m.failSeed {
				return nil, errors.New("index timeout")
			}
			return results, nil
		}
	}
	if m.failSeed != "" && vectorsEqual(vector, m.embedder.vectorFor(m.failSeed)) {
		return nil, errors.New("index timeout")
	}
	return nil, nil
}

func vectorsEqual(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func fragmentResult(id, content string, score float32, ts time.Time) vectorstore.SearchResult {
	return vectorstore.SearchResult{
		Document: vectorstore.Document{
			ID:      id,
			Content: content,
			Metadata: map[string]string{
				"conversation_id": id,
				"timestamp":       ts.Format(time.RFC3339),
			},
		},
		Score: score,
	}
}

func singleDayWindow() TimeWindow {
	start := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	return TimeWindow{Start: start, End: start.Add(24 * time.Hour)}
}

func newTestOrchestrator(t *testing.T, store vectorstore.Store, embedder *mockEmbedder) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(embedder, store, Config{}, nil)
	require.NoError(t, err)
	return o
}

func TestSearch_MergesAndDeduplicatesBySource(t *testing.T) {
	window := singleDayWindow()
	inWindow := window.Start.Add(2 * time.Hour)

	embedder := &mockEmbedder{}
	seeds := SeedsFor(item.TypeInsight)
	store := &mockSearchStore{
		embedder: embedder,
		results: map[string][]vectorstore.SearchResult{
			seeds[0]: {
				fragmentResult("conv-1", "we decided to use gRPC", 0.9, inWindow),
				fragmentResult("conv-2", "flaky test pain", 0.5, inWindow),
			},
			seeds[1]: {
				// Same source as conv-1 with a lower score: dropped.
				fragmentResult("conv-1", "we decided to use gRPC", 0.6, inWindow),
				fragmentResult("conv-3", "postmortem notes", 0.7, inWindow),
			},
		},
	}

	result, err := newTestOrchestrator(t, store, embedder).Search(context.Background(), window, item.TypeInsight)
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)

	require.Len(t, result.Fragments, 3)
	assert.Equal(t, "conv-1", result.Fragments[0].SourceID)
	assert.Equal(t, float32(0.9), result.Fragments[0].Score)
	assert.Equal(t, seeds[0], result.Fragments[0].Seed)
}

func TestSearch_PartialFailureYieldsWarning(t *testing.T) {
	window := singleDayWindow()
	inWindow := window.Start.Add(time.Hour)

	embedder := &mockEmbedder{}
	seeds := SeedsFor(item.TypeIdea)
	require.Len(t, seeds, 5)

	results := make(map[string][]vectorstore.SearchResult)
	for i, seed := range seeds[:4] {
		results[seed] = []vectorstore.SearchResult{
			fragmentResult(fmt.Sprintf("conv-%d", i), "fragment", 0.8, inWindow),
		}
	}
	store := &mockSearchStore{
		embedder: embedder,
		results:  results,
		failSeed: seeds[4],
	}

	result, err := newTestOrchestrator(t, store, embedder).Search(context.Background(), window, item.TypeIdea)
	require.NoError(t, err)

	assert.Len(t, result.Fragments, 4)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], seeds[4])
}

func TestSearch_AllSeedsFailedErrors(t *testing.T) {
	embedder := &mockEmbedder{err: errors.New("embedder down")}
	store := &mockSearchStore{embedder: &mockEmbedder{}}

	_, err := newTestOrchestrator(t, store, embedder).Search(context.Background(), singleDayWindow(), item.TypeIdea)
	assert.ErrorIs(t, err, ErrAllSeedsFailed)
}

func TestSearch_FiltersOutsideWindow(t *testing.T) {
	window := singleDayWindow()
	embedder := &mockEmbedder{}
	seeds := SeedsFor(item.TypeUseCase)
	store := &mockSearchStore{
		embedder: embedder,
		results: map[string][]vectorstore.SearchResult{
			seeds[0]: {
				fragmentResult("in", "inside window", 0.8, window.Start.Add(time.Hour)),
				fragmentResult("before", "too old", 0.9, window.Start.Add(-time.Hour)),
				fragmentResult("after", "too new", 0.9, window.End.Add(time.Hour)),
			},
		},
	}

	result, err := newTestOrchestrator(t, store, embedder).Search(context.Background(), window, item.TypeUseCase)
	require.NoError(t, err)
	require.Len(t, result.Fragments, 1)
	assert.Equal(t, "in", result.Fragments[0].SourceID)
}

func TestSearch_RejectsInvalidWindow(t *testing.T) {
	embedder := &mockEmbedder{}
	store := &mockSearchStore{embedder: embedder}
	o := newTestOrchestrator(t, store, embedder)

	_, err := o.Search(context.Background(), TimeWindow{}, item.TypeIdea)
	assert.ErrorIs(t, err, ErrInvalidWindow)

	now := time.Now()
	_, err = o.Search(context.Background(), TimeWindow{Start: now, End: now.Add(-time.Hour)}, item.TypeIdea)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestSearch_CancelledContext(t *testing.T) {
	embedder := &mockEmbedder{}
	store := &mockSearchStore{embedder: embedder}
	o := newTestOrchestrator(t, store, embedder)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Search(ctx, singleDayWindow(), item.TypeIdea)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTimeWindow_DayBuckets(t *testing.T) {
	start := time.Date(2026, 8, 20, 18, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 23, 6, 0, 0, 0, time.UTC)

	buckets := TimeWindow{Start: start, End: end}.dayBuckets()
	require.Len(t, buckets, 4)
	assert.Equal(t, start, buckets[0].Start)
	assert.Equal(t, end, buckets[3].End)
	for i := 1; i < len(buckets); i++ {
		assert.Equal(t, buckets[i-1].End, buckets[i].Start)
	}
}

func TestSeedsFor(t *testing.T) {
	for _, typ := range item.Types() {
		assert.NotEmpty(t, SeedsFor(typ), typ)
	}
	assert.Empty(t, SeedsFor(item.Type("bogus")))
}
