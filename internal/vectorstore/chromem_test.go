package vectorstore_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ideabank/internal/vectorstore"
)

const testVectorSize = 8

// unitVector builds a normalized test vector whose direction is
// controlled by seed, so distinct seeds give distinct directions.
func unitVector(seed int) []float32 {
	v := make([]float32, testVectorSize)
	var sumSq float64
	for i := range v {
		v[i] = float32((seed*7+i*13)%100) / 100.0
	}
	v[seed%testVectorSize] += 1
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := float32(1.0 / math.Sqrt(sumSq))
	for i := range v {
		v[i] *= norm
	}
	return v
}

func newTestStore(t *testing.T) *vectorstore.ChromemStore {
	t.Helper()

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:       "", // in-memory
		VectorSize: testVectorSize,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestChromemStore_AddAndSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnsureCollection(ctx, "library_idea", testVectorSize))

	docs := []vectorstore.Document{
		{ID: "a", Content: "first", Vector: unitVector(1), Metadata: map[string]string{"type": "idea"}},
		{ID: "b", Content: "second", Vector: unitVector(2), Metadata: map[string]string{"type": "idea"}},
		{ID: "c", Content: "third", Vector: unitVector(3), Metadata: map[string]string{"type": "idea"}},
	}
	ids, err := store.AddDocuments(ctx, "library_idea", docs)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	results, err := store.Search(ctx, "library_idea", unitVector(1), 2, 0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "first", results[0].Content)
	assert.InDelta(t, 1.0, float64(results[0].Score), 0.001)
}

func TestChromemStore_SearchMinScoreFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddDocuments(ctx, "fragments", []vectorstore.Document{
		{ID: "x", Content: "close", Vector: unitVector(5)},
		{ID: "y", Content: "far", Vector: unitVector(40)},
	})
	require.NoError(t, err)

	// Querying with x's own vector at a high threshold keeps only x.
	results, err := store.Search(ctx, "fragments", unitVector(5), 10, 0.99)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "x", results[0].ID)
}

func TestChromemStore_SearchEmptyCollection(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnsureCollection(ctx, "library_insight", testVectorSize))

	results, err := store.Search(ctx, "library_insight", unitVector(1), 5, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemStore_SearchKExceedsCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddDocuments(ctx, "fragments", []vectorstore.Document{
		{ID: "only", Content: "one", Vector: unitVector(1)},
	})
	require.NoError(t, err)

	results, err := store.Search(ctx, "fragments", unitVector(1), 50, 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestChromemStore_AddRejectsMissingVector(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddDocuments(ctx, "fragments", []vectorstore.Document{
		{ID: "novec", Content: "no vector"},
	})
	assert.ErrorIs(t, err, vectorstore.ErrMissingVector)
}

func TestChromemStore_AddRejectsEmptyBatch(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AddDocuments(context.Background(), "fragments", nil)
	assert.ErrorIs(t, err, vectorstore.ErrEmptyDocuments)
}

func TestChromemStore_UpsertReplacesDocument(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddDocuments(ctx, "library_idea", []vectorstore.Document{
		{ID: "a", Content: "original", Vector: unitVector(1), Metadata: map[string]string{"hits": "1"}},
	})
	require.NoError(t, err)

	_, err = store.AddDocuments(ctx, "library_idea", []vectorstore.Document{
		{ID: "a", Content: "updated", Vector: unitVector(1), Metadata: map[string]string{"hits": "2"}},
	})
	require.NoError(t, err)

	info, err := store.GetCollectionInfo(ctx, "library_idea")
	require.NoError(t, err)
	assert.Equal(t, 1, info.PointCount)

	docs, err := store.ListDocuments(ctx, "library_idea")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "updated", docs[0].Content)
	assert.Equal(t, "2", docs[0].Metadata["hits"])
}

func TestChromemStore_ListDocuments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := map[string]string{"a": "alpha", "b": "beta", "c": "gamma"}
	docs := make([]vectorstore.Document, 0, len(want))
	seed := 1
	for id, content := range want {
		docs = append(docs, vectorstore.Document{ID: id, Content: content, Vector: unitVector(seed)})
		seed++
	}
	_, err := store.AddDocuments(ctx, "library_use_case", docs)
	require.NoError(t, err)

	listed, err := store.ListDocuments(ctx, "library_use_case")
	require.NoError(t, err)
	require.Len(t, listed, len(want))
	for _, d := range listed {
		assert.Equal(t, want[d.ID], d.Content)
		assert.Len(t, d.Vector, testVectorSize)
	}
}

func TestChromemStore_ListDocumentsMissingCollection(t *testing.T) {
	store := newTestStore(t)

	docs, err := store.ListDocuments(context.Background(), "library_idea")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestChromemStore_DeleteDocuments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddDocuments(ctx, "fragments", []vectorstore.Document{
		{ID: "keep", Content: "keep", Vector: unitVector(1)},
		{ID: "drop", Content: "drop", Vector: unitVector(2)},
	})
	require.NoError(t, err)

	require.NoError(t, store.DeleteDocuments(ctx, "fragments", []string{"drop"}))

	info, err := store.GetCollectionInfo(ctx, "fragments")
	require.NoError(t, err)
	assert.Equal(t, 1, info.PointCount)
}

func TestChromemStore_CollectionExists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	exists, err := store.CollectionExists(ctx, "library_idea")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.EnsureCollection(ctx, "library_idea", testVectorSize))

	exists, err = store.CollectionExists(ctx, "library_idea")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestChromemStore_EnsureCollectionVectorSizeMismatch(t *testing.T) {
	store := newTestStore(t)

	err := store.EnsureCollection(context.Background(), "library_idea", testVectorSize+1)
	assert.Error(t, err)
}

func TestChromemStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:       dir,
		VectorSize: testVectorSize,
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = store.AddDocuments(ctx, "library_idea", []vectorstore.Document{
		{ID: "persisted", Content: "survives restart", Vector: unitVector(1)},
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:       dir,
		VectorSize: testVectorSize,
	}, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	docs, err := reopened.ListDocuments(ctx, "library_idea")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "persisted", docs[0].ID)
}
