package harmonize_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ideabank/internal/dedup"
	"github.com/fyrsmithlabs/ideabank/internal/extract"
	"github.com/fyrsmithlabs/ideabank/internal/harmonize"
	"github.com/fyrsmithlabs/ideabank/internal/item"
	"github.com/fyrsmithlabs/ideabank/internal/library"
	"github.com/fyrsmithlabs/ideabank/internal/llm"
	"github.com/fyrsmithlabs/ideabank/internal/search"
	"github.com/fyrsmithlabs/ideabank/internal/vectorstore"
)

const testVectorSize = 3

var (
	baseTime = time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	nextRun  = baseTime.Add(24 * time.Hour)
)

func newLibrary(t *testing.T) *library.Service {
	t.Helper()

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:       "", // in-memory
		VectorSize: testVectorSize,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc, err := library.NewService(store, testVectorSize, nil)
	require.NoError(t, err)
	return svc
}

func newCandidate(t *testing.T, title string, order int, vec []float32) *item.Item {
	t.Helper()

	it, err := item.NewCandidate(item.TypeIdea, title, "long description of "+title, order)
	require.NoError(t, err)
	it.Embedding = vec
	return it
}

func existingItem(t *testing.T, lib *library.Service, title string, vec []float32) *item.Item {
	t.Helper()

	it := newCandidate(t, title, 0, vec)
	it.Persist(baseTime)
	persisted, err := lib.Upsert(context.Background(), it)
	require.NoError(t, err)
	return persisted
}

func TestHarmonize_AddsNewItems(t *testing.T) {
	lib := newLibrary(t)
	h := harmonize.NewHarmonizer(lib, nil)
	ctx := context.Background()

	ranked := []*item.Item{
		newCandidate(t, "first", 0, []float32{1, 0, 0}),
		newCandidate(t, "second", 1, []float32{0, 1, 0}),
	}

	delta, err := h.Harmonize(ctx, item.TypeIdea, ranked, baseTime)
	require.NoError(t, err)
	assert.Equal(t, 2, delta.ItemsAdded)
	assert.Equal(t, 0, delta.ItemsMerged)
	assert.Equal(t, 2, delta.LibrarySize)

	items, err := lib.Get(ctx, item.TypeIdea)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, it := range items {
		assert.Equal(t, 1, it.Hits)
		assert.True(t, baseTime.Equal(it.FirstSeen))
		assert.True(t, baseTime.Equal(it.LastSeen))
		require.NoError(t, it.Validate())
	}
}

// A candidate at similarity 0.9 to an existing item with threshold 0.85
// takes the merge path: hits increments and no new item appears.
func TestHarmonize_MergeVersusAdd(t *testing.T) {
	lib := newLibrary(t)
	h := harmonize.NewHarmonizer(lib, nil)
	ctx := context.Background()

	existing := existingItem(t, lib, "reuse prompt templates", []float32{1, 0, 0})

	// cos((1,0,0),(0.9,0.436,0)) = 0.9
	near := newCandidate(t, "share prompt templates", 0, []float32{0.9, 0.436, 0})
	far := newCandidate(t, "cache embeddings locally", 1, []float32{0, 0, 1})

	existingItems, err := lib.Get(ctx, item.TypeIdea)
	require.NoError(t, err)

	d := dedup.New(nil, dedup.DefaultMinEmbedChars, nil)
	deduped, stats, err := d.Deduplicate(ctx, []*item.Item{near, far}, existingItems, 0.85)
	require.NoError(t, err)
	require.Len(t, deduped, 2)
	assert.Equal(t, 1, stats.MatchedExisting)

	delta, err := h.Harmonize(ctx, item.TypeIdea, deduped, nextRun)
	require.NoError(t, err)
	assert.Equal(t, 1, delta.ItemsAdded)
	assert.Equal(t, 1, delta.ItemsMerged)
	assert.Equal(t, 2, delta.LibrarySize)

	merged, err := lib.GetByID(ctx, item.TypeIdea, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, merged.Hits)
	assert.Equal(t, "reuse prompt templates", merged.Title, "merge must not rewrite the existing item")
	assert.True(t, nextRun.Equal(merged.LastSeen))
	assert.True(t, baseTime.Equal(merged.FirstSeen))
}

// Replaying harmonization for the same generated item against the now
// unchanged library resolves to the merge path: itemsAdded is zero on
// the second pass and the library does not grow.
func TestHarmonize_Idempotent(t *testing.T) {
	lib := newLibrary(t)
	h := harmonize.NewHarmonizer(lib, nil)
	d := dedup.New(nil, dedup.DefaultMinEmbedChars, nil)
	ctx := context.Background()

	vec := []float32{0.6, 0.8, 0}
	pass := func(now time.Time) *harmonize.Delta {
		existing, err := lib.Get(ctx, item.TypeIdea)
		require.NoError(t, err)

		candidate := newCandidate(t, "automate release notes", 0, vec)
		deduped, _, err := d.Deduplicate(ctx, []*item.Item{candidate}, existing, 0.85)
		require.NoError(t, err)

		delta, err := h.Harmonize(ctx, item.TypeIdea, deduped, now)
		require.NoError(t, err)
		return delta
	}

	first := pass(baseTime)
	assert.Equal(t, 1, first.ItemsAdded)
	assert.Equal(t, 1, first.LibrarySize)

	second := pass(nextRun)
	assert.Equal(t, 0, second.ItemsAdded)
	assert.Equal(t, 1, second.ItemsMerged)
	assert.Equal(t, 1, second.LibrarySize)
}

func TestHarmonize_AppendsEvidenceOnMerge(t *testing.T) {
	lib := newLibrary(t)
	h := harmonize.NewHarmonizer(lib, nil)
	ctx := context.Background()

	existing := existingItem(t, lib, "nightly index rebuild", []float32{1, 0, 0})

	candidate := newCandidate(t, "nightly rebuild of the index", 0, []float32{1, 0, 0})
	candidate.MatchID = existing.ID
	candidate.Evidence = []item.Evidence{
		{ConversationID: "conv-42", Timestamp: nextRun, Seed: "recurring pain points"},
	}

	_, err := h.Harmonize(ctx, item.TypeIdea, []*item.Item{candidate}, nextRun)
	require.NoError(t, err)

	merged, err := lib.GetByID(ctx, item.TypeIdea, existing.ID)
	require.NoError(t, err)
	require.Len(t, merged.Evidence, 1)
	assert.Equal(t, "conv-42", merged.Evidence[0].ConversationID)
}

// cannedClient returns a fixed completion.
type cannedClient struct {
	text string
}

func (c *cannedClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return &llm.Response{Text: c.text}, nil
}

// unitEmbedder returns the same unit vector for every text.
type unitEmbedder struct{}

func (unitEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (unitEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

// An item that travels the whole pipeline, from generation over real
// fragments through dedup and harmonization, lands in the library with
// its conversation back-references intact.
func TestHarmonize_PersistsGeneratedEvidence(t *testing.T) {
	lib := newLibrary(t)
	h := harmonize.NewHarmonizer(lib, nil)
	ctx := context.Background()

	fragments := []search.Fragment{
		{SourceID: "conv-7", Text: "writing release notes by hand again", Timestamp: baseTime, Seed: "recurring pain points"},
	}
	gen := extract.NewGenerator(&cannedClient{text: `1. TITLE: Automate release notes
DESCRIPTION: Release notes keep coming up as manual toil across conversations.`}, nil)

	generated, err := gen.Generate(ctx, fragments, item.TypeIdea, 5, 0.7)
	require.NoError(t, err)
	require.Len(t, generated.Items, 1)

	d := dedup.New(unitEmbedder{}, dedup.DefaultMinEmbedChars, nil)
	deduped, _, err := d.Deduplicate(ctx, generated.Items, nil, 0.85)
	require.NoError(t, err)

	delta, err := h.Harmonize(ctx, item.TypeIdea, deduped, baseTime)
	require.NoError(t, err)
	require.Equal(t, 1, delta.ItemsAdded)

	stored, err := lib.Get(ctx, item.TypeIdea)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.NotEmpty(t, stored[0].Evidence)
	assert.Equal(t, "conv-7", stored[0].Evidence[0].ConversationID)
	assert.True(t, baseTime.Equal(stored[0].Evidence[0].Timestamp))
	assert.Equal(t, "recurring pain points", stored[0].Evidence[0].Seed)
}

func TestHarmonize_EmptyInput(t *testing.T) {
	lib := newLibrary(t)
	h := harmonize.NewHarmonizer(lib, nil)

	delta, err := h.Harmonize(context.Background(), item.TypeIdea, nil, baseTime)
	require.NoError(t, err)
	assert.Equal(t, 0, delta.ItemsAdded)
	assert.Equal(t, 0, delta.ItemsMerged)
	assert.Equal(t, 0, delta.LibrarySize)
}

// A merge against a match id that is not in the library stops the pass
// but reports the delta already applied.
func TestHarmonize_PartialFailureReportsApplied(t *testing.T) {
	lib := newLibrary(t)
	h := harmonize.NewHarmonizer(lib, nil)
	ctx := context.Background()

	good := newCandidate(t, "applied before the failure", 0, []float32{1, 0, 0})
	broken := newCandidate(t, "dangling match", 1, []float32{0, 1, 0})
	broken.MatchID = "00000000-0000-0000-0000-000000000000"
	skipped := newCandidate(t, "never reached", 2, []float32{0, 0, 1})

	delta, err := h.Harmonize(ctx, item.TypeIdea, []*item.Item{good, broken, skipped}, baseTime)
	require.Error(t, err)
	assert.ErrorIs(t, err, library.ErrNotFound)
	assert.Equal(t, 1, delta.ItemsAdded)
	assert.Equal(t, 0, delta.ItemsMerged)
	assert.Equal(t, 1, delta.LibrarySize)
}

func TestHarmonize_CancelledContext(t *testing.T) {
	lib := newLibrary(t)
	h := harmonize.NewHarmonizer(lib, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ranked := []*item.Item{newCandidate(t, "never applied", 0, []float32{1, 0, 0})}
	delta, err := h.Harmonize(ctx, item.TypeIdea, ranked, baseTime)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, delta.ItemsAdded)
}
