// Package dedup clusters candidate items against each other and the
// existing library by embedding similarity.
//
// Clustering is single-linkage: connected components over a graph whose
// edges are pairs with cosine similarity at or above the threshold.
// Single-linkage can chain weakly similar items together transitively.
// That behavior is intentional and load-bearing for cross-run identity;
// switching to complete-linkage would change which items merge across
// runs.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ideabank/internal/embeddings"
	"github.com/fyrsmithlabs/ideabank/internal/item"
	"github.com/fyrsmithlabs/ideabank/internal/logging"
)

// ErrInvalidThreshold indicates a threshold outside (0,1).
var ErrInvalidThreshold = errors.New("dedup threshold must be in (0,1)")

// DefaultMinEmbedChars is the default minimum text length worth
// embedding. Shorter candidates carry no usable signal and are dropped
// before the batch call rather than wasting an embedding.
const DefaultMinEmbedChars = 8

// CosineSimilarity computes cosine similarity between two vectors.
// Returns 0 for empty, mismatched, or zero-magnitude inputs.
func CosineSimilarity(vec1, vec2 []float32) float64 {
	if len(vec1) == 0 || len(vec2) == 0 {
		return 0.0
	}
	if len(vec1) != len(vec2) {
		return 0.0
	}

	var dotProduct float64
	var magnitude1 float64
	var magnitude2 float64
	for i := 0; i < len(vec1); i++ {
		v1 := float64(vec1[i])
		v2 := float64(vec2[i])
		dotProduct += v1 * v2
		magnitude1 += v1 * v1
		magnitude2 += v2 * v2
	}

	if magnitude1 == 0.0 || magnitude2 == 0.0 {
		return 0.0
	}
	return dotProduct / (math.Sqrt(magnitude1) * math.Sqrt(magnitude2))
}

// unionFind is a standard disjoint-set over arena indices with path
// compression and union by size.
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{
		parent: make([]int, n),
		size:   make([]int, n),
	}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.size[ra] < uf.size[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	uf.size[ra] += uf.size[rb]
}

// Stats summarizes one deduplication pass.
type Stats struct {
	// Candidates is how many candidates went in.
	Candidates int

	// Kept is how many candidates came out.
	Kept int

	// MergedAway counts candidates dropped as duplicates of another
	// candidate in the same batch.
	MergedAway int

	// MatchedExisting counts kept candidates that resolved to an
	// existing library item.
	MatchedExisting int

	// SkippedShort counts candidates dropped before embedding because
	// their text was below the minimum length.
	SkippedShort int
}

// Deduplicator clusters candidates against the existing library.
type Deduplicator struct {
	embedder      embeddings.Embedder
	minEmbedChars int
	logger        *logging.Logger
}

// New creates a Deduplicator. minEmbedChars <= 0 uses the default.
func New(embedder embeddings.Embedder, minEmbedChars int, logger *logging.Logger) *Deduplicator {
	if minEmbedChars <= 0 {
		minEmbedChars = DefaultMinEmbedChars
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Deduplicator{embedder: embedder, minEmbedChars: minEmbedChars, logger: logger.Named("dedup")}
}

// Deduplicate embeds candidates that lack vectors, clusters the union
// of candidates and existing items, and returns the surviving
// candidates.
//
// A candidate in a component with at least one existing item is tagged
// with that item's ID (merge path). Components of candidates only keep
// a single representative: the longest description, ties broken by
// generation order.
func (d *Deduplicator) Deduplicate(ctx context.Context, candidates, existing []*item.Item, threshold float64) ([]*item.Item, *Stats, error) {
	if threshold <= 0 || threshold >= 1 {
		return nil, nil, fmt.Errorf("%w: got %f", ErrInvalidThreshold, threshold)
	}

	stats := &Stats{Candidates: len(candidates)}
	if len(candidates) == 0 {
		return nil, stats, nil
	}

	candidates, skipped := d.dropShort(candidates)
	stats.SkippedShort = skipped
	if len(candidates) == 0 {
		return nil, stats, nil
	}

	if err := d.embedMissing(ctx, candidates); err != nil {
		return nil, nil, err
	}

	// Arena: candidates first, then existing items.
	arena := make([]*item.Item, 0, len(candidates)+len(existing))
	arena = append(arena, candidates...)
	arena = append(arena, existing...)

	uf := newUnionFind(len(arena))
	for i := 0; i < len(arena); i++ {
		for j := i + 1; j < len(arena); j++ {
			if CosineSimilarity(arena[i].Embedding, arena[j].Embedding) >= threshold {
				uf.union(i, j)
			}
		}
	}

	// Group arena indices by component root.
	components := make(map[int][]int)
	for i := range arena {
		root := uf.find(i)
		components[root] = append(components[root], i)
	}

	var kept []*item.Item
	for _, members := range components {
		candidateIdx := make([]int, 0, len(members))
		existingID := ""
		for _, idx := range members {
			if idx < len(candidates) {
				candidateIdx = append(candidateIdx, idx)
			} else if existingID == "" {
				existingID = arena[idx].ID
			}
		}
		if len(candidateIdx) == 0 {
			// Existing items clustering among themselves is the
			// harmonizer's concern, not this run's.
			continue
		}

		if existingID != "" {
			// Merge path: all candidate members resolve to the
			// existing item; keep one carrier for the hit.
			rep := representative(arena, candidateIdx)
			rep.MatchID = existingID
			kept = append(kept, rep)
			stats.MergedAway += len(candidateIdx) - 1
			stats.MatchedExisting++
			continue
		}

		rep := representative(arena, candidateIdx)
		kept = append(kept, rep)
		stats.MergedAway += len(candidateIdx) - 1
	}

	// Deterministic output order: original generation order.
	sort.Slice(kept, func(i, j int) bool { return kept[i].Order < kept[j].Order })
	stats.Kept = len(kept)

	d.logger.Debug(ctx, "deduplication complete",
		zap.Int("candidates", stats.Candidates),
		zap.Int("kept", stats.Kept),
		zap.Int("merged_away", stats.MergedAway),
		zap.Int("matched_existing", stats.MatchedExisting),
	)

	return kept, stats, nil
}

// representative picks the component member with the longest
// description, ties broken by generation order.
func representative(arena []*item.Item, candidateIdx []int) *item.Item {
	best := arena[candidateIdx[0]]
	for _, idx := range candidateIdx[1:] {
		cur := arena[idx]
		if len(cur.Description) > len(best.Description) {
			best = cur
			continue
		}
		if len(cur.Description) == len(best.Description) && cur.Order < best.Order {
			best = cur
		}
	}
	return best
}

// dropShort filters out candidates whose embed text is below the
// minimum length.
func (d *Deduplicator) dropShort(candidates []*item.Item) ([]*item.Item, int) {
	kept := candidates[:0:0]
	skipped := 0
	for _, c := range candidates {
		if len(c.Embedding) == 0 && len(c.EmbedText()) < d.minEmbedChars {
			skipped++
			continue
		}
		kept = append(kept, c)
	}
	return kept, skipped
}

// embedMissing batch-embeds candidates without vectors.
func (d *Deduplicator) embedMissing(ctx context.Context, candidates []*item.Item) error {
	var texts []string
	var targets []*item.Item
	for _, c := range candidates {
		if len(c.Embedding) == 0 {
			texts = append(texts, c.EmbedText())
			targets = append(targets, c)
		}
	}
	if len(texts) == 0 {
		return nil
	}

	vectors, err := d.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding candidates: %w", err)
	}
	if len(vectors) != len(targets) {
		return fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(targets))
	}
	for i, target := range targets {
		target.Embedding = vectors[i]
	}
	return nil
}
