// Package search finds conversation fragments relevant to an item type
// within a time window.
//
// The orchestrator fans seed queries out over the similarity index,
// bounded by a worker cap. A failed seed contributes zero fragments and
// a warning; the phase fails only when every query fails.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ideabank/internal/embeddings"
	"github.com/fyrsmithlabs/ideabank/internal/item"
	"github.com/fyrsmithlabs/ideabank/internal/logging"
	"github.com/fyrsmithlabs/ideabank/internal/vectorstore"
)

// FragmentCollection is where mined conversation fragments live.
const FragmentCollection = "fragments"

var (
	// ErrInvalidWindow indicates a time window with end before start.
	ErrInvalidWindow = errors.New("invalid time window")

	// ErrAllSeedsFailed indicates every seed query failed.
	ErrAllSeedsFailed = errors.New("all seed queries failed")
)

// TimeWindow bounds a search to conversations inside [Start, End).
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Validate checks the window is well formed.
func (w TimeWindow) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("%w: start and end required", ErrInvalidWindow)
	}
	if !w.End.After(w.Start) {
		return fmt.Errorf("%w: end %s not after start %s", ErrInvalidWindow, w.End.Format(time.RFC3339), w.Start.Format(time.RFC3339))
	}
	return nil
}

// dayBuckets splits the window into per-day sub-windows so multi-day
// ranges can be searched in parallel.
func (w TimeWindow) dayBuckets() []TimeWindow {
	var buckets []TimeWindow
	cur := w.Start
	for cur.Before(w.End) {
		next := cur.Truncate(24 * time.Hour).Add(24 * time.Hour)
		if next.After(w.End) {
			next = w.End
		}
		buckets = append(buckets, TimeWindow{Start: cur, End: next})
		cur = next
	}
	return buckets
}

// Fragment is one retrieved slice of conversation text.
type Fragment struct {
	// SourceID identifies the conversation the text came from.
	SourceID string

	// Text is the fragment content.
	Text string

	// Score is the similarity to the seed that found it.
	Score float32

	// Timestamp is when the source conversation happened.
	Timestamp time.Time

	// Seed is the query string that retrieved this fragment.
	// Diagnostics only.
	Seed string
}

// Config holds orchestrator tuning.
type Config struct {
	// Concurrency caps parallel seed queries. Default: 10.
	Concurrency int

	// Timeout bounds each individual seed query. Default: 15s.
	Timeout time.Duration

	// K is how many fragments each seed query requests. Default: 12.
	K int

	// MinSimilarity drops fragments below this score. Default: 0.3.
	MinSimilarity float32
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Concurrency == 0 {
		c.Concurrency = 10
	}
	if c.Timeout == 0 {
		c.Timeout = 15 * time.Second
	}
	if c.K == 0 {
		c.K = 12
	}
	if c.MinSimilarity == 0 {
		c.MinSimilarity = 0.3
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.MinSimilarity < 0 || c.MinSimilarity >= 1 {
		return fmt.Errorf("min similarity must be in [0,1), got %f", c.MinSimilarity)
	}
	return nil
}

// Result is the merged outcome of one search phase.
type Result struct {
	Fragments []Fragment

	// Warnings records failed seed queries, one entry per failure.
	Warnings []string
}

// Orchestrator fans seed queries out over the similarity index.
type Orchestrator struct {
	embedder embeddings.Embedder
	store    vectorstore.Store
	config   Config
	logger   *logging.Logger
}

// NewOrchestrator creates a search orchestrator.
func NewOrchestrator(embedder embeddings.Embedder, store vectorstore.Store, config Config, logger *logging.Logger) (*Orchestrator, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		embedder: embedder,
		store:    store,
		config:   config,
		logger:   logger.Named("search"),
	}, nil
}

// searchTask is one (seed, day-bucket) query.
type searchTask struct {
	seed   string
	bucket TimeWindow
}

// Search retrieves fragments for the item type within the window.
//
// Each (seed, day-bucket) pair becomes one bounded query. The union of
// results is deduplicated by source id, keeping the highest-scoring
// occurrence. Total latency is bounded by the slowest single query.
func (o *Orchestrator) Search(ctx context.Context, window TimeWindow, typ item.Type) (*Result, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	seeds := SeedsFor(typ)
	if len(seeds) == 0 {
		return nil, fmt.Errorf("no seed queries for item type %q", typ)
	}

	var tasks []searchTask
	for _, bucket := range window.dayBuckets() {
		for _, seed := range seeds {
			tasks = append(tasks, searchTask{seed: seed, bucket: bucket})
		}
	}

	var (
		mu        sync.Mutex
		fragments []Fragment
		warnings  []string
		failures  int
	)

	sem := make(chan struct{}, o.config.Concurrency)
	var wg sync.WaitGroup

	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(task searchTask) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			found, err := o.querySeed(ctx, task)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				warnings = append(warnings, fmt.Sprintf("seed %q (%s): %v", task.seed, task.bucket.Start.Format("2006-01-02"), err))
				o.logger.Warn(ctx, "seed query failed",
					zap.String("seed", task.seed),
					zap.Error(err),
				)
				return
			}
			fragments = append(fragments, found...)
		}(task)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failures == len(tasks) {
		return nil, fmt.Errorf("%w: %d queries", ErrAllSeedsFailed, failures)
	}

	merged := dedupBySource(fragments)
	o.logger.Info(ctx, "search phase complete",
		zap.Int("queries", len(tasks)),
		zap.Int("failures", failures),
		zap.Int("fragments", len(merged)),
	)

	return &Result{Fragments: merged, Warnings: warnings}, nil
}

func (o *Orchestrator) querySeed(ctx context.Context, task searchTask) ([]Fragment, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	vector, err := o.embedder.EmbedQuery(ctx, task.seed)
	if err != nil {
		return nil, fmt.Errorf("embedding seed: %w", err)
	}

	results, err := o.store.Search(ctx, FragmentCollection, vector, o.config.K, o.config.MinSimilarity)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}

	fragments := make([]Fragment, 0, len(results))
	for _, r := range results {
		ts, ok := fragmentTimestamp(r.Metadata)
		if ok && (ts.Before(task.bucket.Start) || !ts.Before(task.bucket.End)) {
			continue
		}
		fragments = append(fragments, Fragment{
			SourceID:  sourceID(r),
			Text:      r.Content,
			Score:     r.Score,
			Timestamp: ts,
			Seed:      task.seed,
		})
	}
	return fragments, nil
}

func sourceID(r vectorstore.SearchResult) string {
	if id, ok := r.Metadata["conversation_id"]; ok && id != "" {
		return id
	}
	return r.ID
}

func fragmentTimestamp(metadata map[string]string) (time.Time, bool) {
	raw, ok := metadata["timestamp"]
	if !ok || raw == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// dedupBySource keeps one fragment per source id, preferring the
// highest similarity score, and returns them in a deterministic order.
func dedupBySource(fragments []Fragment) []Fragment {
	best := make(map[string]Fragment, len(fragments))
	for _, f := range fragments {
		cur, ok := best[f.SourceID]
		if !ok || f.Score > cur.Score {
			best[f.SourceID] = f
		}
	}

	merged := make([]Fragment, 0, len(best))
	for _, f := range best {
		merged = append(merged, f)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].SourceID < merged[j].SourceID
	})
	return merged
}
