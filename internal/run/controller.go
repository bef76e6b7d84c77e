// Package run sequences the item pipeline as a forward-only state
// machine and reports progress over a typed event channel. One run is
// one goroutine; the transport layer drains the channel.
package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ideabank/internal/config"
	"github.com/fyrsmithlabs/ideabank/internal/dedup"
	"github.com/fyrsmithlabs/ideabank/internal/extract"
	"github.com/fyrsmithlabs/ideabank/internal/harmonize"
	"github.com/fyrsmithlabs/ideabank/internal/item"
	"github.com/fyrsmithlabs/ideabank/internal/llm"
	"github.com/fyrsmithlabs/ideabank/internal/logging"
	"github.com/fyrsmithlabs/ideabank/internal/rank"
	"github.com/fyrsmithlabs/ideabank/internal/search"
)

// eventBuffer sizes the per-run event channel. The transport drains
// continuously; the buffer only absorbs bursts.
const eventBuffer = 256

// Searcher retrieves conversation fragments for a time window.
type Searcher interface {
	Search(ctx context.Context, window search.TimeWindow, typ item.Type) (*search.Result, error)
}

// Generator produces candidate items from fragments.
type Generator interface {
	Generate(ctx context.Context, fragments []search.Fragment, typ item.Type, count int, temperature float64) (*extract.GenerateResult, error)
}

// Deduplicator clusters candidates against the existing library.
type Deduplicator interface {
	Deduplicate(ctx context.Context, candidates, existing []*item.Item, threshold float64) ([]*item.Item, *dedup.Stats, error)
}

// Ranker orders candidates by judged quality.
type Ranker interface {
	Rank(ctx context.Context, typ item.Type, items []*item.Item) (*rank.Result, error)
}

// Harmonizer applies ranked candidates to the library.
type Harmonizer interface {
	Harmonize(ctx context.Context, typ item.Type, ranked []*item.Item, now time.Time) (*harmonize.Delta, error)
}

// Library is the read side of the persistent library the controller
// needs for dedup input and size statistics.
type Library interface {
	Get(ctx context.Context, typ item.Type) ([]*item.Item, error)
	Size(ctx context.Context, typ item.Type) (int, error)
}

// Run is a snapshot of one pipeline execution.
type Run struct {
	ID          string    `json:"id"`
	Request     Request   `json:"request"`
	Phase       Phase     `json:"phase"`
	Stats       Stats     `json:"stats"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt,omitempty"`
	ErrMessage  string    `json:"error,omitempty"`
	ErrCategory string    `json:"errorCategory,omitempty"`
}

// Dependencies wires the controller's collaborators.
type Dependencies struct {
	Searcher   Searcher
	Generator  Generator
	Dedup      Deduplicator
	Ranker     Ranker
	Harmonizer Harmonizer
	Library    Library
	Cache      *Cache
	Pipeline   config.PipelineConfig
	Generation config.GenerationConfig
	Logger     *logging.Logger

	// Now overrides the wall clock in tests.
	Now func() time.Time
}

// Controller executes pipeline runs.
type Controller struct {
	deps   Dependencies
	logger *logging.Logger
	now    func() time.Time
}

// NewController creates a Controller.
func NewController(deps Dependencies) (*Controller, error) {
	switch {
	case deps.Searcher == nil:
		return nil, errors.New("searcher is required")
	case deps.Generator == nil:
		return nil, errors.New("generator is required")
	case deps.Dedup == nil:
		return nil, errors.New("deduplicator is required")
	case deps.Ranker == nil:
		return nil, errors.New("ranker is required")
	case deps.Harmonizer == nil:
		return nil, errors.New("harmonizer is required")
	case deps.Library == nil:
		return nil, errors.New("library is required")
	}
	if deps.Cache == nil {
		deps.Cache = NewCache(30*time.Minute, 100, deps.Now)
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{deps: deps, logger: logger.Named("run"), now: now}, nil
}

// Cache exposes the run snapshot cache for the transport layer.
func (c *Controller) Cache() *Cache {
	return c.deps.Cache
}

// Start validates the request, registers the run, and launches the
// pipeline goroutine. Input errors surface synchronously before any
// external call; everything later arrives on the event channel, which
// closes after the terminal event.
func (c *Controller) Start(ctx context.Context, req Request) (*Run, <-chan Event, error) {
	req.ApplyDefaults(c.deps.Pipeline)
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	r := &Run{
		ID:        uuid.NewString(),
		Request:   req,
		Phase:     PhaseConfirming,
		StartedAt: c.now(),
	}
	c.deps.Cache.Put(snapshot(r))
	recordRunStarted(string(req.ItemType))

	events := make(chan Event, eventBuffer)
	go c.execute(ctx, r, events)

	return snapshot(r), events, nil
}

// execution carries the per-run mutable state through the phases.
type execution struct {
	run     *Run
	events  chan<- Event
	started time.Time
}

func (c *Controller) execute(ctx context.Context, r *Run, events chan<- Event) {
	defer close(events)

	ex := &execution{run: r, events: events, started: c.now()}
	logger := c.logger.With(zap.String("run_id", r.ID), zap.String("item_type", string(r.Request.ItemType)))

	c.emit(ex, Event{Type: EventPhase, Phase: PhaseConfirming})
	logger.Info(ctx, "run started",
		zap.Time("window_start", r.Request.TimeWindow.Start),
		zap.Time("window_end", r.Request.TimeWindow.End),
		zap.Int("item_count", r.Request.ItemCount),
	)

	terminal := c.pipeline(ctx, ex)

	r.FinishedAt = c.now()
	r.Phase = terminal
	c.deps.Cache.Put(snapshot(r))
	recordRunFinished(string(r.Request.ItemType), terminal, r.Stats)

	logger.Info(ctx, "run finished",
		zap.String("terminal", string(terminal)),
		zap.Int("items_added", r.Stats.ItemsAdded),
		zap.Int("items_merged", r.Stats.ItemsMerged),
		zap.Float64("cost", r.Stats.Cost),
	)
}

// pipeline runs the phases in order and returns the terminal phase.
// The terminal phase event is emitted here; EventComplete marks the
// end of a successful stream.
func (c *Controller) pipeline(ctx context.Context, ex *execution) Phase {
	r := ex.run
	typ := r.Request.ItemType

	// Confirming: baseline library size, before any external call.
	sizeBefore, err := c.deps.Library.Size(ctx, typ)
	if err != nil {
		return c.fail(ctx, ex, fmt.Errorf("reading library size: %w", err))
	}
	r.Stats.LibrarySize = sizeBefore
	c.emit(ex, Event{Type: EventStat, Key: "librarySize", Value: sizeBefore})

	if stopped := c.advance(ctx, ex, PhaseSearching); stopped {
		return PhaseStopped
	}
	found, err := c.deps.Searcher.Search(ctx, r.Request.TimeWindow, typ)
	if err != nil {
		return c.fail(ctx, ex, fmt.Errorf("search phase: %w", err))
	}
	for _, w := range found.Warnings {
		c.emit(ex, Event{Type: EventWarning, Message: w})
	}
	r.Stats.FragmentsFound = len(found.Fragments)
	c.emit(ex, Event{Type: EventStat, Key: "fragmentsFound", Value: len(found.Fragments)})

	if stopped := c.advance(ctx, ex, PhaseGenerating); stopped {
		return PhaseStopped
	}
	generated, err := c.deps.Generator.Generate(ctx, found.Fragments, typ, r.Request.ItemCount, r.Request.Temperature)
	if err != nil {
		return c.fail(ctx, ex, fmt.Errorf("generation phase: %w", err))
	}
	for _, w := range generated.Warnings {
		c.emit(ex, Event{Type: EventWarning, Message: w})
	}
	c.addUsage(ex, generated.Usage)
	r.Stats.ItemsGenerated = len(generated.Items)
	c.emit(ex, Event{Type: EventStat, Key: "itemsGenerated", Value: len(generated.Items)})

	if stopped := c.advance(ctx, ex, PhaseDeduplicating); stopped {
		return PhaseStopped
	}
	existing, err := c.deps.Library.Get(ctx, typ)
	if err != nil {
		return c.fail(ctx, ex, fmt.Errorf("loading library for dedup: %w", err))
	}
	deduped, dedupStats, err := c.deps.Dedup.Deduplicate(ctx, generated.Items, existing, r.Request.DedupThreshold)
	if err != nil {
		return c.fail(ctx, ex, fmt.Errorf("dedup phase: %w", err))
	}
	r.Stats.ItemsAfterDedup = len(deduped)
	c.emit(ex, Event{Type: EventStat, Key: "itemsAfterDedup", Value: len(deduped)})
	if dedupStats != nil {
		c.emit(ex, Event{Type: EventStat, Key: "itemsMergedAway", Value: dedupStats.MergedAway})
		c.emit(ex, Event{Type: EventStat, Key: "itemsSkippedShort", Value: dedupStats.SkippedShort})
		c.emit(ex, Event{Type: EventStat, Key: "itemsMatchedExisting", Value: dedupStats.MatchedExisting})
	}

	if stopped := c.advance(ctx, ex, PhaseRanking); stopped {
		return PhaseStopped
	}
	ranked, err := c.deps.Ranker.Rank(ctx, typ, deduped)
	if err != nil {
		return c.fail(ctx, ex, fmt.Errorf("ranking phase: %w", err))
	}
	for _, w := range ranked.Warnings {
		c.emit(ex, Event{Type: EventWarning, Message: w})
	}
	c.addUsage(ex, ranked.Usage)

	if stopped := c.advance(ctx, ex, PhaseIntegrating); stopped {
		return PhaseStopped
	}
	delta, err := c.deps.Harmonizer.Harmonize(ctx, typ, ranked.Items, c.now())
	if delta != nil {
		r.Stats.ItemsAdded = delta.ItemsAdded
		r.Stats.ItemsMerged = delta.ItemsMerged
		r.Stats.LibrarySize = delta.LibrarySize
		c.emit(ex, Event{Type: EventStat, Key: "itemsAdded", Value: delta.ItemsAdded})
		c.emit(ex, Event{Type: EventStat, Key: "itemsMerged", Value: delta.ItemsMerged})
		c.emit(ex, Event{Type: EventStat, Key: "librarySize", Value: delta.LibrarySize})
	}
	if err != nil {
		return c.fail(ctx, ex, fmt.Errorf("integration phase: %w", err))
	}

	c.transition(ex, PhaseComplete)
	stats := r.Stats
	c.emit(ex, Event{Type: EventComplete, Stats: &stats})
	return PhaseComplete
}

// advance checks for cancellation, then moves to the next phase.
func (c *Controller) advance(ctx context.Context, ex *execution, next Phase) (stopped bool) {
	if ctx.Err() != nil {
		c.transition(ex, PhaseStopped)
		return true
	}
	c.transition(ex, next)
	return false
}

// transition emits the phase event and records the previous phase's
// duration.
func (c *Controller) transition(ex *execution, next Phase) {
	if !ex.run.Phase.CanAdvance(next) {
		return
	}
	now := c.now()
	recordPhaseDuration(ex.run.Phase, now.Sub(ex.started))
	ex.started = now

	ex.run.Phase = next
	c.deps.Cache.Put(snapshot(ex.run))
	c.emit(ex, Event{Type: EventPhase, Phase: next})
}

// fail emits the run's terminal error with its category. A cancelled
// context terminates as stopped, not error.
func (c *Controller) fail(ctx context.Context, ex *execution, err error) Phase {
	if ctx.Err() != nil {
		c.transition(ex, PhaseStopped)
		return PhaseStopped
	}

	category := categorize(err)
	ex.run.ErrMessage = err.Error()
	ex.run.ErrCategory = string(category)
	c.emit(ex, Event{Type: EventError, Message: err.Error(), Category: string(category)})
	c.transition(ex, PhaseError)
	return PhaseError
}

// addUsage folds a completion's token usage into the run's cost
// statistics and emits a cost event.
func (c *Controller) addUsage(ex *execution, usage llm.Usage) {
	if usage.InputTokens == 0 && usage.OutputTokens == 0 {
		return
	}
	stats := &ex.run.Stats
	stats.TokensIn += usage.InputTokens
	stats.TokensOut += usage.OutputTokens
	stats.Cost += llm.CalculateCost(usage, c.deps.Generation.CostPer1KInput, c.deps.Generation.CostPer1KOutput)

	c.emit(ex, Event{Type: EventCost, Cost: &Cost{
		TokensIn:       stats.TokensIn,
		TokensOut:      stats.TokensOut,
		CumulativeCost: stats.Cost,
	}})
}

func (c *Controller) emit(ex *execution, e Event) {
	e.Time = c.now()
	ex.events <- e
}

// categorize maps a pipeline failure to its user-facing category.
func categorize(err error) llm.Category {
	if errors.Is(err, search.ErrAllSeedsFailed) {
		return llm.CategoryNoData
	}
	return llm.Categorize(err)
}

// snapshot copies a run so cached reads never race the pipeline
// goroutine.
func snapshot(r *Run) *Run {
	copied := *r
	return &copied
}
