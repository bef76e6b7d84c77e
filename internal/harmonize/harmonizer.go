// Package harmonize reconciles ranked candidate items against the
// persistent library. Matched candidates bump the existing item's hit
// count; new candidates are persisted. The library never gains a
// duplicate from this path because the deduplicator has already folded
// candidates into their matching existing items.
package harmonize

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ideabank/internal/item"
	"github.com/fyrsmithlabs/ideabank/internal/library"
	"github.com/fyrsmithlabs/ideabank/internal/logging"
)

// Delta summarizes the library change one harmonization pass applied.
// On a mid-batch failure the counts reflect what was actually applied
// before the failure, not what was attempted.
type Delta struct {
	ItemsAdded  int `json:"itemsAdded"`
	ItemsMerged int `json:"itemsMerged"`
	LibrarySize int `json:"librarySize"`
}

// Harmonizer applies ranked candidates to the library.
type Harmonizer struct {
	library *library.Service
	logger  *logging.Logger
}

// NewHarmonizer creates a Harmonizer.
func NewHarmonizer(lib *library.Service, logger *logging.Logger) *Harmonizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Harmonizer{library: lib, logger: logger.Named("harmonize")}
}

// Harmonize applies each candidate in ranked order. A candidate that
// matches an existing item increments that item's hits, moves lastSeen
// forward, and appends the candidate's evidence; title, description,
// and embedding of the existing item are untouched. A new candidate is
// assigned an id and persisted with hits 1.
//
// A failure partway through stops the pass and returns the delta for
// the candidates already applied alongside the error.
func (h *Harmonizer) Harmonize(ctx context.Context, typ item.Type, ranked []*item.Item, now time.Time) (*Delta, error) {
	delta := &Delta{}

	for _, it := range ranked {
		if err := ctx.Err(); err != nil {
			return h.finish(ctx, typ, delta, err)
		}

		if it.IsNew() {
			it.Persist(now)
			if _, err := h.library.Upsert(ctx, it); err != nil {
				return h.finish(ctx, typ, delta, fmt.Errorf("adding item %q: %w", it.Title, err))
			}
			delta.ItemsAdded++
			h.logger.Debug(ctx, "item added",
				zap.String("id", it.ID),
				zap.String("title", it.Title),
			)
			continue
		}

		if _, err := h.library.IncrementHit(ctx, typ, it.MatchID, now, it.Evidence...); err != nil {
			return h.finish(ctx, typ, delta, fmt.Errorf("merging into item %s: %w", it.MatchID, err))
		}
		delta.ItemsMerged++
		h.logger.Debug(ctx, "item merged",
			zap.String("match_id", it.MatchID),
			zap.String("title", it.Title),
		)
	}

	return h.finish(ctx, typ, delta, nil)
}

// finish attaches the resulting library size to the delta. The size
// lookup is best effort when the pass itself already failed.
func (h *Harmonizer) finish(ctx context.Context, typ item.Type, delta *Delta, passErr error) (*Delta, error) {
	size, err := h.library.Size(context.WithoutCancel(ctx), typ)
	if err != nil {
		if passErr != nil {
			return delta, passErr
		}
		return delta, fmt.Errorf("sizing library after harmonization: %w", err)
	}
	delta.LibrarySize = size

	h.logger.Info(ctx, "harmonization finished",
		zap.String("type", string(typ)),
		zap.Int("added", delta.ItemsAdded),
		zap.Int("merged", delta.ItemsMerged),
		zap.Int("library_size", size),
		zap.Bool("partial", passErr != nil),
	)
	return delta, passErr
}
