package run

import (
	"context"
	"errors"
	"time"
)

// DefaultInactivityWindow is how long a consumer waits between events
// before treating the run as stalled.
const DefaultInactivityWindow = 120 * time.Second

// ErrStreamStalled indicates no event arrived within the inactivity
// window. The run itself may still be executing.
var ErrStreamStalled = errors.New("event stream stalled")

// Outcome is what a consumer learned from draining an event stream.
type Outcome struct {
	// Terminal is the last phase seen; empty when the stream closed
	// before any phase event.
	Terminal Phase

	// SawComplete reports whether a complete event arrived. When false
	// the caller must reconcile against the library before declaring
	// failure.
	SawComplete bool

	// Stats carries the last values seen for each statistic.
	Stats Stats

	// SizeBefore is the first librarySize statistic on the stream, the
	// baseline for reconciliation.
	SizeBefore int

	// ErrMessage and ErrCategory are set when an error event arrived.
	ErrMessage  string
	ErrCategory string

	// Warnings collects warning events in order.
	Warnings []string
}

// Consume drains an event stream, calling observe for each event, and
// folds the stream into an Outcome. It enforces the inactivity window
// on the consumer side: if no event arrives in time it returns
// ErrStreamStalled with the partial outcome.
func Consume(ctx context.Context, events <-chan Event, inactivity time.Duration, observe func(Event)) (*Outcome, error) {
	if inactivity <= 0 {
		inactivity = DefaultInactivityWindow
	}
	out := &Outcome{}
	sawLibrarySize := false

	timer := time.NewTimer(inactivity)
	defer timer.Stop()

	for {
		select {
		case e, ok := <-events:
			if !ok {
				return out, nil
			}
			if observe != nil {
				observe(e)
			}
			out.apply(e, &sawLibrarySize)

			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(inactivity)

		case <-timer.C:
			return out, ErrStreamStalled

		case <-ctx.Done():
			return out, ctx.Err()
		}
	}
}

func (out *Outcome) apply(e Event, sawLibrarySize *bool) {
	switch e.Type {
	case EventPhase:
		out.Terminal = e.Phase
	case EventStat:
		switch e.Key {
		case "librarySize":
			if !*sawLibrarySize {
				out.SizeBefore = e.Value
				*sawLibrarySize = true
			}
			out.Stats.LibrarySize = e.Value
		case "fragmentsFound":
			out.Stats.FragmentsFound = e.Value
		case "itemsGenerated":
			out.Stats.ItemsGenerated = e.Value
		case "itemsAfterDedup":
			out.Stats.ItemsAfterDedup = e.Value
		case "itemsAdded":
			out.Stats.ItemsAdded = e.Value
		case "itemsMerged":
			out.Stats.ItemsMerged = e.Value
		}
	case EventWarning:
		out.Warnings = append(out.Warnings, e.Message)
	case EventCost:
		if e.Cost != nil {
			out.Stats.TokensIn = e.Cost.TokensIn
			out.Stats.TokensOut = e.Cost.TokensOut
			out.Stats.Cost = e.Cost.CumulativeCost
		}
	case EventError:
		out.ErrMessage = e.Message
		out.ErrCategory = e.Category
	case EventComplete:
		out.SawComplete = true
		if e.Stats != nil {
			out.Stats = *e.Stats
		}
	}
}
