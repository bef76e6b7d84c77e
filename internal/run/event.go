package run

import "time"

// Phase names one stage of a run's state machine. Phases advance
// strictly forward; no phase repeats within a run.
type Phase string

const (
	PhaseConfirming    Phase = "confirming"
	PhaseSearching     Phase = "searching"
	PhaseGenerating    Phase = "generating"
	PhaseDeduplicating Phase = "deduplicating"
	PhaseRanking       Phase = "ranking"
	PhaseIntegrating   Phase = "integrating"
	PhaseComplete      Phase = "complete"
	PhaseError         Phase = "error"
	PhaseStopped       Phase = "stopped"
)

// IsTerminal reports whether no further phase can follow.
func (p Phase) IsTerminal() bool {
	switch p {
	case PhaseComplete, PhaseError, PhaseStopped:
		return true
	}
	return false
}

// phaseOrder drives the forward-only transition check. Terminal phases
// are reachable from anywhere.
var phaseOrder = map[Phase]int{
	PhaseConfirming:    0,
	PhaseSearching:     1,
	PhaseGenerating:    2,
	PhaseDeduplicating: 3,
	PhaseRanking:       4,
	PhaseIntegrating:   5,
}

// CanAdvance reports whether a run in phase p may transition to next.
func (p Phase) CanAdvance(next Phase) bool {
	if p.IsTerminal() {
		return false
	}
	if next.IsTerminal() {
		return true
	}
	from, ok := phaseOrder[p]
	if !ok {
		return false
	}
	to, ok := phaseOrder[next]
	if !ok {
		return false
	}
	return to > from
}

// EventType discriminates progress events.
type EventType string

const (
	EventPhase    EventType = "phase"
	EventStat     EventType = "stat"
	EventWarning  EventType = "warning"
	EventCost     EventType = "cost"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

// Cost is a running token and spend snapshot.
type Cost struct {
	TokensIn       int     `json:"tokensIn"`
	TokensOut      int     `json:"tokensOut"`
	CumulativeCost float64 `json:"cumulativeCost"`
}

// Event is one entry in a run's ordered progress stream.
type Event struct {
	Type EventType `json:"type"`
	Time time.Time `json:"time"`

	// Phase is set for phase events.
	Phase Phase `json:"phase,omitempty"`

	// Key and Value carry free-form progress statistics.
	Key   string `json:"key,omitempty"`
	Value int    `json:"value,omitempty"`

	// Message is set for warning and error events.
	Message string `json:"message,omitempty"`

	// Category classifies error events (auth, rate-limit, timeout,
	// no-data, unknown).
	Category string `json:"category,omitempty"`

	// Cost is set for cost events.
	Cost *Cost `json:"cost,omitempty"`

	// Stats is the final statistics snapshot, set on complete events.
	Stats *Stats `json:"stats,omitempty"`
}

// Stats accumulates a run's statistics across phases.
type Stats struct {
	FragmentsFound  int     `json:"fragmentsFound"`
	ItemsGenerated  int     `json:"itemsGenerated"`
	ItemsAfterDedup int     `json:"itemsAfterDedup"`
	ItemsAdded      int     `json:"itemsAdded"`
	ItemsMerged     int     `json:"itemsMerged"`
	LibrarySize     int     `json:"librarySize"`
	TokensIn        int     `json:"tokensIn"`
	TokensOut       int     `json:"tokensOut"`
	Cost            float64 `json:"cost"`
}
