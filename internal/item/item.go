// Package item defines the core data model for the ideabank library.
//
// An Item is a discrete idea, insight, or use case mined from a user's
// conversation history. Items start life as transient candidates (no ID,
// no embedding) produced by the extractor, and become durable once the
// harmonizer persists them into the library.
package item

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors for item operations.
var (
	ErrItemNotFound     = errors.New("item not found")
	ErrInvalidItem      = errors.New("invalid item")
	ErrEmptyTitle       = errors.New("item title cannot be empty")
	ErrEmptyDescription = errors.New("item description cannot be empty")
	ErrUnknownType      = errors.New("unknown item type")
)

// Type classifies an item. The set is closed; UnknownType rejects
// run requests before any external call is made.
type Type string

const (
	// TypeIdea is a concrete product or project idea surfaced from conversations.
	TypeIdea Type = "idea"

	// TypeInsight is a recurring observation or lesson.
	TypeInsight Type = "insight"

	// TypeUseCase is a repeatable way the user applies their tools.
	TypeUseCase Type = "use-case"
)

// Types lists all valid item types.
func Types() []Type {
	return []Type{TypeIdea, TypeInsight, TypeUseCase}
}

// ParseType validates a string as a Type.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeIdea, TypeInsight, TypeUseCase:
		return Type(s), nil
	}
	return "", ErrUnknownType
}

// Evidence is a non-owning back-reference to the conversation a candidate
// was mined from. It is never used to reconstruct ownership.
type Evidence struct {
	// ConversationID is the source conversation identifier.
	ConversationID string `json:"conversation_id"`

	// Timestamp is when the source conversation fragment was written.
	Timestamp time.Time `json:"timestamp"`

	// Seed is the search seed that surfaced the fragment. Diagnostics only.
	Seed string `json:"seed,omitempty"`
}

// Item is a candidate or persisted unit of value.
//
// Transient candidates have no ID and no embedding. Once persisted, the
// embedding of Title+Description is computed exactly once and never
// recomputed; Title and Description are immutable from then on.
type Item struct {
	// ID is the stable identifier, assigned on first persistence.
	// Empty for transient candidates.
	ID string `json:"id,omitempty"`

	// Type is the item classification (idea, insight, use-case).
	Type Type `json:"type"`

	// Title is a brief summary of the item.
	Title string `json:"title"`

	// Description elaborates on the title.
	Description string `json:"description"`

	// Embedding is the vector representation of Title+Description.
	// Computed once, immutable.
	Embedding []float32 `json:"-"`

	// Hits counts how many times this item (or a near-duplicate) was
	// regenerated across runs. Starts at 1, incremented by the harmonizer.
	Hits int `json:"hits"`

	// FirstSeen is when the item was first persisted. Immutable.
	FirstSeen time.Time `json:"first_seen"`

	// LastSeen is updated on every harmonizer match.
	LastSeen time.Time `json:"last_seen"`

	// Evidence back-references the conversations that produced this item.
	Evidence []Evidence `json:"evidence,omitempty"`

	// MatchID is set on candidates the deduplicator resolved to an
	// existing library item. Drives the harmonizer's merge path.
	// Never persisted.
	MatchID string `json:"-"`

	// Score is the ranker's quality score, attached for observability.
	// Never persisted.
	Score float64 `json:"score,omitempty"`

	// Order is the candidate's position in generation order. Used as the
	// deterministic tie-breaker throughout the pipeline. Never persisted.
	Order int `json:"-"`
}

// NewCandidate creates a transient candidate item. No ID is assigned and
// no embedding is computed; both happen later in the pipeline.
func NewCandidate(typ Type, title, description string, order int) (*Item, error) {
	if _, err := ParseType(string(typ)); err != nil {
		return nil, err
	}
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if description == "" {
		return nil, ErrEmptyDescription
	}
	return &Item{
		Type:        typ,
		Title:       title,
		Description: description,
		Order:       order,
	}, nil
}

// EmbedText returns the text whose embedding represents this item.
func (it *Item) EmbedText() string {
	return it.Title + "\n" + it.Description
}

// IsNew reports whether the candidate has no match in the library.
func (it *Item) IsNew() bool {
	return it.MatchID == ""
}

// Persist stamps the candidate for first persistence: assigns an ID,
// sets hits to 1 and both timestamps to now.
func (it *Item) Persist(now time.Time) {
	it.ID = uuid.New().String()
	it.Hits = 1
	it.FirstSeen = now
	it.LastSeen = now
}

// Validate checks a persisted item's fields.
func (it *Item) Validate() error {
	if it.ID == "" {
		return errors.New("item ID cannot be empty")
	}
	if _, err := uuid.Parse(it.ID); err != nil {
		return errors.New("invalid item ID format")
	}
	if _, err := ParseType(string(it.Type)); err != nil {
		return err
	}
	if it.Title == "" {
		return ErrEmptyTitle
	}
	if it.Description == "" {
		return ErrEmptyDescription
	}
	if it.Hits < 1 {
		return errors.New("hits must be at least 1")
	}
	if it.LastSeen.Before(it.FirstSeen) {
		return errors.New("last seen cannot precede first seen")
	}
	return nil
}
