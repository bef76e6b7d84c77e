package item

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		input   string
		want    Type
		wantErr bool
	}{
		{"idea", TypeIdea, false},
		{"insight", TypeInsight, false},
		{"use-case", TypeUseCase, false},
		{"usecase", "", true},
		{"", "", true},
		{"IDEA", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseType(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewCandidate(t *testing.T) {
	it, err := NewCandidate(TypeIdea, "CLI for log triage", "A tool that clusters failing test output.", 3)
	require.NoError(t, err)

	assert.Empty(t, it.ID, "candidates carry no ID")
	assert.Nil(t, it.Embedding, "candidates carry no embedding")
	assert.True(t, it.IsNew())
	assert.Equal(t, 3, it.Order)
}

func TestNewCandidate_Invalid(t *testing.T) {
	_, err := NewCandidate(TypeIdea, "", "desc", 0)
	assert.ErrorIs(t, err, ErrEmptyTitle)

	_, err = NewCandidate(TypeIdea, "title", "", 0)
	assert.ErrorIs(t, err, ErrEmptyDescription)

	_, err = NewCandidate("journal", "title", "desc", 0)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestPersist(t *testing.T) {
	it, err := NewCandidate(TypeInsight, "Prefer table tests", "Recurring pattern across sessions.", 0)
	require.NoError(t, err)

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	it.Persist(now)

	assert.NotEmpty(t, it.ID)
	assert.Equal(t, 1, it.Hits)
	assert.Equal(t, now, it.FirstSeen)
	assert.Equal(t, now, it.LastSeen)
	require.NoError(t, it.Validate())
}

func TestValidate_RejectsBadItems(t *testing.T) {
	it, _ := NewCandidate(TypeUseCase, "Refactoring assistant", "Large mechanical edits.", 0)
	it.Persist(time.Now())

	bad := *it
	bad.Hits = 0
	assert.Error(t, bad.Validate())

	bad = *it
	bad.ID = "not-a-uuid"
	assert.Error(t, bad.Validate())

	bad = *it
	bad.LastSeen = bad.FirstSeen.Add(-time.Hour)
	assert.Error(t, bad.Validate())
}

func TestEmbedText(t *testing.T) {
	it, _ := NewCandidate(TypeIdea, "title", "description", 0)
	assert.Equal(t, "title\ndescription", it.EmbedText())
}
