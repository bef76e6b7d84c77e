package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestConfigValidate(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Format = "xml"
	assert.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Level = "loud"
	assert.Error(t, cfg.Validate())
}

func TestNewLogger_Defaults(t *testing.T) {
	l, err := NewLogger(nil)
	require.NoError(t, err)
	require.NotNil(t, l.Underlying())
}

func TestContextFields_RunID(t *testing.T) {
	ctx := ContextWithRunID(context.Background(), "run-42")
	assert.Equal(t, "run-42", RunIDFromContext(ctx))

	tl := NewTestLogger()
	tl.Info(ctx, "phase transition")

	entries := tl.All()
	require.Len(t, entries, 1)
	found := false
	for _, f := range entries[0].Context {
		if f.Key == "run.id" && f.String == "run-42" {
			found = true
		}
	}
	assert.True(t, found, "run.id field should be attached from context")
}

func TestTestLogger_AssertLogged(t *testing.T) {
	tl := NewTestLogger()
	tl.Warn(context.Background(), "search seed failed")
	tl.AssertLogged(t, zapcore.WarnLevel, "seed failed")
}
