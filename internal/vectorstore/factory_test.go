package vectorstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ideabank/internal/vectorstore"
)

func TestNew_DefaultsToChromem(t *testing.T) {
	store, err := vectorstore.New(vectorstore.Options{VectorSize: 8}, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.(*vectorstore.ChromemStore)
	assert.True(t, ok)
}

func TestNew_RejectsUnknownBackend(t *testing.T) {
	_, err := vectorstore.New(vectorstore.Options{Backend: "pinecone", VectorSize: 8}, zap.NewNop())
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}
