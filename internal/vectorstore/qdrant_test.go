package vectorstore_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/ideabank/internal/vectorstore"
)

func TestQdrantConfig_ApplyDefaults(t *testing.T) {
	cfg := vectorstore.QdrantConfig{VectorSize: 384}
	cfg.ApplyDefaults()

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 6334, cfg.Port)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.NotZero(t, cfg.RetryBackoff)
	assert.NotZero(t, cfg.MaxMessageSize)
}

func TestQdrantConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     vectorstore.QdrantConfig
		wantErr bool
	}{
		{
			name: "valid",
			cfg:  vectorstore.QdrantConfig{Host: "localhost", Port: 6334, VectorSize: 384},
		},
		{
			name:    "missing host",
			cfg:     vectorstore.QdrantConfig{Port: 6334, VectorSize: 384},
			wantErr: true,
		},
		{
			name:    "invalid port",
			cfg:     vectorstore.QdrantConfig{Host: "localhost", Port: 70000, VectorSize: 384},
			wantErr: true,
		},
		{
			name:    "missing vector size",
			cfg:     vectorstore.QdrantConfig{Host: "localhost", Port: 6334},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unavailable", status.Error(grpccodes.Unavailable, "down"), true},
		{"deadline exceeded", status.Error(grpccodes.DeadlineExceeded, "slow"), true},
		{"aborted", status.Error(grpccodes.Aborted, "conflict"), true},
		{"resource exhausted", status.Error(grpccodes.ResourceExhausted, "quota"), true},
		{"not found", status.Error(grpccodes.NotFound, "missing"), false},
		{"permission denied", status.Error(grpccodes.PermissionDenied, "no"), false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, vectorstore.IsTransientError(tt.err))
		})
	}
}

func TestValidateCollectionName(t *testing.T) {
	assert.NoError(t, vectorstore.ValidateCollectionName("library_idea"))
	assert.NoError(t, vectorstore.ValidateCollectionName("fragments"))

	assert.Error(t, vectorstore.ValidateCollectionName(""))
	assert.Error(t, vectorstore.ValidateCollectionName("Has-Caps"))
	assert.Error(t, vectorstore.ValidateCollectionName("spaces here"))
	assert.Error(t, vectorstore.ValidateCollectionName("dots.bad"))
}
