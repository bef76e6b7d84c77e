package vectorstore

import (
	"fmt"

	"go.uber.org/zap"
)

// Backend names accepted by New.
const (
	BackendChromem = "chromem"
	BackendQdrant  = "qdrant"
)

// Options selects and configures a Store backend.
type Options struct {
	// Backend is "chromem" (embedded, default) or "qdrant".
	Backend string

	// Path is the chromem persistence directory. Empty means in-memory.
	Path string

	// Host and Port locate the Qdrant gRPC endpoint.
	Host string
	Port int

	// VectorSize is the embedding dimensionality.
	VectorSize int
}

// New creates the Store backend named in opts.
func New(opts Options, logger *zap.Logger) (Store, error) {
	switch opts.Backend {
	case "", BackendChromem:
		return NewChromemStore(ChromemConfig{
			Path:       opts.Path,
			VectorSize: opts.VectorSize,
		}, logger)
	case BackendQdrant:
		return NewQdrantStore(QdrantConfig{
			Host:       opts.Host,
			Port:       opts.Port,
			VectorSize: opts.VectorSize,
		})
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, opts.Backend)
	}
}
