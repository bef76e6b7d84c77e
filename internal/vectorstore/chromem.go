package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("ideabank.vectorstore.chromem")

// ChromemConfig holds configuration for chromem-go embedded vector database.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Empty path means in-memory only (useful for tests).
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// VectorSize is the expected embedding dimension.
	// Must match the embedder's output dimension.
	// Default: 384 (for bge-small-en-v1.5)
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements the Store interface using chromem-go.
//
// chromem-go is an embeddable vector database with zero third-party
// dependencies. It provides in-memory storage with persistence to gob
// files, so no external database service is needed.
//
// All documents handed to this store arrive pre-embedded. The embedding
// function registered with chromem is a guard that rejects any attempt
// to embed texts inside the store.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger

	// collections tracks which collections have been created
	collections sync.Map
}

// NewChromemStore creates a new ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	var db *chromem.DB
	expandedPath := ""
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		expandedPath, err = expandChromemPath(config.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(expandedPath, 0755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
		}
		db, err = chromem.NewPersistentDB(expandedPath, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}

	store := &ChromemStore{
		db:     db,
		config: config,
		logger: logger,
	}

	logger.Info("ChromemStore initialized",
		zap.String("path", expandedPath),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize),
	)

	return store, nil
}

// expandChromemPath expands ~ to home directory.
func expandChromemPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// rejectEmbeddingFunc refuses to embed. Documents carry their own vectors;
// if chromem ever calls this, a caller forgot to set one.
//
// IMPORTANT: Must pass an embedding function, not nil, because chromem-go
// sets the default OpenAI embedder when nil is passed for persisted
// collections.
func rejectEmbeddingFunc(_ context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("%w: document %q has no vector", ErrMissingVector, truncateText(text, 40))
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// getOrCreateCollection gets or creates a collection.
func (s *ChromemStore) getOrCreateCollection(name string) (*chromem.Collection, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}

	collection, err := s.db.GetOrCreateCollection(name, nil, rejectEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", name, err)
	}

	s.collections.Store(name, true)
	return collection, nil
}

// EnsureCollection creates the collection if it does not exist.
// The vectorSize argument must match the configured dimension; chromem
// infers the actual dimension from the first stored vector.
func (s *ChromemStore) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	_, span := chromemTracer.Start(ctx, "ChromemStore.EnsureCollection")
	defer span.End()

	if vectorSize != 0 && vectorSize != s.config.VectorSize {
		return fmt.Errorf("vector size %d does not match configured size %d", vectorSize, s.config.VectorSize)
	}

	if _, err := s.getOrCreateCollection(name); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// AddDocuments adds pre-embedded documents to a collection.
func (s *ChromemStore) AddDocuments(ctx context.Context, collectionName string, docs []Document) ([]string, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.AddDocuments")
	defer span.End()

	span.SetAttributes(
		attribute.Int("document_count", len(docs)),
		attribute.String("collection", collectionName),
	)

	if len(docs) == 0 {
		return nil, ErrEmptyDocuments
	}

	collection, err := s.getOrCreateCollection(collectionName)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	chromemDocs := make([]chromem.Document, len(docs))
	ids := make([]string, len(docs))
	for i, doc := range docs {
		if len(doc.Vector) == 0 {
			return nil, fmt.Errorf("%w: document %q", ErrMissingVector, doc.ID)
		}
		if doc.ID == "" {
			return nil, fmt.Errorf("document at index %d has no ID", i)
		}
		ids[i] = doc.ID
		chromemDocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  doc.Metadata,
			Embedding: doc.Vector,
		}
	}

	// Concurrency of 1 since embeddings are already present.
	if err := collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("adding documents: %w", err)
	}

	RecordDocumentsAdded("chromem", collectionName, len(ids))
	span.SetAttributes(attribute.Int("documents_added", len(ids)))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("added documents to chromem",
		zap.String("collection", collectionName),
		zap.Int("count", len(docs)),
	)

	return ids, nil
}

// Search returns the k nearest documents to the query vector.
func (s *ChromemStore) Search(ctx context.Context, collectionName string, vector []float32, k int, minScore float32) ([]SearchResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collectionName),
		attribute.Int("k", k),
	)

	if err := ValidateCollectionName(collectionName); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(vector) == 0 {
		return nil, ErrMissingVector
	}

	collection := s.db.GetCollection(collectionName, rejectEmbeddingFunc)
	if collection == nil {
		span.SetStatus(codes.Error, "collection not found")
		return nil, ErrCollectionNotFound
	}

	// Cap k at collection size (chromem requires nResults <= doc count).
	docCount := collection.Count()
	if docCount == 0 {
		return []SearchResult{}, nil
	}
	if k > docCount {
		k = docCount
	}

	results, err := collection.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		RecordSearch("chromem", "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", collectionName, err)
	}

	searchResults := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if r.Similarity < minScore {
			continue
		}
		searchResults = append(searchResults, SearchResult{
			Document: Document{
				ID:       r.ID,
				Content:  r.Content,
				Vector:   r.Embedding,
				Metadata: r.Metadata,
			},
			Score: r.Similarity,
		})
	}

	RecordSearch("chromem", "success")
	span.SetAttributes(attribute.Int("results_count", len(searchResults)))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("searched chromem collection",
		zap.String("collection", collectionName),
		zap.Int("k", k),
		zap.Int("results", len(searchResults)),
	)

	return searchResults, nil
}

// ListDocuments returns every document in a collection.
//
// chromem has no scroll API, so this queries with a probe vector and
// nResults equal to the collection size. Cosine similarity to the probe
// is irrelevant here; every document comes back regardless of score.
func (s *ChromemStore) ListDocuments(ctx context.Context, collectionName string) ([]Document, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.ListDocuments")
	defer span.End()

	if err := ValidateCollectionName(collectionName); err != nil {
		return nil, err
	}

	collection := s.db.GetCollection(collectionName, rejectEmbeddingFunc)
	if collection == nil {
		return []Document{}, nil
	}

	docCount := collection.Count()
	if docCount == 0 {
		return []Document{}, nil
	}

	probe := make([]float32, s.config.VectorSize)
	probe[0] = 1

	results, err := collection.QueryEmbedding(ctx, probe, docCount, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("listing collection %s: %w", collectionName, err)
	}

	docs := make([]Document, len(results))
	for i, r := range results {
		docs[i] = Document{
			ID:       r.ID,
			Content:  r.Content,
			Vector:   r.Embedding,
			Metadata: r.Metadata,
		}
	}

	span.SetAttributes(attribute.Int("document_count", len(docs)))
	span.SetStatus(codes.Ok, "success")
	return docs, nil
}

// DeleteDocuments deletes documents by their IDs.
func (s *ChromemStore) DeleteDocuments(ctx context.Context, collectionName string, ids []string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteDocuments")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collectionName),
		attribute.Int("id_count", len(ids)),
	)

	if len(ids) == 0 {
		return nil
	}
	if err := ValidateCollectionName(collectionName); err != nil {
		return err
	}

	collection := s.db.GetCollection(collectionName, rejectEmbeddingFunc)
	if collection == nil {
		span.SetStatus(codes.Error, "collection not found")
		return ErrCollectionNotFound
	}

	var failures []string
	for _, id := range ids {
		if err := collection.Delete(ctx, nil, nil, id); err != nil {
			span.RecordError(err)
			s.logger.Error("failed to delete document",
				zap.String("collection", collectionName),
				zap.String("id", id),
				zap.Error(err),
			)
			failures = append(failures, id)
		}
	}
	if len(failures) > 0 {
		span.SetStatus(codes.Error, "partial deletion failure")
		return fmt.Errorf("failed to delete %d of %d documents: %v", len(failures), len(ids), failures)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// CollectionExists checks if a collection exists.
func (s *ChromemStore) CollectionExists(_ context.Context, name string) (bool, error) {
	if err := ValidateCollectionName(name); err != nil {
		return false, err
	}
	if _, ok := s.collections.Load(name); ok {
		return true, nil
	}
	collection := s.db.GetCollection(name, rejectEmbeddingFunc)
	if collection != nil {
		s.collections.Store(name, true)
		return true, nil
	}
	return false, nil
}

// GetCollectionInfo returns metadata about a collection.
func (s *ChromemStore) GetCollectionInfo(_ context.Context, name string) (*CollectionInfo, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}
	collection := s.db.GetCollection(name, rejectEmbeddingFunc)
	if collection == nil {
		return nil, ErrCollectionNotFound
	}
	return &CollectionInfo{
		Name:       name,
		PointCount: collection.Count(),
		VectorSize: s.config.VectorSize,
	}, nil
}

// Close releases resources. chromem persists on every write, so there
// is nothing to flush.
func (s *ChromemStore) Close() error {
	return nil
}

// Ensure ChromemStore implements Store interface.
var _ Store = (*ChromemStore)(nil)
