// Package vectorstore defines the interface for vector storage operations.
//
// The store indexes pre-embedded documents: callers compute vectors via the
// embeddings package and the store never embeds on its own. Two
// implementations exist: an embedded chromem-go store (default, zero
// infrastructure) and a Qdrant gRPC store.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrMissingVector indicates a document without a pre-computed embedding.
	ErrMissingVector = errors.New("document has no embedding vector")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName validates a collection name against naming rules.
// Rejects uppercase, special chars, path traversal, spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// CollectionInfo contains metadata about a vector collection.
type CollectionInfo struct {
	// Name is the collection name.
	Name string `json:"name"`

	// PointCount is the number of vectors in the collection.
	PointCount int `json:"point_count"`

	// VectorSize is the dimensionality of vectors in this collection.
	VectorSize int `json:"vector_size"`
}

// Store is the interface for vector storage operations.
//
// Collections partition documents: one collection holds conversation
// fragments, and one collection per item type holds the persisted library.
// All documents carry their embedding; upserts are idempotent by ID.
type Store interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context, name string, vectorSize int) error

	// AddDocuments upserts pre-embedded documents into a collection.
	// Upserting an existing ID replaces the stored document.
	// Returns the IDs of added documents.
	AddDocuments(ctx context.Context, collection string, docs []Document) ([]string, error)

	// Search returns up to k documents nearest to the query vector,
	// ordered by similarity score (highest first). Results scoring below
	// minScore are dropped.
	Search(ctx context.Context, collection string, vector []float32, k int, minScore float32) ([]SearchResult, error)

	// ListDocuments returns every document in a collection, vectors
	// included. Returns an empty slice for a missing collection.
	ListDocuments(ctx context.Context, collection string) ([]Document, error)

	// DeleteDocuments deletes documents by their IDs.
	DeleteDocuments(ctx context.Context, collection string, ids []string) error

	// CollectionExists checks if a collection exists.
	CollectionExists(ctx context.Context, name string) (bool, error)

	// GetCollectionInfo returns metadata about a collection.
	// Returns ErrCollectionNotFound if the collection doesn't exist.
	GetCollectionInfo(ctx context.Context, name string) (*CollectionInfo, error)

	// Close closes the vector store connection and releases resources.
	Close() error
}
