package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("ideabank.vectorstore.qdrant")

// scrollPageSize is the batch size for ListDocuments pagination.
const scrollPageSize = 1000

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (6334, not the 6333 HTTP port).
	Port int

	// VectorSize is the dimensionality of embeddings.
	// Must match the embedder's output dimensions.
	VectorSize int

	// UseTLS enables TLS encryption for the gRPC connection.
	UseTLS bool

	// MaxRetries is the maximum number of retry attempts for transient failures.
	// Default: 3
	MaxRetries int

	// RetryBackoff is the initial backoff duration for retries.
	// Doubles on each retry. Default: 1s
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes. Default: 50MB
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// IsTransientError checks if an error is transient (should retry).
// Returns true for network timeouts and temporary unavailability,
// false for invalid config, not found, permission denied.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore is a Store implementation using Qdrant's native gRPC client.
//
// Embedding and search calls against Qdrant may use bounded exponential
// backoff on transient failures; all other errors fail fast.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig

	// collections caches collection existence to avoid repeated checks.
	collections sync.Map
}

// NewQdrantStore creates a new QdrantStore and verifies connectivity.
func NewQdrantStore(config QdrantConfig) (*QdrantStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{client: client, config: config}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("health check failed: %w", err)
	}

	return store, nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// retryOperation retries an operation with exponential backoff on
// transient errors.
func (s *QdrantStore) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := s.config.RetryBackoff

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}
		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, s.config.MaxRetries, err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

// EnsureCollection creates the collection if it does not exist.
func (s *QdrantStore) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.EnsureCollection")
	defer span.End()

	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if _, ok := s.collections.Load(name); ok {
		return nil
	}

	exists, err := s.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		s.collections.Store(name, true)
		return nil
	}

	err = s.retryOperation(ctx, "create_collection", func() error {
		return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(vectorSize),
				Distance: qdrant.Distance_Cosine,
			}),
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", name, err)
	}

	s.collections.Store(name, true)
	span.SetStatus(codes.Ok, "success")
	return nil
}

// AddDocuments upserts pre-embedded documents into a collection.
func (s *QdrantStore) AddDocuments(ctx context.Context, collection string, docs []Document) ([]string, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.AddDocuments")
	defer span.End()

	span.SetAttributes(
		attribute.Int("document_count", len(docs)),
		attribute.String("collection", collection),
	)

	if len(docs) == 0 {
		return nil, ErrEmptyDocuments
	}
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	points := make([]*qdrant.PointStruct, len(docs))
	ids := make([]string, len(docs))
	for i, doc := range docs {
		if len(doc.Vector) == 0 {
			return nil, fmt.Errorf("%w: document %q", ErrMissingVector, doc.ID)
		}
		ids[i] = doc.ID

		payload := make(map[string]*qdrant.Value, len(doc.Metadata)+2)
		payload["content"] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: doc.Content}}
		payload["id"] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: doc.ID}}
		for k, v := range doc.Metadata {
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(doc.ID),
			Vectors: qdrant.NewVectors(doc.Vector...),
			Payload: payload,
		}
	}

	err := s.retryOperation(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         points,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("upserting points to collection %s: %w", collection, err)
	}

	RecordDocumentsAdded("qdrant", collection, len(ids))
	span.SetAttributes(attribute.Int("points_added", len(ids)))
	span.SetStatus(codes.Ok, "success")
	return ids, nil
}

// Search returns the k nearest documents to the query vector.
func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, k int, minScore float32) ([]SearchResult, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Search")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("k", k),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(vector) == 0 {
		return nil, ErrMissingVector
	}

	query := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	}
	if minScore > 0 {
		query.ScoreThreshold = qdrant.PtrOf(minScore)
	}

	var points []*qdrant.ScoredPoint
	err := s.retryOperation(ctx, "search", func() error {
		res, err := s.client.Query(ctx, query)
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		RecordSearch("qdrant", "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching collection %s: %w", collection, err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, point := range points {
		r := SearchResult{Score: point.Score}
		if vectors := point.GetVectors(); vectors != nil {
			if v := vectors.GetVector(); v != nil {
				r.Vector = v.GetData()
			}
		}
		r.Metadata = make(map[string]string)
		for key, v := range point.Payload {
			sv := v.GetStringValue()
			switch key {
			case "content":
				r.Content = sv
			case "id":
				r.ID = sv
			default:
				r.Metadata[key] = sv
			}
		}
		results = append(results, r)
	}

	RecordSearch("qdrant", "success")
	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// ListDocuments returns every document in a collection via the scroll API.
func (s *QdrantStore) ListDocuments(ctx context.Context, collection string) ([]Document, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.ListDocuments")
	defer span.End()

	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	exists, err := s.CollectionExists(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []Document{}, nil
	}

	var docs []Document
	var offset *qdrant.PointId
	for {
		var points []*qdrant.RetrievedPoint
		var next *qdrant.PointId
		err = s.retryOperation(ctx, "scroll", func() error {
			res, nextOffset, err := s.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
				CollectionName: collection,
				Offset:         offset,
				Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
				WithPayload:    qdrant.NewWithPayload(true),
				WithVectors:    qdrant.NewWithVectors(true),
			})
			if err != nil {
				return err
			}
			points = res
			next = nextOffset
			return nil
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("scrolling collection %s: %w", collection, err)
		}
		if len(points) == 0 {
			break
		}

		for _, point := range points {
			d := Document{Metadata: make(map[string]string)}
			if vectors := point.GetVectors(); vectors != nil {
				if v := vectors.GetVector(); v != nil {
					d.Vector = v.GetData()
				}
			}
			for key, v := range point.Payload {
				sv := v.GetStringValue()
				switch key {
				case "content":
					d.Content = sv
				case "id":
					d.ID = sv
				default:
					d.Metadata[key] = sv
				}
			}
			docs = append(docs, d)
		}

		if next == nil || len(points) < scrollPageSize {
			break
		}
		offset = next
	}

	span.SetAttributes(attribute.Int("document_count", len(docs)))
	span.SetStatus(codes.Ok, "success")
	return docs, nil
}

// DeleteDocuments deletes documents by their IDs.
func (s *QdrantStore) DeleteDocuments(ctx context.Context, collection string, ids []string) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.DeleteDocuments")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}

	err := s.retryOperation(ctx, "delete", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: &qdrant.Filter{
						Must: []*qdrant.Condition{
							{
								ConditionOneOf: &qdrant.Condition_Field{
									Field: &qdrant.FieldCondition{
										Key: "id",
										Match: &qdrant.Match{
											MatchValue: &qdrant.Match_Keywords{
												Keywords: &qdrant.RepeatedStrings{Strings: ids},
											},
										},
									},
								},
							},
						},
					},
				},
			},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting from collection %s: %w", collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// CollectionExists checks if a collection exists.
func (s *QdrantStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.CollectionExists")
	defer span.End()

	if err := ValidateCollectionName(name); err != nil {
		return false, err
	}
	if _, ok := s.collections.Load(name); ok {
		return true, nil
	}

	var exists bool
	err := s.retryOperation(ctx, "collection_exists", func() error {
		info, err := s.client.GetCollectionInfo(ctx, name)
		if err != nil {
			st, ok := status.FromError(err)
			if ok && st.Code() == grpccodes.NotFound {
				exists = false
				return nil
			}
			return err
		}
		exists = info != nil
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("checking collection %s: %w", name, err)
	}

	if exists {
		s.collections.Store(name, true)
	}

	span.SetStatus(codes.Ok, "success")
	return exists, nil
}

// GetCollectionInfo returns metadata about a collection.
func (s *QdrantStore) GetCollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.GetCollectionInfo")
	defer span.End()

	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}

	var info *CollectionInfo
	err := s.retryOperation(ctx, "get_collection_info", func() error {
		collInfo, err := s.client.GetCollectionInfo(ctx, name)
		if err != nil {
			st, ok := status.FromError(err)
			if ok && st.Code() == grpccodes.NotFound {
				return ErrCollectionNotFound
			}
			return err
		}
		pointCount := 0
		if collInfo.PointsCount != nil {
			pointCount = int(*collInfo.PointsCount)
		}
		info = &CollectionInfo{
			Name:       name,
			PointCount: pointCount,
			VectorSize: s.config.VectorSize,
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrCollectionNotFound) {
			return nil, ErrCollectionNotFound
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("getting collection info for %s: %w", name, err)
	}

	span.SetStatus(codes.Ok, "success")
	return info, nil
}

// Ensure QdrantStore implements Store interface.
var _ Store = (*QdrantStore)(nil)
