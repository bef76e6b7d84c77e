// Package library persists harmonized items, partitioned by type.
//
// Items live in one vector store collection per type. The stored
// document carries the full item as JSON content plus its embedding,
// so similarity search and retrieval round-trip without a separate
// database.
package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ideabank/internal/item"
	"github.com/fyrsmithlabs/ideabank/internal/logging"
	"github.com/fyrsmithlabs/ideabank/internal/vectorstore"
)

var (
	// ErrNotFound indicates the item id is not in the library.
	ErrNotFound = errors.New("item not found in library")

	// ErrMissingID indicates an upsert without an assigned id.
	ErrMissingID = errors.New("item has no id")
)

// CollectionFor returns the vector store collection name for a type.
func CollectionFor(typ item.Type) string {
	return "library_" + strings.ReplaceAll(string(typ), "-", "_")
}

// Service is the persistent library over a vector store.
type Service struct {
	store      vectorstore.Store
	vectorSize int
	logger     *logging.Logger

	// itemLocks serializes read-modify-write per item id so concurrent
	// runs cannot lose hit-count updates.
	itemLocks sync.Map
}

// NewService creates a library service.
func NewService(store vectorstore.Store, vectorSize int, logger *logging.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:      store,
		vectorSize: vectorSize,
		logger:     logger.Named("library"),
	}, nil
}

func (s *Service) lockFor(id string) *sync.Mutex {
	mu, _ := s.itemLocks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// encode converts an item to its stored document.
func encode(it *item.Item) (vectorstore.Document, error) {
	content, err := json.Marshal(storedItem{
		ID:          it.ID,
		Type:        string(it.Type),
		Title:       it.Title,
		Description: it.Description,
		Hits:        it.Hits,
		FirstSeen:   it.FirstSeen,
		LastSeen:    it.LastSeen,
		Evidence:    it.Evidence,
	})
	if err != nil {
		return vectorstore.Document{}, fmt.Errorf("encoding item %s: %w", it.ID, err)
	}
	return vectorstore.Document{
		ID:      it.ID,
		Content: string(content),
		Vector:  it.Embedding,
		Metadata: map[string]string{
			"type": string(it.Type),
		},
	}, nil
}

// decode converts a stored document back to an item.
func decode(doc vectorstore.Document) (*item.Item, error) {
	var stored storedItem
	if err := json.Unmarshal([]byte(doc.Content), &stored); err != nil {
		return nil, fmt.Errorf("decoding item %s: %w", doc.ID, err)
	}
	return &item.Item{
		ID:          stored.ID,
		Type:        item.Type(stored.Type),
		Title:       stored.Title,
		Description: stored.Description,
		Embedding:   doc.Vector,
		Hits:        stored.Hits,
		FirstSeen:   stored.FirstSeen,
		LastSeen:    stored.LastSeen,
		Evidence:    stored.Evidence,
	}, nil
}

// storedItem is the JSON document persisted per item. The embedding
// lives on the vector store point, not in the JSON.
type storedItem struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Hits        int             `json:"hits"`
	FirstSeen   time.Time       `json:"firstSeen"`
	LastSeen    time.Time       `json:"lastSeen"`
	Evidence    []item.Evidence `json:"sourceEvidence,omitempty"`
}

// Get returns every persisted item of a type. A type with no
// collection yet yields an empty slice.
func (s *Service) Get(ctx context.Context, typ item.Type) ([]*item.Item, error) {
	if _, err := item.ParseType(string(typ)); err != nil {
		return nil, err
	}

	docs, err := s.store.ListDocuments(ctx, CollectionFor(typ))
	if err != nil {
		return nil, fmt.Errorf("listing library %s: %w", typ, err)
	}

	items := make([]*item.Item, 0, len(docs))
	for _, doc := range docs {
		it, err := decode(doc)
		if err != nil {
			s.logger.Warn(ctx, "skipping undecodable library document",
				zap.String("id", doc.ID),
				zap.Error(err),
			)
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

// GetByID returns one persisted item.
func (s *Service) GetByID(ctx context.Context, typ item.Type, id string) (*item.Item, error) {
	items, err := s.Get(ctx, typ)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if it.ID == id {
			return it, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Upsert writes an item, idempotent by id. The item must already be
// persisted form (id assigned, hits set).
func (s *Service) Upsert(ctx context.Context, it *item.Item) (*item.Item, error) {
	if it.ID == "" {
		return nil, ErrMissingID
	}
	if err := it.Validate(); err != nil {
		return nil, err
	}

	collection := CollectionFor(it.Type)
	if err := s.store.EnsureCollection(ctx, collection, s.vectorSize); err != nil {
		return nil, fmt.Errorf("ensuring collection %s: %w", collection, err)
	}

	doc, err := encode(it)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.AddDocuments(ctx, collection, []vectorstore.Document{doc}); err != nil {
		return nil, fmt.Errorf("upserting item %s: %w", it.ID, err)
	}
	return it, nil
}

// IncrementHit bumps an item's hit count, moves lastSeen forward, and
// appends evidence. The update is serialized per item id.
func (s *Service) IncrementHit(ctx context.Context, typ item.Type, id string, now time.Time, evidence ...item.Evidence) (*item.Item, error) {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	it, err := s.GetByID(ctx, typ, id)
	if err != nil {
		return nil, err
	}

	it.Hits++
	it.LastSeen = now
	it.Evidence = append(it.Evidence, evidence...)

	return s.Upsert(ctx, it)
}

// Size returns the number of persisted items of a type. A missing
// collection counts as zero.
func (s *Service) Size(ctx context.Context, typ item.Type) (int, error) {
	info, err := s.store.GetCollectionInfo(ctx, CollectionFor(typ))
	if err != nil {
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("sizing library %s: %w", typ, err)
	}
	return info.PointCount, nil
}

// TotalSize sums library sizes across all item types.
func (s *Service) TotalSize(ctx context.Context) (int, error) {
	total := 0
	for _, typ := range item.Types() {
		n, err := s.Size(ctx, typ)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
