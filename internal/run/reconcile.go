package run

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/ideabank/internal/item"
)

// Reconciliation is the outcome of checking a dropped event stream
// against the live library.
type Reconciliation struct {
	// Succeeded reports whether the run's persistence is consistent
	// with its last known statistics and may be treated as a late
	// success.
	Succeeded bool `json:"succeeded"`

	// SizeBefore is the library size the run observed at its start.
	SizeBefore int `json:"sizeBefore"`

	// SizeNow is the library size at reconciliation time.
	SizeNow int `json:"sizeNow"`

	// ItemsAdded is the last itemsAdded statistic seen on the stream.
	ItemsAdded int `json:"itemsAdded"`
}

// Reconcile resolves a stream that closed without a complete event.
// The library is re-queried: if its size grew by at least the last
// known itemsAdded statistic, the run persisted its work and counts as
// a late success rather than a failure.
func Reconcile(ctx context.Context, lib Library, typ item.Type, sizeBefore, lastItemsAdded int) (*Reconciliation, error) {
	sizeNow, err := lib.Size(ctx, typ)
	if err != nil {
		return nil, fmt.Errorf("re-querying library size: %w", err)
	}
	return &Reconciliation{
		Succeeded:  sizeNow >= sizeBefore+lastItemsAdded,
		SizeBefore: sizeBefore,
		SizeNow:    sizeNow,
		ItemsAdded: lastItemsAdded,
	}, nil
}
