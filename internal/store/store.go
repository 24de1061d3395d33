// Package store adapts a document database offering single-document atomic
// writes, server-side numeric increments, and filtered queries. The engine is
// built around those primitives only: there are no multi-document
// transactions, so all cross-document consistency lives in the callers.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Collections consumed by the engine.
const (
	CollectionBattles       = "battles"
	CollectionVideos        = "videos"
	CollectionUsers         = "users"
	CollectionViews         = "views"
	CollectionNotifications = "notifications"
	CollectionFollows       = "follows"
)

// Document is a single record within a collection.
type Document struct {
	ID        string
	Data      map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Decode unmarshals the document payload into the provided struct.
func (d Document) Decode(v any) error {
	raw, err := json.Marshal(d.Data)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", d.ID, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	return nil
}

// Encode converts a struct into the map shape persisted for a document.
func Encode(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document data: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode document data: %w", err)
	}
	return data, nil
}

// Filter operators. The range operators compare the JSON text representation,
// which orders correctly for RFC 3339 timestamps.
const (
	OpEqual          = "=="
	OpIn             = "in"
	OpLessOrEqual    = "<="
	OpGreaterOrEqual = ">="
)

// Filter constrains a query to documents whose field matches the value.
// Field uses dot notation for nested values, e.g. "player1.votes".
type Filter struct {
	Field string
	Op    string
	Value any
}

// Order controls result ordering. Numeric forces numeric comparison, needed
// for counter fields where text ordering would be wrong.
type Order struct {
	Field   string
	Desc    bool
	Numeric bool
}

// Query describes a filtered, ordered, bounded read of a collection.
type Query struct {
	Filters []Filter
	OrderBy *Order
	Limit   int
}

// Store is the narrow contract the engine requires from the backing document
// store. Every operation may fail with ErrUnavailable (transient) or
// ErrNotFound (permanent for that id).
type Store interface {
	// Get fetches a single document by id.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Query returns the documents matching q.
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	// Create persists a new document, generating an id when none is given,
	// and stamps createdAt. An existing id yields ErrConflict.
	Create(ctx context.Context, collection, id string, data map[string]any) (string, error)
	// Update shallow-merges patch into the document and stamps updatedAt.
	Update(ctx context.Context, collection, id string, patch map[string]any) error
	// Delete removes the document.
	Delete(ctx context.Context, collection, id string) error
	// Increment applies the numeric deltas atomically server-side, never as a
	// read-modify-write. All deltas land in one write, so counters on the
	// same document stay mutually consistent under concurrent writers.
	Increment(ctx context.Context, collection, id string, deltas map[string]int64) error
	// Subscribe invokes fn for documents matching q as they change. Delivery
	// latency is unspecified and a document may be redelivered; handlers must
	// treat redelivery as a no-op. The returned unsubscribe is safe to call
	// multiple times.
	Subscribe(ctx context.Context, collection string, q Query, fn func(Document)) (func(), error)
}
