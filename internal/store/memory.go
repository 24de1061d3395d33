package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewMemory returns a Store backed by in-memory maps, for tests and local
// development. Documents are normalized through JSON on every write so reads
// see the same value shapes the Postgres adapter produces.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]Document),
		subs:        make(map[int]*memorySub),
		now:         time.Now,
	}
}

// Memory implements Store without a backing database. Subscriptions are
// notified synchronously on every matching write.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
	subs        map[int]*memorySub
	nextSub     int
	now         func() time.Time
}

type memorySub struct {
	collection string
	query      Query
	fn         func(Document)
}

// WithNowFunc overrides the clock. Useful for tests.
func (m *Memory) WithNowFunc(now func() time.Time) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

// Get fetches a single document by id.
func (m *Memory) Get(_ context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, ErrNotFound)
	}
	return cloneDocument(doc), nil
}

// Query returns the documents matching q.
func (m *Memory) Query(_ context.Context, collection string, q Query) ([]Document, error) {
	m.mu.RLock()
	var docs []Document
	for _, doc := range m.collections[collection] {
		if matches(doc, q.Filters) {
			docs = append(docs, cloneDocument(doc))
		}
	}
	m.mu.RUnlock()

	if q.OrderBy != nil {
		sortDocuments(docs, *q.OrderBy)
	}
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs, nil
}

// Create persists a new document, stamping id and createdAt when absent.
func (m *Memory) Create(_ context.Context, collection, id string, data map[string]any) (string, error) {
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	now := m.now().UTC()

	if _, ok := m.collections[collection][id]; ok {
		m.mu.Unlock()
		return "", fmt.Errorf("create %s/%s: %w", collection, id, ErrConflict)
	}

	clone := make(map[string]any, len(data)+2)
	for k, v := range data {
		clone[k] = v
	}
	clone["id"] = id
	if _, ok := clone["createdAt"]; !ok {
		clone["createdAt"] = now
	}

	normalized, err := normalize(clone)
	if err != nil {
		m.mu.Unlock()
		return "", fmt.Errorf("create %s/%s: %w", collection, id, err)
	}

	doc := Document{ID: id, Data: normalized, CreatedAt: createdStamp(normalized["createdAt"], now), UpdatedAt: now}
	if m.collections[collection] == nil {
		m.collections[collection] = make(map[string]Document)
	}
	m.collections[collection][id] = doc
	subs := m.matchingSubs(collection, doc)
	m.mu.Unlock()

	notify(subs, doc)
	return id, nil
}

// Update shallow-merges patch into the document payload.
func (m *Memory) Update(_ context.Context, collection, id string, patch map[string]any) error {
	normalized, err := normalize(patch)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}

	m.mu.Lock()
	doc, ok := m.collections[collection][id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}

	doc = cloneDocument(doc)
	for k, v := range normalized {
		doc.Data[k] = v
	}
	doc.UpdatedAt = m.now().UTC()
	m.collections[collection][id] = doc
	subs := m.matchingSubs(collection, doc)
	m.mu.Unlock()

	notify(subs, doc)
	return nil
}

// Delete removes the document.
func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[collection][id]; !ok {
		return fmt.Errorf("delete %s/%s: %w", collection, id, ErrNotFound)
	}
	delete(m.collections[collection], id)
	return nil
}

// Increment applies the numeric deltas as one atomic mutation of the document.
func (m *Memory) Increment(_ context.Context, collection, id string, deltas map[string]int64) error {
	if len(deltas) == 0 {
		return nil
	}

	m.mu.Lock()
	doc, ok := m.collections[collection][id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("increment %s/%s: %w", collection, id, ErrNotFound)
	}

	doc = cloneDocument(doc)
	for field, delta := range deltas {
		if err := addToField(doc.Data, field, delta); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("increment %s/%s: %w", collection, id, err)
		}
	}
	doc.UpdatedAt = m.now().UTC()
	m.collections[collection][id] = doc
	subs := m.matchingSubs(collection, doc)
	m.mu.Unlock()

	notify(subs, doc)
	return nil
}

// Subscribe registers fn for matching writes. Notifications are synchronous.
func (m *Memory) Subscribe(_ context.Context, collection string, q Query, fn func(Document)) (func(), error) {
	if fn == nil {
		return nil, fmt.Errorf("subscribe: nil handler")
	}

	m.mu.Lock()
	key := m.nextSub
	m.nextSub++
	m.subs[key] = &memorySub{collection: collection, query: q, fn: fn}
	m.mu.Unlock()

	unsubscribe := func() {
		m.mu.Lock()
		delete(m.subs, key)
		m.mu.Unlock()
	}
	return unsubscribe, nil
}

func (m *Memory) matchingSubs(collection string, doc Document) []*memorySub {
	var out []*memorySub
	for _, sub := range m.subs {
		if sub.collection == collection && matches(doc, sub.query.Filters) {
			out = append(out, sub)
		}
	}
	return out
}

func notify(subs []*memorySub, doc Document) {
	for _, sub := range subs {
		sub.fn(cloneDocument(doc))
	}
}

func cloneDocument(doc Document) Document {
	data, err := normalize(doc.Data)
	if err != nil {
		// Data already passed through normalize on write.
		data = map[string]any{}
	}
	doc.Data = data
	return doc
}

func normalize(data map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		value, ok := lookup(doc.Data, f.Field)
		if !ok {
			return false
		}
		text := memoryText(value)
		switch f.Op {
		case OpIn:
			found := false
			for _, candidate := range textValues(f.Value) {
				if text == candidate {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case OpLessOrEqual:
			if text > textValue(f.Value) {
				return false
			}
		case OpGreaterOrEqual:
			if text < textValue(f.Value) {
				return false
			}
		default:
			if text != textValue(f.Value) {
				return false
			}
		}
	}
	return true
}

func sortDocuments(docs []Document, order Order) {
	sort.SliceStable(docs, func(i, j int) bool {
		var less bool
		switch {
		case order.Field == "createdAt":
			less = docs[i].CreatedAt.Before(docs[j].CreatedAt)
		case order.Numeric:
			less = numericField(docs[i], order.Field) < numericField(docs[j], order.Field)
		default:
			vi, _ := lookup(docs[i].Data, order.Field)
			vj, _ := lookup(docs[j].Data, order.Field)
			less = memoryText(vi) < memoryText(vj)
		}
		if order.Desc {
			return !less
		}
		return less
	})
}

func numericField(doc Document, field string) float64 {
	value, ok := lookup(doc.Data, field)
	if !ok {
		return 0
	}
	n, ok := value.(float64)
	if !ok {
		return 0
	}
	return n
}

func lookup(data map[string]any, field string) (any, bool) {
	segments := fieldPath(field)
	var current any = data
	for _, segment := range segments {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func addToField(data map[string]any, field string, delta int64) error {
	segments := fieldPath(field)
	current := data
	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			return fmt.Errorf("field %s: missing parent %q", field, segment)
		}
		current = next
	}

	leaf := segments[len(segments)-1]
	existing, _ := current[leaf].(float64)
	current[leaf] = existing + float64(delta)
	return nil
}

func memoryText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		raw, _ := json.Marshal(t)
		return string(raw)
	}
}

var _ Store = (*Memory)(nil)
