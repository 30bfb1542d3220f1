// Package memory holds in-memory backend implementations for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/vindennt/webcarros/internal/backend"
)

type storedDoc struct {
	id     string
	seq    int
	fields map[string]any
}

// Documents is an in-memory document store.
// This implementation is safe for concurrent use.
type Documents struct {
	clock backend.Clock
	ids   backend.IDGenerator

	mu          sync.RWMutex
	seq         int
	collections map[string]map[string]*storedDoc
}

// NewDocuments creates an empty store. Nil clock or ids fall back to the real ones.
func NewDocuments(clock backend.Clock, ids backend.IDGenerator) *Documents {
	if clock == nil {
		clock = backend.RealClock{}
	}
	if ids == nil {
		ids = backend.UUIDGenerator{}
	}
	return &Documents{
		clock:       clock,
		ids:         ids,
		collections: make(map[string]map[string]*storedDoc),
	}
}

func (d *Documents) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	resolved := backend.ResolveServerTimestamps(fields, d.clock.Now())

	d.mu.Lock()
	defer d.mu.Unlock()

	coll, ok := d.collections[collection]
	if !ok {
		coll = make(map[string]*storedDoc)
		d.collections[collection] = coll
	}

	id := d.ids.New()
	if _, exists := coll[id]; exists {
		return "", fmt.Errorf("document id collision in %s: %s", collection, id)
	}
	d.seq++
	coll[id] = &storedDoc{id: id, seq: d.seq, fields: resolved}
	return id, nil
}

func (d *Documents) Get(ctx context.Context, collection, id string) (*backend.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	doc, ok := d.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, backend.ErrNotFound)
	}
	out := doc.toDocument()
	return &out, nil
}

func (d *Documents) Query(ctx context.Context, collection string, q backend.Query) ([]backend.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	matched := make([]*storedDoc, 0)
	for _, doc := range d.collections[collection] {
		if doc.matches(q.Filters) {
			matched = append(matched, doc)
		}
	}
	d.mu.RUnlock()

	slices.SortStableFunc(matched, func(a, b *storedDoc) int {
		if q.OrderBy != "" {
			c := backend.Compare(a.fields[q.OrderBy], b.fields[q.OrderBy])
			if q.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return a.seq - b.seq
	})

	out := make([]backend.Document, 0, len(matched))
	for _, doc := range matched {
		out = append(out, doc.toDocument())
	}
	return out, nil
}

func (d *Documents) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.collections[collection][id]; !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, backend.ErrNotFound)
	}
	delete(d.collections[collection], id)
	return nil
}

// Count returns the number of documents in a collection.
func (d *Documents) Count(collection string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.collections[collection])
}

func (s *storedDoc) matches(filters []backend.Filter) bool {
	for _, f := range filters {
		if !f.Match(s.fields[f.Field]) {
			return false
		}
	}
	return true
}

func (s *storedDoc) toDocument() backend.Document {
	return backend.Document{ID: s.id, Fields: maps.Clone(s.fields)}
}

// Compile-time check that Documents implements backend.Documents
var _ backend.Documents = (*Documents)(nil)
