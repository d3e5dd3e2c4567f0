// Package memory provides an in-memory dataset catalog for single-process
// hosts and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/embedviz/vizframe/errs"
	"github.com/embedviz/vizframe/internal/store"
)

// Store is an in-memory implementation of the dataset Catalog.
type Store struct {
	mu      sync.RWMutex
	records map[string]*entry
}

type entry struct {
	mu     sync.Mutex
	record store.Record
}

// New creates a memory-backed catalog.
func New() *Store {
	s := new(Store)
	s.records = make(map[string]*entry)
	return s
}

// Get returns the current record for the provided slug.
func (s *Store) Get(ctx context.Context, slug string) (store.Record, error) {
	if err := store.ValidateSlug(slug); err != nil {
		return store.Record{}, err
	}
	if err := ctxErr(ctx, "get"); err != nil {
		return store.Record{}, err
	}
	s.mu.RLock()
	e, ok := s.records[slug]
	s.mu.RUnlock()
	if !ok {
		return store.Record{}, errs.New("store/memory", errs.CodeNotFound,
			errs.WithMessage("dataset not found"),
			errs.WithMetaField("slug", slug))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record.Clone(), nil
}

// List returns every record sorted by slug.
func (s *Store) List(ctx context.Context) ([]store.Record, error) {
	if err := ctxErr(ctx, "list"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.records))
	for _, e := range s.records {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]store.Record, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.record.Clone())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// Put creates a new record at revision 1. An existing slug is a conflict;
// revisions only ever move forward through CompareAndSwap.
func (s *Store) Put(ctx context.Context, record store.Record) (store.Record, error) {
	if err := record.Validate(); err != nil {
		return store.Record{}, err
	}
	if err := ctxErr(ctx, "put"); err != nil {
		return store.Record{}, err
	}

	record.Revision = 1
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.Slug]; exists {
		return store.Record{}, errs.New("store/memory", errs.CodeConflict,
			errs.WithMessage("dataset already exists"),
			errs.WithMetaField("slug", record.Slug))
	}
	e := new(entry)
	e.record = record.Clone()
	s.records[record.Slug] = e
	return e.record.Clone(), nil
}

// CompareAndSwap replaces the record if the previous revision matches.
func (s *Store) CompareAndSwap(ctx context.Context, prevRevision uint64, record store.Record) (store.Record, error) {
	if err := record.Validate(); err != nil {
		return store.Record{}, err
	}
	if err := ctxErr(ctx, "cas"); err != nil {
		return store.Record{}, err
	}
	s.mu.RLock()
	e, ok := s.records[record.Slug]
	s.mu.RUnlock()
	if !ok {
		return store.Record{}, errs.New("store/memory", errs.CodeNotFound,
			errs.WithMessage("dataset not found"),
			errs.WithMetaField("slug", record.Slug))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.record.Revision != prevRevision {
		return store.Record{}, errs.New("store/memory", errs.CodeConflict,
			errs.WithMessage("revision mismatch"),
			errs.WithMetaField("slug", record.Slug))
	}
	record.ID = e.record.ID
	record.Revision = prevRevision + 1
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	e.record = record.Clone()
	return e.record.Clone(), nil
}

func ctxErr(ctx context.Context, op string) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("memory store %s context: %w", op, ctx.Err())
	default:
		return nil
	}
}
