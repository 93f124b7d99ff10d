// Package memory provides an in-memory store implementation for
// development and testing.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/boardkeeper/boardkeeper/internal/store"
)

// Store keeps all tables in process memory, guarded by a single lock.
// Range scans sort on (indexed URL, id) at call time, which is fine at
// test and local-dev scale.
type Store struct {
	mu      sync.RWMutex
	sources map[uuid.UUID]store.Source
	tables  map[store.Table]map[string]store.Record
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		sources: make(map[uuid.UUID]store.Source),
		tables:  make(map[store.Table]map[string]store.Record),
	}
}

// ListSources returns all configured sources.
func (s *Store) ListSources(_ context.Context) ([]store.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Source, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// SaveSource inserts or replaces a source by ID.
func (s *Store) SaveSource(_ context.Context, src store.Source) error {
	if src.ID == uuid.Nil {
		return errors.New("source id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[src.ID] = src
	return nil
}

// SourceByCanonicalKey finds the source registered under a canonical key.
func (s *Store) SourceByCanonicalKey(_ context.Context, key string) (*store.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, src := range s.sources {
		if src.CanonicalKey == key {
			cp := src
			return &cp, nil
		}
	}
	return nil, nil
}

// SourceByID fetches a source by ID.
func (s *Store) SourceByID(_ context.Context, id uuid.UUID) (*store.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := src
	return &cp, nil
}

// Insert adds a dependent row to a table.
func (s *Store) Insert(_ context.Context, table store.Table, rec store.Record) error {
	if !table.Valid() {
		return errors.New("unknown table")
	}
	if rec.ID == "" {
		return errors.New("record id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tables[table]
	if !ok {
		rows = make(map[string]store.Record)
		s.tables[table] = rows
	}
	rows[rec.ID] = rec
	return nil
}

// ScanRange returns one page of rows whose indexed URL falls in [lo, hi),
// ordered by (indexed URL, id) and resuming after the cursor position.
func (s *Store) ScanRange(
	_ context.Context,
	table store.Table,
	lo, hi, cursor string,
	limit int,
) (store.Page, error) {
	if !table.Valid() {
		return store.Page{}, errors.New("unknown table")
	}
	if limit <= 0 {
		return store.Page{}, errors.New("limit must be > 0")
	}
	pos, err := store.DecodeCursor(cursor)
	if err != nil {
		return store.Page{}, err
	}

	s.mu.RLock()
	candidates := make([]store.Record, 0)
	for _, rec := range s.tables[table] {
		if rec.IndexedURL < lo || rec.IndexedURL >= hi {
			continue
		}
		if !pos.After(rec.IndexedURL, rec.ID) {
			continue
		}
		candidates = append(candidates, rec)
	}
	s.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].IndexedURL != candidates[j].IndexedURL {
			return candidates[i].IndexedURL < candidates[j].IndexedURL
		}
		return candidates[i].ID < candidates[j].ID
	})

	page := store.Page{IsDone: true}
	if len(candidates) > limit {
		page.IsDone = false
		candidates = candidates[:limit]
	}
	page.Records = candidates
	if n := len(candidates); n > 0 {
		last := candidates[n-1]
		page.ContinueCursor = store.Cursor{Key: last.IndexedURL, ID: last.ID}.Encode()
	}
	return page, nil
}

// Delete removes a row by ID. Deleting an absent row is not an error so
// that re-running a wipe stays idempotent.
func (s *Store) Delete(_ context.Context, table store.Table, id string) error {
	if !table.Valid() {
		return errors.New("unknown table")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables[table], id)
	return nil
}

// JobDetailByJob finds the zero-or-one job_details row owned by a job.
func (s *Store) JobDetailByJob(_ context.Context, jobID string) (*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.tables[store.TableJobDetails] {
		if rec.JobID == jobID {
			cp := rec
			return &cp, nil
		}
	}
	return nil, nil
}

// Count reports the number of rows currently in a table.
func (s *Store) Count(table store.Table) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }
