package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cognicore/quotes/pkg/quotes/store"
)

// Store is an in-memory implementation of store.Store for tests.
type Store struct {
	mu    sync.RWMutex
	files map[string]store.File
	runs  map[string]store.Run
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		files: make(map[string]store.File),
		runs:  make(map[string]store.Run),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

func fileKey(repo, path string) string {
	return repo + "\x00" + path
}

// GetFile returns a cached file entry.
func (s *Store) GetFile(ctx context.Context, repo, path string) (store.File, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[fileKey(repo, path)]
	return f, ok, nil
}

// PutFile inserts or replaces a cached file entry.
func (s *Store) PutFile(ctx context.Context, f store.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.FetchedAt.IsZero() {
		f.FetchedAt = time.Now().UTC()
	}
	s.files[fileKey(f.Repo, f.Path)] = f
	return nil
}

// ListFiles returns the cached files of a repo sorted by path.
func (s *Store) ListFiles(ctx context.Context, repo string) ([]store.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.File
	for _, f := range s.files {
		if f.Repo == repo {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// RecordRun stores a run summary.
func (s *Store) RecordRun(ctx context.Context, r store.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.Sources = append([]store.SourceCount(nil), r.Sources...)
	s.runs[r.ID] = r
	return nil
}

// RecentRuns returns the newest runs first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	out := make([]store.Run, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ store.Store = (*Store)(nil)
