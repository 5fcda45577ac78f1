// Package store persists the dataset fetch cache index and a history of
// build runs. Nothing about the record collection itself is stored here.
package store

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Store is the interface for the fetch cache and run manifest
type Store interface {
	Close() error

	// Cached dataset files
	GetFile(ctx context.Context, repo, path string) (File, bool, error)
	PutFile(ctx context.Context, f File) error
	ListFiles(ctx context.Context, repo string) ([]File, error)

	// Build runs
	RecordRun(ctx context.Context, r Run) error
	RecentRuns(ctx context.Context, limit int) ([]Run, error)
}

// File is a dataset file fetched from a remote repo and cached locally
type File struct {
	Repo      string
	Path      string // path inside the repo
	LocalPath string
	ETag      string
	Size      int64
	FetchedAt time.Time
}

// Run summarizes one build
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Sources    []SourceCount
}

// SourceCount is the per-source contribution recorded for a run
type SourceCount struct {
	Name    string `json:"name"`
	Added   int    `json:"added"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// NewRunID returns a lexically sortable run identifier.
func NewRunID() string {
	return ulid.Make().String()
}
