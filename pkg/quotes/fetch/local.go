package fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cognicore/quotes/pkg/quotes/internalerr"
)

// Local serves datasets from a mirror directory laid out as <root>/<repo>/...
type Local struct {
	Root string
}

// NewLocal returns a Fetcher reading from root.
func NewLocal(root string) *Local {
	return &Local{Root: root}
}

// FetchFile implements Fetcher.
func (l *Local) FetchFile(ctx context.Context, repo, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", internalerr.ErrFetch, err)
	}
	path := filepath.Join(l.Root, filepath.FromSlash(repo), filepath.FromSlash(filename))
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s/%s: %w", internalerr.ErrFetch, repo, filename, internalerr.ErrNotFound)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s/%s is a directory", internalerr.ErrFetch, repo, filename)
	}
	return path, nil
}

// FetchSnapshot implements Fetcher.
func (l *Local) FetchSnapshot(ctx context.Context, repo string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", internalerr.ErrFetch, err)
	}
	dir := filepath.Join(l.Root, filepath.FromSlash(repo))
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: snapshot %s: %w", internalerr.ErrFetch, repo, internalerr.ErrNotFound)
	}
	return dir, nil
}

var _ Fetcher = (*Local)(nil)
