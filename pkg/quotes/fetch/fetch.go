// Package fetch retrieves raw dataset files and snapshots onto local disk.
//
// Every failure returned by a Fetcher wraps internalerr.ErrFetch so the
// pipeline can treat network, auth and not-found problems the same way.
package fetch

import (
	"context"
	"fmt"

	"github.com/cognicore/quotes/pkg/quotes/internalerr"
)

// Fetcher locates dataset content by source identifier and returns local paths.
type Fetcher interface {
	// FetchFile returns the local path of one file of a dataset repo.
	FetchFile(ctx context.Context, repo, filename string) (string, error)

	// FetchSnapshot returns a local directory holding the whole dataset repo.
	FetchSnapshot(ctx context.Context, repo string) (string, error)
}

// Unavailable returns a Fetcher that fails every request with cause, for
// runs where the real fetcher could not be set up.
func Unavailable(cause error) Fetcher {
	return unavailable{cause: cause}
}

type unavailable struct {
	cause error
}

func (u unavailable) FetchFile(_ context.Context, repo, filename string) (string, error) {
	return "", fmt.Errorf("%w: %s/%s: %w", internalerr.ErrFetch, repo, filename, u.cause)
}

func (u unavailable) FetchSnapshot(_ context.Context, repo string) (string, error) {
	return "", fmt.Errorf("%w: snapshot %s: %w", internalerr.ErrFetch, repo, u.cause)
}
