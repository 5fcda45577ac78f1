package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/go-resty/resty/v2"
	"github.com/gofrs/flock"
	"github.com/sethvargo/go-retry"

	"github.com/cognicore/quotes/internal/logger"
	"github.com/cognicore/quotes/pkg/quotes/internalerr"
	"github.com/cognicore/quotes/pkg/quotes/store"
)

// DefaultHubURL is the public Hugging Face hub.
const DefaultHubURL = "https://huggingface.co"

// HubOptions configures a Hub fetcher.
type HubOptions struct {
	BaseURL  string
	Token    string // optional bearer token
	Revision string // defaults to "main"
	CacheDir string // downloaded files live under <CacheDir>/datasets/<repo>
	Retries  uint64
	Backoff  time.Duration // base of the exponential backoff
	Timeout  time.Duration
	Store    store.Store // optional cache index; without it files are re-fetched each run
	Logger   *charmlog.Logger
}

// Hub downloads dataset files from a Hugging Face compatible hub and caches
// them on local disk.
type Hub struct {
	client *resty.Client
	opts   HubOptions
	log    *charmlog.Logger
}

// NewHub creates a Hub fetcher with defaults applied.
func NewHub(opts HubOptions) *Hub {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultHubURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Revision == "" {
		opts.Revision = "main"
	}
	if opts.CacheDir == "" {
		opts.CacheDir = filepath.Join(os.TempDir(), "quotes-cache")
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}

	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", "quotes-build")
	if opts.Token != "" {
		client.SetAuthToken(opts.Token)
	}

	return &Hub{
		client: client,
		opts:   opts,
		log:    logger.OrDiscard(opts.Logger),
	}
}

// Lock takes an exclusive lock on the cache directory. The returned function
// releases it.
func (h *Hub) Lock() (func() error, error) {
	if err := os.MkdirAll(h.opts.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	fl := flock.New(filepath.Join(h.opts.CacheDir, ".lock"))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock cache dir: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", internalerr.ErrCacheLocked, h.opts.CacheDir)
	}
	return fl.Unlock, nil
}

// repoDir is where files of repo are cached.
func (h *Hub) repoDir(repo string) string {
	return filepath.Join(h.opts.CacheDir, "datasets", filepath.FromSlash(repo))
}

// FetchFile implements Fetcher.
func (h *Hub) FetchFile(ctx context.Context, repo, filename string) (string, error) {
	if err := checkRel(repo); err != nil {
		return "", fmt.Errorf("%w: repo: %w", internalerr.ErrFetch, err)
	}
	if err := checkRel(filename); err != nil {
		return "", fmt.Errorf("%w: %s: %w", internalerr.ErrFetch, repo, err)
	}
	local := filepath.Join(h.repoDir(repo), filepath.FromSlash(filename))

	if h.cached(ctx, repo, filename, local) {
		h.log.Debug("cache hit", "repo", repo, "file", filename)
		return local, nil
	}

	if err := h.download(ctx, repo, filename, local); err != nil {
		return "", fmt.Errorf("%w: %s/%s: %w", internalerr.ErrFetch, repo, filename, err)
	}
	return local, nil
}

// FetchSnapshot implements Fetcher. It lists the repo files and fetches each.
func (h *Hub) FetchSnapshot(ctx context.Context, repo string) (string, error) {
	if err := checkRel(repo); err != nil {
		return "", fmt.Errorf("%w: snapshot: %w", internalerr.ErrFetch, err)
	}
	files, err := h.listFiles(ctx, repo)
	if err != nil {
		return "", fmt.Errorf("%w: snapshot %s: %w", internalerr.ErrFetch, repo, err)
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%w: snapshot %s: %w", internalerr.ErrFetch, repo, internalerr.ErrNotFound)
	}
	for _, name := range files {
		if _, err := h.FetchFile(ctx, repo, name); err != nil {
			return "", err
		}
	}
	return h.repoDir(repo), nil
}

func (h *Hub) cached(ctx context.Context, repo, filename, local string) bool {
	if h.opts.Store == nil {
		return false
	}
	f, ok, err := h.opts.Store.GetFile(ctx, repo, filename)
	if err != nil || !ok {
		return false
	}
	info, err := os.Stat(f.LocalPath)
	if err != nil || info.Size() != f.Size {
		return false
	}
	return f.LocalPath == local
}

type datasetInfo struct {
	Siblings []struct {
		RFilename string `json:"rfilename"`
	} `json:"siblings"`
}

func (h *Hub) listFiles(ctx context.Context, repo string) ([]string, error) {
	var info datasetInfo
	err := retry.Do(ctx, h.backoff(), func(ctx context.Context) error {
		resp, err := h.client.R().
			SetContext(ctx).
			SetResult(&info).
			Get("/api/datasets/" + repo)
		return classify(resp, err)
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(info.Siblings))
	for _, s := range info.Siblings {
		if s.RFilename == "" || strings.HasPrefix(s.RFilename, ".") {
			continue
		}
		if err := checkRel(s.RFilename); err != nil {
			h.log.Warn("ignoring listed file", "repo", repo, "err", err)
			continue
		}
		names = append(names, s.RFilename)
	}
	return names, nil
}

func (h *Hub) download(ctx context.Context, repo, filename, local string) error {
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return err
	}
	tmp := local + ".part"
	defer os.Remove(tmp)

	path := fmt.Sprintf("/datasets/%s/resolve/%s/%s", repo, url.PathEscape(h.opts.Revision), escapePath(filename))
	start := time.Now()

	var etag string
	err := retry.Do(ctx, h.backoff(), func(ctx context.Context) error {
		resp, err := h.client.R().
			SetContext(ctx).
			SetOutput(tmp).
			Get(path)
		if err := classify(resp, err); err != nil {
			h.log.Debug("download attempt failed", "repo", repo, "file", filename, "err", err)
			return err
		}
		etag = resp.Header().Get("ETag")
		return nil
	})
	if err != nil {
		return err
	}

	info, err := os.Stat(tmp)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, local); err != nil {
		return err
	}

	h.log.Info("downloaded", "repo", repo, "file", filename, "bytes", info.Size(), "took", time.Since(start).Round(time.Millisecond))

	if h.opts.Store != nil {
		if err := h.opts.Store.PutFile(ctx, store.File{
			Repo:      repo,
			Path:      filename,
			LocalPath: local,
			ETag:      etag,
			Size:      info.Size(),
		}); err != nil {
			h.log.Warn("cache index update failed", "repo", repo, "file", filename, "err", err)
		}
	}
	return nil
}

func (h *Hub) backoff() retry.Backoff {
	b := retry.NewExponential(h.opts.Backoff)
	b = retry.WithMaxDuration(2*time.Minute, b)
	return retry.WithMaxRetries(h.opts.Retries, b)
}

// errStatus is a non-2xx hub response.
type errStatus struct {
	Code int
}

func (e *errStatus) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.Code, http.StatusText(e.Code))
}

// classify turns a response into nil, a retryable error, or a permanent error.
func classify(resp *resty.Response, err error) error {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return retry.RetryableError(err)
	}
	code := resp.StatusCode()
	switch {
	case code >= 500, code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return retry.RetryableError(&errStatus{Code: code})
	case code >= 400:
		return &errStatus{Code: code}
	}
	return nil
}

// checkRel rejects slash-separated paths that are empty, absolute or climb
// out of the directory they are joined to.
func checkRel(p string) error {
	if !filepath.IsLocal(filepath.FromSlash(p)) {
		return fmt.Errorf("unsafe path %q", p)
	}
	return nil
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

var _ Fetcher = (*Hub)(nil)
