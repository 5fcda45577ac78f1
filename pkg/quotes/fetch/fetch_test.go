package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/quotes/pkg/quotes/internalerr"
	"github.com/cognicore/quotes/pkg/quotes/store/memstore"
)

func TestLocalFetchFile(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "Abirate", "english_quotes")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quotes.jsonl"), []byte("{}\n"), 0o644))

	l := NewLocal(root)
	ctx := context.Background()

	path, err := l.FetchFile(ctx, "Abirate/english_quotes", "quotes.jsonl")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "quotes.jsonl"), path)

	_, err = l.FetchFile(ctx, "Abirate/english_quotes", "missing.jsonl")
	assert.ErrorIs(t, err, internalerr.ErrFetch)
	assert.ErrorIs(t, err, internalerr.ErrNotFound)

	snap, err := l.FetchSnapshot(ctx, "Abirate/english_quotes")
	require.NoError(t, err)
	assert.Equal(t, dir, snap)

	_, err = l.FetchSnapshot(ctx, "nobody/nothing")
	assert.ErrorIs(t, err, internalerr.ErrFetch)
}

func newTestHub(t *testing.T, srv *httptest.Server) *Hub {
	t.Helper()
	return NewHub(HubOptions{
		BaseURL:  srv.URL,
		CacheDir: t.TempDir(),
		Retries:  2,
		Backoff:  time.Millisecond,
		Timeout:  5 * time.Second,
		Store:    memstore.New(),
	})
}

func TestHubFetchFileCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/datasets/Abirate/english_quotes/resolve/main/quotes.jsonl" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(`{"quote":"Be yourself.","author":"Oscar Wilde"}` + "\n"))
	}))
	defer srv.Close()

	h := newTestHub(t, srv)
	ctx := context.Background()

	path, err := h.FetchFile(ctx, "Abirate/english_quotes", "quotes.jsonl")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Oscar Wilde")

	again, err := h.FetchFile(ctx, "Abirate/english_quotes", "quotes.jsonl")
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.EqualValues(t, 1, hits.Load(), "second fetch should be served from cache")

	f, ok, err := h.opts.Store.GetFile(ctx, "Abirate/english_quotes", "quotes.jsonl")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `"v1"`, f.ETag)
}

func TestHubRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	h := newTestHub(t, srv)
	path, err := h.FetchFile(context.Background(), "a/b", "data.csv")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
	assert.EqualValues(t, 3, hits.Load())
}

func TestHubNotFoundIsPermanent(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	h := newTestHub(t, srv)
	_, err := h.FetchFile(context.Background(), "a/b", "missing.jsonl")
	require.Error(t, err)
	assert.ErrorIs(t, err, internalerr.ErrFetch)
	assert.Contains(t, err.Error(), "404")
	assert.EqualValues(t, 1, hits.Load())

	_, statErr := os.Stat(filepath.Join(h.repoDir("a/b"), "missing.jsonl"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestHubFetchSnapshot(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/datasets/jstet/quotes-500k", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"siblings":[{"rfilename":".gitattributes"},{"rfilename":"README.md"},{"rfilename":"data/quotes.csv"}]}`))
	})
	mux.HandleFunc("/datasets/jstet/quotes-500k/resolve/main/README.md", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# quotes"))
	})
	mux.HandleFunc("/datasets/jstet/quotes-500k/resolve/main/data/quotes.csv", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("quote,author\nHi,Me\n"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	h := newTestHub(t, srv)
	dir, err := h.FetchSnapshot(context.Background(), "jstet/quotes-500k")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "data", "quotes.csv"))
	require.NoError(t, err)
	assert.Equal(t, "quote,author\nHi,Me\n", string(data))
	_, err = os.Stat(filepath.Join(dir, ".gitattributes"))
	assert.True(t, os.IsNotExist(err))
}

func TestHubAuthTokenSent(t *testing.T) {
	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	h := NewHub(HubOptions{BaseURL: srv.URL, CacheDir: t.TempDir(), Token: "secret", Backoff: time.Millisecond})
	_, err := h.FetchFile(context.Background(), "a/b", "x.jsonl")
	assert.ErrorIs(t, err, internalerr.ErrFetch)
	assert.Equal(t, "Bearer secret", auth.Load())
}

func TestHubLock(t *testing.T) {
	h := NewHub(HubOptions{CacheDir: t.TempDir()})

	unlock, err := h.Lock()
	require.NoError(t, err)

	other := NewHub(HubOptions{CacheDir: h.opts.CacheDir})
	_, err = other.Lock()
	assert.ErrorIs(t, err, internalerr.ErrCacheLocked)

	require.NoError(t, unlock())
	unlock, err = other.Lock()
	require.NoError(t, err)
	require.NoError(t, unlock())
}

func TestHubSnapshotIgnoresEscapingNames(t *testing.T) {
	var served atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/datasets/o/r", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"siblings":[{"rfilename":"a/../../../../escaped.txt"},{"rfilename":"/etc/abs.txt"},{"rfilename":"q.csv"}]}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		served.Add(1)
		w.Write([]byte("quote\nHi\n"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	base := t.TempDir()
	h := NewHub(HubOptions{
		BaseURL:  srv.URL,
		CacheDir: filepath.Join(base, "cache"),
		Backoff:  time.Millisecond,
	})
	dir, err := h.FetchSnapshot(context.Background(), "o/r")
	require.NoError(t, err)

	assert.Equal(t, int32(1), served.Load(), "only q.csv is downloaded")
	_, err = os.Stat(filepath.Join(dir, "q.csv"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(base, "cache", "escaped.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestHubFetchFileRejectsUnsafePaths(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	}))
	defer srv.Close()

	h := newTestHub(t, srv)
	ctx := context.Background()
	for _, tc := range []struct{ repo, file string }{
		{"o/r", "../x.txt"},
		{"o/r", "a/../../x.txt"},
		{"o/r", ""},
		{"../o", "x.txt"},
	} {
		_, err := h.FetchFile(ctx, tc.repo, tc.file)
		assert.ErrorIs(t, err, internalerr.ErrFetch, "%s %s", tc.repo, tc.file)
		assert.ErrorContains(t, err, "unsafe path")
	}
	_, err := h.FetchSnapshot(ctx, "../../o")
	assert.ErrorContains(t, err, "unsafe path")
}

func TestUnavailable(t *testing.T) {
	f := Unavailable(internalerr.ErrCacheLocked)
	_, err := f.FetchFile(context.Background(), "o/r", "x.jsonl")
	assert.ErrorIs(t, err, internalerr.ErrFetch)
	assert.ErrorIs(t, err, internalerr.ErrCacheLocked)
	_, err = f.FetchSnapshot(context.Background(), "o/r")
	assert.ErrorIs(t, err, internalerr.ErrCacheLocked)
}
