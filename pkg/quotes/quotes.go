// Package quotes builds the merged quotation dataset: it runs every configured
// source through the normalization and deduplication pipeline and writes the
// JSON and JSON-lines artifacts.
package quotes

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	charmlog "github.com/charmbracelet/log"

	"github.com/cognicore/quotes/internal/logger"
	"github.com/cognicore/quotes/pkg/quotes/config"
	"github.com/cognicore/quotes/pkg/quotes/emit"
	"github.com/cognicore/quotes/pkg/quotes/fetch"
	"github.com/cognicore/quotes/pkg/quotes/pipeline"
	"github.com/cognicore/quotes/pkg/quotes/source"
	"github.com/cognicore/quotes/pkg/quotes/store"
	"github.com/cognicore/quotes/pkg/quotes/store/sqlite"
)

// Builder is the dataset build facade
type Builder struct {
	sources  []source.Source
	pipeline *pipeline.Pipeline
	emitter  *emit.Emitter
	paths    emit.Paths
	store    store.Store
	lowWater int
	log      *charmlog.Logger
	closers  []func() error
}

// Options configures a Builder
type Options struct {
	Sources  []source.Source
	Pipeline *pipeline.Pipeline // defaults to a sequential pipeline
	Emitter  *emit.Emitter      // defaults to the OS filesystem
	Paths    emit.Paths
	Store    store.Store // optional run history
	LowWater int
	Logger   *charmlog.Logger
}

// New creates a Builder with the given dependencies
func New(opts Options) *Builder {
	log := logger.OrDiscard(opts.Logger)
	if opts.Pipeline == nil {
		opts.Pipeline = pipeline.New(pipeline.WithLogger(log))
	}
	if opts.Emitter == nil {
		opts.Emitter = emit.New(nil)
	}
	return &Builder{
		sources:  opts.Sources,
		pipeline: opts.Pipeline,
		emitter:  opts.Emitter,
		paths:    opts.Paths,
		store:    opts.Store,
		lowWater: opts.LowWater,
		log:      log,
	}
}

// Open wires a Builder from configuration: the cache store, the fetcher and
// the configured sources. Close releases the cache lock and the store.
//
// Cache problems never fail Open. Without a usable store the build runs
// without a cache index or run history. When another run holds the cache
// lock, every hub-backed source is reported as skipped.
func Open(ctx context.Context, cfg *config.Config, log *charmlog.Logger) (*Builder, error) {
	log = logger.OrDiscard(log)

	var closers []func() error
	st, err := openStore(ctx, cfg.CacheDir)
	if err != nil {
		log.Warn("cache store unavailable, continuing without it", "dir", cfg.CacheDir, "err", err)
		st = nil
	} else {
		closers = append(closers, st.Close)
	}

	var f fetch.Fetcher
	if cfg.Mirror != "" {
		log.Info("using local mirror", "dir", cfg.Mirror)
		f = fetch.NewLocal(cfg.Mirror)
	} else {
		hub := fetch.NewHub(fetch.HubOptions{
			BaseURL:  cfg.Hub.BaseURL,
			Token:    cfg.Hub.Token,
			CacheDir: cfg.CacheDir,
			Retries:  cfg.Hub.Retries,
			Timeout:  cfg.Hub.Timeout,
			Store:    st,
			Logger:   log,
		})
		unlock, err := hub.Lock()
		if err != nil {
			log.Warn("hub sources will be skipped", "err", err)
			f = fetch.Unavailable(err)
		} else {
			closers = append([]func() error{unlock}, closers...)
			f = hub
		}
	}

	sources, err := cfg.BuildSources(f)
	if err != nil {
		closeAll(closers)
		return nil, err
	}

	b := New(Options{
		Sources:  sources,
		Pipeline: pipeline.New(pipeline.WithConcurrency(cfg.Concurrency), pipeline.WithLogger(log)),
		Paths:    emit.Paths{JSON: cfg.Output.JSON, JSONLinesGz: cfg.Output.JSONLinesGz},
		Store:    st,
		LowWater: cfg.LowWater,
		Logger:   log,
	})
	b.closers = closers
	return b, nil
}

func openStore(ctx context.Context, dir string) (store.Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	st, err := sqlite.OpenSQLite(ctx, filepath.Join(dir, "cache.db"))
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}
	return st, nil
}

// Close releases resources acquired by Open
func (b *Builder) Close() error {
	err := closeAll(b.closers)
	b.closers = nil
	return err
}

func closeAll(closers []func() error) error {
	var errs []error
	for _, c := range closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Summary describes a finished build
type Summary struct {
	RunID    string
	Reports  []pipeline.SourceReport
	Total    int
	LowWater int
	Paths    emit.Paths
	Took     time.Duration
}

// BelowLowWater reports whether the total is small enough to warrant an
// advisory. It never makes a build fail.
func (s *Summary) BelowLowWater() bool {
	return s.Total < s.LowWater
}

// Build runs every source and writes both artifacts. Only a failure to write
// the artifacts is returned as an error; failing sources are reported in the
// summary.
func (b *Builder) Build(ctx context.Context) (*Summary, error) {
	runID := store.NewRunID()
	started := time.Now()
	b.log.Info("build started", "run", runID, "sources", len(b.sources))

	res := b.pipeline.Run(ctx, b.sources)

	if err := b.emitter.WriteAll(b.paths, res.Records); err != nil {
		return nil, fmt.Errorf("write artifacts: %w", err)
	}

	sum := &Summary{
		RunID:    runID,
		Reports:  res.Reports,
		Total:    res.Total(),
		LowWater: b.lowWater,
		Paths:    b.paths,
		Took:     time.Since(started),
	}
	b.log.Info("wrote artifacts", "json", b.paths.JSON, "jsonl_gz", b.paths.JSONLinesGz, "total", sum.Total)

	if b.store != nil {
		if err := b.store.RecordRun(ctx, runRecord(sum, started)); err != nil {
			b.log.Warn("could not record run", "run", runID, "err", err)
		}
	}

	if sum.BelowLowWater() {
		b.log.Warn("record total is below the low-water mark; check that every source downloaded and parsed",
			"total", sum.Total, "low_water", sum.LowWater)
	}
	return sum, nil
}

func runRecord(sum *Summary, started time.Time) store.Run {
	counts := make([]store.SourceCount, 0, len(sum.Reports))
	for _, r := range sum.Reports {
		c := store.SourceCount{Name: r.Name, Added: r.Added, Skipped: r.Skipped()}
		if r.Err != nil {
			c.Reason = r.Err.Error()
		}
		counts = append(counts, c)
	}
	return store.Run{
		ID:         sum.RunID,
		StartedAt:  started,
		FinishedAt: started.Add(sum.Took),
		Total:      sum.Total,
		Sources:    counts,
	}
}
