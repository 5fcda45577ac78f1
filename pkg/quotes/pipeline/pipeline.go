// Package pipeline drives the source adapters in priority order and
// accumulates the deduplicated record collection.
package pipeline

import (
	"context"
	"errors"

	charmlog "github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/quotes/internal/logger"
	"github.com/cognicore/quotes/pkg/quotes/ledger"
	"github.com/cognicore/quotes/pkg/quotes/record"
	"github.com/cognicore/quotes/pkg/quotes/source"
)

// SourceReport is the outcome of processing one source.
type SourceReport struct {
	Name       string
	Added      int // records this source contributed after dedup
	Duplicates int
	Discarded  int // empty text after trimming
	Malformed  int // per-record parse failures
	Err        error
}

// Skipped reports whether the source failed at adapter level.
func (r SourceReport) Skipped() bool {
	return r.Err != nil
}

// Result is the accumulated output of a run.
type Result struct {
	Records []record.Record
	Reports []SourceReport
}

// Total returns the number of accepted records.
func (r *Result) Total() int {
	return len(r.Records)
}

// Pipeline orchestrates normalization and deduplication across sources.
type Pipeline struct {
	concurrency int
	log         *charmlog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConcurrency reads up to n sources at once. Admission still happens in
// source order, so the result matches a sequential run.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		p.concurrency = n
	}
}

// WithLogger sets the logger used for per-source progress.
func WithLogger(l *charmlog.Logger) Option {
	return func(p *Pipeline) {
		p.log = l
	}
}

// New creates a Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{concurrency: 1}
	for _, opt := range opts {
		opt(p)
	}
	p.log = logger.OrDiscard(p.log)
	return p
}

// state is owned by a single run: the record collection and its ledger.
type state struct {
	records []record.Record
	ledger  *ledger.Ledger
}

func newState() *state {
	return &state{ledger: ledger.New()}
}

// accept appends rec unless its identity key was already admitted.
func (s *state) accept(rec record.Record) bool {
	if !s.ledger.Admit(rec.Key()) {
		return false
	}
	s.records = append(s.records, rec)
	return true
}

// Run processes sources in order. Earlier sources win identity collisions.
// Source failures are recorded in the reports and never abort the run.
func (p *Pipeline) Run(ctx context.Context, sources []source.Source) *Result {
	st := newState()

	var reports []SourceReport
	if p.concurrency > 1 && len(sources) > 1 {
		reports = p.runConcurrent(ctx, st, sources)
	} else {
		reports = make([]SourceReport, 0, len(sources))
		for _, src := range sources {
			rep := p.read(ctx, src, st.accept)
			p.logReport(rep, st)
			reports = append(reports, rep)
		}
	}

	if st.records == nil {
		st.records = []record.Record{}
	}
	return &Result{Records: st.records, Reports: reports}
}

// runConcurrent buffers each source's candidates in parallel, then admits
// them source by source in priority order.
func (p *Pipeline) runConcurrent(ctx context.Context, st *state, sources []source.Source) []SourceReport {
	buffers := make([][]record.Record, len(sources))
	reports := make([]SourceReport, len(sources))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, src := range sources {
		g.Go(func() error {
			reports[i] = p.read(ctx, src, func(rec record.Record) bool {
				buffers[i] = append(buffers[i], rec)
				return true
			})
			return nil
		})
	}
	_ = g.Wait()

	for i := range sources {
		rep := &reports[i]
		rep.Added, rep.Duplicates = 0, 0
		for _, rec := range buffers[i] {
			if st.accept(rec) {
				rep.Added++
			} else {
				rep.Duplicates++
			}
		}
		buffers[i] = nil
		p.logReport(*rep, st)
	}
	return reports
}

// read drains one source, normalizing every triplet and handing candidates to
// accept. Records accepted before a mid-stream failure are kept.
func (p *Pipeline) read(ctx context.Context, src source.Source, accept func(record.Record) bool) SourceReport {
	rep := SourceReport{Name: src.Name()}
	p.log.Info("reading source", "source", rep.Name)

	seq, err := src.Records(ctx)
	if err != nil {
		rep.Err = err
		return rep
	}

	for raw, err := range seq {
		if err != nil {
			var rerr *source.RecordError
			if errors.As(err, &rerr) {
				rep.Malformed++
				p.log.Debug("skipping malformed record", "source", rep.Name, "err", rerr)
				continue
			}
			rep.Err = err
			break
		}

		rec, ok := record.Normalize(raw.Text, raw.Author, raw.Tags)
		if !ok {
			rep.Discarded++
			continue
		}
		if accept(rec) {
			rep.Added++
		} else {
			rep.Duplicates++
		}
	}
	return rep
}

func (p *Pipeline) logReport(rep SourceReport, st *state) {
	if rep.Skipped() {
		p.log.Warn("skipped source", "source", rep.Name, "added", rep.Added, "err", rep.Err)
		return
	}
	p.log.Info("source done",
		"source", rep.Name,
		"added", rep.Added,
		"duplicates", rep.Duplicates,
		"discarded", rep.Discarded,
		"malformed", rep.Malformed,
		"total", len(st.records))
}
