// Package source holds the dataset adapters. Each adapter knows where the
// quotation fields live in one source's native shape and yields them as raw
// triplets; normalization and deduplication happen downstream.
package source

import (
	"context"
	"fmt"
	"io"
	"iter"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Raw is an unnormalized (text, author, tags) triplet as found in a source.
type Raw struct {
	Text   string
	Author string
	Tags   []string
	Line   int // 1-indexed position inside the source file, 0 when unknown
}

// Source produces raw triplets from one external dataset.
//
// Records returns an error when the dataset cannot be located or its structure
// is unusable. Files are opened when the sequence is ranged over and closed
// when iteration ends, early or not. A
// *RecordError yielded by the sequence marks one bad item and iteration goes
// on; any other yielded error is the last value and fails the whole source.
type Source interface {
	Name() string
	Records(ctx context.Context) (iter.Seq2[Raw, error], error)
}

// RecordError is a per-record failure: one malformed line or row.
type RecordError struct {
	Source string
	File   string
	Line   int
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s: %s:%d: %v", e.Source, e.File, e.Line, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// textReader decodes UTF-8 input and drops a leading byte order mark.
func textReader(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}
