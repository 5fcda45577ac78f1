package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/tidwall/gjson"

	"github.com/cognicore/quotes/pkg/quotes/fetch"
)

var errNotObject = errors.New("line is not a JSON object")

// JSONLines reads one JSON object per line from a single dataset file.
type JSONLines struct {
	SourceName string
	Fetcher    fetch.Fetcher
	Repo       string
	File       string
	Fields     FieldMap
}

// Name implements Source.
func (s *JSONLines) Name() string {
	if s.SourceName != "" {
		return s.SourceName
	}
	return s.Repo
}

// Records implements Source.
func (s *JSONLines) Records(ctx context.Context) (iter.Seq2[Raw, error], error) {
	path, err := s.Fetcher.FetchFile(ctx, s.Repo, s.File)
	if err != nil {
		return nil, err
	}

	fields := s.Fields.withDefaults()
	return func(yield func(Raw, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield(Raw{}, fmt.Errorf("open %s: %w", path, err))
			return
		}
		defer f.Close()
		for raw, err := range readJSONLines(ctx, s.Name(), path, f, fields) {
			if !yield(raw, err) {
				return
			}
		}
	}, nil
}

// readJSONLines yields one triplet per non-blank line of r.
func readJSONLines(ctx context.Context, name, path string, r io.Reader, fields FieldMap) iter.Seq2[Raw, error] {
	return func(yield func(Raw, error) bool) {
		br := bufio.NewReader(textReader(r))
		for lineNo := 1; ; lineNo++ {
			if err := ctx.Err(); err != nil {
				yield(Raw{}, err)
				return
			}

			line, err := br.ReadBytes('\n')
			if len(line) > 0 {
				line = bytes.TrimSpace(line)
				if len(line) > 0 {
					var (
						raw  Raw
						rerr error
					)
					if !gjson.ValidBytes(line) {
						rerr = &RecordError{Source: name, File: path, Line: lineNo, Err: errors.New("invalid JSON")}
					} else if obj := gjson.ParseBytes(line); !obj.IsObject() {
						rerr = &RecordError{Source: name, File: path, Line: lineNo, Err: errNotObject}
					} else {
						raw = fields.Extract(obj)
						raw.Line = lineNo
					}
					if !yield(raw, rerr) {
						return
					}
				}
			}

			if err == io.EOF {
				return
			}
			if err != nil {
				yield(Raw{}, fmt.Errorf("read %s: %w", path, err))
				return
			}
		}
	}
}
