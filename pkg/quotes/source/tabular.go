package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"

	"github.com/cognicore/quotes/pkg/quotes/fetch"
	"github.com/cognicore/quotes/pkg/quotes/internalerr"
)

// DefaultTabularPattern selects CSV files anywhere in a snapshot.
const DefaultTabularPattern = "**/*.csv"

// Column name synonyms, matched case-insensitively against the header.
var (
	DefaultTextColumns   = []string{"quote", "text", "content", "quotation"}
	DefaultAuthorColumns = []string{"author", "by", "speaker"}
	DefaultTagHints      = []string{"tag", "topic"}
)

// Tabular reads delimited rows from the first matching file of a dataset
// snapshot. Columns are identified by name heuristics.
type Tabular struct {
	SourceName string
	Fetcher    fetch.Fetcher
	Repo       string
	Pattern    string   // doublestar pattern relative to the snapshot root
	Fs         afero.Fs // defaults to the OS filesystem

	TextColumns   []string
	AuthorColumns []string
	TagHints      []string // a column whose name contains any hint holds tags
}

// Name implements Source.
func (s *Tabular) Name() string {
	if s.SourceName != "" {
		return s.SourceName
	}
	return s.Repo
}

// Columns holds the detected column indexes; -1 means absent.
type Columns struct {
	Text   int
	Author int
	Tags   int
}

// DetectColumns picks the text, author and tags columns from header. Within
// each role the leftmost matching column wins.
func DetectColumns(header, textNames, authorNames, tagHints []string) (Columns, error) {
	cols := Columns{Text: -1, Author: -1, Tags: -1}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if cols.Text < 0 && contains(textNames, name) {
			cols.Text = i
		}
		if cols.Author < 0 && contains(authorNames, name) {
			cols.Author = i
		}
		if cols.Tags < 0 && containsAny(name, tagHints) {
			cols.Tags = i
		}
	}
	if cols.Text < 0 {
		return cols, fmt.Errorf("%w; columns: %q", internalerr.ErrNoTextColumn, header)
	}
	return cols, nil
}

// FindTabular returns the lexicographically first file under dir matching
// pattern.
func FindTabular(fsys afero.Fs, dir, pattern string) (string, error) {
	matches, err := doublestar.Glob(afero.NewIOFS(afero.NewBasePathFs(fsys, dir)), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return "", fmt.Errorf("glob %q in %s: %w", pattern, dir, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %q in %s", internalerr.ErrNoTabularFile, pattern, dir)
	}
	sort.Strings(matches)
	return filepath.Join(dir, filepath.FromSlash(matches[0])), nil
}

// Records implements Source.
func (s *Tabular) Records(ctx context.Context) (iter.Seq2[Raw, error], error) {
	fsys := s.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	pattern := s.Pattern
	if pattern == "" {
		pattern = DefaultTabularPattern
	}

	dir, err := s.Fetcher.FetchSnapshot(ctx, s.Repo)
	if err != nil {
		return nil, err
	}
	file, err := FindTabular(fsys, dir, pattern)
	if err != nil {
		return nil, err
	}

	header, err := readHeader(fsys, file)
	if err != nil {
		return nil, err
	}
	cols, err := DetectColumns(header,
		orDefault(s.TextColumns, DefaultTextColumns),
		orDefault(s.AuthorColumns, DefaultAuthorColumns),
		orDefault(s.TagHints, DefaultTagHints))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	name := s.Name()
	return func(yield func(Raw, error) bool) {
		f, err := fsys.Open(file)
		if err != nil {
			yield(Raw{}, fmt.Errorf("open %s: %w", file, err))
			return
		}
		defer f.Close()

		reader := newCSVReader(f, file)
		if _, err := reader.Read(); err != nil {
			yield(Raw{}, fmt.Errorf("read header of %s: %w", file, err))
			return
		}
		for {
			if err := ctx.Err(); err != nil {
				yield(Raw{}, err)
				return
			}

			row, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				var perr *csv.ParseError
				if errors.As(err, &perr) {
					if !yield(Raw{}, &RecordError{Source: name, File: file, Line: perr.StartLine, Err: perr.Err}) {
						return
					}
					continue
				}
				yield(Raw{}, fmt.Errorf("read %s: %w", file, err))
				return
			}

			line, _ := reader.FieldPos(0)
			raw := Raw{
				Text:   cell(row, cols.Text),
				Author: cell(row, cols.Author),
				Tags:   SplitTags(cell(row, cols.Tags)),
				Line:   line,
			}
			if !yield(raw, nil) {
				return
			}
		}
	}, nil
}

// newCSVReader reads strict CSV, or TSV when the file says so. Rows with
// broken quoting surface as *csv.ParseError.
func newCSVReader(r io.Reader, file string) *csv.Reader {
	reader := csv.NewReader(textReader(r))
	if strings.EqualFold(path.Ext(filepath.ToSlash(file)), ".tsv") {
		reader.Comma = '\t'
	}
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true
	return reader
}

func readHeader(fsys afero.Fs, file string) ([]string, error) {
	f, err := fsys.Open(file)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", file, err)
	}
	defer f.Close()

	header, err := newCSVReader(f, file).Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", file, err)
	}
	return append([]string(nil), header...), nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsAny(s string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}
