package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/tidwall/gjson"
)

var errNotArray = errors.New("JSON document is not an array")

// LocalDir walks a local directory for .json files holding an array of
// quote objects and .jsonl files holding one object per line. Files are
// visited in lexical path order.
type LocalDir struct {
	SourceName string
	Dir        string
	Fs         afero.Fs
	Fields     FieldMap
}

// DefaultLocalFields matches the keys used by previously merged datasets.
var DefaultLocalFields = FieldMap{
	TextKeys:   []string{"text", "content"},
	AuthorKeys: []string{"author"},
	TagKeys:    []string{"tags"},
}

// Name implements Source.
func (s *LocalDir) Name() string {
	if s.SourceName != "" {
		return s.SourceName
	}
	return s.Dir
}

// Records implements Source.
func (s *LocalDir) Records(ctx context.Context) (iter.Seq2[Raw, error], error) {
	fsys := s.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	info, err := fsys.Stat(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("local dir %s: %w", s.Dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local dir %s: not a directory", s.Dir)
	}

	var files []string
	err = afero.Walk(fsys, s.Dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json", ".jsonl":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.Dir, err)
	}

	fields := s.Fields.withDefaultsFrom(DefaultLocalFields)
	name := s.Name()

	return func(yield func(Raw, error) bool) {
		for _, path := range files {
			if !s.readFile(ctx, fsys, name, path, fields, yield) {
				return
			}
		}
	}, nil
}

// readFile yields the records of one file. It returns false once the
// consumer stops or a fatal error was yielded.
func (s *LocalDir) readFile(ctx context.Context, fsys afero.Fs, name, path string, fields FieldMap, yield func(Raw, error) bool) bool {
	f, err := fsys.Open(path)
	if err != nil {
		return yield(Raw{}, &RecordError{Source: name, File: path, Err: err})
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		for raw, err := range readJSONLines(ctx, name, path, f, fields) {
			if !yield(raw, err) {
				return false
			}
			var rerr *RecordError
			if err != nil && !errors.As(err, &rerr) {
				return false
			}
		}
		return true
	}

	data, err := io.ReadAll(textReader(f))
	if err != nil {
		return yield(Raw{}, &RecordError{Source: name, File: path, Err: err})
	}
	doc := gjson.ParseBytes(data)
	if !gjson.ValidBytes(data) || !doc.IsArray() {
		return yield(Raw{}, &RecordError{Source: name, File: path, Err: errNotArray})
	}

	ok := true
	i := 0
	doc.ForEach(func(_, elem gjson.Result) bool {
		i++
		var (
			raw  Raw
			rerr error
		)
		if elem.IsObject() {
			raw = fields.Extract(elem)
			raw.Line = i
		} else {
			rerr = &RecordError{Source: name, File: path, Line: i, Err: errNotObject}
		}
		ok = yield(raw, rerr)
		return ok
	})
	return ok
}
