// Package emit writes the final record collection as a full JSON document and
// as a gzip-compressed JSON-lines stream.
package emit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/afero"

	"github.com/cognicore/quotes/pkg/quotes/record"
)

// Paths names the two output artifacts.
type Paths struct {
	JSON        string
	JSONLinesGz string
}

// Emitter writes artifacts to a filesystem.
type Emitter struct {
	fs afero.Fs
}

// New returns an Emitter on fsys, or on the OS filesystem when fsys is nil.
func New(fsys afero.Fs) *Emitter {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Emitter{fs: fsys}
}

// WriteAll writes both artifacts.
func (e *Emitter) WriteAll(p Paths, recs []record.Record) error {
	if err := e.WriteJSON(p.JSON, recs); err != nil {
		return err
	}
	return e.WriteJSONLinesGz(p.JSONLinesGz, recs)
}

// WriteJSON replaces path with a JSON array of recs.
func (e *Emitter) WriteJSON(path string, recs []record.Record) error {
	if recs == nil {
		recs = []record.Record{}
	}
	return e.atomicWrite(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		return enc.Encode(recs)
	})
}

// WriteJSONLinesGz replaces path with a gzip stream holding one JSON record
// per line.
func (e *Emitter) WriteJSONLinesGz(path string, recs []record.Record) error {
	return e.atomicWrite(path, func(w io.Writer) error {
		gz, err := gzip.NewWriterLevel(w, gzip.BestCompression)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(gz)
		enc.SetEscapeHTML(false)
		for _, r := range recs {
			if err := enc.Encode(r); err != nil {
				gz.Close()
				return err
			}
		}
		return gz.Close()
	})
}

// atomicWrite writes through a temp file in the target directory and renames
// it over path once complete.
func (e *Emitter) atomicWrite(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := e.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(e.fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	bw := bufio.NewWriterSize(tmp, 1<<20)
	if err := write(bw); err != nil {
		tmp.Close()
		e.fs.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		e.fs.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		e.fs.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := e.fs.Rename(tmpName, path); err != nil {
		e.fs.Remove(tmpName)
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

// ReadJSON reads a JSON array of records.
func (e *Emitter) ReadJSON(path string) ([]record.Record, error) {
	data, err := afero.ReadFile(e.fs, path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var recs []record.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return recs, nil
}

// ReadJSONLinesGz reads a gzip-compressed JSON-lines file of records.
func (e *Emitter) ReadJSONLinesGz(path string) ([]record.Record, error) {
	f, err := e.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open gzip %s: %w", path, err)
	}
	defer gz.Close()

	recs := []record.Record{}
	br := bufio.NewReader(gz)
	for lineNo := 1; ; lineNo++ {
		line, err := br.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			var r record.Record
			if uerr := json.Unmarshal(line, &r); uerr != nil {
				return nil, fmt.Errorf("decode %s line %d: %w", path, lineNo, uerr)
			}
			recs = append(recs, r)
		}
		if err == io.EOF {
			return recs, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
