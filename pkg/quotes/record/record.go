// Package record defines the canonical quotation shape and the rules that map
// raw source fields onto it.
package record

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Record is a normalized quotation entry.
type Record struct {
	Text   string   `json:"text"`
	Author string   `json:"author"`
	Tags   []string `json:"tags"`
}

// MarshalJSON encodes tags as an array even when nil and leaves HTML
// characters unescaped.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	if r.Tags == nil {
		r.Tags = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(plain(r)); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Key is the identity of a record for deduplication: case- and
// whitespace-normalized text and author.
type Key struct {
	Text   string
	Author string
}

// Normalize builds a Record from raw fields. It reports false when the trimmed
// text is empty, in which case the record must be discarded.
func Normalize(text, author string, tags []string) (Record, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Record{}, false
	}
	return Record{
		Text:   text,
		Author: strings.TrimSpace(author),
		Tags:   NormalizeTags(tags),
	}, true
}

// NormalizeTags trims and lowercases every tag and drops the empty ones.
// Order is preserved and repeated tags are kept. The result is never nil so
// it always encodes as a JSON array.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Key returns the identity key of r.
func (r Record) Key() Key {
	return KeyOf(r.Text, r.Author)
}

// KeyOf derives an identity key from raw text and author.
func KeyOf(text, author string) Key {
	return Key{
		Text:   strings.ToLower(strings.TrimSpace(text)),
		Author: strings.ToLower(strings.TrimSpace(author)),
	}
}

// String renders the key the way it appears in logs.
func (k Key) String() string {
	return k.Text + "|" + k.Author
}
