package source

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Default field synonyms, in priority order.
var (
	DefaultTextKeys   = []string{"quote", "text", "content"}
	DefaultAuthorKeys = []string{"author"}
	DefaultTagKeys    = []string{"tags"}
)

// FieldMap locates the quotation fields inside a JSON object.
type FieldMap struct {
	TextKeys   []string
	AuthorKeys []string
	TagKeys    []string
}

func (m FieldMap) withDefaults() FieldMap {
	return m.withDefaultsFrom(FieldMap{
		TextKeys:   DefaultTextKeys,
		AuthorKeys: DefaultAuthorKeys,
		TagKeys:    DefaultTagKeys,
	})
}

// withDefaultsFrom fills every empty key list of m from def.
func (m FieldMap) withDefaultsFrom(def FieldMap) FieldMap {
	if len(m.TextKeys) == 0 {
		m.TextKeys = def.TextKeys
	}
	if len(m.AuthorKeys) == 0 {
		m.AuthorKeys = def.AuthorKeys
	}
	if len(m.TagKeys) == 0 {
		m.TagKeys = def.TagKeys
	}
	return m
}

// Extract pulls a raw triplet out of obj. Text and author come from the first
// key holding a non-empty string; anything else counts as absent. Tags come
// from the first key holding an array, with each element stringified.
func (m FieldMap) Extract(obj gjson.Result) Raw {
	return Raw{
		Text:   firstString(obj, m.TextKeys),
		Author: firstString(obj, m.AuthorKeys),
		Tags:   firstArray(obj, m.TagKeys),
	}
}

// member returns the value of the member named exactly k. Keys are compared
// literally, so names holding '.', '*' or '#' are not read as paths. A
// repeated member resolves to its last value.
func member(obj gjson.Result, k string) gjson.Result {
	var out gjson.Result
	if !obj.IsObject() {
		return out
	}
	obj.ForEach(func(key, v gjson.Result) bool {
		if key.Str == k {
			out = v
		}
		return true
	})
	return out
}

func firstString(obj gjson.Result, keys []string) string {
	for _, k := range keys {
		v := member(obj, k)
		if v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

func firstArray(obj gjson.Result, keys []string) []string {
	for _, k := range keys {
		v := member(obj, k)
		if !v.IsArray() {
			continue
		}
		var tags []string
		v.ForEach(func(_, e gjson.Result) bool {
			if e.Type != gjson.Null {
				tags = append(tags, e.String())
			}
			return true
		})
		return tags
	}
	return nil
}

// SplitTags applies the delimited tag cell policy: split on ';' if present,
// else on ',', else the whole non-blank value is one tag.
func SplitTags(cell string) []string {
	switch {
	case strings.Contains(cell, ";"):
		return strings.Split(cell, ";")
	case strings.Contains(cell, ","):
		return strings.Split(cell, ",")
	case strings.TrimSpace(cell) != "":
		return []string{cell}
	}
	return nil
}
