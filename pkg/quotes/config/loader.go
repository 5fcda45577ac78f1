package config

import (
	"fmt"

	"github.com/cognicore/quotes/pkg/quotes/fetch"
	"github.com/cognicore/quotes/pkg/quotes/internalerr"
	"github.com/cognicore/quotes/pkg/quotes/source"
)

// BuildSources constructs the adapters named in the config, in priority order.
func (c *Config) BuildSources(f fetch.Fetcher) ([]source.Source, error) {
	var sources []source.Source
	for _, sc := range c.AllSources() {
		src, err := sc.Build(f)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// Build constructs a single adapter.
func (sc SourceConfig) Build(f fetch.Fetcher) (source.Source, error) {
	fields := source.FieldMap{
		TextKeys:   sc.TextKeys,
		AuthorKeys: sc.AuthorKeys,
		TagKeys:    sc.TagKeys,
	}

	switch sc.Kind {
	case KindJSONL:
		return &source.JSONLines{
			SourceName: sc.Name,
			Fetcher:    f,
			Repo:       sc.Repo,
			File:       sc.File,
			Fields:     fields,
		}, nil
	case KindTabular:
		return &source.Tabular{
			SourceName:    sc.Name,
			Fetcher:       f,
			Repo:          sc.Repo,
			Pattern:       sc.Pattern,
			TextColumns:   sc.TextKeys,
			AuthorColumns: sc.AuthorKeys,
			TagHints:      sc.TagKeys,
		}, nil
	case KindLocalDir:
		return &source.LocalDir{
			SourceName: sc.Name,
			Dir:        sc.Dir,
			Fields:     fields,
		}, nil
	case KindHTML:
		return &source.HTMLPage{
			SourceName: sc.Name,
			Fetcher:    f,
			Repo:       sc.Repo,
			File:       sc.File,
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown source kind %q", internalerr.ErrInvalidConfig, sc.Kind)
}
