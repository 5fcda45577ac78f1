package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/quotes/pkg/quotes/fetch"
	"github.com/cognicore/quotes/pkg/quotes/internalerr"
	"github.com/cognicore/quotes/pkg/quotes/source"
)

func TestLoadOrDefaultWithoutFile(t *testing.T) {
	root := t.TempDir()

	cfg, found, err := LoadOrDefault(root)
	require.NoError(t, err)
	assert.False(t, found)

	assert.Equal(t, filepath.Join(root, "data", "merged.json"), cfg.Output.JSON)
	assert.Equal(t, filepath.Join(root, "src", "lib", "quotes.jsonl.gz"), cfg.Output.JSONLinesGz)
	assert.Equal(t, filepath.Join(root, ".cache", "quotes"), cfg.CacheDir)
	assert.Equal(t, DefaultLowWater, cfg.LowWater)
	assert.Equal(t, DefaultSources(), cfg.Sources)
	assert.Empty(t, cfg.Mirror)
}

func TestLoadOverridesDefaults(t *testing.T) {
	root := t.TempDir()
	content := `
low_water: 50
concurrency: 2
mirror: mirror
hub:
  timeout: 30s
  token: hf_abc
extra_sources:
  - name: local
    kind: localdir
    dir: data/extra
  - name: page
    kind: html
    repo: site
    file: page1.html
`
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(content), 0o644))

	cfg, found, err := LoadOrDefault(root)
	require.NoError(t, err)
	assert.True(t, found)

	assert.Equal(t, 50, cfg.LowWater)
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, filepath.Join(root, "mirror"), cfg.Mirror)
	assert.Equal(t, 30*time.Second, cfg.Hub.Timeout)
	assert.Equal(t, "hf_abc", cfg.Hub.Token)
	assert.EqualValues(t, 3, cfg.Hub.Retries, "unset keys keep defaults")

	all := cfg.AllSources()
	require.Len(t, all, 4)
	assert.Equal(t, "Abirate/english_quotes", all[0].Name)
	assert.Equal(t, "jstet/quotes-500k", all[1].Name)
	assert.Equal(t, filepath.Join(root, "data", "extra"), all[2].Dir)
	assert.Equal(t, KindHTML, all[3].Kind)
}

func TestLoadReplacesSources(t *testing.T) {
	root := t.TempDir()
	content := `
sources:
  - name: only
    kind: jsonl
    repo: me/quotes
    file: q.jsonl
    text_keys: [body]
`
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(content), 0o644))

	cfg, _, err := LoadOrDefault(root)
	require.NoError(t, err)
	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, []string{"body"}, cfg.Sources[0].TextKeys)
}

func TestLoadInvalidYAML(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("low_water: [oops"), 0o644))

	_, _, err := LoadOrDefault(root)
	assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.LowWater = -1
	cfg.Concurrency = 0
	cfg.ExtraSources = []SourceConfig{
		{Name: "Abirate/english_quotes", Kind: KindJSONL, Repo: "x", File: "y"},
		{Kind: "parquet"},
		{Name: "t", Kind: KindTabular},
		{Name: "d", Kind: KindLocalDir},
		{Name: "h", Kind: KindHTML, Repo: "r"},
	}
	err := cfg.Validate()
	require.ErrorIs(t, err, internalerr.ErrInvalidConfig)
	for _, want := range []string{
		"low_water", "concurrency", "duplicate name", `unknown kind "parquet"`,
		"tabular source needs repo", "localdir source needs dir", "html source needs repo and file",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestBuildSources(t *testing.T) {
	cfg := Default()
	cfg.ExtraSources = []SourceConfig{
		{Name: "local", Kind: KindLocalDir, Dir: "/data"},
		{Name: "page", Kind: KindHTML, Repo: "site", File: "p.html"},
	}

	sources, err := cfg.BuildSources(fetch.NewLocal(t.TempDir()))
	require.NoError(t, err)
	require.Len(t, sources, 4)

	assert.IsType(t, &source.JSONLines{}, sources[0])
	assert.IsType(t, &source.Tabular{}, sources[1])
	assert.IsType(t, &source.LocalDir{}, sources[2])
	assert.IsType(t, &source.HTMLPage{}, sources[3])

	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Name()
	}
	assert.Equal(t, []string{"Abirate/english_quotes", "jstet/quotes-500k", "local", "page"}, names)

	_, err = SourceConfig{Kind: "nope"}.Build(nil)
	assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)
}

func TestLocalDirFieldOverridesKeepDefaults(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "old"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "old", "q.json"),
		[]byte(`[{"content":"Hi","who":"Me","tags":["x"]}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(`
sources:
  - name: old
    kind: localdir
    dir: old
    author_keys: [who]
`), 0o644))

	cfg, _, err := LoadOrDefault(root)
	require.NoError(t, err)
	sources, err := cfg.BuildSources(fetch.NewLocal(root))
	require.NoError(t, err)
	require.Len(t, sources, 1)

	seq, err := sources[0].Records(context.Background())
	require.NoError(t, err)
	var got []source.Raw
	for raw, err := range seq {
		require.NoError(t, err)
		got = append(got, raw)
	}
	assert.Equal(t, []source.Raw{{Text: "Hi", Author: "Me", Tags: []string{"x"}, Line: 1}}, got)
}

func TestValidateLogFormat(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "text", cfg.LogFormat)
	cfg.LogFormat = "xml"
	err := cfg.Validate()
	assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)
	assert.ErrorContains(t, err, `log_format "xml"`)
}
