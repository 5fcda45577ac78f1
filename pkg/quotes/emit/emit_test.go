package emit

import (
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/quotes/pkg/quotes/record"
)

var paths = Paths{JSON: "/out/data/merged.json", JSONLinesGz: "/out/src/lib/quotes.jsonl.gz"}

func sample() []record.Record {
	return []record.Record{
		{Text: "Be yourself.", Author: "Oscar Wilde", Tags: []string{"life"}},
		{Text: "La vie est belle, «toujours»", Author: "Anonyme", Tags: []string{}},
		{Text: "人生苦短", Author: "", Tags: []string{"生活", "life"}},
		{Text: "Tom & Jerry <3", Author: "", Tags: []string{}},
	}
}

func gunzip(t *testing.T, fsys afero.Fs, path string) string {
	t.Helper()
	f, err := fsys.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	return string(data)
}

func TestWriteAllRoundTrip(t *testing.T) {
	fsys := afero.NewMemMapFs()
	e := New(fsys)

	require.NoError(t, e.WriteAll(paths, sample()))

	fromJSON, err := e.ReadJSON(paths.JSON)
	require.NoError(t, err)
	fromLines, err := e.ReadJSONLinesGz(paths.JSONLinesGz)
	require.NoError(t, err)

	assert.Equal(t, sample(), fromJSON)
	assert.Equal(t, fromJSON, fromLines)
}

func TestNonASCIIPreserved(t *testing.T) {
	fsys := afero.NewMemMapFs()
	e := New(fsys)
	require.NoError(t, e.WriteAll(paths, sample()))

	raw, err := afero.ReadFile(fsys, paths.JSON)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "人生苦短")
	assert.Contains(t, string(raw), "«toujours»")
	assert.Contains(t, string(raw), "Tom & Jerry <3")
	assert.NotContains(t, string(raw), `\u`)

	lines := strings.Split(strings.TrimSuffix(gunzip(t, fsys, paths.JSONLinesGz), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, `{"text":"人生苦短","author":"","tags":["生活","life"]}`, lines[2])
}

func TestEmptyCollection(t *testing.T) {
	fsys := afero.NewMemMapFs()
	e := New(fsys)
	require.NoError(t, e.WriteAll(paths, nil))

	raw, err := afero.ReadFile(fsys, paths.JSON)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(raw))
	assert.Equal(t, "", gunzip(t, fsys, paths.JSONLinesGz))

	recs, err := e.ReadJSONLinesGz(paths.JSONLinesGz)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestWriteOverwritesAndLeavesNoTempFiles(t *testing.T) {
	fsys := afero.NewMemMapFs()
	e := New(fsys)
	require.NoError(t, e.WriteJSON(paths.JSON, sample()))
	require.NoError(t, e.WriteJSON(paths.JSON, sample()[:1]))

	recs, err := e.ReadJSON(paths.JSON)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	entries, err := afero.ReadDir(fsys, "/out/data")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "merged.json", entries[0].Name())
}

func TestWriteFailureIsReported(t *testing.T) {
	e := New(afero.NewReadOnlyFs(afero.NewMemMapFs()))
	err := e.WriteAll(paths, sample())
	require.Error(t, err)
}

func TestReadJSONStripsBOM(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/in.json", append([]byte("\xef\xbb\xbf"), []byte(`[{"text":"x","author":"","tags":[]}]`)...), 0o644))

	recs, err := New(fsys).ReadJSON("/in.json")
	require.NoError(t, err)
	assert.Equal(t, []record.Record{{Text: "x", Author: "", Tags: []string{}}}, recs)
}

func TestLineSeparatorsEscapedButRoundTrip(t *testing.T) {
	fsys := afero.NewMemMapFs()
	e := New(fsys)
	recs := []record.Record{{Text: "one\u2028two\u2029three", Author: "é", Tags: []string{}}}
	require.NoError(t, e.WriteAll(paths, recs))

	raw, err := afero.ReadFile(fsys, paths.JSON)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `one\u2028two\u2029three`)
	assert.Contains(t, string(raw), "é")
	assert.Contains(t, gunzip(t, fsys, paths.JSONLinesGz), `one\u2028two\u2029three`)

	fromJSON, err := e.ReadJSON(paths.JSON)
	require.NoError(t, err)
	assert.Equal(t, recs, fromJSON)
	fromLines, err := e.ReadJSONLinesGz(paths.JSONLinesGz)
	require.NoError(t, err)
	assert.Equal(t, recs, fromLines)
}
