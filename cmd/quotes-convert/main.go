// quotes-convert rewrites a JSON array of quotes (such as data/merged.json)
// into the gzipped JSON-lines artifact.
package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/cognicore/quotes/internal/logger"
	"github.com/cognicore/quotes/pkg/quotes/config"
	"github.com/cognicore/quotes/pkg/quotes/emit"
	"github.com/cognicore/quotes/pkg/quotes/record"
	"github.com/cognicore/quotes/pkg/quotes/source"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:          "quotes-convert <input.json>",
		Short:        "Convert a JSON array of quotes to gzipped JSON lines",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := os.Getwd()
			if err != nil {
				return err
			}
			cfg, _, err := config.LoadOrDefault(root)
			if err != nil {
				return err
			}
			if out == "" {
				out = cfg.Output.JSONLinesGz
			}
			log := logger.ForTool("quotes-convert", cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
			res, err := convert(afero.NewOsFs(), args[0], out)
			if err != nil {
				log.Error("convert failed", "input", args[0], "err", err)
				return err
			}
			if res.Discarded > 0 {
				log.Warn("discarded entries without text", "count", res.Discarded)
			}
			printResult(cmd.OutOrStdout(), res, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default: output.jsonl_gz from quotes.yaml)")
	return cmd
}

type result struct {
	Written   int
	Discarded int
}

func convert(fsys afero.Fs, in, out string) (result, error) {
	var res result
	data, err := afero.ReadFile(fsys, in)
	if err != nil {
		return res, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !gjson.ValidBytes(data) {
		return res, fmt.Errorf("%s: invalid JSON", in)
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsArray() {
		return res, fmt.Errorf("%s: expected a JSON array", in)
	}

	recs := make([]record.Record, 0, len(doc.Array()))
	doc.ForEach(func(_, v gjson.Result) bool {
		raw := source.DefaultLocalFields.Extract(v)
		rec, ok := record.Normalize(raw.Text, raw.Author, raw.Tags)
		if !ok {
			res.Discarded++
			return true
		}
		recs = append(recs, rec)
		return true
	})

	if err := emit.New(fsys).WriteJSONLinesGz(out, recs); err != nil {
		return res, err
	}
	res.Written = len(recs)
	return res, nil
}

func printResult(w io.Writer, res result, out string) {
	fmt.Fprintf(w, "wrote %s records to %s\n", humanize.Comma(int64(res.Written)), out)
}
