// quotes-history prints recent build runs and the dataset files cached for
// the configured sources.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cognicore/quotes/pkg/quotes/config"
	"github.com/cognicore/quotes/pkg/quotes/store"
	"github.com/cognicore/quotes/pkg/quotes/store/sqlite"
)

type report struct {
	Runs  []runEntry  `json:"runs"`
	Files []fileEntry `json:"files"`
}

type runEntry struct {
	ID        string              `json:"id"`
	StartedAt time.Time           `json:"started_at"`
	Took      string              `json:"took"`
	Total     int                 `json:"total"`
	Sources   []store.SourceCount `json:"sources"`
}

type fileEntry struct {
	Repo      string    `json:"repo"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	ETag      string    `json:"etag,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:          "quotes-history",
		Short:        "Show recent dataset builds and cached files",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := os.Getwd()
			if err != nil {
				return err
			}
			cfg, _, err := config.LoadOrDefault(root)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			st, err := sqlite.OpenSQLite(ctx, filepath.Join(cfg.CacheDir, "cache.db"))
			if err != nil {
				return fmt.Errorf("open cache store: %w", err)
			}
			defer st.Close()

			rep, err := collect(ctx, st, cfg, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), rep)
			}
			writeText(cmd.OutOrStdout(), rep, time.Now())
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func collect(ctx context.Context, st store.Store, cfg *config.Config, limit int) (report, error) {
	var rep report
	runs, err := st.RecentRuns(ctx, limit)
	if err != nil {
		return rep, fmt.Errorf("load runs: %w", err)
	}
	for _, r := range runs {
		rep.Runs = append(rep.Runs, runEntry{
			ID:        r.ID,
			StartedAt: r.StartedAt,
			Took:      r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
			Total:     r.Total,
			Sources:   r.Sources,
		})
	}

	seen := map[string]bool{}
	for _, sc := range cfg.AllSources() {
		if sc.Repo == "" || seen[sc.Repo] {
			continue
		}
		seen[sc.Repo] = true
		files, err := st.ListFiles(ctx, sc.Repo)
		if err != nil {
			return rep, fmt.Errorf("list files of %s: %w", sc.Repo, err)
		}
		for _, f := range files {
			rep.Files = append(rep.Files, fileEntry{
				Repo:      f.Repo,
				Path:      f.Path,
				Size:      f.Size,
				ETag:      f.ETag,
				FetchedAt: f.FetchedAt,
			})
		}
	}
	return rep, nil
}

func writeJSON(w io.Writer, rep report) error {
	out, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func writeText(w io.Writer, rep report, now time.Time) {
	if len(rep.Runs) == 0 {
		fmt.Fprintln(w, "no recorded runs")
	}
	for _, r := range rep.Runs {
		fmt.Fprintf(w, "%s  %s  %s records  (%s)\n",
			r.ID, humanize.RelTime(r.StartedAt, now, "ago", "from now"), humanize.Comma(int64(r.Total)), r.Took)
		for _, s := range r.Sources {
			if s.Skipped {
				fmt.Fprintf(w, "    %-28s skipped: %s\n", s.Name, s.Reason)
				continue
			}
			fmt.Fprintf(w, "    %-28s +%s\n", s.Name, humanize.Comma(int64(s.Added)))
		}
	}
	if len(rep.Files) == 0 {
		return
	}
	fmt.Fprintln(w, "cached files:")
	for _, f := range rep.Files {
		fmt.Fprintf(w, "    %s/%s  %s\n", f.Repo, f.Path, humanize.Bytes(uint64(f.Size)))
	}
}
