// quotes-build fetches the configured quotation datasets, merges them into one
// deduplicated collection and writes data/merged.json and
// src/lib/quotes.jsonl.gz relative to the working directory.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cognicore/quotes/internal/logger"
	"github.com/cognicore/quotes/pkg/quotes"
	"github.com/cognicore/quotes/pkg/quotes/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "quotes-build",
		Short:        "Build the merged quotation dataset",
		Long:         "quotes-build downloads every configured dataset, normalizes and deduplicates the records and writes the JSON and gzipped JSON-lines artifacts. Settings are read from quotes.yaml in the working directory when present.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := os.Getwd()
			if err != nil {
				return err
			}
			return run(cmd.Context(), root, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func run(ctx context.Context, root string, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, found, err := config.LoadOrDefault(root)
	if err != nil {
		return err
	}
	log := logger.ForTool("quotes-build", cfg.LogLevel, cfg.LogFormat, stderr)
	if !found {
		log.Debug("no config file, using defaults", "file", config.FileName)
	}

	b, err := quotes.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn("close", "err", err)
		}
	}()

	sum, err := b.Build(ctx)
	if err != nil {
		log.Error("build failed", "err", err)
		return err
	}
	printSummary(stdout, sum)
	return nil
}

func printSummary(w io.Writer, sum *quotes.Summary) {
	for _, r := range sum.Reports {
		if r.Skipped() {
			fmt.Fprintf(w, "%-28s skipped after +%s: %v\n", r.Name, humanize.Comma(int64(r.Added)), r.Err)
			continue
		}
		line := fmt.Sprintf("%-28s +%s", r.Name, humanize.Comma(int64(r.Added)))
		if r.Duplicates > 0 {
			line += fmt.Sprintf(" (%s duplicates)", humanize.Comma(int64(r.Duplicates)))
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "total: %s records in %s\n", humanize.Comma(int64(sum.Total)), sum.Took.Round(time.Millisecond))
	fmt.Fprintf(w, "wrote %s\nwrote %s\n", sum.Paths.JSON, sum.Paths.JSONLinesGz)
	if sum.BelowLowWater() {
		fmt.Fprintf(w, "note: total is below %s; one or more sources may have failed to download or parse\n",
			humanize.Comma(int64(sum.LowWater)))
	}
}
