package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-coverage-crawler/internal/app"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/dates"
)

type crawlFlags struct {
	outlet          string
	startYear       int
	endYear         int
	workers         int
	defaultCategory string
}

// newCrawlCmd creates the 'crawl' subcommand, which runs one outlet to
// completion and prints the per-year counts.
func newCrawlCmd() *cobra.Command {
	var flags crawlFlags
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls one outlet's sitemaps and reports yearly coverage",
		Long: `Resolves the outlet's root sitemap, walks the sitemap tree within the
year window and writes the URL and counts reports to every configured
destination. Ctrl-C stops dispatching new sitemaps and still writes the
partial reports.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawlCommand(cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.outlet, "outlet", "", "outlet id (see 'profiles')")
	cmd.Flags().IntVar(&flags.startYear, "start-year", 0, "first year of the window (default crawl.start_year)")
	cmd.Flags().IntVar(&flags.endYear, "end-year", 0, "last year of the window (default crawl.end_year)")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "concurrent sitemap fetches (default crawl.workers)")
	cmd.Flags().StringVar(&flags.defaultCategory, "default-category", "",
		"category for in-scope URLs no rule decided: men, women or drop (default from profile)")
	_ = cmd.MarkFlagRequired("outlet")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, flags crawlFlags) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.Config().Server.Enabled {
		serveCtx, stopServe := context.WithCancel(ctx)
		served := make(chan struct{})
		go func() {
			defer close(served)
			if serr := a.Serve(serveCtx); serr != nil {
				a.Logger().Warn("status server stopped", zap.Error(serr))
			}
		}()
		defer func() {
			stopServe()
			<-served
		}()
	}

	result, err := a.Run(ctx, app.RunOptions{
		Outlet:          flags.outlet,
		Window:          dates.Window{Start: flags.startYear, End: flags.endYear},
		Workers:         flags.workers,
		DefaultCategory: flags.defaultCategory,
	})
	if err != nil {
		return fmt.Errorf("run crawl: %w", err)
	}
	printResult(cmd.OutOrStdout(), result)
	return nil
}

func printResult(w io.Writer, result app.RunResult) {
	s := result.Summary
	fmt.Fprintf(w, "outlet %s run %s\n", s.Outlet, s.RunID)
	fmt.Fprintf(w, "sitemaps: attempted=%d failed=%d unrecognized=%d pruned=%d filtered=%d duplicate=%d skipped=%d\n",
		s.SitemapsAttempted, s.SitemapsFailed, s.SitemapsUnrecognized, s.SitemapsPruned,
		s.SitemapsFiltered, s.SitemapsDuplicate, s.SitemapsSkipped)
	fmt.Fprintf(w, "entries=%d in_scope=%d year_filtered=%d records=%d\n",
		s.Entries, s.InScope, s.YearFiltered, s.Records)
	if s.Canceled {
		fmt.Fprintln(w, "run was canceled, counts are partial")
	}
	fmt.Fprintf(w, "%-6s %7s %7s %7s %8s\n", "year", "women", "men", "total", "share")
	for _, row := range result.Years {
		fmt.Fprintf(w, "%-6d %7d %7d %7d %8.4f\n", row.Year, row.Women, row.Men, row.Total, row.WomenShare)
	}
	for _, uri := range result.Reports {
		fmt.Fprintf(w, "report %s\n", uri)
	}
}
