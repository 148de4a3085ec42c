package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atelier-carto/fondplan/internal/commune"
	"github.com/atelier-carto/fondplan/internal/export"
	"github.com/atelier-carto/fondplan/internal/fetcher"
	"github.com/atelier-carto/fondplan/internal/geomeng"
	"github.com/atelier-carto/fondplan/internal/pipeline"
	"github.com/atelier-carto/fondplan/internal/progress"
	"github.com/atelier-carto/fondplan/internal/sirene"
	"github.com/atelier-carto/fondplan/internal/store"
	"github.com/atelier-carto/fondplan/internal/wfs"
)

var buildCmd = &cobra.Command{
	Use:   "build <commune name>",
	Short: "Assemble the base map for a commune",
	Long: `Resolves the commune (partial name accepted), loads the declared WFS
layers bbox-filtered and clipped to its boundary, ingests SIRENE
establishments and writes the composed layers to the output directory.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		nameQuery := strings.Join(args, " ")

		outDir, _ := cmd.Flags().GetString("out")
		format, _ := cmd.Flags().GetString("format")
		workbook, _ := cmd.Flags().GetBool("workbook")
		strategy, _ := cmd.Flags().GetString("strategy")
		noCache, _ := cmd.Flags().GetBool("no-cache")
		pickFirst, _ := cmd.Flags().GetBool("pick-first")

		if outDir == "" {
			outDir = cfg.Output.Dir
		}
		if format == "" {
			format = cfg.Output.Format
		}
		if strategy == "" {
			strategy = cfg.Sirene.Strategy
		}
		workbook = workbook || cfg.Output.Workbook

		engine := geomeng.New()
		httpFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			Timeout:      time.Duration(cfg.WFS.TimeoutSecs) * time.Second,
			RateLimiters: fetcher.DefaultRateLimiters(),
		})
		bulkFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			Timeout:      time.Duration(cfg.Sirene.BulkTimeoutSecs) * time.Second,
			RateLimiters: fetcher.DefaultRateLimiters(),
		})

		var choose commune.ChooseFunc
		if pickFirst {
			choose = func(candidates []commune.Commune) *commune.Commune {
				return &candidates[0]
			}
		} else {
			choose = promptChoose(os.Stdin, os.Stdout)
		}

		var resolver pipeline.BoundaryResolver = commune.NewResolver(cfg.Geo.BaseURL, cfg.Geo.Timeout(), choose)
		if !noCache && !cfg.Cache.Disabled {
			cache, err := store.NewBoundaryCache(cfg.Cache.Path)
			if err != nil {
				zap.L().Warn("boundary cache unavailable, resolving without it", zap.Error(err))
			} else {
				defer cache.Close() //nolint:errcheck
				resolver = &store.CachedResolver{Inner: resolver, Cache: cache}
			}
		}

		wfsFetcher := wfs.NewFetcher(cfg.WFS.BaseURL, httpFetcher, engine, cfg.WFS.MaxFeatures)
		apiClient := sirene.NewAPIClient(cfg.Sirene.SearchBaseURL, httpFetcher, engine, sirene.Options{
			PageSize:  cfg.Sirene.PageSize,
			PageDelay: cfg.Sirene.PageDelay(),
			HardCap:   cfg.Sirene.HardCap,
		})
		bulkClient := sirene.NewBulkClient(cfg.Sirene.BulkBaseURL, bulkFetcher, engine, cfg.Sirene.TempDir)
		ingester := sirene.NewIngester(strategy, apiClient, bulkClient)

		rep := progress.NewLogReporter()
		p := pipeline.New(resolver, wfsFetcher, ingester, engine, rep)

		comp, err := p.Run(ctx, nameQuery)
		if err != nil {
			if eris.Is(err, commune.ErrCancelled) {
				fmt.Println("Cancelled.")
				return nil
			}
			return eris.Wrap(err, "build")
		}

		manifestPath, err := export.WriteComposition(outDir, comp, export.Options{
			Format:   format,
			Workbook: workbook,
		})
		if err != nil {
			return eris.Wrap(err, "build: export")
		}

		fmt.Printf("Base map for %s (%s): %d layer(s) written, manifest at %s\n",
			comp.Commune.Name, comp.Commune.Code, len(comp.Layers), manifestPath)
		return nil
	},
}

func init() {
	buildCmd.Flags().String("out", "", "output directory (default from config)")
	buildCmd.Flags().String("format", "", "layer file format: geojson or shapefile")
	buildCmd.Flags().Bool("workbook", false, "also write the establishments XLSX inventory")
	buildCmd.Flags().String("strategy", "", "establishment source: api or bulk")
	buildCmd.Flags().Bool("no-cache", false, "bypass the local boundary cache")
	buildCmd.Flags().Bool("pick-first", false, "select the first candidate when several communes match")
	rootCmd.AddCommand(buildCmd)
}

// promptChoose asks the user to pick among candidate communes on the
// terminal. An empty answer cancels.
func promptChoose(in io.Reader, out io.Writer) commune.ChooseFunc {
	return func(candidates []commune.Commune) *commune.Commune {
		fmt.Fprintf(out, "%d communes match your search:\n", len(candidates))
		for i, c := range candidates {
			fmt.Fprintf(out, "  %2d) %s — %s\n", i+1, c.Name, c.Code)
		}
		fmt.Fprint(out, "Select [number, empty to cancel]: ")

		scanner := bufio.NewScanner(in)
		if !scanner.Scan() {
			return nil
		}
		answer := strings.TrimSpace(scanner.Text())
		if answer == "" {
			return nil
		}
		n, err := strconv.Atoi(answer)
		if err != nil || n < 1 || n > len(candidates) {
			fmt.Fprintln(out, "Invalid selection.")
			return nil
		}
		return &candidates[n-1]
	}
}
