package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/elikochva/openprices/internal/metrics"
	"github.com/elikochva/openprices/internal/pipeline"
)

var runFlags struct {
	processes   int
	noDownload  bool
	parseChains bool
	promos      bool
	date        string
	metricsAddr string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daily ingestion pipeline",
	Long: `Download every registered chain's files, parse stores, and
reconcile each store's prices into the history tables. Individual chain
or store failures are logged and skipped; the run itself still exits 0.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		date := time.Now()
		if runFlags.date != "" {
			date, err = time.Parse("2006-01-02", runFlags.date)
			if err != nil {
				return fmt.Errorf("invalid --date %q (want YYYY-MM-DD): %w", runFlags.date, err)
			}
		}

		if addr := firstNonEmpty(runFlags.metricsAddr, a.cfg.MetricsAddr); addr != "" {
			metrics.Serve(addr, a.log)
		}

		driver := pipeline.NewDriver(a.db, a.client, a.cache, pipeline.Config{
			Workers:        runFlags.processes,
			Download:       !runFlags.noDownload,
			DiscoverChains: runFlags.parseChains,
			CatalogURL:     a.cfg.CatalogURL,
			Promos:         runFlags.promos,
			Date:           date,
		}, a.log)
		return driver.Run(ctx)
	},
}

func init() {
	runCmd.Flags().IntVarP(&runFlags.processes, "processes", "p", 1, "parallel workers per phase")
	runCmd.Flags().BoolVarP(&runFlags.noDownload, "no-download", "n", false, "skip the download phase (data already cached)")
	runCmd.Flags().BoolVarP(&runFlags.parseChains, "parse-chains", "c", false, "refresh the chain registry from the government catalog first")
	runCmd.Flags().BoolVar(&runFlags.promos, "promos", false, "also parse promotion files")
	runCmd.Flags().StringVar(&runFlags.date, "date", "", "snapshot date, YYYY-MM-DD (default today)")
	runCmd.Flags().StringVar(&runFlags.metricsAddr, "metrics-addr", "", "expose prometheus metrics on this address")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
