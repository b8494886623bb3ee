package main

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/elikochva/openprices/internal/metrics"
	"github.com/elikochva/openprices/internal/pipeline"
)

var scheduleSpec string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the pipeline on a cron schedule",
	Long: `Keep the process alive and run the full pipeline (download,
stores, prices, promotions) at the configured cron times. Stops on
SIGINT/SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		if a.cfg.MetricsAddr != "" {
			metrics.Serve(a.cfg.MetricsAddr, a.log)
		}

		spec := scheduleSpec
		if spec == "" {
			spec = a.cfg.Schedule
		}

		c := cron.New()
		_, err = c.AddFunc(spec, func() {
			driver := pipeline.NewDriver(a.db, a.client, a.cache, pipeline.Config{
				Workers:  a.cfg.Workers,
				Download: true,
				Promos:   true,
			}, a.log)
			if err := driver.Run(ctx); err != nil {
				a.log.Error().Err(err).Msg("scheduled run failed")
			}
		})
		if err != nil {
			return fmt.Errorf("invalid cron spec %q: %w", spec, err)
		}

		a.log.Info().Str("spec", spec).Msg("scheduler started")
		c.Start()
		<-ctx.Done()
		<-c.Stop().Done()
		return nil
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleSpec, "cron", "", "cron spec (default from config)")
}
