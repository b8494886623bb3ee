package main

import (
	"github.com/spf13/cobra"

	"github.com/elikochva/openprices/internal/scrape"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Register chains from the government catalog page",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		catalog := scrape.NewCatalog(a.db, a.client, a.cache, a.cfg.CatalogURL, a.log)
		return catalog.DiscoverChains(ctx)
	},
}
