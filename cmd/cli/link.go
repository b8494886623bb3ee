package main

import (
	"github.com/spf13/cobra"

	"github.com/elikochva/openprices/internal/ingest"
)

var linkPageSize int

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Link store products to shared items by barcode",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		return ingest.NewParser(a.db, a.log).LinkItems(ctx, linkPageSize)
	},
}

func init() {
	linkCmd.Flags().IntVar(&linkPageSize, "page-size", 0, "products per batch (0 for default)")
}
