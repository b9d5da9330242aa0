package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/ml-inventory/internal/export"
)

var rateCmd = &cobra.Command{
	Use:   "rate",
	Short: "Look up the MXN to USD exchange rate from the backend",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client := export.NewClient(
			export.WithBaseURL(cfg.Export.BaseURL),
			export.WithLogger(log.WithComponent("backend")),
		)

		rate, asOf, err := client.ExchangeRateWalkBack(cmd.Context(), time.Now())
		if err != nil {
			return err
		}

		return printJSON(struct {
			RateToUSD float64 `json:"rate_to_usd"`
			AsOf      string  `json:"as_of"`
		}{rate, asOf})
	},
}
