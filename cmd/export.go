package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/ml-inventory/internal/domain"
	"github.com/jonesrussell/ml-inventory/internal/export"
	"github.com/jonesrussell/ml-inventory/internal/retry"
	"github.com/jonesrussell/ml-inventory/internal/store"
	"github.com/jonesrussell/ml-inventory/internal/transform"
)

var (
	exportItems  string
	exportDryRun bool

	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Export crawled items to the backend inventory store",
		Long: `Transforms crawled items into sell listings, queries the backend for
already-known channel keys, and upserts only the delta. Re-running with
unchanged inputs upserts nothing.`,
		RunE: runExport,
	}
)

func init() {
	exportCmd.Flags().StringVar(&exportItems, "items", "", "input NDJSON path (defaults to items_path from config)")
	exportCmd.Flags().BoolVar(&exportDryRun, "dry-run", false, "transform and diff but skip the upsert")
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	itemsPath := exportItems
	if itemsPath == "" {
		itemsPath = cfg.ItemsPath
	}
	items, err := store.ReadItems(itemsPath)
	if err != nil {
		return err
	}
	log.Info("loaded items", "count", len(items), "path", itemsPath)

	client := export.NewClient(
		export.WithBaseURL(cfg.Export.BaseURL),
		export.WithWorkerKey(cfg.Export.WorkerKey),
		export.WithLogger(log.WithComponent("backend")),
	)

	fx, err := resolveFX(cmd, client)
	if err != nil {
		return err
	}

	var backend export.Backend = client
	if exportDryRun {
		backend = dryRunBackend{client}
	}

	engine := export.NewEngine(backend, retry.DefaultPolicy(), fx, cfg.Policy,
		log.WithComponent("export"))

	outcome, err := engine.Run(ctx, items)
	if err != nil {
		return err
	}

	return printJSON(outcome)
}

// resolveFX uses the configured rate when set, otherwise asks the backend,
// walking back up to a week for the freshest available day.
func resolveFX(cmd *cobra.Command, client *export.Client) (transform.FXRate, error) {
	if cfg.FX.RateToUSD > 0 {
		fx := cfg.FX
		if fx.AsOf == "" {
			fx.AsOf = time.Now().UTC().Format("2006-01-02")
		}
		return fx, nil
	}

	rate, asOf, err := client.ExchangeRateWalkBack(cmd.Context(), time.Now())
	if err != nil {
		return transform.FXRate{}, fmt.Errorf("resolve fx rate: %w", err)
	}
	return transform.FXRate{RateToUSD: rate, AsOf: asOf}, nil
}

// dryRunBackend queries for real but swallows the upsert.
type dryRunBackend struct {
	*export.Client
}

func (d dryRunBackend) PostSellListings(_ context.Context, listings []domain.SellListing) (*export.UpsertResult, error) {
	log.Info("dry run, skipping upsert", "would_upsert", len(listings))
	return &export.UpsertResult{OK: true, ExportedCount: 0}, nil
}
