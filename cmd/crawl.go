package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/ml-inventory/internal/crawl"
	"github.com/jonesrussell/ml-inventory/internal/fetcher"
	"github.com/jonesrussell/ml-inventory/internal/retry"
	"github.com/jonesrussell/ml-inventory/internal/scrape"
	"github.com/jonesrussell/ml-inventory/internal/store"
)

var (
	crawlURL    string
	crawlSeller int64
	crawlOut    string

	crawlCmd = &cobra.Command{
		Use:   "crawl",
		Short: "Crawl a listing or seller store and write items to NDJSON",
		RunE:  runCrawl,
	}
)

func init() {
	crawlCmd.Flags().StringVar(&crawlURL, "url", "", "listing page URL to start from")
	crawlCmd.Flags().Int64Var(&crawlSeller, "seller", 0, "seller ID to crawl (store URL is derived)")
	crawlCmd.Flags().StringVar(&crawlOut, "out", "", "output NDJSON path (defaults to items_path from config)")
	crawlCmd.MarkFlagsOneRequired("url", "seller")
	crawlCmd.MarkFlagsMutuallyExclusive("url", "seller")
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	f := fetcher.New(cfg.Fetcher, retry.DefaultPolicy(), log.WithComponent("fetcher"))
	crawler := crawl.New(f, cfg.Crawl, log.WithComponent("crawl"))

	var (
		result *crawl.Result
		err    error
	)
	if crawlSeller != 0 {
		result, err = crawler.RunSeller(ctx, crawlSeller)
	} else {
		result, err = crawler.Run(ctx, crawlURL, nil)
	}
	if err != nil {
		return err
	}

	items, err := crawler.Enrich(ctx, result.Cards)
	if err != nil {
		return err
	}

	outPath := crawlOut
	if outPath == "" {
		outPath = cfg.ItemsPath
	}
	if err := store.WriteItems(outPath, items); err != nil {
		return err
	}

	log.Info("crawl complete",
		"pages", result.PagesFetched,
		"sellers_discovered", len(result.Sellers),
		"items_written", len(items),
		"path", outPath)

	return printJSON(struct {
		Stats   any                `json:"stats"`
		Sellers []scrape.SellerRef `json:"sellers,omitempty"`
		Items   int                `json:"items_written"`
		Path    string             `json:"path"`
	}{result.Stats, result.Sellers, len(items), outPath})
}

// printJSON writes the structured command outcome to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	return nil
}
