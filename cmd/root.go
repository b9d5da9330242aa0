// Package cmd implements the command-line interface for the MercadoLibre
// inventory pipeline: crawl passes, exports, and FX rate lookups.
package cmd

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/ml-inventory/internal/config"
	"github.com/jonesrussell/ml-inventory/internal/logger"
)

var (
	cfgFile     string
	metricsAddr string

	cfg *config.Config
	log logger.Interface

	rootCmd = &cobra.Command{
		Use:   "ml-inventory",
		Short: "MercadoLibre listing ingestion pipeline",
		Long: `Crawls MercadoLibre MX listings, assembles and filters cards,
enriches them from detail pages, and exports sell listings to the backend
inventory store.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command with signal-aware cancellation.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yml", "config file path")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address (e.g. :9108)")

	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		loaded, err := config.Load(config.Path(cfgFile))
		if err != nil {
			return err
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded

		l, err := logger.New(&cfg.Logging)
		if err != nil {
			return err
		}
		log = l

		if metricsAddr != "" {
			startMetricsServer(metricsAddr)
		}

		return nil
	}

	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(rateCmd)
}

// startMetricsServer exposes /metrics in the background for the lifetime of
// the command. Long crawls are the intended scrape target.
func startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server stopped", "error", err.Error())
		}
	}()
}
