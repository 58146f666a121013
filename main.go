package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"imoveis-importer/api"
	"imoveis-importer/config"
	"imoveis-importer/jobs"
	"imoveis-importer/utils"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "importer",
		Short:         "Import broker listings into the property database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCrawlCmd(), newMigrateImagesCmd(), newServeCmd())
	return root
}

// setup loads configuration and wires the app. The returned context is
// cancelled on SIGINT/SIGTERM.
func setup(cmd *cobra.Command, override func(*config.Config)) (context.Context, *app, func(), error) {
	logger := utils.NewLogger()
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	if override != nil {
		override(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, nil, nil, err
		}
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("Make sure PostgreSQL and the object store are reachable: docker compose up -d")
		return nil, nil, nil, err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	return ctx, a, func() { stop(); a.Close() }, nil
}

func newCrawlCmd() *cobra.Command {
	var maxPages int
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl of the configured broker site",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, a, done, err := setup(cmd, func(cfg *config.Config) {
				if maxPages > 0 {
					cfg.MaxPages = maxPages
				}
			})
			if err != nil {
				return err
			}
			defer done()

			a.logger.Info("=== Listing import starting ===")
			a.logger.Info("Config: source %s | pages: %d | images/listing: %d | threshold: %.2f | fetch: %s",
				a.cfg.Source.IndexTemplate, a.cfg.MaxPages, a.cfg.MaxImages, a.cfg.MatchThreshold, a.cfg.FetchMode)

			summary, err := a.runCrawl(ctx)
			if summary != nil {
				a.printReport(ctx, summary)
			}
			return err
		},
	}
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "override MAX_PAGES for this run")
	return cmd
}

func newMigrateImagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-images",
		Short: "Re-host stored images that still point at broker sites",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, a, done, err := setup(cmd, nil)
			if err != nil {
				return err
			}
			defer done()

			summary, err := a.runMigrateImages(ctx)
			a.printReport(ctx, summary)
			return err
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the import job API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, a, done, err := setup(cmd, nil)
			if err != nil {
				return err
			}
			defer done()

			queue := jobs.NewQueue(map[jobs.Kind]jobs.RunFunc{
				jobs.KindCrawl:         a.runCrawl,
				jobs.KindMigrateImages: a.runMigrateImages,
			}, 16, a.cfg.JobMinInterval, a.logger)

			srv := &http.Server{
				Addr:              a.cfg.HTTPAddr,
				Handler:           api.NewHandler(queue, a.logger).Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("[api] Listening on %s", a.cfg.HTTPAddr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err = <-errCh:
			case <-ctx.Done():
				a.logger.Info("[api] Shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				err = srv.Shutdown(shutdownCtx)
			}
			queue.Close()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		},
	}
}
