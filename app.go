package main

import (
	"context"
	"fmt"
	"os"

	"imoveis-importer/config"
	"imoveis-importer/models"
	"imoveis-importer/scraper"
	"imoveis-importer/services"
	"imoveis-importer/storage"
	"imoveis-importer/utils"
)

// app holds the wired dependencies shared by every command.
type app struct {
	cfg     *config.Config
	logger  *utils.Logger
	store   *storage.PostgresStore
	objects *storage.S3Store
	http    *scraper.HTTPFetcher
	fetcher scraper.Fetcher
	csv     *storage.CSVWriter

	closers []func()
}

func newApp(cfg *config.Config, logger *utils.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	store, err := storage.NewPostgresStore(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to PostgreSQL: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, func() { _ = store.Close() })

	objects, err := storage.NewS3Store(storage.S3Config{
		Bucket:        cfg.S3Bucket,
		Prefix:        cfg.S3Prefix,
		Region:        cfg.S3Region,
		Endpoint:      cfg.S3Endpoint,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		PublicBaseURL: cfg.PublicBaseURL,
	}, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("object storage: %w", err)
	}
	a.objects = objects

	retry := utils.RetryConfig{
		MaxAttempts: cfg.MaxRetries,
		BaseDelay:   cfg.RetryBaseDelay,
		Logger:      logger,
	}
	a.http = scraper.NewHTTPFetcher(scraper.FetcherOptions{
		UserAgent:     cfg.Source.UserAgent,
		PageTimeout:   cfg.HTTPTimeout,
		ImageTimeout:  cfg.ImageTimeout,
		MaxImageBytes: cfg.MaxImageBytes,
		Retry:         retry,
	})
	a.fetcher = a.http
	if cfg.FetchMode == "browser" {
		browser := scraper.NewBrowserFetcher(scraper.BrowserOptions{
			ChromeBin: cfg.ChromeBin,
			UserAgent: cfg.Source.UserAgent,
			Timeout:   cfg.HTTPTimeout,
			Retry:     retry,
		}, logger)
		a.fetcher = browser
		a.closers = append(a.closers, browser.Close)
	}

	if cfg.CSVOutputPath != "" {
		w, err := storage.NewCSVWriter(cfg.CSVOutputPath)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.csv = w
		a.closers = append(a.closers, func() { _ = w.Close() })
	}
	return a, nil
}

func (a *app) migrator() *services.Migrator {
	return services.NewMigrator(a.http, a.objects, a.cfg.MaxImages, a.logger)
}

func (a *app) runCrawl(ctx context.Context) (*models.RunSummary, error) {
	src := a.cfg.Source
	if src.IndexTemplate == "" {
		return nil, fmt.Errorf("no source configured: set SOURCE_BASE_URL, SOURCE_INDEX_TEMPLATE or SOURCE_PROFILE")
	}
	c := scraper.NewCrawler(a.fetcher, scraper.NewExtractor(src), a.store, a.migrator(), scraper.Options{
		IndexTemplate:  src.IndexTemplate,
		DetailSegment:  src.DetailSegment,
		IndexSegment:   src.IndexSegment,
		ListingDelay:   a.cfg.ListingDelay,
		PageDelay:      a.cfg.PageDelay,
		MaxPages:       a.cfg.MaxPages,
		MatchThreshold: a.cfg.MatchThreshold,
	}, a.logger.With("source", src.Name))
	if a.csv != nil {
		c.WithSink(a.csv)
	}
	return c.Run(ctx)
}

func (a *app) runMigrateImages(ctx context.Context) (*models.RunSummary, error) {
	return a.migrator().MigrateExisting(ctx, a.store)
}

// printReport writes the run summary and the current inventory to stdout.
func (a *app) printReport(ctx context.Context, summary *models.RunSummary) {
	report := services.NewReportService(a.logger, a.objects.Owns)
	props, err := a.store.GetAll(context.WithoutCancel(ctx), storage.Filter{})
	if err != nil {
		a.logger.Error("Failed to load properties for the report: %v", err)
		report.Print(os.Stdout, summary, nil)
		return
	}
	report.Print(os.Stdout, summary, report.Generate(props))
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
