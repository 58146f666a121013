package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"imoveis-importer/models"
	"imoveis-importer/services"
	"imoveis-importer/storage"
	"imoveis-importer/utils"
)

// CrawlState is a step of the per-page loop.
type CrawlState int

const (
	StateFetchingIndex CrawlState = iota
	StateExtractingLinks
	StateProcessingListings
	StateNextPage
	StateDone
)

func (s CrawlState) String() string {
	switch s {
	case StateFetchingIndex:
		return "fetching-index"
	case StateExtractingLinks:
		return "extracting-links"
	case StateProcessingListings:
		return "processing-listings"
	case StateNextPage:
		return "next-page"
	case StateDone:
		return "done"
	}
	return "unknown"
}

const pagePlaceholder = "{page}"

// Options drives one crawl of a broker site.
type Options struct {
	// IndexTemplate is the listing index URL with a "{page}" placeholder.
	IndexTemplate  string
	DetailSegment  string
	IndexSegment   string
	ListingDelay   time.Duration
	PageDelay      time.Duration
	MaxPages       int
	MatchThreshold float64
}

// Crawler walks a broker's paginated index, imports every detail page it links
// to, and re-hosts the listing photos. Listings are handled one at a time.
type Crawler struct {
	fetcher   Fetcher
	extractor *Extractor
	store     storage.PropertyStore
	migrator  *services.Migrator
	sink      storage.ScrapedListingWriter
	opts      Options
	logger    *utils.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewCrawler creates a Crawler. migrator may be nil to import records without images.
func NewCrawler(fetcher Fetcher, extractor *Extractor, store storage.PropertyStore, migrator *services.Migrator, opts Options, logger *utils.Logger) *Crawler {
	if opts.MaxPages < 1 {
		opts.MaxPages = 10
	}
	// Zero means unset; Config.Validate never lets an explicit zero through.
	if opts.MatchThreshold <= 0 {
		opts.MatchThreshold = services.DefaultMatchThreshold
	}
	return &Crawler{
		fetcher:   fetcher,
		extractor: extractor,
		store:     store,
		migrator:  migrator,
		opts:      opts,
		logger:    logger,
		sleep:     utils.Sleep,
	}
}

// WithSink makes the crawler dump every scraped listing to w before reconciliation.
func (c *Crawler) WithSink(w storage.ScrapedListingWriter) *Crawler {
	c.sink = w
	return c
}

// Run performs one crawl. A failing index page aborts the run with an error; a
// failing listing is logged and skipped. When ctx is cancelled the run stops at
// the next page or listing boundary, after the listing in flight is fully written.
// The returned summary is never nil.
func (c *Crawler) Run(ctx context.Context) (*models.RunSummary, error) {
	summary := &models.RunSummary{StartedAt: time.Now()}
	defer func() {
		summary.FinishedAt = time.Now()
		crawlDuration.Observe(summary.Duration().Seconds())
	}()

	stored, err := c.store.GetAll(ctx, storage.Filter{})
	if err != nil {
		summary.Fatal = err.Error()
		c.logger.Error("[crawler] Could not load stored properties: %v", err)
		return summary, fmt.Errorf("load candidates: %w", err)
	}
	candidates := services.NewCandidateSet(stored)
	seen := utils.NewURLSet()
	c.logger.Info("[crawler] Starting crawl of %s: up to %d pages, %d stored candidates",
		c.opts.IndexTemplate, c.opts.MaxPages, candidates.Len())

	cancelled := func(err error) (*models.RunSummary, error) {
		summary.Cancelled = true
		c.logger.Warn("[crawler] Cancelled on page %d: %v", summary.PagesVisited, err)
		return summary, err
	}

	var (
		page  = 1
		state = StateFetchingIndex
		index *Response
		links []string
	)
	for state != StateDone {
		switch state {
		case StateFetchingIndex:
			if err := ctx.Err(); err != nil {
				return cancelled(err)
			}
			indexURL := c.indexURL(page)
			c.logger.Info("[crawler] Page %d: %s", page, indexURL)
			index, err = c.fetcher.Fetch(ctx, indexURL)
			if err != nil {
				if ctx.Err() != nil {
					return cancelled(ctx.Err())
				}
				crawlPagesTotal.WithLabelValues("failed").Inc()
				summary.Fatal = err.Error()
				c.logger.Error("[crawler] Index page %d failed, aborting: %v", page, err)
				return summary, fmt.Errorf("index page %d: %w", page, err)
			}
			crawlPagesTotal.WithLabelValues("ok").Inc()
			summary.PagesVisited++
			state = StateExtractingLinks

		case StateExtractingLinks:
			links = links[:0]
			for _, link := range ExtractLinks(index, c.opts.DetailSegment, c.opts.IndexSegment) {
				if seen.Add(link) {
					links = append(links, link)
				}
			}
			summary.ListingsFound += len(links)
			c.logger.Info("[crawler] Page %d: %d new listing links", page, len(links))
			switch {
			case len(links) > 0:
				state = StateProcessingListings
			case page > 1:
				c.logger.Info("[crawler] Page %d has no listings, stopping", page)
				state = StateDone
			default:
				state = StateNextPage
			}

		case StateProcessingListings:
			for i, link := range links {
				if err := ctx.Err(); err != nil {
					return cancelled(err)
				}
				if i > 0 {
					if err := c.sleep(ctx, c.opts.ListingDelay); err != nil {
						return cancelled(err)
					}
				}
				c.processListing(ctx, link, candidates, summary)
			}
			state = StateNextPage

		case StateNextPage:
			if page >= c.opts.MaxPages || !strings.Contains(c.opts.IndexTemplate, pagePlaceholder) {
				state = StateDone
				continue
			}
			if err := c.sleep(ctx, c.opts.PageDelay); err != nil {
				return cancelled(err)
			}
			page++
			state = StateFetchingIndex
		}
	}

	c.logger.Info("[crawler] Crawl complete: %d pages, %d listings found, %d created, %d updated, %d skipped",
		summary.PagesVisited, summary.ListingsFound, summary.Created, summary.Updated, summary.Skipped)
	return summary, nil
}

func (c *Crawler) indexURL(page int) string {
	return strings.ReplaceAll(c.opts.IndexTemplate, pagePlaceholder, strconv.Itoa(page))
}

// processListing imports one detail page. Errors never leave this function.
func (c *Crawler) processListing(ctx context.Context, link string, candidates *services.CandidateSet, summary *models.RunSummary) {
	resp, err := c.fetcher.Fetch(ctx, link)
	if err != nil {
		c.skip(summary, "fetch_failed", "[crawler] Skipping %s: %v", link, err)
		return
	}
	listing, err := c.extractor.Extract(resp)
	if err != nil {
		c.skip(summary, "extract_failed", "[crawler] Skipping %s: %v", link, err)
		return
	}
	summary.Processed++

	if c.sink != nil {
		if err := c.sink.WriteScraped([]*models.ScrapedListing{listing}); err != nil {
			c.logger.Warn("[crawler] CSV dump failed for %s: %v", link, err)
		}
	}

	// Once fetched, the listing is written to completion even if ctx is cancelled.
	c.reconcile(context.WithoutCancel(ctx), listing, candidates, summary)
}

func (c *Crawler) reconcile(ctx context.Context, listing *models.ScrapedListing, candidates *services.CandidateSet, summary *models.RunSummary) {
	title := listing.Title
	if match := candidates.Match(listing.Title, c.opts.MatchThreshold); match.Matched() {
		c.logger.Debug("[crawler] %q matches stored %q (score %.2f)", listing.Title, match.Candidate.Title, match.Score)
		title = match.Candidate.Title
		summary.Matched++
	}

	res, err := c.store.Upsert(ctx, &models.StoredProperty{
		Title:       title,
		PriceCents:  listing.PriceCents,
		City:        listing.City,
		State:       listing.State,
		Description: listing.Description,
		Features:    models.Features{AreaSquareMeters: listing.AreaSquareMeters},
	})
	if err != nil {
		c.skip(summary, "persist_failed", "[crawler] Could not save %q: %v", title, err)
		return
	}
	if res.Created {
		summary.Created++
		crawlListingsTotal.WithLabelValues("created").Inc()
	} else {
		summary.Updated++
		crawlListingsTotal.WithLabelValues("updated").Inc()
	}

	if c.migrator == nil || len(listing.RawImageURLs) == 0 {
		return
	}
	prop := res.Property
	migrated := c.migrator.Migrate(ctx, prop.ID, listing.RawImageURLs, prop.ImageSources)
	summary.ImagesMigrated += migrated.Migrated
	summary.ImagesReused += migrated.Reused
	summary.ImagesFailed += migrated.Failed
	if len(migrated.Images) == 0 {
		c.logger.Warn("[crawler] No image of %q could be migrated, keeping stored images", title)
		return
	}
	sources := services.MergeSources(prop.ImageSources, migrated.Sources)
	if err := c.store.UpdateImages(ctx, prop.ID, migrated.Images, sources); err != nil {
		c.logger.Error("[crawler] Could not set images of %q: %v", title, err)
	}
}

func (c *Crawler) skip(summary *models.RunSummary, outcome, format string, args ...any) {
	summary.Skipped++
	crawlListingsTotal.WithLabelValues(outcome).Inc()
	c.logger.Warn(format, args...)
}

// ExtractLinks returns the detail-page links of an index page: same host, path
// containing detailSegment but not indexSegment, fragments dropped, first-seen order.
func ExtractLinks(resp *Response, detailSegment, indexSegment string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.Text()))
	if err != nil {
		return nil
	}
	base, err := url.Parse(resp.URL)
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		ref, err := url.Parse(strings.TrimSpace(s.AttrOr("href", "")))
		if err != nil {
			return
		}
		u := base.ResolveReference(ref)
		u.Fragment = ""
		if u.Host != base.Host || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		if detailSegment != "" && !strings.Contains(u.Path, detailSegment) {
			return
		}
		if indexSegment != "" && strings.Contains(u.Path, indexSegment) {
			return
		}
		link := u.String()
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})
	return links
}
