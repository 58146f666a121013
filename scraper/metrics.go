package scraper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	crawlPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "importer",
			Name:      "crawl_pages_total",
			Help:      "Index pages fetched during crawls",
		},
		[]string{"status"},
	)

	crawlListingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "importer",
			Name:      "crawl_listings_total",
			Help:      "Detail pages handled during crawls, by outcome",
		},
		[]string{"outcome"},
	)

	crawlDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "importer",
			Name:      "crawl_duration_seconds",
			Help:      "Duration of crawl runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1h
		},
	)
)
