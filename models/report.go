package models

import "time"

// RunSummary holds the end-of-run counters of one crawl or migration job.
type RunSummary struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	PagesVisited  int `json:"pages_visited"`
	ListingsFound int `json:"listings_found"`
	Processed     int `json:"processed"`
	Created       int `json:"created"`
	Updated       int `json:"updated"`
	Matched       int `json:"matched"`
	Skipped       int `json:"skipped"`

	ImagesMigrated int `json:"images_migrated"`
	ImagesReused   int `json:"images_reused"`
	ImagesFailed   int `json:"images_failed"`

	// Fatal is set when the run aborted before draining every page.
	Fatal     string `json:"fatal,omitempty"`
	Cancelled bool   `json:"cancelled,omitempty"`
}

// Succeeded is the number of listings persisted.
func (r *RunSummary) Succeeded() int {
	return r.Created + r.Updated
}

// Duration returns the wall time of the run, or zero while it is still running.
func (r *RunSummary) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// InventoryReport summarises the stored properties after a run.
type InventoryReport struct {
	TotalProperties   int
	WithImages        int
	ExternalImages    int
	AveragePriceCents int64
	MinPriceCents     int64
	MaxPriceCents     int64
	MostExpensive     *StoredProperty
	PropertiesByState map[string]int
}
