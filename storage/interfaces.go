package storage

import (
	"context"
	"fmt"

	"imoveis-importer/models"
)

// Filter narrows GetAll. The zero value returns every property.
type Filter struct {
	Limit int
}

// UpsertResult is the row written by Upsert and whether it was newly created.
type UpsertResult struct {
	Property *models.StoredProperty
	Created  bool
}

// PropertyStore persists properties keyed by their title.
type PropertyStore interface {
	Upsert(ctx context.Context, p *models.StoredProperty) (*UpsertResult, error)
	GetAll(ctx context.Context, f Filter) ([]*models.StoredProperty, error)
	UpdateImages(ctx context.Context, id string, images []string, sources map[string]string) error
}

// ObjectStore holds migrated images.
type ObjectStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	PublicURL(path string) string
	// Owns reports whether url is served by this store.
	Owns(url string) bool
}

// ScrapedListingWriter is the interface for dumping scraped listings before reconciliation.
type ScrapedListingWriter interface {
	WriteScraped(listings []*models.ScrapedListing) error
	Close() error
}

// PersistenceError wraps a failed property store operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("postgres: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
