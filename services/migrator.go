package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"imoveis-importer/models"
	"imoveis-importer/storage"
	"imoveis-importer/utils"
)

// DefaultMaxImages bounds how many images are migrated per listing.
const DefaultMaxImages = 15

// Downloader fetches one remote image.
type Downloader interface {
	Download(ctx context.Context, url string) (*models.ImageAsset, error)
}

// UploadError is returned when the object store rejects an image.
type UploadError struct {
	Path string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Path, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// MigrationResult lists the canonical URLs written for one property, in input order.
type MigrationResult struct {
	Images   []string
	Sources  map[string]string // source URL -> canonical URL
	Migrated int
	Reused   int
	Failed   int
}

// Migrator downloads externally hosted images and re-hosts them in owned storage.
type Migrator struct {
	downloader Downloader
	objects    storage.ObjectStore
	maxImages  int
	logger     *utils.Logger

	now      func() time.Time
	newToken func() string
}

// NewMigrator creates a Migrator. A maxImages of zero or less uses DefaultMaxImages.
func NewMigrator(downloader Downloader, objects storage.ObjectStore, maxImages int, logger *utils.Logger) *Migrator {
	if maxImages <= 0 {
		maxImages = DefaultMaxImages
	}
	return &Migrator{
		downloader: downloader,
		objects:    objects,
		maxImages:  maxImages,
		logger:     logger,
		now:        time.Now,
		newToken:   func() string { return uuid.NewString()[:8] },
	}
}

// Migrate re-hosts up to maxImages of urls under propertyID. URLs already in owned
// storage, or recorded in known from a previous run, are reused without a download.
// A failing image is logged and skipped; it never fails the whole property.
func (m *Migrator) Migrate(ctx context.Context, propertyID string, urls []string, known map[string]string) MigrationResult {
	res := MigrationResult{Sources: make(map[string]string)}
	if len(urls) > m.maxImages {
		m.logger.Debug("[images] %s: capping %d images to %d", propertyID, len(urls), m.maxImages)
		urls = urls[:m.maxImages]
	}

	for _, src := range urls {
		if m.objects.Owns(src) {
			res.Images = append(res.Images, src)
			res.Reused++
			continue
		}
		if canonical, ok := known[src]; ok && canonical != "" {
			res.Images = append(res.Images, canonical)
			res.Sources[src] = canonical
			res.Reused++
			continue
		}

		canonical, err := m.migrateOne(ctx, propertyID, src)
		if err != nil {
			m.logger.Warn("[images] Skipping %s: %v", src, err)
			imagesTotal.WithLabelValues("failed").Inc()
			res.Failed++
			continue
		}
		imagesTotal.WithLabelValues("migrated").Inc()
		res.Images = append(res.Images, canonical)
		res.Sources[src] = canonical
		res.Migrated++
	}
	return res
}

func (m *Migrator) migrateOne(ctx context.Context, propertyID, src string) (string, error) {
	asset, err := m.downloader.Download(ctx, src)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	contentType, err := validateAsset(asset)
	if err != nil {
		return "", err
	}

	path := m.objectPath(propertyID, src)
	if err := m.objects.Upload(ctx, path, asset.Data, contentType); err != nil {
		return "", &UploadError{Path: path, Err: err}
	}
	return m.objects.PublicURL(path), nil
}

// objectPath builds "{propertyID}/{unixMillis}_{token}{ext}".
func (m *Migrator) objectPath(propertyID, src string) string {
	ext := imageExtension(src)
	if _, ok := photoExtensions[ext]; !ok {
		ext = ".jpg"
	}
	return fmt.Sprintf("%s/%d_%s%s", propertyID, m.now().UnixMilli(), m.newToken(), ext)
}

func validateAsset(asset *models.ImageAsset) (string, error) {
	if asset == nil || len(asset.Data) == 0 {
		return "", fmt.Errorf("empty image body")
	}
	contentType := strings.TrimSpace(strings.SplitN(asset.ContentType, ";", 2)[0])
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(asset.Data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("not an image: %s", contentType)
	}
	return contentType, nil
}

// MigrateExisting walks stored properties and re-hosts any image still pointing
// outside owned storage. An image that fails keeps its external URL so a later run
// can retry it.
func (m *Migrator) MigrateExisting(ctx context.Context, store storage.PropertyStore) (*models.RunSummary, error) {
	summary := &models.RunSummary{StartedAt: time.Now()}
	defer func() { summary.FinishedAt = time.Now() }()

	props, err := store.GetAll(ctx, storage.Filter{})
	if err != nil {
		summary.Fatal = err.Error()
		return summary, err
	}

	for _, p := range props {
		if err := ctx.Err(); err != nil {
			summary.Cancelled = true
			return summary, err
		}

		var external []string
		for _, img := range p.Images {
			if !m.objects.Owns(img) {
				external = append(external, img)
			}
		}
		if len(external) == 0 {
			continue
		}
		summary.Processed++

		// The property is finished even if ctx is cancelled meanwhile.
		work := context.WithoutCancel(ctx)
		res := m.Migrate(work, p.ID, external, p.ImageSources)
		summary.ImagesMigrated += res.Migrated
		summary.ImagesReused += res.Reused
		summary.ImagesFailed += res.Failed
		if res.Migrated == 0 && res.Reused == 0 {
			summary.Skipped++
			continue
		}

		images := make([]string, 0, len(p.Images))
		for _, img := range p.Images {
			if canonical, ok := res.Sources[img]; ok {
				images = append(images, canonical)
			} else {
				images = append(images, img)
			}
		}
		sources := MergeSources(p.ImageSources, res.Sources)
		if err := store.UpdateImages(work, p.ID, images, sources); err != nil {
			m.logger.Error("[images] Could not save migrated images for %s: %v", p.ID, err)
			summary.Skipped++
			continue
		}
		summary.Updated++
	}
	return summary, nil
}

// MergeSources returns a new map holding existing overlaid with added.
func MergeSources(existing, added map[string]string) map[string]string {
	out := make(map[string]string, len(existing)+len(added))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range added {
		out[k] = v
	}
	return out
}
