package models

import "time"

// ScrapedListing is the typed candidate record produced from one detail page.
// It is consumed by matching and image migration and never persisted itself.
type ScrapedListing struct {
	Title            string
	PriceCents       int64 // 0 means price on request
	City             string
	State            string
	Description      string
	AreaSquareMeters float64
	RawImageURLs     []string
	SourceURL        string
	ScrapedAt        time.Time
}

// Features is the structured bag stored alongside a property.
// Zero values are omitted on write so an upsert never clobbers curated counts.
type Features struct {
	AreaSquareMeters float64 `json:"area_m2,omitempty"`
	Bedrooms         int     `json:"bedrooms,omitempty"`
	Bathrooms        int     `json:"bathrooms,omitempty"`
	Garages          int     `json:"garages,omitempty"`
}

// StoredProperty is the durable property record.
type StoredProperty struct {
	ID          string
	Title       string
	PriceCents  int64
	City        string
	State       string
	Description string
	Features    Features
	Images      []string
	// ImageSources maps an original image URL to the canonical storage URL it was migrated to.
	ImageSources map[string]string
	Highlighted  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Candidate is the projection of a stored property the matcher works on.
type Candidate struct {
	ID    string
	Title string
}

// MatchResult references at most one candidate plus its similarity score in [0,1].
type MatchResult struct {
	Candidate *Candidate
	Score     float64
}

// Matched reports whether a candidate was accepted.
func (m MatchResult) Matched() bool {
	return m.Candidate != nil
}

// ImageAsset is a downloaded image payload awaiting upload.
type ImageAsset struct {
	SourceURL   string
	Data        []byte
	ContentType string
}
