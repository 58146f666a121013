package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// SourceProfile describes one broker site: where its index lives and how its
// detail pages are laid out. Empty selector lists fall back to the built-in chains.
type SourceProfile struct {
	Name          string    `yaml:"name"`
	BaseURL       string    `yaml:"base_url"`
	IndexTemplate string    `yaml:"index_template"`
	DetailSegment string    `yaml:"detail_segment"`
	IndexSegment  string    `yaml:"index_segment"`
	UserAgent     string    `yaml:"user_agent"`
	Selectors     Selectors `yaml:"selectors"`
}

// Selectors lists the CSS selectors tried, in order, for each field.
type Selectors struct {
	Title           []string `yaml:"title"`
	Price           []string `yaml:"price"`
	Description     []string `yaml:"description"`
	ImageAttributes []string `yaml:"image_attributes"`
}

// LoadProfile reads a YAML source profile.
func LoadProfile(path string) (SourceProfile, error) {
	var p SourceProfile
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("config: read profile %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("config: parse profile %q: %w", path, err)
	}
	return p, nil
}

// Merge returns p with every non-empty field of override applied.
func (p SourceProfile) Merge(override SourceProfile) SourceProfile {
	if override.Name != "" {
		p.Name = override.Name
	}
	if override.BaseURL != "" {
		p.BaseURL = override.BaseURL
	}
	if override.IndexTemplate != "" {
		p.IndexTemplate = override.IndexTemplate
	}
	if override.DetailSegment != "" {
		p.DetailSegment = override.DetailSegment
	}
	if override.IndexSegment != "" {
		p.IndexSegment = override.IndexSegment
	}
	if override.UserAgent != "" {
		p.UserAgent = override.UserAgent
	}
	if len(override.Selectors.Title) > 0 {
		p.Selectors.Title = override.Selectors.Title
	}
	if len(override.Selectors.Price) > 0 {
		p.Selectors.Price = override.Selectors.Price
	}
	if len(override.Selectors.Description) > 0 {
		p.Selectors.Description = override.Selectors.Description
	}
	if len(override.Selectors.ImageAttributes) > 0 {
		p.Selectors.ImageAttributes = override.Selectors.ImageAttributes
	}
	return p
}
