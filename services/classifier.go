package services

import (
	"net/url"
	"path"
	"strings"
)

var photoExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
}

// blockedTokens mark navigation chrome, social widgets, tracking pixels and placeholders.
var blockedTokens = []string{
	"google", "ssl", "logo", "icon", "facebook", "instagram", "twitter", "youtube",
	"tiktok", "whatsapp", "semfoto", "vazio", "pixel", "thumb", "banner", "ads",
}

// lowResSegments are path segments of downscaled variants of a listing photo.
var lowResSegments = []string{"/mini/"}

// IsLikelyListingPhoto decides from the URL alone whether it references a genuine
// listing photo: it must end in an image extension and carry no blocklisted token.
func IsLikelyListingPhoto(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	if _, ok := photoExtensions[imageExtension(rawURL)]; !ok {
		return false
	}
	lower := strings.ToLower(rawURL)
	for _, token := range blockedTokens {
		if strings.Contains(lower, token) {
			return false
		}
	}
	return true
}

// IsLowResolution reports whether the URL points at a downscaled variant.
func IsLowResolution(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, seg := range lowResSegments {
		if strings.Contains(lower, seg) {
			return true
		}
	}
	return false
}

// SelectListingPhotos filters candidates down to likely listing photos, keeping
// first-seen order and dropping exact duplicates. Low-resolution variants are only
// returned when no full-size photo survived the filter.
func SelectListingPhotos(candidates []string) []string {
	seen := make(map[string]struct{}, len(candidates))
	var full, low []string
	for _, u := range candidates {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		if !IsLikelyListingPhoto(u) {
			continue
		}
		if IsLowResolution(u) {
			low = append(low, u)
		} else {
			full = append(full, u)
		}
	}
	if len(full) > 0 {
		return full
	}
	return low
}

// imageExtension returns the lowercased extension of the URL path, ignoring query and fragment.
func imageExtension(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return strings.ToLower(path.Ext(p))
}
