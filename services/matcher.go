package services

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"imoveis-importer/models"
)

const (
	// DefaultMatchThreshold is used when reconciling scraped listings with stored ones.
	DefaultMatchThreshold = 0.5
	// ExploratoryMatchThreshold is used for looser, read-only lookups.
	ExploratoryMatchThreshold = 0.4

	minTokenLength = 3
)

// NormaliseTitle lowercases, strips diacritics and punctuation, and collapses whitespace.
func NormaliseTitle(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, title)
	if err != nil {
		stripped = title
	}
	stripped = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, stripped)
	return strings.Join(strings.Fields(stripped), " ")
}

// TitleTokens returns the set of normalized tokens longer than two characters.
func TitleTokens(title string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(NormaliseTitle(title)) {
		if utf8.RuneCountInString(tok) >= minTokenLength {
			set[tok] = struct{}{}
		}
	}
	return set
}

// Jaccard returns |a ∩ b| / |a ∪ b|, or 0 when both sets are empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// TitleSimilarity is the Jaccard similarity of two titles' token sets.
func TitleSimilarity(a, b string) float64 {
	return Jaccard(TitleTokens(a), TitleTokens(b))
}

// FindBestMatch scans candidates for the highest-scoring title. The first candidate
// seen at the maximum wins. The match is returned only if its score strictly exceeds
// threshold; the best score is reported either way.
func FindBestMatch(title string, candidates []models.Candidate, threshold float64) models.MatchResult {
	scraped := TitleTokens(title)
	best := -1
	bestScore := 0.0
	for i, c := range candidates {
		score := Jaccard(scraped, TitleTokens(c.Title))
		if best < 0 || score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return models.MatchResult{}
	}
	if bestScore <= threshold {
		return models.MatchResult{Score: bestScore}
	}
	c := candidates[best]
	return models.MatchResult{Candidate: &c, Score: bestScore}
}

// CandidateSet is the run-local list of stored properties still eligible for matching.
// A candidate is removed once matched so the same record is never claimed twice.
type CandidateSet struct {
	items []models.Candidate
}

// NewCandidateSet builds a set from stored properties, keeping their order.
func NewCandidateSet(props []*models.StoredProperty) *CandidateSet {
	items := make([]models.Candidate, 0, len(props))
	for _, p := range props {
		items = append(items, models.Candidate{ID: p.ID, Title: p.Title})
	}
	return &CandidateSet{items: items}
}

// Match finds the best candidate above threshold and, if found, removes it from the set.
func (s *CandidateSet) Match(title string, threshold float64) models.MatchResult {
	res := FindBestMatch(title, s.items, threshold)
	if res.Matched() {
		s.Remove(res.Candidate.ID)
	}
	return res
}

// Remove drops the candidate with the given id, preserving the order of the rest.
func (s *CandidateSet) Remove(id string) {
	for i, c := range s.items {
		if c.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return
		}
	}
}

// Len returns the number of remaining candidates.
func (s *CandidateSet) Len() int {
	return len(s.items)
}
