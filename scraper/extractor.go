package scraper

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"imoveis-importer/config"
	"imoveis-importer/models"
	"imoveis-importer/services"
)

const (
	defaultTitle        = "Sem Título"
	defaultCity         = "Importado"
	defaultState        = "BR"
	maxDescriptionRunes = 300
)

var (
	defaultTitleSelectors       = []string{"h1"}
	defaultPriceSelectors       = []string{"[itemprop=price]", ".preco", ".valor", ".price", "[class*=preco]", "[class*=valor]", "[class*=price]"}
	defaultDescriptionSelectors = []string{"[itemprop=description]", "#descricao", ".descricao", ".description", "[class*=descricao]"}
	defaultAddressSelectors     = []string{"[itemprop=address]", ".endereco", ".localizacao", "[class*=endereco]"}
	// Lazy-loading galleries keep the full-size photo in one of these; src often holds a placeholder.
	defaultImageAttributes = []string{"data-original", "data-full", "data-zoom-image", "data-src", "data-lazy"}

	// locationRegexp matches "... em Sorriso - MT".
	locationRegexp = regexp.MustCompile(`\b(?i:em)\s+(\p{L}[\p{L}\s.'-]*?)\s*[-–/]\s*(\p{Lu}{2})\b`)
	// addressTailRegexp matches the "Campinas - SP" or "Campinas/SP" tail of an address line.
	addressTailRegexp = regexp.MustCompile(`^(\p{L}[\p{L}\s.'-]*?)\s*[-–/]\s*(\p{Lu}{2})$`)
)

// strategy is one way of reading a field; ok=false passes to the next one.
type strategy[T any] func(doc *goquery.Document) (T, bool)

func firstOf[T any](doc *goquery.Document, fallback T, chain ...strategy[T]) T {
	for _, s := range chain {
		if v, ok := s(doc); ok {
			return v
		}
	}
	return fallback
}

// Extractor turns a detail page into a ScrapedListing. Each field is read by an
// ordered chain of strategies ending in a safe default, so a site redesign
// degrades the record instead of failing it.
type Extractor struct {
	titleSelectors       []string
	priceSelectors       []string
	descriptionSelectors []string
	imageAttributes      []string
	now                  func() time.Time
}

// NewExtractor builds an Extractor, using profile selectors ahead of the built-in ones.
func NewExtractor(profile config.SourceProfile) *Extractor {
	return &Extractor{
		titleSelectors:       orDefault(profile.Selectors.Title, defaultTitleSelectors),
		priceSelectors:       append(append([]string{}, profile.Selectors.Price...), defaultPriceSelectors...),
		descriptionSelectors: append(append([]string{}, profile.Selectors.Description...), defaultDescriptionSelectors...),
		imageAttributes:      orDefault(profile.Selectors.ImageAttributes, defaultImageAttributes),
		now:                  time.Now,
	}
}

func orDefault(v, def []string) []string {
	if len(v) > 0 {
		return v
	}
	return def
}

// Extract parses a fetched detail page.
func (e *Extractor) Extract(resp *Response) (*models.ScrapedListing, error) {
	return e.ExtractHTML(resp.Text(), resp.URL)
}

// ExtractHTML parses html fetched from pageURL. It only fails with *ExtractionError
// when the document has no content to read a title from.
func (e *Extractor) ExtractHTML(html, pageURL string) (*models.ScrapedListing, error) {
	if strings.TrimSpace(html) == "" {
		return nil, &ExtractionError{Field: "title", URL: pageURL}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &ExtractionError{Field: "title", URL: pageURL}
	}
	if services.NormaliseText(doc.Text()) == "" && doc.Find("img, meta[property]").Length() == 0 {
		return nil, &ExtractionError{Field: "title", URL: pageURL}
	}

	listing := &models.ScrapedListing{
		SourceURL: pageURL,
		ScrapedAt: e.now(),
	}
	listing.Title = firstOf(doc, defaultTitle,
		selectorText(e.titleSelectors),
		metaContent(`meta[property="og:title"]`),
		selectorText([]string{"title"}),
	)
	listing.PriceCents = firstOf(doc, int64(0),
		e.priceFromElements,
		priceFromPageText,
	)

	loc := firstOf(doc, location{City: defaultCity, State: defaultState},
		locationFrom(listing.Title),
		locationFromElements,
	)
	listing.City, listing.State = loc.City, loc.State

	listing.Description = services.Truncate(firstOf(doc, "",
		selectorText(e.descriptionSelectors),
		firstParagraph,
		metaContent(`meta[property="og:description"]`),
		metaContent(`meta[name="description"]`),
	), maxDescriptionRunes)

	listing.AreaSquareMeters = firstOf(doc, 0.0,
		areaFrom(listing.Title),
		areaFromPageText,
	)

	listing.RawImageURLs = services.SelectListingPhotos(e.imageCandidates(doc, pageURL))
	return listing, nil
}

func selectorText(selectors []string) strategy[string] {
	return func(doc *goquery.Document) (string, bool) {
		for _, sel := range selectors {
			var found string
			doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
				found = services.NormaliseText(s.Text())
				return found == ""
			})
			if found != "" {
				return found, true
			}
		}
		return "", false
	}
}

func metaContent(selector string) strategy[string] {
	return func(doc *goquery.Document) (string, bool) {
		v := services.NormaliseText(doc.Find(selector).First().AttrOr("content", ""))
		return v, v != ""
	}
}

func firstParagraph(doc *goquery.Document) (string, bool) {
	return selectorText([]string{"p"})(doc)
}

func (e *Extractor) priceFromElements(doc *goquery.Document) (int64, bool) {
	for _, sel := range e.priceSelectors {
		var cents int64
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			raw := s.AttrOr("content", "")
			if raw == "" {
				raw = s.Text()
			}
			if v, ok := services.ParsePriceCents(raw); ok {
				cents = v
				return false
			}
			return true
		})
		if cents > 0 {
			return cents, true
		}
	}
	return 0, false
}

func priceFromPageText(doc *goquery.Document) (int64, bool) {
	return services.FindPriceCents(services.NormaliseText(doc.Find("body").Text()))
}

type location struct {
	City  string
	State string
}

func parseLocation(text string) (location, bool) {
	m := locationRegexp.FindStringSubmatch(text)
	if m == nil {
		return location{}, false
	}
	city := m[1]
	// "Fazenda em produção em Sorriso - MT": the city follows the last "em".
	if i := strings.LastIndex(strings.ToLower(city), " em "); i >= 0 {
		city = city[i+len(" em "):]
	}
	city = services.NormaliseText(city)
	if city == "" {
		return location{}, false
	}
	return location{City: city, State: m[2]}, true
}

func locationFrom(title string) strategy[location] {
	return func(*goquery.Document) (location, bool) {
		return parseLocation(title)
	}
}

func locationFromElements(doc *goquery.Document) (location, bool) {
	for _, sel := range defaultAddressSelectors {
		text := services.NormaliseText(doc.Find(sel).First().Text())
		if i := strings.LastIndex(text, ","); i >= 0 {
			text = strings.TrimSpace(text[i+1:])
		}
		if m := addressTailRegexp.FindStringSubmatch(text); m != nil {
			return location{City: services.NormaliseText(m[1]), State: m[2]}, true
		}
	}
	return location{}, false
}

func areaFrom(text string) strategy[float64] {
	return func(*goquery.Document) (float64, bool) {
		return services.FindAreaSquareMeters(text)
	}
}

func areaFromPageText(doc *goquery.Document) (float64, bool) {
	return services.FindAreaSquareMeters(services.NormaliseText(doc.Find("body").Text()))
}

// imageCandidates lists every image-looking URL on the page in document order,
// resolved to absolute form. Classification happens afterwards.
func (e *Extractor) imageCandidates(doc *goquery.Document, pageURL string) []string {
	base, _ := url.Parse(pageURL)
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok && base != nil {
		if b, err := base.Parse(href); err == nil {
			base = b
		}
	}

	var out []string
	doc.Find("img, a[href]").Each(func(_ int, s *goquery.Selection) {
		var raw string
		if goquery.NodeName(s) == "a" {
			raw = s.AttrOr("href", "")
			if !services.IsLikelyListingPhoto(raw) {
				return
			}
		} else {
			raw = e.rawImageAttr(s)
		}
		if abs := resolveURL(base, raw); abs != "" {
			out = append(out, abs)
		}
	})
	return out
}

func (e *Extractor) rawImageAttr(s *goquery.Selection) string {
	for _, attr := range e.imageAttributes {
		if v := strings.TrimSpace(s.AttrOr(attr, "")); v != "" && !strings.HasPrefix(v, "data:") {
			return v
		}
	}
	return strings.TrimSpace(s.AttrOr("src", ""))
}

func resolveURL(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "data:") || strings.HasPrefix(raw, "javascript:") {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if base == nil {
		if ref.IsAbs() {
			return ref.String()
		}
		return ""
	}
	return base.ResolveReference(ref).String()
}
