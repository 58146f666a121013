package scraper

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imoveis-importer/config"
)

const sorrisoPage = `<!DOCTYPE html>
<html>
<head><title>Imobiliária Cerrado</title></head>
<body>
  <header><img src="/img/logo.png" alt="Imobiliária Cerrado"></header>
  <h1>Fazenda em Sorriso - MT</h1>
  <div class="preco">R$ 2.500.000,00</div>
  <p>Fazenda com 484 hectares, sede, silos e pivô central.</p>
  <div class="galeria">
    <img src="/placeholder.gif" data-src="/fotos/fazenda-1.jpg">
    <img src="https://broker.example.com/fotos/fazenda-2.jpg?w=1200">
    <img src="/fotos/mini/fazenda-1.jpg">
    <img src="/fotos/fazenda-1.jpg">
    <img src="https://www.facebook.com/tr.jpg">
  </div>
</body>
</html>`

func TestExtractSorrisoListing(t *testing.T) {
	e := NewExtractor(config.SourceProfile{})
	l, err := e.ExtractHTML(sorrisoPage, "https://broker.example.com/imovel/fazenda-sorriso")
	require.NoError(t, err)

	assert.Equal(t, "Fazenda em Sorriso - MT", l.Title)
	assert.Equal(t, int64(250000000), l.PriceCents)
	assert.Equal(t, "Sorriso", l.City)
	assert.Equal(t, "MT", l.State)
	assert.Equal(t, "Fazenda com 484 hectares, sede, silos e pivô central.", l.Description)
	assert.Equal(t, 4840000.0, l.AreaSquareMeters)
	assert.Equal(t, []string{
		"https://broker.example.com/fotos/fazenda-1.jpg",
		"https://broker.example.com/fotos/fazenda-2.jpg?w=1200",
	}, l.RawImageURLs)
	assert.Equal(t, "https://broker.example.com/imovel/fazenda-sorriso", l.SourceURL)
	assert.False(t, l.ScrapedAt.IsZero())
}

func TestExtractFallsBackToDefaults(t *testing.T) {
	e := NewExtractor(config.SourceProfile{})
	l, err := e.ExtractHTML(`<html><body><div>Consulte-nos</div></body></html>`, "https://broker.example.com/imovel/1")
	require.NoError(t, err)

	assert.Equal(t, "Sem Título", l.Title)
	assert.Zero(t, l.PriceCents)
	assert.Equal(t, "Importado", l.City)
	assert.Equal(t, "BR", l.State)
	assert.Empty(t, l.Description)
	assert.Zero(t, l.AreaSquareMeters)
	assert.Empty(t, l.RawImageURLs)
}

func TestExtractTitleChain(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{"heading", `<html><head><title>Site</title></head><body><h1> Casa  em Campinas - SP </h1></body></html>`, "Casa em Campinas - SP"},
		{"og:title", `<html><head><meta property="og:title" content="Chácara em Atibaia - SP"><title>Site</title></head><body><p>x</p></body></html>`, "Chácara em Atibaia - SP"},
		{"document title", `<html><head><title>Sítio Bela Vista</title></head><body><p>x</p></body></html>`, "Sítio Bela Vista"},
		{"empty heading skipped", `<html><head><title>Terreno</title></head><body><h1> </h1></body></html>`, "Terreno"},
	}

	e := NewExtractor(config.SourceProfile{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := e.ExtractHTML(tt.html, "https://broker.example.com/imovel/1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, l.Title)
		})
	}
}

func TestExtractProfileSelectors(t *testing.T) {
	e := NewExtractor(config.SourceProfile{Selectors: config.Selectors{
		Title:           []string{".titulo-imovel"},
		Price:           []string{"#valor-venda"},
		ImageAttributes: []string{"data-hd"},
	}})
	html := `<html><body>
		<h1>Imobiliária</h1>
		<span class="titulo-imovel">Casa em Ribeirão Preto - SP</span>
		<span id="valor-venda">450.000</span>
		<img src="/x/small.jpg" data-hd="/x/grande.jpg">
	</body></html>`

	l, err := e.ExtractHTML(html, "https://broker.example.com/imovel/9")
	require.NoError(t, err)
	assert.Equal(t, "Casa em Ribeirão Preto - SP", l.Title)
	assert.Equal(t, int64(45000000), l.PriceCents)
	assert.Equal(t, "Ribeirão Preto", l.City)
	assert.Equal(t, []string{"https://broker.example.com/x/grande.jpg"}, l.RawImageURLs)
}

func TestExtractPriceFromPageText(t *testing.T) {
	e := NewExtractor(config.SourceProfile{})
	l, err := e.ExtractHTML(`<html><body><h1>Terreno</h1><span>Valor: R$ 180.000</span></body></html>`, "https://b.example.com/imovel/2")
	require.NoError(t, err)
	assert.Equal(t, int64(18000000), l.PriceCents)
}

func TestExtractSorrisoPriceOnlyInBodyText(t *testing.T) {
	html := `<html><body>
		<h1>Fazenda em Sorriso - MT</h1>
		<p>Fazenda com 200 hectares, lavoura formada.</p>
		<div>Valor:&nbsp;R$&nbsp;2.500.000,00</div>
	</body></html>`

	e := NewExtractor(config.SourceProfile{})
	l, err := e.ExtractHTML(html, "https://broker.example.com/imovel/fazenda-200ha")
	require.NoError(t, err)
	assert.Equal(t, "Sorriso", l.City)
	assert.Equal(t, "MT", l.State)
	assert.Equal(t, int64(250000000), l.PriceCents)
	assert.Equal(t, 2000000.0, l.AreaSquareMeters)
}

func TestExtractKeepsOnlyListingPhotos(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body><h1>Casa em Campinas - SP</h1>")
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(&b, `<img src="/img/logo/marca-%d.jpg">`, i)
	}
	for i := 1; i <= 3; i++ {
		fmt.Fprintf(&b, `<img src="/fotos/casa-%d.png">`, i)
	}
	for i := 1; i <= 4; i++ {
		fmt.Fprintf(&b, `<img src="/img/enfeite-%d.gif">`, i)
	}
	for _, token := range []string{"facebook", "whatsapp", "icon", "banner"} {
		fmt.Fprintf(&b, `<img src="/img/%s.jpg">`, token)
	}
	for i := 1; i <= 4; i++ {
		fmt.Fprintf(&b, `<img src="/imagem?id=%d">`, i)
	}
	b.WriteString("</body></html>")
	require.Equal(t, 20, strings.Count(b.String(), "<img"))

	e := NewExtractor(config.SourceProfile{})
	l, err := e.ExtractHTML(b.String(), "https://broker.example.com/imovel/casa-campinas")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://broker.example.com/fotos/casa-1.png",
		"https://broker.example.com/fotos/casa-2.png",
		"https://broker.example.com/fotos/casa-3.png",
	}, l.RawImageURLs)
}

func TestExtractDescriptionTruncated(t *testing.T) {
	long := strings.Repeat("á", 400)
	e := NewExtractor(config.SourceProfile{})
	l, err := e.ExtractHTML(fmt.Sprintf(`<html><body><h1>Casa</h1><p></p><p>%s</p></body></html>`, long), "https://b.example.com/imovel/3")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("á", 300), l.Description)
}

func TestExtractLowResolutionFallback(t *testing.T) {
	e := NewExtractor(config.SourceProfile{})
	html := `<html><body><h1>Casa</h1><img src="/fotos/mini/a.jpg"><img src="/fotos/mini/b.jpg"></body></html>`
	l, err := e.ExtractHTML(html, "https://b.example.com/imovel/4")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://b.example.com/fotos/mini/a.jpg", "https://b.example.com/fotos/mini/b.jpg"}, l.RawImageURLs)
}

func TestExtractEmptyDocument(t *testing.T) {
	e := NewExtractor(config.SourceProfile{})
	for _, html := range []string{"", "   ", "<html><body></body></html>"} {
		_, err := e.ExtractHTML(html, "https://b.example.com/imovel/5")
		var extErr *ExtractionError
		require.ErrorAs(t, err, &extErr, "html %q", html)
		assert.Equal(t, "title", extErr.Field)
	}
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		title     string
		wantCity  string
		wantState string
		wantOK    bool
	}{
		{"Fazenda em Sorriso - MT", "Sorriso", "MT", true},
		{"Casa à venda em São José do Rio Preto - SP", "São José do Rio Preto", "SP", true},
		{"Fazenda em produção em Lucas do Rio Verde - MT", "Lucas do Rio Verde", "MT", true},
		{"Sítio 5 alqueires em Ibiúna/SP", "Ibiúna", "SP", true},
		{"Chácara Em Embu-Guaçu - SP", "Embu-Guaçu", "SP", true},
		{"Casa em Sorriso - de esquina", "", "", false},
		{"Apartamento 3 quartos", "", "", false},
		{"Casa em Campinas", "", "", false},
	}

	for _, tt := range tests {
		loc, ok := parseLocation(tt.title)
		if ok != tt.wantOK || loc.City != tt.wantCity || loc.State != tt.wantState {
			t.Errorf("parseLocation(%q) = %+v, %v; want {%s %s}, %v",
				tt.title, loc, ok, tt.wantCity, tt.wantState, tt.wantOK)
		}
	}
}

func TestExtractLinks(t *testing.T) {
	resp := &Response{
		URL: "https://broker.example.com/imoveis/1",
		Body: []byte(`<html><body>
			<a href="/imovel/fazenda-sorriso">Fazenda</a>
			<a href="/imovel/fazenda-sorriso#fotos">Fotos</a>
			<a href="https://broker.example.com/imovel/casa-centro">Casa</a>
			<a href="/imoveis/2">Próxima</a>
			<a href="/contato">Contato</a>
			<a href="https://outro.example.com/imovel/x">Parceiro</a>
			<a href="mailto:vendas@broker.example.com">Email</a>
		</body></html>`),
		ContentType: "text/html",
	}

	links := ExtractLinks(resp, "/imovel/", "/imoveis/")
	assert.Equal(t, []string{
		"https://broker.example.com/imovel/fazenda-sorriso",
		"https://broker.example.com/imovel/casa-centro",
	}, links)
}
