package services

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"imoveis-importer/models"
	"imoveis-importer/utils"
)

func sampleProperties() []*models.StoredProperty {
	return []*models.StoredProperty{
		{ID: "1", Title: "Fazenda em Sorriso - MT", PriceCents: 250000000, State: "MT", Images: []string{"https://cdn.test/1/a.jpg"}},
		{ID: "2", Title: "Casa em Campinas - SP", PriceCents: 45000000, State: "SP", Images: []string{"https://broker.example.com/x.jpg"}},
		{ID: "3", Title: "Sítio em Ibiúna - SP", PriceCents: 0, State: "SP"},
		{ID: "4", Title: "Chácara em Atibaia - SP", PriceCents: 70000000, State: "SP"},
	}
}

func ownedByCDN(url string) bool { return strings.HasPrefix(url, "https://cdn.test/") }

func TestReportCounts(t *testing.T) {
	svc := NewReportService(utils.NewNopLogger(), ownedByCDN)
	r := svc.Generate(sampleProperties())
	if r.TotalProperties != 4 {
		t.Errorf("TotalProperties: got %d, want 4", r.TotalProperties)
	}
	if r.WithImages != 2 {
		t.Errorf("WithImages: got %d, want 2", r.WithImages)
	}
	if r.ExternalImages != 1 {
		t.Errorf("ExternalImages: got %d, want 1", r.ExternalImages)
	}
	if r.PropertiesByState["SP"] != 3 || r.PropertiesByState["MT"] != 1 {
		t.Errorf("PropertiesByState: got %v", r.PropertiesByState)
	}
}

func TestReportPrices(t *testing.T) {
	svc := NewReportService(utils.NewNopLogger(), ownedByCDN)
	r := svc.Generate(sampleProperties())
	if r.AveragePriceCents != 121666666 {
		t.Errorf("AveragePriceCents: got %d, want 121666666", r.AveragePriceCents)
	}
	if r.MinPriceCents != 45000000 {
		t.Errorf("MinPriceCents: got %d, want 45000000", r.MinPriceCents)
	}
	if r.MaxPriceCents != 250000000 {
		t.Errorf("MaxPriceCents: got %d, want 250000000", r.MaxPriceCents)
	}
	if r.MostExpensive == nil || r.MostExpensive.ID != "1" {
		t.Errorf("MostExpensive: got %+v, want property 1", r.MostExpensive)
	}
}

func TestReportEmpty(t *testing.T) {
	svc := NewReportService(utils.NewNopLogger(), nil)
	r := svc.Generate(nil)
	if r.TotalProperties != 0 || r.MostExpensive != nil {
		t.Errorf("empty report: got %+v", r)
	}
}

func TestFormatBRL(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "R$ 0,00"},
		{99, "R$ 0,99"},
		{45000000, "R$ 450.000,00"},
		{250000050, "R$ 2.500.000,50"},
		{-1234, "-R$ 12,34"},
	}
	for _, tt := range tests {
		if got := FormatBRL(tt.cents); got != tt.want {
			t.Errorf("FormatBRL(%d) = %q; want %q", tt.cents, got, tt.want)
		}
	}
}

func TestPrintSummary(t *testing.T) {
	svc := NewReportService(utils.NewNopLogger(), ownedByCDN)
	start := time.Now()
	run := &models.RunSummary{
		StartedAt: start, FinishedAt: start.Add(90 * time.Second),
		PagesVisited: 3, ListingsFound: 12, Processed: 12, Created: 4, Updated: 7, Skipped: 1,
		ImagesMigrated: 30, ImagesReused: 10, ImagesFailed: 2,
		Fatal: "index page 4: HTTP 500",
	}

	var buf bytes.Buffer
	svc.Print(&buf, run, svc.Generate(sampleProperties()))
	out := buf.String()

	for _, want := range []string{
		"IMPORT SUMMARY", "Pages visited", "1m30s", "Processed           : \033[1m12", "Succeeded           : \033[1;32m11", "Images migrated     : 30 (reused 10, failed 2)",
		"Aborted: index page 4: HTTP 500", "R$ 2.500.000,00", "Fazenda em Sorriso - MT",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}
