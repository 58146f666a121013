package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"imoveis-importer/models"
	"imoveis-importer/utils"
)

type ReportService struct {
	logger *utils.Logger
	// owned reports whether an image URL is already in owned storage.
	owned func(url string) bool
}

func NewReportService(logger *utils.Logger, owned func(url string) bool) *ReportService {
	if owned == nil {
		owned = func(string) bool { return true }
	}
	return &ReportService{logger: logger, owned: owned}
}

func (s *ReportService) Generate(props []*models.StoredProperty) *models.InventoryReport {
	report := &models.InventoryReport{
		PropertiesByState: make(map[string]int),
	}
	if len(props) == 0 {
		return report
	}
	report.TotalProperties = len(props)

	var priced int64
	var total int64
	for _, p := range props {
		if len(p.Images) > 0 {
			report.WithImages++
		}
		for _, img := range p.Images {
			if !s.owned(img) {
				report.ExternalImages++
			}
		}
		if p.State != "" {
			report.PropertiesByState[p.State]++
		}
		if p.PriceCents <= 0 {
			continue
		}
		priced++
		total += p.PriceCents
		if report.MinPriceCents == 0 || p.PriceCents < report.MinPriceCents {
			report.MinPriceCents = p.PriceCents
		}
		if p.PriceCents > report.MaxPriceCents {
			report.MaxPriceCents = p.PriceCents
			report.MostExpensive = p
		}
	}
	if priced > 0 {
		report.AveragePriceCents = total / priced
	}
	return report
}

// Print writes the run counters followed by the inventory report. r may be nil.
func (s *ReportService) Print(w io.Writer, run *models.RunSummary, r *models.InventoryReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  📊 IMPORT SUMMARY\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Run\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Duration            : %s\n", run.Duration().Round(1e9))
	fmt.Fprintf(w, "  Pages visited       : \033[1m%d\033[0m\n", run.PagesVisited)
	fmt.Fprintf(w, "  Listings found      : \033[1m%d\033[0m\n", run.ListingsFound)
	fmt.Fprintf(w, "  Processed           : \033[1m%d\033[0m\n", run.Processed)
	fmt.Fprintf(w, "  Succeeded           : \033[1;32m%d\033[0m\n", run.Succeeded())
	fmt.Fprintf(w, "  Created / updated   : \033[1;32m%d\033[0m / \033[1;32m%d\033[0m\n", run.Created, run.Updated)
	fmt.Fprintf(w, "  Matched by title    : %d\n", run.Matched)
	fmt.Fprintf(w, "  Skipped             : \033[1;31m%d\033[0m\n", run.Skipped)
	fmt.Fprintf(w, "  Images migrated     : %d (reused %d, failed %d)\n",
		run.ImagesMigrated, run.ImagesReused, run.ImagesFailed)
	switch {
	case run.Fatal != "":
		fmt.Fprintf(w, "  \033[1;31mAborted: %s\033[0m\n", run.Fatal)
	case run.Cancelled:
		fmt.Fprintf(w, "  \033[1;31mCancelled before the last page\033[0m\n")
	}
	fmt.Fprintln(w)

	if r == nil {
		fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)
		return
	}

	fmt.Fprintf(w, "\033[1;33m  Inventory\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Stored properties   : \033[1m%d\033[0m\n", r.TotalProperties)
	fmt.Fprintf(w, "  With photos         : %d\n", r.WithImages)
	fmt.Fprintf(w, "  External photo URLs : %d\n", r.ExternalImages)
	if r.AveragePriceCents > 0 {
		fmt.Fprintf(w, "  Average price       : \033[1;32m%s\033[0m\n", FormatBRL(r.AveragePriceCents))
		fmt.Fprintf(w, "  Minimum price       : \033[1;32m%s\033[0m\n", FormatBRL(r.MinPriceCents))
		fmt.Fprintf(w, "  Maximum price       : \033[1;32m%s\033[0m\n", FormatBRL(r.MaxPriceCents))
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	if r.MostExpensive != nil {
		fmt.Fprintf(w, "  Most expensive      : %s (%s - %s)\n",
			truncate(r.MostExpensive.Title, 40), r.MostExpensive.City, r.MostExpensive.State)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Properties by State\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.PropertiesByState) == 0 {
		fmt.Fprintf(w, "  No location data\n")
	} else {
		type stateCount struct {
			state string
			count int
		}
		var states []stateCount
		for st, cnt := range r.PropertiesByState {
			states = append(states, stateCount{st, cnt})
		}
		sort.Slice(states, func(i, j int) bool {
			if states[i].count != states[j].count {
				return states[i].count > states[j].count
			}
			return states[i].state < states[j].state
		})
		for _, sc := range states {
			bar := strings.Repeat("█", min(sc.count, 40))
			fmt.Fprintf(w, "  %-4s %s (%d)\n", sc.state, bar, sc.count)
		}
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

// FormatBRL renders cents as "R$ 1.234.567,89".
func FormatBRL(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	whole := fmt.Sprintf("%d", cents/100)
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%sR$ %s,%02d", sign, b.String(), cents%100)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
