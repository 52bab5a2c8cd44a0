package enrich

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/normalizer"
)

// extraction is what one regex pass over a pending row produced. Winning
// regexes are returned so the caller can record them against the domain,
// keeping the learned library warm for later rows.
type extraction struct {
	locations []string

	compMidpoint int64
	compCurrency string

	winners []models.HeuristicConfigRow
}

// extract runs the learned regexes for the row's domain first, then the
// built-in libraries, and returns whatever the first matching pattern per
// field yields. Pure: no I/O, no clock.
func extract(detail models.PendingJobDetail, configs []models.HeuristicConfigRow) extraction {
	var ext extraction
	desc := detail.Description
	if desc == "" {
		return ext
	}

	if detail.Location == "" {
		ext.locations, ext.winners = extractLocation(desc, configs, ext.winners)
	}
	if detail.TotalCompensation == 0 {
		ext.compMidpoint, ext.compCurrency, ext.winners = extractCompensation(desc, configs, ext.winners)
	}
	return ext
}

func extractLocation(desc string, configs []models.HeuristicConfigRow, winners []models.HeuristicConfigRow) ([]string, []models.HeuristicConfigRow) {
	for _, cfg := range configs {
		if cfg.Field != models.HeuristicFieldLocation {
			continue
		}
		re, err := regexp.Compile(cfg.Regex)
		if err != nil {
			continue
		}
		locs := submatchAll(re, desc)
		if len(locs) > 0 {
			return locs, append(winners, models.HeuristicConfigRow{Field: models.HeuristicFieldLocation, Regex: cfg.Regex})
		}
	}

	locs, pattern := normalizer.ParseLocations(desc)
	if len(locs) == 0 {
		return nil, winners
	}
	if src := locationPatternSource(pattern); src != "" {
		winners = append(winners, models.HeuristicConfigRow{Field: models.HeuristicFieldLocation, Regex: src})
	}
	return locs, winners
}

func extractCompensation(desc string, configs []models.HeuristicConfigRow, winners []models.HeuristicConfigRow) (int64, string, []models.HeuristicConfigRow) {
	for _, cfg := range configs {
		if cfg.Field != models.HeuristicFieldCompensation {
			continue
		}
		re, err := regexp.Compile(cfg.Regex)
		if err != nil {
			continue
		}
		m := re.FindStringSubmatch(desc)
		if m == nil || len(m) < 3 {
			continue
		}
		// A learned regex that mirrors a built-in keeps its currency and
		// unit; anything else is treated as plain annual USD.
		currency, multiplier := "USD", float64(1)
		if p := compensationPatternBySource(cfg.Regex); p != nil {
			currency, multiplier = p.Currency, p.Multiplier
		}
		mid := rangeMidpoint(m[1], m[2], multiplier)
		if mid <= 0 {
			continue
		}
		return mid, currency, append(winners, models.HeuristicConfigRow{Field: models.HeuristicFieldCompensation, Regex: cfg.Regex})
	}

	comp := normalizer.ParseCompensation(desc)
	if comp == nil {
		return 0, "", winners
	}
	if src := compensationPatternSource(comp.Pattern); src != "" {
		winners = append(winners, models.HeuristicConfigRow{Field: models.HeuristicFieldCompensation, Regex: src})
	}
	return comp.Midpoint, comp.Currency, winners
}

// submatchAll collects unique group-1 captures, bounded the way the built-in
// library bounds them.
func submatchAll(re *regexp.Regexp, text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range re.FindAllStringSubmatch(text, 6) {
		if len(m) < 2 {
			continue
		}
		loc := strings.TrimSpace(m[1])
		if loc == "" || seen[loc] {
			continue
		}
		seen[loc] = true
		out = append(out, loc)
	}
	return out
}

func rangeMidpoint(lo, hi string, multiplier float64) int64 {
	parse := func(s string) (float64, bool) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 64)
		return v, err == nil
	}
	h, ok := parse(hi)
	if !ok {
		return 0
	}
	l, ok := parse(lo)
	if !ok {
		l = h
	}
	return int64(math.Round((l + h) / 2 * multiplier))
}

// locationPatternSource resolves a built-in pattern name to its regex source
// so the winner can be stored as a learned config.
func locationPatternSource(name string) string {
	for _, p := range normalizer.LocationHeuristics() {
		if p.Name == name {
			return p.Re.String()
		}
	}
	return ""
}

func compensationPatternSource(name string) string {
	for _, p := range normalizer.CompensationHeuristics() {
		if p.Name == name {
			return p.Re.String()
		}
	}
	return ""
}

// compensationPatternBySource matches a learned regex back to the built-in
// it was recorded from, recovering currency and multiplier.
func compensationPatternBySource(src string) *normalizer.HeuristicPattern {
	for _, p := range normalizer.CompensationHeuristics() {
		if p.Re.String() == src {
			q := p
			return &q
		}
	}
	return nil
}
