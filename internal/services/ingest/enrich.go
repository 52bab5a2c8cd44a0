package ingest

import (
	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/normalizer"
)

// reEnrichRows is the best-effort hint pass over rows about to be stored:
// rows the provider path left without a location or compensation get one
// more run of the markdown heuristics over their description.
func reEnrichRows(rows []models.JobRow) {
	for i := range rows {
		row := &rows[i]
		if row.Description == "" {
			continue
		}
		if row.Location == "" {
			if locs, _ := normalizer.ParseLocations(row.Description); len(locs) > 0 {
				row.Location = locs[0]
				if len(locs) > 1 {
					row.Locations = locs
				}
			}
		}
		if row.CompensationUnknown {
			if comp := normalizer.ParseCompensation(row.Description); comp != nil {
				row.TotalCompensation = comp.Midpoint
				row.CurrencyCode = comp.Currency
				row.CompensationUnknown = false
				row.CompensationReason = ""
			}
		}
	}
}
