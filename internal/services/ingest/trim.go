package ingest

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/ternarybob/venari/internal/models"
)

// buildRecord converts a payload into the append-only record shape, applying
// the default trim. When the encoded record would still exceed the store
// ceiling it applies the aggressive trim immediately and reports truncation.
func buildRecord(payload *models.ScrapePayload) (models.ScrapeRecord, bool) {
	record := models.ScrapeRecord{
		ID:              "",
		SourceURL:       payload.SourceURL,
		Provider:        payload.Provider,
		StartedAt:       payload.StartedAt,
		CompletedAt:     payload.CompletedAt,
		RequestSnapshot: clampRunes(payload.RequestSnapshot, models.MaxRequestSnapshotLen),
		RawPreview:      clampRunes(payload.RawPreview, models.MaxRawPreviewLen),
		RowCount:        len(payload.Rows),
		CostMicroCents:  payload.CostMicroCents,
	}

	record.Rows = append([]models.JobRow(nil), payload.Rows...)
	if len(record.Rows) > models.DefaultMaxRows {
		record.Rows = record.Rows[:models.DefaultMaxRows]
	}
	for i := range record.Rows {
		record.Rows[i].Description = clampRunes(record.Rows[i].Description, models.MaxDescriptionChars)
	}

	if recordBytes(&record) > models.MaxScrapeRecordBytes {
		aggressiveTrimRecord(&record)
		record.Truncated = true
	}
	return record, record.Truncated
}

// aggressiveTrimRecord shrinks a record to its skeleton: at most 100 rows
// with 400-char descriptions and no raw preview.
func aggressiveTrimRecord(record *models.ScrapeRecord) {
	record.RawPreview = ""
	if len(record.Rows) > models.AggressiveMaxRows {
		record.Rows = record.Rows[:models.AggressiveMaxRows]
	}
	for i := range record.Rows {
		record.Rows[i].Description = clampRunes(record.Rows[i].Description, models.AggressiveDescription)
	}
}

func recordBytes(record *models.ScrapeRecord) int {
	encoded, err := json.Marshal(record)
	if err != nil {
		return 0
	}
	return len(encoded)
}

func clampRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// splitCost distributes the payload's total cost evenly across rows that
// carry none of their own. The first row absorbs the remainder so the sum
// stays exact.
func splitCost(payload *models.ScrapePayload) {
	if payload.CostMicroCents <= 0 || len(payload.Rows) == 0 {
		return
	}
	perRow := payload.CostMicroCents / int64(len(payload.Rows))
	remainder := payload.CostMicroCents % int64(len(payload.Rows))
	for i := range payload.Rows {
		if payload.Rows[i].ScrapedCost != 0 {
			continue
		}
		payload.Rows[i].ScrapedCost = perRow
		if i == 0 {
			payload.Rows[i].ScrapedCost += remainder
		}
	}
}
