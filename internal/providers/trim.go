package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ternarybob/venari/internal/models"
)

// maskSecret replaces a credential value, keeping the last two characters so
// operators can tell keys apart in snapshots.
func maskSecret(v string) string {
	if len(v) < 8 {
		return "xxxx..."
	}
	return "xxxx..." + v[len(v)-2:]
}

var sensitiveHeaderMarkers = []string{"authorization", "api-key", "apikey", "cookie", "token", "secret"}

func sensitiveHeader(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range sensitiveHeaderMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// snapshotRequest renders a trimmed, credential-masked copy of an outbound
// request for the scrape record.
func snapshotRequest(method, url string, headers http.Header, body string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", method, url)

	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value := headers.Get(name)
		if sensitiveHeader(name) {
			value = maskSecret(value)
		}
		fmt.Fprintf(&sb, "%s: %s\n", name, value)
	}
	if body != "" {
		sb.WriteString("\n")
		sb.WriteString(body)
	}
	return clampRunes(sb.String(), models.MaxRequestSnapshotLen)
}

// clampRunes truncates s to at most max characters without splitting a
// multi-byte sequence.
func clampRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// rawPreview bounds a raw response body for storage. Bodies shorter than the
// minimum are kept whole.
func rawPreview(raw string) string {
	return clampRunes(raw, models.MaxRawPreviewLen)
}

func payloadBytes(p *models.ScrapePayload) int {
	encoded, err := json.Marshal(p)
	if err != nil {
		return 0
	}
	return len(encoded)
}

// trimPayload shrinks a scrape payload toward the soft budget and guarantees
// it under the hard record ceiling. Returns true when the aggressive stage
// ran, which the storage adapter records as truncated.
func trimPayload(p *models.ScrapePayload) bool {
	for i := range p.Rows {
		p.Rows[i].Description = clampRunes(p.Rows[i].Description, models.MaxDescriptionChars)
	}
	p.RequestSnapshot = clampRunes(p.RequestSnapshot, models.MaxRequestSnapshotLen)
	p.RawPreview = clampRunes(p.RawPreview, models.MaxRawPreviewLen)

	if payloadBytes(p) <= models.SoftPayloadBytes {
		return false
	}

	// First stage: drop fragment bodies, shrink the preview, cap rows.
	for i := range p.Fragments {
		p.Fragments[i].RawHTML = ""
		p.Fragments[i].Markdown = clampRunes(p.Fragments[i].Markdown, models.MinRawPreviewLen)
		p.Fragments[i].JSON = nil
	}
	p.RawPreview = clampRunes(p.RawPreview, models.MinRawPreviewLen)
	if len(p.Rows) > models.DefaultMaxRows {
		p.Rows = p.Rows[:models.DefaultMaxRows]
	}
	if len(p.Ignored) > models.DefaultMaxRows {
		p.Ignored = p.Ignored[:models.DefaultMaxRows]
	}
	if payloadBytes(p) <= models.MaxScrapeRecordBytes {
		return false
	}

	// Aggressive stage: strip fragments and previews, keep a row skeleton.
	p.Fragments = nil
	p.RawPreview = ""
	if len(p.Rows) > models.AggressiveMaxRows {
		p.Rows = p.Rows[:models.AggressiveMaxRows]
	}
	if len(p.Ignored) > models.AggressiveMaxRows {
		p.Ignored = p.Ignored[:models.AggressiveMaxRows]
	}
	for i := range p.Rows {
		p.Rows[i].Description = clampRunes(p.Rows[i].Description, models.AggressiveDescription)
	}
	return true
}
