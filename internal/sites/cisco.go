package sites

import (
	"fmt"
	"strings"

	"github.com/ternarybob/venari/internal/models"
)

// CiscoHandler covers jobs.cisco.com, an Avature tenant with a ProjectDetail
// posting path instead of JobDetail.
type CiscoHandler struct{}

// NewCiscoHandler returns the cisco family handler.
func NewCiscoHandler() *CiscoHandler {
	return &CiscoHandler{}
}

func (h *CiscoHandler) SiteType() models.SiteType { return models.SiteTypeCisco }

func (h *CiscoHandler) MatchesURL(rawURL string) bool {
	return hostMatches(rawURL, "jobs.cisco.com")
}

func (h *CiscoHandler) IsListingURL(rawURL string) bool {
	return pathContains(rawURL, "/jobs/SearchJobs")
}

// BuildListingAPIURL keeps the SearchJobs page; this tenant has no JSON
// variant of it.
func (h *CiscoHandler) BuildListingAPIURL(rawURL string) (string, error) {
	if !h.MatchesURL(rawURL) {
		return "", fmt.Errorf("not a cisco URL: %q", rawURL)
	}
	return rawURL, nil
}

func (h *CiscoHandler) ExtractJobURLsFromPayload(payload, baseURL string) ([]string, error) {
	urls := extractAnchors(payload, baseURL, func(link string) bool {
		return strings.Contains(link, "ProjectDetail/") && !avatureRejected(link)
	})
	if len(urls) == 0 {
		return nil, fmt.Errorf("no cisco ProjectDetail anchors in payload (%d bytes)", len(payload))
	}
	return urls, nil
}

// ExtractPaginationURLs keeps projectOffset anchors, the Avature paging
// parameter this tenant uses.
func (h *CiscoHandler) ExtractPaginationURLs(payload, baseURL string) ([]string, error) {
	urls := extractAnchors(payload, baseURL, func(link string) bool {
		return strings.Contains(link, "projectOffset=") && !avatureRejected(link)
	})
	return urls, nil
}

func (h *CiscoHandler) BuildFetchHints(rawURL string) models.FetchHints {
	return models.FetchHints{
		ReturnFormat:             models.ReturnFormatRawHTML,
		RequestProfile:           models.RequestProfileSmart,
		FollowRedirects:          true,
		ExtractPaginationFromDOM: true,
	}
}

func (h *CiscoHandler) FilterJobURLs(urls []string, pattern string) []string {
	var kept []string
	for _, raw := range urls {
		if strings.Contains(raw, "ProjectDetail/") && !avatureRejected(raw) {
			kept = append(kept, raw)
		}
	}
	return filterWithPattern(kept, pattern)
}
