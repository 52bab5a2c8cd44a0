package sites

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ternarybob/venari/internal/models"
)

// avatureRejects are anchor fragments that look like postings but are
// account actions on Avature tenants.
var avatureRejects = []string{"SaveJob", "Login", "Register", "ForgotPassword"}

// AvatureHandler covers Avature-hosted career portals. Tenants run on
// company domains, so the path shape is the predicate: /careers/SearchJobs
// listings and /careers/JobDetail/... postings.
type AvatureHandler struct{}

// NewAvatureHandler returns the avature family handler.
func NewAvatureHandler() *AvatureHandler {
	return &AvatureHandler{}
}

func (h *AvatureHandler) SiteType() models.SiteType { return models.SiteTypeAvature }

func (h *AvatureHandler) MatchesURL(rawURL string) bool {
	return pathContains(rawURL, "/careers/SearchJobs") ||
		pathContains(rawURL, "/careers/SearchJobsData") ||
		pathContains(rawURL, "/careers/JobDetail")
}

func (h *AvatureHandler) IsListingURL(rawURL string) bool {
	return pathContains(rawURL, "/careers/SearchJobs") || pathContains(rawURL, "/careers/SearchJobsData")
}

// BuildListingAPIURL prefers the SearchJobsData JSON endpoint that backs
// the SearchJobs page on the same tenant.
func (h *AvatureHandler) BuildListingAPIURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid avature URL %q: %w", rawURL, err)
	}
	if strings.Contains(u.Path, "/careers/SearchJobsData") {
		return rawURL, nil
	}
	if strings.Contains(u.Path, "/careers/SearchJobs") {
		u.Path = strings.Replace(u.Path, "/careers/SearchJobs", "/careers/SearchJobsData", 1)
		return u.String(), nil
	}
	return "", fmt.Errorf("not an avature listing URL: %q", rawURL)
}

// ExtractJobURLsFromPayload keeps JobDetail anchors and rejects account
// actions (SaveJob, Login, Register).
func (h *AvatureHandler) ExtractJobURLsFromPayload(payload, baseURL string) ([]string, error) {
	urls := extractAnchors(payload, baseURL, func(link string) bool {
		if !strings.Contains(link, "JobDetail/") {
			return false
		}
		return !avatureRejected(link)
	})
	if len(urls) == 0 {
		return nil, fmt.Errorf("no avature JobDetail anchors in payload (%d bytes)", len(payload))
	}
	return urls, nil
}

// ExtractPaginationURLs keeps jobOffset anchors, which Avature uses for
// server-side paging.
func (h *AvatureHandler) ExtractPaginationURLs(payload, baseURL string) ([]string, error) {
	urls := extractAnchors(payload, baseURL, func(link string) bool {
		if !strings.Contains(link, "jobOffset=") {
			return false
		}
		return !avatureRejected(link)
	})
	return urls, nil
}

func (h *AvatureHandler) BuildFetchHints(rawURL string) models.FetchHints {
	// Avature renders server-side; the smart profile clears most tenants'
	// bot walls without paying for a full browser.
	return models.FetchHints{
		ReturnFormat:             models.ReturnFormatRawHTML,
		RequestProfile:           models.RequestProfileSmart,
		FollowRedirects:          true,
		ExtractPaginationFromDOM: true,
	}
}

func (h *AvatureHandler) FilterJobURLs(urls []string, pattern string) []string {
	var kept []string
	for _, raw := range urls {
		if strings.Contains(raw, "JobDetail/") && !avatureRejected(raw) {
			kept = append(kept, raw)
		}
	}
	return filterWithPattern(kept, pattern)
}

func avatureRejected(link string) bool {
	for _, frag := range avatureRejects {
		if strings.Contains(link, frag) {
			return true
		}
	}
	return false
}
