package sites

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ternarybob/venari/internal/models"
)

// confluentListingPath matches region-team landing paths such as
// /jobs/united_states-engineering, which are listings rather than postings.
var confluentListingPath = regexp.MustCompile(`^/jobs/[a-z_]+-[a-z_]+/?$`)

// confluentDetailPath matches posting paths, which carry a numeric id.
var confluentDetailPath = regexp.MustCompile(`^/jobs/[^/]*\d[^/]*/?$`)

// ConfluentHandler covers careers.confluent.io.
type ConfluentHandler struct{}

// NewConfluentHandler returns the confluent family handler.
func NewConfluentHandler() *ConfluentHandler {
	return &ConfluentHandler{}
}

func (h *ConfluentHandler) SiteType() models.SiteType { return models.SiteTypeConfluent }

func (h *ConfluentHandler) MatchesURL(rawURL string) bool {
	return hostMatches(rawURL, "careers.confluent.io")
}

// IsListingURL flags /jobs roots and region-team landing paths. Those
// pages also surface through discovery as candidate postings, so the
// normalizer uses the same predicate to drop them.
func (h *ConfluentHandler) IsListingURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := strings.TrimRight(u.Path, "/")
	if p == "/jobs" || p == "" {
		return true
	}
	return confluentListingPath.MatchString(u.Path) && !confluentDetailPath.MatchString(u.Path)
}

func (h *ConfluentHandler) BuildListingAPIURL(rawURL string) (string, error) {
	if !h.MatchesURL(rawURL) {
		return "", fmt.Errorf("not a confluent URL: %q", rawURL)
	}
	return rawURL, nil
}

func (h *ConfluentHandler) ExtractJobURLsFromPayload(payload, baseURL string) ([]string, error) {
	urls := extractAnchors(payload, baseURL, func(link string) bool {
		return h.MatchesURL(link) && pathContains(link, "/jobs/") && !h.IsListingURL(link)
	})
	if len(urls) == 0 {
		return nil, fmt.Errorf("no confluent postings in payload (%d bytes)", len(payload))
	}
	return urls, nil
}

func (h *ConfluentHandler) ExtractPaginationURLs(payload, baseURL string) ([]string, error) {
	urls := extractAnchors(payload, baseURL, func(link string) bool {
		if !h.MatchesURL(link) {
			return false
		}
		u, err := url.Parse(link)
		if err != nil {
			return false
		}
		return u.Query().Get("page") != ""
	})
	return urls, nil
}

func (h *ConfluentHandler) BuildFetchHints(rawURL string) models.FetchHints {
	return models.FetchHints{
		ReturnFormat:             models.ReturnFormatCommonmark,
		RequestProfile:           models.RequestProfileChrome,
		FollowRedirects:          true,
		ExtractPaginationFromDOM: true,
	}
}

func (h *ConfluentHandler) FilterJobURLs(urls []string, pattern string) []string {
	var kept []string
	for _, raw := range urls {
		if pathContains(raw, "/jobs/") && !h.IsListingURL(raw) {
			kept = append(kept, raw)
		}
	}
	return filterWithPattern(kept, pattern)
}
