package sites

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ternarybob/venari/internal/models"
)

var notionDetailPath = regexp.MustCompile(`^/careers/[a-z0-9-]+/?$`)

// NotionHandler covers notion.com (and the legacy notion.so) careers pages.
// Postings live at /careers/{role-slug}; applications go through an
// embedded Greenhouse board, so gh_jid anchors are kept too.
type NotionHandler struct{}

// NewNotionHandler returns the notion family handler.
func NewNotionHandler() *NotionHandler {
	return &NotionHandler{}
}

func (h *NotionHandler) SiteType() models.SiteType { return models.SiteTypeNotion }

func (h *NotionHandler) MatchesURL(rawURL string) bool {
	return (hostMatches(rawURL, "notion.com") || hostMatches(rawURL, "notion.so")) &&
		pathContains(rawURL, "/careers")
}

func (h *NotionHandler) IsListingURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.TrimRight(u.Path, "/") == "/careers"
}

func (h *NotionHandler) BuildListingAPIURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid notion URL %q: %w", rawURL, err)
	}
	u.Path = "/careers"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

func (h *NotionHandler) ExtractJobURLsFromPayload(payload, baseURL string) ([]string, error) {
	urls := extractAnchors(payload, baseURL, h.isDetailURL)
	if len(urls) == 0 {
		return nil, fmt.Errorf("no notion postings in payload (%d bytes)", len(payload))
	}
	return urls, nil
}

func (h *NotionHandler) ExtractPaginationURLs(payload, baseURL string) ([]string, error) {
	return nil, nil
}

func (h *NotionHandler) BuildFetchHints(rawURL string) models.FetchHints {
	return models.FetchHints{
		ReturnFormat:    models.ReturnFormatCommonmark,
		RequestProfile:  models.RequestProfileChrome,
		FollowRedirects: true,
		WaitForSelector: "a[href*='/careers/']",
	}
}

func (h *NotionHandler) FilterJobURLs(urls []string, pattern string) []string {
	var kept []string
	for _, raw := range urls {
		if h.isDetailURL(raw) {
			kept = append(kept, raw)
		}
	}
	return filterWithPattern(kept, pattern)
}

func (h *NotionHandler) isDetailURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Query().Get("gh_jid") != "" {
		return true
	}
	if !h.MatchesURL(rawURL) {
		return false
	}
	return notionDetailPath.MatchString(u.Path) && strings.TrimRight(u.Path, "/") != "/careers"
}
