package sites

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/ternarybob/venari/internal/models"
)

// uberDetailPath matches /{cc}/{lang}/careers/list/{id} and bare
// /careers/list/{id} detail URLs.
var uberDetailPath = regexp.MustCompile(`/careers/list/(\d+)/?$`)

// UberHandler covers uber.com career listings under /careers/list/.
type UberHandler struct{}

// NewUberHandler returns the uber family handler.
func NewUberHandler() *UberHandler {
	return &UberHandler{}
}

func (h *UberHandler) SiteType() models.SiteType { return models.SiteTypeUber }

func (h *UberHandler) MatchesURL(rawURL string) bool {
	return hostMatches(rawURL, "uber.com") && pathContains(rawURL, "/careers")
}

func (h *UberHandler) IsListingURL(rawURL string) bool {
	return h.MatchesURL(rawURL) && !uberDetailPath.MatchString(rawURL)
}

// BuildListingAPIURL returns the listing page: the search API is a POST
// endpoint the fetch providers cannot drive, so discovery renders the page.
func (h *UberHandler) BuildListingAPIURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid uber URL %q: %w", rawURL, err)
	}
	u.Fragment = ""
	return u.String(), nil
}

func (h *UberHandler) ExtractJobURLsFromPayload(payload, baseURL string) ([]string, error) {
	urls := extractAnchors(payload, baseURL, func(link string) bool {
		return hostMatches(link, "uber.com") && uberDetailPath.MatchString(link)
	})
	if len(urls) == 0 {
		return nil, fmt.Errorf("no uber postings in payload (%d bytes)", len(payload))
	}
	return urls, nil
}

// ExtractPaginationURLs keeps rendered page links; the board paginates
// with ?page=N on the same path.
func (h *UberHandler) ExtractPaginationURLs(payload, baseURL string) ([]string, error) {
	urls := extractAnchors(payload, baseURL, func(link string) bool {
		if !hostMatches(link, "uber.com") || !pathContains(link, "/careers/list") {
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

func (h *UberHandler) BuildFetchHints(rawURL string) models.FetchHints {
	return models.FetchHints{
		ReturnFormat:             models.ReturnFormatCommonmark,
		RequestProfile:           models.RequestProfileChrome,
		FollowRedirects:          true,
		WaitForSelector:          "a[href*='/careers/list/']",
		ExtractPaginationFromDOM: true,
	}
}

func (h *UberHandler) FilterJobURLs(urls []string, pattern string) []string {
	var kept []string
	for _, raw := range urls {
		if uberDetailPath.MatchString(raw) {
			kept = append(kept, raw)
		}
	}
	return filterWithPattern(kept, pattern)
}
