package sites

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ternarybob/venari/internal/models"
)

var docusignDetailPath = regexp.MustCompile(`^/jobs/(\d+)/?$`)

// DocusignHandler covers careers.docusign.com, a Phenom tenant: postings
// at /jobs/{id}?lang=… and listings under /search-jobs.
type DocusignHandler struct{}

// NewDocusignHandler returns the docusign family handler.
func NewDocusignHandler() *DocusignHandler {
	return &DocusignHandler{}
}

func (h *DocusignHandler) SiteType() models.SiteType { return models.SiteTypeDocusign }

func (h *DocusignHandler) MatchesURL(rawURL string) bool {
	return hostMatches(rawURL, "careers.docusign.com")
}

func (h *DocusignHandler) IsListingURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return !docusignDetailPath.MatchString(u.Path)
}

func (h *DocusignHandler) BuildListingAPIURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid docusign URL %q: %w", rawURL, err)
	}
	if !docusignDetailPath.MatchString(u.Path) && !strings.HasPrefix(u.Path, "/search-jobs") {
		u.Path = "/search-jobs"
	}
	u.Fragment = ""
	return u.String(), nil
}

func (h *DocusignHandler) ExtractJobURLsFromPayload(payload, baseURL string) ([]string, error) {
	urls := extractAnchors(payload, baseURL, func(link string) bool {
		u, err := url.Parse(link)
		if err != nil {
			return false
		}
		return h.MatchesURL(link) && docusignDetailPath.MatchString(u.Path)
	})
	if len(urls) == 0 {
		return nil, fmt.Errorf("no docusign postings in payload (%d bytes)", len(payload))
	}
	return urls, nil
}

// ExtractPaginationURLs keeps the numbered search pages Phenom renders as
// ?from=N offsets.
func (h *DocusignHandler) ExtractPaginationURLs(payload, baseURL string) ([]string, error) {
	urls := extractAnchors(payload, baseURL, func(link string) bool {
		if !h.MatchesURL(link) || !pathContains(link, "/search-jobs") {
			return false
		}
		u, err := url.Parse(link)
		if err != nil {
			return false
		}
		return u.Query().Get("from") != "" || u.Query().Get("page") != ""
	})
	return urls, nil
}

func (h *DocusignHandler) BuildFetchHints(rawURL string) models.FetchHints {
	return models.FetchHints{
		ReturnFormat:             models.ReturnFormatCommonmark,
		RequestProfile:           models.RequestProfileChrome,
		FollowRedirects:          true,
		WaitForSelector:          "a[data-ph-at-id='job-link']",
		ExtractPaginationFromDOM: true,
	}
}

func (h *DocusignHandler) FilterJobURLs(urls []string, pattern string) []string {
	var kept []string
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if docusignDetailPath.MatchString(u.Path) {
			kept = append(kept, raw)
		}
	}
	return filterWithPattern(kept, pattern)
}
