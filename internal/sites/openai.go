package sites

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ternarybob/venari/internal/models"
)

var openaiDetailPath = regexp.MustCompile(`^/careers/[a-z0-9-]+/?$`)

// openaiNonJobs are /careers/ paths that are site chrome, not postings.
var openaiNonJobs = map[string]bool{
	"search":     true,
	"teams":      true,
	"interviews": true,
	"life":       true,
}

// OpenAIHandler covers openai.com/careers. The board is a client-rendered
// page with no public feed, so discovery works off rendered anchors.
type OpenAIHandler struct{}

// NewOpenAIHandler returns the openai family handler.
func NewOpenAIHandler() *OpenAIHandler {
	return &OpenAIHandler{}
}

func (h *OpenAIHandler) SiteType() models.SiteType { return models.SiteTypeOpenAI }

func (h *OpenAIHandler) MatchesURL(rawURL string) bool {
	return hostMatches(rawURL, "openai.com") && pathContains(rawURL, "/careers")
}

func (h *OpenAIHandler) IsListingURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := strings.TrimRight(u.Path, "/")
	return p == "/careers" || p == "/careers/search"
}

// BuildListingAPIURL returns the search page itself: there is no feed to
// swap in.
func (h *OpenAIHandler) BuildListingAPIURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid openai URL %q: %w", rawURL, err)
	}
	u.Path = "/careers/search"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

func (h *OpenAIHandler) ExtractJobURLsFromPayload(payload, baseURL string) ([]string, error) {
	urls := extractAnchors(payload, baseURL, h.isDetailURL)
	if len(urls) == 0 {
		return nil, fmt.Errorf("no openai postings in payload (%d bytes)", len(payload))
	}
	return urls, nil
}

func (h *OpenAIHandler) ExtractPaginationURLs(payload, baseURL string) ([]string, error) {
	return nil, nil
}

func (h *OpenAIHandler) BuildFetchHints(rawURL string) models.FetchHints {
	return models.FetchHints{
		ReturnFormat:             models.ReturnFormatCommonmark,
		RequestProfile:           models.RequestProfileChrome,
		FollowRedirects:          true,
		WaitForSelector:          "a[href*='/careers/']",
		ExtractPaginationFromDOM: true,
	}
}

func (h *OpenAIHandler) FilterJobURLs(urls []string, pattern string) []string {
	var kept []string
	for _, raw := range urls {
		if h.isDetailURL(raw) {
			kept = append(kept, raw)
		}
	}
	return filterWithPattern(kept, pattern)
}

func (h *OpenAIHandler) isDetailURL(rawURL string) bool {
	if !hostMatches(rawURL, "openai.com") {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	m := openaiDetailPath.FindStringSubmatch(u.Path)
	if m == nil {
		return false
	}
	slug := strings.Trim(strings.TrimPrefix(u.Path, "/careers/"), "/")
	return !openaiNonJobs[slug]
}
