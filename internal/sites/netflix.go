package sites

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ternarybob/venari/internal/models"
)

const netflixPageCap = 40

var netflixDetailPath = regexp.MustCompile(`^/jobs/(\d+)/?$`)

// NetflixHandler covers jobs.netflix.com: the /api/search feed pages with
// ?page=N and postings resolve to /jobs/{external_id}.
type NetflixHandler struct{}

// NewNetflixHandler returns the netflix family handler.
func NewNetflixHandler() *NetflixHandler {
	return &NetflixHandler{}
}

func (h *NetflixHandler) SiteType() models.SiteType { return models.SiteTypeNetflix }

func (h *NetflixHandler) MatchesURL(rawURL string) bool {
	return hostMatches(rawURL, "jobs.netflix.com") || hostMatches(rawURL, "jobs.netflix.net")
}

func (h *NetflixHandler) IsListingURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return !netflixDetailPath.MatchString(u.Path)
}

// BuildListingAPIURL swaps /search for the JSON feed, keeping the query.
func (h *NetflixHandler) BuildListingAPIURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid netflix URL %q: %w", rawURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("no host in netflix URL %q", rawURL)
	}
	u.Path = "/api/search"
	q := u.Query()
	q.Del("page")
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String(), nil
}

// netflixFeed is the /api/search shape; count drives page numbering.
type netflixFeed struct {
	Records struct {
		Postings []struct {
			ExternalID string `json:"external_id"`
		} `json:"postings"`
	} `json:"records"`
	Count int `json:"count"`
}

func (h *NetflixHandler) ExtractJobURLsFromPayload(payload, baseURL string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	var feed netflixFeed
	if err := json.Unmarshal([]byte(payload), &feed); err == nil && len(feed.Records.Postings) > 0 {
		urls := make([]string, 0, len(feed.Records.Postings))
		for _, p := range feed.Records.Postings {
			if p.ExternalID == "" {
				continue
			}
			urls = append(urls, fmt.Sprintf("https://%s/jobs/%s", base.Host, p.ExternalID))
		}
		return dedupe(urls), nil
	}

	urls := extractAnchors(payload, baseURL, func(link string) bool {
		u, err := url.Parse(link)
		if err != nil {
			return false
		}
		return h.MatchesURL(link) && netflixDetailPath.MatchString(u.Path)
	})
	if len(urls) == 0 {
		return nil, fmt.Errorf("no netflix postings in payload (%d bytes)", len(payload))
	}
	return urls, nil
}

// ExtractPaginationURLs numbers feed pages off the record count (10 per
// page on this board).
func (h *NetflixHandler) ExtractPaginationURLs(payload, baseURL string) ([]string, error) {
	var feed netflixFeed
	if err := json.Unmarshal([]byte(payload), &feed); err != nil {
		return nil, nil
	}
	perPage := len(feed.Records.Postings)
	if perPage == 0 || feed.Count <= perPage {
		return nil, nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	pages := (feed.Count + perPage - 1) / perPage
	if pages > netflixPageCap {
		pages = netflixPageCap
	}
	var urls []string
	for page := 2; page <= pages; page++ {
		next := *base
		q := next.Query()
		q.Set("page", fmt.Sprintf("%d", page))
		next.RawQuery = q.Encode()
		urls = append(urls, next.String())
	}
	return urls, nil
}

func (h *NetflixHandler) BuildFetchHints(rawURL string) models.FetchHints {
	if strings.Contains(rawURL, "/api/search") {
		return models.FetchHints{
			ReturnFormat:    models.ReturnFormatRawHTML,
			RequestProfile:  models.RequestProfileBasic,
			FollowRedirects: true,
		}
	}
	return models.FetchHints{
		ReturnFormat:    models.ReturnFormatCommonmark,
		RequestProfile:  models.RequestProfileChrome,
		FollowRedirects: true,
	}
}

func (h *NetflixHandler) FilterJobURLs(urls []string, pattern string) []string {
	var kept []string
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if netflixDetailPath.MatchString(u.Path) {
			kept = append(kept, raw)
		}
	}
	return filterWithPattern(kept, pattern)
}
