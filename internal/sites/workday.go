package sites

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/ternarybob/venari/internal/models"
)

// workdayPageSize is the batch size the cxs endpoint serves per request.
const workdayPageSize = 50

// workdayOffsetCap bounds offset paging for a single discovery pass.
const workdayOffsetCap = 2000

// WorkdayHandler covers myworkdayjobs.com tenants. Board URLs look like
// https://{tenant}.wd5.myworkdayjobs.com/{locale?}/{site}; the JSON feed
// lives at {host}/wday/cxs/{tenant}/{site}/jobs.
type WorkdayHandler struct{}

// NewWorkdayHandler returns the workday family handler.
func NewWorkdayHandler() *WorkdayHandler {
	return &WorkdayHandler{}
}

func (h *WorkdayHandler) SiteType() models.SiteType { return models.SiteTypeWorkday }

func (h *WorkdayHandler) MatchesURL(rawURL string) bool {
	return hostMatches(rawURL, "myworkdayjobs.com") || pathContains(rawURL, "/wday/cxs/")
}

func (h *WorkdayHandler) IsListingURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if strings.Contains(u.Path, "/wday/cxs/") {
		return strings.HasSuffix(strings.TrimRight(u.Path, "/"), "/jobs")
	}
	// Board detail paths carry /job/ segments; everything else is the board.
	return !strings.Contains(u.Path, "/job/")
}

// workdayBoard carries the tenant/site pair parsed from a board URL.
type workdayBoard struct {
	scheme string
	host   string
	tenant string
	site   string
	locale string
}

func parseWorkdayBoard(rawURL string) (workdayBoard, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return workdayBoard{}, fmt.Errorf("invalid workday URL %q: %w", rawURL, err)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	hostParts := strings.Split(u.Host, ".")
	if len(hostParts) < 3 {
		return workdayBoard{}, fmt.Errorf("unexpected workday host %q", u.Host)
	}

	segs := strings.Split(strings.Trim(u.Path, "/"), "/")

	// cxs URLs already carry tenant and site.
	for i, seg := range segs {
		if seg == "cxs" && i+2 < len(segs) {
			return workdayBoard{scheme: u.Scheme, host: u.Host, tenant: segs[i+1], site: segs[i+2]}, nil
		}
	}

	if len(segs) == 0 || segs[0] == "" {
		return workdayBoard{}, fmt.Errorf("no site in workday URL %q", rawURL)
	}

	locale := ""
	if looksLikeLocale(segs[0]) && len(segs) >= 2 {
		locale = segs[0]
		segs = segs[1:]
	}

	// The site is the first path segment; /job/... detail suffixes follow it.
	return workdayBoard{
		scheme: u.Scheme,
		host:   u.Host,
		tenant: hostParts[0],
		site:   segs[0],
		locale: locale,
	}, nil
}

// looksLikeLocale accepts en-US style segments.
func looksLikeLocale(s string) bool {
	if len(s) != 5 || s[2] != '-' {
		return false
	}
	for _, i := range []int{0, 1, 3, 4} {
		c := s[i]
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
			return false
		}
	}
	return true
}

// BuildListingAPIURL maps the board onto its cxs jobs feed.
func (h *WorkdayHandler) BuildListingAPIURL(rawURL string) (string, error) {
	b, err := parseWorkdayBoard(rawURL)
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s://%s/wday/cxs/%s/%s/jobs", b.scheme, b.host, b.tenant, b.site)
	if b.locale != "" {
		endpoint += "?locale=" + url.QueryEscape(b.locale)
	}
	return endpoint, nil
}

// workdayFeed is the cxs jobs response.
type workdayFeed struct {
	Total       int `json:"total"`
	JobPostings []struct {
		Title        string `json:"title"`
		ExternalPath string `json:"externalPath"`
		ExternalURL  string `json:"externalUrl"`
	} `json:"jobPostings"`
}

// ExtractJobURLsFromPayload resolves externalPath entries against the
// board host.
func (h *WorkdayHandler) ExtractJobURLsFromPayload(payload, baseURL string) ([]string, error) {
	b, err := parseWorkdayBoard(baseURL)
	if err != nil {
		return nil, err
	}

	var feed workdayFeed
	if err := json.Unmarshal([]byte(payload), &feed); err == nil && len(feed.JobPostings) > 0 {
		urls := make([]string, 0, len(feed.JobPostings))
		for _, p := range feed.JobPostings {
			switch {
			case p.ExternalURL != "":
				urls = append(urls, strings.TrimSpace(p.ExternalURL))
			case p.ExternalPath != "":
				path := p.ExternalPath
				if !strings.HasPrefix(path, "/") {
					path = "/" + path
				}
				urls = append(urls, fmt.Sprintf("%s://%s%s", b.scheme, b.host, path))
			}
		}
		return dedupe(urls), nil
	}

	urls := extractAnchors(payload, baseURL, func(link string) bool {
		return hostMatches(link, "myworkdayjobs.com") && strings.Contains(link, "/job/")
	})
	if len(urls) == 0 {
		return nil, fmt.Errorf("no workday postings in payload (%d bytes)", len(payload))
	}
	return urls, nil
}

// ExtractPaginationURLs emits offset pages derived from the feed total.
func (h *WorkdayHandler) ExtractPaginationURLs(payload, baseURL string) ([]string, error) {
	var feed workdayFeed
	if err := json.Unmarshal([]byte(payload), &feed); err != nil {
		return nil, nil
	}
	if feed.Total <= workdayPageSize {
		return nil, nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	max := feed.Total
	if max > workdayOffsetCap {
		max = workdayOffsetCap
	}
	var urls []string
	for offset := workdayPageSize; offset < max; offset += workdayPageSize {
		next := *base
		q := next.Query()
		q.Set("limit", fmt.Sprintf("%d", workdayPageSize))
		q.Set("offset", fmt.Sprintf("%d", offset))
		next.RawQuery = q.Encode()
		urls = append(urls, next.String())
	}
	return urls, nil
}

func (h *WorkdayHandler) BuildFetchHints(rawURL string) models.FetchHints {
	if strings.Contains(rawURL, "/wday/cxs/") {
		return models.FetchHints{
			ReturnFormat:    models.ReturnFormatRawHTML,
			RequestProfile:  models.RequestProfileSmart,
			FollowRedirects: true,
		}
	}
	// Board and detail pages are SPAs behind Cloudflare.
	return models.FetchHints{
		ReturnFormat:    models.ReturnFormatCommonmark,
		RequestProfile:  models.RequestProfileChrome,
		FollowRedirects: true,
		WaitForSelector: "[data-automation-id='jobPostingHeader']",
	}
}

func (h *WorkdayHandler) FilterJobURLs(urls []string, pattern string) []string {
	var kept []string
	for _, raw := range urls {
		if strings.Contains(raw, "/job/") || strings.Contains(raw, "/wday/cxs/") {
			kept = append(kept, raw)
		}
	}
	return filterWithPattern(kept, pattern)
}
