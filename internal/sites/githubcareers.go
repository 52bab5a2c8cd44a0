package sites

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ternarybob/venari/internal/models"
)

// githubCareersPageCap bounds how many listing pages a single discovery
// pass will enqueue for one board.
const githubCareersPageCap = 50

var githubCareersDetailPath = regexp.MustCompile(`^/careers-home/jobs/(\d+)/?$`)

// GitHubCareersHandler implements the github.careers board (a Radancy
// tenant): listing pages live under /careers-home/jobs and the JSON feed
// under /api/jobs.
type GitHubCareersHandler struct{}

// NewGitHubCareersHandler returns the github-careers family handler.
func NewGitHubCareersHandler() *GitHubCareersHandler {
	return &GitHubCareersHandler{}
}

func (h *GitHubCareersHandler) SiteType() models.SiteType { return models.SiteTypeGitHubCareers }

func (h *GitHubCareersHandler) MatchesURL(rawURL string) bool {
	return hostMatches(rawURL, "github.careers")
}

func (h *GitHubCareersHandler) IsListingURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if strings.HasPrefix(u.Path, "/api/jobs") {
		return true
	}
	return strings.HasPrefix(u.Path, "/careers-home/jobs") && !githubCareersDetailPath.MatchString(u.Path)
}

// BuildListingAPIURL swaps the HTML path for /api/jobs, carrying every
// query parameter across except page so the feed starts from the first
// page regardless of which listing page was configured.
func (h *GitHubCareersHandler) BuildListingAPIURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid github.careers URL %q: %w", rawURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("no host in github.careers URL %q", rawURL)
	}
	u.Path = "/api/jobs"
	q := u.Query()
	q.Del("page")
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String(), nil
}

// githubCareersFeed is the Radancy /api/jobs shape.
type githubCareersFeed struct {
	Jobs []struct {
		Data struct {
			Slug     string `json:"slug"`
			Title    string `json:"title"`
			LangCode string `json:"lang_code"`
			ApplyURL string `json:"apply_url"`
		} `json:"data"`
	} `json:"jobs"`
	TotalCount int `json:"totalCount"`
}

// ExtractJobURLsFromPayload builds detail URLs as
// …/careers-home/jobs/{slug}?lang={lang} from the JSON feed.
func (h *GitHubCareersHandler) ExtractJobURLsFromPayload(payload, baseURL string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	var feed githubCareersFeed
	if err := json.Unmarshal([]byte(payload), &feed); err == nil && len(feed.Jobs) > 0 {
		urls := make([]string, 0, len(feed.Jobs))
		for _, job := range feed.Jobs {
			if job.Data.Slug == "" {
				continue
			}
			lang := job.Data.LangCode
			if lang == "" {
				lang = "en-us"
			}
			urls = append(urls, fmt.Sprintf("https://%s/careers-home/jobs/%s?lang=%s", base.Host, job.Data.Slug, url.QueryEscape(lang)))
		}
		return dedupe(urls), nil
	}

	// HTML listing fallback
	urls := extractAnchors(payload, baseURL, func(link string) bool {
		u, err := url.Parse(link)
		if err != nil {
			return false
		}
		return hostMatches(link, "github.careers") && githubCareersDetailPath.MatchString(u.Path)
	})
	if len(urls) == 0 {
		return nil, fmt.Errorf("no github.careers postings in payload (%d bytes)", len(payload))
	}
	return urls, nil
}

// ExtractPaginationURLs derives page 2..N feed URLs from totalCount.
func (h *GitHubCareersHandler) ExtractPaginationURLs(payload, baseURL string) ([]string, error) {
	var feed githubCareersFeed
	if err := json.Unmarshal([]byte(payload), &feed); err != nil {
		return nil, nil
	}
	perPage := len(feed.Jobs)
	if perPage == 0 || feed.TotalCount <= perPage {
		return nil, nil
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	pages := (feed.TotalCount + perPage - 1) / perPage
	if pages > githubCareersPageCap {
		pages = githubCareersPageCap
	}

	urls := make([]string, 0, pages-1)
	for page := 2; page <= pages; page++ {
		next := *base
		q := next.Query()
		q.Set("page", fmt.Sprintf("%d", page))
		next.RawQuery = q.Encode()
		urls = append(urls, next.String())
	}
	return urls, nil
}

func (h *GitHubCareersHandler) BuildFetchHints(rawURL string) models.FetchHints {
	if strings.Contains(rawURL, "/api/jobs") {
		return models.FetchHints{
			ReturnFormat:    models.ReturnFormatRawHTML,
			RequestProfile:  models.RequestProfileBasic,
			FollowRedirects: true,
		}
	}
	// Detail pages render client-side; wait for the posting body.
	return models.FetchHints{
		ReturnFormat:    models.ReturnFormatCommonmark,
		RequestProfile:  models.RequestProfileChrome,
		FollowRedirects: true,
		WaitForSelector: ".job-description",
	}
}

func (h *GitHubCareersHandler) FilterJobURLs(urls []string, pattern string) []string {
	var kept []string
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if githubCareersDetailPath.MatchString(u.Path) {
			kept = append(kept, raw)
		}
	}
	return filterWithPattern(kept, pattern)
}
