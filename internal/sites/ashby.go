package sites

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ternarybob/venari/internal/models"
)

// ashbyJobPath matches jobs.ashbyhq.com/{org}/{posting-uuid}.
var ashbyJobPath = regexp.MustCompile(`^/([^/]+)/([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})/?$`)

// AshbyHandler implements the Ashby job-board family via the public
// posting API (api.ashbyhq.com/posting-api/job-board/{org}).
type AshbyHandler struct{}

// NewAshbyHandler returns the ashby family handler.
func NewAshbyHandler() *AshbyHandler {
	return &AshbyHandler{}
}

func (h *AshbyHandler) SiteType() models.SiteType { return models.SiteTypeAshby }

func (h *AshbyHandler) MatchesURL(rawURL string) bool {
	return hostMatches(rawURL, "ashbyhq.com")
}

func (h *AshbyHandler) IsListingURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if strings.Contains(u.Host, "api.ashbyhq.com") {
		return strings.Contains(u.Path, "/posting-api/job-board/")
	}
	// jobs.ashbyhq.com/{org} with no posting uuid is the board page
	return !ashbyJobPath.MatchString(u.Path)
}

// BuildListingAPIURL maps any org board URL onto the posting API, asking
// for compensation data so the normalizer can price postings without a
// second fetch.
func (h *AshbyHandler) BuildListingAPIURL(rawURL string) (string, error) {
	org, err := h.orgSlug(rawURL)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("https://api.ashbyhq.com/posting-api/job-board/%s?includeCompensation=true", org), nil
}

func (h *AshbyHandler) orgSlug(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid ashby URL %q: %w", rawURL, err)
	}
	if strings.Contains(u.Host, "api.ashbyhq.com") {
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) >= 3 && parts[0] == "posting-api" && parts[1] == "job-board" {
			return parts[2], nil
		}
		return "", fmt.Errorf("no org in ashby API URL %q", rawURL)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return "", fmt.Errorf("no org in ashby URL %q", rawURL)
	}
	return parts[0], nil
}

// ashbyPostingBoard is the posting API response; jobUrl carries the
// canonical posting page and applyUrl the application form.
type ashbyPostingBoard struct {
	Jobs []struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		JobURL string `json:"jobUrl"`
	} `json:"jobs"`
}

func (h *AshbyHandler) ExtractJobURLsFromPayload(payload, baseURL string) ([]string, error) {
	var board ashbyPostingBoard
	if err := json.Unmarshal([]byte(payload), &board); err == nil && len(board.Jobs) > 0 {
		urls := make([]string, 0, len(board.Jobs))
		for _, job := range board.Jobs {
			switch {
			case job.JobURL != "":
				urls = append(urls, job.JobURL)
			case job.ID != "":
				if org, err := h.orgSlug(baseURL); err == nil {
					urls = append(urls, fmt.Sprintf("https://jobs.ashbyhq.com/%s/%s", org, job.ID))
				}
			}
		}
		return dedupe(urls), nil
	}

	// Board pages embed posting anchors when fetched as HTML.
	urls := extractAnchors(payload, baseURL, func(link string) bool {
		u, err := url.Parse(link)
		if err != nil {
			return false
		}
		return hostMatches(link, "ashbyhq.com") && ashbyJobPath.MatchString(u.Path)
	})
	if len(urls) == 0 {
		return nil, fmt.Errorf("no ashby postings in payload (%d bytes)", len(payload))
	}
	return urls, nil
}

// ExtractPaginationURLs returns nothing: the posting API returns the whole
// board in one response.
func (h *AshbyHandler) ExtractPaginationURLs(payload, baseURL string) ([]string, error) {
	return nil, nil
}

func (h *AshbyHandler) BuildFetchHints(rawURL string) models.FetchHints {
	if strings.Contains(rawURL, "api.ashbyhq.com") {
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

func (h *AshbyHandler) FilterJobURLs(urls []string, pattern string) []string {
	var kept []string
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if hostMatches(raw, "ashbyhq.com") && ashbyJobPath.MatchString(u.Path) {
			kept = append(kept, raw)
		}
	}
	return filterWithPattern(kept, pattern)
}
