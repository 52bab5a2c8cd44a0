package sites

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ternarybob/venari/internal/models"
)

const greenhouseAPIHost = "boards-api.greenhouse.io"

// greenhouseBoardPath matches /v1/boards/{slug}/jobs with an optional job id.
var greenhouseBoardPath = regexp.MustCompile(`^/v1/boards/([^/]+)/jobs(?:/(\d+))?/?$`)

// greenhouseMarketingPath matches boards.greenhouse.io/{slug}/jobs/{id}.
var greenhouseMarketingPath = regexp.MustCompile(`^/([^/]+)/jobs/(\d+)/?$`)

// greenhouseURLFallback pulls greenhouse job URLs out of raw text when the
// board response fails JSON parsing.
var greenhouseURLFallback = regexp.MustCompile(`https?://[^\s"'<>]*greenhouse\.io/[^\s"'<>]*jobs[^\s"'<>]*`)

// GreenhouseHandler implements the Greenhouse board family: it rewrites
// marketing detail URLs (…?gh_jid=N&board=slug) into the canonical API URL
// and exposes the inverse for the apply-URL preference.
type GreenhouseHandler struct{}

// NewGreenhouseHandler returns the greenhouse family handler.
func NewGreenhouseHandler() *GreenhouseHandler {
	return &GreenhouseHandler{}
}

func (h *GreenhouseHandler) SiteType() models.SiteType { return models.SiteTypeGreenhouse }

func (h *GreenhouseHandler) MatchesURL(rawURL string) bool {
	if hostMatches(rawURL, "greenhouse.io") {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Query().Get("gh_jid") != ""
}

// IsListingURL treats a board endpoint without a job id as a listing.
func (h *GreenhouseHandler) IsListingURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if m := greenhouseBoardPath.FindStringSubmatch(u.Path); m != nil {
		return m[2] == ""
	}
	// boards.greenhouse.io/{slug} root is the marketing listing
	if hostMatches(rawURL, "greenhouse.io") && !strings.Contains(u.Path, "/jobs/") {
		return true
	}
	return false
}

// BuildListingAPIURL canonicalises any board-ish URL to
// https://boards-api.greenhouse.io/v1/boards/{slug}/jobs.
func (h *GreenhouseHandler) BuildListingAPIURL(rawURL string) (string, error) {
	slug, err := h.boardSlug(rawURL)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("https://%s/v1/boards/%s/jobs", greenhouseAPIHost, slug), nil
}

// boardSlug pulls the board slug from an API path, a marketing path, or the
// board query parameter.
func (h *GreenhouseHandler) boardSlug(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid greenhouse URL %q: %w", rawURL, err)
	}
	if m := greenhouseBoardPath.FindStringSubmatch(u.Path); m != nil {
		return m[1], nil
	}
	if board := u.Query().Get("board"); board != "" {
		return board, nil
	}
	if hostMatches(rawURL, "greenhouse.io") {
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) > 0 && parts[0] != "" && parts[0] != "v1" {
			return parts[0], nil
		}
	}
	return "", fmt.Errorf("no greenhouse board slug in %q", rawURL)
}

// greenhouseBoardJobs is the board JSON shape; only the fields the pipeline
// consumes are typed.
type greenhouseBoardJobs struct {
	Jobs []struct {
		ID          int64  `json:"id"`
		AbsoluteURL string `json:"absolute_url"`
		Title       string `json:"title"`
	} `json:"jobs"`
}

// ExtractJobURLsFromPayload reads the board JSON and emits canonical API
// detail URLs. When the payload is not parseable JSON it falls back to a
// regex sweep over the raw text.
func (h *GreenhouseHandler) ExtractJobURLsFromPayload(payload, baseURL string) ([]string, error) {
	slug, slugErr := h.boardSlug(baseURL)

	var board greenhouseBoardJobs
	if err := json.Unmarshal([]byte(payload), &board); err == nil && len(board.Jobs) > 0 {
		urls := make([]string, 0, len(board.Jobs))
		for _, job := range board.Jobs {
			if job.ID != 0 && slugErr == nil {
				urls = append(urls, fmt.Sprintf("https://%s/v1/boards/%s/jobs/%d", greenhouseAPIHost, slug, job.ID))
				continue
			}
			if api, err := h.MarketingToAPIURL(job.AbsoluteURL); err == nil {
				urls = append(urls, api)
			}
		}
		return dedupe(urls), nil
	}

	// Raw-text fallback: sweep for greenhouse job URLs and dedupe.
	matches := greenhouseURLFallback.FindAllString(payload, -1)
	var urls []string
	for _, m := range matches {
		if api, err := h.MarketingToAPIURL(m); err == nil {
			urls = append(urls, api)
		} else {
			urls = append(urls, m)
		}
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("no greenhouse job URLs in payload (%d bytes)", len(payload))
	}
	return dedupe(urls), nil
}

// ExtractPaginationURLs returns nothing: board endpoints are unpaginated.
func (h *GreenhouseHandler) ExtractPaginationURLs(payload, baseURL string) ([]string, error) {
	return nil, nil
}

// BuildFetchHints asks for the raw board body through a full renderer; the
// API host rejects host-preserving proxies.
func (h *GreenhouseHandler) BuildFetchHints(rawURL string) models.FetchHints {
	return models.FetchHints{
		ReturnFormat:    models.ReturnFormatRawHTML,
		RequestProfile:  models.RequestProfileChrome,
		FollowRedirects: true,
		PreserveHost:    false,
	}
}

func (h *GreenhouseHandler) FilterJobURLs(urls []string, pattern string) []string {
	var kept []string
	for _, u := range urls {
		if h.IsJobDetailURL(u) {
			kept = append(kept, u)
		}
	}
	return filterWithPattern(kept, pattern)
}

// IsJobDetailURL reports whether the URL points at a single posting, in
// either API or marketing form.
func (h *GreenhouseHandler) IsJobDetailURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if m := greenhouseBoardPath.FindStringSubmatch(u.Path); m != nil {
		return m[2] != ""
	}
	if u.Query().Get("gh_jid") != "" {
		return true
	}
	return hostMatches(rawURL, "greenhouse.io") && greenhouseMarketingPath.MatchString(u.Path)
}

// MarketingToAPIURL rewrites …?gh_jid=N&board=slug (or
// boards.greenhouse.io/{slug}/jobs/{N}) into the canonical API URL
// https://boards-api.greenhouse.io/v1/boards/{slug}/jobs/{N}.
func (h *GreenhouseHandler) MarketingToAPIURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid greenhouse URL %q: %w", rawURL, err)
	}

	if jid := u.Query().Get("gh_jid"); jid != "" {
		board := u.Query().Get("board")
		if board == "" {
			if board, err = h.boardSlug(rawURL); err != nil {
				return "", fmt.Errorf("gh_jid URL %q has no board slug", rawURL)
			}
		}
		return fmt.Sprintf("https://%s/v1/boards/%s/jobs/%s", greenhouseAPIHost, board, jid), nil
	}

	if m := greenhouseBoardPath.FindStringSubmatch(u.Path); m != nil && m[2] != "" {
		return fmt.Sprintf("https://%s/v1/boards/%s/jobs/%s", greenhouseAPIHost, m[1], m[2]), nil
	}

	if hostMatches(rawURL, "greenhouse.io") {
		if m := greenhouseMarketingPath.FindStringSubmatch(u.Path); m != nil {
			return fmt.Sprintf("https://%s/v1/boards/%s/jobs/%s", greenhouseAPIHost, m[1], m[2]), nil
		}
	}

	return "", fmt.Errorf("cannot derive greenhouse API URL from %q", rawURL)
}

// APIToMarketingURL is the inverse rewrite used for the apply-URL
// preference: the marketing URL becomes the canonical job URL and the API
// URL is retained as apply metadata.
func (h *GreenhouseHandler) APIToMarketingURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid greenhouse URL %q: %w", rawURL, err)
	}
	m := greenhouseBoardPath.FindStringSubmatch(u.Path)
	if m == nil || m[2] == "" {
		return "", fmt.Errorf("not a greenhouse API detail URL: %q", rawURL)
	}
	return fmt.Sprintf("https://boards.greenhouse.io/%s/jobs/%s", m[1], m[2]), nil
}
