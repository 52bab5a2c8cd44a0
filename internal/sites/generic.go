package sites

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ternarybob/venari/internal/models"
)

// genericJobSegments mark a path as job-related for the tail handler.
var genericJobSegments = []string{"/job/", "/jobs/", "/careers/", "/career/", "/position/", "/positions/", "/opening/", "/openings/", "/vacancy/", "/vacancies/"}

// genericListingTails are path endings that indicate a board page rather
// than a posting.
var genericListingTails = []string{"/jobs", "/careers", "/positions", "/openings", "/vacancies", "/search"}

var genericPageParams = []string{"page", "offset", "start", "from", "jobOffset"}

// genericIDTail requires the last path segment to carry a digit or look
// like a multi-word slug, filtering out section pages.
var genericIDTail = regexp.MustCompile(`[\d]|(?:[a-z0-9]+-){2,}[a-z0-9]+`)

// GenericHandler is the registry tail: best-effort heuristics for boards
// without a dedicated family.
type GenericHandler struct{}

// NewGenericHandler returns the fallback handler.
func NewGenericHandler() *GenericHandler {
	return &GenericHandler{}
}

func (h *GenericHandler) SiteType() models.SiteType { return models.SiteTypeGeneric }

// MatchesURL accepts everything; the registry only reaches the tail when
// no family matched.
func (h *GenericHandler) MatchesURL(rawURL string) bool { return true }

func (h *GenericHandler) IsListingURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := strings.TrimRight(strings.ToLower(u.Path), "/")
	for _, tail := range genericListingTails {
		if strings.HasSuffix(p, tail) {
			return true
		}
	}
	for _, param := range genericPageParams {
		if u.Query().Get(param) != "" {
			return true
		}
	}
	return false
}

// BuildListingAPIURL is the identity: nothing is known about the board's
// feed, so discovery fetches the page it was given.
func (h *GenericHandler) BuildListingAPIURL(rawURL string) (string, error) {
	if _, err := url.Parse(rawURL); err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	return rawURL, nil
}

func (h *GenericHandler) ExtractJobURLsFromPayload(payload, baseURL string) ([]string, error) {
	base, _ := url.Parse(baseURL)
	urls := extractAnchors(payload, baseURL, func(link string) bool {
		if !h.looksLikeJobURL(link) {
			return false
		}
		// Stay on the board's host; generic boards never point postings
		// at third-party domains worth following blind.
		if base != nil && base.Host != "" {
			u, err := url.Parse(link)
			if err != nil || !sameRegistrableHost(u.Host, base.Host) {
				return false
			}
		}
		return true
	})
	if len(urls) == 0 {
		return nil, fmt.Errorf("no job-like anchors in payload (%d bytes)", len(payload))
	}
	return urls, nil
}

func (h *GenericHandler) ExtractPaginationURLs(payload, baseURL string) ([]string, error) {
	base, _ := url.Parse(baseURL)
	urls := extractAnchors(payload, baseURL, func(link string) bool {
		u, err := url.Parse(link)
		if err != nil {
			return false
		}
		if base != nil && base.Host != "" && !sameRegistrableHost(u.Host, base.Host) {
			return false
		}
		for _, param := range genericPageParams {
			if u.Query().Get(param) != "" {
				return true
			}
		}
		return false
	})
	return urls, nil
}

func (h *GenericHandler) BuildFetchHints(rawURL string) models.FetchHints {
	return models.FetchHints{
		ReturnFormat:             models.ReturnFormatCommonmark,
		RequestProfile:           models.RequestProfileSmart,
		FollowRedirects:          true,
		ExtractPaginationFromDOM: true,
	}
}

func (h *GenericHandler) FilterJobURLs(urls []string, pattern string) []string {
	var kept []string
	for _, raw := range urls {
		if h.looksLikeJobURL(raw) {
			kept = append(kept, raw)
		}
	}
	return filterWithPattern(kept, pattern)
}

// looksLikeJobURL wants a job-ish path segment plus an id-bearing tail, and
// rejects listing tails.
func (h *GenericHandler) looksLikeJobURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	hasSegment := false
	for _, seg := range genericJobSegments {
		if strings.Contains(p, seg) {
			hasSegment = true
			break
		}
	}
	if !hasSegment {
		return false
	}
	trimmed := strings.TrimRight(p, "/")
	for _, tail := range genericListingTails {
		if strings.HasSuffix(trimmed, tail) {
			return false
		}
	}
	segs := strings.Split(strings.Trim(p, "/"), "/")
	if len(segs) == 0 {
		return false
	}
	return genericIDTail.MatchString(segs[len(segs)-1])
}

// sameRegistrableHost treats www./careers./jobs. style subdomains of one
// parent as the same site.
func sameRegistrableHost(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return true
	}
	return strings.HasSuffix(a, "."+parentHost(b)) || strings.HasSuffix(b, "."+parentHost(a)) || parentHost(a) == parentHost(b)
}

// parentHost drops one leading label when the host has three or more.
func parentHost(host string) string {
	parts := strings.Split(host, ".")
	if len(parts) <= 2 {
		return host
	}
	return strings.Join(parts[1:], ".")
}
