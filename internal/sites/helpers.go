package sites

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/venari/internal/common"
)

// extractAnchors parses an HTML payload and returns the resolved href of
// every anchor accepted by the keep predicate. Relative hrefs are resolved
// against baseURL; javascript:, mailto:, tel: and fragment-only links are
// skipped. Unparseable payloads yield no anchors.
func extractAnchors(payload, baseURL string, keep func(href string) bool) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(payload))
	if err != nil {
		return nil
	}

	base, _ := url.Parse(baseURL)
	seen := make(map[string]bool)
	var links []string

	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists || href == "" {
			return
		}
		if strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") ||
			strings.HasPrefix(href, "tel:") || strings.HasPrefix(href, "#") {
			return
		}

		if base != nil {
			if resolved, err := base.Parse(href); err == nil {
				resolved.Fragment = ""
				href = resolved.String()
			}
		}

		if keep != nil && !keep(href) {
			return
		}
		if seen[href] {
			return
		}
		seen[href] = true
		links = append(links, href)
	})

	return links
}

// hostMatches reports whether the URL's host equals host or is a subdomain
// of it.
func hostMatches(rawURL, host string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	h := strings.ToLower(u.Hostname())
	host = strings.ToLower(host)
	return h == host || strings.HasSuffix(h, "."+host)
}

// pathContains reports whether the URL path contains the segment.
func pathContains(rawURL, segment string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(u.Path), strings.ToLower(segment))
}

// dedupe keeps first occurrences, preserving order.
func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := urls[:0:0]
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// filterWithPattern drops empties, non-http schemes and pattern misses,
// then dedupes. Shared tail of every handler's FilterJobURLs.
func filterWithPattern(urls []string, pattern string) []string {
	var out []string
	for _, u := range urls {
		if u == "" {
			continue
		}
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			continue
		}
		if !common.MatchesURLPattern(pattern, u) {
			continue
		}
		out = append(out, u)
	}
	return dedupe(out)
}

// stripQueryParam removes one query parameter from a URL, leaving the rest
// of the query intact.
func stripQueryParam(rawURL, param string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Del(param)
	u.RawQuery = q.Encode()
	return u.String()
}
