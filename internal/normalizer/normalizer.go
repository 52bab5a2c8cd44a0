// Package normalizer turns provider-emitted fragments (JSON, HTML, or
// Markdown) into canonical job rows, applying the keyword and location
// policy and canonicalising greenhouse URLs along the way.
package normalizer

import (
	"encoding/json"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/sites"
)

// Service is the normalization pipeline. It is pure with respect to
// storage: filters and overlays are injected as values and every decision
// is returned to the caller.
type Service struct {
	filters    *common.FilterConfig
	remote     *common.RemoteCompaniesConfig
	registry   interfaces.HandlerRegistry
	greenhouse *sites.GreenhouseHandler
	logger     arbor.ILogger
}

// NewService builds the pipeline. Nil configs fall back to defaults.
func NewService(filters *common.FilterConfig, remote *common.RemoteCompaniesConfig, registry interfaces.HandlerRegistry, logger arbor.ILogger) *Service {
	if filters == nil {
		filters = common.NewDefaultFilterConfig()
	}
	if remote == nil {
		remote = &common.RemoteCompaniesConfig{}
	}
	return &Service{
		filters:    filters,
		remote:     remote,
		registry:   registry,
		greenhouse: sites.NewGreenhouseHandler(),
		logger:     logger,
	}
}

var _ interfaces.Normalizer = (*Service)(nil)

// extracted carries what structured decoding pulled out of a fragment
// before the markdown hint pass fills the gaps.
type extracted struct {
	markdown  string
	title     string
	company   string
	location  string
	locations []string
	applyHint string // marketing URL from the payload, when present
	postedAt  int64
	comp      *compRange
	ld        *jobPostingLD
}

// greenhouseDetail is the boards-api job detail shape. Content arrives
// entity-escaped.
type greenhouseDetail struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Content        string `json:"content"`
	AbsoluteURL    string `json:"absolute_url"`
	CompanyName    string `json:"company_name"`
	UpdatedAt      string `json:"updated_at"`
	FirstPublished string `json:"first_published"`
	Location       struct {
		Name string `json:"name"`
	} `json:"location"`
	Offices []struct {
		Name string `json:"name"`
	} `json:"offices"`
}

// templateRow is the structured shape template-crawl scrapes return.
type templateRow struct {
	Title        string `json:"title"`
	Company      string `json:"company"`
	Location     string `json:"location"`
	Compensation string `json:"compensation"`
	Description  string `json:"description"`
	URL          string `json:"url"`
	PostedAt     string `json:"posted_at"`
	Date         string `json:"date"`
}

var jobApplicationTitleRe = regexp.MustCompile(`(?i)^job application for\s+(.+?)\s+at\s+.+$`)

func cleanTitle(title string) string {
	title = strings.TrimSpace(title)
	if m := jobApplicationTitleRe.FindStringSubmatch(title); m != nil {
		return strings.TrimSpace(m[1])
	}
	return title
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// NormalizeFragment converts one fragment into at most one canonical row.
// Pages that are not jobs at all (error landings, listing indexes) are
// classified before the keyword and location policy so the ignored reason
// names what the page is, not which filter it grazed first.
func (s *Service) NormalizeFragment(frag models.Fragment, sourceURL string, provider models.ProviderKind) (*models.JobRow, *models.IgnoredJob, error) {
	jobURL := strings.TrimSpace(frag.URL)
	if jobURL == "" {
		jobURL = sourceURL
	}

	content := s.extractContent(frag, jobURL)
	if strings.TrimSpace(content.markdown) == "" && content.title == "" {
		return nil, nil, nil
	}

	body := stripNavChrome(content.markdown)

	row := &models.JobRow{
		URL:                 jobURL,
		CompensationUnknown: true,
		ScrapedAt:           time.Now().UnixMilli(),
		ScrapedWith:         provider,
	}

	title := content.title
	if title == "" {
		title = firstHeading([]byte(body))
	}
	if title == "" && content.ld != nil {
		title = content.ld.Title
	}
	row.Title = cleanTitle(title)
	row.Level = models.JobLevel(normalizeLevel(row.Title))

	if content.location != "" {
		row.Location = content.location
		row.Locations = content.locations
	} else if locs, _ := ParseLocations(body); len(locs) > 0 {
		row.Location = locs[0]
		if len(locs) > 1 {
			row.Locations = locs
		}
	}

	locText := strings.TrimSpace(row.Location + " " + strings.Join(row.Locations, " "))
	if remote, found := remoteFlag(row.Title); found {
		row.Remote = remote
	} else if remote, found := remoteFlag(locText); found {
		row.Remote = remote
	} else if remote, found := remoteFlag(truncateRunes(body, 1200)); found {
		row.Remote = remote
	}

	comp := content.comp
	if comp == nil {
		comp = ldCompensation(content.ld)
	}
	if comp == nil {
		comp = ParseCompensation(body)
	}
	if comp != nil {
		row.TotalCompensation = comp.Midpoint
		row.CurrencyCode = comp.Currency
		row.CompensationUnknown = false
	} else {
		row.CompensationReason = "no compensation pattern matched"
	}

	posted := int64(0)
	if content.ld != nil {
		posted = parseDateMs(content.ld.DatePosted)
	}
	if posted == 0 {
		posted = content.postedAt
	}
	if posted == 0 {
		if m := datePostedRe.FindStringSubmatch(body); m != nil {
			posted = parseDateMs(m[1])
		}
	}
	if posted == 0 {
		posted = time.Now().UnixMilli()
	}
	row.PostedAt = posted

	row.Description = truncateRunes(body, models.MaxDescriptionChars)

	if reason, drop := s.classify(row, body); drop {
		s.logger.Debug().
			Str("url", row.URL).
			Str("title", row.Title).
			Str("reason", string(reason)).
			Msg("Fragment ignored")
		return nil, &models.IgnoredJob{
			URL:       row.URL,
			Title:     row.Title,
			Reason:    reason,
			SourceURL: sourceURL,
			Provider:  provider,
		}, nil
	}

	s.canonicalizeURLs(row, content.applyHint)
	row.Company = s.deriveCompany(content.company, row.URL)
	if s.remote.IsRemoteCompany(row.Company) {
		row.Remote = true
	}

	return row, nil, nil
}

// classify returns the ignore reason for rows that should not be stored.
func (s *Service) classify(row *models.JobRow, body string) (models.IgnoredReason, bool) {
	probe := truncateRunes(body, 600)
	if errorLandingRe.MatchString(row.Title) || errorLandingRe.MatchString(probe) {
		return models.IgnoredErrorLanding, true
	}
	if s.isListingPage(row.URL, row.Title, probe) {
		return models.IgnoredListingPage, true
	}
	if !s.titleAllowed(row.Title) {
		return models.IgnoredMissingKeyword, true
	}
	if !s.locationAllowed(row) {
		return models.IgnoredFiltered, true
	}
	return "", false
}

func (s *Service) isListingPage(jobURL, title, bodyHead string) bool {
	if handler := s.registry.ForURL(jobURL); handler != nil && handler.IsListingURL(jobURL) {
		return true
	}
	return listingChromeRe.MatchString(title) || listingChromeRe.MatchString(bodyHead)
}

func (s *Service) titleAllowed(title string) bool {
	t := strings.ToLower(strings.TrimSpace(title))
	if t == "" {
		return s.filters.AllowUnknownTitle
	}
	if len(s.filters.RequiredTitleKeywords) == 0 {
		return true
	}
	for _, kw := range s.filters.RequiredTitleKeywords {
		if kw != "" && strings.Contains(t, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// locationAllowed applies the US-only policy. A parsed non-USD currency
// counts against a row whose location never affirmatively places it in the
// US.
func (s *Service) locationAllowed(row *models.JobRow) bool {
	if !s.filters.USOnly {
		return true
	}
	locText := strings.TrimSpace(row.Location + " " + strings.Join(row.Locations, " "))
	if containsAnyFold(locText, s.filters.NonUSTerms) {
		return false
	}
	if locationLooksUS(locText) {
		return true
	}
	if row.CurrencyCode != "" && row.CurrencyCode != "USD" {
		return false
	}
	return s.filters.AllowUnknownLocation
}

// canonicalizeURLs prefers the marketing URL as the row key and keeps the
// boards-api form as the apply URL.
func (s *Service) canonicalizeURLs(row *models.JobRow, applyHint string) {
	if marketing, err := s.greenhouse.APIToMarketingURL(row.URL); err == nil {
		row.ApplyURL = row.URL
		if applyHint != "" {
			row.URL = applyHint
		} else {
			row.URL = marketing
		}
		return
	}
	if apiURL, err := s.greenhouse.MarketingToAPIURL(row.URL); err == nil {
		row.ApplyURL = apiURL
	}
}

// deriveCompany prefers the payload value, then the greenhouse board slug,
// then the bare host with careers prefixes and the TLD trimmed.
func (s *Service) deriveCompany(payloadCompany, jobURL string) string {
	if c := strings.TrimSpace(payloadCompany); c != "" {
		return c
	}
	parsed, err := url.Parse(jobURL)
	if err != nil || parsed.Hostname() == "" {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")

	if strings.HasSuffix(host, "greenhouse.io") {
		if len(segments) >= 3 && segments[0] == "v1" && segments[1] == "boards" {
			return capitalize(segments[2])
		}
		if len(segments) >= 1 && segments[0] != "" {
			return capitalize(segments[0])
		}
		return ""
	}

	for _, prefix := range []string{"careers.", "jobs.", "boards.", "apply.", "work.", "www."} {
		host = strings.TrimPrefix(host, prefix)
	}
	if i := strings.Index(host, "."); i > 0 {
		host = host[:i]
	}
	return capitalize(host)
}

func capitalize(s string) string {
	if s == "" {
		return ""
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// extractContent decodes whatever structure the fragment carries. Provider
// adapters do not always tag JSON bodies as JSON: greenhouse API responses
// fetched as raw_html arrive as JSON text in the HTML field.
func (s *Service) extractContent(frag models.Fragment, jobURL string) extracted {
	if raw := jsonBody(frag); raw != nil {
		if out, ok := s.extractStructured(raw, jobURL); ok {
			return out
		}
	}

	var out extracted
	if frag.RawHTML != "" {
		out.ld = parseJobPostingLD(frag.RawHTML)
		out.markdown = s.htmlToMarkdown(frag.RawHTML, jobURL)
		return out
	}
	out.ld = parseJobPostingLD(frag.Markdown)
	out.markdown = frag.Markdown
	return out
}

func jsonBody(frag models.Fragment) json.RawMessage {
	if len(frag.JSON) > 0 {
		return frag.JSON
	}
	for _, text := range []string{frag.RawHTML, frag.Markdown} {
		trimmed := strings.TrimSpace(text)
		if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
			return json.RawMessage(trimmed)
		}
	}
	return nil
}

func (s *Service) extractStructured(raw json.RawMessage, jobURL string) (extracted, bool) {
	var detail greenhouseDetail
	if err := json.Unmarshal(raw, &detail); err == nil && (detail.Content != "" || detail.AbsoluteURL != "") {
		unescaped := html.UnescapeString(detail.Content)
		out := extracted{
			title:     detail.Title,
			company:   detail.CompanyName,
			location:  detail.Location.Name,
			applyHint: detail.AbsoluteURL,
			markdown:  s.htmlToMarkdown(unescaped, jobURL),
			ld:        parseJobPostingLD(unescaped),
		}
		if detail.Location.Name != "" {
			out.locations = append(out.locations, detail.Location.Name)
		}
		for _, office := range detail.Offices {
			if office.Name != "" && office.Name != detail.Location.Name {
				out.locations = append(out.locations, office.Name)
			}
		}
		if len(out.locations) < 2 {
			out.locations = nil
		}
		out.postedAt = parseDateMs(detail.FirstPublished)
		if out.postedAt == 0 {
			out.postedAt = parseDateMs(detail.UpdatedAt)
		}
		return out, true
	}

	var row templateRow
	if err := json.Unmarshal(raw, &row); err == nil && (row.Title != "" || row.Description != "") {
		out := extracted{
			title:    row.Title,
			company:  row.Company,
			location: row.Location,
		}
		if looksLikeHTML(row.Description) {
			out.markdown = s.htmlToMarkdown(html.UnescapeString(row.Description), jobURL)
		} else {
			out.markdown = row.Description
		}
		if row.Compensation != "" {
			out.comp = ParseCompensation(row.Compensation)
		}
		out.postedAt = parseDateMs(row.PostedAt)
		if out.postedAt == 0 {
			out.postedAt = parseDateMs(row.Date)
		}
		return out, true
	}

	return extracted{}, false
}

// boardListing is the greenhouse board JSON shape listings arrive in.
type boardListing struct {
	Jobs []struct {
		ID          int64  `json:"id"`
		Title       string `json:"title"`
		AbsoluteURL string `json:"absolute_url"`
	} `json:"jobs"`
}

// FilterListingEntries drops listing entries whose board title fails the
// keyword policy before their detail URLs are ever queued. Payloads without
// resolvable titles pass everything through untouched.
func (s *Service) FilterListingEntries(payload string, urls []string, sourceURL string, provider models.ProviderKind) ([]string, []models.IgnoredJob) {
	if len(urls) == 0 {
		return urls, nil
	}
	trimmed := strings.TrimSpace(payload)
	if !strings.HasPrefix(trimmed, "{") {
		return urls, nil
	}
	var listing boardListing
	if err := json.Unmarshal([]byte(trimmed), &listing); err != nil || len(listing.Jobs) == 0 {
		return urls, nil
	}

	byID := make(map[string]string, len(listing.Jobs))
	byURL := make(map[string]string, len(listing.Jobs))
	for _, job := range listing.Jobs {
		byID[strconv.FormatInt(job.ID, 10)] = job.Title
		if job.AbsoluteURL != "" {
			byURL[job.AbsoluteURL] = job.Title
		}
	}

	kept := urls[:0:0]
	var dropped []models.IgnoredJob
	for _, u := range urls {
		title, ok := byURL[u]
		if !ok {
			title, ok = byID[trailingSegment(u)]
		}
		if !ok || s.titleAllowed(title) {
			kept = append(kept, u)
			continue
		}
		dropped = append(dropped, models.IgnoredJob{
			URL:       u,
			Title:     title,
			Reason:    models.IgnoredListingPayload,
			SourceURL: sourceURL,
			Provider:  provider,
		})
	}
	if len(dropped) > 0 {
		s.logger.Debug().
			Str("source_url", sourceURL).
			Int("kept", len(kept)).
			Int("dropped", len(dropped)).
			Msg("Listing entries filtered by title keyword")
	}
	return kept, dropped
}

func trailingSegment(rawURL string) string {
	trimmed := strings.TrimRight(rawURL, "/")
	i := strings.LastIndex(trimmed, "/")
	if i < 0 {
		return ""
	}
	return trimmed[i+1:]
}
