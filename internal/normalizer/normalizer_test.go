package normalizer

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/sites"
)

func newTestService(filters *common.FilterConfig, remote *common.RemoteCompaniesConfig) *Service {
	return NewService(filters, remote, sites.NewRegistry(), arbor.NewLogger())
}

func greenhouseDetailJSON(t *testing.T, title, content, absoluteURL, location string) models.Fragment {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":              4000123,
		"title":           title,
		"content":         content,
		"absolute_url":    absoluteURL,
		"first_published": "2024-01-15T10:00:00-05:00",
		"location":        map[string]string{"name": location},
	})
	require.NoError(t, err)
	return models.Fragment{
		URL:    "https://boards-api.greenhouse.io/v1/boards/acme/jobs/4000123",
		Format: models.FragmentJSON,
		JSON:   payload,
	}
}

func TestNormalizeGreenhouseDetail(t *testing.T) {
	s := newTestService(nil, nil)

	content := "&lt;div&gt;&lt;h1&gt;Senior Software Engineer&lt;/h1&gt;" +
		"&lt;p&gt;Build data pipelines.&lt;br&gt;Ship weekly.&lt;/p&gt;" +
		"&lt;ul&gt;&lt;li&gt;Go&lt;/li&gt;&lt;li&gt;Distributed systems&lt;/li&gt;&lt;/ul&gt;&lt;/div&gt;"
	frag := greenhouseDetailJSON(t, "Senior Software Engineer", content,
		"https://boards.greenhouse.io/acme/jobs/4000123", "San Francisco, CA")

	row, ignored, err := s.NormalizeFragment(frag, "https://boards-api.greenhouse.io/v1/boards/acme/jobs", models.ProviderSpiderCloud)
	require.NoError(t, err)
	require.Nil(t, ignored)
	require.NotNil(t, row)

	assert.Equal(t, "https://boards.greenhouse.io/acme/jobs/4000123", row.URL)
	assert.Equal(t, "https://boards-api.greenhouse.io/v1/boards/acme/jobs/4000123", row.ApplyURL)
	assert.Equal(t, "Senior Software Engineer", row.Title)
	assert.Equal(t, models.JobLevelSenior, row.Level)
	assert.Equal(t, "San Francisco, CA", row.Location)
	assert.Equal(t, "Acme", row.Company)
	assert.Contains(t, row.Description, "Build data pipelines.")
	assert.Contains(t, row.Description, "Distributed systems")
	assert.NotContains(t, row.Description, "<li>")
	assert.Equal(t, models.ProviderSpiderCloud, row.ScrapedWith)
	assert.NotZero(t, row.PostedAt)
}

func TestNormalizeJSONLDCompensation(t *testing.T) {
	s := newTestService(nil, nil)

	ld := `<script type="application/ld+json">{
		"@type": "JobPosting",
		"title": "Staff Software Engineer",
		"datePosted": "2024-02-01",
		"baseSalary": {
			"@type": "MonetaryAmount",
			"currency": "USD",
			"value": {"@type": "QuantitativeValue", "minValue": 140400, "maxValue": 372300, "unitText": "YEAR"}
		}
	}</script>`
	html := "<html><head>" + ld + "</head><body><h1>Staff Software Engineer</h1><p>Own the platform.</p></body></html>"

	frag := models.Fragment{
		URL:     "https://boards-api.greenhouse.io/v1/boards/acme/jobs/77",
		Format:  models.FragmentHTML,
		RawHTML: html,
	}
	row, ignored, err := s.NormalizeFragment(frag, "https://boards-api.greenhouse.io/v1/boards/acme/jobs", models.ProviderSpiderCloud)
	require.NoError(t, err)
	require.Nil(t, ignored)
	require.NotNil(t, row)

	assert.Equal(t, int64(256350), row.TotalCompensation)
	assert.Equal(t, "USD", row.CurrencyCode)
	assert.False(t, row.CompensationUnknown)
	assert.Equal(t, "https://boards.greenhouse.io/acme/jobs/77", row.URL)
	assert.Equal(t, "https://boards-api.greenhouse.io/v1/boards/acme/jobs/77", row.ApplyURL)
	assert.NotContains(t, row.Description, "ld+json")
}

func TestNormalizeMarkdownHints(t *testing.T) {
	s := newTestService(nil, nil)

	body := strings.Join([]string{
		"# Senior Software Engineer",
		"",
		"Location: New York, NY",
		"",
		"We pay $120k - $150k plus equity. This role is remote.",
	}, "\n")

	row, ignored, err := s.NormalizeFragment(models.Fragment{
		URL:      "https://careers.example.com/jobs/881",
		Format:   models.FragmentMarkdown,
		Markdown: body,
	}, "https://careers.example.com", models.ProviderFetchFox)
	require.NoError(t, err)
	require.Nil(t, ignored)
	require.NotNil(t, row)

	assert.Equal(t, "Senior Software Engineer", row.Title)
	assert.Equal(t, models.JobLevelSenior, row.Level)
	assert.Equal(t, "New York, NY", row.Location)
	assert.True(t, row.Remote)
	assert.Equal(t, int64(135000), row.TotalCompensation)
	assert.Equal(t, "USD", row.CurrencyCode)
	assert.Equal(t, "Example", row.Company)
}

func TestNormalizeKeywordFilter(t *testing.T) {
	s := newTestService(nil, nil)

	row, ignored, err := s.NormalizeFragment(models.Fragment{
		URL:      "https://careers.example.com/jobs/9",
		Format:   models.FragmentMarkdown,
		Markdown: "# Account Executive\n\nSell things in Austin, TX.",
	}, "https://careers.example.com", models.ProviderFetchFox)
	require.NoError(t, err)
	require.Nil(t, row)
	require.NotNil(t, ignored)

	assert.Equal(t, models.IgnoredMissingKeyword, ignored.Reason)
	assert.Equal(t, "Account Executive", ignored.Title)
	assert.Equal(t, "https://careers.example.com/jobs/9", ignored.URL)
}

func TestNormalizeListingPageDrop(t *testing.T) {
	s := newTestService(nil, nil)

	row, ignored, err := s.NormalizeFragment(models.Fragment{
		URL:      "https://careers.confluent.io/jobs/united_states-engineering",
		Format:   models.FragmentMarkdown,
		Markdown: "# Open Positions\n\nOpen Positions / Select Country / United States",
	}, "https://careers.confluent.io", models.ProviderSpiderCloud)
	require.NoError(t, err)
	require.Nil(t, row)
	require.NotNil(t, ignored)
	assert.Equal(t, models.IgnoredListingPage, ignored.Reason)

	// chrome phrase alone is enough even when the URL predicate misses
	row, ignored, err = s.NormalizeFragment(models.Fragment{
		URL:      "https://careers.example.com/jobs/4421",
		Format:   models.FragmentMarkdown,
		Markdown: "# Engineering\n\nSearch for Opportunities by team and location.",
	}, "https://careers.example.com", models.ProviderSpiderCloud)
	require.NoError(t, err)
	require.Nil(t, row)
	require.NotNil(t, ignored)
	assert.Equal(t, models.IgnoredListingPage, ignored.Reason)
}

func TestNormalizeErrorLanding(t *testing.T) {
	s := newTestService(nil, nil)

	row, ignored, err := s.NormalizeFragment(models.Fragment{
		URL:      "https://careers.example.com/jobs/1",
		Format:   models.FragmentMarkdown,
		Markdown: "# 404\n\nSorry, we can't find the page you were looking for.",
	}, "https://careers.example.com", models.ProviderSpiderCloud)
	require.NoError(t, err)
	require.Nil(t, row)
	require.NotNil(t, ignored)
	assert.Equal(t, models.IgnoredErrorLanding, ignored.Reason)
}

func TestNormalizeLocationFilter(t *testing.T) {
	s := newTestService(nil, nil)

	// non-US term in location
	_, ignored, err := s.NormalizeFragment(models.Fragment{
		URL:      "https://careers.example.com/jobs/2",
		Format:   models.FragmentMarkdown,
		Markdown: "# Software Engineer\n\nLocation: London",
	}, "https://careers.example.com", models.ProviderSpiderCloud)
	require.NoError(t, err)
	require.NotNil(t, ignored)
	assert.Equal(t, models.IgnoredFiltered, ignored.Reason)

	// INR compensation with no US signal drops the row
	_, ignored, err = s.NormalizeFragment(models.Fragment{
		URL:      "https://careers.example.com/jobs/3",
		Format:   models.FragmentMarkdown,
		Markdown: "# Software Engineer\n\nCompetitive pay of 15 LPA.",
	}, "https://careers.example.com", models.ProviderSpiderCloud)
	require.NoError(t, err)
	require.NotNil(t, ignored)
	assert.Equal(t, models.IgnoredFiltered, ignored.Reason)

	// US state keeps the row
	row, ignored, err := s.NormalizeFragment(models.Fragment{
		URL:      "https://careers.example.com/jobs/4",
		Format:   models.FragmentMarkdown,
		Markdown: "# Software Engineer\n\nLocation: Austin, TX",
	}, "https://careers.example.com", models.ProviderSpiderCloud)
	require.NoError(t, err)
	require.Nil(t, ignored)
	require.NotNil(t, row)
	assert.Equal(t, "Austin, TX", row.Location)

	// unknown location is allowed by default
	row, ignored, err = s.NormalizeFragment(models.Fragment{
		URL:      "https://careers.example.com/jobs/5",
		Format:   models.FragmentMarkdown,
		Markdown: "# Software Engineer\n\nJoin our distributed team.",
	}, "https://careers.example.com", models.ProviderSpiderCloud)
	require.NoError(t, err)
	require.Nil(t, ignored)
	require.NotNil(t, row)
}

func TestNormalizeEmptyFragment(t *testing.T) {
	s := newTestService(nil, nil)

	row, ignored, err := s.NormalizeFragment(models.Fragment{
		URL:    "https://careers.example.com/jobs/6",
		Format: models.FragmentMarkdown,
	}, "https://careers.example.com", models.ProviderSpiderCloud)
	require.NoError(t, err)
	assert.Nil(t, row)
	assert.Nil(t, ignored)
}

func TestNormalizeRemoteCompanyOverlay(t *testing.T) {
	remote := &common.RemoteCompaniesConfig{Companies: []string{"acme"}}
	s := newTestService(nil, remote)

	frag := greenhouseDetailJSON(t, "Software Engineer",
		"&lt;p&gt;Work on infra.&lt;/p&gt;",
		"https://boards.greenhouse.io/acme/jobs/4000123", "San Francisco, CA")

	row, ignored, err := s.NormalizeFragment(frag, "https://boards-api.greenhouse.io/v1/boards/acme/jobs", models.ProviderSpiderCloud)
	require.NoError(t, err)
	require.Nil(t, ignored)
	require.NotNil(t, row)
	assert.True(t, row.Remote)
}

func TestFilterListingEntries(t *testing.T) {
	s := newTestService(nil, nil)

	type boardJob struct {
		ID          int64  `json:"id"`
		Title       string `json:"title"`
		AbsoluteURL string `json:"absolute_url"`
	}
	jobs := []boardJob{
		{ID: 101, Title: "Senior Software Engineer", AbsoluteURL: "https://boards.greenhouse.io/acme/jobs/101"},
		{ID: 102, Title: "Account Executive", AbsoluteURL: "https://boards.greenhouse.io/acme/jobs/102"},
		{ID: 103, Title: "Backend Developer", AbsoluteURL: "https://boards.greenhouse.io/acme/jobs/103"},
		{ID: 104, Title: "Recruiter", AbsoluteURL: "https://boards.greenhouse.io/acme/jobs/104"},
		{ID: 105, Title: "Head of Sales", AbsoluteURL: "https://boards.greenhouse.io/acme/jobs/105"},
	}
	payload, err := json.Marshal(map[string]any{"jobs": jobs})
	require.NoError(t, err)

	urls := make([]string, 0, len(jobs))
	for _, j := range jobs {
		urls = append(urls, fmt.Sprintf("https://boards-api.greenhouse.io/v1/boards/acme/jobs/%d", j.ID))
	}

	kept, dropped := s.FilterListingEntries(string(payload), urls,
		"https://boards-api.greenhouse.io/v1/boards/acme/jobs", models.ProviderSpiderCloud)

	assert.Equal(t, []string{
		"https://boards-api.greenhouse.io/v1/boards/acme/jobs/101",
		"https://boards-api.greenhouse.io/v1/boards/acme/jobs/103",
	}, kept)
	require.Len(t, dropped, 3)
	for _, d := range dropped {
		assert.Equal(t, models.IgnoredListingPayload, d.Reason)
		assert.NotEmpty(t, d.Title)
		assert.Equal(t, models.ProviderSpiderCloud, d.Provider)
	}
}

func TestFilterListingEntriesPassThrough(t *testing.T) {
	s := newTestService(nil, nil)

	urls := []string{"https://careers.example.com/jobs/1", "https://careers.example.com/jobs/2"}

	kept, dropped := s.FilterListingEntries("<html>anchor soup</html>", urls,
		"https://careers.example.com", models.ProviderSpiderCloud)
	assert.Equal(t, urls, kept)
	assert.Empty(t, dropped)

	// JSON without resolvable titles also passes through
	kept, dropped = s.FilterListingEntries(`{"jobs":[]}`, urls,
		"https://careers.example.com", models.ProviderSpiderCloud)
	assert.Equal(t, urls, kept)
	assert.Empty(t, dropped)
}

func TestParseCompensation(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		midpoint int64
		currency string
	}{
		{name: "usd range", in: "base salary of $140,400–$372,300 per year", midpoint: 256350, currency: "USD"},
		{name: "usd k range", in: "we pay $120k - $150k", midpoint: 135000, currency: "USD"},
		{name: "bare k range", in: "comp band 90k to 110k", midpoint: 100000, currency: "USD"},
		{name: "inr range", in: "₹500,000 - ₹800,000 annually", midpoint: 650000, currency: "INR"},
		{name: "lpa single", in: "offering 15 LPA", midpoint: 1500000, currency: "INR"},
		{name: "lpa range", in: "12 to 18 lakhs", midpoint: 1500000, currency: "INR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp := ParseCompensation(tt.in)
			require.NotNil(t, comp)
			assert.Equal(t, tt.midpoint, comp.Midpoint)
			assert.Equal(t, tt.currency, comp.Currency)
		})
	}

	assert.Nil(t, ParseCompensation("competitive salary and equity"))
}

func TestParseLocations(t *testing.T) {
	locs, pattern := ParseLocations("Some intro\n\nLocation: Denver, CO\n\nBody text")
	require.Equal(t, []string{"Denver, CO"}, locs)
	assert.Equal(t, "location_label", pattern)

	locs, pattern = ParseLocations("# Role\n\nSeattle, WA\n\nDetails follow")
	require.Equal(t, []string{"Seattle, WA"}, locs)
	assert.Equal(t, "city_state_line", pattern)

	locs, pattern = ParseLocations("Senior Engineer (Portland, OR) wanted")
	require.Equal(t, []string{"Portland, OR"}, locs)
	assert.Equal(t, "city_state_paren", pattern)

	locs, _ = ParseLocations("nothing here")
	assert.Empty(t, locs)
}

func TestNormalizeLevelMapping(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Sr. Backend Engineer", want: "senior"},
		{in: "Staff Software Engineer", want: "staff"},
		{in: "Principal Engineer", want: "staff"},
		{in: "Engineering Manager", want: "staff"},
		{in: "Software Engineering Intern", want: "intern"},
		{in: "Junior Developer", want: "junior"},
		{in: "Mid-Level Engineer", want: "mid"},
		{in: "Software Engineer", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeLevel(tt.in), tt.in)
	}
}

func TestCleanTitle(t *testing.T) {
	assert.Equal(t, "Staff Engineer", cleanTitle("Job Application for Staff Engineer at Acme"))
	assert.Equal(t, "Software Engineer", cleanTitle("  Software Engineer "))
}

func TestStripNavChrome(t *testing.T) {
	doc := strings.Join([]string{
		"### Careers",
		"Welcome",
		"Culture",
		"Workplace Benefits",
		"All Jobs",
		"",
		"# Software Engineer",
		"",
		"Location: Chicago, IL",
	}, "\n")

	out := stripNavChrome(doc)
	assert.NotContains(t, out, "Workplace Benefits")
	assert.Contains(t, out, "# Software Engineer")
	assert.Contains(t, out, "Chicago, IL")

	// without the careers heading the doc is untouched
	prose := "Our benefits include:\nBenefits\nCulture\nWelcome packages for all."
	assert.Equal(t, prose, stripNavChrome(prose))
}

func TestDeriveCompany(t *testing.T) {
	s := newTestService(nil, nil)

	assert.Equal(t, "Payload Co", s.deriveCompany("Payload Co", "https://careers.example.com/jobs/1"))
	assert.Equal(t, "Acme", s.deriveCompany("", "https://boards-api.greenhouse.io/v1/boards/acme/jobs/1"))
	assert.Equal(t, "Acme", s.deriveCompany("", "https://boards.greenhouse.io/acme/jobs/1"))
	assert.Equal(t, "Confluent", s.deriveCompany("", "https://careers.confluent.io/jobs/8231"))
	assert.Equal(t, "Example", s.deriveCompany("", "https://www.example.com/roles/2"))
}

func TestParseJobPostingLD(t *testing.T) {
	block := `<script type="application/ld+json">
	{"@graph":[{"@type":"WebSite"},{"@type":"JobPosting","title":"Platform Engineer","datePosted":"2024-03-01","baseSalary":{"currency":"USD","value":{"minValue":"100000","maxValue":"140000","unitText":"YEAR"}}}]}
	</script>`

	ld := parseJobPostingLD(block)
	require.NotNil(t, ld)
	assert.Equal(t, "Platform Engineer", ld.Title)
	assert.Equal(t, "2024-03-01", ld.DatePosted)

	comp := ldCompensation(ld)
	require.NotNil(t, comp)
	assert.Equal(t, int64(120000), comp.Midpoint)
	assert.Equal(t, "USD", comp.Currency)

	// hourly rates never become total comp
	hourly := parseJobPostingLD(`<script type="application/ld+json">{"@type":"JobPosting","baseSalary":{"currency":"USD","value":{"value":70,"unitText":"HOUR"}}}</script>`)
	require.NotNil(t, hourly)
	assert.Nil(t, ldCompensation(hourly))
}
