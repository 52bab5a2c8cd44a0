package normalizer

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// HeuristicPattern is one entry in the ordered regex library shared by the
// normalizer and the enrichment pass. Name keys the learned-heuristic record
// when a pattern wins on a row.
type HeuristicPattern struct {
	Name string
	Re   *regexp.Regexp

	// Currency and Multiplier apply to compensation patterns only.
	Currency   string
	Multiplier float64
}

var usStateNames = []string{
	"Alabama", "Alaska", "Arizona", "Arkansas", "California", "Colorado",
	"Connecticut", "Delaware", "Florida", "Georgia", "Hawaii", "Idaho",
	"Illinois", "Indiana", "Iowa", "Kansas", "Kentucky", "Louisiana",
	"Maine", "Maryland", "Massachusetts", "Michigan", "Minnesota",
	"Mississippi", "Missouri", "Montana", "Nebraska", "Nevada",
	"New Hampshire", "New Jersey", "New Mexico", "New York",
	"North Carolina", "North Dakota", "Ohio", "Oklahoma", "Oregon",
	"Pennsylvania", "Rhode Island", "South Carolina", "South Dakota",
	"Tennessee", "Texas", "Utah", "Vermont", "Virginia", "Washington",
	"West Virginia", "Wisconsin", "Wyoming",
}

var usStateCodes = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true, "CO": true,
	"CT": true, "DE": true, "FL": true, "GA": true, "HI": true, "ID": true,
	"IL": true, "IN": true, "IA": true, "KS": true, "KY": true, "LA": true,
	"ME": true, "MD": true, "MA": true, "MI": true, "MN": true, "MS": true,
	"MO": true, "MT": true, "NE": true, "NV": true, "NH": true, "NJ": true,
	"NM": true, "NY": true, "NC": true, "ND": true, "OH": true, "OK": true,
	"OR": true, "PA": true, "RI": true, "SC": true, "SD": true, "TN": true,
	"TX": true, "UT": true, "VT": true, "VA": true, "WA": true, "WV": true,
	"WI": true, "WY": true, "DC": true,
}

var usCityHints = []string{
	"new york", "san francisco", "seattle", "austin", "boston", "chicago",
	"denver", "atlanta", "los angeles", "san jose", "san diego", "portland",
	"washington", "raleigh", "durham", "nashville", "miami", "phoenix",
	"salt lake city", "minneapolis", "pittsburgh", "philadelphia",
	"mountain view", "palo alto", "menlo park", "sunnyvale", "redwood city",
	"bellevue", "redmond", "brooklyn", "oakland", "boulder", "cambridge",
}

var usTerms = []string{
	"united states", "usa", "u.s.", "us only", "us-based", "us based",
	"remote - us", "remote (us", "remote, us", "anywhere in the us",
	"america",
}

var (
	usZipRe = regexp.MustCompile(`\b[0-9]{5}(?:-[0-9]{4})?\b`)
	// Two-letter state codes only count in comma context or as a trailing
	// token so that ordinary words like "in" or "or" never match.
	usStateCodeRe = regexp.MustCompile(`,\s*([A-Z]{2})\b|\b([A-Z]{2})$`)

	// Currency markers that contradict a US location when nothing else
	// places the role in the US.
	nonUSCurrencyRe = regexp.MustCompile(`(?i)[₹£€]|\b(INR|GBP|EUR|AUD|CAD)\b`)
)

var (
	stateNameRe = regexp.MustCompile(`(?i)\b(` + strings.Join(usStateNames, "|") + `)\b`)

	levelRe  = regexp.MustCompile(`(?i)\b(sr\.?|senior|staff|principal|lead|manager|director|vp|cto|chief|intern(?:ship)?|junior|jr\.?|mid[- ]?level|intermediate)\b`)
	remoteRe = regexp.MustCompile(`(?i)\b(remote(?:-first)?|hybrid|on-?site)\b`)

	datePostedRe = regexp.MustCompile(`"datePosted"\s*:\s*"([^"]+)"`)

	errorLandingRe  = regexp.MustCompile(`(?i)\b404\b|page not found|can.?t find|cannot find|could not be found|no longer (?:available|active|exists)|position has been (?:closed|filled)`)
	listingChromeRe = regexp.MustCompile(`(?i)open positions|search for opportunities`)
)

// locationHeuristics is the ordered location regex library. Earlier entries
// win; each captures the location text in group 1.
var locationHeuristics = []HeuristicPattern{
	{
		Name: "location_label",
		Re:   regexp.MustCompile(`(?im)^\s*(?:[-*>]\s*)?\*{0,2}_{0,2}location\*{0,2}_{0,2}\s*[:\x{00b7}-]\s*(.+?)\s*$`),
	},
	{
		Name: "city_state_line",
		Re: regexp.MustCompile(`(?m)^\s*\*{0,2}([A-Z][A-Za-z.'\- ]+,\s*(?:[A-Z]{2}|` +
			strings.Join(usStateNames, "|") + `))\*{0,2}\s*$`),
	},
	{
		Name: "city_state_paren",
		Re:   regexp.MustCompile(`\(([A-Z][A-Za-z.'\- ]+,\s*[A-Z]{2})\)`),
	},
	{
		Name: "parenthetical",
		Re:   regexp.MustCompile(`\(([A-Z][A-Za-z.'\- ]{2,40})\)`),
	},
}

// compensationHeuristics is the ordered compensation regex library. Group 1
// and 2 capture the range bounds; group 1 may be empty for single values.
var compensationHeuristics = []HeuristicPattern{
	{
		Name:       "usd_range",
		Re:         regexp.MustCompile(`\$\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*(?:-|\x{2013}|\x{2014}|to)\s*\$?\s*([0-9][0-9,]*(?:\.[0-9]+)?)`),
		Currency:   "USD",
		Multiplier: 1,
	},
	{
		Name:       "inr_range",
		Re:         regexp.MustCompile(`\x{20b9}\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*(?:-|\x{2013}|\x{2014}|to)\s*\x{20b9}?\s*([0-9][0-9,]*(?:\.[0-9]+)?)`),
		Currency:   "INR",
		Multiplier: 1,
	},
	{
		Name:       "k_range",
		Re:         regexp.MustCompile(`(?i)\$?\b([0-9]+(?:\.[0-9]+)?)\s*k\b\s*(?:-|\x{2013}|\x{2014}|to)\s*\$?\s*([0-9]+(?:\.[0-9]+)?)\s*k\b`),
		Currency:   "USD",
		Multiplier: 1000,
	},
	{
		Name:       "inr_lpa",
		Re:         regexp.MustCompile(`(?i)\b(?:([0-9]+(?:\.[0-9]+)?)\s*(?:-|\x{2013}|\x{2014}|to)\s*)?([0-9]+(?:\.[0-9]+)?)\s*(?:lpa|lakhs?)\b`),
		Currency:   "INR",
		Multiplier: 100000,
	},
}

// LocationHeuristics returns the ordered location regex library.
func LocationHeuristics() []HeuristicPattern { return locationHeuristics }

// CompensationHeuristics returns the ordered compensation regex library.
func CompensationHeuristics() []HeuristicPattern { return compensationHeuristics }

// compRange is a parsed compensation range plus the pattern that matched.
type compRange struct {
	Midpoint int64
	Currency string
	Pattern  string
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseCompensation runs the compensation library over text and returns the
// first match, or nil.
func ParseCompensation(text string) *compRange {
	for _, p := range compensationHeuristics {
		m := p.Re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		lo, loOK := parseNumber(m[1])
		hi, hiOK := parseNumber(m[2])
		if !hiOK {
			continue
		}
		if !loOK {
			lo = hi
		}
		mid := math.Round((lo + hi) / 2 * p.Multiplier)
		if mid <= 0 {
			continue
		}
		return &compRange{Midpoint: int64(mid), Currency: p.Currency, Pattern: p.Name}
	}
	return nil
}

// ParseLocations runs the location library over text and returns matches
// from the first pattern that produces any, with the pattern name.
func ParseLocations(text string) ([]string, string) {
	for _, p := range locationHeuristics {
		var out []string
		seen := map[string]bool{}
		for _, m := range p.Re.FindAllStringSubmatch(text, 6) {
			loc := strings.TrimSpace(m[1])
			if loc == "" || seen[loc] {
				continue
			}
			if p.Name == "parenthetical" && !looksLikeLocation(loc) {
				continue
			}
			seen[loc] = true
			out = append(out, loc)
		}
		if len(out) > 0 {
			return out, p.Name
		}
	}
	return nil, ""
}

// looksLikeLocation gates the generic parenthetical pattern: the captured
// text must carry a recognisable place or work-mode signal.
func looksLikeLocation(s string) bool {
	lower := strings.ToLower(s)
	if remoteRe.MatchString(s) {
		return true
	}
	if stateNameRe.MatchString(s) || usStateCodeRe.MatchString(s) {
		return true
	}
	for _, city := range usCityHints {
		if strings.Contains(lower, city) {
			return true
		}
	}
	for _, term := range usTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// locationLooksUS reports whether the text affirmatively places a role in
// the United States.
func locationLooksUS(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, term := range usTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	if usZipRe.MatchString(text) {
		return true
	}
	if m := usStateCodeRe.FindStringSubmatch(text); m != nil {
		code := m[1]
		if code == "" {
			code = m[2]
		}
		if usStateCodes[code] {
			return true
		}
	}
	if stateNameRe.MatchString(text) {
		return true
	}
	for _, city := range usCityHints {
		if strings.Contains(lower, city) {
			return true
		}
	}
	return false
}

func containsAnyFold(text string, terms []string) bool {
	lower := strings.ToLower(text)
	for _, t := range terms {
		if t != "" && strings.Contains(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

// normalizeLevel maps a raw seniority token to the canonical enum.
func normalizeLevel(text string) string {
	m := levelRe.FindString(text)
	if m == "" {
		return ""
	}
	switch strings.TrimRight(strings.ToLower(m), ".") {
	case "sr", "senior":
		return "senior"
	case "staff", "principal", "lead", "manager", "director", "vp", "cto", "chief":
		return "staff"
	case "intern", "internship":
		return "intern"
	case "junior", "jr":
		return "junior"
	default:
		return "mid"
	}
}

// remoteFlag returns (remote, found). Hybrid and onsite are explicit
// non-remote signals.
func remoteFlag(text string) (bool, bool) {
	m := remoteRe.FindString(text)
	if m == "" {
		return false, false
	}
	return strings.HasPrefix(strings.ToLower(m), "remote"), true
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123,
	time.RFC1123Z,
}

// parseDateMs parses a posted-at string into epoch milliseconds, 0 on
// failure.
func parseDateMs(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli()
		}
	}
	return 0
}

// jobPostingLD is the subset of a schema.org JobPosting block the pipeline
// reads. Salary values arrive as numbers, strings, or QuantitativeValue
// objects depending on the site.
type jobPostingLD struct {
	Title      string
	DatePosted string
	Currency   string
	MinValue   float64
	MaxValue   float64
	UnitText   string
}

var ldScriptRe = regexp.MustCompile(`(?is)<script[^>]*type\s*=\s*["']application/ld\+json["'][^>]*>(.*?)</script>`)

func coerceFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, _ := strconv.ParseFloat(strings.ReplaceAll(x, ",", ""), 64)
		return f
	}
	return 0
}

func coerceString(v any) string {
	s, _ := v.(string)
	return s
}

func decodeJobPostingLD(raw []byte) *jobPostingLD {
	var node map[string]any
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil
	}
	if graph, ok := node["@graph"].([]any); ok {
		for _, item := range graph {
			b, err := json.Marshal(item)
			if err != nil {
				continue
			}
			if ld := decodeJobPostingLD(b); ld != nil {
				return ld
			}
		}
		return nil
	}
	if !strings.EqualFold(coerceString(node["@type"]), "JobPosting") {
		return nil
	}

	ld := &jobPostingLD{
		Title:      coerceString(node["title"]),
		DatePosted: coerceString(node["datePosted"]),
		Currency:   coerceString(node["salaryCurrency"]),
	}
	if salary, ok := node["baseSalary"].(map[string]any); ok {
		if cur := coerceString(salary["currency"]); cur != "" {
			ld.Currency = cur
		}
		switch value := salary["value"].(type) {
		case map[string]any:
			ld.MinValue = coerceFloat(value["minValue"])
			ld.MaxValue = coerceFloat(value["maxValue"])
			ld.UnitText = coerceString(value["unitText"])
			if ld.MinValue == 0 && ld.MaxValue == 0 {
				ld.MinValue = coerceFloat(value["value"])
				ld.MaxValue = ld.MinValue
			}
		default:
			ld.MinValue = coerceFloat(value)
			ld.MaxValue = ld.MinValue
		}
	}
	return ld
}

// parseJobPostingLD scans text for JSON-LD script blocks and returns the
// first JobPosting found. Blocks holding arrays are scanned element-wise.
func parseJobPostingLD(text string) *jobPostingLD {
	for _, m := range ldScriptRe.FindAllStringSubmatch(text, 5) {
		body := strings.TrimSpace(m[1])
		if body == "" {
			continue
		}
		if body[0] == '[' {
			var items []json.RawMessage
			if err := json.Unmarshal([]byte(body), &items); err != nil {
				continue
			}
			for _, item := range items {
				if ld := decodeJobPostingLD(item); ld != nil {
					return ld
				}
			}
			continue
		}
		if ld := decodeJobPostingLD([]byte(body)); ld != nil {
			return ld
		}
	}
	return nil
}

// ldCompensation converts a JobPosting salary into a compRange. Non-annual
// units are rejected so hourly rates never masquerade as total comp.
func ldCompensation(ld *jobPostingLD) *compRange {
	if ld == nil || (ld.MinValue == 0 && ld.MaxValue == 0) {
		return nil
	}
	unit := strings.ToUpper(strings.TrimSpace(ld.UnitText))
	if unit != "" && unit != "YEAR" {
		return nil
	}
	lo, hi := ld.MinValue, ld.MaxValue
	if lo == 0 {
		lo = hi
	}
	if hi == 0 {
		hi = lo
	}
	mid := math.Round((lo + hi) / 2)
	if mid <= 0 {
		return nil
	}
	currency := strings.ToUpper(strings.TrimSpace(ld.Currency))
	if currency == "" {
		currency = "USD"
	}
	return &compRange{Midpoint: int64(mid), Currency: currency, Pattern: "jsonld_base_salary"}
}
