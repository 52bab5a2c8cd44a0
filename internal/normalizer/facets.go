package normalizer

import (
	"regexp"
	"strings"
)

var usStateByCode = map[string]string{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas",
	"CA": "California", "CO": "Colorado", "CT": "Connecticut", "DE": "Delaware",
	"FL": "Florida", "GA": "Georgia", "HI": "Hawaii", "ID": "Idaho",
	"IL": "Illinois", "IN": "Indiana", "IA": "Iowa", "KS": "Kansas",
	"KY": "Kentucky", "LA": "Louisiana", "ME": "Maine", "MD": "Maryland",
	"MA": "Massachusetts", "MI": "Michigan", "MN": "Minnesota",
	"MS": "Mississippi", "MO": "Missouri", "MT": "Montana", "NE": "Nebraska",
	"NV": "Nevada", "NH": "New Hampshire", "NJ": "New Jersey",
	"NM": "New Mexico", "NY": "New York", "NC": "North Carolina",
	"ND": "North Dakota", "OH": "Ohio", "OK": "Oklahoma", "OR": "Oregon",
	"PA": "Pennsylvania", "RI": "Rhode Island", "SC": "South Carolina",
	"SD": "South Dakota", "TN": "Tennessee", "TX": "Texas", "UT": "Utah",
	"VT": "Vermont", "VA": "Virginia", "WA": "Washington",
	"WV": "West Virginia", "WI": "Wisconsin", "WY": "Wyoming",
	"DC": "District of Columbia",
}

// countryPatterns maps country mentions to canonical names. Short aliases
// are matched on word boundaries so city names never false-positive.
var countryPatterns = []struct {
	re   *regexp.Regexp
	name string
}{
	{regexp.MustCompile(`(?i)\b(united states|usa|u\.s\.a?\.?|america)\b`), "United States"},
	{regexp.MustCompile(`(?i)\bcanada\b`), "Canada"},
	{regexp.MustCompile(`(?i)\b(united kingdom|uk|u\.k\.|england|scotland|wales)\b`), "United Kingdom"},
	{regexp.MustCompile(`(?i)\bindia\b`), "India"},
	{regexp.MustCompile(`(?i)\bgermany\b`), "Germany"},
	{regexp.MustCompile(`(?i)\bfrance\b`), "France"},
	{regexp.MustCompile(`(?i)\bireland\b`), "Ireland"},
	{regexp.MustCompile(`(?i)\b(netherlands|holland)\b`), "Netherlands"},
	{regexp.MustCompile(`(?i)\bspain\b`), "Spain"},
	{regexp.MustCompile(`(?i)\bpoland\b`), "Poland"},
	{regexp.MustCompile(`(?i)\bbrazil\b`), "Brazil"},
	{regexp.MustCompile(`(?i)\bmexico\b`), "Mexico"},
	{regexp.MustCompile(`(?i)\bjapan\b`), "Japan"},
	{regexp.MustCompile(`(?i)\bsingapore\b`), "Singapore"},
	{regexp.MustCompile(`(?i)\baustralia\b`), "Australia"},
}

// DeriveLocationFacets expands parsed location strings into the search
// facets stored on a job row: US state names, country names, lowercase
// search tokens, and a single primary country. The country defaults to
// "United States" when the role is remote or no country could be read from
// the locations.
func DeriveLocationFacets(locations []string, remote bool) (states, countries, tokens []string, country string) {
	seenState := map[string]bool{}
	seenCountry := map[string]bool{}
	seenToken := map[string]bool{}

	addState := func(name string) {
		if name == "" || seenState[name] {
			return
		}
		seenState[name] = true
		states = append(states, name)
	}
	addCountry := func(name string) {
		if name == "" || seenCountry[name] {
			return
		}
		seenCountry[name] = true
		countries = append(countries, name)
	}
	addToken := func(tok string) {
		tok = strings.ToLower(strings.TrimSpace(tok))
		tok = strings.Trim(tok, ".,;()")
		if tok == "" || seenToken[tok] {
			return
		}
		seenToken[tok] = true
		tokens = append(tokens, tok)
	}

	for _, loc := range locations {
		loc = strings.TrimSpace(loc)
		if loc == "" {
			continue
		}

		for _, m := range stateNameRe.FindAllString(loc, -1) {
			addState(canonicalStateName(m))
		}
		if m := usStateCodeRe.FindStringSubmatch(loc); m != nil {
			code := m[1]
			if code == "" {
				code = m[2]
			}
			addState(usStateByCode[code])
		}

		named := false
		for _, cp := range countryPatterns {
			if cp.re.MatchString(loc) {
				addCountry(cp.name)
				named = true
			}
		}
		// A US state or city implies the country even when unnamed.
		if !named && locationLooksUS(loc) {
			addCountry("United States")
		}

		for _, part := range strings.FieldsFunc(loc, func(r rune) bool {
			return r == ',' || r == '/' || r == '|' || r == ';'
		}) {
			addToken(part)
		}
	}
	for _, name := range states {
		addToken(name)
	}

	if len(countries) > 0 {
		country = countries[0]
	}
	if remote || country == "" {
		country = "United States"
		addCountry(country)
	}
	return states, countries, tokens, country
}

// canonicalStateName maps a case-insensitive state-name match back to its
// canonical spelling.
func canonicalStateName(m string) string {
	for _, name := range usStateNames {
		if strings.EqualFold(name, m) {
			return name
		}
	}
	return ""
}
