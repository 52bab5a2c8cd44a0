package models

import "encoding/json"

// ProviderKind identifies a scrape-provider backend.
type ProviderKind string

const (
	ProviderSpiderCloud ProviderKind = "spidercloud"
	ProviderFirecrawl   ProviderKind = "firecrawl"
	ProviderFetchFox    ProviderKind = "fetchfox"
)

// Valid reports whether the kind names a supported backend.
func (p ProviderKind) Valid() bool {
	switch p {
	case ProviderSpiderCloud, ProviderFirecrawl, ProviderFetchFox:
		return true
	}
	return false
}

// ReturnFormat is the content shape a handler asks the provider for.
type ReturnFormat string

const (
	ReturnFormatRawHTML    ReturnFormat = "raw_html"
	ReturnFormatCommonmark ReturnFormat = "commonmark"
	ReturnFormatJSON       ReturnFormat = "json"
)

// RequestProfile selects the provider-side fetch engine.
type RequestProfile string

const (
	RequestProfileBasic  RequestProfile = "basic"
	RequestProfileSmart  RequestProfile = "smart"
	RequestProfileChrome RequestProfile = "chrome"
)

// ProxyKind is the network egress class used for captcha retries.
type ProxyKind string

const (
	ProxyResidential ProxyKind = "residential"
	ProxyISP         ProxyKind = "isp"
)

// CaptchaProxySequence is the ordered egress sequence tried after a captcha
// marker is detected; its length bounds the retry count.
var CaptchaProxySequence = []ProxyKind{ProxyResidential, ProxyISP}

// FetchHints is the small configuration object a site handler hands the
// provider adapter. Handlers are pure; hints are the only channel through
// which per-family fetch behavior reaches a provider.
type FetchHints struct {
	ReturnFormat             ReturnFormat   `json:"returnFormat,omitempty"`
	RequestProfile           RequestProfile `json:"requestProfile,omitempty"`
	FollowRedirects          bool           `json:"followRedirects"`
	PreserveHost             bool           `json:"preserveHost"`
	WaitForSelector          string         `json:"waitForSelector,omitempty"` // SPA pages
	ExtractPaginationFromDOM bool           `json:"extractPaginationFromDom"`
}

// FragmentFormat tags the shape of a provider-emitted fragment.
type FragmentFormat string

const (
	FragmentMarkdown FragmentFormat = "markdown"
	FragmentHTML     FragmentFormat = "html"
	FragmentJSON     FragmentFormat = "json"
)

// Fragment is one provider-emitted unit for a single URL: markdown, raw
// HTML, or a JSON body, plus per-fragment cost accounting. Unknown provider
// fields ride along in Extra for debuggability.
type Fragment struct {
	URL            string                     `json:"url"`
	Format         FragmentFormat             `json:"format"`
	Markdown       string                     `json:"markdown,omitempty"`
	RawHTML        string                     `json:"rawHtml,omitempty"`
	JSON           json.RawMessage            `json:"json,omitempty"`
	CreditsUsed    float64                    `json:"creditsUsed,omitempty"`
	CostMicroCents int64                      `json:"costMicroCents,omitempty"`
	Extra          map[string]json.RawMessage `json:"extra,omitempty"`
}

// CaptureExtra returns the fields of raw not named in known. Provider
// payload shapes drift; the remainder bag keeps what typed decoding drops.
func CaptureExtra(raw []byte, known ...string) map[string]json.RawMessage {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil
	}
	return all
}
