package providers

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// Selector resolves which adapter serves a site. A declared provider is
// honored or rejected, never silently substituted: the three backends have
// different correctness semantics and a quiet fallback would mask a broken
// deployment.
type Selector struct {
	spider    *SpiderCloud
	firecrawl *Firecrawl
	fetchfox  *FetchFox
	logger    arbor.ILogger
}

// NewSelector wires the three adapters behind the selection policy.
func NewSelector(spider *SpiderCloud, firecrawl *Firecrawl, fetchfox *FetchFox, logger arbor.ILogger) *Selector {
	return &Selector{
		spider:    spider,
		firecrawl: firecrawl,
		fetchfox:  fetchfox,
		logger:    logger,
	}
}

// Firecrawl exposes the batch adapter for the webhook reconciler, which
// needs status and materialisation calls beyond the Provider contract.
func (s *Selector) Firecrawl() *Firecrawl { return s.firecrawl }

// ByKind returns the adapter for a queue row's recorded provider. Missing
// credentials are a configuration failure, not a retry.
func (s *Selector) ByKind(kind models.ProviderKind) (interfaces.Provider, error) {
	var p interfaces.Provider
	switch kind {
	case models.ProviderSpiderCloud:
		p = s.spider
	case models.ProviderFirecrawl:
		p = s.firecrawl
	case models.ProviderFetchFox:
		p = s.fetchfox
	default:
		return nil, &ConfigError{Provider: string(kind), Message: "unknown provider kind"}
	}
	if !p.Configured() {
		return nil, &ConfigError{Provider: string(kind), Message: "no credential configured"}
	}
	return p, nil
}

// ForSite picks the adapter for a site run. Declared providers must be
// credentialed. Undeclared sites default by family: greenhouse boards to the
// streaming adapter, everything else to the batch adapter when a webhook
// ingress exists, then the template crawler, then whatever has credentials.
func (s *Selector) ForSite(site models.Site) (interfaces.Provider, error) {
	if site.ScrapeProvider != "" {
		return s.ByKind(site.ScrapeProvider)
	}

	if site.SiteType == models.SiteTypeGreenhouse && s.spider.Configured() {
		return s.spider, nil
	}
	if s.firecrawl.Configured() && s.firecrawl.WebhookConfigured() {
		return s.firecrawl, nil
	}
	if s.fetchfox.Configured() {
		return s.fetchfox, nil
	}
	for _, p := range []interfaces.Provider{s.spider, s.firecrawl, s.fetchfox} {
		if p.Configured() {
			s.logger.Debug().
				Str("site", site.Name).
				Str("provider", string(p.Kind())).
				Msg("Falling back to first credentialed provider")
			return p, nil
		}
	}
	return nil, &ConfigError{
		Provider: "providers",
		Message:  fmt.Sprintf("no provider credentials configured for site %s", site.Name),
	}
}
