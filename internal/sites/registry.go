package sites

import (
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// Registry resolves the handler for a site or URL. An explicit site type
// always wins; otherwise the first handler whose host/path predicate
// matches is used, with the generic handler as the tail.
type Registry struct {
	handlers []interfaces.SiteHandler
	byType   map[models.SiteType]interfaces.SiteHandler
	generic  interfaces.SiteHandler
}

// NewRegistry builds the registry with every family handler in match order.
func NewRegistry() *Registry {
	generic := NewGenericHandler()
	ordered := []interfaces.SiteHandler{
		NewGreenhouseHandler(),
		NewAshbyHandler(),
		NewGitHubCareersHandler(),
		NewAvatureHandler(),
		NewWorkdayHandler(),
		NewOpenAIHandler(),
		NewNetflixHandler(),
		NewUberHandler(),
		NewCiscoHandler(),
		NewConfluentHandler(),
		NewDocusignHandler(),
		NewNotionHandler(),
	}

	byType := make(map[models.SiteType]interfaces.SiteHandler, len(ordered)+1)
	for _, h := range ordered {
		byType[h.SiteType()] = h
	}
	byType[generic.SiteType()] = generic

	return &Registry{
		handlers: ordered,
		byType:   byType,
		generic:  generic,
	}
}

// ForSite returns the handler for a site's declared type, falling back to
// URL matching when the type is empty or unknown.
func (r *Registry) ForSite(site models.Site) interfaces.SiteHandler {
	if site.SiteType != "" {
		if h, ok := r.byType[site.SiteType]; ok {
			return h
		}
	}
	return r.ForURL(site.URL)
}

// ForURL returns the first handler whose predicate accepts the URL, or the
// generic handler.
func (r *Registry) ForURL(url string) interfaces.SiteHandler {
	for _, h := range r.handlers {
		if h.MatchesURL(url) {
			return h
		}
	}
	return r.generic
}

// Handler returns the handler registered for a site type, nil if unknown.
func (r *Registry) Handler(t models.SiteType) interfaces.SiteHandler {
	return r.byType[t]
}
