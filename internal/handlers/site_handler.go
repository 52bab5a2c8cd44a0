package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// SiteHandler serves the monitored-site listing and the manual trigger.
type SiteHandler struct {
	store  interfaces.StoreManager
	logger arbor.ILogger
}

// NewSiteHandler creates a new SiteHandler
func NewSiteHandler(store interfaces.StoreManager, logger arbor.ILogger) *SiteHandler {
	return &SiteHandler{
		store:  store,
		logger: logger,
	}
}

// ListSitesHandler handles GET /api/sites. Optional query params: enabled
// (true/false), type (site type), limit.
func (h *SiteHandler) ListSitesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	req := models.ListSitesRequest{}
	if raw := r.URL.Query().Get("enabled"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "enabled must be true or false")
			return
		}
		req.Enabled = &enabled
	}
	if raw := r.URL.Query().Get("type"); raw != "" {
		siteType := models.SiteType(raw)
		if !siteType.Valid() {
			WriteError(w, http.StatusBadRequest, "unknown site type: "+raw)
			return
		}
		req.SiteType = siteType
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
			req.Limit = limit
		}
	}

	sites, err := h.store.Sites().ListSites(r.Context(), req)
	if err != nil {
		h.logger.Error().Err(err).Msg("Site listing failed")
		WriteError(w, http.StatusInternalServerError, "site listing failed")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"sites": sites,
		"count": len(sites),
	})
}

// TriggerSiteHandler handles POST /api/sites/{id}/trigger. The trigger stamps
// the site for pickup on the next lease pass; it does not scrape inline.
func (h *SiteHandler) TriggerSiteHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/sites/")
	id := strings.TrimSuffix(path, "/trigger")
	if id == "" || id == path {
		WriteError(w, http.StatusBadRequest, "site id is required")
		return
	}

	if err := h.store.Sites().TriggerSite(r.Context(), id); err != nil {
		h.logger.Error().Err(err).Str("site_id", id).Msg("Site trigger failed")
		WriteError(w, http.StatusInternalServerError, "site trigger failed")
		return
	}

	h.logger.Info().Str("site_id", id).Msg("Site manually triggered")
	WriteStarted(w, "site queued for next scrape pass")
}
