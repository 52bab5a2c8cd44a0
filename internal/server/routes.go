package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Webhook ingress - asynchronous batch provider callbacks
	mux.HandleFunc("/api/firecrawl/webhook", s.app.WebhookHandler.ReceiveHandler)

	// API routes - Sites
	mux.HandleFunc("/api/sites", s.app.SiteHandler.ListSitesHandler)
	mux.HandleFunc("/api/sites/", s.handleSiteRoutes) // POST /{id}/trigger

	// API routes - Status
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/healthz", s.app.APIHandler.HealthHandler) // probe path without the /api prefix
	mux.HandleFunc("/api/shutdown", s.ShutdownHandler)         // Graceful shutdown endpoint (dev mode)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleSiteRoutes routes /api/sites/{id} subpaths to the appropriate handler
func (s *Server) handleSiteRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	// POST /api/sites/{id}/trigger
	if strings.HasSuffix(path, "/trigger") {
		s.app.SiteHandler.TriggerSiteHandler(w, r)
		return
	}

	http.Error(w, "Not found", http.StatusNotFound)
}
