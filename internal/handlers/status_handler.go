package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/scheduler"
)

// StatusHandler assembles the pipeline snapshot served at /api/status.
type StatusHandler struct {
	store  interfaces.StoreManager
	sched  *scheduler.Scheduler
	logger arbor.ILogger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(store interfaces.StoreManager, sched *scheduler.Scheduler, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		store:  store,
		sched:  sched,
		logger: logger,
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	ctx := r.Context()

	// The queue read clips at 500 rows per status, so large counts report
	// as 500. Enough to tell "idle" from "backed up" at a glance.
	queue := make(map[string]int, 4)
	for _, status := range []models.QueueStatus{
		models.QueueStatusPending,
		models.QueueStatusProcessing,
		models.QueueStatusCompleted,
		models.QueueStatusFailed,
	} {
		rows, err := h.store.URLQueue().ListQueuedScrapeURLs(ctx, models.ListQueuedScrapeURLsRequest{
			Status: status,
			Limit:  500,
		})
		if err != nil {
			h.logger.Error().Err(err).Str("queue_status", string(status)).Msg("Queue read failed")
			WriteError(w, http.StatusInternalServerError, "queue read failed")
			return
		}
		queue[string(status)] = len(rows)
	}

	pendingWebhooks, err := h.store.Webhooks().ListPendingWebhooks(ctx, 100)
	if err != nil {
		h.logger.Error().Err(err).Msg("Webhook read failed")
		WriteError(w, http.StatusInternalServerError, "webhook read failed")
		return
	}

	pendingDetails, err := h.store.Heuristics().CountPendingJobDetails(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Pending job detail count failed")
		WriteError(w, http.StatusInternalServerError, "enrichment read failed")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"timestamp": time.Now(),
		"queue":     queue,
		"webhooks": map[string]int{
			"pending": len(pendingWebhooks),
		},
		"enrichment": map[string]int{
			"pending_job_details": pendingDetails,
		},
		"scheduler": h.sched.JobStatuses(),
	})
}
