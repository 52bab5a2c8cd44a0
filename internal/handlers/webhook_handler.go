package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/services/webhook"
)

// webhookMaxBody caps the callback body read; batch results are fetched from
// the status API, so the callback itself only needs the envelope.
const webhookMaxBody = 1 << 20

// firecrawlCallback is the envelope the batch provider POSTs to the webhook
// URL. Newer callbacks carry the event kind in "type", older ones in "event".
type firecrawlCallback struct {
	Success  bool                   `json:"success"`
	Type     string                 `json:"type"`
	Event    string                 `json:"event"`
	ID       string                 `json:"id"`
	Metadata models.WebhookMetadata `json:"metadata"`
	Error    string                 `json:"error"`
}

func (c *firecrawlCallback) kind() string {
	if c.Type != "" {
		return c.Type
	}
	return c.Event
}

// WebhookHandler receives asynchronous batch callbacks and hands them to the
// reconciler.
type WebhookHandler struct {
	reconciler *webhook.Reconciler
	logger     arbor.ILogger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(reconciler *webhook.Reconciler, logger arbor.ILogger) *WebhookHandler {
	return &WebhookHandler{
		reconciler: reconciler,
		logger:     logger,
	}
}

// ReceiveHandler handles POST /api/firecrawl/webhook. Processing is
// idempotent, so a 5xx here is safe: the provider retries and the repeat
// delivery no-ops against a row that is already terminal.
func (h *WebhookHandler) ReceiveHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, webhookMaxBody))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var callback firecrawlCallback
	if err := json.Unmarshal(body, &callback); err != nil {
		h.logger.Warn().Err(err).Int("body_length", len(body)).Msg("Unparseable webhook callback")
		WriteError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if callback.ID == "" {
		WriteError(w, http.StatusBadRequest, "callback missing job id")
		return
	}

	h.logger.Debug().
		Str("job_id", callback.ID).
		Str("event", callback.kind()).
		Bool("success", callback.Success).
		Msg("Webhook callback received")

	evt := webhook.IngressEvent{
		JobID:    callback.ID,
		Kind:     callback.kind(),
		Metadata: callback.Metadata,
		Error:    callback.Error,
	}
	if err := h.reconciler.HandleEvent(r.Context(), evt); err != nil {
		h.logger.Error().Err(err).Str("job_id", callback.ID).Msg("Webhook event handling failed")
		WriteError(w, http.StatusInternalServerError, "event handling failed")
		return
	}

	WriteSuccess(w, "event processed")
}
