// Package webhook correlates asynchronous batch callbacks to the pending
// rows recorded at dispatch time, materialises finished batches through the
// storage adapter, and expires batches that never complete.
package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/providers"
	"github.com/ternarybob/venari/internal/services/ingest"
)

const (
	// warnAge is the age past which the sweep re-polls batch status; a 404
	// at this age means the provider has forgotten the job.
	warnAge = 23 * time.Hour

	// expireAge is the terminal deadline: a batch older than this is
	// cancelled-expired with zero results, no status call made.
	expireAge = 24 * time.Hour

	sweepBatchLimit = 100
)

// IngressEvent is one provider callback as decoded by the HTTP handler.
type IngressEvent struct {
	JobID    string
	Kind     string
	Metadata models.WebhookMetadata
	Error    string
}

// Reconciler drives webhook rows through pending -> processed | error |
// cancelled_expired, exactly once per row.
type Reconciler struct {
	store     interfaces.StoreManager
	firecrawl *providers.Firecrawl
	ingest    *ingest.Service
	logger    arbor.ILogger
}

// NewReconciler creates the webhook reconciler.
func NewReconciler(store interfaces.StoreManager, firecrawl *providers.Firecrawl, ingestSvc *ingest.Service, logger arbor.ILogger) *Reconciler {
	return &Reconciler{
		store:     store,
		firecrawl: firecrawl,
		ingest:    ingestSvc,
		logger:    logger,
	}
}

// HandleEvent processes one callback. Events for rows already terminal are
// idempotent no-ops; non-terminal progress events refresh the placeholder;
// terminal events reconcile or fail the row.
func (r *Reconciler) HandleEvent(ctx context.Context, evt IngressEvent) error {
	if evt.JobID == "" {
		return fmt.Errorf("webhook event missing job id")
	}

	row, err := r.store.Webhooks().GetWebhookStatus(ctx, evt.JobID)
	if err != nil {
		return fmt.Errorf("look up webhook %s: %w", evt.JobID, err)
	}

	meta := evt.Metadata
	if row != nil {
		if row.Status.Terminal() {
			r.logger.Debug().
				Str("job_id", evt.JobID).
				Str("event", evt.Kind).
				Str("status", string(row.Status)).
				Msg("Ignoring event for terminal webhook row")
			return nil
		}
		meta = row.Metadata
	} else {
		// No dispatch placeholder. The provider echoes our metadata, so
		// the row is reconstructed from the event rather than dropped.
		r.logger.Warn().
			Str("job_id", evt.JobID).
			Str("event", evt.Kind).
			Msg("Webhook event for unknown job; creating row from event metadata")
	}

	// Refresh (or create) the pending row with the latest event.
	if err := r.store.Webhooks().InsertWebhookEvent(ctx, models.WebhookEventRow{
		JobID:      evt.JobID,
		EventKind:  evt.Kind,
		Status:     models.WebhookStatusPending,
		Metadata:   meta,
		ReceivedAt: time.Now().UnixMilli(),
	}); err != nil {
		return fmt.Errorf("record webhook event %s: %w", evt.JobID, err)
	}

	if !models.TerminalWebhookEvent(evt.Kind) {
		r.logger.Debug().
			Str("job_id", evt.JobID).
			Str("event", evt.Kind).
			Msg("Progress event recorded")
		return nil
	}

	switch evt.Kind {
	case models.WebhookEventFailed, models.WebhookEventBatchFailed:
		errMsg := evt.Error
		if errMsg == "" {
			errMsg = "provider reported failure"
		}
		if err := r.store.Webhooks().MarkWebhookProcessed(ctx, evt.JobID, models.WebhookStatusError, "", errMsg); err != nil {
			return fmt.Errorf("mark webhook %s failed: %w", evt.JobID, err)
		}
		r.logger.Warn().
			Str("job_id", evt.JobID).
			Str("event", evt.Kind).
			Str("error", errMsg).
			Msg("Batch failed upstream")
		return nil
	default:
		return r.ReconcileJob(ctx, evt.JobID, meta)
	}
}

// ReconcileJob polls the batch status and, when finished, materialises the
// documents through the storage adapter and marks the row processed. A batch
// still running leaves the row pending for the sweep. Errors leave the row
// pending so a later event or sweep pass can retry.
func (r *Reconciler) ReconcileJob(ctx context.Context, jobID string, meta models.WebhookMetadata) error {
	status, err := r.firecrawl.GetBatchStatus(ctx, jobID)
	if err != nil {
		return fmt.Errorf("batch status %s: %w", jobID, err)
	}

	if status.Failed() {
		if err := r.store.Webhooks().MarkWebhookProcessed(ctx, jobID, models.WebhookStatusError, "", "batch "+status.Status); err != nil {
			return fmt.Errorf("mark webhook %s failed: %w", jobID, err)
		}
		return nil
	}
	if !status.Done() {
		r.logger.Debug().
			Str("job_id", jobID).
			Str("status", status.Status).
			Int("completed", status.Completed).
			Int("total", status.Total).
			Msg("Batch still running; leaving row pending")
		return nil
	}

	payload := r.firecrawl.MaterializeBatch(status, meta)
	res, err := r.ingest.PersistScrape(ctx, ingest.Request{
		Payload: payload,
		SiteID:  meta.SiteID,
		Pattern: meta.Pattern,
	})
	if err != nil {
		return fmt.Errorf("persist batch %s: %w", jobID, err)
	}

	if err := r.store.Webhooks().MarkWebhookProcessed(ctx, jobID, models.WebhookStatusProcessed, resultHash(status), ""); err != nil {
		return fmt.Errorf("mark webhook %s processed: %w", jobID, err)
	}

	r.logger.Info().
		Str("job_id", jobID).
		Str("kind", meta.Kind).
		Int("documents", len(status.Data)).
		Int("rows", res.RowsIngested).
		Int("ignored", res.IgnoredRows).
		Int("queued_urls", len(res.QueuedURLs)).
		Msg("Batch reconciled")
	return nil
}

// Sweep expires or recovers aged pending rows. Rows past the terminal
// deadline are cancelled without a status call; rows past the warn age get
// one status retry, where a forgotten job id also expires the row. Per-row
// failures are logged and the sweep continues.
func (r *Reconciler) Sweep(ctx context.Context) error {
	rows, err := r.store.Webhooks().ListPendingWebhooks(ctx, sweepBatchLimit)
	if err != nil {
		return fmt.Errorf("list pending webhooks: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	r.logger.Info().Int("pending", len(rows)).Msg("Sweeping pending webhook rows")

	now := time.Now().UnixMilli()
	for _, row := range rows {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		age := time.Duration(now-row.CreatedAt) * time.Millisecond

		switch {
		case age >= expireAge:
			if err := r.store.Webhooks().MarkWebhookProcessed(ctx, row.JobID, models.WebhookStatusCancelledExpired, "", "expired after 24h without completion"); err != nil {
				r.logger.Error().Err(err).Str("job_id", row.JobID).Msg("Failed to expire webhook row")
				continue
			}
			r.logger.Warn().
				Str("job_id", row.JobID).
				Str("age", age.Round(time.Minute).String()).
				Msg("Batch cancelled-expired")

		case age >= warnAge:
			if err := r.retryAged(ctx, row, age); err != nil {
				r.logger.Error().Err(err).Str("job_id", row.JobID).Msg("Aged webhook retry failed")
			}
		}
	}
	return nil
}

// retryAged re-polls one aged row. A job id the provider no longer knows is
// expired; a finished batch reconciles as if its event had arrived.
func (r *Reconciler) retryAged(ctx context.Context, row models.WebhookEventRow, age time.Duration) error {
	r.logger.Warn().
		Str("job_id", row.JobID).
		Str("age", age.Round(time.Minute).String()).
		Msg("Batch nearing deadline; retrying status")

	status, err := r.firecrawl.GetBatchStatus(ctx, row.JobID)
	if err != nil {
		if errors.Is(err, providers.ErrBatchNotFound) {
			return r.store.Webhooks().MarkWebhookProcessed(ctx, row.JobID, models.WebhookStatusCancelledExpired, "", "provider no longer knows job id")
		}
		return err
	}

	switch {
	case status.Failed():
		return r.store.Webhooks().MarkWebhookProcessed(ctx, row.JobID, models.WebhookStatusError, "", "batch "+status.Status)
	case status.Done():
		return r.ReconcileJob(ctx, row.JobID, row.Metadata)
	default:
		return nil
	}
}

// resultHash fingerprints the materialised documents so repeat deliveries of
// the same completed batch are recognisable in the webhook log.
func resultHash(status *providers.BatchStatus) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s:%d:%d\n", status.Status, status.Completed, status.Total)
	for _, doc := range status.Data {
		fmt.Fprintf(h, "%s\n", doc.Metadata.SourceURL)
	}
	return hex.EncodeToString(h.Sum(nil))
}
