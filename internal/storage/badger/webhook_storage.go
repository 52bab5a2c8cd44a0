package badger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// WebhookEventRecord correlates an async provider callback with the batch
// that dispatched it. JobID is the provider's batch job id; each JobID has
// at most one pending placeholder.
type WebhookEventRecord struct {
	ID          string `badgerhold:"key"`
	JobID       string `badgerhold:"index"`
	EventKind   string
	Status      string `badgerhold:"index"`
	Metadata    models.WebhookMetadata
	ReceivedAt  int64
	ProcessedAt int64
	ResultHash  string
	Error       string
	CreatedAt   int64
}

func (r *WebhookEventRecord) toModel() models.WebhookEventRow {
	return models.WebhookEventRow{
		ID:          r.ID,
		JobID:       r.JobID,
		EventKind:   r.EventKind,
		Status:      models.WebhookStatus(r.Status),
		Metadata:    r.Metadata,
		ReceivedAt:  r.ReceivedAt,
		ProcessedAt: r.ProcessedAt,
		ResultHash:  r.ResultHash,
		Error:       r.Error,
		CreatedAt:   r.CreatedAt,
	}
}

// WebhookStorage implements the WebhookStore interface for Badger. The
// placeholder-then-terminal transition is serialized with a mutex.
type WebhookStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewWebhookStorage creates a new WebhookStorage instance
func NewWebhookStorage(db *BadgerDB, logger arbor.ILogger) *WebhookStorage {
	return &WebhookStorage{db: db, logger: logger}
}

// InsertWebhookEvent stores a callback row. A pending insert for a JobID
// that already has a pending placeholder refreshes the placeholder instead
// of duplicating it.
func (s *WebhookStorage) InsertWebhookEvent(ctx context.Context, row models.WebhookEventRow) error {
	if row.JobID == "" {
		return fmt.Errorf("webhook event requires a provider job id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := models.TimeToMillis(time.Now())
	if row.Status == "" {
		row.Status = models.WebhookStatusPending
	}

	if row.Status == models.WebhookStatusPending {
		var existing []WebhookEventRecord
		query := badgerhold.Where("JobID").Eq(row.JobID).And("Status").Eq(string(models.WebhookStatusPending))
		if err := s.db.Store().Find(&existing, query); err != nil {
			return fmt.Errorf("failed to check webhook placeholder: %w", err)
		}
		if len(existing) > 0 {
			rec := existing[0]
			rec.EventKind = row.EventKind
			rec.Metadata = row.Metadata
			rec.ReceivedAt = nowMs
			if err := s.db.Store().Update(rec.ID, rec); err != nil {
				return fmt.Errorf("failed to refresh webhook placeholder: %w", err)
			}
			return nil
		}
	}

	rec := WebhookEventRecord{
		ID:         uuid.New().String(),
		JobID:      row.JobID,
		EventKind:  row.EventKind,
		Status:     string(row.Status),
		Metadata:   row.Metadata,
		ReceivedAt: row.ReceivedAt,
		ResultHash: row.ResultHash,
		Error:      row.Error,
		CreatedAt:  nowMs,
	}
	if rec.ReceivedAt == 0 {
		rec.ReceivedAt = nowMs
	}
	if err := s.db.Store().Insert(rec.ID, rec); err != nil {
		return fmt.Errorf("failed to insert webhook event: %w", err)
	}

	s.logger.Debug().
		Str("job_id", row.JobID).
		Str("event_kind", row.EventKind).
		Str("status", string(row.Status)).
		Msg("Inserted webhook event")

	return nil
}

// ListPendingWebhooks returns rows still awaiting a terminal event, oldest
// first so the reconciler ages them out in dispatch order.
func (s *WebhookStorage) ListPendingWebhooks(ctx context.Context, limit int) ([]models.WebhookEventRow, error) {
	if limit <= 0 || limit > maxQueueListLimit {
		limit = maxQueueListLimit
	}

	var records []WebhookEventRecord
	query := badgerhold.Where("Status").Eq(string(models.WebhookStatusPending))
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list pending webhooks: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt < records[j].CreatedAt
	})
	if len(records) > limit {
		records = records[:limit]
	}

	rows := make([]models.WebhookEventRow, 0, len(records))
	for i := range records {
		rows = append(rows, records[i].toModel())
	}
	return rows, nil
}

// GetWebhookStatus returns the most recent row for a provider job id, nil
// when the id is unknown.
func (s *WebhookStorage) GetWebhookStatus(ctx context.Context, jobID string) (*models.WebhookEventRow, error) {
	var records []WebhookEventRecord
	if err := s.db.Store().Find(&records, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return nil, fmt.Errorf("failed to look up webhook %s: %w", jobID, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt > records[j].CreatedAt
	})
	row := records[0].toModel()
	return &row, nil
}

// MarkWebhookProcessed transitions the pending row for a job id to a
// terminal status. Rows already terminal are left untouched.
func (s *WebhookStorage) MarkWebhookProcessed(ctx context.Context, jobID string, status models.WebhookStatus, resultHash, errMsg string) error {
	if !status.Terminal() {
		return fmt.Errorf("webhook transition requires a terminal status, got %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var records []WebhookEventRecord
	if err := s.db.Store().Find(&records, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to load webhook %s: %w", jobID, err)
	}
	if len(records) == 0 {
		s.logger.Debug().Str("job_id", jobID).Msg("Ignoring terminal transition for unknown webhook job")
		return nil
	}

	nowMs := models.TimeToMillis(time.Now())
	for _, rec := range records {
		if models.WebhookStatus(rec.Status).Terminal() {
			continue
		}
		rec.Status = string(status)
		rec.ProcessedAt = nowMs
		rec.ResultHash = resultHash
		rec.Error = errMsg
		if err := s.db.Store().Update(rec.ID, rec); err != nil {
			return fmt.Errorf("failed to mark webhook %s: %w", jobID, err)
		}
	}

	s.logger.Debug().
		Str("job_id", jobID).
		Str("status", string(status)).
		Msg("Webhook transitioned")

	return nil
}

var _ interfaces.WebhookStore = (*WebhookStorage)(nil)
