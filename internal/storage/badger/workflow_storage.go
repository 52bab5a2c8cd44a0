package badger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// WorkflowRunRow is the best-effort telemetry entry for one worker run.
type WorkflowRunRow struct {
	ID         string `badgerhold:"key"`
	WorkflowID string `badgerhold:"index"`
	RunID      string
	Kind       string
	SiteID     string
	Status     string
	Error      string
	StartedAt  int64
	FinishedAt int64
	CreatedAt  int64
}

// WorkflowStorage implements the WorkflowStore interface for Badger.
type WorkflowStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewWorkflowStorage creates a new WorkflowStorage instance
func NewWorkflowStorage(db *BadgerDB, logger arbor.ILogger) *WorkflowStorage {
	return &WorkflowStorage{db: db, logger: logger}
}

// RecordWorkflowRun appends one run row. Failures are logged, never
// returned: telemetry must not fail the parent work.
func (s *WorkflowStorage) RecordWorkflowRun(ctx context.Context, rec models.WorkflowRunRecord) error {
	if err := ctx.Err(); err != nil && errors.Is(err, context.Canceled) {
		return nil
	}

	row := WorkflowRunRow{
		ID:         uuid.New().String(),
		WorkflowID: rec.WorkflowID,
		RunID:      rec.RunID,
		Kind:       rec.Kind,
		SiteID:     rec.SiteID,
		Status:     rec.Status,
		Error:      rec.Error,
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
		CreatedAt:  models.TimeToMillis(time.Now()),
	}
	if err := s.db.Store().Insert(row.ID, row); err != nil {
		s.logger.Warn().
			Err(err).
			Str("workflow_id", rec.WorkflowID).
			Msg("Failed to record workflow run")
	}
	return nil
}

var _ interfaces.WorkflowStore = (*WorkflowStorage)(nil)
