package convex

import (
	"context"
	"errors"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// WorkflowStore records run telemetry via the deployment's temporal
// functions.
type WorkflowStore struct {
	client *Client
	logger arbor.ILogger
}

// NewWorkflowStore creates a WorkflowStore backed by the deployment.
func NewWorkflowStore(client *Client, logger arbor.ILogger) interfaces.WorkflowStore {
	return &WorkflowStore{client: client, logger: logger}
}

// RecordWorkflowRun appends one run row. Failures are logged, never
// returned: telemetry must not fail the parent work.
func (s *WorkflowStore) RecordWorkflowRun(ctx context.Context, rec models.WorkflowRunRecord) error {
	if err := ctx.Err(); err != nil && errors.Is(err, context.Canceled) {
		return nil
	}

	if err := s.client.Mutation(ctx, "temporal:recordWorkflowRun", rec, nil); err != nil {
		s.logger.Warn().
			Err(err).
			Str("workflow_id", rec.WorkflowID).
			Msg("Failed to record workflow run")
	}
	return nil
}
