package convex

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// WebhookStore maps async callback rows onto the deployment's router
// functions.
type WebhookStore struct {
	client *Client
	logger arbor.ILogger
}

// NewWebhookStore creates a WebhookStore backed by the deployment.
func NewWebhookStore(client *Client, logger arbor.ILogger) interfaces.WebhookStore {
	return &WebhookStore{client: client, logger: logger}
}

func (s *WebhookStore) InsertWebhookEvent(ctx context.Context, row models.WebhookEventRow) error {
	return s.client.Mutation(ctx, "router:insertFirecrawlWebhookEvent", row, nil)
}

func (s *WebhookStore) ListPendingWebhooks(ctx context.Context, limit int) ([]models.WebhookEventRow, error) {
	args := map[string]int{"limit": limit}
	var rows []models.WebhookEventRow
	if err := s.client.Query(ctx, "router:listPendingFirecrawlWebhooks", args, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *WebhookStore) GetWebhookStatus(ctx context.Context, jobID string) (*models.WebhookEventRow, error) {
	args := map[string]string{"jobId": jobID}
	var row *models.WebhookEventRow
	if err := s.client.Query(ctx, "router:getFirecrawlWebhookStatus", args, &row); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *WebhookStore) MarkWebhookProcessed(ctx context.Context, jobID string, status models.WebhookStatus, resultHash, errMsg string) error {
	args := map[string]interface{}{
		"jobId":  jobID,
		"status": status,
	}
	if resultHash != "" {
		args["resultHash"] = resultHash
	}
	if errMsg != "" {
		args["error"] = errMsg
	}
	return s.client.Mutation(ctx, "router:markFirecrawlWebhookProcessed", args, nil)
}
