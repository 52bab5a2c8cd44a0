package convex

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// URLQueueStore maps the two-stage detail-URL queue onto the deployment's
// router functions. The lease and TTL semantics live server-side; this
// store only shapes the calls.
type URLQueueStore struct {
	client *Client
	logger arbor.ILogger
}

// NewURLQueueStore creates a URLQueueStore backed by the deployment.
func NewURLQueueStore(client *Client, logger arbor.ILogger) interfaces.URLQueueStore {
	return &URLQueueStore{client: client, logger: logger}
}

func (s *URLQueueStore) EnqueueScrapeURLs(ctx context.Context, req models.EnqueueScrapeURLsRequest) ([]string, error) {
	var queued []string
	if err := s.client.Mutation(ctx, "router:enqueueScrapeUrls", req, &queued); err != nil {
		return nil, err
	}
	return queued, nil
}

func (s *URLQueueStore) LeaseScrapeURLBatch(ctx context.Context, req models.LeaseScrapeURLBatchRequest) ([]models.ScrapeURLRow, error) {
	var rows []models.ScrapeURLRow
	if err := s.client.Mutation(ctx, "router:leaseScrapeUrlBatch", req, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *URLQueueStore) CompleteScrapeURLs(ctx context.Context, req models.CompleteScrapeURLsRequest) error {
	if len(req.URLs) == 0 {
		return nil
	}
	return s.client.Mutation(ctx, "router:completeScrapeUrls", req, nil)
}

func (s *URLQueueStore) ListQueuedScrapeURLs(ctx context.Context, req models.ListQueuedScrapeURLsRequest) ([]models.ScrapeURLRow, error) {
	var rows []models.ScrapeURLRow
	if err := s.client.Query(ctx, "router:listQueuedScrapeUrls", req, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
