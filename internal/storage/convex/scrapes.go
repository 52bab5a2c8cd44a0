package convex

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// ScrapeStore appends scrape and parse-error log rows via the deployment's
// router functions.
type ScrapeStore struct {
	client *Client
	logger arbor.ILogger
}

// NewScrapeStore creates a ScrapeStore backed by the deployment.
func NewScrapeStore(client *Client, logger arbor.ILogger) interfaces.ScrapeStore {
	return &ScrapeStore{client: client, logger: logger}
}

func (s *ScrapeStore) InsertScrapeRecord(ctx context.Context, rec models.ScrapeRecord) error {
	return s.client.Mutation(ctx, "router:insertScrapeRecord", rec, nil)
}

func (s *ScrapeStore) InsertScrapeError(ctx context.Context, rec models.ScrapeError) error {
	return s.client.Mutation(ctx, "router:insertScrapeError", rec, nil)
}
