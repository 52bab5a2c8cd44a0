package convex

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// JobStore maps ingested jobs, the seen-URL projection and the ignore log
// onto the deployment's router functions.
type JobStore struct {
	client *Client
	logger arbor.ILogger
}

// NewJobStore creates a JobStore backed by the deployment.
func NewJobStore(client *Client, logger arbor.ILogger) interfaces.JobStore {
	return &JobStore{client: client, logger: logger}
}

func (s *JobStore) ListSeenJobURLsForSite(ctx context.Context, sourceURL, pattern string) ([]string, error) {
	args := map[string]string{"sourceUrl": sourceURL}
	if pattern != "" {
		args["pattern"] = pattern
	}
	var urls []string
	if err := s.client.Query(ctx, "router:listSeenJobUrlsForSite", args, &urls); err != nil {
		return nil, err
	}
	return urls, nil
}

func (s *JobStore) FindExistingJobURLs(ctx context.Context, urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	args := map[string][]string{"urls": urls}
	var existing []string
	if err := s.client.Query(ctx, "router:findExistingJobUrls", args, &existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *JobStore) IngestJobsFromScrape(ctx context.Context, req models.IngestJobsRequest) error {
	return s.client.Mutation(ctx, "router:ingestJobsFromScrape", req, nil)
}

func (s *JobStore) InsertIgnoredJob(ctx context.Context, row models.IgnoredJob) error {
	return s.client.Mutation(ctx, "router:insertIgnoredJob", row, nil)
}
