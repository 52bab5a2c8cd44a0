package convex

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// HeuristicStore maps enrichment reads, learned regexes and job mutations
// onto the deployment's router functions.
type HeuristicStore struct {
	client *Client
	logger arbor.ILogger
}

// NewHeuristicStore creates a HeuristicStore backed by the deployment.
func NewHeuristicStore(client *Client, logger arbor.ILogger) interfaces.HeuristicStore {
	return &HeuristicStore{client: client, logger: logger}
}

func (s *HeuristicStore) ListPendingJobDetails(ctx context.Context, req models.ListPendingJobDetailsRequest) ([]models.PendingJobDetail, error) {
	var rows []models.PendingJobDetail
	if err := s.client.Query(ctx, "router:listPendingJobDetails", req, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *HeuristicStore) CountPendingJobDetails(ctx context.Context) (int, error) {
	var count int
	if err := s.client.Query(ctx, "router:countPendingJobDetails", nil, &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *HeuristicStore) ListJobDetailConfigs(ctx context.Context, domain string) ([]models.HeuristicConfigRow, error) {
	args := map[string]string{"domain": domain}
	var rows []models.HeuristicConfigRow
	if err := s.client.Query(ctx, "router:listJobDetailConfigs", args, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *HeuristicStore) RecordJobDetailHeuristic(ctx context.Context, row models.HeuristicConfigRow) error {
	return s.client.Mutation(ctx, "router:recordJobDetailHeuristic", row, nil)
}

func (s *HeuristicStore) UpdateJobWithHeuristic(ctx context.Context, upd models.HeuristicUpdate) error {
	return s.client.Mutation(ctx, "router:updateJobWithHeuristic", upd, nil)
}
