package convex

import (
	"context"
	"errors"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// SiteStore maps the site lifecycle onto the deployment's router functions.
type SiteStore struct {
	client *Client
	logger arbor.ILogger
}

// NewSiteStore creates a SiteStore backed by the deployment.
func NewSiteStore(client *Client, logger arbor.ILogger) interfaces.SiteStore {
	return &SiteStore{client: client, logger: logger}
}

func (s *SiteStore) ListSites(ctx context.Context, req models.ListSitesRequest) ([]models.Site, error) {
	var sites []models.Site
	if err := s.client.Query(ctx, "router:listSites", req, &sites); err != nil {
		return nil, err
	}
	return sites, nil
}

func (s *SiteStore) LeaseSite(ctx context.Context, req models.LeaseSiteRequest) (*models.Site, error) {
	var site *models.Site
	if err := s.client.Mutation(ctx, "router:leaseSite", req, &site); err != nil {
		return nil, err
	}
	return site, nil
}

func (s *SiteStore) CompleteSite(ctx context.Context, id string) error {
	if !models.IsStoreID(id) {
		s.logger.Debug().Str("site_id", id).Msg("Skipping completeSite for non-store id")
		return nil
	}
	args := map[string]string{"id": id}
	err := s.client.Mutation(ctx, "router:completeSite", args, nil)
	return swallowIDValidation(err, s.logger, "completeSite")
}

func (s *SiteStore) FailSite(ctx context.Context, id string, errMsg string) error {
	if !models.IsStoreID(id) {
		s.logger.Debug().Str("site_id", id).Msg("Skipping failSite for non-store id")
		return nil
	}
	args := map[string]string{"id": id, "error": errMsg}
	err := s.client.Mutation(ctx, "router:failSite", args, nil)
	return swallowIDValidation(err, s.logger, "failSite")
}

func (s *SiteStore) HeartbeatSite(ctx context.Context, id, workerID string, lockSeconds int) error {
	if !models.IsStoreID(id) {
		s.logger.Debug().Str("site_id", id).Msg("Skipping heartbeatSite for non-store id")
		return nil
	}
	args := map[string]interface{}{"id": id, "workerId": workerID, "lockSeconds": lockSeconds}
	err := s.client.Mutation(ctx, "router:heartbeatSite", args, nil)
	return swallowIDValidation(err, s.logger, "heartbeatSite")
}

func (s *SiteStore) TriggerSite(ctx context.Context, id string) error {
	args := map[string]string{"id": id}
	return s.client.Mutation(ctx, "router:triggerSite", args, nil)
}

// swallowIDValidation drops the deployment's id-argument rejection so
// complete/fail calls for rows the store never managed stay silent.
func swallowIDValidation(err error, logger arbor.ILogger, op string) error {
	if err == nil {
		return nil
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) && storeErr.IsIDValidation() {
		logger.Debug().Str("op", op).Msg("Ignoring store id validation error")
		return nil
	}
	return err
}
