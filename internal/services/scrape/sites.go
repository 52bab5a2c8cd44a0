package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/services/ingest"
)

// RunSite leases at most one site and runs a stage-1 scrape against it:
// select the provider, build the skip list, fetch the listing surface, and
// hand the payload to the storage adapter. Returns false when nothing was
// leasable. While the fetch runs the lease is heartbeat-refreshed; it is
// always released, on success via completeSite and on failure via failSite,
// and lock expiry covers crashes.
func (s *Service) RunSite(ctx context.Context, workerID string) (bool, error) {
	site, err := s.store.Sites().LeaseSite(ctx, models.LeaseSiteRequest{
		WorkerID:    workerID,
		LockSeconds: s.lockSeconds(),
	})
	if err != nil {
		return false, fmt.Errorf("lease site: %w", err)
	}
	if site == nil {
		return false, nil
	}

	s.logger.Info().
		Str("worker_id", workerID).
		Str("site", site.Name).
		Str("url", site.URL).
		Msg("Leased site for scraping")

	started := nowMs()
	stopHeartbeat := s.heartbeatSite(ctx, *site, workerID)
	status, runErr := s.scrapeSite(ctx, *site)
	stopHeartbeat()

	s.settleSite(ctx, *site, runErr)
	s.recordRun(ctx, models.WorkflowRunRecord{
		WorkflowID: workerID,
		RunID:      common.NewRunID(),
		Kind:       runKindSiteScrape,
		SiteID:     site.ID,
		Status:     status,
		Error:      errString(runErr),
		StartedAt:  started,
		FinishedAt: nowMs(),
	})

	if runErr != nil {
		return true, fmt.Errorf("scrape site %s: %w", site.Name, runErr)
	}
	return true, nil
}

// scrapeSite runs the fetch-and-persist pipeline for one leased site and
// returns the run status for telemetry.
func (s *Service) scrapeSite(ctx context.Context, site models.Site) (string, error) {
	provider, err := s.selector.ForSite(site)
	if err != nil {
		return "failed", err
	}

	skipURLs, err := s.dedup.SkipList(ctx, site, provider.Kind())
	if err != nil {
		// Scraping without the skip list would re-fetch every known URL
		// and burn provider credits, so the run fails instead.
		return "failed", fmt.Errorf("build skip list: %w", err)
	}

	payload, err := provider.ScrapeSite(ctx, site, skipURLs)
	if err != nil {
		s.logParseFailure(ctx, provider.Kind(), site.URL, err)
		return "failed", err
	}

	// Async dispatch: the pending webhook row now owns the work. The
	// reconciler persists results when the callback arrives.
	if payload.Queued {
		s.logger.Info().
			Str("site", site.Name).
			Str("provider", string(payload.Provider)).
			Str("provider_job_id", payload.ProviderJobID).
			Msg("Site scrape dispatched; awaiting webhook")
		return "queued", nil
	}

	res, err := s.ingest.PersistScrape(ctx, ingest.Request{
		Payload: payload,
		SiteID:  site.ID,
		Pattern: site.URLPattern,
	})
	if err != nil {
		return "failed", fmt.Errorf("persist scrape: %w", err)
	}

	s.logger.Info().
		Str("site", site.Name).
		Str("provider", string(payload.Provider)).
		Int("rows", res.RowsIngested).
		Int("ignored", res.IgnoredRows).
		Int("queued_urls", len(res.QueuedURLs)).
		Bool("truncated", res.Truncated).
		Msg("Site scrape completed")
	return "completed", nil
}

// heartbeatSite starts a refresher that re-stamps the site lease every third
// of the lock window, so a fetch that outlives lockSeconds keeps its
// exclusive claim. The returned stop function blocks until the refresher has
// exited; callers stop it before settling so a late heartbeat cannot
// resurrect a released lock.
func (s *Service) heartbeatSite(ctx context.Context, site models.Site, workerID string) func() {
	lockSeconds := s.lockSeconds()
	interval := time.Duration(lockSeconds) * time.Second / 3
	if interval < time.Second {
		interval = time.Second
	}

	hctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	common.SafeGo(s.logger, "site-heartbeat", func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-hctx.Done():
				return
			case <-ticker.C:
				if err := s.store.Sites().HeartbeatSite(hctx, site.ID, workerID, lockSeconds); err != nil {
					s.logger.Warn().Err(err).
						Str("site", site.Name).
						Str("worker_id", workerID).
						Msg("Site lease heartbeat failed")
				}
			}
		}
	})
	return func() {
		cancel()
		<-done
	}
}

// settleSite releases the lease. The stores ignore ids that are not
// store-native, so manually seeded sites settle without error.
func (s *Service) settleSite(ctx context.Context, site models.Site, runErr error) {
	sctx, cancel := detached(ctx)
	defer cancel()

	if runErr == nil {
		if err := s.store.Sites().CompleteSite(sctx, site.ID); err != nil {
			s.logger.Error().Err(err).Str("site", site.Name).Msg("Failed to release site lock after completion")
		}
		return
	}
	if err := s.store.Sites().FailSite(sctx, site.ID, runErr.Error()); err != nil {
		s.logger.Error().Err(err).Str("site", site.Name).Msg("Failed to release site lock after failure")
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
