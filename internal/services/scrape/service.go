// Package scrape is the orchestration layer: it leases work (sites or URL
// batches), drives the selected provider adapter, and settles every lease it
// takes. Leased work is always terminally transitioned, including on
// cancellation, so nothing sits in processing forever.
package scrape

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/providers"
	"github.com/ternarybob/venari/internal/services/dedup"
	"github.com/ternarybob/venari/internal/services/ingest"
)

// Run kinds recorded against workflow-run telemetry.
const (
	runKindSiteScrape = "site-scrape"
	runKindJobDetails = "job-details"
)

// releaseTimeout bounds the detached store calls that settle leases after
// the run context is already cancelled.
const releaseTimeout = 30 * time.Second

// Service orchestrates site scrapes and detail batches over the store,
// the provider selector, and the storage adapter.
type Service struct {
	store    interfaces.StoreManager
	selector *providers.Selector
	ingest   *ingest.Service
	dedup    *dedup.Service
	runtime  *common.RuntimeConfig
	config   *common.Config
	logger   arbor.ILogger
}

// NewService creates a new scrape orchestration service.
func NewService(store interfaces.StoreManager, selector *providers.Selector, ingestSvc *ingest.Service, dedupSvc *dedup.Service, runtime *common.RuntimeConfig, config *common.Config, logger arbor.ILogger) *Service {
	if runtime == nil {
		runtime = common.NewDefaultRuntimeConfig()
	}
	return &Service{
		store:    store,
		selector: selector,
		ingest:   ingestSvc,
		dedup:    dedupSvc,
		runtime:  runtime,
		config:   config,
		logger:   logger,
	}
}

func (s *Service) lockSeconds() int {
	if s.config != nil && s.config.Scheduler.LockSeconds > 0 {
		return s.config.Scheduler.LockSeconds
	}
	return 300
}

// detached returns ctx when it is still live, or a bounded background
// context for settlement calls that must outlive a cancelled run.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return ctx, func() {}
	}
	return context.WithTimeout(context.Background(), releaseTimeout)
}

// recordRun writes best-effort run telemetry. Failures are logged, never
// returned, and cancellation is swallowed by the store layer.
func (s *Service) recordRun(ctx context.Context, rec models.WorkflowRunRecord) {
	rctx, cancel := detached(ctx)
	defer cancel()
	if err := s.store.Workflows().RecordWorkflowRun(rctx, rec); err != nil {
		s.logger.Warn().Err(err).
			Str("workflow_id", rec.WorkflowID).
			Str("kind", rec.Kind).
			Msg("Workflow run record failed")
	}
}

// completeURLs terminally transitions queue rows, falling back to a
// detached context when the run was cancelled. This is the only mechanism
// that prevents permanent processing rows, so failures are logged loudly.
func (s *Service) completeURLs(ctx context.Context, provider models.ProviderKind, urls []string, status models.QueueStatus, errMsg string) {
	if len(urls) == 0 {
		return
	}
	cctx, cancel := detached(ctx)
	defer cancel()

	err := s.store.URLQueue().CompleteScrapeURLs(cctx, models.CompleteScrapeURLsRequest{
		URLs:     urls,
		Provider: provider,
		Status:   status,
		Error:    errMsg,
	})
	if err != nil {
		s.logger.Error().Err(err).
			Str("provider", string(provider)).
			Str("status", string(status)).
			Int("urls", len(urls)).
			Msg("Failed to settle leased queue rows")
	}
}

// logParseFailure records undecodable upstream payloads to the scrape-error
// log with the raw length, per the parse-failure reporting contract.
func (s *Service) logParseFailure(ctx context.Context, provider models.ProviderKind, sourceURL string, err error) {
	var pe *providers.ParseError
	if !errors.As(err, &pe) {
		return
	}
	rctx, cancel := detached(ctx)
	defer cancel()
	s.ingest.RecordScrapeError(rctx, models.ScrapeError{
		SourceURL: sourceURL,
		Provider:  provider,
		Message:   pe.Message,
		RawLength: pe.RawLength,
	})
}

func nowMs() int64 { return time.Now().UnixMilli() }
