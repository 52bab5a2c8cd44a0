// Package ingest is the storage adapter: one completed scrape payload in;
// the scrape record, upserted job rows, ignored rows, and newly discovered
// queue work out. Everything it persists is bounded by the store's 8 MiB
// record ceiling.
package ingest

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/services/dedup"
)

// Service persists scrape payloads through the store's named operations.
type Service struct {
	store  interfaces.StoreManager
	dedup  *dedup.Service
	logger arbor.ILogger
}

// NewService creates a new ingest service.
func NewService(store interfaces.StoreManager, dedup *dedup.Service, logger arbor.ILogger) *Service {
	return &Service{store: store, dedup: dedup, logger: logger}
}

// Request is one persistence pass. SiteID rides into the queue rows and the
// jobs table only when it looks store-native.
type Request struct {
	Payload models.ScrapePayload
	SiteID  string
	Pattern string
}

// Result summarises what one PersistScrape call wrote.
type Result struct {
	RowsIngested int
	IgnoredRows  int
	QueuedURLs   []string
	Truncated    bool
}

// PersistScrape runs the full storage sequence: trim and insert the scrape
// record, upsert the normalized rows, log the ignored rows, and enqueue the
// discovered URLs that survive the dedup filter. A jobs-table failure is
// non-fatal; record insert and enqueue failures propagate.
func (s *Service) PersistScrape(ctx context.Context, req Request) (Result, error) {
	payload := req.Payload
	splitCost(&payload)
	reEnrichRows(payload.Rows)

	record, truncated := buildRecord(&payload)
	if err := s.insertRecord(ctx, &record); err != nil {
		return Result{}, err
	}
	truncated = truncated || record.Truncated

	result := Result{Truncated: truncated}

	if len(payload.Rows) > 0 {
		ingestReq := models.IngestJobsRequest{
			Jobs:      payload.Rows,
			SourceURL: payload.SourceURL,
		}
		if models.IsStoreID(req.SiteID) {
			ingestReq.SiteID = req.SiteID
		}
		if err := s.store.Jobs().IngestJobsFromScrape(ctx, ingestReq); err != nil {
			// The scrape record is already persisted; rows will be
			// re-derived when the source is scraped again.
			s.logger.Warn().Err(err).
				Str("source_url", payload.SourceURL).
				Int("rows", len(payload.Rows)).
				Msg("Job ingestion failed")
		} else {
			result.RowsIngested = len(payload.Rows)
		}
	}

	for _, ignored := range payload.Ignored {
		if err := s.store.Jobs().InsertIgnoredJob(ctx, ignored); err != nil {
			s.logger.Debug().Err(err).Str("url", ignored.URL).Msg("Ignored-job insert failed")
			continue
		}
		result.IgnoredRows++
	}

	queued, err := s.enqueueDiscovered(ctx, req, &payload)
	if err != nil {
		return result, err
	}
	result.QueuedURLs = queued

	s.logger.Info().
		Str("source_url", payload.SourceURL).
		Str("provider", string(payload.Provider)).
		Int("rows", result.RowsIngested).
		Int("ignored", result.IgnoredRows).
		Int("queued", len(result.QueuedURLs)).
		Bool("truncated", truncated).
		Msg("Scrape persisted")

	return result, nil
}

// insertRecord inserts the scrape record, retrying once with the aggressive
// trim when the store rejects the first attempt.
func (s *Service) insertRecord(ctx context.Context, record *models.ScrapeRecord) error {
	err := s.store.Scrapes().InsertScrapeRecord(ctx, *record)
	if err == nil {
		return nil
	}
	if record.Truncated {
		return fmt.Errorf("failed to insert scrape record: %w", err)
	}

	s.logger.Warn().Err(err).
		Str("source_url", record.SourceURL).
		Msg("Scrape record rejected, retrying with aggressive trim")

	aggressiveTrimRecord(record)
	record.Truncated = true
	if err := s.store.Scrapes().InsertScrapeRecord(ctx, *record); err != nil {
		return fmt.Errorf("failed to insert scrape record after trim: %w", err)
	}
	return nil
}

// enqueueDiscovered filters the payload's job and pagination URLs against
// the dedup reads and enqueues the remainder for the discovering provider.
func (s *Service) enqueueDiscovered(ctx context.Context, req Request, payload *models.ScrapePayload) ([]string, error) {
	candidates := make([]string, 0, len(payload.JobURLs)+len(payload.PaginationURLs))
	candidates = append(candidates, payload.JobURLs...)
	candidates = append(candidates, payload.PaginationURLs...)
	if len(candidates) == 0 {
		return nil, nil
	}

	fresh, err := s.dedup.FilterNew(ctx, dedup.FilterRequest{
		Candidates: candidates,
		SourceURL:  payload.SourceURL,
		Pattern:    req.Pattern,
		Provider:   payload.Provider,
	})
	if err != nil {
		return nil, err
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	enqueueReq := models.EnqueueScrapeURLsRequest{
		URLs:      fresh,
		SourceURL: payload.SourceURL,
		Provider:  payload.Provider,
		Pattern:   req.Pattern,
	}
	if models.IsStoreID(req.SiteID) {
		enqueueReq.SiteID = req.SiteID
	}
	queued, err := s.store.URLQueue().EnqueueScrapeURLs(ctx, enqueueReq)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue discovered URLs: %w", err)
	}
	return queued, nil
}

// RecordScrapeError appends a parse-failure entry to the scrape-error log.
// Best-effort: the failure being recorded is the interesting one.
func (s *Service) RecordScrapeError(ctx context.Context, rec models.ScrapeError) {
	if err := s.store.Scrapes().InsertScrapeError(ctx, rec); err != nil {
		s.logger.Warn().Err(err).
			Str("source_url", rec.SourceURL).
			Msg("Scrape-error insert failed")
	}
}
