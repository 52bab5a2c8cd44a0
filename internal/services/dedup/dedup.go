// Package dedup answers one question for discovery: which candidate URLs
// are already known, whether as ingested jobs, as seen URLs for their
// source, or as queue rows still in flight. Enqueueing anything this
// package would have filtered re-scrapes work the pipeline already paid
// for.
package dedup

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// Service composes the seen-URL projection, the jobs table, and the URL
// queue into the dedupe reads discovery needs.
type Service struct {
	store  interfaces.StoreManager
	logger arbor.ILogger
}

// NewService creates a new dedup service.
func NewService(store interfaces.StoreManager, logger arbor.ILogger) *Service {
	return &Service{store: store, logger: logger}
}

// FilterRequest is one discovery pass worth of candidates.
type FilterRequest struct {
	Candidates []string
	SourceURL  string
	Pattern    string
	Provider   models.ProviderKind
}

// SeenURLs returns the set of job URLs already ingested for a source URL,
// optionally scoped by pattern.
func (s *Service) SeenURLs(ctx context.Context, sourceURL, pattern string) (map[string]bool, error) {
	urls, err := s.store.Jobs().ListSeenJobURLsForSite(ctx, sourceURL, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list seen URLs: %w", err)
	}
	seen := make(map[string]bool, len(urls))
	for _, u := range urls {
		seen[u] = true
	}
	return seen, nil
}

// QueuedURLs returns the URLs with a non-terminal queue row for the
// provider. Terminal rows do not block re-discovery; a failed URL found
// again is retried.
func (s *Service) QueuedURLs(ctx context.Context, provider models.ProviderKind) (map[string]bool, error) {
	queued := make(map[string]bool)
	for _, status := range []models.QueueStatus{models.QueueStatusPending, models.QueueStatusProcessing} {
		rows, err := s.store.URLQueue().ListQueuedScrapeURLs(ctx, models.ListQueuedScrapeURLsRequest{
			Provider: provider,
			Status:   status,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list %s queue rows: %w", status, err)
		}
		for _, row := range rows {
			queued[row.URL] = true
		}
	}
	return queued, nil
}

// SkipList returns seen ∪ queued as a slice, the shape provider adapters
// take as their skip hint so crawl budgets are spent on unseen pages.
func (s *Service) SkipList(ctx context.Context, site models.Site, provider models.ProviderKind) ([]string, error) {
	seen, err := s.SeenURLs(ctx, site.URL, site.URLPattern)
	if err != nil {
		return nil, err
	}
	queued, err := s.QueuedURLs(ctx, provider)
	if err != nil {
		return nil, err
	}

	skip := make([]string, 0, len(seen)+len(queued))
	for u := range seen {
		skip = append(skip, u)
	}
	for u := range queued {
		if !seen[u] {
			skip = append(skip, u)
		}
	}
	return skip, nil
}

// ExistingJobURLs returns the subset of candidates already present in the
// jobs table, as a set.
func (s *Service) ExistingJobURLs(ctx context.Context, urls []string) (map[string]bool, error) {
	if len(urls) == 0 {
		return map[string]bool{}, nil
	}
	found, err := s.store.Jobs().FindExistingJobURLs(ctx, urls)
	if err != nil {
		return nil, fmt.Errorf("failed to find existing job URLs: %w", err)
	}
	existing := make(map[string]bool, len(found))
	for _, u := range found {
		existing[u] = true
	}
	return existing, nil
}

// FilterNew returns the candidates that are neither seen for their source,
// nor stored as jobs, nor queued non-terminally for the provider. Input
// order is preserved; duplicates within the input collapse to the first
// occurrence.
func (s *Service) FilterNew(ctx context.Context, req FilterRequest) ([]string, error) {
	if len(req.Candidates) == 0 {
		return nil, nil
	}

	seen, err := s.SeenURLs(ctx, req.SourceURL, req.Pattern)
	if err != nil {
		return nil, err
	}
	existing, err := s.ExistingJobURLs(ctx, req.Candidates)
	if err != nil {
		return nil, err
	}
	queued, err := s.QueuedURLs(ctx, req.Provider)
	if err != nil {
		return nil, err
	}

	fresh := make([]string, 0, len(req.Candidates))
	emitted := make(map[string]bool, len(req.Candidates))
	for _, u := range req.Candidates {
		if u == "" || emitted[u] || seen[u] || existing[u] || queued[u] {
			continue
		}
		emitted[u] = true
		fresh = append(fresh, u)
	}

	s.logger.Debug().
		Str("source_url", req.SourceURL).
		Int("candidates", len(req.Candidates)).
		Int("fresh", len(fresh)).
		Int("seen", len(seen)).
		Int("queued", len(queued)).
		Msg("Discovery candidates filtered")

	return fresh, nil
}
