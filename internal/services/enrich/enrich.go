// Package enrich is the heuristic pass over jobs missing location or
// compensation: learned per-domain regexes run first, the built-in
// libraries second, and every attempt is stamped on the row so the pending
// read eventually stops returning it.
package enrich

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/normalizer"
)

// Service runs heuristic enrichment ticks.
type Service struct {
	store   interfaces.StoreManager
	runtime *common.RuntimeConfig
	logger  arbor.ILogger
}

// NewService creates the enrichment service.
func NewService(store interfaces.StoreManager, runtime *common.RuntimeConfig, logger arbor.ILogger) *Service {
	if runtime == nil {
		runtime = common.NewDefaultRuntimeConfig()
	}
	return &Service{store: store, runtime: runtime, logger: logger}
}

// Run processes up to limit pending rows and returns how many were updated.
// Per-row failures are logged and skipped; the batch always touches every
// row it fetched so a poison row cannot wedge the queue.
func (s *Service) Run(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = s.runtime.HeuristicBatchLimit.Int()
	}
	maxAttempts := s.runtime.HeuristicMaxAttempts.Int()

	rows, err := s.store.Heuristics().ListPendingJobDetails(ctx, models.ListPendingJobDetailsRequest{
		Limit:       limit,
		MaxAttempts: maxAttempts,
	})
	if err != nil {
		return 0, fmt.Errorf("list pending job details: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	if total, err := s.store.Heuristics().CountPendingJobDetails(ctx); err == nil {
		s.logger.Info().
			Int("batch", len(rows)).
			Int("pending_total", total).
			Msg("Enriching job details")
	} else {
		s.logger.Info().Int("batch", len(rows)).Msg("Enriching job details")
	}

	updated := 0
	for _, row := range rows {
		if ctx.Err() != nil {
			return updated, ctx.Err()
		}
		if err := s.enrichRow(ctx, row); err != nil {
			s.logger.Warn().Err(err).
				Str("url", row.URL).
				Str("request_id", extractRequestID(err.Error())).
				Msg("Job enrichment failed")
			continue
		}
		updated++
	}

	s.logger.Info().Int("updated", updated).Int("batch", len(rows)).Msg("Enrichment tick finished")
	return updated, nil
}

func (s *Service) enrichRow(ctx context.Context, detail models.PendingJobDetail) error {
	domain := domainOf(detail.URL)

	var configs []models.HeuristicConfigRow
	if domain != "" {
		var err error
		configs, err = s.store.Heuristics().ListJobDetailConfigs(ctx, domain)
		if err != nil {
			// Built-ins still apply; losing the learned set only costs a
			// slower match.
			s.logger.Debug().Err(err).Str("domain", domain).Msg("Learned heuristics unavailable")
			configs = nil
		}
	}

	ext := extract(detail, configs)
	s.recordWinners(ctx, domain, ext.winners)

	upd := models.HeuristicUpdate{
		URL:                detail.URL,
		HeuristicAttempts:  detail.HeuristicAttempts + 1,
		HeuristicVersion:   models.HeuristicVersion,
		HeuristicLastTried: time.Now().UnixMilli(),
	}

	if len(ext.locations) > 0 {
		upd.Location = ext.locations[0]
		if len(ext.locations) > 1 {
			upd.Locations = ext.locations
		}
		states, countries, tokens, country := normalizer.DeriveLocationFacets(ext.locations, detail.Remote)
		upd.LocationStates = states
		upd.Countries = countries
		upd.LocationSearchTokens = tokens
		upd.Country = country
	}
	if ext.compMidpoint > 0 {
		upd.TotalCompensation = ext.compMidpoint
		upd.CurrencyCode = ext.compCurrency
		known := false
		upd.CompensationUnknown = &known
	}

	if err := s.store.Heuristics().UpdateJobWithHeuristic(ctx, upd); err != nil {
		return fmt.Errorf("update job: %w", err)
	}

	if len(ext.locations) > 0 || ext.compMidpoint > 0 {
		s.logger.Debug().
			Str("url", detail.URL).
			Str("location", upd.Location).
			Int64("compensation", upd.TotalCompensation).
			Int("attempt", upd.HeuristicAttempts).
			Msg("Job enriched")
	}
	return nil
}

// recordWinners bumps hit counts for the regexes that matched. Best-effort:
// a failed write only slows future matching.
func (s *Service) recordWinners(ctx context.Context, domain string, winners []models.HeuristicConfigRow) {
	if domain == "" {
		return
	}
	for _, w := range winners {
		w.Domain = domain
		if err := s.store.Heuristics().RecordJobDetailHeuristic(ctx, w); err != nil {
			s.logger.Debug().Err(err).
				Str("domain", domain).
				Str("field", string(w.Field)).
				Msg("Failed to record heuristic hit")
		}
	}
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Host)
}

var requestIDRe = regexp.MustCompile(`[Rr]equest [Ii][Dd][:=]\s*([A-Za-z0-9-]+)`)

// extractRequestID pulls a store request id out of an error message so
// per-row failures can be chased upstream.
func extractRequestID(msg string) string {
	if m := requestIDRe.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	return ""
}
