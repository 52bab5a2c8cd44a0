package badger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// JobRecord is the stored form of a normalized job, keyed by the canonical
// URL. SourceURL and ApplyURL carry indexes: the first feeds the seen-URL
// projection, the second lets API-form candidates match jobs whose
// canonical URL is the marketing form.
type JobRecord struct {
	URL       string `badgerhold:"key"`
	SourceURL string `badgerhold:"index"`
	ApplyURL  string `badgerhold:"index"`
	SiteID    string
	UpdatedAt int64
	Row       models.JobRow
}

// IgnoredJobRecord is the append-only log of dropped candidates. Ignored
// URLs join the seen projection so discovery never re-queues them.
type IgnoredJobRecord struct {
	ID        string `badgerhold:"key"`
	URL       string `badgerhold:"index"`
	SourceURL string `badgerhold:"index"`
	Title     string
	Reason    string
	Provider  string
	CreatedAt int64
}

// JobStorage implements the JobStore interface for Badger. Ingest and the
// enricher both read-modify-write job records, so record mutations are
// serialized with a mutex.
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) *JobStorage {
	return &JobStorage{db: db, logger: logger}
}

// ListSeenJobURLsForSite returns every URL already known for a source:
// canonical job URLs, their apply-URL twins, and ignored URLs. Discovery
// dedupes candidate detail URLs against this set.
func (s *JobStorage) ListSeenJobURLsForSite(ctx context.Context, sourceURL, pattern string) ([]string, error) {
	var jobs []JobRecord
	if err := s.db.Store().Find(&jobs, badgerhold.Where("SourceURL").Eq(sourceURL)); err != nil {
		return nil, fmt.Errorf("failed to list jobs for source: %w", err)
	}
	var ignored []IgnoredJobRecord
	if err := s.db.Store().Find(&ignored, badgerhold.Where("SourceURL").Eq(sourceURL)); err != nil {
		return nil, fmt.Errorf("failed to list ignored for source: %w", err)
	}

	seen := make(map[string]bool, len(jobs)*2+len(ignored))
	urls := make([]string, 0, len(jobs)*2+len(ignored))
	add := func(u string) {
		if u == "" || seen[u] {
			return
		}
		if !common.MatchesURLPattern(pattern, u) {
			return
		}
		seen[u] = true
		urls = append(urls, u)
	}
	for i := range jobs {
		add(jobs[i].URL)
		add(jobs[i].ApplyURL)
	}
	for i := range ignored {
		add(ignored[i].URL)
	}
	return urls, nil
}

// FindExistingJobURLs returns the subset of candidates already present as
// jobs, matching either the canonical URL or the apply URL.
func (s *JobStorage) FindExistingJobURLs(ctx context.Context, urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	existing := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		var rec JobRecord
		err := s.db.Store().Get(u, &rec)
		if err == nil {
			existing = append(existing, u)
			continue
		}
		if err != badgerhold.ErrNotFound {
			return existing, fmt.Errorf("failed to look up job %s: %w", u, err)
		}
		count, err := s.db.Store().Count(&JobRecord{}, badgerhold.Where("ApplyURL").Eq(u))
		if err != nil {
			return existing, fmt.Errorf("failed to look up apply URL %s: %w", u, err)
		}
		if count > 0 {
			existing = append(existing, u)
		}
	}
	return existing, nil
}

// IngestJobsFromScrape upserts normalized rows keyed by URL. Heuristic
// bookkeeping survives re-ingestion: a fresh scrape must not reset the
// attempts cap or discard learned location fields.
func (s *JobStorage) IngestJobsFromScrape(ctx context.Context, req models.IngestJobsRequest) error {
	if len(req.Jobs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := models.TimeToMillis(time.Now())
	for _, row := range req.Jobs {
		if row.URL == "" {
			continue
		}

		var prev JobRecord
		err := s.db.Store().Get(row.URL, &prev)
		if err == nil {
			if row.HeuristicAttempts == 0 {
				row.HeuristicAttempts = prev.Row.HeuristicAttempts
				row.HeuristicVersion = prev.Row.HeuristicVersion
				row.HeuristicLastTried = prev.Row.HeuristicLastTried
			}
			if len(row.LocationStates) == 0 {
				row.LocationStates = prev.Row.LocationStates
			}
			if len(row.Countries) == 0 {
				row.Countries = prev.Row.Countries
			}
			if len(row.LocationSearchTokens) == 0 {
				row.LocationSearchTokens = prev.Row.LocationSearchTokens
			}
			if row.Country == "" {
				row.Country = prev.Row.Country
			}
		} else if err != badgerhold.ErrNotFound {
			return fmt.Errorf("failed to load job %s: %w", row.URL, err)
		}

		rec := JobRecord{
			URL:       row.URL,
			SourceURL: req.SourceURL,
			ApplyURL:  row.ApplyURL,
			SiteID:    req.SiteID,
			UpdatedAt: nowMs,
			Row:       row,
		}
		if err := s.db.Store().Upsert(rec.URL, rec); err != nil {
			return fmt.Errorf("failed to ingest job %s: %w", row.URL, err)
		}
	}

	s.logger.Debug().
		Str("source_url", req.SourceURL).
		Int("jobs", len(req.Jobs)).
		Msg("Ingested jobs from scrape")

	return nil
}

// InsertIgnoredJob records a dropped candidate. Best-effort: cancellation
// is swallowed so a dying worker never fails on the ignore log.
func (s *JobStorage) InsertIgnoredJob(ctx context.Context, row models.IgnoredJob) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			s.logger.Debug().Str("url", row.URL).Msg("Skipping ignored-job insert on cancelled context")
			return nil
		}
		return err
	}

	rec := IgnoredJobRecord{
		ID:        uuid.New().String(),
		URL:       row.URL,
		SourceURL: row.SourceURL,
		Title:     row.Title,
		Reason:    string(row.Reason),
		Provider:  string(row.Provider),
		CreatedAt: models.TimeToMillis(time.Now()),
	}
	if err := s.db.Store().Insert(rec.ID, rec); err != nil {
		return fmt.Errorf("failed to insert ignored job: %w", err)
	}

	s.logger.Debug().
		Str("url", row.URL).
		Str("reason", string(row.Reason)).
		Msg("Recorded ignored job")

	return nil
}

// mutateJob applies fn to the record under the storage mutex. Used by the
// heuristic store so enrichment updates cannot race ingest upserts.
func (s *JobStorage) mutateJob(url string, fn func(*JobRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec JobRecord
	if err := s.db.Store().Get(url, &rec); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("job not found: %s", url)
		}
		return fmt.Errorf("failed to load job %s: %w", url, err)
	}

	fn(&rec)
	rec.UpdatedAt = models.TimeToMillis(time.Now())
	if err := s.db.Store().Update(url, rec); err != nil {
		return fmt.Errorf("failed to update job %s: %w", url, err)
	}
	return nil
}

var _ interfaces.JobStore = (*JobStorage)(nil)
