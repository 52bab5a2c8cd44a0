package badger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

const (
	// Rows held in processing longer than this are reclaimed to pending.
	defaultProcessingExpiryMs = 20 * 60 * 1000

	// Rows of any non-terminal status older than this are failed as stale.
	queueRowTTLMs = 48 * 60 * 60 * 1000

	maxQueueListLimit = 500
)

// ScrapeURLRecord is the stored form of a URL-queue row.
// Uniqueness per (provider, URL) holds only across non-terminal states;
// terminal rows for the same URL accumulate as history.
type ScrapeURLRecord struct {
	ID        string `badgerhold:"key"`
	URL       string `badgerhold:"index"`
	SourceURL string `badgerhold:"index"`
	Pattern   string
	Provider  string `badgerhold:"index"`
	Status    string `badgerhold:"index"`
	Attempts  int
	SiteID    string
	Error     string
	CreatedAt int64
	UpdatedAt int64
}

func (r *ScrapeURLRecord) toModel() models.ScrapeURLRow {
	return models.ScrapeURLRow{
		ID:        r.ID,
		URL:       r.URL,
		SourceURL: r.SourceURL,
		Pattern:   r.Pattern,
		Provider:  models.ProviderKind(r.Provider),
		Status:    models.QueueStatus(r.Status),
		Attempts:  r.Attempts,
		SiteID:    r.SiteID,
		Error:     r.Error,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// URLQueueStorage implements the URLQueueStore interface for Badger.
// Enqueue, lease and complete are serialized with a mutex so the
// lease-transition per row is atomic, the guarantee the remote store
// provides transactionally.
type URLQueueStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewURLQueueStorage creates a new URLQueueStorage instance
func NewURLQueueStorage(db *BadgerDB, logger arbor.ILogger) *URLQueueStorage {
	return &URLQueueStorage{db: db, logger: logger}
}

// EnqueueScrapeURLs inserts pending rows, skipping URLs already present in
// a non-terminal state for the same provider. Returns the queued subset.
func (s *URLQueueStorage) EnqueueScrapeURLs(ctx context.Context, req models.EnqueueScrapeURLsRequest) ([]string, error) {
	if len(req.URLs) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := models.TimeToMillis(time.Now())
	queued := make([]string, 0, len(req.URLs))

	for _, u := range req.URLs {
		if u == "" {
			continue
		}
		var existing []ScrapeURLRecord
		query := badgerhold.Where("URL").Eq(u).And("Provider").Eq(string(req.Provider))
		if err := s.db.Store().Find(&existing, query); err != nil {
			return queued, fmt.Errorf("failed to check queue for %s: %w", u, err)
		}
		inFlight := false
		for _, e := range existing {
			if !models.QueueStatus(e.Status).Terminal() {
				inFlight = true
				break
			}
		}
		if inFlight {
			continue
		}

		rec := ScrapeURLRecord{
			ID:        uuid.New().String(),
			URL:       u,
			SourceURL: req.SourceURL,
			Pattern:   req.Pattern,
			Provider:  string(req.Provider),
			Status:    string(models.QueueStatusPending),
			SiteID:    req.SiteID,
			CreatedAt: nowMs,
			UpdatedAt: nowMs,
		}
		if err := s.db.Store().Insert(rec.ID, rec); err != nil {
			return queued, fmt.Errorf("failed to enqueue %s: %w", u, err)
		}
		queued = append(queued, u)
	}

	s.logger.Debug().
		Str("source_url", req.SourceURL).
		Str("provider", string(req.Provider)).
		Int("requested", len(req.URLs)).
		Int("queued", len(queued)).
		Msg("Enqueued scrape URLs")

	return queued, nil
}

// LeaseScrapeURLBatch fails rows past the 48 h TTL, reclaims stale
// processing rows to pending, then transitions up to Limit pending rows to
// processing with attempts incremented. Reclaimed rows are leasable in the
// same pass.
func (s *URLQueueStorage) LeaseScrapeURLBatch(ctx context.Context, req models.LeaseScrapeURLBatchRequest) ([]models.ScrapeURLRow, error) {
	limit := req.Limit
	if req.MaxPerMinuteDefault > 0 && limit > req.MaxPerMinuteDefault {
		limit = req.MaxPerMinuteDefault
	}
	if limit <= 0 {
		return nil, nil
	}
	expiryMs := req.ProcessingExpiryMs
	if expiryMs <= 0 {
		expiryMs = defaultProcessingExpiryMs
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := badgerhold.Where("Status").In(
		string(models.QueueStatusPending),
		string(models.QueueStatusProcessing),
	)
	if req.Provider != "" {
		query = query.And("Provider").Eq(string(req.Provider))
	}
	var rows []ScrapeURLRecord
	if err := s.db.Store().Find(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to query queue rows: %w", err)
	}

	nowMs := models.TimeToMillis(time.Now())
	staled, reclaimed := 0, 0
	candidates := make([]ScrapeURLRecord, 0, len(rows))

	for _, r := range rows {
		if nowMs-r.CreatedAt > queueRowTTLMs {
			r.Status = string(models.QueueStatusFailed)
			r.Error = models.StaleQueueRowError
			r.UpdatedAt = nowMs
			if err := s.db.Store().Update(r.ID, r); err != nil {
				return nil, fmt.Errorf("failed to fail stale row %s: %w", r.URL, err)
			}
			staled++
			continue
		}
		if r.Status == string(models.QueueStatusProcessing) {
			if nowMs-r.UpdatedAt <= expiryMs {
				continue
			}
			r.Status = string(models.QueueStatusPending)
			r.UpdatedAt = nowMs
			if err := s.db.Store().Update(r.ID, r); err != nil {
				return nil, fmt.Errorf("failed to reclaim row %s: %w", r.URL, err)
			}
			reclaimed++
		}
		candidates = append(candidates, r)
	}

	if staled > 0 || reclaimed > 0 {
		s.logger.Info().
			Int("stale_failed", staled).
			Int("reclaimed", reclaimed).
			Msg("Queue maintenance before lease")
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt < candidates[j].CreatedAt
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	leased := make([]models.ScrapeURLRow, 0, len(candidates))
	for _, r := range candidates {
		r.Status = string(models.QueueStatusProcessing)
		r.Attempts++
		r.UpdatedAt = nowMs
		if err := s.db.Store().Update(r.ID, r); err != nil {
			return leased, fmt.Errorf("failed to lease row %s: %w", r.URL, err)
		}
		leased = append(leased, r.toModel())
	}

	return leased, nil
}

// CompleteScrapeURLs terminally transitions the given URLs. Rows already
// terminal are left untouched so retries of the completion are harmless.
func (s *URLQueueStorage) CompleteScrapeURLs(ctx context.Context, req models.CompleteScrapeURLsRequest) error {
	if len(req.URLs) == 0 {
		return nil
	}
	if !req.Status.Terminal() {
		return fmt.Errorf("completion status must be terminal, got %q", req.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := models.TimeToMillis(time.Now())
	for _, u := range req.URLs {
		query := badgerhold.Where("URL").Eq(u)
		if req.Provider != "" {
			query = query.And("Provider").Eq(string(req.Provider))
		}
		var rows []ScrapeURLRecord
		if err := s.db.Store().Find(&rows, query); err != nil {
			return fmt.Errorf("failed to load queue rows for %s: %w", u, err)
		}
		for _, r := range rows {
			if models.QueueStatus(r.Status).Terminal() {
				continue
			}
			r.Status = string(req.Status)
			if req.Status == models.QueueStatusFailed {
				r.Error = req.Error
			}
			r.UpdatedAt = nowMs
			if err := s.db.Store().Update(r.ID, r); err != nil {
				return fmt.Errorf("failed to complete row %s: %w", u, err)
			}
		}
	}

	s.logger.Debug().
		Str("status", string(req.Status)).
		Int("urls", len(req.URLs)).
		Msg("Completed scrape URLs")

	return nil
}

// ListQueuedScrapeURLs is the dedupe read used by discovery.
func (s *URLQueueStorage) ListQueuedScrapeURLs(ctx context.Context, req models.ListQueuedScrapeURLsRequest) ([]models.ScrapeURLRow, error) {
	limit := req.Limit
	if limit <= 0 || limit > maxQueueListLimit {
		limit = maxQueueListLimit
	}

	query := &badgerhold.Query{}
	started := false
	where := func(field string, value interface{}) {
		if started {
			query = query.And(field).Eq(value)
		} else {
			query = badgerhold.Where(field).Eq(value)
			started = true
		}
	}
	if req.Provider != "" {
		where("Provider", string(req.Provider))
	}
	if req.Status != "" {
		where("Status", string(req.Status))
	}
	if req.SiteID != "" {
		where("SiteID", req.SiteID)
	}
	query = query.SortBy("CreatedAt").Limit(limit)

	var rows []ScrapeURLRecord
	if err := s.db.Store().Find(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to list queued URLs: %w", err)
	}

	out := make([]models.ScrapeURLRow, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

var _ interfaces.URLQueueStore = (*URLQueueStorage)(nil)
