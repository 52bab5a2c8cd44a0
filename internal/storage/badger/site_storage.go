package badger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// SiteRecord is the stored form of a monitored site.
type SiteRecord struct {
	ID   string `badgerhold:"key"`
	Name string
	URL  string

	SiteType       string `badgerhold:"index"`
	URLPattern     string
	ScrapeProvider string
	Enabled        bool `badgerhold:"index"`
	Completed      bool
	Schedule       string

	LastRunAt       int64
	LockExpires     int64
	LockedBy        string
	ManualTriggerAt int64

	CompletedCount int
	FailedCount    int
}

func (r *SiteRecord) toModel() models.Site {
	return models.Site{
		ID:              r.ID,
		Name:            r.Name,
		URL:             r.URL,
		SiteType:        models.SiteType(r.SiteType),
		URLPattern:      r.URLPattern,
		ScrapeProvider:  models.ProviderKind(r.ScrapeProvider),
		Enabled:         r.Enabled,
		Completed:       r.Completed,
		Schedule:        r.Schedule,
		LastRunAt:       r.LastRunAt,
		LockExpires:     r.LockExpires,
		LockedBy:        r.LockedBy,
		ManualTriggerAt: r.ManualTriggerAt,
		CompletedCount:  r.CompletedCount,
		FailedCount:     r.FailedCount,
	}
}

func siteRecordFromModel(s models.Site) SiteRecord {
	return SiteRecord{
		ID:              s.ID,
		Name:            s.Name,
		URL:             s.URL,
		SiteType:        string(s.SiteType),
		URLPattern:      s.URLPattern,
		ScrapeProvider:  string(s.ScrapeProvider),
		Enabled:         s.Enabled,
		Completed:       s.Completed,
		Schedule:        s.Schedule,
		LastRunAt:       s.LastRunAt,
		LockExpires:     s.LockExpires,
		LockedBy:        s.LockedBy,
		ManualTriggerAt: s.ManualTriggerAt,
		CompletedCount:  s.CompletedCount,
		FailedCount:     s.FailedCount,
	}
}

// SiteStorage implements the SiteStore interface for Badger. The lease path
// is serialized with a mutex so at most one caller observes a site as
// leasable; the remote store gets the same guarantee from its transactional
// mutations.
type SiteStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewSiteStorage creates a new SiteStorage instance
func NewSiteStorage(db *BadgerDB, logger arbor.ILogger) *SiteStorage {
	return &SiteStorage{db: db, logger: logger}
}

// SaveSite upserts a site row; new rows get a generated id.
func (s *SiteStorage) SaveSite(ctx context.Context, site models.Site) (models.Site, error) {
	if site.URL == "" {
		return site, fmt.Errorf("site URL is required")
	}
	if site.ID == "" {
		site.ID = uuid.New().String()
	}
	rec := siteRecordFromModel(site)
	if err := s.db.Store().Upsert(rec.ID, rec); err != nil {
		return site, fmt.Errorf("failed to save site: %w", err)
	}
	return site, nil
}

func (s *SiteStorage) ListSites(ctx context.Context, req models.ListSitesRequest) ([]models.Site, error) {
	query := &badgerhold.Query{}
	if req.Enabled != nil {
		query = badgerhold.Where("Enabled").Eq(*req.Enabled)
	}
	if req.SiteType != "" {
		if req.Enabled != nil {
			query = query.And("SiteType").Eq(string(req.SiteType))
		} else {
			query = badgerhold.Where("SiteType").Eq(string(req.SiteType))
		}
	}
	if req.Limit > 0 {
		query = query.Limit(req.Limit)
	}

	var records []SiteRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}

	sites := make([]models.Site, 0, len(records))
	for _, r := range records {
		sites = append(sites, r.toModel())
	}
	return sites, nil
}

// LeaseSite claims at most one enabled, not-completed site whose lock has
// expired or was never held. Manual triggers are served first.
func (s *SiteStorage) LeaseSite(ctx context.Context, req models.LeaseSiteRequest) (*models.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []SiteRecord
	query := badgerhold.Where("Enabled").Eq(true)
	if req.SiteType != "" {
		query = query.And("SiteType").Eq(string(req.SiteType))
	}
	if req.ScrapeProvider != "" {
		query = query.And("ScrapeProvider").Eq(string(req.ScrapeProvider))
	}
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to query leasable sites: %w", err)
	}

	now := time.Now()
	nowMs := models.TimeToMillis(now)

	var pick *SiteRecord
	for i := range records {
		r := &records[i]
		if r.Completed && r.ManualTriggerAt == 0 {
			continue
		}
		if r.LockExpires != 0 && r.LockExpires > nowMs {
			continue
		}
		if pick == nil {
			pick = r
			continue
		}
		// Manual triggers beat scheduled work; otherwise oldest run first.
		if r.ManualTriggerAt != 0 && pick.ManualTriggerAt == 0 {
			pick = r
		} else if r.ManualTriggerAt == pick.ManualTriggerAt && r.LastRunAt < pick.LastRunAt {
			pick = r
		}
	}
	if pick == nil {
		return nil, nil
	}

	pick.LockedBy = req.WorkerID
	pick.LockExpires = models.TimeToMillis(now.Add(time.Duration(req.LockSeconds) * time.Second))
	pick.ManualTriggerAt = 0
	if err := s.db.Store().Update(pick.ID, *pick); err != nil {
		return nil, fmt.Errorf("failed to stamp site lease: %w", err)
	}

	s.logger.Debug().
		Str("site_id", pick.ID).
		Str("url", pick.URL).
		Str("worker_id", req.WorkerID).
		Msg("Leased site")

	site := pick.toModel()
	return &site, nil
}

func (s *SiteStorage) CompleteSite(ctx context.Context, id string) error {
	return s.release(id, "", true)
}

func (s *SiteStorage) FailSite(ctx context.Context, id string, errMsg string) error {
	return s.release(id, errMsg, false)
}

// release clears the lock and bumps counters. Unknown or non-store ids are
// tolerated without error, matching the remote store's behavior for rows
// it never managed.
func (s *SiteStorage) release(id, errMsg string, completed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec SiteRecord
	if err := s.db.Store().Get(id, &rec); err != nil {
		if err == badgerhold.ErrNotFound {
			s.logger.Debug().Str("site_id", id).Msg("Ignoring release of unknown site id")
			return nil
		}
		return fmt.Errorf("failed to load site: %w", err)
	}

	rec.LockedBy = ""
	rec.LockExpires = 0
	rec.LastRunAt = models.TimeToMillis(time.Now())
	if completed {
		rec.CompletedCount++
	} else {
		rec.FailedCount++
		s.logger.Debug().Str("site_id", id).Str("error", errMsg).Msg("Site run failed")
	}

	if err := s.db.Store().Update(id, rec); err != nil {
		return fmt.Errorf("failed to release site: %w", err)
	}
	return nil
}

// HeartbeatSite extends a lease still held by workerID. A lease that
// expired and was reclaimed by another worker is left alone; the original
// holder finds out at settle time, which tolerates lost locks the same way.
func (s *SiteStorage) HeartbeatSite(ctx context.Context, id, workerID string, lockSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec SiteRecord
	if err := s.db.Store().Get(id, &rec); err != nil {
		if err == badgerhold.ErrNotFound {
			s.logger.Debug().Str("site_id", id).Msg("Ignoring heartbeat for unknown site id")
			return nil
		}
		return fmt.Errorf("failed to load site: %w", err)
	}
	if rec.LockedBy != workerID {
		s.logger.Debug().
			Str("site_id", id).
			Str("worker_id", workerID).
			Str("locked_by", rec.LockedBy).
			Msg("Ignoring heartbeat for lease held elsewhere")
		return nil
	}

	rec.LockExpires = models.TimeToMillis(time.Now().Add(time.Duration(lockSeconds) * time.Second))
	if err := s.db.Store().Update(id, rec); err != nil {
		return fmt.Errorf("failed to extend site lease: %w", err)
	}
	return nil
}

// TriggerSite stamps manualTriggerAt; the site is picked up once its lock
// expires, never by breaking a live lease.
func (s *SiteStorage) TriggerSite(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec SiteRecord
	if err := s.db.Store().Get(id, &rec); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("site not found: %s", id)
		}
		return fmt.Errorf("failed to load site: %w", err)
	}

	rec.ManualTriggerAt = models.TimeToMillis(time.Now())
	if err := s.db.Store().Update(id, rec); err != nil {
		return fmt.Errorf("failed to stamp manual trigger: %w", err)
	}

	s.logger.Info().Str("site_id", id).Str("url", rec.URL).Msg("Manual trigger recorded")
	return nil
}

var _ interfaces.SiteStore = (*SiteStorage)(nil)
