package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

const defaultHeuristicMaxAttempts = 3

// HeuristicConfigRecord is a learned per-domain regex, keyed by the
// domain|field|regex composite so re-recording the same pattern bumps its
// hit count instead of duplicating it.
type HeuristicConfigRecord struct {
	ID        string `badgerhold:"key"`
	Domain    string `badgerhold:"index"`
	Field     string
	Regex     string
	HitCount  int
	UpdatedAt int64
}

func heuristicConfigKey(row models.HeuristicConfigRow) string {
	return row.Domain + "|" + string(row.Field) + "|" + row.Regex
}

// HeuristicStorage implements the HeuristicStore interface for Badger. Job
// mutations go through the job storage so they share its mutex.
type HeuristicStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	jobs   *JobStorage
}

// NewHeuristicStorage creates a new HeuristicStorage instance
func NewHeuristicStorage(db *BadgerDB, logger arbor.ILogger, jobs *JobStorage) *HeuristicStorage {
	return &HeuristicStorage{db: db, logger: logger, jobs: jobs}
}

// pendingDetail reports whether a job row still needs enrichment: a field
// is missing and either the attempts cap is not reached or the row was last
// processed by older heuristic logic.
func pendingDetail(row *models.JobRow, maxAttempts int) bool {
	missing := row.Location == "" || row.CompensationUnknown
	if !missing {
		return false
	}
	if row.HeuristicVersion < models.HeuristicVersion {
		return true
	}
	return row.HeuristicAttempts < maxAttempts
}

func (s *HeuristicStorage) ListPendingJobDetails(ctx context.Context, req models.ListPendingJobDetailsRequest) ([]models.PendingJobDetail, error) {
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultHeuristicMaxAttempts
	}
	limit := req.Limit
	if limit <= 0 {
		limit = maxQueueListLimit
	}

	var records []JobRecord
	if err := s.db.Store().Find(&records, nil); err != nil {
		return nil, fmt.Errorf("failed to scan jobs for pending details: %w", err)
	}

	pending := make([]models.PendingJobDetail, 0, limit)
	for i := range records {
		row := &records[i].Row
		if !pendingDetail(row, maxAttempts) {
			continue
		}
		pending = append(pending, models.PendingJobDetail{
			URL:                 row.URL,
			Description:         row.Description,
			Location:            row.Location,
			Remote:              row.Remote,
			TotalCompensation:   row.TotalCompensation,
			CompensationUnknown: row.CompensationUnknown,
			HeuristicAttempts:   row.HeuristicAttempts,
		})
		if len(pending) >= limit {
			break
		}
	}
	return pending, nil
}

func (s *HeuristicStorage) CountPendingJobDetails(ctx context.Context) (int, error) {
	var records []JobRecord
	if err := s.db.Store().Find(&records, nil); err != nil {
		return 0, fmt.Errorf("failed to scan jobs for pending count: %w", err)
	}
	count := 0
	for i := range records {
		if pendingDetail(&records[i].Row, defaultHeuristicMaxAttempts) {
			count++
		}
	}
	return count, nil
}

// ListJobDetailConfigs returns learned regexes, most-hit first so callers
// try proven patterns before the hard-coded ones.
func (s *HeuristicStorage) ListJobDetailConfigs(ctx context.Context, domain string) ([]models.HeuristicConfigRow, error) {
	var records []HeuristicConfigRecord
	var query *badgerhold.Query
	if domain != "" {
		query = badgerhold.Where("Domain").Eq(domain)
	}
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list heuristic configs: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].HitCount > records[j].HitCount
	})

	rows := make([]models.HeuristicConfigRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, models.HeuristicConfigRow{
			Domain:   r.Domain,
			Field:    models.HeuristicField(r.Field),
			Regex:    r.Regex,
			HitCount: r.HitCount,
		})
	}
	return rows, nil
}

// RecordJobDetailHeuristic upserts a learned regex, bumping the hit count
// when it was already known.
func (s *HeuristicStorage) RecordJobDetailHeuristic(ctx context.Context, row models.HeuristicConfigRow) error {
	if row.Domain == "" || row.Regex == "" {
		return fmt.Errorf("heuristic config requires domain and regex")
	}

	key := heuristicConfigKey(row)
	rec := HeuristicConfigRecord{
		ID:        key,
		Domain:    row.Domain,
		Field:     string(row.Field),
		Regex:     row.Regex,
		HitCount:  1,
		UpdatedAt: models.TimeToMillis(time.Now()),
	}

	var existing HeuristicConfigRecord
	err := s.db.Store().Get(key, &existing)
	if err == nil {
		rec.HitCount = existing.HitCount + 1
	} else if err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to load heuristic config: %w", err)
	}

	if err := s.db.Store().Upsert(key, rec); err != nil {
		return fmt.Errorf("failed to record heuristic config: %w", err)
	}

	s.logger.Trace().
		Str("domain", row.Domain).
		Str("field", string(row.Field)).
		Int("hit_count", rec.HitCount).
		Msg("Recorded job detail heuristic")

	return nil
}

// UpdateJobWithHeuristic applies one enrichment pass to a job row. The
// bookkeeping fields are stamped unconditionally; extracted fields only
// when the pass produced them.
func (s *HeuristicStorage) UpdateJobWithHeuristic(ctx context.Context, upd models.HeuristicUpdate) error {
	if upd.URL == "" {
		return fmt.Errorf("heuristic update requires a URL")
	}

	return s.jobs.mutateJob(upd.URL, func(rec *JobRecord) {
		row := &rec.Row
		if upd.Location != "" {
			row.Location = upd.Location
		}
		if len(upd.Locations) > 0 {
			row.Locations = upd.Locations
		}
		if len(upd.LocationStates) > 0 {
			row.LocationStates = upd.LocationStates
		}
		if len(upd.Countries) > 0 {
			row.Countries = upd.Countries
		}
		if len(upd.LocationSearchTokens) > 0 {
			row.LocationSearchTokens = upd.LocationSearchTokens
		}
		if upd.Country != "" {
			row.Country = upd.Country
		}
		if upd.TotalCompensation > 0 {
			row.TotalCompensation = upd.TotalCompensation
		}
		if upd.CurrencyCode != "" {
			row.CurrencyCode = upd.CurrencyCode
		}
		if upd.CompensationUnknown != nil {
			row.CompensationUnknown = *upd.CompensationUnknown
		}
		row.HeuristicAttempts = upd.HeuristicAttempts
		row.HeuristicVersion = upd.HeuristicVersion
		row.HeuristicLastTried = upd.HeuristicLastTried
	})
}

var _ interfaces.HeuristicStore = (*HeuristicStorage)(nil)
