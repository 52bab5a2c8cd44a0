package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// ScrapeRecordRow is the append-only log entry for one completed fetch
// cycle.
type ScrapeRecordRow struct {
	ID        string `badgerhold:"key"`
	SourceURL string `badgerhold:"index"`
	Provider  string
	Record    models.ScrapeRecord
	CreatedAt int64
}

// ScrapeErrorRow is the append-only parse-failure log entry.
type ScrapeErrorRow struct {
	ID        string `badgerhold:"key"`
	SourceURL string `badgerhold:"index"`
	Provider  string
	Message   string
	RawLength int
	CreatedAt int64
}

// ScrapeStorage implements the ScrapeStore interface for Badger.
type ScrapeStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewScrapeStorage creates a new ScrapeStorage instance
func NewScrapeStorage(db *BadgerDB, logger arbor.ILogger) *ScrapeStorage {
	return &ScrapeStorage{db: db, logger: logger}
}

func (s *ScrapeStorage) InsertScrapeRecord(ctx context.Context, rec models.ScrapeRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	row := ScrapeRecordRow{
		ID:        rec.ID,
		SourceURL: rec.SourceURL,
		Provider:  string(rec.Provider),
		Record:    rec,
		CreatedAt: models.TimeToMillis(time.Now()),
	}
	if err := s.db.Store().Insert(row.ID, row); err != nil {
		return fmt.Errorf("failed to insert scrape record: %w", err)
	}

	s.logger.Trace().
		Str("source_url", rec.SourceURL).
		Str("provider", string(rec.Provider)).
		Int("rows", rec.RowCount).
		Bool("truncated", rec.Truncated).
		Msg("Inserted scrape record")

	return nil
}

// InsertScrapeError is best-effort: cancellation is swallowed so error
// logging never fails a dying worker.
func (s *ScrapeStorage) InsertScrapeError(ctx context.Context, rec models.ScrapeError) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			s.logger.Debug().Str("source_url", rec.SourceURL).Msg("Skipping scrape-error insert on cancelled context")
			return nil
		}
		return err
	}

	createdAt := rec.CreatedAt
	if createdAt == 0 {
		createdAt = models.TimeToMillis(time.Now())
	}
	row := ScrapeErrorRow{
		ID:        uuid.New().String(),
		SourceURL: rec.SourceURL,
		Provider:  string(rec.Provider),
		Message:   rec.Message,
		RawLength: rec.RawLength,
		CreatedAt: createdAt,
	}
	if err := s.db.Store().Insert(row.ID, row); err != nil {
		return fmt.Errorf("failed to insert scrape error: %w", err)
	}
	return nil
}

var _ interfaces.ScrapeStore = (*ScrapeStorage)(nil)
