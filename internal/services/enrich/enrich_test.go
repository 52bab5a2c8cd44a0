package enrich

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/normalizer"
)

// heuristicStore is an in-memory HeuristicStore; the other store areas are
// unused by enrichment.
type heuristicStore struct {
	mu       sync.Mutex
	pending  []models.PendingJobDetail
	configs  map[string][]models.HeuristicConfigRow
	recorded []models.HeuristicConfigRow
	updates  []models.HeuristicUpdate
	failURL  string // UpdateJobWithHeuristic fails for this URL
}

func newHeuristicStore() *heuristicStore {
	return &heuristicStore{configs: make(map[string][]models.HeuristicConfigRow)}
}

func (h *heuristicStore) Sites() interfaces.SiteStore           { return nil }
func (h *heuristicStore) URLQueue() interfaces.URLQueueStore    { return nil }
func (h *heuristicStore) Jobs() interfaces.JobStore             { return nil }
func (h *heuristicStore) Scrapes() interfaces.ScrapeStore       { return nil }
func (h *heuristicStore) Webhooks() interfaces.WebhookStore     { return nil }
func (h *heuristicStore) Heuristics() interfaces.HeuristicStore { return h }
func (h *heuristicStore) Workflows() interfaces.WorkflowStore   { return nil }
func (h *heuristicStore) Close() error                          { return nil }

func (h *heuristicStore) ListPendingJobDetails(ctx context.Context, req models.ListPendingJobDetailsRequest) ([]models.PendingJobDetail, error) {
	if req.Limit > 0 && len(h.pending) > req.Limit {
		return h.pending[:req.Limit], nil
	}
	return h.pending, nil
}

func (h *heuristicStore) CountPendingJobDetails(ctx context.Context) (int, error) {
	return len(h.pending), nil
}

func (h *heuristicStore) ListJobDetailConfigs(ctx context.Context, domain string) ([]models.HeuristicConfigRow, error) {
	return h.configs[domain], nil
}

func (h *heuristicStore) RecordJobDetailHeuristic(ctx context.Context, row models.HeuristicConfigRow) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recorded = append(h.recorded, row)
	return nil
}

func (h *heuristicStore) UpdateJobWithHeuristic(ctx context.Context, upd models.HeuristicUpdate) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failURL != "" && upd.URL == h.failURL {
		return errors.New("store rejected update (Request ID: req-123)")
	}
	h.updates = append(h.updates, upd)
	return nil
}

func TestExtractLearnedLocationWinsOverBuiltins(t *testing.T) {
	configs := []models.HeuristicConfigRow{
		{Field: models.HeuristicFieldLocation, Regex: `(?m)^Office: (.+)$`},
	}
	detail := models.PendingJobDetail{Description: "Office: Austin, TX\nGreat team."}

	ext := extract(detail, configs)
	assert.Equal(t, []string{"Austin, TX"}, ext.locations)
	require.Len(t, ext.winners, 1)
	assert.Equal(t, `(?m)^Office: (.+)$`, ext.winners[0].Regex)
}

func TestExtractBuiltinLocationFallback(t *testing.T) {
	detail := models.PendingJobDetail{Description: "Location: San Francisco, CA\nHybrid schedule."}

	ext := extract(detail, nil)
	assert.Equal(t, []string{"San Francisco, CA"}, ext.locations)
	// The winning built-in is recorded by source so later rows on the same
	// domain try it first.
	require.Len(t, ext.winners, 1)
	assert.Equal(t, normalizer.LocationHeuristics()[0].Re.String(), ext.winners[0].Regex)
}

func TestExtractCompensationBuiltinRange(t *testing.T) {
	detail := models.PendingJobDetail{Description: "Base salary: $150,000 - $180,000 plus equity."}

	ext := extract(detail, nil)
	assert.Equal(t, int64(165000), ext.compMidpoint)
	assert.Equal(t, "USD", ext.compCurrency)
}

func TestExtractLearnedCompensationRecoversCurrency(t *testing.T) {
	// A learned regex that mirrors a built-in keeps that pattern's currency
	// and unit.
	kRange := normalizer.CompensationHeuristics()[2]
	require.Equal(t, "k_range", kRange.Name)
	configs := []models.HeuristicConfigRow{
		{Field: models.HeuristicFieldCompensation, Regex: kRange.Re.String()},
	}
	detail := models.PendingJobDetail{Description: "Comp band 150k - 180k depending on level."}

	ext := extract(detail, configs)
	assert.Equal(t, int64(165000), ext.compMidpoint)
	assert.Equal(t, "USD", ext.compCurrency)

	// A learned regex with no built-in twin is read as plain annual USD.
	configs = []models.HeuristicConfigRow{
		{Field: models.HeuristicFieldCompensation, Regex: `Salary band: ([0-9]+) to ([0-9]+)`},
	}
	detail = models.PendingJobDetail{Description: "Salary band: 100000 to 140000 annually."}

	ext = extract(detail, configs)
	assert.Equal(t, int64(120000), ext.compMidpoint)
	assert.Equal(t, "USD", ext.compCurrency)
}

func TestExtractSkipsFilledFields(t *testing.T) {
	detail := models.PendingJobDetail{
		Description:       "Location: Denver, Colorado\n$150,000 - $180,000",
		Location:          "New York, NY",
		TotalCompensation: 200000,
	}

	ext := extract(detail, nil)
	assert.Empty(t, ext.locations)
	assert.Zero(t, ext.compMidpoint)
	assert.Empty(t, ext.winners)
}

func TestExtractEmptyDescription(t *testing.T) {
	ext := extract(models.PendingJobDetail{}, nil)
	assert.Empty(t, ext.locations)
	assert.Zero(t, ext.compMidpoint)
}

func TestRangeMidpoint(t *testing.T) {
	assert.Equal(t, int64(165000), rangeMidpoint("150,000", "180,000", 1))
	assert.Equal(t, int64(95000), rangeMidpoint("", "95", 1000), "missing low bound collapses to the high bound")
	assert.Zero(t, rangeMidpoint("abc", "xyz", 1))
}

func TestEnrichRowUpdatesJob(t *testing.T) {
	store := newHeuristicStore()
	svc := NewService(store, nil, arbor.NewLogger())

	detail := models.PendingJobDetail{
		URL:               "https://careers.example.com/jobs/1",
		Description:       "Location: Denver, Colorado\nBase salary: $150,000 - $180,000.",
		HeuristicAttempts: 1,
	}
	require.NoError(t, svc.enrichRow(context.Background(), detail))

	require.Len(t, store.updates, 1)
	upd := store.updates[0]
	assert.Equal(t, detail.URL, upd.URL)
	assert.Equal(t, "Denver, Colorado", upd.Location)
	assert.Equal(t, []string{"Colorado"}, upd.LocationStates)
	assert.Equal(t, "United States", upd.Country)
	assert.Equal(t, int64(165000), upd.TotalCompensation)
	assert.Equal(t, "USD", upd.CurrencyCode)
	require.NotNil(t, upd.CompensationUnknown)
	assert.False(t, *upd.CompensationUnknown)

	// The attempt stamp advances even though extraction succeeded.
	assert.Equal(t, 2, upd.HeuristicAttempts)
	assert.Equal(t, models.HeuristicVersion, upd.HeuristicVersion)
	assert.Positive(t, upd.HeuristicLastTried)

	// Both winning built-ins are recorded for the row's domain.
	require.Len(t, store.recorded, 2)
	for _, rec := range store.recorded {
		assert.Equal(t, "careers.example.com", rec.Domain)
	}
}

func TestEnrichRowStampsAttemptOnMiss(t *testing.T) {
	store := newHeuristicStore()
	svc := NewService(store, nil, arbor.NewLogger())

	detail := models.PendingJobDetail{
		URL:         "https://careers.example.com/jobs/2",
		Description: "We are a fast-moving team shipping delightful software.",
	}
	require.NoError(t, svc.enrichRow(context.Background(), detail))

	require.Len(t, store.updates, 1)
	upd := store.updates[0]
	assert.Empty(t, upd.Location)
	assert.Zero(t, upd.TotalCompensation)
	assert.Nil(t, upd.CompensationUnknown)
	assert.Equal(t, 1, upd.HeuristicAttempts, "misses still count so the pending read eventually drops the row")
}

func TestRunSkipsPoisonRow(t *testing.T) {
	store := newHeuristicStore()
	store.pending = []models.PendingJobDetail{
		{URL: "https://careers.example.com/jobs/poison", Description: "Location: Austin, TX"},
		{URL: "https://careers.example.com/jobs/good", Description: "Location: Boston, MA"},
	}
	store.failURL = "https://careers.example.com/jobs/poison"
	svc := NewService(store, nil, arbor.NewLogger())

	updated, err := svc.Run(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
	require.Len(t, store.updates, 1)
	assert.Equal(t, "https://careers.example.com/jobs/good", store.updates[0].URL)
}

func TestRunEmptyQueue(t *testing.T) {
	svc := NewService(newHeuristicStore(), nil, arbor.NewLogger())
	updated, err := svc.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, updated)
}

func TestExtractRequestID(t *testing.T) {
	assert.Equal(t, "req-123", extractRequestID("store rejected update (Request ID: req-123)"))
	assert.Empty(t, extractRequestID("plain failure"))
}
