package badger

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
)

// Manager implements the StoreManager interface for Badger
type Manager struct {
	db         *BadgerDB
	sites      *SiteStorage
	urlQueue   *URLQueueStorage
	jobs       *JobStorage
	scrapes    *ScrapeStorage
	webhooks   *WebhookStorage
	heuristics *HeuristicStorage
	workflows  *WorkflowStorage
	logger     arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	jobs := NewJobStorage(db, logger)
	manager := &Manager{
		db:         db,
		sites:      NewSiteStorage(db, logger),
		urlQueue:   NewURLQueueStorage(db, logger),
		jobs:       jobs,
		scrapes:    NewScrapeStorage(db, logger),
		webhooks:   NewWebhookStorage(db, logger),
		heuristics: NewHeuristicStorage(db, logger, jobs),
		workflows:  NewWorkflowStorage(db, logger),
		logger:     logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// Sites returns the site storage interface
func (m *Manager) Sites() interfaces.SiteStore { return m.sites }

// URLQueue returns the URL-queue storage interface
func (m *Manager) URLQueue() interfaces.URLQueueStore { return m.urlQueue }

// Jobs returns the job storage interface
func (m *Manager) Jobs() interfaces.JobStore { return m.jobs }

// Scrapes returns the scrape-log storage interface
func (m *Manager) Scrapes() interfaces.ScrapeStore { return m.scrapes }

// Webhooks returns the webhook storage interface
func (m *Manager) Webhooks() interfaces.WebhookStore { return m.webhooks }

// Heuristics returns the heuristic storage interface
func (m *Manager) Heuristics() interfaces.HeuristicStore { return m.heuristics }

// Workflows returns the workflow-run storage interface
func (m *Manager) Workflows() interfaces.WorkflowStore { return m.workflows }

// DB returns the underlying database connection
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.Store()
	}
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// LoadSitesFromFile seeds the site table from a YAML file.
func (m *Manager) LoadSitesFromFile(ctx context.Context, path string) error {
	return LoadSitesFromFile(ctx, m.sites, path, m.logger)
}

var _ interfaces.StoreManager = (*Manager)(nil)
