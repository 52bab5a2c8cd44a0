package storage

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/storage/badger"
	"github.com/ternarybob/venari/internal/storage/convex"
)

// NewStoreManager creates a store manager for the configured backend. The
// remote Convex store is the production path; Badger keeps the same
// semantics on local disk for development and tests.
func NewStoreManager(logger arbor.ILogger, config *common.Config) (interfaces.StoreManager, error) {
	switch config.Storage.Type {
	case "convex":
		return convex.NewManager(logger, &config.Storage.Convex)
	case "badger", "":
		return badger.NewManager(logger, &config.Storage.Badger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (use 'convex' or 'badger')", config.Storage.Type)
	}
}
