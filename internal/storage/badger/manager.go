// -----------------------------------------------------------------------
// Badger storage manager - selector registry and result history
// -----------------------------------------------------------------------

package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db        *BadgerDB
	selectors interfaces.SelectorRegistry
	results   interfaces.ResultStorage
	logger    arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:        db,
		selectors: NewSelectorStorage(db, logger),
		results:   NewResultStorage(db, logger),
		logger:    logger,
	}

	logger.Debug().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

// SelectorRegistry returns the selector registry used for drift detection
func (m *Manager) SelectorRegistry() interfaces.SelectorRegistry {
	return m.selectors
}

// ResultStorage returns the result history store
func (m *Manager) ResultStorage() interfaces.ResultStorage {
	return m.results
}

// Close closes the underlying database
func (m *Manager) Close() error {
	return m.db.Close()
}
