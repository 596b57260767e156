package main

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/storage/badger"
)

// openStorage opens the badger store for the maintenance commands, which need
// neither a browser nor the runner
func openStorage() (interfaces.StorageManager, arbor.ILogger, error) {
	config, err := loadConfig(common.FlagOverrides{})
	if err != nil {
		return nil, nil, err
	}
	logger := common.InitLogger(config)

	if !config.Storage.Badger.Enabled {
		return nil, nil, fmt.Errorf("storage is disabled: set [storage.badger] enabled = true")
	}
	// Never wipe the registry or history the command is about to read
	config.Storage.Badger.ResetOnStartup = false

	manager, err := badger.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return manager, logger, nil
}
