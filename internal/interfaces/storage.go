package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/vigil/internal/models"
)

// ErrNotFound is returned when a stored record does not exist
var ErrNotFound = errors.New("not found")

// SelectorRecord remembers that a selector matched during a passing scenario run
type SelectorRecord struct {
	Key      string    `json:"key" badgerhold:"key"` // scenario + "\x00" + selector
	Scenario string    `json:"scenario" badgerholdIndex:"Scenario"`
	Selector string    `json:"selector"`
	LastSeen time.Time `json:"last_seen"`
	Passes   int       `json:"passes"`
}

// SelectorRegistry is the drift-detection memory of previously valid selectors
type SelectorRegistry interface {
	// Lookup returns the record for a scenario/selector pair or ErrNotFound
	Lookup(ctx context.Context, scenario, selector string) (*SelectorRecord, error)

	// RecordPass marks every selector as matched in a passing run of scenario
	RecordPass(ctx context.Context, scenario string, selectors []string, at time.Time) error

	// List returns known selectors, optionally for one scenario
	List(ctx context.Context, scenario string) ([]SelectorRecord, error)

	// Reset forgets selectors, optionally for one scenario only
	Reset(ctx context.Context, scenario string) error
}

// ResultStorage keeps the history of scenario results
type ResultStorage interface {
	SaveResult(ctx context.Context, result *models.Result) error
	GetResult(ctx context.Context, id string) (*models.Result, error)

	// ListResults returns the newest results first, optionally filtered by scenario
	ListResults(ctx context.Context, scenario string, limit int) ([]*models.Result, error)
}

// StorageManager owns the persistent stores
type StorageManager interface {
	SelectorRegistry() SelectorRegistry
	ResultStorage() ResultStorage
	Close() error
}
