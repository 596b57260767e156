package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ResultStorage implements the ResultStorage interface for Badger
type ResultStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewResultStorage creates a new ResultStorage instance
func NewResultStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ResultStorage {
	return &ResultStorage{
		db:     db,
		logger: logger,
	}
}

// SaveResult stores a finalized result
func (s *ResultStorage) SaveResult(ctx context.Context, result *models.Result) error {
	if result.ID == "" {
		return fmt.Errorf("result ID is required")
	}
	if err := s.db.Store().Upsert(result.ID, result); err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

// GetResult retrieves a result by ID
func (s *ResultStorage) GetResult(ctx context.Context, id string) (*models.Result, error) {
	var result models.Result
	err := s.db.Store().Get(id, &result)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return &result, nil
}

// ListResults returns the newest results first, optionally for one scenario
func (s *ResultStorage) ListResults(ctx context.Context, scenario string, limit int) ([]*models.Result, error) {
	query := badgerhold.Where("ID").Ne("")
	if scenario != "" {
		query = badgerhold.Where("Scenario").Eq(scenario)
	}
	query = query.SortBy("StartedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var results []models.Result
	if err := s.db.Store().Find(&results, query); err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}

	out := make([]*models.Result, len(results))
	for i := range results {
		out[i] = &results[i]
	}
	return out, nil
}
