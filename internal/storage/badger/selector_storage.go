package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/timshannon/badgerhold/v4"
)

// SelectorStorage implements the SelectorRegistry interface for Badger
type SelectorStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSelectorStorage creates a new SelectorStorage instance
func NewSelectorStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SelectorRegistry {
	return &SelectorStorage{
		db:     db,
		logger: logger,
	}
}

// SelectorKey builds the record key for a scenario/selector pair
func SelectorKey(scenario, selector string) string {
	return scenario + "\x00" + selector
}

// Lookup returns the record for scenario/selector or interfaces.ErrNotFound
func (s *SelectorStorage) Lookup(ctx context.Context, scenario, selector string) (*interfaces.SelectorRecord, error) {
	var record interfaces.SelectorRecord
	err := s.db.Store().Get(SelectorKey(scenario, selector), &record)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get selector record: %w", err)
	}
	return &record, nil
}

// RecordPass upserts every selector with LastSeen=at and increments its pass count
func (s *SelectorStorage) RecordPass(ctx context.Context, scenario string, selectors []string, at time.Time) error {
	for _, selector := range selectors {
		key := SelectorKey(scenario, selector)

		record := interfaces.SelectorRecord{
			Key:      key,
			Scenario: scenario,
			Selector: selector,
		}
		var existing interfaces.SelectorRecord
		err := s.db.Store().Get(key, &existing)
		if err == nil {
			record.Passes = existing.Passes
		} else if err != badgerhold.ErrNotFound {
			return fmt.Errorf("failed to read selector record: %w", err)
		}
		record.Passes++
		record.LastSeen = at

		if err := s.db.Store().Upsert(key, &record); err != nil {
			return fmt.Errorf("failed to save selector record: %w", err)
		}
	}

	s.logger.Debug().
		Str("scenario", scenario).
		Int("selectors", len(selectors)).
		Msg("Recorded passing selectors")

	return nil
}

// List returns known selectors sorted by scenario then selector
func (s *SelectorStorage) List(ctx context.Context, scenario string) ([]interfaces.SelectorRecord, error) {
	query := badgerhold.Where("Key").Ne("")
	if scenario != "" {
		query = badgerhold.Where("Scenario").Eq(scenario)
	}

	var records []interfaces.SelectorRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list selector records: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Scenario != records[j].Scenario {
			return records[i].Scenario < records[j].Scenario
		}
		return records[i].Selector < records[j].Selector
	})
	return records, nil
}

// Reset deletes the records of one scenario, or all records when scenario is empty
func (s *SelectorStorage) Reset(ctx context.Context, scenario string) error {
	var query *badgerhold.Query
	if scenario != "" {
		query = badgerhold.Where("Scenario").Eq(scenario)
	}
	if err := s.db.Store().DeleteMatching(&interfaces.SelectorRecord{}, query); err != nil {
		return fmt.Errorf("failed to reset selector records: %w", err)
	}
	s.logger.Info().Str("scenario", scenario).Msg("Selector registry reset")
	return nil
}
