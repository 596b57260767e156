package runner

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// MemoryRegistry is a process-local SelectorRegistry, used when badger storage is disabled
type MemoryRegistry struct {
	mu      sync.Mutex
	records map[string]interfaces.SelectorRecord
}

// NewMemoryRegistry creates an empty registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{records: make(map[string]interfaces.SelectorRecord)}
}

var _ interfaces.SelectorRegistry = (*MemoryRegistry)(nil)

func memoryKey(scenario, selector string) string {
	return scenario + "\x00" + selector
}

// Lookup returns the record for scenario/selector or interfaces.ErrNotFound
func (m *MemoryRegistry) Lookup(ctx context.Context, scenario, selector string) (*interfaces.SelectorRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[memoryKey(scenario, selector)]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &rec, nil
}

// RecordPass marks selectors as matched in a passing run
func (m *MemoryRegistry) RecordPass(ctx context.Context, scenario string, selectors []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, selector := range selectors {
		key := memoryKey(scenario, selector)
		rec := m.records[key]
		rec.Key = key
		rec.Scenario = scenario
		rec.Selector = selector
		rec.LastSeen = at
		rec.Passes++
		m.records[key] = rec
	}
	return nil
}

// List returns records sorted by scenario and selector
func (m *MemoryRegistry) List(ctx context.Context, scenario string) ([]interfaces.SelectorRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]interfaces.SelectorRecord, 0, len(m.records))
	for _, rec := range m.records {
		if scenario == "" || rec.Scenario == scenario {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scenario != out[j].Scenario {
			return out[i].Scenario < out[j].Scenario
		}
		return out[i].Selector < out[j].Selector
	})
	return out, nil
}

// Reset forgets all selectors, or those of one scenario
func (m *MemoryRegistry) Reset(ctx context.Context, scenario string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, rec := range m.records {
		if scenario == "" || rec.Scenario == scenario {
			delete(m.records, key)
		}
	}
	return nil
}

// detectDrift upgrades a not-found failure to SelectorDriftError when the selector
// matched during an earlier passing run of the same scenario.
// Steps that expect absence never drift.
func (ex *execution) detectDrift(ctx context.Context, step models.Step, err error) error {
	if ex.runner.registry == nil || step.ExpectsAbsence() {
		return err
	}
	var notFound *models.ElementNotFoundError
	if !errors.As(err, &notFound) {
		return err
	}
	selector := step.Selector
	if selector == "" {
		selector = notFound.Selector
	}

	rec, lookupErr := ex.runner.registry.Lookup(ctx, ex.scenario.Name, selector)
	if lookupErr != nil {
		if !errors.Is(lookupErr, interfaces.ErrNotFound) {
			ex.logger.Warn().Err(lookupErr).Str("selector", selector).Msg("Selector registry lookup failed")
		}
		return err
	}
	return &models.SelectorDriftError{
		Scenario: ex.scenario.Name,
		Selector: selector,
		LastSeen: rec.LastSeen,
	}
}

// recordSelectors stores the selectors that matched in a passing scenario
func (ex *execution) recordSelectors(ctx context.Context) {
	if ex.runner.registry == nil || len(ex.matched) == 0 {
		return
	}
	selectors := make([]string, 0, len(ex.matched))
	for selector := range ex.matched {
		selectors = append(selectors, selector)
	}
	sort.Strings(selectors)
	if err := ex.runner.registry.RecordPass(ctx, ex.scenario.Name, selectors, time.Now()); err != nil {
		ex.logger.Warn().Err(err).Msg("Failed to record selectors")
		return
	}
	ex.logger.Debug().Int("selectors", len(selectors)).Msg("Selectors recorded")
}
