package badger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()
	config := &common.BadgerConfig{
		Enabled: true,
		Path:    filepath.Join(t.TempDir(), "db"),
	}
	manager, err := NewManager(arbor.NewLogger(), config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })
	return manager
}

func TestSelectorStorage_RecordPassAndLookup(t *testing.T) {
	registry := newTestManager(t).SelectorRegistry()
	ctx := context.Background()

	_, err := registry.Lookup(ctx, "voice chat", "[data-testid=mic-button]")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	require.NoError(t, registry.RecordPass(ctx, "voice chat", []string{"[data-testid=mic-button]", "#status"}, first))
	require.NoError(t, registry.RecordPass(ctx, "voice chat", []string{"[data-testid=mic-button]"}, second))

	record, err := registry.Lookup(ctx, "voice chat", "[data-testid=mic-button]")
	require.NoError(t, err)
	assert.Equal(t, 2, record.Passes)
	assert.True(t, record.LastSeen.Equal(second))

	record, err = registry.Lookup(ctx, "voice chat", "#status")
	require.NoError(t, err)
	assert.Equal(t, 1, record.Passes)
}

func TestSelectorStorage_ListAndReset(t *testing.T) {
	registry := newTestManager(t).SelectorRegistry()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, registry.RecordPass(ctx, "b", []string{"#two", "#one"}, now))
	require.NoError(t, registry.RecordPass(ctx, "a", []string{"#zero"}, now))

	all, err := registry.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].Scenario)
	assert.Equal(t, "#one", all[1].Selector)

	only, err := registry.List(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, only, 2)

	require.NoError(t, registry.Reset(ctx, "b"))
	all, err = registry.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "#zero", all[0].Selector)

	require.NoError(t, registry.Reset(ctx, ""))
	all, err = registry.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestResultStorage_SaveListNewestFirst(t *testing.T) {
	results := newTestManager(t).ResultStorage()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, name := range []string{"login", "chat", "login"} {
		require.NoError(t, results.SaveResult(ctx, &models.Result{
			ID:        common.NewResultID(),
			RunID:     "run_1",
			Scenario:  name,
			Status:    models.ScenarioStatusPassed,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			Observations: []models.Observation{{
				Category: models.CategoryWebSocket,
				Text:     `{"type":"response.create"}`,
				Type:     "response.create",
				Payload:  map[string]interface{}{"type": "response.create"},
			}},
		}))
	}

	all, err := results.ListResults(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].StartedAt.After(all[1].StartedAt))

	logins, err := results.ListResults(ctx, "login", 1)
	require.NoError(t, err)
	require.Len(t, logins, 1)
	assert.True(t, logins[0].StartedAt.Equal(base.Add(2*time.Minute)))

	got, err := results.GetResult(ctx, logins[0].ID)
	require.NoError(t, err)
	require.Len(t, got.Observations, 1)
	assert.Equal(t, "response.create", got.Observations[0].Type)
	assert.Equal(t, map[string]interface{}{"type": "response.create"}, got.Observations[0].Payload)

	_, err = results.GetResult(ctx, "res_missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	assert.Error(t, results.SaveResult(ctx, &models.Result{}))
}
