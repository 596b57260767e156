package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vigil/internal/models"
)

func passing(name string) models.Scenario {
	return models.Scenario{Name: name, Steps: []models.Step{{Kind: models.StepExists, Selector: "#ok"}}}
}

func failing(name string) models.Scenario {
	return models.Scenario{Name: name, Steps: []models.Step{{Kind: models.StepExists, Selector: "#missing"}}}
}

func erroring(name string) models.Scenario {
	return models.Scenario{Name: name, Steps: []models.Step{{Kind: models.StepKind("hover"), Selector: "#ok"}}}
}

func suitePage() *fakePage {
	page := newFakePage()
	page.set("#ok", visibleElement("ok"))
	return page
}

func TestRunSuite_ExitCodes(t *testing.T) {
	tests := []struct {
		name      string
		scenarios []models.Scenario
		want      int
	}{
		{"all passed", []models.Scenario{passing("a"), passing("b")}, 0},
		{"any failed", []models.Scenario{passing("a"), failing("b")}, 1},
		{"errored wins over failed", []models.Scenario{failing("a"), erroring("b"), passing("c")}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRunner(t, &fakeFactory{page: suitePage()}, Options{FreshSession: true})
			summary := r.RunSuite(context.Background(), tt.scenarios, nil)
			assert.Equal(t, tt.want, summary.ExitCode)
			assert.Equal(t, len(tt.scenarios), summary.Total)
			assert.Empty(t, summary.Error)
		})
	}
}

func TestRunSuite_SessionStartErrorAbortsRun(t *testing.T) {
	factory := &fakeFactory{err: &models.SessionStartError{Err: errors.New("chrome not found")}}
	r := newTestRunner(t, factory, Options{FreshSession: true})

	var seen []string
	summary := r.RunSuite(context.Background(), []models.Scenario{passing("a"), passing("b"), passing("c")}, func(result *models.Result) {
		seen = append(seen, result.Scenario)
	})

	assert.Equal(t, 1, factory.opened, "run stops after the first start failure")
	assert.Equal(t, 2, summary.ExitCode)
	assert.Equal(t, 3, summary.Errored)
	assert.Contains(t, summary.Error, "chrome not found")
	assert.Equal(t, []string{"a", "b", "c"}, seen)
	for _, result := range summary.Results {
		assert.Equal(t, "SessionStartError", result.ErrorKind)
	}
}

func TestRunSuite_SharedSession(t *testing.T) {
	factory := &fakeFactory{page: suitePage()}
	r := newTestRunner(t, factory, Options{FreshSession: false, Concurrency: 1})

	summary := r.RunSuite(context.Background(), []models.Scenario{passing("a"), failing("b"), passing("c")}, nil)
	assert.Equal(t, 1, factory.opened)
	assert.True(t, factory.allClosed())
	assert.Equal(t, 2, summary.Passed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.ExitCode)

	for _, result := range summary.Results {
		assert.Equal(t, summary.RunID, result.RunID)
	}
}

func TestRunSuite_ConcurrentScenariosOwnSessions(t *testing.T) {
	factory := &fakeFactory{page: suitePage()}
	r := newTestRunner(t, factory, Options{FreshSession: false, Concurrency: 3})

	scenarios := []models.Scenario{passing("a"), passing("b"), failing("c"), passing("d")}
	var mu sync.Mutex
	order := make([]string, 0, len(scenarios))
	summary := r.RunSuite(context.Background(), scenarios, func(result *models.Result) {
		mu.Lock()
		order = append(order, result.Scenario)
		mu.Unlock()
	})

	assert.Equal(t, 4, factory.opened, "concurrency always uses one session per scenario")
	assert.True(t, factory.allClosed())
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, order)
	// Results keep scenario order regardless of completion order
	for i, result := range summary.Results {
		assert.Equal(t, scenarios[i].Name, result.Scenario)
	}
	assert.Equal(t, 1, summary.ExitCode)
}

func TestRunSuite_CancelledRunMarksRemainingErrored(t *testing.T) {
	factory := &fakeFactory{page: suitePage()}
	r := newTestRunner(t, factory, Options{FreshSession: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary := r.RunSuite(ctx, []models.Scenario{passing("a"), passing("b")}, nil)
	assert.Equal(t, 0, factory.opened)
	assert.Equal(t, 2, summary.Errored)
	assert.Equal(t, 2, summary.ExitCode)
}

func TestScheduler_RunsImmediatelyAndStops(t *testing.T) {
	var runs atomic.Int32
	started := make(chan struct{}, 4)
	s, err := NewScheduler(arbor.NewLogger(), "@every 1h", func(ctx context.Context) {
		runs.Add(1)
		started <- struct{}{}
	})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()), "double start refused")

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("initial run did not start")
	}
	s.Stop()
	s.Stop()

	assert.Equal(t, int32(1), runs.Load())
	assert.Equal(t, 1, s.Runs())
	assert.False(t, s.Next().IsZero())
}

func TestScheduler_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	jobCtx := make(chan context.Context, 1)
	s, err := NewScheduler(arbor.NewLogger(), "*/5 * * * *", func(ctx context.Context) {
		jobCtx <- ctx
		<-ctx.Done()
	})
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx))

	running := <-jobCtx
	cancel()
	select {
	case <-running.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("job context not cancelled")
	}
}

func TestNewScheduler_InvalidSchedule(t *testing.T) {
	_, err := NewScheduler(arbor.NewLogger(), "whenever", func(context.Context) {})
	assert.Error(t, err)
}
