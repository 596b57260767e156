package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name     string
		statuses []ScenarioStatus
		want     int
	}{
		{"empty run", nil, 0},
		{"all passed", []ScenarioStatus{ScenarioStatusPassed, ScenarioStatusPassed}, 0},
		{"one failed", []ScenarioStatus{ScenarioStatusPassed, ScenarioStatusFailed}, 1},
		{"errored wins", []ScenarioStatus{ScenarioStatusFailed, ScenarioStatusErrored, ScenarioStatusPassed}, 2},
		{"unfinished counts as errored", []ScenarioStatus{ScenarioStatusRunning}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.statuses))
		})
	}
}

func TestScenarioStatus_Transitions(t *testing.T) {
	assert.True(t, ScenarioStatusPending.CanTransitionTo(ScenarioStatusRunning))
	assert.True(t, ScenarioStatusPending.CanTransitionTo(ScenarioStatusErrored), "session start failure")
	assert.False(t, ScenarioStatusPending.CanTransitionTo(ScenarioStatusPassed))
	assert.True(t, ScenarioStatusRunning.CanTransitionTo(ScenarioStatusFailed))
	assert.False(t, ScenarioStatusRunning.CanTransitionTo(ScenarioStatusPending))
	for _, terminal := range []ScenarioStatus{ScenarioStatusPassed, ScenarioStatusFailed, ScenarioStatusErrored} {
		assert.True(t, terminal.IsTerminal())
		assert.False(t, terminal.CanTransitionTo(ScenarioStatusRunning))
	}
}

func TestClassify(t *testing.T) {
	mismatch := &AssertionMismatchError{What: "#x visible", Expected: "true", Actual: "false"}
	tests := []struct {
		name     string
		err      error
		wantKind string
		want     StepStatus
	}{
		{"nil", nil, "", StepStatusPassed},
		{"not found", &ElementNotFoundError{Selector: "#x"}, "ElementNotFoundError", StepStatusFailed},
		{"wrapped mismatch", fmt.Errorf("step 2: %w", mismatch), "AssertionMismatchError", StepStatusFailed},
		{"not interactable", &ElementNotInteractableError{Selector: "#x"}, "ElementNotInteractableError", StepStatusFailed},
		{"retry timeout", &TimeoutExceededError{Err: mismatch}, "TimeoutExceededError", StepStatusFailed},
		{"retry cut by cancel", &TimeoutExceededError{Err: context.Canceled}, "TimeoutExceededError", StepStatusErrored},
		{"drift", &SelectorDriftError{Scenario: "s", Selector: "#x"}, "SelectorDriftError", StepStatusErrored},
		{"session start", &SessionStartError{Err: errors.New("no chrome")}, "SessionStartError", StepStatusErrored},
		{"deadline", fmt.Errorf("step exceeded its 1s timeout: %w", context.DeadlineExceeded), "Cancelled", StepStatusErrored},
		{"anything else", errors.New("cdp: target closed"), "error", StepStatusErrored},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantKind, ErrorKind(tt.err))
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestIsRunFatal(t *testing.T) {
	assert.True(t, IsRunFatal(fmt.Errorf("open: %w", &SessionStartError{Err: errors.New("x")})))
	assert.False(t, IsRunFatal(&SelectorDriftError{}))
	assert.False(t, IsRunFatal(nil))
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("250ms")))
	assert.Equal(t, 250*time.Millisecond, d.Std())
	assert.Equal(t, 250*time.Millisecond, d.Or(time.Second))
	assert.Equal(t, time.Second, Duration(0).Or(time.Second))

	var wrapped struct {
		Timeout Duration `json:"timeout"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"timeout":"5s"}`), &wrapped))
	assert.Equal(t, 5*time.Second, wrapped.Timeout.Std())

	out, err := json.Marshal(wrapped)
	require.NoError(t, err)
	assert.JSONEq(t, `{"timeout":"5s"}`, string(out))

	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

func TestStep_ExpectsAbsence(t *testing.T) {
	no := false
	zero := 0
	one := 1
	assert.True(t, Step{Kind: StepHidden}.ExpectsAbsence())
	assert.True(t, Step{Kind: StepExists, Expect: &Expect{Exists: &no}}.ExpectsAbsence())
	assert.True(t, Step{Kind: StepCount, Expect: &Expect{Count: &zero}}.ExpectsAbsence())
	assert.False(t, Step{Kind: StepCount, Expect: &Expect{Count: &one}}.ExpectsAbsence())
	assert.False(t, Step{Kind: StepVisible}.ExpectsAbsence())
}

func TestStep_Label(t *testing.T) {
	assert.Equal(t, "open app", Step{Name: "open app", Kind: StepNavigate}.Label())
	assert.Equal(t, "click #send", Step{Kind: StepClick, Selector: "#send"}.Label())
	assert.Equal(t, "navigate /settings", Step{Kind: StepNavigate, URL: "/settings"}.Label())
}

func TestNewRunSummary(t *testing.T) {
	results := []*Result{
		{Status: ScenarioStatusPassed},
		{Status: ScenarioStatusFailed},
		{Status: ScenarioStatusErrored},
	}
	s := NewRunSummary("run-1", time.Now().Add(-time.Second), results)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Passed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Errored)
	assert.Equal(t, 2, s.ExitCode)
	assert.GreaterOrEqual(t, s.Duration, time.Second)
}
