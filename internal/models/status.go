package models

// ScenarioStatus is the lifecycle state of one scenario run.
// Pending -> Running -> {Passed, Failed, Errored}
type ScenarioStatus string

const (
	ScenarioStatusPending ScenarioStatus = "pending"
	ScenarioStatusRunning ScenarioStatus = "running"
	ScenarioStatusPassed  ScenarioStatus = "passed"
	ScenarioStatusFailed  ScenarioStatus = "failed"  // the application under test did not behave as expected
	ScenarioStatusErrored ScenarioStatus = "errored" // the harness itself could not complete the run
)

// IsTerminal reports whether no further transitions are allowed.
func (s ScenarioStatus) IsTerminal() bool {
	return s == ScenarioStatusPassed || s == ScenarioStatusFailed || s == ScenarioStatusErrored
}

// CanTransitionTo enforces the scenario state machine.
func (s ScenarioStatus) CanTransitionTo(next ScenarioStatus) bool {
	switch s {
	case ScenarioStatusPending:
		return next == ScenarioStatusRunning || next == ScenarioStatusErrored
	case ScenarioStatusRunning:
		return next.IsTerminal()
	default:
		return false
	}
}

// StepStatus is the outcome of a single step.
type StepStatus string

const (
	StepStatusPassed  StepStatus = "passed"
	StepStatusFailed  StepStatus = "failed"
	StepStatusErrored StepStatus = "errored"
	StepStatusSkipped StepStatus = "skipped" // not executed because the scenario aborted earlier
)

// SessionState tracks a browser session lifecycle.
type SessionState string

const (
	SessionStateStarting SessionState = "starting"
	SessionStateReady    SessionState = "ready"
	SessionStateClosed   SessionState = "closed"
)

// FailurePolicy decides what happens after a step-local failure.
type FailurePolicy string

const (
	FailurePolicyContinue FailurePolicy = "continue" // record and run the remaining steps
	FailurePolicyAbort    FailurePolicy = "abort"    // record and skip the remaining steps
)

// ExitCode maps a set of scenario statuses to a process exit code.
// Errored wins over Failed so a broken run is never reported as a product defect.
func ExitCode(statuses []ScenarioStatus) int {
	code := 0
	for _, s := range statuses {
		switch s {
		case ScenarioStatusErrored, ScenarioStatusPending, ScenarioStatusRunning:
			return 2
		case ScenarioStatusFailed:
			code = 1
		}
	}
	return code
}
