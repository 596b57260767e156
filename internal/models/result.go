package models

import "time"

// StepOutcome records what happened when one step ran.
type StepOutcome struct {
	Index     int           `json:"index"` // 1-based position in the scenario
	Name      string        `json:"name"`
	Kind      StepKind      `json:"kind"`
	Selector  string        `json:"selector,omitempty"`
	Status    StepStatus    `json:"status"`
	Expected  string        `json:"expected,omitempty"`
	Actual    string        `json:"actual,omitempty"`
	Message   string        `json:"message,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Attempts  int           `json:"attempts,omitempty"`
	Duration  time.Duration `json:"duration"`
	Artifacts []string      `json:"artifacts,omitempty"`
}

// AssertionOutcome records a scenario-level observation assertion.
type AssertionOutcome struct {
	Name     string     `json:"name"`
	Status   StepStatus `json:"status"`
	Expected string     `json:"expected"`
	Actual   string     `json:"actual"`
}

// Result is the finalized, read-only record of one scenario run.
type Result struct {
	ID           string             `json:"id" badgerhold:"key"`
	RunID        string             `json:"run_id" badgerholdIndex:"RunID"`
	Scenario     string             `json:"scenario" badgerholdIndex:"Scenario"`
	SourceFile   string             `json:"source_file,omitempty"`
	SessionID    string             `json:"session_id,omitempty"`
	Status       ScenarioStatus     `json:"status"`
	Error        string             `json:"error,omitempty"`
	ErrorKind    string             `json:"error_kind,omitempty"`
	StartedAt    time.Time          `json:"started_at"`
	FinishedAt   time.Time          `json:"finished_at"`
	Duration     time.Duration      `json:"duration"`
	Steps        []StepOutcome      `json:"steps"`
	Assertions   []AssertionOutcome `json:"assertions,omitempty"`
	Observations []Observation      `json:"observations,omitempty"`
	Artifacts    []string           `json:"artifacts,omitempty"`
}

// Counts returns the number of steps per status.
func (r *Result) Counts() map[StepStatus]int {
	counts := make(map[StepStatus]int)
	for _, s := range r.Steps {
		counts[s.Status]++
	}
	return counts
}

// RunSummary aggregates the results of one invocation.
type RunSummary struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
	Total      int           `json:"total"`
	Passed     int           `json:"passed"`
	Failed     int           `json:"failed"`
	Errored    int           `json:"errored"`
	ExitCode   int           `json:"exit_code"`
	Error      string        `json:"error,omitempty"` // run-level abort, e.g. session start failure
	Results    []*Result     `json:"results"`
}

// NewRunSummary tallies results into a summary.
func NewRunSummary(runID string, startedAt time.Time, results []*Result) *RunSummary {
	s := &RunSummary{
		RunID:      runID,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		Results:    results,
	}
	s.Duration = s.FinishedAt.Sub(startedAt)
	statuses := make([]ScenarioStatus, 0, len(results))
	for _, r := range results {
		s.Total++
		switch r.Status {
		case ScenarioStatusPassed:
			s.Passed++
		case ScenarioStatusFailed:
			s.Failed++
		default:
			s.Errored++
		}
		statuses = append(statuses, r.Status)
	}
	s.ExitCode = ExitCode(statuses)
	return s
}
