// -----------------------------------------------------------------------
// Scenario Runner - drives one scenario through Pending -> Running -> terminal
// -----------------------------------------------------------------------

package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/httpclient"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/ternarybob/vigil/internal/observe"
)

// artifactTimeout bounds failure screenshots taken after the scenario context is gone
const artifactTimeout = 10 * time.Second

// Options are the runner defaults a scenario may override
type Options struct {
	BaseURL         string
	APIURL          string
	ScenarioTimeout time.Duration
	StepTimeout     time.Duration
	PollInterval    time.Duration
	Policy          models.FailurePolicy
	ArtifactsDir    string
	FreshSession    bool
	Concurrency     int
	Capture         models.ObservationFilter
	Session         models.SessionConfig
}

// OptionsFromConfig maps the [runner], [browser] and [observer] sections
func OptionsFromConfig(config *common.Config) Options {
	return Options{
		BaseURL:         config.Runner.BaseURL,
		APIURL:          config.APIBaseURL(),
		ScenarioTimeout: common.ParseDurationOr(config.Runner.ScenarioTimeout, 2*time.Minute),
		StepTimeout:     common.ParseDurationOr(config.Runner.StepTimeout, 10*time.Second),
		PollInterval:    common.ParseDurationOr(config.Runner.PollInterval, DefaultPollInterval),
		Policy:          models.FailurePolicy(config.Runner.FailurePolicy),
		ArtifactsDir:    config.Runner.ArtifactsDir,
		FreshSession:    config.Runner.FreshSession,
		Concurrency:     config.Runner.Concurrency,
		Capture:         config.CaptureFilter(),
		Session:         config.SessionConfig(),
	}
}

// Option configures a Runner
type Option func(*Runner)

// WithRegistry enables selector drift detection
func WithRegistry(registry interfaces.SelectorRegistry) Option {
	return func(r *Runner) { r.registry = registry }
}

// WithResultStorage saves every finalized result
func WithResultStorage(results interfaces.ResultStorage) Option {
	return func(r *Runner) { r.results = results }
}

// WithHTTPClient sets the client used by http steps
func WithHTTPClient(client *httpclient.Client) Option {
	return func(r *Runner) { r.http = client }
}

// WithDialer sets the WebSocket dialer used by ws steps
func WithDialer(dialer *websocket.Dialer) Option {
	return func(r *Runner) { r.dialer = dialer }
}

// Runner executes scenarios against browser sessions
type Runner struct {
	logger   arbor.ILogger
	factory  interfaces.SessionFactory
	opts     Options
	http     *httpclient.Client
	dialer   *websocket.Dialer
	registry interfaces.SelectorRegistry
	results  interfaces.ResultStorage
}

// New creates a runner. factory opens one session per scenario unless sessions are shared.
func New(logger arbor.ILogger, factory interfaces.SessionFactory, opts Options, options ...Option) (*Runner, error) {
	if opts.Policy == "" {
		opts.Policy = models.FailurePolicyContinue
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = 10 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.APIURL == "" {
		opts.APIURL = opts.BaseURL
	}

	r := &Runner{
		logger:  logger,
		factory: factory,
		opts:    opts,
		dialer:  websocket.DefaultDialer,
	}
	for _, option := range options {
		option(r)
	}
	if r.http == nil {
		client, err := httpclient.NewClient(
			httpclient.WithBaseURL(opts.APIURL),
			httpclient.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create http client: %w", err)
		}
		r.http = client
	}
	return r, nil
}

// Run opens a fresh session, runs sc and closes the session.
// The returned error is non-nil only for run-fatal failures such as SessionStartError;
// the result is always populated.
func (r *Runner) Run(ctx context.Context, sc models.Scenario) (*models.Result, error) {
	return r.run(ctx, common.NewRunID(), sc, nil)
}

// RunWithSession runs sc on an existing session, which stays open afterwards
func (r *Runner) RunWithSession(ctx context.Context, session interfaces.Session, sc models.Scenario) *models.Result {
	result, _ := r.run(ctx, common.NewRunID(), sc, session)
	return result
}

func (r *Runner) run(ctx context.Context, runID string, sc models.Scenario, shared interfaces.Session) (*models.Result, error) {
	ex := r.newExecution(runID, sc)

	if shared != nil {
		ex.execute(ctx, shared)
		r.finish(ctx, ex)
		return ex.result, nil
	}

	session, err := r.factory.Open(ctx, r.opts.Session)
	if err != nil {
		ex.abort(err)
		r.finish(ctx, ex)
		if models.IsRunFatal(err) {
			return ex.result, err
		}
		return ex.result, nil
	}
	defer func() {
		if err := session.Close(); err != nil {
			ex.logger.Warn().Err(err).Str("session_id", session.ID()).Msg("Session close reported an error")
		}
	}()

	ex.execute(ctx, session)
	r.finish(ctx, ex)
	return ex.result, nil
}

// finish logs and stores the terminal result
func (r *Runner) finish(ctx context.Context, ex *execution) {
	result := ex.result
	event := ex.logger.Info()
	if result.Status != models.ScenarioStatusPassed {
		event = ex.logger.Warn()
	}
	counts := result.Counts()
	event.
		Str("scenario", result.Scenario).
		Str("status", string(result.Status)).
		Int("passed", counts[models.StepStatusPassed]).
		Int("failed", counts[models.StepStatusFailed]).
		Int("errored", counts[models.StepStatusErrored]).
		Int("skipped", counts[models.StepStatusSkipped]).
		Dur("duration", result.Duration).
		Strs("artifacts", result.Artifacts).
		Msg("Scenario finished")

	if r.results != nil {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), artifactTimeout)
		defer cancel()
		if err := r.results.SaveResult(saveCtx, result); err != nil {
			ex.logger.Warn().Err(err).Msg("Failed to save result history")
		}
	}
}

// execution is the mutable state of one scenario run
type execution struct {
	runner   *Runner
	logger   arbor.ILogger
	scenario models.Scenario
	result   *models.Result
	status   models.ScenarioStatus
	session  interfaces.Session

	window  []models.Observation // since the last drain step
	all     []models.Observation // whole scenario
	matched map[string]bool      // selectors that resolved
	fatal   error
}

func (r *Runner) newExecution(runID string, sc models.Scenario) *execution {
	id := common.NewResultID()
	return &execution{
		runner:   r,
		logger:   r.logger.WithCorrelationId(id),
		scenario: sc,
		status:   models.ScenarioStatusPending,
		matched:  make(map[string]bool),
		result: &models.Result{
			ID:         id,
			RunID:      runID,
			Scenario:   sc.Name,
			SourceFile: sc.SourceFile,
			Status:     models.ScenarioStatusPending,
			StartedAt:  time.Now(),
			Steps:      make([]models.StepOutcome, 0, len(sc.Steps)),
		},
	}
}

// transition moves the state machine, refusing illegal moves
func (ex *execution) transition(next models.ScenarioStatus) {
	if !ex.status.CanTransitionTo(next) {
		ex.logger.Error().
			Str("from", string(ex.status)).
			Str("to", string(next)).
			Msg("Illegal scenario status transition ignored")
		return
	}
	ex.status = next
	ex.result.Status = next
}

// abort finalizes a scenario that never started, e.g. when its session could not open
func (ex *execution) abort(err error) {
	ex.result.Error = err.Error()
	ex.result.ErrorKind = models.ErrorKind(err)
	for i, step := range ex.scenario.Steps {
		ex.result.Steps = append(ex.result.Steps, skipped(i, step, "scenario did not start"))
	}
	ex.transition(models.ScenarioStatusErrored)
	ex.result.FinishedAt = time.Now()
	ex.result.Duration = ex.result.FinishedAt.Sub(ex.result.StartedAt)
	ex.logger.Error().
		Str("scenario", ex.scenario.Name).
		Str("error_kind", ex.result.ErrorKind).
		Err(err).
		Msg("Scenario could not start")
}

// execute runs every step and assertion on session. It always leaves the result terminal,
// including on cancellation, timeout and panics inside step code.
func (ex *execution) execute(parent context.Context, session interfaces.Session) {
	ex.session = session
	ex.result.SessionID = session.ID()

	timeout := ex.scenario.Timeout.Or(ex.runner.opts.ScenarioTimeout)
	ctx := parent
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, timeout)
		defer cancel()
	}

	ex.transition(models.ScenarioStatusRunning)
	ex.logger.Info().
		Str("scenario", ex.scenario.Name).
		Str("session_id", session.ID()).
		Int("steps", len(ex.scenario.Steps)).
		Dur("timeout", timeout).
		Msg("Scenario started")

	defer func() {
		if recovered := recover(); recovered != nil {
			ex.fatal = fmt.Errorf("panic during scenario: %v", recovered)
			ex.logger.Error().Str("panic", fmt.Sprint(recovered)).Msg("Scenario panicked")
			first := len(ex.result.Steps)
			for i := first; i < len(ex.scenario.Steps); i++ {
				outcome := skipped(i, ex.scenario.Steps[i], "scenario panicked")
				if i == first {
					outcome.Status = models.StepStatusErrored
					outcome.Message = ex.fatal.Error()
					outcome.ErrorKind = "panic"
				}
				ex.result.Steps = append(ex.result.Steps, outcome)
			}
		}
		ex.finalize(parent, ctx)
	}()

	capture := ex.runner.opts.Capture
	if ex.scenario.Capture != nil {
		capture = *ex.scenario.Capture
	}
	if err := session.Observer().StartCapture(ctx, capture); err != nil {
		ex.fatal = fmt.Errorf("failed to start capture: %w", err)
	}
	// Anything buffered before this scenario belongs to an earlier one on a shared session
	session.Observer().Drain()

	policy := ex.scenario.Policy
	if policy == "" {
		policy = ex.runner.opts.Policy
	}

	halted := ""
	if ex.fatal != nil {
		halted = "scenario errored"
	}
	for i, step := range ex.scenario.Steps {
		if halted != "" {
			ex.result.Steps = append(ex.result.Steps, skipped(i, step, halted))
			continue
		}
		if err := ctx.Err(); err != nil {
			ex.fatal = ex.cancelled(parent, timeout, err)
			halted = "scenario cancelled"
			ex.result.Steps = append(ex.result.Steps, skipped(i, step, halted))
			continue
		}

		outcome := ex.runStep(ctx, i, step)
		ex.result.Steps = append(ex.result.Steps, outcome)

		switch outcome.Status {
		case models.StepStatusErrored:
			ex.fatal = fmt.Errorf("step %d (%s): %s", outcome.Index, outcome.Name, outcome.Message)
			if ctx.Err() != nil {
				ex.fatal = ex.cancelled(parent, timeout, ctx.Err())
			}
			halted = "scenario errored"
		case models.StepStatusFailed:
			if step.Critical {
				halted = "critical step failed"
			} else if policy == models.FailurePolicyAbort {
				halted = "failure policy abort"
			}
		}
	}

	ex.collect()
	if ex.fatal == nil {
		ex.checkAssertions()
	}
}

// cancelled explains why the scenario context ended
func (ex *execution) cancelled(parent context.Context, timeout time.Duration, err error) error {
	if parent.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("scenario timed out after %s: %w", timeout, err)
	}
	return fmt.Errorf("scenario cancelled: %w", err)
}

// finalize assigns the terminal status and attaches artifacts to non-passing runs
func (ex *execution) finalize(parent, ctx context.Context) {
	status := models.ScenarioStatusPassed
	for _, step := range ex.result.Steps {
		switch step.Status {
		case models.StepStatusErrored:
			status = models.ScenarioStatusErrored
		case models.StepStatusFailed:
			if status == models.ScenarioStatusPassed {
				status = models.ScenarioStatusFailed
			}
		}
	}
	for _, a := range ex.result.Assertions {
		if a.Status != models.StepStatusPassed && status == models.ScenarioStatusPassed {
			status = models.ScenarioStatusFailed
		}
	}
	if ex.fatal != nil {
		status = models.ScenarioStatusErrored
		ex.result.Error = ex.fatal.Error()
		ex.result.ErrorKind = models.ErrorKind(ex.fatal)
		if kind := ex.firstErroredKind(); kind != "" {
			ex.result.ErrorKind = kind
		}
	}

	if status != models.ScenarioStatusPassed {
		ex.collect()
		ex.result.Observations = append([]models.Observation(nil), ex.all...)
		artifactCtx, cancel := context.WithTimeout(context.WithoutCancel(parent), artifactTimeout)
		path := ex.artifactPath("failure")
		if err := ex.session.Screenshot(artifactCtx, path); err != nil {
			ex.logger.Warn().Err(err).Str("scenario", ex.scenario.Name).Msg("Failure screenshot unavailable")
		} else {
			ex.result.Artifacts = append(ex.result.Artifacts, path)
		}
		cancel()
	}

	ex.transition(status)
	ex.result.FinishedAt = time.Now()
	ex.result.Duration = ex.result.FinishedAt.Sub(ex.result.StartedAt)

	if status == models.ScenarioStatusPassed {
		ex.recordSelectors(context.WithoutCancel(ctx))
	}
}

func (ex *execution) firstErroredKind() string {
	for _, step := range ex.result.Steps {
		if step.Status == models.StepStatusErrored && step.ErrorKind != "" {
			return step.ErrorKind
		}
	}
	return ""
}

// collect drains the session observer into the window and scenario logs
func (ex *execution) collect() {
	drained := ex.session.Observer().Drain()
	ex.window = append(ex.window, drained...)
	ex.all = append(ex.all, drained...)
}

// checkAssertions evaluates scenario-level observation assertions over the whole run
func (ex *execution) checkAssertions() {
	for i, q := range ex.scenario.Assertions {
		name := q.Name
		if name == "" {
			name = fmt.Sprintf("assertion %d %s", i+1, observe.Describe(q))
		}
		outcome := models.AssertionOutcome{
			Name:     name,
			Status:   models.StepStatusPassed,
			Expected: observe.ExpectedCount(q),
		}
		matched, err := observe.Select(ex.all, q)
		if err != nil {
			outcome.Status = models.StepStatusErrored
			outcome.Actual = err.Error()
		} else {
			outcome.Actual = fmt.Sprintf("count=%d", len(matched))
			if !observe.CountSatisfied(q, len(matched)) {
				outcome.Status = models.StepStatusFailed
			}
		}
		if outcome.Status != models.StepStatusPassed {
			ex.logger.Warn().
				Str("scenario", ex.scenario.Name).
				Str("assertion", name).
				Str("expected", outcome.Expected).
				Str("actual", outcome.Actual).
				Msg("Assertion failed")
		}
		ex.result.Assertions = append(ex.result.Assertions, outcome)
	}
}

// artifactPath returns <artifacts>/<run>/<scenario>/<name>.png
func (ex *execution) artifactPath(name string) string {
	dir := ex.runner.opts.ArtifactsDir
	if dir == "" {
		dir = "artifacts"
	}
	return filepath.Join(dir, ex.result.RunID, common.Slug(ex.scenario.Name), common.Slug(name)+".png")
}

func skipped(i int, step models.Step, reason string) models.StepOutcome {
	return models.StepOutcome{
		Index:    i + 1,
		Name:     step.Label(),
		Kind:     step.Kind,
		Selector: step.Selector,
		Status:   models.StepStatusSkipped,
		Message:  reason,
	}
}
