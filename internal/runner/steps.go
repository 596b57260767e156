package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/httpclient"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/ternarybob/vigil/internal/observe"
)

// runStep executes one step, polling it when it declares a retry, and records the outcome
func (ex *execution) runStep(ctx context.Context, i int, step models.Step) models.StepOutcome {
	outcome := models.StepOutcome{
		Index:    i + 1,
		Name:     step.Label(),
		Kind:     step.Kind,
		Selector: step.Selector,
	}
	start := time.Now()
	stepTimeout := step.Timeout.Or(ex.runner.opts.StepTimeout)

	retry := step.Retry
	if retry == nil && step.Kind == models.StepWaitFor {
		retry = &models.Retry{Timeout: models.Duration(stepTimeout)}
	}

	attempt := func(ctx context.Context) (string, error) {
		return ex.dispatch(ctx, i, step, &outcome)
	}

	var (
		state string
		err   error
	)
	if retry != nil {
		poll := retry.PollInterval.Or(ex.runner.opts.PollInterval)
		outcome.Attempts, err = RetryUntil(ctx, retry.Timeout.Std(), poll, func(ctx context.Context) (string, error) {
			s, err := attempt(ctx)
			state = s
			return s, err
		})
	} else {
		stepCtx, cancel := context.WithTimeout(ctx, stepTimeout)
		state, err = attempt(stepCtx)
		if err != nil && stepCtx.Err() != nil && ctx.Err() == nil {
			err = fmt.Errorf("step exceeded its %s timeout: %w", stepTimeout, err)
		}
		cancel()
		outcome.Attempts = 1
	}

	// Drift is judged after the retry budget: a recorded selector may still be rendering
	if err != nil {
		err = ex.detectDrift(ctx, step, err)
	}
	var notFound *models.ElementNotFoundError
	if err != nil && step.ExpectsAbsence() && errors.As(err, &notFound) {
		err = nil
	}

	outcome.Duration = time.Since(start)
	outcome.Status = models.Classify(err)
	outcome.Actual = state
	if err != nil {
		outcome.Message = err.Error()
		outcome.ErrorKind = models.ErrorKind(err)
		var mm *models.AssertionMismatchError
		if errors.As(err, &mm) {
			outcome.Expected = mm.Expected
			outcome.Actual = mm.Actual
		}
		if outcome.Expected == "" {
			outcome.Expected = expectedFor(step)
		}
		ex.stepArtifact(ctx, &outcome)
		ex.logger.Warn().
			Str("scenario", ex.scenario.Name).
			Int("step", outcome.Index).
			Str("step_name", outcome.Name).
			Str("status", string(outcome.Status)).
			Str("error_kind", outcome.ErrorKind).
			Str("expected", outcome.Expected).
			Str("actual", outcome.Actual).
			Strs("artifacts", outcome.Artifacts).
			Msg(outcome.Message)
		return outcome
	}

	ex.logger.Debug().
		Int("step", outcome.Index).
		Str("step_name", outcome.Name).
		Int("attempts", outcome.Attempts).
		Dur("duration", outcome.Duration).
		Msg("Step passed")
	return outcome
}

// stepArtifact captures a screenshot at the moment a step fails
func (ex *execution) stepArtifact(ctx context.Context, outcome *models.StepOutcome) {
	artifactCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), artifactTimeout)
	defer cancel()
	path := ex.artifactPath(fmt.Sprintf("step-%d-%s", outcome.Index, outcome.Kind))
	if err := ex.session.Screenshot(artifactCtx, path); err != nil {
		ex.logger.Debug().Err(err).Int("step", outcome.Index).Msg("Step screenshot unavailable")
		return
	}
	outcome.Artifacts = append(outcome.Artifacts, path)
	ex.result.Artifacts = append(ex.result.Artifacts, path)
}

// dispatch performs a single attempt of step. The returned state describes what was observed.
func (ex *execution) dispatch(ctx context.Context, i int, step models.Step, outcome *models.StepOutcome) (string, error) {
	probe := ex.session.Probe()
	driver := ex.session.Driver()
	selector := step.Selector

	switch step.Kind {
	case models.StepExists, models.StepVisible, models.StepHidden, models.StepWaitFor:
		state, err := probe.Inspect(ctx, selector)
		if err != nil {
			return "", err
		}
		ex.noteMatch(selector, state.Exists())
		return describeState(state), checkElement(selector, elementExpectation(step), state)

	case models.StepCount:
		n, err := probe.Count(ctx, selector)
		if err != nil {
			return "", err
		}
		ex.noteMatch(selector, n > 0)
		state := fmt.Sprintf("count=%d", n)
		if want := *step.Expect.Count; n != want {
			return state, mismatch(selector+" count", fmt.Sprint(want), fmt.Sprint(n))
		}
		return state, nil

	case models.StepText:
		text, err := probe.TextContent(ctx, selector)
		if err != nil {
			return "", err
		}
		ex.noteMatch(selector, true)
		return quote(strings.TrimSpace(deref(text))), checkText(selector, *step.Expect, text)

	case models.StepBBox:
		rect, err := probe.BoundingBox(ctx, selector)
		if err != nil {
			return "", err
		}
		ex.noteMatch(selector, true)
		var exp models.Expect
		if step.Expect != nil {
			exp = *step.Expect
		}
		return fmt.Sprintf("%.0fx%.0f at %.0f,%.0f", rect.Width, rect.Height, rect.X, rect.Y), checkBox(selector, exp, rect)

	case models.StepEvaluate:
		value, err := probe.Evaluate(ctx, step.Script, step.Args...)
		if err != nil {
			return "", err
		}
		actual := renderJSON(value)
		if step.Expect != nil && step.Expect.Equals != nil && !jsonEqual(step.Expect.Equals, value) {
			return actual, mismatch("evaluate result", renderJSON(step.Expect.Equals), actual)
		}
		return actual, nil

	case models.StepNavigate:
		target := httpclient.ResolveURL(ex.runner.opts.BaseURL, step.URL)
		return target, driver.Navigate(ctx, target)

	case models.StepClick:
		return ex.action(selector, driver.Click(ctx, selector))

	case models.StepFill:
		return ex.action(selector, driver.Fill(ctx, selector, step.Text))

	case models.StepSelect:
		return ex.action(selector, driver.SelectOption(ctx, selector, step.Value))

	case models.StepPress:
		return ex.action(selector, driver.PressKey(ctx, selector, step.Key))

	case models.StepObserve:
		ex.collect()
		matched, err := observe.Select(ex.window, *step.Observe)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("count=%d", len(matched)), observe.CheckCount(*step.Observe, len(matched))

	case models.StepDrain:
		ex.collect()
		n := len(ex.window)
		ex.window = nil
		return fmt.Sprintf("drained %d observations", n), nil

	case models.StepScreenshot:
		name := step.Name
		if name == "" {
			name = "screenshot"
		}
		path := ex.artifactPath(fmt.Sprintf("step-%d-%s", i+1, name))
		if err := ex.session.Screenshot(ctx, path); err != nil {
			return "", err
		}
		outcome.Artifacts = append(outcome.Artifacts, path)
		ex.result.Artifacts = append(ex.result.Artifacts, path)
		return path, nil

	case models.StepHTTP:
		return checkHTTP(ctx, ex.runner.http, step.HTTP)

	case models.StepWS:
		return runWS(ctx, ex.runner.dialer, ex.session.Observer(), ex.runner.opts.BaseURL, step.WS)
	}
	return "", fmt.Errorf("unsupported step kind %q", step.Kind)
}

// action records a selector that an action resolved
func (ex *execution) action(selector string, err error) (string, error) {
	if err != nil {
		return "", err
	}
	ex.noteMatch(selector, true)
	return "ok", nil
}

func (ex *execution) noteMatch(selector string, matched bool) {
	if matched && selector != "" {
		ex.matched[selector] = true
	}
}

func describeState(state models.ElementState) string {
	if !state.Exists() {
		return "count=0"
	}
	s := fmt.Sprintf("count=%d visible=%t enabled=%t", state.Count, state.Visible, state.Enabled)
	if state.Text != nil {
		s += " text=" + quote(common.Truncate(strings.TrimSpace(*state.Text), 60))
	}
	return s
}

// expectedFor renders a step's intent when the error is not a value mismatch
func expectedFor(step models.Step) string {
	switch step.Kind {
	case models.StepHidden:
		return step.Selector + " hidden"
	case models.StepVisible, models.StepWaitFor:
		return step.Selector + " visible"
	case models.StepExists:
		if step.ExpectsAbsence() {
			return step.Selector + " absent"
		}
		return step.Selector + " present"
	case models.StepClick, models.StepFill, models.StepSelect, models.StepPress:
		if step.Selector != "" {
			return step.Selector + " visible and enabled"
		}
	}
	return string(step.Kind) + " succeeds"
}
