package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/models"
)

// ResultHandler receives each result as soon as it is final. Calls are serialized.
type ResultHandler func(result *models.Result)

// RunSuite runs scenarios and summarises them. Concurrency above one gives every
// scenario its own session; with concurrency one and fresh_session off, a single
// session is shared sequentially. A SessionStartError stops the whole run:
// scenarios not yet started are reported Errored and the exit code is 2.
func (r *Runner) RunSuite(ctx context.Context, scenarios []models.Scenario, onResult ResultHandler) *models.RunSummary {
	runID := common.NewRunID()
	started := time.Now()
	results := make([]*models.Result, len(scenarios))

	var handlerMu sync.Mutex
	emit := func(result *models.Result) {
		if onResult == nil {
			return
		}
		handlerMu.Lock()
		defer handlerMu.Unlock()
		onResult(result)
	}

	r.logger.Info().
		Str("run_id", runID).
		Int("scenarios", len(scenarios)).
		Int("concurrency", r.opts.Concurrency).
		Bool("fresh_session", r.opts.FreshSession).
		Msg("Run started")

	var fatal error
	switch {
	case r.opts.Concurrency > 1:
		fatal = r.runConcurrent(ctx, runID, scenarios, results, emit)
	case !r.opts.FreshSession:
		fatal = r.runShared(ctx, runID, scenarios, results, emit)
	default:
		fatal = r.runSequential(ctx, runID, scenarios, results, emit)
	}

	summary := models.NewRunSummary(runID, started, results)
	if fatal != nil {
		summary.Error = fatal.Error()
		summary.ExitCode = 2
	}

	event := r.logger.Info()
	if summary.ExitCode != 0 {
		event = r.logger.Warn()
	}
	event.
		Str("run_id", runID).
		Int("passed", summary.Passed).
		Int("failed", summary.Failed).
		Int("errored", summary.Errored).
		Int("exit_code", summary.ExitCode).
		Dur("duration", summary.Duration).
		Msg("Run finished")
	return summary
}

func (r *Runner) runSequential(ctx context.Context, runID string, scenarios []models.Scenario, results []*models.Result, emit ResultHandler) error {
	var fatal error
	for i, sc := range scenarios {
		if fatal != nil || ctx.Err() != nil {
			results[i] = r.notRun(ctx, runID, sc, fatal)
			emit(results[i])
			continue
		}
		result, err := r.run(ctx, runID, sc, nil)
		results[i] = result
		emit(result)
		if err != nil {
			fatal = err
		}
	}
	return fatal
}

func (r *Runner) runShared(ctx context.Context, runID string, scenarios []models.Scenario, results []*models.Result, emit ResultHandler) error {
	session, err := r.factory.Open(ctx, r.opts.Session)
	if err != nil {
		for i, sc := range scenarios {
			results[i] = r.notRun(ctx, runID, sc, err)
			emit(results[i])
		}
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			r.logger.Warn().Err(err).Str("session_id", session.ID()).Msg("Shared session close reported an error")
		}
	}()

	for i, sc := range scenarios {
		if ctx.Err() != nil {
			results[i] = r.notRun(ctx, runID, sc, nil)
		} else {
			results[i], _ = r.run(ctx, runID, sc, session)
		}
		emit(results[i])
	}
	return nil
}

func (r *Runner) runConcurrent(parent context.Context, runID string, scenarios []models.Scenario, results []*models.Result, emit ResultHandler) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var (
		wg      sync.WaitGroup
		fatalMu sync.Mutex
		fatal   error
	)
	sem := make(chan struct{}, r.opts.Concurrency)

	for i, sc := range scenarios {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			fatalMu.Lock()
			results[i] = r.notRun(ctx, runID, sc, fatal)
			fatalMu.Unlock()
			emit(results[i])
			continue
		}

		wg.Add(1)
		common.SafeGo(r.logger, "scenario:"+sc.Name, func() {
			result, err := r.run(ctx, runID, sc, nil)
			if err != nil {
				fatalMu.Lock()
				if fatal == nil {
					fatal = err
				}
				fatalMu.Unlock()
				cancel()
			}
			results[i] = result
			emit(result)
			<-sem
			wg.Done()
		}, func(recovered interface{}) {
			results[i] = r.notRun(ctx, runID, sc, fmt.Errorf("panic: %v", recovered))
			emit(results[i])
			<-sem
			wg.Done()
		})
	}
	wg.Wait()
	return fatal
}

// notRun produces the Errored result of a scenario that never got a session
func (r *Runner) notRun(ctx context.Context, runID string, sc models.Scenario, cause error) *models.Result {
	if cause == nil {
		cause = fmt.Errorf("run cancelled before scenario started: %w", context.Cause(ctx))
	}
	ex := r.newExecution(runID, sc)
	ex.abort(cause)
	r.finish(ctx, ex)
	return ex.result
}
