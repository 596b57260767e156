package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// Scheduler re-runs a job on a cron schedule. Runs never overlap: a tick that
// fires while the previous run is still going is skipped.
type Scheduler struct {
	logger   arbor.ILogger
	cron     *cron.Cron
	schedule string
	job      func(ctx context.Context)

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	busy    bool
	runs    int
	skipped int
	wg      sync.WaitGroup
}

// NewScheduler parses schedule (5-field cron or descriptors such as "@every 5m")
func NewScheduler(logger arbor.ILogger, schedule string, job func(ctx context.Context)) (*Scheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s := &Scheduler{
		logger:   logger,
		cron:     cron.New(cron.WithParser(parser)),
		schedule: schedule,
		job:      job,
	}
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the job once immediately, then on every tick until ctx ends or Stop is called
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info().Str("schedule", s.schedule).Msg("Watch scheduler started")

	go s.tick()
	go func() {
		<-s.ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the schedule and waits for a run in progress to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info().Int("runs", s.Runs()).Msg("Watch scheduler stopped")
}

// Runs returns how many times the job has started
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// Next returns the next scheduled tick
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	if !s.running || s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	if s.busy {
		s.skipped++
		s.mu.Unlock()
		s.logger.Warn().Msg("Previous watch run still in progress, skipping tick")
		return
	}
	s.busy = true
	s.runs++
	run := s.runs
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
		s.wg.Done()
	}()

	s.logger.Info().Int("run", run).Msg("Watch run starting")
	s.job(ctx)
	s.logger.Debug().Int("run", run).Str("next", s.Next().Format(time.RFC3339)).Msg("Watch run complete")
}
