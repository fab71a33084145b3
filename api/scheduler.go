/*
scheduler.go - Daily generation scheduler

PURPOSE:
  Runs billing and payroll generation once per calendar day in the
  configured timezone, without an external cron.

DESIGN:
  - A background goroutine wakes every CheckInterval
  - Each job has an hour of day; once the local clock reaches it, the job
    runs for today's date and is marked done for that date
  - A job whose run returned an error is retried on the next tick
  - Skipped results (no contracts, not the last day of the month) count as
    done: the entrypoints are idempotent, rerunning would only add noise

DEFAULTS:
  Billing at 00:00, payroll at 23:00 (after the day's attendance is in).

USAGE:
  scheduler := NewGenerationScheduler(engine, exec, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerBilling / TriggerPayroll (manual runs)
  - engine/engine.go: The entrypoints
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/obligation-engine/generic"
)

// GenerationScheduler triggers the daily jobs.
type GenerationScheduler struct {
	Engine        Generator
	Exec          generic.ExecutionContext
	CheckInterval time.Duration
	Enabled       bool
	BillingHour   int
	PayrollHour   int
	Log           zerolog.Logger

	ticker  *time.Ticker
	stop    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastRun map[generic.Kind]generic.TimePoint
}

// NewGenerationScheduler creates a scheduler with the default hours.
func NewGenerationScheduler(engine Generator, exec generic.ExecutionContext, log zerolog.Logger) *GenerationScheduler {
	return &GenerationScheduler{
		Engine:        engine,
		Exec:          exec,
		CheckInterval: time.Hour,
		Enabled:       true,
		BillingHour:   0,
		PayrollHour:   23,
		Log:           log.With().Str("component", "scheduler").Logger(),
		lastRun:       make(map[generic.Kind]generic.TimePoint),
	}
}

// Start begins the scheduler.
func (gs *GenerationScheduler) Start() {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if !gs.Enabled {
		gs.Log.Info().Msg("disabled, not starting")
		return
	}
	if gs.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	gs.cancel = cancel
	gs.stop = make(chan struct{})
	gs.ticker = time.NewTicker(gs.CheckInterval)
	gs.wg.Add(1)

	go gs.run(ctx, gs.ticker, gs.stop)

	gs.Log.Info().
		Dur("check_interval", gs.CheckInterval).
		Int("billing_hour", gs.BillingHour).
		Int("payroll_hour", gs.PayrollHour).
		Msg("started")
}

// Stop stops the scheduler and waits for an in-flight check to finish.
func (gs *GenerationScheduler) Stop() {
	gs.mu.Lock()
	if gs.ticker == nil {
		gs.mu.Unlock()
		return
	}
	gs.ticker.Stop()
	close(gs.stop)
	gs.cancel()
	gs.ticker = nil
	gs.mu.Unlock()

	gs.wg.Wait()
	gs.Log.Info().Msg("stopped")
}

func (gs *GenerationScheduler) run(ctx context.Context, ticker *time.Ticker, stop <-chan struct{}) {
	defer gs.wg.Done()

	// Run immediately on start
	gs.Tick(ctx)

	for {
		select {
		case <-ticker.C:
			gs.Tick(ctx)
		case <-stop:
			return
		}
	}
}

// Tick runs every job that is due at the current time.
func (gs *GenerationScheduler) Tick(ctx context.Context) {
	now := gs.Exec.Now()
	today := generic.DateOf(now, gs.Exec.Location)

	gs.runIfDue(ctx, generic.KindBilling, gs.BillingHour, now, today, gs.Engine.RunBillingGeneration)
	gs.runIfDue(ctx, generic.KindPayroll, gs.PayrollHour, now, today, gs.Engine.RunPayrollGeneration)
}

func (gs *GenerationScheduler) runIfDue(ctx context.Context, kind generic.Kind, hour int, now time.Time, today generic.TimePoint, run runFunc) {
	if now.Hour() < hour {
		return
	}
	if last, ok := gs.lastRunFor(kind); ok && last.Equal(today) {
		return
	}

	result, err := run(ctx, gs.Exec, today)
	if err != nil {
		gs.Log.Error().Err(err).Str("kind", string(kind)).Str("reference_date", today.String()).
			Msg("scheduled generation failed, retrying next tick")
		return
	}
	gs.markRun(kind, today)

	gs.Log.Info().
		Str("kind", string(kind)).
		Str("reference_date", today.String()).
		Str("status", string(result.Status)).
		Int("created", result.Created).
		Int("failed", result.Failed).
		Msg("scheduled generation completed")
}

// RunNow runs both jobs for today regardless of the hour (admin/testing).
func (gs *GenerationScheduler) RunNow(ctx context.Context) ([]*generic.GenerationResult, error) {
	today := gs.Exec.Today()
	var results []*generic.GenerationResult
	for _, job := range []struct {
		kind generic.Kind
		run  runFunc
	}{
		{generic.KindBilling, gs.Engine.RunBillingGeneration},
		{generic.KindPayroll, gs.Engine.RunPayrollGeneration},
	} {
		result, err := job.run(ctx, gs.Exec, today)
		if err != nil {
			return results, err
		}
		gs.markRun(job.kind, today)
		results = append(results, result)
	}
	return results, nil
}

// LastRun reports the reference date of the kind's last completed run.
func (gs *GenerationScheduler) LastRun(kind generic.Kind) (generic.TimePoint, bool) {
	return gs.lastRunFor(kind)
}

func (gs *GenerationScheduler) lastRunFor(kind generic.Kind) (generic.TimePoint, bool) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	tp, ok := gs.lastRun[kind]
	return tp, ok
}

func (gs *GenerationScheduler) markRun(kind generic.Kind, day generic.TimePoint) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	if gs.lastRun == nil {
		gs.lastRun = make(map[generic.Kind]generic.TimePoint)
	}
	gs.lastRun[kind] = day
}
