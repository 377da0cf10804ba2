// Package janitor runs the session token sweep on a cron schedule.
package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/safebox/internal/logging"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Sweeper removes tokens older than maxAge and returns how many it removed.
type Sweeper interface {
	ExpireTokens(ctx context.Context, maxAge time.Duration) int
}

type Janitor struct {
	cron    *cron.Cron
	sweeper Sweeper
	maxAge  time.Duration
	log     logging.Logger
}

// New schedules sweeps of tokens older than maxAge. schedule is a standard
// five-field cron spec or a descriptor such as "@every 5m". Nothing runs
// until Start.
func New(sweeper Sweeper, schedule string, maxAge time.Duration, log logging.Logger) (*Janitor, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("token max age must be positive, got %s", maxAge)
	}
	if log == nil {
		log = logging.NopLogger{}
	}

	j := &Janitor{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		sweeper: sweeper,
		maxAge:  maxAge,
		log:     log,
	}

	if _, err := j.cron.AddFunc(schedule, func() { j.Sweep(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return j, nil
}

// ParseSchedule reports whether schedule is accepted by New.
func ParseSchedule(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return nil
}

// Sweep runs one pass immediately.
func (j *Janitor) Sweep(ctx context.Context) int {
	log := j.log.With("run_id", uuid.NewString())
	start := time.Now()

	n := j.sweeper.ExpireTokens(ctx, j.maxAge)

	log.Debug(ctx, "token sweep finished", "removed", n, "took", time.Since(start).String())
	return n
}

func (j *Janitor) Start() {
	j.cron.Start()
	j.log.Info(context.Background(), "token janitor started", "max_age", j.maxAge.String())
}

// Stop halts the schedule and waits for a running sweep, or for ctx.
func (j *Janitor) Stop(ctx context.Context) error {
	done := j.cron.Stop()
	select {
	case <-done.Done():
		j.log.Info(ctx, "token janitor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
