// Package schedule runs a job on a cron expression.
package schedule

import (
	"context"
	"fmt"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/hpungsan/sitediff/internal/errors"
)

// Job is one scheduled invocation. Its error is logged, never fatal.
type Job func(ctx context.Context) error

var parser = cronlib.NewParser(cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor)

// ParseSpec validates a five field cron expression or a descriptor such as
// "@hourly" or "@every 10m".
func ParseSpec(expr string) (cronlib.Schedule, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid schedule %q: %v", expr, err))
	}
	return sched, nil
}

// Runner fires a Job on its schedule. A firing is skipped while the previous
// one is still running.
type Runner struct {
	expr  string
	sched cronlib.Schedule
	job   Job
	log   zerolog.Logger
}

// New parses expr and returns a Runner for job.
func New(expr string, job Job, log zerolog.Logger) (*Runner, error) {
	sched, err := ParseSpec(expr)
	if err != nil {
		return nil, err
	}
	return &Runner{
		expr:  expr,
		sched: sched,
		job:   job,
		log:   log.With().Str("component", "schedule").Logger(),
	}, nil
}

// Next returns the first firing after t.
func (r *Runner) Next(t time.Time) time.Time {
	return r.sched.Next(t)
}

// Run blocks until ctx is done, firing the job on schedule. It waits for a
// running job to finish before returning.
func (r *Runner) Run(ctx context.Context) error {
	logger := cronLogger{log: r.log}
	c := cronlib.New(
		cronlib.WithParser(parser),
		cronlib.WithLogger(logger),
		cronlib.WithChain(cronlib.Recover(logger), cronlib.SkipIfStillRunning(logger)),
	)
	c.Schedule(r.sched, cronlib.FuncJob(func() {
		start := time.Now()
		if err := r.job(ctx); err != nil {
			r.log.Error().Err(err).Msg("scheduled run failed")
			return
		}
		r.log.Debug().Dur("took", time.Since(start)).Msg("scheduled run finished")
	}))

	r.log.Info().Str("schedule", r.expr).Time("next", r.Next(time.Now())).Msg("scheduler started")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	r.log.Info().Msg("scheduler stopped")
	return nil
}

// cronLogger adapts zerolog to the cron library's logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

var _ cronlib.Logger = cronLogger{}
