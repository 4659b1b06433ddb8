package scheduler

import (
	"context"
	"fmt"
	"time"

	"fulfillment-be/internal/inventory"
	"fulfillment-be/internal/logger"
	"fulfillment-be/internal/metrics"
	"fulfillment-be/internal/outbox"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	jobTimeout       = 30 * time.Second
	defaultReapBatch = 500
)

// Job is a named unit of background work run on a cron schedule.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	cron *cron.Cron
	jobs map[string]Job
}

// New registers every job; an unparsable schedule fails the whole set.
func New(jobs ...Job) (*Scheduler, error) {
	cl := cronLogger{log: logger.L().With(zap.String("layer", "scheduler"))}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	s := &Scheduler{cron: c, jobs: make(map[string]Job, len(jobs))}
	for _, j := range jobs {
		job := j
		if _, err := c.AddFunc(job.Schedule, func() { s.execute(job) }); err != nil {
			return nil, fmt.Errorf("register job %s: %w", job.Name, err)
		}
		s.jobs[job.Name] = job
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs or ctx, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow executes a registered job synchronously, outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	job, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return job.Run(ctx)
}

func (s *Scheduler) execute(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	log := logger.L().With(zap.String("layer", "scheduler"), zap.String("job", job.Name))
	timer := metrics.StartTimer()

	if err := job.Run(ctx); err != nil {
		log.Error("job failed", zap.Error(err), zap.Duration("duration", timer.Duration()))
		return
	}
	log.Debug("job finished", zap.Duration("duration", timer.Duration()))
}

// ReaperJob returns abandoned reservations to the pool.
func ReaperJob(schedule string, ledger inventory.Ledger, batch int) Job {
	if batch <= 0 {
		batch = defaultReapBatch
	}
	return Job{
		Name:     "reservation-reaper",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			n, err := ledger.ReleaseExpired(ctx, time.Now(), batch)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.FromCtx(ctx).Info("expired reservations released", zap.Int("count", n))
			}
			return nil
		},
	}
}

// RelayJob drains the transactional outbox to the configured publisher.
func RelayJob(schedule string, relay *outbox.Relay) Job {
	return Job{
		Name:     "outbox-relay",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			_, err := relay.RunOnce(ctx)
			return err
		},
	}
}

// Sweeper evicts expired entries from an in-process store.
type Sweeper interface {
	Sweep() int
}

// CacheSweepJob evicts expired in-process cache entries that are never read again.
func CacheSweepJob(schedule string, s Sweeper) Job {
	return Job{
		Name:     "cache-sweep",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			if n := s.Sweep(); n > 0 {
				logger.FromCtx(ctx).Debug("expired cache entries swept", zap.Int("count", n))
			}
			return nil
		},
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
