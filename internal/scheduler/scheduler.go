package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	applicationdomain "github.com/smallbiznis/medrate/internal/application/domain"
	"github.com/smallbiznis/medrate/internal/clock"
	"github.com/smallbiznis/medrate/internal/lock"
	obsmetrics "github.com/smallbiznis/medrate/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	jobExpireQuotes = "expire_quotes"
	lockKeyPrefix   = "medrate:scheduler:"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Applications applicationdomain.Service
	Locker       *lock.Locker                 `optional:"true"`
	Metrics      *obsmetrics.SchedulerMetrics `optional:"true"`
	Pusher       obsmetrics.Pusher            `optional:"true"`
	Config       Config                       `optional:"true"`
}

// Scheduler runs the background sweeps. When a redis locker is present
// only one replica runs a job at a time.
type Scheduler struct {
	log          *zap.Logger
	cfg          Config
	genID        *snowflake.Node
	clock        clock.Clock
	applications applicationdomain.Service
	locker       *lock.Locker
	metrics      *obsmetrics.SchedulerMetrics
	pusher       obsmetrics.Pusher
	gatherer     prometheus.Gatherer
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Applications == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:          p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:          p.Config.withDefaults(),
		genID:        p.GenID,
		clock:        p.Clock,
		applications: p.Applications,
		locker:       p.Locker,
		metrics:      p.Metrics,
		pusher:       p.Pusher,
		gatherer:     prometheus.DefaultGatherer,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	s.metrics.IncJobRun(name)

	err := s.withJobLock(ctx, name, fn)
	s.metrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	s.metrics.IncJobError(name, err)
	if errors.Is(err, obsmetrics.ErrLockNotAcquired) {
		s.logger(ctx).Debug("job skipped, lock held elsewhere", zap.String("job", name))
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) withJobLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	key := lockKeyPrefix + name
	token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		return err
	}
	if !ok {
		return obsmetrics.ErrLockNotAcquired
	}
	defer func() {
		if err := s.locker.Release(context.Background(), key, token); err != nil {
			s.log.Warn("scheduler lock release failed", zap.String("job", name), zap.Error(err))
		}
	}()
	return fn(ctx)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, jobExpireQuotes, s.cfg.BatchSize, s.cfg.JobTimeout, s.ExpireQuotesJob)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		s.pushMetrics(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.metrics.ObserveRunLoopLag(time.Since(nextRun))
		nextRun = nextRun.Add(s.cfg.RunInterval)
	}
}

// pushMetrics ships the sweep counters after each run; failures only log.
func (s *Scheduler) pushMetrics(parent context.Context) {
	if s.pusher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()
	if err := s.pusher.Push(ctx, s.gatherer); err != nil {
		s.log.Warn("scheduler metrics push failed", zap.Error(err))
	}
}

// ExpireQuotesJob drains stale draft and quoted applications batch by
// batch until a short batch signals nothing is left.
func (s *Scheduler) ExpireQuotesJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, jobExpireQuotes, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		expired, err := s.applications.ExpireStale(ctx, s.cfg.BatchSize)
		run.AddProcessed(expired)
		s.metrics.AddBatchProcessed(jobExpireQuotes, "application", expired)
		if err != nil {
			s.logJobError(ctx, run, "scheduler.expire_quotes.failed", err)
			return err
		}
		if expired < s.cfg.BatchSize {
			return nil
		}
	}
}
