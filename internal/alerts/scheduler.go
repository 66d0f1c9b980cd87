package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/agri-weather-service/internal/observability"
	"github.com/kjstillabower/agri-weather-service/internal/store"
)

const (
	defaultJobTimeout  = 5 * time.Minute
	defaultConcurrency = 4
)

// SchedulerConfig configures the periodic alert job.
type SchedulerConfig struct {
	// Schedule is a standard 5-field cron expression or descriptor such as "@hourly".
	Schedule   string
	Timezone   string
	JobTimeout time.Duration
	// Concurrency bounds users processed at once.
	Concurrency int
}

// Scheduler regenerates alerts for every alert-enabled user on a cron schedule.
type Scheduler struct {
	cron        *cron.Cron
	gen         *Generator
	users       store.UserStore
	logger      *zap.Logger
	jobTimeout  time.Duration
	concurrency int
}

// NewScheduler validates the schedule and registers the job. Start begins running it.
func NewScheduler(gen *Generator, users store.UserStore, logger *zap.Logger, cfg SchedulerConfig) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("alert schedule timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}

	cl := cronLogger{logger.Sugar()}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		gen:         gen,
		users:       users,
		logger:      logger,
		jobTimeout:  cfg.JobTimeout,
		concurrency: cfg.Concurrency,
	}
	if _, err := s.cron.AddFunc(cfg.Schedule, s.runJob); err != nil {
		return nil, fmt.Errorf("alert schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("alert scheduler started")
}

// Stop prevents new runs and waits for a running job to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()
	start := time.Now()
	generated, err := s.RunOnce(ctx)
	fields := []zap.Field{zap.Int("alerts", generated), zap.Duration("duration", time.Since(start))}
	if err != nil {
		s.logger.Warn("alert job finished with errors", append(fields, zap.Error(err))...)
		return
	}
	s.logger.Info("alert job finished", fields...)
}

// RunOnce generates alerts for every alert-enabled user. Per-user failures do not stop the
// run; they are joined into the returned error. Returns the number of alerts generated.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	users, err := s.users.ListAlertUsers(ctx)
	if err != nil {
		observability.AlertJobRunsTotal.WithLabelValues("failure").Inc()
		return 0, fmt.Errorf("list alert users: %w", err)
	}

	var (
		generated atomic.Int64
		succeeded atomic.Int64
		failures  = make([]error, len(users))
		g         errgroup.Group
	)
	g.SetLimit(s.concurrency)
	for i, u := range users {
		g.Go(func() error {
			alerts, err := s.gen.GenerateFarmingAlerts(ctx, u.ID)
			if err != nil {
				failures[i] = fmt.Errorf("user %s: %w", u.ID, err)
				return nil
			}
			generated.Add(int64(len(alerts)))
			succeeded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	joined := errors.Join(failures...)
	switch {
	case joined == nil:
		observability.AlertJobRunsTotal.WithLabelValues("success").Inc()
	case succeeded.Load() > 0:
		observability.AlertJobRunsTotal.WithLabelValues("partial").Inc()
	default:
		observability.AlertJobRunsTotal.WithLabelValues("failure").Inc()
	}
	return int(generated.Load()), joined
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
