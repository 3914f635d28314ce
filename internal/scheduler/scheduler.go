// Package scheduler drives the reminder sweeps on a fixed cadence.
//
// Each tick runs the due sweep and then the cleanup sweep with the same clock
// reading. Ticks never overlap: a tick that fires while the previous one is
// still running is skipped, both inside the process and, when a Locker is
// configured, across processes sharing it.
package scheduler

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"remindme/internal/services"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const DefaultInterval = time.Minute

type Sweeper interface {
	SweepDue(ctx context.Context, now time.Time) (services.SweepResult, error)
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// Locker guards a tick across processes. ok is false when another holder
// owns the lease.
type Locker interface {
	TryLock(ctx context.Context) (release func(context.Context) error, ok bool, err error)
}

type Config struct {
	Interval time.Duration
	Sweeper  Sweeper
	Locker   Locker
	Now      func() time.Time
	Logger   *logrus.Logger
}

// TickResult summarises one tick. Skipped ticks leave everything else zero.
type TickResult struct {
	Skipped  bool
	Due      services.SweepResult
	Deleted  int64
	DueErr   error
	CleanErr error
}

type Scheduler struct {
	interval time.Duration
	sweeper  Sweeper
	locker   Locker
	now      func() time.Time
	logger   *logrus.Logger

	gate    sync.Mutex
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	startMu sync.Mutex
	started bool
}

func New(config Config) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	cl := cronLogger{config.Logger}
	return &Scheduler{
		interval: config.Interval,
		sweeper:  config.Sweeper,
		locker:   config.Locker,
		now:      config.Now,
		logger:   config.Logger,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
}

// Start schedules ticks every interval until Stop. The first tick fires one
// interval after Start.
func (s *Scheduler) Start(ctx context.Context) {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.started {
		return
	}
	s.started = true

	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx
	s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		s.RunOnce(runCtx)
	}))
	s.cron.Start()

	s.logger.WithField("interval", s.interval).Info("Starting reminder scheduler...")
}

// Stop prevents further ticks and waits for a running tick to return.
func (s *Scheduler) Stop() {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if !s.started {
		return
	}
	s.started = false

	<-s.cron.Stop().Done()
	s.cancel()
	s.logger.Info("Reminder scheduler stopped")
}

// RunOnce runs one tick immediately unless a tick is already in progress.
func (s *Scheduler) RunOnce(ctx context.Context) TickResult {
	if !s.gate.TryLock() {
		s.logger.Debug("Previous tick still running, skipping")
		return TickResult{Skipped: true}
	}
	defer s.gate.Unlock()

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx)
		switch {
		case err != nil:
			s.logger.WithError(err).Warn("Sweep lock unavailable, running tick anyway")
		case !ok:
			s.logger.Debug("Sweep lock held elsewhere, skipping tick")
			return TickResult{Skipped: true}
		default:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					s.logger.WithError(err).Warn("Failed to release sweep lock")
				}
			}()
		}
	}

	var result TickResult
	now := s.now()

	result.DueErr = s.runTask("due", func() (err error) {
		result.Due, err = s.sweeper.SweepDue(ctx, now)
		return err
	})
	result.CleanErr = s.runTask("cleanup", func() (err error) {
		result.Deleted, err = s.sweeper.SweepExpired(ctx, now)
		return err
	})

	return result
}

func (s *Scheduler) runTask(name string, task func() error) (err error) {
	start := time.Now()
	log := s.logger.WithField("task", name)

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic in %s sweep: %v", name, r)
			log.WithField("stack", string(debug.Stack())).WithError(err).Error("Sweep panicked")
		}
	}()

	log.Debug("Running sweep")
	if err = task(); err != nil {
		log.WithError(err).Error("Sweep failed")
		return err
	}
	log.WithField("took", time.Since(start)).Debug("Sweep finished")
	return nil
}

// cronLogger routes cron's internal logging through logrus.
type cronLogger struct {
	logger *logrus.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			f[key] = keysAndValues[i+1]
		}
	}
	return f
}
