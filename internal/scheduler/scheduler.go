package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/minqt/weight-sync/internal/config"
	"github.com/minqt/weight-sync/internal/logger"
	"github.com/minqt/weight-sync/internal/status"
)

const statusRefreshInterval = 30 * time.Second

// Service owns the cron triggers for the two daily phases. The phases share
// the broker session, so a mutex keeps them from ever overlapping.
type Service struct {
	runner *Runner
	status *status.Store
	cfg    *config.Config
	logger *logger.Logger
	cron   *cron.Cron

	runMu sync.Mutex
}

func NewService(runner *Runner, statusStore *status.Store, cfg *config.Config, log *logger.Logger) *Service {
	return &Service{
		runner: runner,
		status: statusStore,
		cfg:    cfg,
		logger: log,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(cfg.MarketLocation()),
		),
	}
}

// Start schedules both phases and blocks until ctx is cancelled, refreshing
// the published next-run time every 30 seconds.
func (s *Service) Start(ctx context.Context) error {
	if err := s.addDailyJob(s.cfg.Trading.PrepareTime, "trading", func() {
		s.runPhase(ctx, "trading", s.runner.ExecuteTrading)
	}); err != nil {
		return err
	}
	if err := s.addDailyJob(s.cfg.Trading.RecordTime, "value-recording", func() {
		s.runPhase(ctx, "value-recording", s.runner.ExecuteValueRecording)
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		"prepare_time", s.cfg.Trading.PrepareTime,
		"record_time", s.cfg.Trading.RecordTime)
	s.updateNextRun()

	ticker := time.NewTicker(statusRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			stopCtx := s.cron.Stop()
			<-stopCtx.Done()
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.updateNextRun()
		}
	}
}

func (s *Service) addDailyJob(clock, name string, job func()) error {
	hour, minute, err := config.ParseClock(clock)
	if err != nil {
		return fmt.Errorf("parse %s time %q: %w", name, clock, err)
	}
	spec := fmt.Sprintf("0 %d %d * * *", minute, hour)
	if _, err := s.cron.AddFunc(spec, job); err != nil {
		return fmt.Errorf("schedule %s job: %w", name, err)
	}
	s.logger.Info("daily job scheduled", "job", name, "time", clock)
	return nil
}

func (s *Service) runPhase(ctx context.Context, name string, phase func(context.Context) error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("panic in scheduled phase", "phase", name, "panic", fmt.Sprint(rec))
		}
	}()

	if err := phase(ctx); err != nil {
		// Already logged and recorded in status by the runner.
		s.logger.Error("scheduled phase finished with error", "phase", name, "error", err)
	}
	s.updateNextRun()
}

func (s *Service) updateNextRun() {
	var next time.Time
	for _, entry := range s.cron.Entries() {
		if entry.Next.IsZero() {
			continue
		}
		if next.IsZero() || entry.Next.Before(next) {
			next = entry.Next
		}
	}
	if next.IsZero() {
		return
	}
	if err := s.status.UpdateNextRun(next); err != nil {
		s.logger.Error("update next run time", "error", err)
	}
}
