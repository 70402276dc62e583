// Package scheduler triggers nightly sweeps and reconciliation runs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"hotel-rate-monitor/internal/config"
	"hotel-rate-monitor/internal/logging"
	"hotel-rate-monitor/internal/models"
	"hotel-rate-monitor/internal/reconcile"
	"hotel-rate-monitor/internal/scanner"
)

// SweepRunner runs one scan sweep
type SweepRunner interface {
	RunSweep(ctx context.Context, scope scanner.Scope) (*models.ScanSession, error)
}

// Reconciler merges duplicate properties
type Reconciler interface {
	Reconcile(ctx context.Context, ownerID string) (*reconcile.MergeReport, error)
}

// Scheduler handles scheduled sweep and reconcile jobs
type Scheduler struct {
	cron       *cron.Cron
	sweeper    SweepRunner
	reconciler Reconciler
	config     config.SchedulerConfig
	ctx        context.Context
	cancel     context.CancelFunc
	merging    atomic.Bool
	isRunning  bool
	log        *logrus.Entry
}

// NewScheduler creates a new scheduler. Jobs fire in cfg's timezone.
func NewScheduler(sweeper SweepRunner, reconciler Reconciler, cfg *config.Config) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:       cron.New(cron.WithLocation(cfg.Location())),
		sweeper:    sweeper,
		reconciler: reconciler,
		config:     cfg.Scheduler,
		ctx:        ctx,
		cancel:     cancel,
		log:        logging.Component("scheduler"),
	}
}

// Start registers the jobs and starts the cron loop
func (s *Scheduler) Start() error {
	if !s.config.Enabled {
		s.log.Info("Scheduler is disabled in configuration")
		return nil
	}

	sweepSpec := s.parseSchedule(s.config.SweepSchedule, "0 2 * * *")
	if _, err := s.cron.AddFunc(sweepSpec, func() { s.runSweep(s.ctx) }); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", sweepSpec, err)
	}

	if s.reconciler != nil && s.config.ReconcileSchedule != "" {
		reconcileSpec := s.parseSchedule(s.config.ReconcileSchedule, "30 4 * * *")
		if _, err := s.cron.AddFunc(reconcileSpec, func() { s.runReconcile(s.ctx) }); err != nil {
			return fmt.Errorf("schedule reconcile %q: %w", reconcileSpec, err)
		}
		s.log.Infof("Reconcile scheduled at %s (cron: %s)", s.config.ReconcileSchedule, reconcileSpec)
	}

	s.cron.Start()
	s.isRunning = true
	s.log.Infof("Started with sweep at %s (cron: %s)", s.config.SweepSchedule, sweepSpec)
	return nil
}

// Stop stops the cron loop, cancels in-flight jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.cancel()
	if s.isRunning {
		<-s.cron.Stop().Done()
		s.isRunning = false
		s.log.Info("Stopped")
	}
}

// RunNow executes a sweep immediately (manual trigger). It reports false when
// the sweeper is already running a sweep, whoever started it.
func (s *Scheduler) RunNow(ctx context.Context) bool {
	s.log.Info("Manual trigger - starting sweep")
	return s.runSweep(ctx)
}

func (s *Scheduler) runSweep(ctx context.Context) bool {
	session, err := s.sweeper.RunSweep(ctx, scanner.AllDue())
	if errors.Is(err, scanner.ErrSweepInProgress) {
		s.log.Warn("Previous sweep still running; skipping this trigger")
		return false
	}
	if err != nil {
		s.log.WithError(err).Error("Scheduled sweep failed")
		return true
	}
	s.log.WithField("session_id", session.ID).
		Infof("Scheduled sweep finished: %s (%d ok, %d failed)", session.Status, session.Succeeded, session.Failed)
	return true
}

func (s *Scheduler) runReconcile(ctx context.Context) {
	if !s.merging.CompareAndSwap(false, true) {
		s.log.Warn("Previous reconcile still running; skipping this trigger")
		return
	}
	defer s.merging.Store(false)

	report, err := s.reconciler.Reconcile(ctx, "")
	if err != nil {
		s.log.WithError(err).Error("Scheduled reconcile failed")
		return
	}
	s.log.Infof("Scheduled reconcile finished: %d groups merged, %d conflicts",
		report.GroupsMerged, len(report.Conflicts))
}

// parseSchedule accepts "HH:MM" or a standard 5-field cron expression.
// Example: "02:00" -> "0 2 * * *" (run at 2:00 AM every day)
func (s *Scheduler) parseSchedule(spec, fallback string) string {
	var hour, minute int
	var rest string
	n, _ := fmt.Sscanf(spec, "%d:%d%s", &hour, &minute, &rest)
	if n == 2 && hour >= 0 && hour < 24 && minute >= 0 && minute < 60 {
		return fmt.Sprintf("%d %d * * *", minute, hour)
	}

	if _, err := cron.ParseStandard(spec); err == nil {
		return spec
	}

	s.log.Warnf("Failed to parse schedule '%s', using default %s", spec, fallback)
	return fallback
}
