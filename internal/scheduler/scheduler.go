package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kiranshivaraju/redmeters/internal/config"
	"github.com/kiranshivaraju/redmeters/internal/detection"
	"github.com/kiranshivaraju/redmeters/internal/simulator"
)

// alertRetention is how long resolved alerts are kept before the weekly
// cleanup deletes them.
const alertRetention = 30 * 24 * time.Hour

// AlertStore is the slice of the data layer the cleanup job needs.
type AlertStore interface {
	DeleteResolvedAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler owns the background timers: reading simulation, detection passes
// and alert retention cleanup.
type Scheduler struct {
	cron      *cron.Cron
	cfg       config.SchedulerConfig
	detector  *detection.Service
	simulator *simulator.Simulator
	alerts    AlertStore
}

// New creates a Scheduler. Jobs are registered by Start.
func New(cfg config.SchedulerConfig, detector *detection.Service, sim *simulator.Simulator, alerts AlertStore) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		cfg:       cfg,
		detector:  detector,
		simulator: sim,
		alerts:    alerts,
	}
}

// Start registers the jobs and starts the cron loop. Jobs run until Stop.
func (s *Scheduler) Start() error {
	if s.cfg.SimulateReadings {
		spec := fmt.Sprintf("@every %s", s.cfg.SimulateEvery)
		if _, err := s.cron.AddFunc(spec, s.runSimulation); err != nil {
			return fmt.Errorf("scheduling simulation: %w", err)
		}
	}

	detectSpec := fmt.Sprintf("@every %s", s.cfg.DetectEvery)
	if _, err := s.cron.AddFunc(detectSpec, s.runDetection); err != nil {
		return fmt.Errorf("scheduling detection: %w", err)
	}

	if _, err := s.cron.AddFunc("@weekly", s.runCleanup); err != nil {
		return fmt.Errorf("scheduling cleanup: %w", err)
	}

	s.cron.Start()
	slog.Info("scheduler started",
		"simulate", s.cfg.SimulateReadings,
		"detect_every", s.cfg.DetectEvery.String())
	return nil
}

// Stop halts the cron loop and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("scheduler stopped")
}

func (s *Scheduler) runSimulation() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, _, err := s.simulator.GenerateBatch(ctx, time.Now().UTC()); err != nil {
		slog.Error("simulation run failed", "error", err)
	}
}

func (s *Scheduler) runDetection() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	results, err := s.detector.Detect(ctx, nil)
	if err != nil {
		slog.Error("detection run failed", "error", err)
		return
	}

	anomalies := 0
	for _, r := range results {
		if r.IsAnomaly {
			anomalies++
		}
	}
	slog.Info("detection run complete", "evaluated", len(results), "anomalies", anomalies)
}

func (s *Scheduler) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := s.alerts.DeleteResolvedAlertsBefore(ctx, time.Now().UTC().Add(-alertRetention))
	if err != nil {
		slog.Error("alert cleanup failed", "error", err)
		return
	}
	slog.Info("alert cleanup complete", "deleted", deleted)
}
