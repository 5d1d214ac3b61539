package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/incidentops/teams-copilot/internal/services/incident"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler periodically sweeps the incident pipeline so publish retries and
// idle-window expiry do not wait for the next chat message.
type Scheduler struct {
	cron     *cron.Cron
	pipeline *incident.Pipeline
	interval time.Duration
	logger   *logrus.Logger
}

// New creates the sweep scheduler
func New(pipeline *incident.Pipeline, interval time.Duration, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		pipeline: pipeline,
		interval: interval,
		logger:   logger,
	}
}

// Start registers and starts the sweep job
func (s *Scheduler) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.interval)
		defer cancel()
		s.pipeline.Sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule pipeline sweep: %w", err)
	}

	s.cron.Start()
	s.logger.WithField("interval", s.interval).Info("Incident sweep scheduled")
	return nil
}

// Stop halts the scheduler, waiting for a running sweep to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Incident sweep scheduler stopped")
}
