package sync

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"fuellog-sync-service/internal/config"
	"fuellog-sync-service/internal/logger"
)

// Scheduler periodically re-drains the queue so records stuck after exhausted
// retries are picked up again without waiting for a reconnect event.
type Scheduler struct {
	cfg     config.SchedulerConfig
	drainer Drainer
	tracker *StatusTracker
	cron    *cron.Cron
	entryID cron.EntryID
}

func NewScheduler(cfg config.SchedulerConfig, drainer Drainer, tracker *StatusTracker) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		drainer: drainer,
		tracker: tracker,
		cron:    cron.New(),
	}
}

func (s *Scheduler) Start() {
	if !s.cfg.Enabled {
		logger.Log.Info("Scheduler is disabled")
		return
	}

	logger.Log.Info("Starting scheduler", zap.String("interval", s.cfg.Interval))

	id, err := s.cron.AddFunc(s.cfg.Interval, func() {
		s.triggerDrain()
	})
	if err != nil {
		logger.Log.Error("Failed to schedule drain job", zap.Error(err))
		return
	}

	s.entryID = id
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	logger.Log.Info("Stopped scheduler")
}

func (s *Scheduler) triggerDrain() {
	if s.tracker != nil && !s.tracker.Online() {
		logger.Log.Debug("Skipping scheduled drain while offline")
		return
	}

	logger.Log.Info("Triggering scheduled drain")
	if _, err := s.drainer.DrainQueue(context.Background()); err != nil {
		logger.Log.Error("Scheduled drain failed", zap.Error(err))
	}
}
