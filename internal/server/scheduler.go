package server

import (
	"context"
	"time"

	"simpleindex/internal/index"
	"simpleindex/internal/logger"
	"simpleindex/internal/metrics"
)

// Scheduler reindexes the bucket on a fixed interval
type Scheduler struct {
	reindexer Reindexer
	interval  time.Duration
	metrics   *metrics.Metrics
	logger    *logger.Logger
	done      chan struct{}
}

// NewScheduler creates a scheduler; it does nothing until Start
func NewScheduler(reindexer Reindexer, interval time.Duration, m *metrics.Metrics, log *logger.Logger) *Scheduler {
	return &Scheduler{
		reindexer: reindexer,
		interval:  interval,
		metrics:   m,
		logger:    log,
		done:      make(chan struct{}),
	}
}

// Start runs the loop until ctx is cancelled. A non-positive interval
// disables it.
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		close(s.done)
		return
	}

	s.logger.Infof("Periodic reindex every %s", s.interval)
	go s.loop(ctx)
}

// Wait blocks until the loop has exited
func (s *Scheduler) Wait() {
	<-s.done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce reindexes; failures are logged and counted only
func (s *Scheduler) runOnce(ctx context.Context) {
	res, err := s.reindexer.ReindexBucket(ctx)
	s.metrics.ObserveReindex(packagesOf(res), err)
	if err != nil {
		s.logger.Errorf("Scheduled reindex failed: %v", err)
	}
}

func packagesOf(res *index.WriteResult) int {
	if res == nil {
		return 0
	}
	return res.Packages
}
