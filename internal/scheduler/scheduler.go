// Package scheduler runs periodic housekeeping jobs (such as stale queue
// recovery) on a cron schedule, independent of the turn-driven
// work the session hub performs.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/blufio/blufio/internal/logging"
)

// Job is one named, schedulable unit of housekeeping work.
type Job struct {
	Name     string
	Schedule string // standard 5-field cron expression or descriptor such as "@every 5m"
	Run      func(ctx context.Context) error
}

// Service wraps a cron.Cron, logging every run and skipping overlapping
// executions of the same job.
type Service struct {
	cron    *cron.Cron
	mu      sync.Mutex
	started bool
}

// NewService builds a scheduler in the local timezone, skipping a job's
// next firing if the previous run is still in flight.
func NewService() *Service {
	return &Service{
		cron: cron.New(
			cron.WithLocation(time.Local),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
	}
}

// Register adds a job. A job registered after Start is scheduled as well.
func (s *Service) Register(ctx context.Context, job Job) error {
	_, err := s.cron.AddFunc(job.Schedule, func() {
		if err := job.Run(ctx); err != nil {
			logging.Logger().Warn("scheduled job failed", "job", job.Name, "err", err)
		}
	})
	return err
}

// Start begins running registered jobs on their schedules.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.cron.Start()
	s.started = true
}

// Stop waits for in-flight job runs to finish or ctx to be canceled.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	doneCtx := s.cron.Stop()
	s.started = false
	select {
	case <-doneCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
