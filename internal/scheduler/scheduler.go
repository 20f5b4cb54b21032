// internal/scheduler/scheduler.go

// Package scheduler runs the periodic sweeps: vote-deadline resolution,
// connection health, and reconnection grace windows. One tick loop per
// concern; the sweep bodies themselves are plain functions so tests drive
// them directly with a chosen clock instead of waiting on real ticks.
package scheduler

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

// Scheduler wraps a gocron scheduler so callers only deal with named
// duration jobs.
type Scheduler struct {
	s   gocron.Scheduler
	log *logrus.Logger
}

// New builds a stopped Scheduler; call Start after registering jobs.
func New(log *logrus.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{s: s, log: log}, nil
}

// Every registers fn to run on the given interval.
func (s *Scheduler) Every(interval time.Duration, name string, fn func()) error {
	_, err := s.s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.WithField("job", name).Errorf("sweep panicked: %v", r)
				}
			}()
			fn()
		}),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("register job %s: %w", name, err)
	}
	return nil
}

// Start begins ticking registered jobs.
func (s *Scheduler) Start() {
	s.s.Start()
}

// Stop shuts the tick loops down, waiting for running jobs to finish.
func (s *Scheduler) Stop() error {
	return s.s.Shutdown()
}
