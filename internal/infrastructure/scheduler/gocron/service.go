package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/rwax/swapd/internal/core/ports"
)

type service struct {
	scheduler *gocron.Scheduler
	mu        *sync.Mutex
	sweepJob  *gocron.Job
}

func NewScheduler() ports.SchedulerService {
	svc := gocron.NewScheduler(time.UTC)
	return &service{scheduler: svc, mu: &sync.Mutex{}}
}

func (s *service) Start() {
	s.scheduler.StartAsync()
}

func (s *service) Stop() {
	s.scheduler.Stop()
}

func (s *service) ScheduleSweep(interval time.Duration, task func()) error {
	if interval <= 0 {
		return fmt.Errorf("invalid sweep interval: %s", interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sweepJob != nil {
		s.scheduler.Remove(s.sweepJob)
		s.sweepJob = nil
	}

	job, err := s.scheduler.Every(interval).Do(task)
	if err != nil {
		return err
	}
	s.sweepJob = job
	return nil
}

func (s *service) NextSweep() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sweepJob == nil {
		return time.Time{}
	}
	return s.sweepJob.NextRun()
}
