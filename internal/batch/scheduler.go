package batch

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler tracks a set of recurring batch jobs and fires each one at
// most once per its cron schedule. It reasons about a job's Kind in two
// places: how far back an unseen job is allowed to catch up, and how many
// digest jobs (each of which drives a full model fan-out through the Async
// Worker) are allowed to run at once, independent of how many cleanup
// sweeps are in flight.
type Scheduler struct {
	jobs     map[string]JobConfig
	parser   cron.Parser
	lastRun  map[string]time.Time
	running  map[string]bool
	mu       sync.RWMutex
	stopChan chan struct{}

	// maxConcurrentDigests bounds how many KindDigest jobs run at once,
	// regardless of how many are due. Cleanup jobs are exempt: they are
	// cheap, idempotent, and never contend for the model fleet.
	maxConcurrentDigests int
	digestsInFlight      int
}

// NewScheduler validates every job config and builds a Scheduler for them.
func NewScheduler(jobs []JobConfig) (*Scheduler, error) {
	s := &Scheduler{
		jobs:                 make(map[string]JobConfig),
		parser:               cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		lastRun:              make(map[string]time.Time),
		running:              make(map[string]bool),
		stopChan:             make(chan struct{}),
		maxConcurrentDigests: 1,
	}

	for _, cfg := range jobs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		s.jobs[cfg.Name] = cfg
	}

	return s, nil
}

// ParseCron parses a 5-field cron expression (minute hour dom month dow).
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

// NextRun returns the next scheduled run time for a job, or the zero time
// if the job is unknown or its cron expression is malformed.
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.jobs[name]
	if !ok {
		return time.Time{}
	}

	sched, err := s.parser.Parse(cfg.Cron)
	if err != nil {
		return time.Time{}
	}

	return sched.Next(time.Now())
}

// catchUpWindow bounds how far in the past an unseen job's schedule is
// evaluated from. Cleanup sweeps are safe to fire immediately after
// startup, so they get a full day of backdating to make sure a missed
// nightly run is caught. A digest fans out to every configured model and
// costs real money per invocation, so an unseen digest job is backdated
// only far enough to catch its very next tick rather than replaying a
// backlog built up while the process was down.
func (s *Scheduler) catchUpWindow(kind Kind) time.Duration {
	if kind == KindDigest {
		return time.Minute
	}
	return 24 * time.Hour
}

// ShouldRun reports whether a job's schedule has elapsed since its last
// run, it is not already in flight, and (for digest jobs) the concurrent
// digest budget has room.
func (s *Scheduler) ShouldRun(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.jobs[name]
	if !ok {
		return false
	}
	if s.running[name] {
		return false
	}
	if cfg.Kind == KindDigest && s.digestsInFlight >= s.maxConcurrentDigests {
		return false
	}

	sched, err := s.parser.Parse(cfg.Cron)
	if err != nil {
		return false
	}

	lastRun := s.lastRun[name]
	if lastRun.IsZero() {
		lastRun = time.Now().Add(-s.catchUpWindow(cfg.Kind))
	}

	return time.Now().After(sched.Next(lastRun))
}

// MarkRunning flags a job as currently executing and, for a digest job,
// reserves a slot in the concurrent-digest budget.
func (s *Scheduler) MarkRunning(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = true
	if cfg, ok := s.jobs[name]; ok && cfg.Kind == KindDigest {
		s.digestsInFlight++
	}
}

// MarkComplete clears a job's running flag, stamps its last-run time, and
// releases its digest-budget slot if it held one.
func (s *Scheduler) MarkComplete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = false
	s.lastRun[name] = time.Now()
	if cfg, ok := s.jobs[name]; ok && cfg.Kind == KindDigest && s.digestsInFlight > 0 {
		s.digestsInFlight--
	}
}

// GetJob returns the config registered under name.
func (s *Scheduler) GetJob(name string) (JobConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.jobs[name]
	return cfg, ok
}

// ListJobs returns every registered job name.
func (s *Scheduler) ListJobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// Start runs the scheduler loop, invoking runFunc for each job whose
// schedule has elapsed, until Stop is called. Each invocation runs in its
// own goroutine so a slow job never delays the minute tick for others.
// Cleanup and digest jobs are dispatched from the same tick, but ShouldRun
// throttles how many digests launch concurrently; cleanups are never
// throttled since they only touch the Job Store's own map.
func (s *Scheduler) Start(runFunc func(JobConfig) error) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runDueJobs(runFunc)
		}
	}
}

func (s *Scheduler) runDueJobs(runFunc func(JobConfig) error) {
	for _, name := range s.ListJobs() {
		if !s.ShouldRun(name) {
			continue
		}
		cfg, ok := s.GetJob(name)
		if !ok {
			continue
		}
		s.MarkRunning(name)
		go func(c JobConfig) {
			defer s.MarkComplete(c.Name)
			if err := runFunc(c); err != nil {
				fmt.Printf("batch job %s (%s) failed: %v\n", c.Name, c.Kind, err)
			}
		}(cfg)
	}
}

// Stop ends the scheduler loop.
func (s *Scheduler) Stop() {
	close(s.stopChan)
}
