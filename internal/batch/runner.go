package batch

import (
	"fmt"
	"time"

	"github.com/hochfrequenz/llm-merge-orchestrator/internal/domain"
)

// digestPollInterval and digestPollTimeout are package vars so tests can
// shrink them; production wiring leaves them at their defaults.
var (
	digestPollInterval = 2 * time.Second
	digestPollTimeout  = 10 * time.Minute
)

// store is the subset of jobstore.Store a Runner needs.
type store interface {
	Create(query string, options domain.JobOptions, userID string) *domain.Job
	Get(jobID, userID string) *domain.Job
	Cleanup(maxAge time.Duration) int
}

// Runner turns a scheduled JobConfig into an action against the Job
// Store, matching it against the Scheduler's runFunc signature.
type Runner struct {
	Store   store
	Trigger func() // wakes the Async Worker immediately after enqueuing a digest job

	OnDigestComplete func(cfg JobConfig, job *domain.Job)
	OnDigestFailed   func(cfg JobConfig, job *domain.Job)
}

// Run executes cfg according to its Kind.
func (r *Runner) Run(cfg JobConfig) error {
	switch cfg.Kind {
	case KindCleanup:
		r.Store.Cleanup(cfg.MaxAge())
		return nil
	case KindDigest:
		return r.runDigest(cfg)
	default:
		return fmt.Errorf("unknown batch kind %q", cfg.Kind)
	}
}

func (r *Runner) runDigest(cfg JobConfig) error {
	job := r.Store.Create(cfg.Query, domain.JobOptions{
		ModelIDs:           cfg.ModelIDs,
		JudgeModelOverride: cfg.JudgeModel,
	}, "")

	if r.Trigger != nil {
		r.Trigger()
	}

	if cfg.NotifyOnComplete {
		go r.awaitAndNotify(cfg, job.ID)
	}
	return nil
}

// awaitAndNotify polls the Job Store until the digest job reaches a
// terminal state, then reports the outcome. It gives up silently after
// digestPollTimeout, since a digest that never finishes is a worker
// problem the next cleanup sweep and operator alerts will surface.
func (r *Runner) awaitAndNotify(cfg JobConfig, jobID string) {
	ticker := time.NewTicker(digestPollInterval)
	defer ticker.Stop()
	deadline := time.After(digestPollTimeout)

	for {
		select {
		case <-deadline:
			return
		case <-ticker.C:
			job := r.Store.Get(jobID, "")
			if job == nil {
				return
			}
			switch job.Status {
			case domain.JobCompleted:
				if r.OnDigestComplete != nil {
					r.OnDigestComplete(cfg, job)
				}
				return
			case domain.JobFailed:
				if r.OnDigestFailed != nil {
					r.OnDigestFailed(cfg, job)
				}
				return
			}
		}
	}
}
