// Package jobstore implements the Job Store: an in-memory, per-job
// atomic registry of deep-research job state. Jobs are never persisted
// beyond process memory.
package jobstore

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hochfrequenz/llm-merge-orchestrator/internal/domain"
)

// nowFn is overridable in tests to make timestamp assertions deterministic.
var nowFn = time.Now

// Store is a concurrency-safe in-memory registry of Jobs.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

// New creates an empty Store.
func New() *Store {
	return &Store{jobs: make(map[string]*domain.Job)}
}

// Create registers a new job in the queued state.
func (s *Store) Create(query string, options domain.JobOptions, userID string) *domain.Job {
	now := nowFn()
	job := &domain.Job{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    domain.JobQueued,
		Progress:  0,
		Query:     query,
		Options:   options,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	return job.Clone()
}

// Get returns a snapshot of the job, or nil if it does not exist. If both
// userID and the job's UserID are non-empty and unequal, Get returns nil:
// ownership attribution is checked but never authenticated.
func (s *Store) Get(jobID, userID string) *domain.Job {
	s.mu.RLock()
	job, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	if userID != "" && job.UserID != "" && userID != job.UserID {
		return nil
	}
	return job.Clone()
}

// UpdateStatusPatch carries the optional fields a status transition may
// set alongside status itself. A nil pointer leaves the corresponding
// Job field unchanged.
type UpdateStatusPatch struct {
	CurrentIteration *int
	TotalIterations  *int
}

// UpdateStatus transitions a job to status, stamping startedAt on the
// first transition to running and completedAt on any transition to a
// terminal status.
func (s *Store) UpdateStatus(jobID string, status domain.JobStatus, patch *UpdateStatusPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return
	}

	job.Status = status
	job.UpdatedAt = nowFn()

	if status == domain.JobRunning && job.StartedAt == nil {
		started := job.UpdatedAt
		job.StartedAt = &started
	}
	if isTerminal(status) && job.CompletedAt == nil {
		completed := job.UpdatedAt
		job.CompletedAt = &completed
	}

	if patch != nil {
		if patch.CurrentIteration != nil {
			job.CurrentIteration = *patch.CurrentIteration
		}
		if patch.TotalIterations != nil {
			job.TotalIterations = *patch.TotalIterations
		}
	}
}

// UpdateProgress rounds progress to the nearest multiple of 5, clamps it
// to [0,100], and records the optional iteration/ETA fields.
func (s *Store) UpdateProgress(jobID string, progress int, remainingSeconds, currentIteration, totalIterations *int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return
	}

	job.Progress = roundToMultipleOf5(progress)
	job.UpdatedAt = nowFn()
	job.EstimatedRemainingSeconds = remainingSeconds
	if currentIteration != nil {
		job.CurrentIteration = *currentIteration
	}
	if totalIterations != nil {
		job.TotalIterations = *totalIterations
	}
}

// SetResult marks a job completed with the given result.
func (s *Store) SetResult(jobID string, result *domain.JobResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return
	}

	now := nowFn()
	job.Status = domain.JobCompleted
	job.Progress = 100
	job.Result = result
	job.UpdatedAt = now
	if job.CompletedAt == nil {
		job.CompletedAt = &now
	}
}

// SetError marks a job failed with the given error info.
func (s *Store) SetError(jobID string, errInfo *domain.JobErrorInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return
	}

	now := nowFn()
	job.Status = domain.JobFailed
	job.Progress = 0
	job.Error = errInfo
	job.UpdatedAt = now
	if job.CompletedAt == nil {
		job.CompletedAt = &now
	}
}

// ListQueued returns every job currently in the queued state, oldest
// first by creation time.
func (s *Store) ListQueued() []*domain.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Job
	for _, job := range s.jobs {
		if job.Status == domain.JobQueued {
			out = append(out, job.Clone())
		}
	}
	sortByCreatedAt(out)
	return out
}

// ListAll returns a snapshot of every job, most recently created first.
func (s *Store) ListAll() []*domain.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.Clone())
	}
	sortByCreatedAt(out)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Cleanup removes terminal jobs older than maxAge, returning the count
// removed.
func (s *Store) Cleanup(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := nowFn().Add(-maxAge)
	removed := 0
	for id, job := range s.jobs {
		if !isTerminal(job.Status) {
			continue
		}
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

func isTerminal(status domain.JobStatus) bool {
	return status == domain.JobCompleted || status == domain.JobFailed
}

func roundToMultipleOf5(p int) int {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	rounded := ((p + 2) / 5) * 5
	if rounded > 100 {
		rounded = 100
	}
	if rounded < 0 {
		rounded = 0
	}
	return rounded
}

func sortByCreatedAt(jobs []*domain.Job) {
	for i := 1; i < len(jobs); i++ {
		for j := i; j > 0 && jobs[j].CreatedAt.Before(jobs[j-1].CreatedAt); j-- {
			jobs[j], jobs[j-1] = jobs[j-1], jobs[j]
		}
	}
}
