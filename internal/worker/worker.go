// Package worker implements the Async Worker: a single-slot polling loop
// that drives the Research Pipeline for queued deep-research jobs and
// records wall-clock progress milestones.
package worker

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/hochfrequenz/llm-merge-orchestrator/internal/domain"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/jobstore"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/research"
)

// defaultPollInterval is the poll loop's cadence.
const defaultPollInterval = 2 * time.Second

// totalIterations is fixed at 5, matching the milestone schedule below.
const totalIterations = 5

// milestone is one scheduled wall-clock progress checkpoint.
type milestone struct {
	offset   time.Duration
	progress int
}

// milestones covers iterations 1-4; iteration 5 fires on actual pipeline
// completion, not a scheduled offset.
var milestones = []milestone{
	{offset: 0, progress: 10},
	{offset: 2 * time.Second, progress: 30},
	{offset: 4 * time.Second, progress: 50},
	{offset: 6 * time.Second, progress: 70},
}

// pipelineRunner is the subset of research.Pipeline the worker depends on.
type pipelineRunner interface {
	Run(ctx context.Context, query string, modelIDs []string, judgeModelOverride string, onProgress research.ProgressFn) (*research.Output, error)
}

// notifier is notified of terminal job outcomes.
type notifier interface {
	NotifyJobCompleted(job *domain.Job)
	NotifyJobFailed(job *domain.Job)
}

// progressPublisher is notified of every progress update and pipeline
// stage transition, for in-process listeners (structured logs);
// it is never exposed over HTTP.
type progressPublisher interface {
	Publish(jobID string, progress int)
	PublishStage(jobID, stage string)
}

// metricsObserver is the subset of metrics.Registry the worker depends on.
type metricsObserver interface {
	ObserveJobStarted()
	ObserveJobFinished(status string, duration time.Duration)
}

// noopNotifier, noopPublisher, and noopMetricsObserver let a Worker run
// without collaborators wired, useful in tests.
type noopNotifier struct{}

func (noopNotifier) NotifyJobCompleted(*domain.Job) {}
func (noopNotifier) NotifyJobFailed(*domain.Job)    {}

type noopPublisher struct{}

func (noopPublisher) Publish(string, int)         {}
func (noopPublisher) PublishStage(string, string) {}

type noopMetricsObserver struct{}

func (noopMetricsObserver) ObserveJobStarted()                       {}
func (noopMetricsObserver) ObserveJobFinished(string, time.Duration) {}

// Worker polls the Job Store and drives the Research Pipeline for exactly
// one job at a time.
type Worker struct {
	Store           *jobstore.Store
	Pipeline        pipelineRunner
	Pool            *Pool
	PollInterval    time.Duration
	Notifier        notifier
	Publisher       progressPublisher
	Metrics         metricsObserver
	DefaultModelIDs []string

	trigger chan struct{}
	stop    chan struct{}
	stopped sync.WaitGroup
}

// New creates a Worker with default polling cadence and no-op
// collaborators; assign Notifier/Publisher to wire real ones.
func New(store *jobstore.Store, pipeline pipelineRunner, defaultModelIDs []string) *Worker {
	return &Worker{
		Store:           store,
		Pipeline:        pipeline,
		Pool:            NewPool(1),
		PollInterval:    defaultPollInterval,
		Notifier:        noopNotifier{},
		Publisher:       noopPublisher{},
		Metrics:         noopMetricsObserver{},
		DefaultModelIDs: defaultModelIDs,
		trigger:         make(chan struct{}, 1),
		stop:            make(chan struct{}),
	}
}

// Trigger requests an immediate dequeue attempt, e.g. right after a job is
// created. It is safe to call concurrently with the polling loop; a
// running worker ignores the request until it is free again.
func (w *Worker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Start runs the polling loop until ctx is canceled or Stop is called. It
// blocks until the loop exits, allowing the current job (if any) to
// finish first.
func (w *Worker) Start(ctx context.Context) {
	w.stopped.Add(1)
	defer w.stopped.Done()

	ticker := time.NewTicker(w.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			w.tryDequeue(ctx)
		case <-w.trigger:
			w.tryDequeue(ctx)
		}
	}
}

// Stop signals the polling loop to exit and waits for the current job (if
// any) to finish.
func (w *Worker) Stop() {
	close(w.stop)
	w.stopped.Wait()
}

func (w *Worker) pollInterval() time.Duration {
	if w.PollInterval <= 0 {
		return defaultPollInterval
	}
	return w.PollInterval
}

// tryDequeue is idempotent against a poll tick and an immediate trigger
// racing to start the same job: if the pool has no free slot, a job is
// already running and this call is a no-op.
func (w *Worker) tryDequeue(ctx context.Context) {
	if !w.Pool.TryAcquire() {
		return
	}
	defer w.Pool.Release()

	queued := w.Store.ListQueued()
	if len(queued) == 0 {
		return
	}

	w.runJob(ctx, queued[0])
}

type jobOutcome struct {
	out *research.Output
	err error
}

func (w *Worker) runJob(ctx context.Context, job *domain.Job) {
	w.Store.UpdateStatus(job.ID, domain.JobRunning, nil)
	log.Printf("worker[%s]: started", job.ID)
	w.Metrics.ObserveJobStarted()

	modelIDs := job.Options.ModelIDs
	if len(modelIDs) == 0 {
		modelIDs = w.DefaultModelIDs
	}

	start := time.Now()
	resultCh := make(chan jobOutcome, 1)
	onProgress := func(stage string) {
		log.Printf("worker[%s]: stage %s", job.ID, stage)
		w.Publisher.PublishStage(job.ID, stage)
	}
	go func() {
		out, err := w.Pipeline.Run(ctx, job.Query, modelIDs, job.Options.JudgeModelOverride, onProgress)
		resultCh <- jobOutcome{out: out, err: err}
	}()

	outcome, completedEarly := w.awaitMilestones(job.ID, start, resultCh)
	if !completedEarly {
		outcome = <-resultCh
	}

	if outcome.err != nil {
		code := ClassifyError(outcome.err)
		job.Error = &domain.JobErrorInfo{Code: code, Message: outcome.err.Error()}
		w.Store.SetError(job.ID, job.Error)
		duration := time.Since(start)
		log.Printf("worker[%s]: failed after %s: %s: %v", job.ID, duration, code, outcome.err)
		w.Metrics.ObserveJobFinished(string(domain.JobFailed), duration)
		w.Notifier.NotifyJobFailed(job)
		return
	}

	result := wrapResult(outcome.out)
	w.Store.SetResult(job.ID, result)
	job.Result = result
	duration := time.Since(start)
	log.Printf("worker[%s]: completed in %s", job.ID, duration)
	w.Metrics.ObserveJobFinished(string(domain.JobCompleted), duration)
	w.Notifier.NotifyJobCompleted(job)
}

// awaitMilestones waits out the scheduled offsets for iterations 1-4,
// updating progress as each fires, unless the pipeline finishes first. It
// returns (outcome, true) if the pipeline completed during this wait.
func (w *Worker) awaitMilestones(jobID string, start time.Time, resultCh <-chan jobOutcome) (jobOutcome, bool) {
	iteration := 1
	for _, m := range milestones {
		wait := time.Until(start.Add(m.offset))
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)

		select {
		case outcome := <-resultCh:
			timer.Stop()
			return outcome, true
		case <-timer.C:
			iter := iteration
			total := totalIterations
			w.Store.UpdateProgress(jobID, m.progress, nil, &iter, &total)
			w.Publisher.Publish(jobID, m.progress)
			iteration++
		}
	}
	return jobOutcome{}, false
}

func wrapResult(out *research.Output) *domain.JobResult {
	sections := []domain.JobResultSection{
		{Title: "Summary", Content: out.FinalAnswer, Type: "summary"},
		{Title: "Citations", Content: strings.Join(out.Citations, "\n"), Type: "citations"},
		{Title: "Sources", Content: formatSources(out.ResearchContext.Results), Type: "sources"},
	}

	metadata := domain.JobResultMetadata{}
	switch {
	case len(out.ResearchContext.Results) == 0:
		metadata.FallbackReason = "NO_EXTERNAL_SOURCES"
	case len(out.Citations) == 0:
		metadata.FallbackReason = "NO_CITATIONS_EXTRACTED"
	}

	perModelAnswers := make([]domain.PerModelAnswer, len(out.PerModelAnswers))
	for i, a := range out.PerModelAnswers {
		perModelAnswers[i] = domain.PerModelAnswer{ModelID: a.ModelID, Answer: a.Answer, LatencyMs: a.LatencyMs}
	}

	return &domain.JobResult{
		Summary:         out.FinalAnswer,
		Sections:        sections,
		Citations:       out.Citations,
		ResearchSources: out.ResearchContext.Results,
		DebateRounds:    out.DebateRoundCount,
		ModelAnswers:    perModelAnswers,
		Metadata:        metadata,
	}
}

func formatSources(results []domain.ResearchResult) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s (%s)", r.Title, r.URL)
	}
	return b.String()
}
