package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hochfrequenz/llm-merge-orchestrator/internal/domain"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/jobstore"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/research"
)

type fakeWorkerPipeline struct {
	delay  time.Duration
	out    *research.Output
	err    error
	stages []string

	mu             sync.Mutex
	calledModelIDs []string
}

func (f *fakeWorkerPipeline) Run(ctx context.Context, query string, modelIDs []string, judgeModelOverride string, onProgress research.ProgressFn) (*research.Output, error) {
	f.mu.Lock()
	f.calledModelIDs = modelIDs
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if onProgress != nil {
		for _, stage := range f.stages {
			onProgress(stage)
		}
	}
	return f.out, f.err
}

type spyPublisher struct {
	mu         sync.Mutex
	progresses []int
	stages     []string
}

func (s *spyPublisher) Publish(_ string, progress int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progresses = append(s.progresses, progress)
}

func (s *spyPublisher) PublishStage(_, stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages = append(s.stages, stage)
}

func (s *spyPublisher) stageSnapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.stages...)
}

func (s *spyPublisher) snapshot() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.progresses...)
}

type spyMetricsObserver struct {
	mu       sync.Mutex
	started  int
	finished []string
}

func (s *spyMetricsObserver) ObserveJobStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started++
}

func (s *spyMetricsObserver) ObserveJobFinished(status string, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, status)
}

type spyNotifier struct {
	mu        sync.Mutex
	completed []string
	failed    []string
}

func (s *spyNotifier) NotifyJobCompleted(job *domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, job.ID)
}

func (s *spyNotifier) NotifyJobFailed(job *domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, job.ID)
}

func withFastMilestones(t *testing.T) {
	old := milestones
	milestones = []milestone{
		{offset: 0, progress: 10},
		{offset: 5 * time.Millisecond, progress: 30},
		{offset: 10 * time.Millisecond, progress: 50},
		{offset: 15 * time.Millisecond, progress: 70},
	}
	t.Cleanup(func() { milestones = old })
}

func TestTryDequeue_ProcessesOldestQueuedJobToCompletion(t *testing.T) {
	withFastMilestones(t)
	store := jobstore.New()
	job := store.Create("what is go", domain.JobOptions{}, "")

	pipeline := &fakeWorkerPipeline{out: &research.Output{
		FinalAnswer:      "go is a language",
		Citations:        []string{"https://go.dev"},
		ResearchContext:  domain.ResearchContext{Results: []domain.ResearchResult{{Title: "Go", URL: "https://go.dev"}}},
		DebateRoundCount: 1,
	}}

	w := New(store, pipeline, []string{"model-a"})
	w.tryDequeue(context.Background())

	got := store.Get(job.ID, "")
	if got.Status != domain.JobCompleted {
		t.Fatalf("Status = %v, want completed", got.Status)
	}
	if got.Progress != 100 {
		t.Errorf("Progress = %d, want 100", got.Progress)
	}
	if got.Result == nil || got.Result.Summary != "go is a language" {
		t.Errorf("Result = %+v", got.Result)
	}
	if got.Result.Metadata.FallbackReason != "" {
		t.Errorf("FallbackReason = %q, want empty", got.Result.Metadata.FallbackReason)
	}
}

func TestTryDequeue_NoQueuedJobs_IsNoOp(t *testing.T) {
	store := jobstore.New()
	pipeline := &fakeWorkerPipeline{out: &research.Output{}}
	w := New(store, pipeline, nil)

	w.tryDequeue(context.Background())

	if w.Pool.Available() != 1 {
		t.Errorf("Available() = %d, want 1 (slot released)", w.Pool.Available())
	}
}

func TestTryDequeue_IdempotentAgainstDoubleTrigger(t *testing.T) {
	store := jobstore.New()
	store.Create("q", domain.JobOptions{}, "")
	pipeline := &fakeWorkerPipeline{out: &research.Output{}}
	w := New(store, pipeline, nil)

	if !w.Pool.TryAcquire() {
		t.Fatal("expected to acquire the only slot")
	}
	defer w.Pool.Release()

	w.tryDequeue(context.Background())

	queued := store.ListQueued()
	if len(queued) != 1 {
		t.Errorf("expected job to remain queued when the pool is already busy, got %d queued", len(queued))
	}
}

func TestRunJob_PipelineFailure_SetsClassifiedError(t *testing.T) {
	withFastMilestones(t)
	store := jobstore.New()
	job := store.Create("q", domain.JobOptions{}, "")
	pipeline := &fakeWorkerPipeline{err: errors.New("request timeout upstream")}
	notifier := &spyNotifier{}
	w := New(store, pipeline, nil)
	w.Notifier = notifier

	w.tryDequeue(context.Background())

	got := store.Get(job.ID, "")
	if got.Status != domain.JobFailed {
		t.Fatalf("Status = %v, want failed", got.Status)
	}
	if got.Error == nil || got.Error.Code != CodeResearchTimeout {
		t.Errorf("Error = %+v, want code %s", got.Error, CodeResearchTimeout)
	}
	if len(notifier.failed) != 1 || notifier.failed[0] != job.ID {
		t.Errorf("failed notifications = %v, want [%s]", notifier.failed, job.ID)
	}
}

func TestRunJob_NoExternalSources_SetsFallbackReason(t *testing.T) {
	withFastMilestones(t)
	store := jobstore.New()
	job := store.Create("q", domain.JobOptions{}, "")
	pipeline := &fakeWorkerPipeline{out: &research.Output{
		FinalAnswer:     "answer without sources",
		ResearchContext: domain.ResearchContext{Results: nil},
	}}
	w := New(store, pipeline, nil)

	w.tryDequeue(context.Background())

	got := store.Get(job.ID, "")
	if got.Result.Metadata.FallbackReason != "NO_EXTERNAL_SOURCES" {
		t.Errorf("FallbackReason = %q, want NO_EXTERNAL_SOURCES", got.Result.Metadata.FallbackReason)
	}
}

func TestRunJob_SourcesWithoutCitations_SetsFallbackReason(t *testing.T) {
	withFastMilestones(t)
	store := jobstore.New()
	job := store.Create("q", domain.JobOptions{}, "")
	pipeline := &fakeWorkerPipeline{out: &research.Output{
		FinalAnswer:     "answer",
		ResearchContext: domain.ResearchContext{Results: []domain.ResearchResult{{Title: "T", URL: "https://x"}}},
		Citations:       nil,
	}}
	w := New(store, pipeline, nil)

	w.tryDequeue(context.Background())

	got := store.Get(job.ID, "")
	if got.Result.Metadata.FallbackReason != "NO_CITATIONS_EXTRACTED" {
		t.Errorf("FallbackReason = %q, want NO_CITATIONS_EXTRACTED", got.Result.Metadata.FallbackReason)
	}
}

func TestRunJob_ReportsMetricsOnCompletion(t *testing.T) {
	withFastMilestones(t)
	store := jobstore.New()
	store.Create("q", domain.JobOptions{}, "")
	pipeline := &fakeWorkerPipeline{out: &research.Output{}}
	spy := &spyMetricsObserver{}
	w := New(store, pipeline, nil)
	w.Metrics = spy

	w.tryDequeue(context.Background())

	if spy.started != 1 {
		t.Errorf("started = %d, want 1", spy.started)
	}
	if len(spy.finished) != 1 || spy.finished[0] != string(domain.JobCompleted) {
		t.Errorf("finished = %v, want [%s]", spy.finished, domain.JobCompleted)
	}
}

func TestRunJob_ReportsMetricsOnFailure(t *testing.T) {
	withFastMilestones(t)
	store := jobstore.New()
	store.Create("q", domain.JobOptions{}, "")
	pipeline := &fakeWorkerPipeline{err: errors.New("request timed out upstream")}
	spy := &spyMetricsObserver{}
	w := New(store, pipeline, nil)
	w.Metrics = spy

	w.tryDequeue(context.Background())

	if spy.started != 1 {
		t.Errorf("started = %d, want 1", spy.started)
	}
	if len(spy.finished) != 1 || spy.finished[0] != string(domain.JobFailed) {
		t.Errorf("finished = %v, want [%s]", spy.finished, domain.JobFailed)
	}
}

func TestRunJob_ForwardsPipelineStagesToPublisher(t *testing.T) {
	store := jobstore.New()
	store.Create("q", domain.JobOptions{}, "")
	pipeline := &fakeWorkerPipeline{out: &research.Output{}, stages: []string{"search", "researched_answers", "debate", "judge"}}
	publisher := &spyPublisher{}
	w := New(store, pipeline, nil)
	w.Publisher = publisher

	w.tryDequeue(context.Background())

	got := publisher.stageSnapshot()
	want := []string{"search", "researched_answers", "debate", "judge"}
	if len(got) != len(want) {
		t.Fatalf("PublishStage calls = %v, want %v", got, want)
	}
	for i, stage := range want {
		if got[i] != stage {
			t.Errorf("stage[%d] = %q, want %q", i, got[i], stage)
		}
	}
}

func TestRunJob_ProgressAdvancesThroughMilestonesBeforeCompletion(t *testing.T) {
	withFastMilestones(t)
	store := jobstore.New()
	store.Create("q", domain.JobOptions{}, "")
	pipeline := &fakeWorkerPipeline{delay: 25 * time.Millisecond, out: &research.Output{}}
	publisher := &spyPublisher{}
	w := New(store, pipeline, nil)
	w.Publisher = publisher

	w.tryDequeue(context.Background())

	got := publisher.snapshot()
	if len(got) != 4 {
		t.Fatalf("Publish calls = %v, want 4 milestone updates", got)
	}
	want := []int{10, 30, 50, 70}
	for i, wantProgress := range want {
		if got[i] != wantProgress {
			t.Errorf("Publish[%d] = %d, want %d", i, got[i], wantProgress)
		}
	}
}

func TestRunJob_UsesDefaultModelIDsWhenJobHasNone(t *testing.T) {
	store := jobstore.New()
	store.Create("q", domain.JobOptions{}, "")
	pipeline := &fakeWorkerPipeline{out: &research.Output{}}
	w := New(store, pipeline, []string{"default-model"})

	w.tryDequeue(context.Background())

	if len(pipeline.calledModelIDs) != 1 || pipeline.calledModelIDs[0] != "default-model" {
		t.Errorf("calledModelIDs = %v, want [default-model]", pipeline.calledModelIDs)
	}
}

func TestRunJob_UsesJobModelIDsWhenPresent(t *testing.T) {
	store := jobstore.New()
	store.Create("q", domain.JobOptions{ModelIDs: []string{"job-model"}}, "")
	pipeline := &fakeWorkerPipeline{out: &research.Output{}}
	w := New(store, pipeline, []string{"default-model"})

	w.tryDequeue(context.Background())

	if len(pipeline.calledModelIDs) != 1 || pipeline.calledModelIDs[0] != "job-model" {
		t.Errorf("calledModelIDs = %v, want [job-model]", pipeline.calledModelIDs)
	}
}

func TestStartStop_ProcessesTriggeredJobThenExitsCleanly(t *testing.T) {
	withFastMilestones(t)
	store := jobstore.New()
	job := store.Create("q", domain.JobOptions{}, "")
	pipeline := &fakeWorkerPipeline{out: &research.Output{}}
	w := New(store, pipeline, nil)
	w.PollInterval = time.Hour // rely on the immediate trigger, not the ticker

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	w.Trigger()

	deadline := time.After(2 * time.Second)
	for {
		got := store.Get(job.ID, "")
		if got.Status == domain.JobCompleted {
			break
		}
		select {
		case <-deadline:
			t.Fatal("job never completed")
		case <-time.After(time.Millisecond):
		}
	}

	w.Stop()
	<-done
}
