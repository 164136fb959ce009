package debate

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hochfrequenz/llm-merge-orchestrator/internal/domain"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/modelclient"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/prompts"
)

type fakeCaller struct {
	mu       sync.Mutex
	calls    int
	failFor  map[string]bool // modelID -> fail this refine call
	feedback string
}

func (f *fakeCaller) CallModel(ctx context.Context, modelID string, messages []domain.Message, timeout time.Duration, opts modelclient.CallOptions) (*modelclient.CallResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if modelID == "judge-model" {
		if f.feedback == "fail" {
			return nil, modelclient.ErrEmptyResponse
		}
		return &modelclient.CallResult{Answer: "be more precise"}, nil
	}
	if f.failFor[modelID] {
		return nil, modelclient.ErrEmptyResponse
	}
	return &modelclient.CallResult{Answer: "refined:" + modelID, LatencyMs: 5}, nil
}

func newEngine(c caller, rounds int) *Engine {
	return New(c, prompts.NewLoader(), "judge-model", 2*time.Second, 2*time.Second, rounds)
}

func TestEngine_ZeroRounds_Identity(t *testing.T) {
	fake := &fakeCaller{}
	e := newEngine(fake, 0)

	initial := []domain.ModelCallResult{{ModelID: "m1", Answer: "a", Success: true}}
	out := e.Run(context.Background(), "q", initial)

	if len(out.DebateRounds) != 0 {
		t.Fatalf("DebateRounds = %d, want 0", len(out.DebateRounds))
	}
	if len(out.FinalAnswers) != 1 || out.FinalAnswers[0].Answer != "a" {
		t.Errorf("FinalAnswers = %+v, want unchanged initial", out.FinalAnswers)
	}
	if fake.calls != 0 {
		t.Errorf("calls = %d, want 0 (no-op)", fake.calls)
	}
}

func TestEngine_RunsExactlyRRounds(t *testing.T) {
	fake := &fakeCaller{}
	e := newEngine(fake, 3)

	initial := []domain.ModelCallResult{
		{ModelID: "m1", Answer: "a", Success: true},
		{ModelID: "m2", Answer: "b", Success: true},
	}
	out := e.Run(context.Background(), "q", initial)

	if len(out.DebateRounds) != 3 {
		t.Fatalf("DebateRounds = %d, want 3", len(out.DebateRounds))
	}
	for i, r := range out.DebateRounds {
		if r.RoundIndex != i+1 {
			t.Errorf("round %d has RoundIndex %d", i, r.RoundIndex)
		}
	}
	for _, fa := range out.FinalAnswers {
		if !strings.HasPrefix(fa.Answer, "refined:") {
			t.Errorf("FinalAnswer %q not refined", fa.Answer)
		}
	}
}

func TestEngine_RetainsPreviousAnswerOnRefineFailure(t *testing.T) {
	fake := &fakeCaller{failFor: map[string]bool{"m2": true}}
	e := newEngine(fake, 1)

	initial := []domain.ModelCallResult{
		{ModelID: "m1", Answer: "a-original", Success: true},
		{ModelID: "m2", Answer: "b-original", Success: true},
	}
	out := e.Run(context.Background(), "q", initial)

	if out.FinalAnswers[1].Answer != "b-original" {
		t.Errorf("FinalAnswers[1] = %q, want retained original", out.FinalAnswers[1].Answer)
	}
	if !strings.HasPrefix(out.FinalAnswers[0].Answer, "refined:") {
		t.Errorf("FinalAnswers[0] should have refined successfully")
	}
}

func TestEngine_UsesFallbackFeedbackOnJudgeFailure(t *testing.T) {
	fake := &fakeCaller{feedback: "fail"}
	e := newEngine(fake, 1)

	initial := []domain.ModelCallResult{{ModelID: "m1", Answer: "a", Success: true}}
	out := e.Run(context.Background(), "q", initial)

	if out.DebateRounds[0].JudgeFeedback != fallbackFeedback {
		t.Errorf("JudgeFeedback = %q, want fallback", out.DebateRounds[0].JudgeFeedback)
	}
}

func TestEngine_AllModelsFailAllRounds_InitialSurvivesUnchanged(t *testing.T) {
	fake := &fakeCaller{failFor: map[string]bool{"m1": true, "m2": true}}
	e := newEngine(fake, 2)

	initial := []domain.ModelCallResult{
		{ModelID: "m1", Answer: "a-original", Success: true},
		{ModelID: "m2", Answer: "b-original", Success: true},
	}
	out := e.Run(context.Background(), "q", initial)

	if out.FinalAnswers[0].Answer != "a-original" || out.FinalAnswers[1].Answer != "b-original" {
		t.Errorf("FinalAnswers = %+v, want unchanged", out.FinalAnswers)
	}
	if len(out.DebateRounds) != 2 {
		t.Errorf("DebateRounds = %d, want 2", len(out.DebateRounds))
	}
}

func TestEngine_NeverLeaksModelIDInPrompts(t *testing.T) {
	fake := &recordingCaller{}
	e := newEngine(fake, 1)

	initial := []domain.ModelCallResult{
		{ModelID: "secret-model-x", Answer: "a", Success: true},
		{ModelID: "secret-model-y", Answer: "b", Success: true},
	}
	e.Run(context.Background(), "q", initial)

	for _, msgs := range fake.allMessages {
		for _, m := range msgs {
			if strings.Contains(m.Content, "secret-model-x") || strings.Contains(m.Content, "secret-model-y") {
				t.Fatalf("prompt leaked model id: %q", m.Content)
			}
		}
	}
}

type recordingCaller struct {
	mu          sync.Mutex
	allMessages [][]domain.Message
}

func (r *recordingCaller) CallModel(ctx context.Context, modelID string, messages []domain.Message, timeout time.Duration, opts modelclient.CallOptions) (*modelclient.CallResult, error) {
	r.mu.Lock()
	r.allMessages = append(r.allMessages, messages)
	r.mu.Unlock()
	return &modelclient.CallResult{Answer: "ok:" + modelID}, nil
}

type spyMetricsObserver struct {
	rounds int
}

func (s *spyMetricsObserver) ObserveDebateRounds(n int) {
	s.rounds = n
}

func TestEngine_ReportsRoundsExecutedToMetrics(t *testing.T) {
	fake := &fakeCaller{}
	e := newEngine(fake, 3)
	spy := &spyMetricsObserver{}
	e.Metrics = spy

	initial := []domain.ModelCallResult{{ModelID: "m1", Answer: "a", Success: true}}
	e.Run(context.Background(), "q", initial)

	if spy.rounds != 3 {
		t.Errorf("rounds = %d, want 3", spy.rounds)
	}
}

func TestEngine_ZeroRounds_ReportsNoRoundsToMetrics(t *testing.T) {
	fake := &fakeCaller{}
	e := newEngine(fake, 0)
	spy := &spyMetricsObserver{}
	e.Metrics = spy

	initial := []domain.ModelCallResult{{ModelID: "m1", Answer: "a", Success: true}}
	e.Run(context.Background(), "q", initial)

	if spy.rounds != 0 {
		t.Errorf("rounds = %d, want 0 (MaxRounds<=0 is a no-op)", spy.rounds)
	}
}
