package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hochfrequenz/llm-merge-orchestrator/internal/debate"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/domain"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/judge"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/modelclient"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/prompts"
)

type fakeModelCaller struct {
	byModel map[string]fakeModelBehavior
}

type fakeModelBehavior struct {
	delay   time.Duration
	success bool
	answer  string
}

func (f *fakeModelCaller) Call(ctx context.Context, modelID string, messages []domain.Message, timeout time.Duration, opts modelclient.CallOptions, maxRetries int) domain.ModelCallResult {
	b := f.byModel[modelID]
	select {
	case <-time.After(b.delay):
	case <-ctx.Done():
		return domain.ModelCallResult{ModelID: modelID, Success: false, Error: "canceled"}
	}
	if !b.success {
		return domain.ModelCallResult{ModelID: modelID, Success: false, Error: "boom"}
	}
	return domain.ModelCallResult{ModelID: modelID, Success: true, Answer: b.answer, LatencyMs: b.delay.Milliseconds()}
}

type fakeJudge struct {
	answer string
	err    error
}

func (f *fakeJudge) JudgeAndMerge(ctx context.Context, userPrompt string, successfulAnswers []domain.ModelCallResult, debateRounds []domain.DebateRound, judgeModelOverride string, researchMode bool, researchSummary string) (*judge.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &judge.Result{MergedAnswer: f.answer}, nil
}

type fakeDebate struct {
	out *debate.Output
}

func (f *fakeDebate) Run(ctx context.Context, userPrompt string, initial []domain.ModelCallResult) *debate.Output {
	return f.out
}

func baseOptions() Options {
	return Options{
		PerModelTimeout:   2 * time.Second,
		MaxRetries:        0,
		MinModelsForJudge: 2,
		EnableEarlyJudge:  true,
		EnableDebate:      false,
		MaxPromptLength:   1000,
	}
}

func TestOrchestrate_EmptyPromptRejected(t *testing.T) {
	o := New(&fakeModelCaller{}, &fakeJudge{}, &fakeDebate{}, prompts.NewLoader(), baseOptions())
	_, err := o.Orchestrate(context.Background(), "", domain.ModeGeneral, []string{"m1"}, "")

	var badInput *BadInputError
	if !errors.As(err, &badInput) {
		t.Fatalf("err = %v, want *BadInputError", err)
	}
}

func TestOrchestrate_EmptyModelListRejected(t *testing.T) {
	o := New(&fakeModelCaller{}, &fakeJudge{}, &fakeDebate{}, prompts.NewLoader(), baseOptions())
	_, err := o.Orchestrate(context.Background(), "hello", domain.ModeGeneral, nil, "")

	var badInput *BadInputError
	if !errors.As(err, &badInput) {
		t.Fatalf("err = %v, want *BadInputError", err)
	}
}

func TestOrchestrate_PromptAtExactMaxLengthAccepted(t *testing.T) {
	opts := baseOptions()
	opts.MaxPromptLength = 5
	caller := &fakeModelCaller{byModel: map[string]fakeModelBehavior{
		"m1": {success: true, answer: "a"},
	}}
	o := New(caller, &fakeJudge{answer: "merged"}, &fakeDebate{}, prompts.NewLoader(), opts)

	_, err := o.Orchestrate(context.Background(), "12345", domain.ModeGeneral, []string{"m1"}, "")
	if err != nil {
		t.Fatalf("unexpected error at exact max length: %v", err)
	}
}

func TestOrchestrate_PromptOverMaxLengthRejected(t *testing.T) {
	opts := baseOptions()
	opts.MaxPromptLength = 5
	o := New(&fakeModelCaller{}, &fakeJudge{}, &fakeDebate{}, prompts.NewLoader(), opts)

	_, err := o.Orchestrate(context.Background(), "123456", domain.ModeGeneral, []string{"m1"}, "")
	var badInput *BadInputError
	if !errors.As(err, &badInput) {
		t.Fatalf("err = %v, want *BadInputError", err)
	}
}

func TestOrchestrate_AllModelsFail(t *testing.T) {
	caller := &fakeModelCaller{byModel: map[string]fakeModelBehavior{
		"m1": {success: false},
		"m2": {success: false},
		"m3": {success: false},
	}}
	o := New(caller, &fakeJudge{}, &fakeDebate{}, prompts.NewLoader(), baseOptions())

	_, err := o.Orchestrate(context.Background(), "hello", domain.ModeGeneral, []string{"m1", "m2", "m3"}, "")

	var allFailed *AllModelsFailedError
	if !errors.As(err, &allFailed) {
		t.Fatalf("err = %v, want *AllModelsFailedError", err)
	}
	if len(allFailed.PerModelResults) != 3 {
		t.Errorf("PerModelResults = %d, want 3", len(allFailed.PerModelResults))
	}
	for _, r := range allFailed.PerModelResults {
		if r.Success {
			t.Errorf("expected all failed, got success for %s", r.ModelID)
		}
	}
}

func TestOrchestrate_OneFailureTwoSuccesses(t *testing.T) {
	caller := &fakeModelCaller{byModel: map[string]fakeModelBehavior{
		"m1": {success: true, answer: "a1"},
		"m2": {success: true, answer: "a2"},
		"m3": {success: false},
	}}
	o := New(caller, &fakeJudge{answer: "merged answer"}, &fakeDebate{}, prompts.NewLoader(), baseOptions())

	result, err := o.Orchestrate(context.Background(), "hello", domain.ModeGeneral, []string{"m1", "m2", "m3"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if result.MergedAnswer != "merged answer" {
		t.Errorf("MergedAnswer = %q", result.MergedAnswer)
	}
	if len(result.PerModelResults) != 3 {
		t.Fatalf("PerModelResults = %d, want 3", len(result.PerModelResults))
	}
	failCount := 0
	for _, r := range result.PerModelResults {
		if !r.Success {
			failCount++
		}
	}
	if failCount != 1 {
		t.Errorf("failCount = %d, want 1", failCount)
	}
}

func TestOrchestrate_EarlyJudgeFiresAtThreshold(t *testing.T) {
	caller := &fakeModelCaller{byModel: map[string]fakeModelBehavior{
		"fast1": {success: true, answer: "a", delay: 5 * time.Millisecond},
		"fast2": {success: true, answer: "b", delay: 10 * time.Millisecond},
		"slow":  {success: true, answer: "c", delay: 200 * time.Millisecond},
	}}
	o := New(caller, &fakeJudge{answer: "early merged"}, &fakeDebate{}, prompts.NewLoader(), baseOptions())

	result, err := o.Orchestrate(context.Background(), "hello", domain.ModeGeneral, []string{"fast1", "fast2", "slow"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if result.MergedAnswer != "early merged" {
		t.Errorf("MergedAnswer = %q, want early merged", result.MergedAnswer)
	}
	if len(result.PerModelResults) != 3 {
		t.Fatalf("PerModelResults = %d, want 3 (fan-out awaits all)", len(result.PerModelResults))
	}
}

func TestOrchestrate_SingleSuccessBelowThreshold_LateJudgeRuns(t *testing.T) {
	caller := &fakeModelCaller{byModel: map[string]fakeModelBehavior{
		"m1": {success: true, answer: "a"},
	}}
	o := New(caller, &fakeJudge{answer: "late merged"}, &fakeDebate{}, prompts.NewLoader(), baseOptions())

	result, err := o.Orchestrate(context.Background(), "hello", domain.ModeGeneral, []string{"m1"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if result.MergedAnswer != "late merged" {
		t.Errorf("MergedAnswer = %q, want late merged", result.MergedAnswer)
	}
}

func TestOrchestrate_JudgeFailureFallsBackToFirstAnswer(t *testing.T) {
	caller := &fakeModelCaller{byModel: map[string]fakeModelBehavior{
		"m1": {success: true, answer: "first answer"},
	}}
	o := New(caller, &fakeJudge{err: errors.New("judge exploded")}, &fakeDebate{}, prompts.NewLoader(), baseOptions())

	result, err := o.Orchestrate(context.Background(), "hello", domain.ModeGeneral, []string{"m1"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if result.MergedAnswer != "first answer" {
		t.Errorf("MergedAnswer = %q, want fallback to first answer", result.MergedAnswer)
	}
}

func TestOrchestrate_DebateSupersedesEarlyJudge(t *testing.T) {
	caller := &fakeModelCaller{byModel: map[string]fakeModelBehavior{
		"m1": {success: true, answer: "a", delay: 5 * time.Millisecond},
		"m2": {success: true, answer: "b", delay: 5 * time.Millisecond},
	}}
	opts := baseOptions()
	opts.EnableDebate = true

	debated := []domain.ModelCallResult{
		{ModelID: "m1", Answer: "a-debated", Success: true},
		{ModelID: "m2", Answer: "b-debated", Success: true},
	}
	o := New(caller, &fakeJudge{answer: "debated merged"}, &fakeDebate{out: &debate.Output{
		DebateRounds: []domain.DebateRound{{RoundIndex: 1, JudgeFeedback: "be better"}},
		FinalAnswers: debated,
	}}, prompts.NewLoader(), opts)

	result, err := o.Orchestrate(context.Background(), "hello", domain.ModeGeneral, []string{"m1", "m2"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if result.MergedAnswer != "debated merged" {
		t.Errorf("MergedAnswer = %q, want debated merged (early judge superseded)", result.MergedAnswer)
	}
	if len(result.DebateRounds) != 1 {
		t.Errorf("DebateRounds = %d, want 1", len(result.DebateRounds))
	}
}

func TestOrchestrate_QueryModeNormalized(t *testing.T) {
	caller := &fakeModelCaller{byModel: map[string]fakeModelBehavior{
		"m1": {success: true, answer: "a"},
	}}
	o := New(caller, &fakeJudge{answer: "merged"}, &fakeDebate{}, prompts.NewLoader(), baseOptions())

	_, err := o.Orchestrate(context.Background(), "hello", domain.Mode("query"), []string{"m1"}, "")
	if err != nil {
		t.Fatalf("unexpected error for normalized query mode: %v", err)
	}
}

func TestOrchestrate_JudgeModelOverrideWins(t *testing.T) {
	caller := &fakeModelCaller{byModel: map[string]fakeModelBehavior{
		"m1": {success: true, answer: "a"},
	}}
	var capturedOverride string
	judgeSpy := &captureJudge{onCall: func(override string) { capturedOverride = override }}
	o := New(caller, judgeSpy, &fakeDebate{}, prompts.NewLoader(), baseOptions())

	_, err := o.Orchestrate(context.Background(), "hello", domain.ModeGeneral, []string{"m1"}, "anthropic/opus")
	if err != nil {
		t.Fatal(err)
	}
	if capturedOverride != "anthropic/opus" {
		t.Errorf("capturedOverride = %q, want anthropic/opus", capturedOverride)
	}
}

type captureJudge struct {
	onCall func(override string)
}

func (c *captureJudge) JudgeAndMerge(ctx context.Context, userPrompt string, successfulAnswers []domain.ModelCallResult, debateRounds []domain.DebateRound, judgeModelOverride string, researchMode bool, researchSummary string) (*judge.Result, error) {
	c.onCall(judgeModelOverride)
	return &judge.Result{MergedAnswer: "ok"}, nil
}

func TestOrchestrate_JudgeModelOverrideWinsOnEarlyJudge(t *testing.T) {
	caller := &fakeModelCaller{byModel: map[string]fakeModelBehavior{
		"fast1": {success: true, answer: "a", delay: 5 * time.Millisecond},
		"fast2": {success: true, answer: "b", delay: 10 * time.Millisecond},
		"slow":  {success: true, answer: "c", delay: 200 * time.Millisecond},
	}}
	var capturedOverride string
	judgeSpy := &captureJudge{onCall: func(override string) { capturedOverride = override }}
	o := New(caller, judgeSpy, &fakeDebate{}, prompts.NewLoader(), baseOptions())

	_, err := o.Orchestrate(context.Background(), "hello", domain.ModeGeneral, []string{"fast1", "fast2", "slow"}, "anthropic/opus")
	if err != nil {
		t.Fatal(err)
	}
	if capturedOverride != "anthropic/opus" {
		t.Errorf("capturedOverride = %q, want anthropic/opus (early-judge branch must thread the override)", capturedOverride)
	}
}
