// Package judge implements the Judge Synthesizer: it takes several
// anonymized candidate answers and asks a distinct judge model to merge
// them into one.
package judge

import (
	"context"
	"fmt"
	"time"

	"github.com/hochfrequenz/llm-merge-orchestrator/internal/domain"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/modelclient"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/prompts"
)

// judgeTemperature is fixed low so the judge favors faithful synthesis over
// creative rewriting.
const judgeTemperature = 0.3

// caller is the subset of modelclient.Client the synthesizer depends on,
// narrowed so tests can substitute a fake.
type caller interface {
	CallModel(ctx context.Context, modelID string, messages []domain.Message, timeout time.Duration, opts modelclient.CallOptions) (*modelclient.CallResult, error)
}

// metricsObserver is the subset of metrics.Registry the synthesizer depends
// on.
type metricsObserver interface {
	ObserveJudgeCall(latency time.Duration)
}

type noopMetricsObserver struct{}

func (noopMetricsObserver) ObserveJudgeCall(time.Duration) {}

// Synthesizer builds anonymized synthesis prompts and calls the judge model.
type Synthesizer struct {
	Client              caller
	Loader              *prompts.Loader
	DefaultJudgeModel   string
	Timeout             time.Duration
	MaxTokens           int
	MaxAnswerLength     int
	Metrics             metricsObserver
}

// New creates a Synthesizer with the given collaborators and defaults.
func New(client caller, loader *prompts.Loader, defaultJudgeModel string, timeout time.Duration) *Synthesizer {
	return &Synthesizer{
		Client:            client,
		Loader:            loader,
		DefaultJudgeModel: defaultJudgeModel,
		Timeout:           timeout,
		MaxTokens:         4096,
		MaxAnswerLength:   defaultMaxAnswerLength,
		Metrics:           noopMetricsObserver{},
	}
}

func (s *Synthesizer) metrics() metricsObserver {
	if s.Metrics == nil {
		return noopMetricsObserver{}
	}
	return s.Metrics
}

// Result is the outcome of a synthesis call.
type Result struct {
	MergedAnswer string
	LatencyMs    int64
}

// JudgeAndMerge synthesizes one merged answer from successfulAnswers. It
// fails only with the underlying model-call error; callers handle fallback.
func (s *Synthesizer) JudgeAndMerge(ctx context.Context, userPrompt string, successfulAnswers []domain.ModelCallResult, debateRounds []domain.DebateRound, judgeModelOverride string, researchMode bool, researchSummary string) (*Result, error) {
	if len(successfulAnswers) == 0 {
		return nil, fmt.Errorf("judge: successfulAnswers must be non-empty")
	}

	maxAnswerLength := s.MaxAnswerLength
	if maxAnswerLength == 0 {
		maxAnswerLength = defaultMaxAnswerLength
	}

	anonymized := anonymizeCallResults(successfulAnswers, maxAnswerLength)

	systemPrompt, err := buildSystemPrompt(s.Loader, researchMode)
	if err != nil {
		return nil, fmt.Errorf("judge: build system prompt: %w", err)
	}

	userMessage, err := buildUserPrompt(s.Loader, userPrompt, anonymized, debateRounds, researchSummary)
	if err != nil {
		return nil, fmt.Errorf("judge: build user prompt: %w", err)
	}

	modelID := judgeModelOverride
	if modelID == "" {
		modelID = s.DefaultJudgeModel
	}

	temp := judgeTemperature
	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: systemPrompt},
		{Role: domain.RoleUser, Content: userMessage},
	}

	start := time.Now()
	result, err := s.Client.CallModel(ctx, modelID, messages, s.Timeout, modelclient.CallOptions{
		Temperature: &temp,
		MaxTokens:   s.MaxTokens,
	})
	latency := time.Since(start)
	s.metrics().ObserveJudgeCall(latency)
	if err != nil {
		return nil, err
	}

	return &Result{
		MergedAnswer: result.Answer,
		LatencyMs:    latency.Milliseconds(),
	}, nil
}
