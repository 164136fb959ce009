// Package debate implements the Debate Engine: an iterative
// judge-feedback-then-parallel-refinement state machine, tolerant of
// per-model failure at every step.
package debate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hochfrequenz/llm-merge-orchestrator/internal/domain"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/judge"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/modelclient"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/prompts"
)

// feedbackAnswerTruncateLen bounds each answer shown to the judge when
// requesting round feedback.
const feedbackAnswerTruncateLen = 500

// othersAnswerTruncateLen bounds each peer answer shown to a model during
// refinement.
const othersAnswerTruncateLen = 300

// ownAnswerTruncateLen bounds a model's own previous answer shown back to
// it during refinement.
const ownAnswerTruncateLen = 500

// fallbackFeedback substitutes for judge feedback when the feedback call
// fails; the round proceeds regardless.
const fallbackFeedback = "Continue refining your answer for accuracy and clarity."

// caller is the subset of modelclient.Client the engine depends on.
type caller interface {
	CallModel(ctx context.Context, modelID string, messages []domain.Message, timeout time.Duration, opts modelclient.CallOptions) (*modelclient.CallResult, error)
}

// metricsObserver is the subset of metrics.Registry the engine depends on.
type metricsObserver interface {
	ObserveDebateRounds(n int)
}

type noopMetricsObserver struct{}

func (noopMetricsObserver) ObserveDebateRounds(int) {}

// Engine runs the debate state machine.
type Engine struct {
	Client          caller
	Loader          *prompts.Loader
	JudgeModel      string
	FeedbackTimeout time.Duration
	RefineTimeout   time.Duration
	MaxRounds       int
	Metrics         metricsObserver
}

// New creates an Engine with the given collaborators.
func New(client caller, loader *prompts.Loader, judgeModel string, feedbackTimeout, refineTimeout time.Duration, maxRounds int) *Engine {
	return &Engine{
		Client:          client,
		Loader:          loader,
		JudgeModel:      judgeModel,
		FeedbackTimeout: feedbackTimeout,
		RefineTimeout:   refineTimeout,
		MaxRounds:       maxRounds,
		Metrics:         noopMetricsObserver{},
	}
}

func (e *Engine) metrics() metricsObserver {
	if e.Metrics == nil {
		return noopMetricsObserver{}
	}
	return e.Metrics
}

// Output is the result of running the full debate.
type Output struct {
	DebateRounds   []domain.DebateRound
	FinalAnswers   []domain.ModelCallResult
	TotalLatencyMs int64
}

// Run executes exactly MaxRounds rounds against the initial successful
// answers. MaxRounds <= 0 is a no-op: the initial answers pass through
// unchanged.
func (e *Engine) Run(ctx context.Context, userPrompt string, initial []domain.ModelCallResult) *Output {
	if e.MaxRounds <= 0 {
		return &Output{FinalAnswers: initial}
	}

	start := time.Now()
	current := make([]domain.ModelCallResult, len(initial))
	copy(current, initial)

	rounds := make([]domain.DebateRound, 0, e.MaxRounds)
	for r := 1; r <= e.MaxRounds; r++ {
		feedback := e.getFeedback(ctx, userPrompt, current)
		current = e.refineRound(ctx, r, userPrompt, feedback, current)

		perModelAnswers := make([]domain.PerModelAnswer, len(current))
		for i, c := range current {
			perModelAnswers[i] = domain.PerModelAnswer{ModelID: c.ModelID, Answer: c.Answer, LatencyMs: c.LatencyMs}
		}
		rounds = append(rounds, domain.DebateRound{
			RoundIndex:      r,
			JudgeFeedback:   feedback,
			PerModelAnswers: perModelAnswers,
		})
	}

	e.metrics().ObserveDebateRounds(len(rounds))

	return &Output{
		DebateRounds:   rounds,
		FinalAnswers:   current,
		TotalLatencyMs: time.Since(start).Milliseconds(),
	}
}

func (e *Engine) getFeedback(ctx context.Context, userPrompt string, current []domain.ModelCallResult) string {
	answers := make([]domain.AnonymizedAnswer, len(current))
	for i, c := range current {
		answers[i] = domain.AnonymizedAnswer{Label: domain.Label(i), Content: truncate(c.Answer, feedbackAnswerTruncateLen)}
	}

	prompt, err := e.Loader.Render("debate/feedback.md", struct {
		UserPrompt   string
		AnswersBlock string
	}{
		UserPrompt:   userPrompt,
		AnswersBlock: buildAnswersBlock(answers),
	})
	if err != nil {
		return fallbackFeedback
	}

	result, err := e.Client.CallModel(ctx, e.JudgeModel, []domain.Message{
		{Role: domain.RoleUser, Content: prompt},
	}, e.FeedbackTimeout, modelclient.CallOptions{MaxTokens: 200})
	if err != nil || result.Answer == "" {
		return fallbackFeedback
	}
	return result.Answer
}

func (e *Engine) refineRound(ctx context.Context, roundIndex int, userPrompt, feedback string, current []domain.ModelCallResult) []domain.ModelCallResult {
	next := make([]domain.ModelCallResult, len(current))
	var wg sync.WaitGroup

	for i := range current {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next[i] = e.refineOne(ctx, roundIndex, userPrompt, feedback, current, i)
		}(i)
	}
	wg.Wait()

	return next
}

func (e *Engine) refineOne(ctx context.Context, roundIndex int, userPrompt, feedback string, current []domain.ModelCallResult, index int) domain.ModelCallResult {
	self := current[index]

	systemPrompt, err := e.Loader.Render("debate/refine_system.md", struct {
		RoundIndex int
		Feedback   string
	}{RoundIndex: roundIndex, Feedback: feedback})
	if err != nil {
		return self
	}

	userMessage, err := e.Loader.Render("debate/refine_user.md", struct {
		UserPrompt        string
		Feedback          string
		OthersBlock       string
		OwnPreviousAnswer string
	}{
		UserPrompt:        userPrompt,
		Feedback:          feedback,
		OthersBlock:       buildOthersBlock(current, index),
		OwnPreviousAnswer: truncate(self.Answer, ownAnswerTruncateLen),
	})
	if err != nil {
		return self
	}

	result, err := e.Client.CallModel(ctx, self.ModelID, []domain.Message{
		{Role: domain.RoleSystem, Content: systemPrompt},
		{Role: domain.RoleUser, Content: userMessage},
	}, e.RefineTimeout, modelclient.CallOptions{})
	if err != nil {
		return self
	}

	return domain.ModelCallResult{
		ModelID:   self.ModelID,
		Answer:    result.Answer,
		LatencyMs: result.LatencyMs,
		Success:   true,
	}
}

func buildOthersBlock(current []domain.ModelCallResult, exclude int) string {
	var b strings.Builder
	label := 0
	for i, c := range current {
		if i == exclude {
			continue
		}
		if label > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s: %s", domain.ExpertLabel(label), truncate(c.Answer, othersAnswerTruncateLen))
		label++
	}
	return b.String()
}

func buildAnswersBlock(answers []domain.AnonymizedAnswer) string {
	var b strings.Builder
	for i, a := range answers {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s: %s", a.Label, a.Content)
	}
	return b.String()
}

func truncate(s string, limit int) string {
	return judge.Truncate(s, limit)
}
