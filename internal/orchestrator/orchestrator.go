// Package orchestrator implements the Merge Orchestrator: the central
// fan-out/fan-in algorithm that turns one user prompt into a merged answer
// synthesized from several independent models, with an early-commit
// latency hedge and an optional debate phase.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hochfrequenz/llm-merge-orchestrator/internal/debate"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/domain"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/judge"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/modelclient"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/prompts"
)

// modelCaller is the subset of modelclient.Client the orchestrator depends
// on for query-phase calls.
type modelCaller interface {
	Call(ctx context.Context, modelID string, messages []domain.Message, timeout time.Duration, opts modelclient.CallOptions, maxRetries int) domain.ModelCallResult
}

// judgeSynthesizer is the subset of judge.Synthesizer the orchestrator
// depends on.
type judgeSynthesizer interface {
	JudgeAndMerge(ctx context.Context, userPrompt string, successfulAnswers []domain.ModelCallResult, debateRounds []domain.DebateRound, judgeModelOverride string, researchMode bool, researchSummary string) (*judge.Result, error)
}

// debateEngine is the subset of debate.Engine the orchestrator depends on.
type debateEngine interface {
	Run(ctx context.Context, userPrompt string, initial []domain.ModelCallResult) *debate.Output
}

// Options configures one orchestration run. Zero values fall back to safe
// defaults where noted.
type Options struct {
	PerModelTimeout   time.Duration
	MaxRetries        int
	MinModelsForJudge int
	EnableEarlyJudge  bool
	EnableDebate      bool
	MaxPromptLength   int
	DefaultJudgeModel string
}

// Orchestrator runs the fan-out/fan-in merge algorithm.
type Orchestrator struct {
	Client  modelCaller
	Judge   judgeSynthesizer
	Debate  debateEngine
	Loader  *prompts.Loader
	Options Options
}

// New creates an Orchestrator from its collaborators.
func New(client modelCaller, judgeSynth judgeSynthesizer, debateEng debateEngine, loader *prompts.Loader, opts Options) *Orchestrator {
	return &Orchestrator{Client: client, Judge: judgeSynth, Debate: debateEng, Loader: loader, Options: opts}
}

// Result is the outcome of a successful orchestration.
type Result struct {
	MergedAnswer    string
	PerModelResults []domain.ModelCallResult
	DebateRounds    []domain.DebateRound
	TotalLatencyMs  int64
	RequestID       string
}

func modeSystemPromptPath(mode domain.Mode) string {
	switch domain.NormalizeMode(mode) {
	case domain.ModeCoding:
		return "system/coding.md"
	case domain.ModeSystemDesign:
		return "system/system-design.md"
	case domain.ModeCreative:
		return "system/creative.md"
	default:
		return "system/general.md"
	}
}

// Orchestrate runs the full merge pipeline for one user prompt.
func (o *Orchestrator) Orchestrate(ctx context.Context, prompt string, mode domain.Mode, modelIDs []string, judgeModelOverride string) (*Result, error) {
	start := time.Now()
	requestID := uuid.NewString()

	if err := o.validate(prompt, modelIDs); err != nil {
		return nil, err
	}

	systemPrompt, err := o.Loader.Render(modeSystemPromptPath(mode), nil)
	if err != nil {
		return nil, fmt.Errorf("orchestrator[%s]: build system prompt: %w", requestID, err)
	}
	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: systemPrompt},
		{Role: domain.RoleUser, Content: prompt},
	}

	finalJudgeModel := judgeModelOverride
	if finalJudgeModel == "" {
		finalJudgeModel = o.Options.DefaultJudgeModel
	}

	perModelResults, earlyJudge := o.fanOut(ctx, prompt, modelIDs, messages, finalJudgeModel)

	successes := filterSuccesses(perModelResults)
	if len(successes) == 0 {
		if earlyJudge != nil {
			earlyJudge.cancel()
		}
		return nil, &AllModelsFailedError{PerModelResults: perModelResults}
	}

	var debateRounds []domain.DebateRound
	finalAnswersForJudge := successes

	if o.Options.EnableDebate && len(successes) >= 2 {
		if earlyJudge != nil {
			earlyJudge.cancel()
		}
		out := o.Debate.Run(ctx, prompt, successes)
		debateRounds = out.DebateRounds
		finalAnswersForJudge = out.FinalAnswers

		mergedAnswer, err := o.Judge.JudgeAndMerge(ctx, prompt, finalAnswersForJudge, debateRounds, finalJudgeModel, false, "")
		return o.assemble(requestID, mergedAnswer, err, perModelResults, debateRounds, finalAnswersForJudge, start)
	}

	if earlyJudge != nil {
		mergedAnswer, err := earlyJudge.await()
		return o.assemble(requestID, mergedAnswer, err, perModelResults, debateRounds, finalAnswersForJudge, start)
	}

	mergedAnswer, err := o.Judge.JudgeAndMerge(ctx, prompt, successes, nil, finalJudgeModel, false, "")
	return o.assemble(requestID, mergedAnswer, err, perModelResults, debateRounds, finalAnswersForJudge, start)
}

func (o *Orchestrator) validate(prompt string, modelIDs []string) error {
	if prompt == "" {
		return &BadInputError{Reason: "prompt must not be empty"}
	}
	maxLen := o.Options.MaxPromptLength
	if maxLen > 0 && len([]rune(prompt)) > maxLen {
		return &BadInputError{Reason: fmt.Sprintf("prompt exceeds max length of %d", maxLen)}
	}
	if len(modelIDs) == 0 {
		return &BadInputError{Reason: "modelIds must not be empty"}
	}
	return nil
}

// earlyJudgeHandle tracks an in-flight early-judge call so it can be
// superseded (cancelled) if debate starts, or awaited if it becomes the
// active judge result.
type earlyJudgeHandle struct {
	cancel context.CancelFunc
	result chan judgeCallOutcome
}

type judgeCallOutcome struct {
	result *judge.Result
	err    error
}

func (h *earlyJudgeHandle) await() (*judge.Result, error) {
	outcome := <-h.result
	return outcome.result, outcome.err
}

// fanOut launches all model calls simultaneously and, once the early-commit
// threshold is reached, launches the early judge call over a snapshot of
// the successes so far. It waits for every model call to finish before
// returning: in-flight calls are never abandoned.
func (o *Orchestrator) fanOut(ctx context.Context, prompt string, modelIDs []string, messages []domain.Message, judgeModel string) ([]domain.ModelCallResult, *earlyJudgeHandle) {
	type completion struct {
		index  int
		result domain.ModelCallResult
	}

	completions := make(chan completion, len(modelIDs))
	for i, modelID := range modelIDs {
		go func(i int, modelID string) {
			result := o.Client.Call(ctx, modelID, messages, o.Options.PerModelTimeout, modelclient.CallOptions{}, o.Options.MaxRetries)
			completions <- completion{index: i, result: result}
		}(i, modelID)
	}

	perModelResults := make([]domain.ModelCallResult, len(modelIDs))

	var successes []domain.ModelCallResult
	var earlyJudge *earlyJudgeHandle

	threshold := o.Options.MinModelsForJudge
	if threshold <= 0 {
		threshold = 1
	}

	for received := 0; received < len(modelIDs); received++ {
		c := <-completions
		perModelResults[c.index] = c.result

		if c.result.Success {
			successes = append(successes, c.result)

			if o.Options.EnableEarlyJudge && earlyJudge == nil && len(successes) == threshold {
				earlyJudge = o.launchEarlyJudge(ctx, prompt, snapshot(successes), judgeModel)
			}
		}
	}

	return perModelResults, earlyJudge
}

func (o *Orchestrator) launchEarlyJudge(ctx context.Context, prompt string, successes []domain.ModelCallResult, judgeModel string) *earlyJudgeHandle {
	judgeCtx, cancel := context.WithCancel(ctx)
	handle := &earlyJudgeHandle{cancel: cancel, result: make(chan judgeCallOutcome, 1)}

	go func() {
		result, err := o.Judge.JudgeAndMerge(judgeCtx, prompt, successes, nil, judgeModel, false, "")
		handle.result <- judgeCallOutcome{result: result, err: err}
	}()

	return handle
}

func (o *Orchestrator) assemble(requestID string, mergedResult *judge.Result, judgeErr error, perModelResults []domain.ModelCallResult, debateRounds []domain.DebateRound, finalAnswersForJudge []domain.ModelCallResult, start time.Time) (*Result, error) {
	mergedAnswer := ""
	if judgeErr == nil && mergedResult != nil {
		mergedAnswer = mergedResult.MergedAnswer
	} else if len(finalAnswersForJudge) > 0 {
		mergedAnswer = finalAnswersForJudge[0].Answer
	}

	return &Result{
		MergedAnswer:    mergedAnswer,
		PerModelResults: perModelResults,
		DebateRounds:    debateRounds,
		TotalLatencyMs:  time.Since(start).Milliseconds(),
		RequestID:       requestID,
	}, nil
}

func filterSuccesses(results []domain.ModelCallResult) []domain.ModelCallResult {
	var out []domain.ModelCallResult
	for _, r := range results {
		if r.Success {
			out = append(out, r)
		}
	}
	return out
}

func snapshot(in []domain.ModelCallResult) []domain.ModelCallResult {
	out := make([]domain.ModelCallResult, len(in))
	copy(out, in)
	return out
}
