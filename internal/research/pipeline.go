// Package research implements the Research Pipeline: web search followed
// by researched model answers, debate, judge synthesis, and citation
// aggregation.
package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/llm-merge-orchestrator/internal/debate"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/domain"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/judge"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/modelclient"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/orchestrator"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/prompts"
)

// researchTemperature is fixed low so researched answers favor citing over
// improvising.
const researchTemperature = 0.3

// researchMaxTokens allows for a longer, source-grounded answer than a
// plain query-phase call.
const researchMaxTokens = 3000

// searcher is the subset of SearchClient the pipeline depends on.
type searcher interface {
	Configured() bool
	Search(ctx context.Context, query string, maxResults int, timeout time.Duration) ([]domain.ResearchResult, error)
}

// modelCaller is the subset of modelclient.Client the pipeline depends on.
type modelCaller interface {
	Call(ctx context.Context, modelID string, messages []domain.Message, timeout time.Duration, opts modelclient.CallOptions, maxRetries int) domain.ModelCallResult
}

// debateEngine is the subset of debate.Engine the pipeline depends on.
type debateEngine interface {
	Run(ctx context.Context, userPrompt string, initial []domain.ModelCallResult) *debate.Output
}

// judgeSynthesizer is the subset of judge.Synthesizer the pipeline depends
// on.
type judgeSynthesizer interface {
	JudgeAndMerge(ctx context.Context, userPrompt string, successfulAnswers []domain.ModelCallResult, debateRounds []domain.DebateRound, judgeModelOverride string, researchMode bool, researchSummary string) (*judge.Result, error)
}

// Options configures one pipeline run.
type Options struct {
	MaxSearchResults int
	SearchTimeout    time.Duration
	ResearchTimeout  time.Duration
	MaxRetries       int
}

// Pipeline runs the deep-research flow.
type Pipeline struct {
	Search  searcher
	Client  modelCaller
	Debate  debateEngine
	Judge   judgeSynthesizer
	Loader  *prompts.Loader
	Options Options
}

// New creates a Pipeline from its collaborators.
func New(search searcher, client modelCaller, debateEng debateEngine, judgeSynth judgeSynthesizer, loader *prompts.Loader, opts Options) *Pipeline {
	return &Pipeline{Search: search, Client: client, Debate: debateEng, Judge: judgeSynth, Loader: loader, Options: opts}
}

// Output is the outcome of a successful pipeline run.
type Output struct {
	FinalAnswer      string
	Citations        []string
	ResearchContext  domain.ResearchContext
	DebateRoundCount int
	PerModelAnswers  []domain.ModelCallResult
}

// ProgressFn, when non-nil, is invoked as the pipeline crosses each of its
// major stage boundaries: search complete, researched answers complete,
// debate complete, judge complete.
type ProgressFn func(stage string)

// Run executes the five pipeline stages for one query against modelIDs.
func (p *Pipeline) Run(ctx context.Context, query string, modelIDs []string, judgeModelOverride string, onProgress ProgressFn) (*Output, error) {
	notify := onProgress
	if notify == nil {
		notify = func(string) {}
	}

	researchCtx := p.search(ctx, query)
	notify("search")

	answers := p.researchedAnswers(ctx, query, modelIDs, researchCtx)
	notify("researched_answers")

	nonEmpty := filterNonEmpty(answers)
	if len(nonEmpty) == 0 {
		return nil, &orchestrator.NoSuccessfulAnswersError{Stage: "researched_answers"}
	}

	debateOut := p.Debate.Run(ctx, query, nonEmpty)
	notify("debate")

	mergedResult, judgeErr := p.Judge.JudgeAndMerge(ctx, query, debateOut.FinalAnswers, debateOut.DebateRounds, judgeModelOverride, true, researchCtx.Summary)
	notify("judge")

	finalAnswer := ""
	if judgeErr == nil && mergedResult != nil {
		finalAnswer = mergedResult.MergedAnswer
	} else if len(debateOut.FinalAnswers) > 0 {
		finalAnswer = debateOut.FinalAnswers[0].Answer
	}

	citations := AggregateCitations(finalAnswer, debateOut.FinalAnswers, researchCtx.Results)
	researchCtx.Citations = citations

	return &Output{
		FinalAnswer:      finalAnswer,
		Citations:        citations,
		ResearchContext:  researchCtx,
		DebateRoundCount: len(debateOut.DebateRounds),
		PerModelAnswers:  debateOut.FinalAnswers,
	}, nil
}

func (p *Pipeline) search(ctx context.Context, query string) domain.ResearchContext {
	if !p.Search.Configured() {
		return domain.ResearchContext{
			Query:   query,
			Summary: "No search provider configured; answering from training knowledge only.",
		}
	}

	maxResults := p.Options.MaxSearchResults
	if maxResults <= 0 {
		maxResults = 8
	}

	results, err := p.Search.Search(ctx, query, maxResults, p.Options.SearchTimeout)
	if err != nil || len(results) == 0 {
		summary := "Web search returned no usable results; answering from training knowledge only."
		if err != nil {
			summary = fmt.Sprintf("Web search failed (%v); answering from training knowledge only.", err)
		}
		return domain.ResearchContext{Query: query, Summary: summary}
	}

	return domain.ResearchContext{
		Query:   query,
		Results: results,
		Summary: summarize(results),
	}
}

func summarize(results []domain.ResearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d sources.", len(results))
	return b.String()
}

func buildResearchBlock(results []domain.ResearchResult) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Source %d] %s\n%s\n%s", i+1, r.Title, r.URL, r.Snippet)
	}
	return b.String()
}

func (p *Pipeline) researchedAnswers(ctx context.Context, query string, modelIDs []string, researchCtx domain.ResearchContext) []domain.ModelCallResult {
	var systemPromptPath string
	var data interface{}
	if len(researchCtx.Results) == 0 {
		systemPromptPath = "research/no_sources.md"
	} else {
		systemPromptPath = "research/system.md"
		data = struct{ ResearchBlock string }{ResearchBlock: buildResearchBlock(researchCtx.Results)}
	}

	systemPrompt, err := p.Loader.Render(systemPromptPath, data)
	if err != nil {
		systemPrompt = "Answer the question as accurately as possible."
	}

	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: systemPrompt},
		{Role: domain.RoleUser, Content: query},
	}

	temp := researchTemperature
	results := make([]domain.ModelCallResult, len(modelIDs))
	var g errgroup.Group
	for i, modelID := range modelIDs {
		i, modelID := i, modelID
		g.Go(func() error {
			results[i] = p.Client.Call(ctx, modelID, messages, p.Options.ResearchTimeout, modelclient.CallOptions{
				Temperature: &temp,
				MaxTokens:   researchMaxTokens,
			}, p.Options.MaxRetries)
			return nil
		})
	}
	g.Wait()

	return results
}

func filterNonEmpty(results []domain.ModelCallResult) []domain.ModelCallResult {
	var out []domain.ModelCallResult
	for _, r := range results {
		if r.Success && r.Answer != "" {
			out = append(out, r)
		}
	}
	return out
}
