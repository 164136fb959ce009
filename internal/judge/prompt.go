package judge

import (
	"fmt"
	"strings"

	"github.com/hochfrequenz/llm-merge-orchestrator/internal/domain"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/prompts"
)

// defaultMaxAnswerLength is overridden by config in production; this is
// the fallback used when a Synthesizer is built without an explicit cap.
const defaultMaxAnswerLength = 4000

func systemPromptPath(researchMode bool) string {
	if researchMode {
		return "judge/system_research.md"
	}
	return "judge/system.md"
}

// buildAnswersBlock renders each anonymized answer as "Answer X: <content>",
// separated by a blank line, in label order.
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

// buildEvolutionContext renders the debate rounds' judge feedback so the
// judge understands how the final answers were arrived at.
func buildEvolutionContext(rounds []domain.DebateRound) string {
	if len(rounds) == 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range rounds {
		fmt.Fprintf(&b, "Round %d feedback: %s\n", r.RoundIndex, r.JudgeFeedback)
	}
	return strings.TrimRight(b.String(), "\n")
}

func anonymizeCallResults(answers []domain.ModelCallResult, maxAnswerLength int) []domain.AnonymizedAnswer {
	out := make([]domain.AnonymizedAnswer, len(answers))
	for i, a := range answers {
		out[i] = domain.AnonymizedAnswer{
			Label:   domain.Label(i),
			Content: Truncate(a.Answer, maxAnswerLength),
		}
	}
	return out
}

type userPromptData struct {
	EvolutionContext string
	ResearchSummary  string
	UserPrompt       string
	AnswersBlock     string
}

func buildUserPrompt(loader *prompts.Loader, userPrompt string, answers []domain.AnonymizedAnswer, rounds []domain.DebateRound, researchSummary string) (string, error) {
	return loader.Render("judge/user.md", userPromptData{
		EvolutionContext: buildEvolutionContext(rounds),
		ResearchSummary:  researchSummary,
		UserPrompt:       userPrompt,
		AnswersBlock:     buildAnswersBlock(answers),
	})
}

func buildSystemPrompt(loader *prompts.Loader, researchMode bool) (string, error) {
	return loader.Render(systemPromptPath(researchMode), nil)
}
