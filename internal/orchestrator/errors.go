package orchestrator

import (
	"fmt"

	"github.com/hochfrequenz/llm-merge-orchestrator/internal/domain"
)

// BadInputError signals a request that failed validation before any remote
// call was made.
type BadInputError struct {
	Reason string
}

func (e *BadInputError) Error() string {
	return fmt.Sprintf("orchestrator: bad input: %s", e.Reason)
}

// AllModelsFailedError signals that no query model produced a successful
// answer; it carries every per-model result so the caller can report them.
type AllModelsFailedError struct {
	PerModelResults []domain.ModelCallResult
}

func (e *AllModelsFailedError) Error() string {
	return fmt.Sprintf("orchestrator: all %d models failed", len(e.PerModelResults))
}

// NoSuccessfulAnswersError signals that a fan-out step (e.g. researched
// answers) produced zero usable results.
type NoSuccessfulAnswersError struct {
	Stage string
}

func (e *NoSuccessfulAnswersError) Error() string {
	return fmt.Sprintf("orchestrator: no successful answers at stage %q", e.Stage)
}
