// Package domain holds the value types shared by every stage of the merge
// pipeline: model descriptors, conversation messages, per-model results,
// debate rounds, research context, and jobs.
package domain

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a conversation sent to a model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ModelDescriptor identifies an upstream model. ID is opaque to the core;
// DisplayName and Provider exist for presentation only.
type ModelDescriptor struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Provider    string `json:"provider,omitempty"`
}

// ModelCallResult is the outcome of one call to a Remote Model Client.
//
// Invariant: Success implies Answer != "", and !Success implies Answer == "".
type ModelCallResult struct {
	ModelID   string `json:"modelId"`
	Answer    string `json:"answer,omitempty"`
	LatencyMs int64  `json:"latencyMs"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// AnonymizedAnswer is a model answer with its identity replaced by a
// position label ("Answer A", "Answer B", ...) before it reaches a judge.
type AnonymizedAnswer struct {
	Label   string `json:"label"`
	Content string `json:"content"`
}

// Label returns the position label for a zero-based index: 0 -> "Answer A",
// 1 -> "Answer B", and so on, wrapping into two-letter labels past Z.
func Label(index int) string {
	return "Answer " + alphaSuffix(index)
}

// ExpertLabel is the model-facing counterpart of Label used inside debate
// refinement prompts (spec calls out that both labelings anonymize, and
// only the wording differs).
func ExpertLabel(index int) string {
	return "Expert " + alphaSuffix(index)
}

func alphaSuffix(index int) string {
	if index < 26 {
		return string(rune('A' + index))
	}
	return alphaSuffix(index/26-1) + string(rune('A'+index%26))
}

// PerModelAnswer is a compact (modelId, answer, latency) triple recorded in
// a DebateRound, distinct from ModelCallResult in that it carries no
// success/error fields: debate rounds only ever record the answer that
// survived the round (previous answer on failure).
type PerModelAnswer struct {
	ModelID   string `json:"modelId"`
	Answer    string `json:"answer"`
	LatencyMs int64  `json:"latencyMs"`
}

// DebateRound is one iteration of judge-feedback-then-parallel-refinement.
type DebateRound struct {
	RoundIndex       int              `json:"roundIndex"`
	JudgeFeedback    string           `json:"judgeFeedback"`
	PerModelAnswers  []PerModelAnswer `json:"perModelAnswers"`
}
