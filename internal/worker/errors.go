package worker

import "strings"

// Error codes surfaced on a failed job, classified by substring match on
// the underlying pipeline error.
const (
	CodeResearchTimeout   = "RESEARCH_TIMEOUT"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeResearchFailed    = "RESEARCH_FAILED"
)

// ClassifyError maps a pipeline error to a job error code by substring
// match on its message.
func ClassifyError(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return CodeResearchTimeout
	case strings.Contains(msg, "rate limit"):
		return CodeRateLimitExceeded
	case strings.Contains(msg, "invalid"):
		return CodeInvalidInput
	default:
		return CodeResearchFailed
	}
}
