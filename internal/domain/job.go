package domain

import "time"

// JobStatus is the lifecycle state of a deep-research Job.
//
// The only permitted transitions are queued -> running -> {completed, failed}.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// JobOptions carries the caller-supplied parameters for a deep-research run.
type JobOptions struct {
	ModelIDs          []string `json:"modelIds,omitempty"`
	JudgeModelOverride string  `json:"judgeModelOverride,omitempty"`
	MaxResults        int      `json:"maxResults,omitempty"`
}

// JobErrorInfo is the classified error surfaced by a failed job.
type JobErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JobResultSection is one labeled block of a wrapped research result.
type JobResultSection struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Type    string `json:"type"` // summary, citations, sources
}

// JobResultMetadata carries auxiliary tags about how a result was produced,
// such as why it fell back to a degraded mode.
type JobResultMetadata struct {
	FallbackReason string `json:"fallbackReason,omitempty"`
}

// JobResult is the structured payload a completed job carries.
type JobResult struct {
	Summary         string             `json:"summary"`
	Sections        []JobResultSection `json:"sections"`
	Citations       []string           `json:"citations"`
	ResearchSources []ResearchResult   `json:"researchSources"`
	DebateRounds    int                `json:"debateRounds"`
	ModelAnswers    []PerModelAnswer   `json:"modelAnswers"`
	Metadata        JobResultMetadata  `json:"metadata"`
}

// Job is a single deep-research request tracked by the Job Store for the
// lifetime of the process. Jobs are owned exclusively by the Job Store;
// every field below is mutated only through Store operations that take
// (jobId, ...) and re-store the result.
type Job struct {
	ID                        string       `json:"id"`
	UserID                    string       `json:"userId,omitempty"`
	Status                    JobStatus    `json:"status"`
	Progress                  int          `json:"progress"`
	CurrentIteration          int          `json:"currentIteration,omitempty"`
	TotalIterations           int          `json:"totalIterations,omitempty"`
	Query                     string       `json:"query"`
	Options                   JobOptions   `json:"options"`
	Result                    *JobResult   `json:"result,omitempty"`
	Error                     *JobErrorInfo `json:"error,omitempty"`
	CreatedAt                 time.Time    `json:"createdAt"`
	UpdatedAt                 time.Time    `json:"updatedAt"`
	StartedAt                 *time.Time   `json:"startedAt,omitempty"`
	CompletedAt               *time.Time   `json:"completedAt,omitempty"`
	EstimatedRemainingSeconds *int         `json:"estimatedRemainingSeconds,omitempty"`
}

// Clone returns a deep-enough copy safe to hand to a caller outside the
// Job Store's lock (no field of Job is ever mutated in place after this
// copy — Result and Error are replaced wholesale, never edited).
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.Result != nil {
		res := *j.Result
		res.Sections = append([]JobResultSection(nil), j.Result.Sections...)
		res.Citations = append([]string(nil), j.Result.Citations...)
		res.ResearchSources = append([]ResearchResult(nil), j.Result.ResearchSources...)
		res.ModelAnswers = append([]PerModelAnswer(nil), j.Result.ModelAnswers...)
		cp.Result = &res
	}
	if j.Error != nil {
		errCopy := *j.Error
		cp.Error = &errCopy
	}
	cp.Options.ModelIDs = append([]string(nil), j.Options.ModelIDs...)
	return &cp
}
