package notify

import (
	"fmt"
	"time"

	"github.com/hochfrequenz/llm-merge-orchestrator/internal/domain"
)

// JobNotifier adapts a Notifier to the job-lifecycle callback shape the
// Async Worker and the batch digest runner expect, translating a
// completed or failed domain.Job into a Notification.
type JobNotifier struct {
	Notifier  Notifier
	DetailURL func(jobID string) string // optional, e.g. "/api/v1/deep-research/" + jobID
}

// NotifyJobCompleted reports a successful job.
func (j *JobNotifier) NotifyJobCompleted(job *domain.Job) {
	j.send(Notification{
		Title:     "Research job completed",
		Message:   summarize(job),
		Type:      Success,
		JobID:     job.ID,
		DetailURL: j.detailURL(job.ID),
		Fields:    completionFields(job),
	})
}

func completionFields(job *domain.Job) []Field {
	if job.Result == nil {
		return nil
	}
	fields := []Field{{Label: "Models", Value: fmt.Sprintf("%d", len(job.Result.ModelAnswers))}}
	if job.Result.DebateRounds > 0 {
		fields = append(fields, Field{Label: "Debate rounds", Value: fmt.Sprintf("%d", job.Result.DebateRounds)})
	}
	fields = append(fields, Field{Label: "Citations", Value: fmt.Sprintf("%d", len(job.Result.Citations))})
	if job.StartedAt != nil && job.CompletedAt != nil {
		fields = append(fields, Field{Label: "Duration", Value: job.CompletedAt.Sub(*job.StartedAt).Round(time.Second).String()})
	}
	return fields
}

// NotifyJobFailed reports a failed job.
func (j *JobNotifier) NotifyJobFailed(job *domain.Job) {
	msg := "job failed"
	if job.Error != nil {
		msg = fmt.Sprintf("%s: %s", job.Error.Code, job.Error.Message)
	}
	j.send(Notification{
		Title:     "Research job failed",
		Message:   msg,
		Type:      Error,
		JobID:     job.ID,
		DetailURL: j.detailURL(job.ID),
	})
}

func (j *JobNotifier) send(n Notification) {
	if j.Notifier == nil {
		return
	}
	// Notification delivery is best-effort; a broken webhook must not
	// affect job outcomes, so the error is dropped here.
	_ = j.Notifier.Send(n)
}

func (j *JobNotifier) detailURL(jobID string) string {
	if j.DetailURL == nil {
		return ""
	}
	return j.DetailURL(jobID)
}

func summarize(job *domain.Job) string {
	if job.Result == nil || job.Result.Summary == "" {
		return "completed with no summary"
	}
	const maxLen = 200
	s := job.Result.Summary
	if len(s) > maxLen {
		s = s[:maxLen] + "…"
	}
	return s
}
