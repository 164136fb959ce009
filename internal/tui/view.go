package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hochfrequenz/llm-merge-orchestrator/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	queuedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	completedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255"))
)

// View renders the dashboard.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	header := fmt.Sprintf(" Deep Research Jobs │ Total: %d │ Running: %d │ Queued: %d ",
		len(m.jobs), countByStatus(m.jobs, domain.JobRunning), countByStatus(m.jobs, domain.JobQueued))
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderList()))
	b.WriteString("\n")

	if job := m.selectedJob(); job != nil {
		b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderDetail(job)))
		b.WriteString("\n")
	}

	b.WriteString(statusBarStyle.Width(m.width).Render(" [j/k]navigate [r]efresh [q]uit "))

	return b.String()
}

func countByStatus(jobs []*domain.Job, status domain.JobStatus) int {
	n := 0
	for _, j := range jobs {
		if j.Status == status {
			n++
		}
	}
	return n
}

func (m Model) statusIcon(status domain.JobStatus) (string, lipgloss.Style) {
	switch status {
	case domain.JobRunning:
		return m.spinner.View(), runningStyle
	case domain.JobCompleted:
		return "✓", completedStyle
	case domain.JobFailed:
		return "✗", failedStyle
	default:
		return "○", queuedStyle
	}
}

func (m Model) renderList() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("JOBS"))
	b.WriteString("\n")

	if len(m.jobs) == 0 {
		b.WriteString(queuedStyle.Render("  No jobs yet"))
		return b.String()
	}

	for i, job := range m.jobs {
		icon, style := m.statusIcon(job.Status)
		line := fmt.Sprintf("%s %-8s %3d%%  %-40s", icon, job.Status, job.Progress, truncate(job.Query, 40))
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString(style.Render("  " + line))
		}
		b.WriteString("\n")
	}

	return strings.TrimSuffix(b.String(), "\n")
}

func (m Model) renderDetail(job *domain.Job) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("JOB %s", job.ID)))
	b.WriteString("\n\n")

	_, style := m.statusIcon(job.Status)
	b.WriteString(fmt.Sprintf("  Status:   %s\n", style.Render(string(job.Status))))
	b.WriteString(fmt.Sprintf("  Progress: %d%% (iteration %d/%d)\n", job.Progress, job.CurrentIteration, job.TotalIterations))
	b.WriteString(fmt.Sprintf("  Query:    %s\n", job.Query))

	if job.Error != nil {
		b.WriteString("\n")
		b.WriteString(failedStyle.Render(fmt.Sprintf("  ERROR [%s]: %s", job.Error.Code, job.Error.Message)))
		b.WriteString("\n")
	}

	if job.Result != nil {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("  SUMMARY"))
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("  %s\n", truncate(job.Result.Summary, 200)))
		if len(job.Result.Citations) > 0 {
			b.WriteString(fmt.Sprintf("  Citations: %d\n", len(job.Result.Citations)))
		}
		if job.Result.Metadata.FallbackReason != "" {
			b.WriteString(queuedStyle.Render(fmt.Sprintf("  Fallback: %s\n", job.Result.Metadata.FallbackReason)))
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max < 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
