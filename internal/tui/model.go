// Package tui implements a terminal dashboard that watches the Job Store
// and renders live job status without opening any network connection of
// its own — it polls the same in-process Store the HTTP API and worker
// use.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/llm-merge-orchestrator/internal/domain"
)

// JobLister is the subset of jobstore.Store the dashboard polls.
type JobLister interface {
	ListAll() []*domain.Job
}

// Model is the TUI application state.
type Model struct {
	lister JobLister

	jobs     []*domain.Job
	selected int

	width  int
	height int

	statusMsg string
	spinner   spinner.Model
}

// NewModel creates a Model backed by lister.
func NewModel(lister JobLister) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = runningStyle
	return Model{lister: lister, spinner: s}
}

// Init starts the refresh tick and the running-job spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(refreshCmd(m.lister), tickCmd(), m.spinner.Tick)
}

// TickMsg triggers a periodic refresh.
type TickMsg time.Time

// RefreshMsg carries a freshly polled job snapshot.
type RefreshMsg struct {
	Jobs []*domain.Job
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func refreshCmd(lister JobLister) tea.Cmd {
	return func() tea.Msg {
		return RefreshMsg{Jobs: lister.ListAll()}
	}
}

func (m *Model) selectedJob() *domain.Job {
	if m.selected < 0 || m.selected >= len(m.jobs) {
		return nil
	}
	return m.jobs[m.selected]
}
