// Package tui shows a workflow run in the terminal: results scroll in a
// viewport while a spinner tracks the running step.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/richinex/aecheck/render"
	"github.com/richinex/aecheck/workflow"
)

// FrameMsg carries a freshly built view.
type FrameMsg struct {
	View render.View
}

// DoneMsg reports the end of the run.
type DoneMsg struct {
	State workflow.State
	Err   error
}

var (
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	doneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
)

// Model is the bubbletea model of a run.
type Model struct {
	term     *render.Terminal
	spinner  spinner.Model
	viewport viewport.Model
	cancel   context.CancelFunc

	view   render.View
	ready  bool
	follow bool
	done   *DoneMsg
}

// New creates a model. cancel is called when the user quits mid-run.
func New(term *render.Terminal, cancel context.CancelFunc) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return &Model{
		term:    term,
		spinner: s,
		cancel:  cancel,
		follow:  true,
	}
}

func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := msg.Height - 2
		if height < 1 {
			height = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width, m.viewport.Height = msg.Width, height
		}
		m.term.SetWidth(msg.Width)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.done == nil && m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case "end", "G":
			m.follow = true
			m.viewport.GotoBottom()
			return m, nil
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		m.follow = m.viewport.AtBottom()
		return m, cmd

	case FrameMsg:
		m.view = msg.View
		m.refresh()
		return m, nil

	case DoneMsg:
		m.done = &msg
		return m, nil

	case spinner.TickMsg:
		if m.done != nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.term.Render(m.view))
	if m.follow {
		m.viewport.GotoBottom()
	}
}

func (m *Model) View() string {
	var b strings.Builder
	if m.ready {
		b.WriteString(m.viewport.View())
	} else {
		b.WriteString(m.term.Render(m.view))
	}
	b.WriteString("\n")
	b.WriteString(m.status())
	return b.String()
}

func (m *Model) status() string {
	switch {
	case m.done == nil:
		return m.spinner.View() + " " + m.term.Status(m.view) + statusStyle.Render("  (q to cancel)")
	case m.done.Err != nil && m.done.State == workflow.StateAborted:
		return failStyle.Render(fmt.Sprintf("Aborted: %v", m.done.Err)) + statusStyle.Render("  (q to quit)")
	default:
		return doneStyle.Render("Done: "+m.done.State.String()) + statusStyle.Render("  (↑/↓ to scroll, q to quit)")
	}
}

// Result returns the outcome once the run has finished.
func (m *Model) Result() (DoneMsg, bool) {
	if m.done == nil {
		return DoneMsg{}, false
	}
	return *m.done, true
}
