package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/richinex/aecheck/render"
	"github.com/richinex/aecheck/workflow"
)

// Run executes job on exec inside a full-screen program. The job's renderer
// is replaced with one that feeds the program. Quitting early cancels the run.
func Run(ctx context.Context, exec *workflow.Executor, job workflow.Job, layout *render.Layout, interval time.Duration) (workflow.State, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := New(render.NewTerminal(80), cancel)
	p := tea.NewProgram(model, tea.WithAltScreen())

	job.Renderer = render.NewRenderer(layout, render.NewThrottle(interval), func(v render.View) {
		p.Send(FrameMsg{View: v})
	})

	result := make(chan DoneMsg, 1)
	go func() {
		state, err := exec.Execute(ctx, job)
		msg := DoneMsg{State: state, Err: err}
		result <- msg
		p.Send(msg)
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-result
		return workflow.StateAborted, fmt.Errorf("terminal UI: %w", err)
	}

	cancel()
	done := <-result
	return done.State, done.Err
}
