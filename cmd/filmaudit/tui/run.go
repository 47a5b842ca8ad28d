package tui

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/audit"
)

// Options configures the progress display.
type Options struct {
	Root    string
	Records int
}

// RunFunc performs the audit, reporting progress through onProgress.
type RunFunc func(ctx context.Context, onProgress func(audit.Progress)) (*audit.Report, error)

// Run shows the progress display on stderr while run executes, and returns
// run's result once it has finished. Quitting the display cancels the run
// and waits for the files in flight.
func Run(parent context.Context, opts Options, run RunFunc) (*audit.Report, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	updates := make(chan tea.Msg, 64)
	finished := make(chan DoneMsg, 1)
	go func() {
		report, err := run(ctx, func(p audit.Progress) {
			select {
			case updates <- ProgressMsg(p):
			default:
			}
		})
		finished <- DoneMsg{Report: report, Err: err}
		close(updates)
	}()

	model := NewModel(opts.Root, opts.Records, cancel, updates)
	p := tea.NewProgram(model, tea.WithOutput(os.Stderr), tea.WithContext(parent))

	if _, err := p.Run(); err != nil {
		cancel()
		done := <-finished
		if done.Report == nil && done.Err == nil {
			return nil, fmt.Errorf("progress display: %w", err)
		}
		return done.Report, done.Err
	}

	done := <-finished
	return done.Report, done.Err
}
