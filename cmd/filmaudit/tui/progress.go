package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/audit"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/logging"
)

// recentLogLines is how many warnings the display keeps on screen.
const recentLogLines = 4

// ProgressMsg carries a progress snapshot from the runner.
type ProgressMsg audit.Progress

// DoneMsg is sent once when the run returns.
type DoneMsg struct {
	Report *audit.Report
	Err    error
}

// Model is the progress display: a spinner while walking and reconciling,
// and a progress bar while verifying.
type Model struct {
	root    string
	records int

	state    audit.Progress
	spinner  spinner.Model
	bar      progress.Model
	started  time.Time
	width    int
	stopping bool

	cancel  func()
	updates <-chan tea.Msg
	recent  *logging.Buffer

	done   bool
	report *audit.Report
	err    error
}

// NewModel creates the display for a run over root. cancel stops the run;
// updates delivers ProgressMsg and finally DoneMsg.
func NewModel(root string, records int, cancel func(), updates <-chan tea.Msg) Model {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return Model{
		root:    root,
		records: records,
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		started: time.Now(),
		width:   80,
		cancel:  cancel,
		updates: updates,
		recent:  logging.Recent(),
	}
}

// Init starts the spinner and the update listener.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen())
}

func (m Model) listen() tea.Cmd {
	updates := m.updates
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-updates
		if !ok {
			return DoneMsg{}
		}
		return msg
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if !m.stopping {
				m.stopping = true
				if m.cancel != nil {
					m.cancel()
				}
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-30, 10)
		return m, nil

	case ProgressMsg:
		m.state = audit.Progress(msg)
		return m, m.listen()

	case DoneMsg:
		m.done = true
		m.report = msg.Report
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the display.
func (m Model) View() string {
	if m.done {
		return ""
	}

	contentWidth := max(m.width-4, 40)
	var b strings.Builder

	title := titleStyle.Render("filmaudit")
	hint := mutedTextStyle.Render("[q to stop]")
	b.WriteString(title + strings.Repeat(" ", max(contentWidth-lipgloss.Width(title)-lipgloss.Width(hint), 1)) + hint)
	b.WriteString("\n")
	b.WriteString(mutedTextStyle.Render(truncatePath(m.root, contentWidth)))
	b.WriteString("\n")
	b.WriteString(renderDivider(contentWidth))
	b.WriteString("\n\n")

	b.WriteString(m.phaseLine(contentWidth))
	b.WriteString("\n\n")
	b.WriteString(m.stats())
	b.WriteString("\n")

	if m.stopping {
		b.WriteString("\n")
		b.WriteString(warningTextStyle.Render("Stopping after the files in progress..."))
		b.WriteString("\n")
	}

	if lines := m.recentLines(contentWidth); len(lines) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n")
	}

	return outerBoxStyle.Width(max(m.width-2, 42)).Render(b.String())
}

func (m Model) phaseLine(width int) string {
	switch m.state.Phase {
	case audit.PhaseVerify:
		return fmt.Sprintf("Verifying   %s %s/%s",
			m.bar.ViewAs(m.fraction()),
			humanize.Comma(m.state.Done), humanize.Comma(m.state.Total))
	case audit.PhaseInventory:
		return fmt.Sprintf("%s Reconciling %s",
			m.spinner.View(), truncatePath(m.state.CurrentPath, width-16))
	case audit.PhaseDone:
		return successTextStyle.Render("Finishing...")
	default:
		return fmt.Sprintf("%s Scanning %s",
			m.spinner.View(), truncatePath(m.state.CurrentPath, width-14))
	}
}

// fraction is the verification progress in [0, 1].
func (m Model) fraction() float64 {
	if m.state.Total <= 0 {
		return 0
	}
	f := float64(m.state.Done) / float64(m.state.Total)
	return min(f, 1)
}

func (m Model) stats() string {
	stat := func(label, value string) string {
		return statsLabelStyle.Render(label+" ") + statsValueStyle.Render(value)
	}
	return strings.Join([]string{
		stat("Dirs", humanize.Comma(m.state.DirsScanned)),
		stat("Files", humanize.Comma(m.state.FilesScanned)),
		stat("Records", humanize.Comma(int64(m.records))),
		stat("Time", formatElapsed(time.Since(m.started))),
	}, "   ")
}

// recentLines renders the latest warnings and errors from the run log.
func (m Model) recentLines(width int) []string {
	if m.recent == nil {
		return nil
	}
	entries := m.recent.Last(recentLogLines)
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		text := e.Message
		if e.Component != "" {
			text = e.Component + ": " + text
		}
		text = truncateText(text, width-2)
		if e.Level >= logging.LevelError {
			lines = append(lines, errorTextStyle.Render("! "+text))
		} else {
			lines = append(lines, warningTextStyle.Render("! "+text))
		}
	}
	return lines
}

// Report returns the finished run's report, nil until DoneMsg arrives.
func (m Model) Report() *audit.Report {
	return m.report
}

// Err returns the run's error.
func (m Model) Err() error {
	return m.err
}

// Stopping reports whether the user asked the run to stop.
func (m Model) Stopping() bool {
	return m.stopping
}

// formatElapsed formats a duration as M:SS.
func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", d/time.Minute, (d%time.Minute)/time.Second)
}

func truncateText(s string, maxLen int) string {
	if maxLen <= 3 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
