package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/Iron-Ham/tasker/internal/tui/styles"
)

// Layout constants
const (
	defaultWidth = 72
	barWidth     = 30
	minBarWidth  = 10
)

// Messages

type tickMsg time.Time

// doneMsg tells the model the run is over; the final snapshot is drawn
// before the program exits.
type doneMsg struct{}

// Model is the bubbletea model of the run dashboard.
type Model struct {
	tracker  *Tracker
	title    string
	total    int
	refresh  time.Duration
	snap     Snapshot
	width    int
	quitting bool
	done     bool
	onQuit   func()
}

// ModelConfig describes the run the dashboard follows.
type ModelConfig struct {
	Title   string
	Total   int           // tasks the run intends to submit, 0 if unknown
	Refresh time.Duration // redraw interval, 100ms if zero
}

// NewModel creates a dashboard model reading from tracker.
func NewModel(tracker *Tracker, cfg ModelConfig) Model {
	refresh := cfg.Refresh
	if refresh <= 0 {
		refresh = 100 * time.Millisecond
	}
	return Model{
		tracker: tracker,
		title:   cfg.Title,
		total:   cfg.Total,
		refresh: refresh,
		width:   defaultWidth,
		snap:    tracker.Snapshot(),
	}
}

// Commands

// tick returns a command that sends a tickMsg after the refresh interval.
func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the refresh loop.
func (m Model) Init() tea.Cmd {
	return m.tick()
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			if m.onQuit != nil {
				m.onQuit()
			}
			return m, tea.Quit
		}
		return m, nil

	case tickMsg:
		m.snap = m.tracker.Snapshot()
		return m, m.tick()

	case doneMsg:
		m.snap = m.tracker.Snapshot()
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(styles.Header.Render(m.title))
	b.WriteString("\n")
	b.WriteString(m.renderProgress())
	b.WriteString("\n\n")
	b.WriteString(m.renderCounts())
	b.WriteString("\n\n")
	b.WriteString(styles.ContentBox.Render(m.renderWorkers()))
	b.WriteString("\n")

	if m.snap.Scaling != "" {
		b.WriteString(styles.Muted.Render("scaling: " + m.snap.Scaling))
		b.WriteString("\n")
	}
	if len(m.snap.Recent) > 0 {
		b.WriteString(styles.SectionTitle.Render("Recent"))
		b.WriteString("\n")
		for _, line := range m.snap.Recent {
			b.WriteString(styles.Muted.Render(truncate("  "+line, m.width)))
			b.WriteString("\n")
		}
	}

	switch {
	case m.done:
		b.WriteString(styles.SuccessMsg.Render("run complete"))
	case m.quitting:
		b.WriteString(styles.WarningMsg.Render("interrupted"))
	default:
		b.WriteString(styles.HelpBar.Render(styles.HelpKey.Render("q") + " interrupt"))
	}
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderProgress() string {
	total := m.total
	if total == 0 {
		total = m.snap.Submitted
	}
	finished := m.snap.Finished() + m.snap.Abandoned
	return fmt.Sprintf("%s %d/%d", bar(finished, total, m.barWidth()), finished, total)
}

func (m Model) barWidth() int {
	return max(minBarWidth, min(barWidth, m.width-20))
}

func (m Model) renderCounts() string {
	s := m.snap
	parts := []string{
		styles.Text.Render(fmt.Sprintf("pending %d", s.Pending)),
		styles.Primary.Render(fmt.Sprintf("running %d", s.Running)),
		styles.Secondary.Render(fmt.Sprintf("done %d", s.Succeeded)),
	}
	if s.Failed > 0 {
		parts = append(parts, styles.Error.Render(fmt.Sprintf("failed %d", s.Failed)))
	}
	if s.Abandoned > 0 {
		parts = append(parts, styles.Warning.Render(fmt.Sprintf("abandoned %d", s.Abandoned)))
	}
	return strings.Join(parts, styles.Muted.Render("  ·  "))
}

func (m Model) renderWorkers() string {
	if len(m.snap.Workers) == 0 {
		return styles.Muted.Render("no workers hired")
	}

	most := 0
	for _, w := range m.snap.Workers {
		most = max(most, w.Completed)
	}

	lines := []string{styles.SectionTitle.Render("Workers")}
	for _, w := range m.snap.Workers {
		status := lipgloss.NewStyle().Foreground(styles.StatusColor(w.Status)).
			Render(styles.StatusIcon(w.Status) + " " + fmt.Sprintf("%-7s", w.Status))
		line := fmt.Sprintf("%s  #%-3d %s %4d", status, w.ID, bar(w.Completed, most, minBarWidth*2), w.Completed)
		if w.Failed > 0 {
			line += styles.Error.Render(fmt.Sprintf(" (%d failed)", w.Failed))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// truncate cuts s to width visible columns, ending in "..." when cut.
func truncate(s string, width int) string {
	if width <= 3 {
		return "..."
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "...")
}

// bar renders n out of total as a horizontal bar of the given width.
func bar(n, total, width int) string {
	filled := 0
	if total > 0 {
		filled = min(width, n*width/total)
	}
	return styles.BarFilled.Render(strings.Repeat("█", filled)) +
		styles.BarEmpty.Render(strings.Repeat("░", width-filled))
}
