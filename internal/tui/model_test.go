package tui

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/Iron-Ham/tasker/internal/event"
)

func TestModel_TickRefreshesSnapshot(t *testing.T) {
	tr, bus := newTracker(t)
	m := NewModel(tr, ModelConfig{Title: "run", Total: 4})

	bus.Publish(event.NewTaskSubmittedEvent("a", "", 0))
	if m.snap.Submitted != 0 {
		t.Fatal("model should only refresh on tick")
	}

	updated, cmd := m.Update(tickMsg(time.Now()))
	if cmd == nil {
		t.Error("tick should schedule the next tick")
	}
	if got := updated.(Model).snap.Submitted; got != 1 {
		t.Errorf("Submitted after tick = %d, want 1", got)
	}
}

func TestModel_Quit(t *testing.T) {
	tests := []struct {
		name string
		key  tea.KeyMsg
		quit bool
	}{
		{"q", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}, true},
		{"ctrl+c", tea.KeyMsg{Type: tea.KeyCtrlC}, true},
		{"esc", tea.KeyMsg{Type: tea.KeyEsc}, true},
		{"other key", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newTracker(t)
			quits := 0
			m := NewModel(tr, ModelConfig{})
			m.onQuit = func() { quits++ }

			updated, cmd := m.Update(tt.key)
			if got := updated.(Model).quitting; got != tt.quit {
				t.Errorf("quitting = %v, want %v", got, tt.quit)
			}
			if tt.quit && (cmd == nil || quits != 1) {
				t.Errorf("quit key should call onQuit once and return tea.Quit")
			}
			if !tt.quit && cmd != nil {
				t.Error("unhandled key should not return a command")
			}
		})
	}
}

func TestModel_WindowSize(t *testing.T) {
	tr, _ := newTracker(t)
	m := NewModel(tr, ModelConfig{})

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 25, Height: 10})
	if got := updated.(Model).barWidth(); got != minBarWidth {
		t.Errorf("barWidth() on a narrow terminal = %d, want %d", got, minBarWidth)
	}
	updated, _ = m.Update(tea.WindowSizeMsg{Width: 200, Height: 10})
	if got := updated.(Model).barWidth(); got != barWidth {
		t.Errorf("barWidth() on a wide terminal = %d, want %d", got, barWidth)
	}
}

func TestModel_View(t *testing.T) {
	tr, bus := newTracker(t)
	bus.Publish(event.NewWorkerHiredEvent(7, nil))
	bus.Publish(event.NewTaskSubmittedEvent("a", "", 0))
	bus.Publish(event.NewTaskAssignedEvent("a", "", 7, 0))
	bus.Publish(event.NewTaskFinishedEvent("a", "", 7, false, "boom"))

	m := NewModel(tr, ModelConfig{Title: "tasker run", Total: 10})
	updated, _ := m.Update(doneMsg{})
	view := updated.(Model).View()

	for _, want := range []string{"tasker run", "1/10", "#7", "failed 1", "task a failed: boom", "run complete"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModel_ViewWithoutWorkers(t *testing.T) {
	tr, _ := newTracker(t)
	view := NewModel(tr, ModelConfig{}).View()
	if !strings.Contains(view, "no workers hired") {
		t.Errorf("view = %q", view)
	}
}

func TestTruncate(t *testing.T) {
	styled := lipgloss.NewStyle().Bold(true).Render("worker 12 hired")
	tests := []struct {
		name  string
		input string
		width int
		want  int // visible width of the result
	}{
		{"fits", "task t-1 done", 20, 13},
		{"exact", "hello", 5, 5},
		{"cut", "worker 3 crashed, 2 tasks abandoned", 12, 12},
		{"styled", styled, 10, 10},
		{"tiny", "anything", 2, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.input, tt.width)
			if w := lipgloss.Width(got); w != tt.want {
				t.Errorf("truncate(%q, %d) width = %d, want %d", tt.input, tt.width, w, tt.want)
			}
			if lipgloss.Width(tt.input) > tt.width && !strings.HasSuffix(ansi.Strip(got), "...") {
				t.Errorf("truncate(%q, %d) = %q, want trailing ...", tt.input, tt.width, got)
			}
		})
	}
}

func TestBar(t *testing.T) {
	tests := []struct {
		n, total, width int
		filled          int
	}{
		{0, 10, 10, 0},
		{5, 10, 10, 5},
		{10, 10, 10, 10},
		{12, 10, 10, 10},
		{3, 0, 10, 0},
	}
	for _, tt := range tests {
		got := bar(tt.n, tt.total, tt.width)
		if n := strings.Count(got, "█"); n != tt.filled {
			t.Errorf("bar(%d, %d, %d) filled %d cells, want %d", tt.n, tt.total, tt.width, n, tt.filled)
		}
		if n := strings.Count(got, "░"); n != tt.width-tt.filled {
			t.Errorf("bar(%d, %d, %d) left %d empty cells, want %d", tt.n, tt.total, tt.width, n, tt.width-tt.filled)
		}
	}
}

func TestApp_Done(t *testing.T) {
	bus := event.NewBus()
	var out bytes.Buffer
	app := New(bus, ModelConfig{Title: "demo", Total: 1, Refresh: 10 * time.Millisecond},
		WithOutput(&out), WithInput(strings.NewReader("")))

	errc := make(chan error, 1)
	go func() { errc <- app.Run(context.Background()) }()

	bus.Publish(event.NewTaskSubmittedEvent("a", "", 0))
	app.Done()

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Done")
	}
	if bus.SubscriptionCount() != 0 {
		t.Error("Run should close its tracker")
	}
}

func TestApp_ContextCancel(t *testing.T) {
	bus := event.NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	app := New(bus, ModelConfig{}, WithOutput(&bytes.Buffer{}), WithInput(strings.NewReader("")))

	errc := make(chan error, 1)
	go func() { errc <- app.Run(ctx) }()
	cancel()

	select {
	case <-errc:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the context ended")
	}
}
