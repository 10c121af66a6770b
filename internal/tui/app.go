// Package tui renders a live dashboard of a task handler run.
package tui

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/tasker/internal/event"
)

// App wraps the Bubbletea program
type App struct {
	program *tea.Program
	tracker *Tracker
}

// Option configures an App.
type Option func(*appConfig)

type appConfig struct {
	output  io.Writer
	input   io.Reader
	onQuit  func()
	altMode bool
}

// WithOutput directs rendering to w instead of the terminal.
func WithOutput(w io.Writer) Option {
	return func(c *appConfig) { c.output = w }
}

// WithInput reads key presses from r instead of the terminal.
func WithInput(r io.Reader) Option {
	return func(c *appConfig) { c.input = r }
}

// WithOnQuit registers a callback run when the user interrupts the run.
func WithOnQuit(fn func()) Option {
	return func(c *appConfig) { c.onQuit = fn }
}

// WithAltScreen renders in the terminal's alternate screen.
func WithAltScreen() Option {
	return func(c *appConfig) { c.altMode = true }
}

// New creates a dashboard following the events on bus.
func New(bus *event.Bus, m ModelConfig, opts ...Option) *App {
	cfg := &appConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	tracker := NewTracker(bus)
	model := NewModel(tracker, m)
	model.onQuit = cfg.onQuit

	var popts []tea.ProgramOption
	if cfg.output != nil {
		popts = append(popts, tea.WithOutput(cfg.output))
	}
	if cfg.input != nil {
		popts = append(popts, tea.WithInput(cfg.input))
	}
	if cfg.altMode {
		popts = append(popts, tea.WithAltScreen())
	}

	return &App{
		program: tea.NewProgram(model, popts...),
		tracker: tracker,
	}
}

// Run starts the TUI application and blocks until the run is marked done,
// the user quits, or ctx ends.
func (a *App) Run(ctx context.Context) error {
	defer a.tracker.Close()

	stop := context.AfterFunc(ctx, a.program.Quit)
	defer stop()

	_, err := a.program.Run()
	return err
}

// Done draws the final state and ends the program.
func (a *App) Done() {
	a.program.Send(doneMsg{})
}
