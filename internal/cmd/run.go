package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/Iron-Ham/tasker/internal/config"
	"github.com/Iron-Ham/tasker/internal/event"
	"github.com/Iron-Ham/tasker/internal/logging"
	"github.com/Iron-Ham/tasker/internal/metrics"
	"github.com/Iron-Ham/tasker/internal/queue"
	"github.com/Iron-Ham/tasker/internal/report"
	"github.com/Iron-Ham/tasker/internal/scaling"
	"github.com/Iron-Ham/tasker/internal/tasks"
	"github.com/Iron-Ham/tasker/internal/tui"
)

var runNoTUI bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulated workload through the task handler",
	Long: `Run hires local workers with the configured speeds, submits a batch of
tasks and waits for all of them to finish. The completion count of each
worker is printed at the end: faster workers request work more often and
finish a proportionally larger share.

Press q (or send SIGINT) to interrupt; pending tasks are withdrawn and
reported.`,
	RunE: runRun,
}

func init() {
	flags := runCmd.Flags()
	flags.IntP("workers", "w", 0, "number of workers to hire (overrides workers.count)")
	flags.IntP("tasks", "n", 0, "number of tasks to submit (overrides demo.tasks)")
	flags.Int("concurrency", 0, "tasks each worker runs at once (overrides workers.concurrency)")
	flags.StringSlice("series", nil, "series to spread tasks over (overrides demo.series)")
	flags.Int("niceness", 0, "niceness of every task, -20..20 (overrides demo.niceness)")
	flags.Bool("metrics", false, "serve Prometheus metrics while running")
	flags.String("metrics-addr", "", "metrics listen address (overrides metrics.addr)")
	flags.Bool("scale", false, "hire and retire workers as the queue grows and drains")
	flags.BoolVar(&runNoTUI, "no-tui", false, "print a summary only, without the live dashboard")

	bindRunFlags()
}

// bindRunFlags ties the run flags to their configuration keys.
func bindRunFlags() {
	flags := runCmd.Flags()
	bind := map[string]string{
		"workers.count":       "workers",
		"demo.tasks":          "tasks",
		"workers.concurrency": "concurrency",
		"demo.series":         "series",
		"demo.niceness":       "niceness",
		"metrics.enabled":     "metrics",
		"metrics.addr":        "metrics-addr",
		"scaling.enabled":     "scale",
	}
	for key, flag := range bind {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
}

// demoCall is the task every simulated job runs. The worker's configured
// cost supplies the duration; the call itself just squares its argument.
func demoCall(_ context.Context, args []any, _ map[string]any) (any, error) {
	n, _ := args[0].(int)
	return n * n, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	out := cmd.OutOrStdout()
	warn := color.New(color.FgYellow)

	interactive := cfg.TUI.Enabled && !runNoTUI && isTerminal(out)

	logDir := cfg.Logging.Dir
	if interactive && logDir == "" {
		// The dashboard owns the terminal; keep log lines out of it.
		logDir = config.ConfigDir()
	}
	logger, err := logging.NewLogger(logDir, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	config.Watch(func(c *config.Config, err error) {
		if err != nil {
			logger.Warn("config reload rejected", "error", err)
			return
		}
		logger.SetLevel(c.Logging.Level)
		logger.Info("config reloaded", "level", c.Logging.Level)
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	bus := event.NewBus()
	bus.SetLogger(logger)

	q := queue.New(
		queue.WithLogger(logger),
		queue.WithEventBus(bus),
		queue.WithAcceptTimeout(cfg.Handler.AcceptTimeout()),
		queue.WithDetachTimeout(cfg.Handler.DetachTimeout()),
	)

	if cfg.Metrics.Enabled {
		shutdown, err := serveMetrics(cfg.Metrics.Addr, bus)
		if err != nil {
			return err
		}
		defer shutdown()
		fmt.Fprintf(out, "metrics on http://%s/metrics\n", cfg.Metrics.Addr)
	}

	rep := report.New()
	fl := newFleet(q, bus, cfg.Workers, cfg.Demo.Series, logger)
	defer fl.close()

	scaleCtx, stopScaling := context.WithCancel(runCtx)
	defer stopScaling()
	if cfg.Scaling.Enabled {
		startScaling(scaleCtx, bus, fl, cfg.Scaling, logger)
	}

	var dash *tui.App
	dashDone := make(chan error, 1)
	if interactive {
		dash = tui.New(bus, tui.ModelConfig{
			Title:   "tasker run " + rep.RunID[:8],
			Total:   cfg.Demo.Tasks,
			Refresh: cfg.TUI.Refresh(),
		}, tui.WithOnQuit(cancel), tui.WithAltScreen())
		go func() { dashDone <- dash.Run(runCtx) }()
	}

	if err := fl.hire(cfg.Workers.Count); err != nil {
		return err
	}

	submitted, err := submitDemo(q, cfg.Demo)
	rep.Submitted = len(submitted)
	if err != nil {
		logger.Error("submission stopped", "error", err)
	}

	for _, t := range submitted {
		if _, err := t.Result().Wait(runCtx); err != nil && runCtx.Err() != nil {
			rep.Interrupted = true
			break
		}
	}
	for _, t := range submitted {
		if _, err, ok := t.Result().Peek(); ok {
			if err != nil {
				rep.Failed++
			} else {
				rep.Succeeded++
			}
		}
	}

	stopScaling()
	shutdownCtx := context.Background()
	if d := cfg.Handler.ShutdownTimeout(); d > 0 {
		var cancelShutdown context.CancelFunc
		shutdownCtx, cancelShutdown = context.WithTimeout(shutdownCtx, d)
		defer cancelShutdown()
	}
	leftover, err := q.Shutdown(shutdownCtx)
	if err != nil {
		logger.Warn("shutdown incomplete", "error", err)
	}
	for _, t := range leftover {
		rep.Withdrawn = append(rep.Withdrawn, t.ID())
	}

	if dash != nil {
		dash.Done()
		if err := <-dashDone; err != nil {
			logger.Warn("dashboard exited with error", "error", err)
		}
	}

	fl.fill(rep)
	rep.Finish()
	printSummary(out, rep)

	if rep.Interrupted {
		warn.Fprintf(out, "run interrupted: %d tasks withdrawn\n", len(rep.Withdrawn))
	}
	if rep.Abandoned > 0 {
		warn.Fprintf(out, "%d tasks abandoned by terminated workers\n", rep.Abandoned)
	}

	if cfg.Report.Enabled {
		path := cfg.Report.ResolvePath(config.ConfigDir())
		switch err := report.TrySave(path, rep); {
		case errors.Is(err, report.ErrLocked):
			warn.Fprintf(out, "report not saved: %s is locked by another run\n", path)
		case err != nil:
			warn.Fprintf(out, "could not save report: %v\n", err)
		default:
			fmt.Fprintf(out, "report saved to %s\n", path)
		}
	}
	return nil
}

// submitDemo submits the configured workload and returns the tasks that
// were accepted into the queue.
func submitDemo(q *queue.Queue, demo config.DemoConfig) ([]*tasks.Task, error) {
	submitted := make([]*tasks.Task, 0, demo.Tasks)
	for i := range demo.Tasks {
		opts := []queue.CallOption{queue.WithNiceness(demo.Niceness)}
		if len(demo.Series) > 0 {
			opts = append(opts, queue.WithSeries(demo.Series[i%len(demo.Series)]))
		}
		t, err := q.Submit(demoCall, []any{i}, nil, opts...)
		if err != nil {
			return submitted, err
		}
		submitted = append(submitted, t)
	}
	return submitted, nil
}

// startScaling follows queue depth and hires or retires workers on the
// monitor's advice until ctx ends. The monitor reports decisions from inside
// event delivery, so they are applied on a separate goroutine.
func startScaling(ctx context.Context, bus *event.Bus, fl *fleet, cfg config.ScalingConfig, logger *logging.Logger) {
	policy := scaling.NewPolicy(
		scaling.WithMinWorkers(cfg.MinWorkers),
		scaling.WithMaxWorkers(cfg.MaxWorkers),
		scaling.WithScaleUpThreshold(cfg.ScaleUpThreshold),
		scaling.WithScaleDownThreshold(cfg.ScaleDownThreshold),
		scaling.WithCooldownPeriod(cfg.Cooldown()),
	)
	monitor := scaling.NewMonitor(bus, policy)
	monitor.SetLogger(logger)

	decisions := make(chan scaling.Decision, 1)
	monitor.OnDecision(func(d scaling.Decision) {
		select {
		case decisions <- d:
		default:
			// A decision is already waiting; the next depth change re-evaluates.
		}
	})

	go monitor.Start(ctx)
	go func() {
		for {
			select {
			case d := <-decisions:
				fl.apply(ctx, d)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// serveMetrics starts the Prometheus endpoint and returns a function that
// stops it.
func serveMetrics(addr string, bus *event.Bus) (func(), error) {
	m := metrics.New()
	m.Attach(bus)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		m.Detach()
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		m.Detach()
	}, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// printSummary writes the per-worker completion distribution.
func printSummary(w io.Writer, r *report.Report) {
	bold := color.New(color.Bold)
	good := color.New(color.FgGreen)

	bold.Fprintf(w, "run %s finished in %s\n", r.RunID, r.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "submitted %d, succeeded %d, failed %d\n", r.Submitted, r.Succeeded, r.Failed)

	shares := r.Share()
	fmt.Fprintf(w, "%-8s %-7s %-8s %-9s %s\n", "worker", "speed", "cost", "completed", "share")
	for i, ws := range r.Workers {
		fmt.Fprintf(w, "%-8d %-7.2g %-8s %-9d %s\n",
			ws.ID, ws.Speed, time.Duration(ws.CostMs)*time.Millisecond, ws.Completed,
			good.Sprintf("%5.1f%%", shares[i]*100))
	}
}
