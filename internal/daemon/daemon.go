// Package daemon wires the computer, the mirrored tree, the control engine
// and the optional exporters into one run group.
package daemon

import (
	"context"
	"sync/atomic"
	"syscall"

	"github.com/oklog/run"

	"codeberg.org/mutker/hwcontrol/internal/computer"
	"codeberg.org/mutker/hwcontrol/internal/config"
	"codeberg.org/mutker/hwcontrol/internal/control"
	"codeberg.org/mutker/hwcontrol/internal/errors"
	"codeberg.org/mutker/hwcontrol/internal/exporter"
	"codeberg.org/mutker/hwcontrol/internal/history"
	"codeberg.org/mutker/hwcontrol/internal/logger"
	"codeberg.org/mutker/hwcontrol/internal/snapshot"
	"codeberg.org/mutker/hwcontrol/internal/state"
	"codeberg.org/mutker/hwcontrol/internal/tree"
)

// Categories maps the hardware flags of cfg onto computer categories.
func Categories(cfg config.HardwareConfig) map[computer.Category]bool {
	return map[computer.Category]bool{
		computer.CategoryCPU:         cfg.CPU,
		computer.CategoryGPU:         cfg.GPU,
		computer.CategoryMemory:      cfg.Memory,
		computer.CategoryMotherboard: cfg.Motherboard,
		computer.CategoryController:  cfg.Controller,
	}
}

type Daemon struct {
	cfg      *config.Config
	computer *computer.Computer
	tree     *tree.Tree
	gate     *snapshot.Gate
	snapshot *snapshot.Service
	engine   *control.Engine
	store    *state.Store
	recorder history.Recorder
	started  atomic.Bool
	log      logger.Logger
}

// New prepares a daemon around c. Category flags from cfg are applied to c
// before it is opened.
func New(cfg *config.Config, c *computer.Computer) *Daemon {
	for cat, enabled := range Categories(cfg.Hardware) {
		c.SetEnabled(cat, enabled)
	}

	return &Daemon{
		cfg:      cfg,
		computer: c,
		tree:     tree.New(),
		gate:     snapshot.NewGate(),
		log:      logger.Component("daemon"),
	}
}

func (d *Daemon) Tree() *tree.Tree { return d.tree }
func (d *Daemon) Started() bool    { return d.started.Load() }

// init runs the start sequence: open, monitor, mirror sensors, mirror
// controls, restore settings.
func (d *Daemon) init(ctx context.Context) error {
	d.computer.Open()
	d.computer.Monitor(ctx)

	recorder, err := history.New(history.Config{
		DBPath:       d.cfg.History.DBPath,
		BatchSize:    d.cfg.History.BatchSize,
		BatchTimeout: d.cfg.History.BatchTimeout,
		Enabled:      d.cfg.History.Enabled,
	}, logger.Component("history"))
	if err != nil {
		return err
	}
	d.recorder = recorder

	d.snapshot = snapshot.New(d.computer, d.tree, d.gate, d.cfg.Interval, d.cfg.HistorySpan,
		snapshot.WithRecorder(recorder), snapshot.WithLogger(logger.Component("snapshot")))
	if err := d.snapshot.Init(); err != nil {
		return err
	}

	d.engine = control.New(d.computer, d.tree, d.gate, d.cfg.Interval, d.cfg.HistorySpan,
		control.WithMonitor(d.cfg.Monitor), control.WithLogger(logger.Component("control")))
	d.engine.Init()

	d.store = state.New(d.cfg.StateFile, logger.Component("state"))
	d.store.Load(d.tree)

	return nil
}

// Run starts the daemon and blocks until ctx ends, SIGINT or SIGTERM
// arrives, or a component fails. The computer is closed on return.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	defer d.shutdown()

	if err := d.init(ctx); err != nil {
		return errors.New().Wrap(errors.ErrInitFailed, err)
	}

	if d.cfg.Monitor {
		d.log.Info().Msg("Monitor mode activated, controls are not written")
	}

	var g run.Group

	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	g.Add(func() error {
		return d.snapshot.Run(ctx, func() {
			d.started.Store(true)
			d.log.Info().Msg("Sensor tree is live")
		})
	}, func(error) {
		cancel()
	})

	g.Add(func() error {
		return d.engine.Run(ctx)
	}, func(error) {
		cancel()
	})

	{
		unwatch := d.store.Watch(d.tree, d.started.Load)
		g.Add(func() error {
			<-ctx.Done()
			return ctx.Err()
		}, func(error) {
			unwatch()
			cancel()
		})
	}

	if d.cfg.Listen != "" {
		srv, err := exporter.New(d.cfg.Listen, d.tree, d.computer,
			exporter.WithHistory(d.recorder), exporter.WithLogger(logger.Component("exporter")))
		if err != nil {
			return err
		}
		g.Add(srv.ListenAndServe, func(error) {
			srv.Shutdown()
		})
	}

	err := g.Run()

	var sig run.SignalError
	switch {
	case errors.As(err, &sig):
		d.log.Info().Str("signal", sig.Signal.String()).Msg("Received termination signal")
		return nil
	case errors.Is(err, context.Canceled):
		return nil
	default:
		return err
	}
}

func (d *Daemon) shutdown() {
	if err := d.computer.Close(); err != nil {
		d.log.Warn().Err(err).Msg("Failed to close hardware")
	}
	if d.recorder != nil {
		if err := d.recorder.Close(); err != nil {
			d.log.Warn().Err(err).Msg("Failed to close history")
		}
	}
	d.log.Info().Msg("Exiting...")
}
