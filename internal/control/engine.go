// Package control drives writable controls from the user's policies: a
// fixed value or a curve over a bound sensor.
package control

import (
	"context"
	"math"
	"time"

	"codeberg.org/mutker/hwcontrol/internal/errors"
	"codeberg.org/mutker/hwcontrol/internal/hardware"
	"codeberg.org/mutker/hwcontrol/internal/logger"
	"codeberg.org/mutker/hwcontrol/internal/snapshot"
	"codeberg.org/mutker/hwcontrol/internal/tree"
)

const (
	ErrNoBoundSensor = errors.ErrorCode("control_no_bound_sensor")
	ErrNoCurve       = errors.ErrorCode("control_no_curve")
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrNoBoundSensor: "Curve control has no bound sensor",
		ErrNoCurve:       "Curve control has no markers",
	})
}

// Source lists the live hardware whose controls are mirrored.
type Source interface {
	Hardware() []hardware.Hardware
}

type Option func(*Engine)

// WithMonitor makes the engine evaluate policies without writing.
func WithMonitor(monitor bool) Option {
	return func(e *Engine) { e.monitor = monitor }
}

func WithLogger(l logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

type Engine struct {
	source   Source
	tree     *tree.Tree
	gate     *snapshot.Gate
	interval time.Duration
	span     int
	monitor  bool
	log      logger.Logger

	// controls already reported as not evaluable, guarded by gate
	reported map[string]bool
}

func New(source Source, t *tree.Tree, gate *snapshot.Gate, interval time.Duration, span int, opts ...Option) *Engine {
	e := &Engine{
		source:   source,
		tree:     t,
		gate:     gate,
		interval: interval,
		span:     span,
		log:      logger.Component("control"),
		reported: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Init mirrors every control into the tree and pairs it with the sensor
// reading it back. Sensors must already be in the tree.
func (e *Engine) Init() {
	count := 0
	for _, h := range e.source.Hardware() {
		controls := h.Controls()
		if len(controls) == 0 {
			continue
		}

		node := e.tree.Node(h)
		for _, c := range controls {
			n := tree.NewControlNode(c, e.span)
			feedbackID := h.Identifier().ChildIndex(c.Type().FeedbackSensor().Key(), c.Index())
			if s, ok := e.tree.Sensor(feedbackID.String()); ok {
				n.SetFeedback(s)
			}
			e.tree.AddControl(node, n)
			count++
		}
	}
	e.log.Info().Int("controls", count).Msg("Control tree built")
}

// Tick evaluates every unlocked control once under the shared gate.
func (e *Engine) Tick(ctx context.Context) error {
	return e.gate.Do(ctx, func() {
		for _, n := range e.tree.Controls() {
			e.tick(n)
		}
	})
}

// tick evaluates one control. A failing backend never stops the loop.
func (e *Engine) tick(n *tree.ControlNode) {
	id := n.Identifier().String()
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Str("control", id).Interface("panic", r).Msg("Control tick panicked")
		}
	}()

	if err := e.evaluate(n); err != nil {
		if !e.reported[id] {
			e.reported[id] = true
			e.log.Warn().Err(err).Str("control", id).Msg("Policy not evaluated")
		}
		return
	}
	delete(e.reported, id)
}

func (e *Engine) evaluate(n *tree.ControlNode) error {
	if n.Locked() {
		return nil
	}

	switch n.Policy() {
	case tree.PolicyFixed:
		target := n.Value()
		if math.RoundToEven(current(n)) != math.RoundToEven(target) {
			e.write(n, target)
		}

	case tree.PolicyCurve:
		bound := n.BoundSensor()
		if bound == nil {
			return errors.New().WithData(ErrNoBoundSensor, n.BoundSensorID())
		}
		sample, ok := tree.Nearest(n.Samples(), bound.Value())
		if !ok {
			return errors.New().New(ErrNoCurve)
		}
		target := math.RoundToEven(sample.Y)
		if math.RoundToEven(current(n)) != target {
			e.write(n, target)
		}
	}

	return nil
}

// current is the read-back value of the control, falling back to the last
// applied value when the hardware has no feedback sensor.
func current(n *tree.ControlNode) float64 {
	if s := n.Feedback(); s != nil {
		return s.Value()
	}
	return n.Control().Value()
}

func (e *Engine) write(n *tree.ControlNode, v float64) {
	if e.monitor {
		e.log.Info().Str("control", n.Identifier().String()).Float64("value", v).Msg("Would change control")
		return
	}

	applied, err := n.Control().ChangeValue(v)
	if err != nil {
		e.log.Error().Err(err).Str("control", n.Identifier().String()).Float64("value", v).
			Msg("Failed to change control")
		return
	}
	e.log.Debug().Str("control", n.Identifier().String()).Float64("applied", applied).Msg("Control changed")
}

// ToggleLock flips the lock. Locking hands the control back to the
// hardware's own management.
func (e *Engine) ToggleLock(n *tree.ControlNode) error {
	locked := !n.Locked()
	n.SetLocked(locked)
	if !locked || e.monitor {
		return nil
	}

	if err := n.Control().SetDefaultValue(n.Value()); err != nil {
		e.log.Error().Err(err).Str("control", n.Identifier().String()).Msg("Failed to restore default")
		return err
	}

	return nil
}

// Apply writes v immediately and stores the value the hardware applied.
func (e *Engine) Apply(n *tree.ControlNode, v float64) error {
	if e.monitor {
		n.SetValue(v)
		return nil
	}

	applied, err := n.Control().ChangeValue(v)
	if err != nil {
		return err
	}
	n.SetValue(applied)

	return nil
}

// Run waits one tick, then evaluates every tick until ctx ends.
func (e *Engine) Run(ctx context.Context) error {
	timer := time.NewTimer(e.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		if err := e.Tick(ctx); err != nil {
			return err
		}
		timer.Reset(e.interval)
	}
}
