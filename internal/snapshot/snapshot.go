// Package snapshot mirrors live sensor values into the tree on a fixed
// tick, keeping a bounded history per sensor.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/mutker/hwcontrol/internal/errors"
	"codeberg.org/mutker/hwcontrol/internal/hardware"
	"codeberg.org/mutker/hwcontrol/internal/logger"
	"codeberg.org/mutker/hwcontrol/internal/tree"
)

const (
	ErrSourceClosed = errors.ErrorCode("snapshot_source_closed")
	ErrCyclePanic   = errors.ErrorCode("snapshot_cycle_panic")
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrSourceClosed: "Hardware source is not open",
		ErrCyclePanic:   "Snapshot cycle panicked",
	})
}

// Source is the live hardware, normally *computer.Computer.
type Source interface {
	IsOpen() bool
	Hardware() []hardware.Hardware
}

// Reading is one mirrored value handed to a Recorder.
type Reading struct {
	Hardware hardware.Identifier
	Sensor   hardware.Identifier
	Name     string
	Type     hardware.SensorType
	Value    float64
	Time     time.Time
}

// Recorder receives the readings of every successful cycle. It must not
// block for long; it runs inside the gate.
type Recorder interface {
	Record(readings []Reading)
}

type Option func(*Service)

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithLogger(l logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type mirror struct {
	hardware hardware.Identifier
	node     *tree.SensorNode
}

type Service struct {
	source   Source
	tree     *tree.Tree
	gate     *Gate
	interval time.Duration
	span     int
	recorder Recorder
	log      logger.Logger
	now      func() time.Time

	mirrors []mirror
}

func New(source Source, t *tree.Tree, gate *Gate, interval time.Duration, span int, opts ...Option) *Service {
	s := &Service{
		source:   source,
		tree:     t,
		gate:     gate,
		interval: interval,
		span:     span,
		log:      logger.Component("snapshot"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Init builds the sensor part of the tree once. A sensor with conflicting
// parameters is a backend bug and aborts Init.
func (s *Service) Init() error {
	now := s.now()

	for _, h := range s.source.Hardware() {
		sensors := h.Sensors()
		hardware.SortSensors(sensors)
		for _, sensor := range sensors {
			if err := sensor.ValidateParameters(); err != nil {
				return err
			}
		}

		node := s.tree.Node(h)
		for _, sensor := range sensors {
			n := tree.NewSensorNode(sensor, s.span)
			n.Seed(now)
			s.tree.AddSensor(node, n)
			s.mirrors = append(s.mirrors, mirror{hardware: h.Identifier(), node: n})
		}
	}
	s.log.Info().Int("sensors", len(s.mirrors)).Msg("Sensor tree built")

	return nil
}

// Refresh performs one gated cycle. It only fails when ctx ends while
// waiting for the gate; cycle failures are logged and zero the tree.
func (s *Service) Refresh(ctx context.Context) error {
	return s.gate.Do(ctx, func() {
		if err := s.cycle(); err != nil {
			s.log.Error().Err(err).Msg("Sensor refresh failed")
			s.zero()
		}
	})
}

func (s *Service) cycle() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New().WithData(ErrCyclePanic, fmt.Sprint(r))
		}
	}()

	if !s.source.IsOpen() {
		return errors.New().New(ErrSourceClosed)
	}

	live := make(map[string]*hardware.Sensor)
	for _, h := range s.source.Hardware() {
		for _, sensor := range h.Sensors() {
			live[sensor.Identifier().String()] = sensor
		}
	}

	now := s.now()
	readings := make([]Reading, 0, len(s.mirrors))
	for _, m := range s.mirrors {
		sensor, ok := live[m.node.Identifier().String()]
		if !ok {
			continue
		}
		v := sensor.Value()
		m.node.Set(v, now)
		readings = append(readings, Reading{
			Hardware: m.hardware,
			Sensor:   m.node.Identifier(),
			Name:     m.node.Name(),
			Type:     m.node.Type(),
			Value:    v,
			Time:     now,
		})
	}

	if s.recorder != nil {
		s.recorder.Record(readings)
	}

	return nil
}

func (s *Service) zero() {
	now := s.now()
	for _, m := range s.mirrors {
		m.node.Set(0, now)
	}
}

// Run waits one tick, calls onStarted, then refreshes every tick until ctx
// ends.
func (s *Service) Run(ctx context.Context, onStarted func()) error {
	if !sleep(ctx, s.interval) {
		return ctx.Err()
	}
	if onStarted != nil {
		onStarted()
	}

	for {
		if err := s.Refresh(ctx); err != nil {
			return err
		}
		if !sleep(ctx, s.interval) {
			return ctx.Err()
		}
	}
}

// sleep waits d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
