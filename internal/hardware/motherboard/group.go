package motherboard

import (
	"github.com/shirou/gopsutil/v3/host"

	"codeberg.org/mutker/hwcontrol/internal/hardware"
	"codeberg.org/mutker/hwcontrol/internal/logger"
)

type options struct {
	temperatures TemperaturesFunc
	hwmonRoot    string
}

type Option func(*options)

func WithTemperatures(f TemperaturesFunc) Option {
	return func(o *options) { o.temperatures = f }
}

// WithHwmonRoot replaces /sys/class/hwmon.
func WithHwmonRoot(root string) Option {
	return func(o *options) { o.hwmonRoot = root }
}

type Group struct {
	board *Motherboard
}

var _ hardware.Group = (*Group)(nil)

// NewGroup builds the mainboard backend. An empty board identity leaves
// the board unnamed rather than failing.
func NewGroup(board Board, log logger.Logger, opts ...Option) *Group {
	o := options{temperatures: host.SensorsTemperatures, hwmonRoot: defaultHwmonRoot}
	for _, opt := range opts {
		opt(&o)
	}

	m := newMotherboard(board, o.temperatures, o.hwmonRoot, log)
	m.Update()

	return &Group{board: m}
}

func (g *Group) Hardware() []hardware.Hardware {
	return []hardware.Hardware{g.board}
}

func (g *Group) Report() string {
	return g.board.Report()
}

func (g *Group) Close() error { return nil }
