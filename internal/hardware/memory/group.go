package memory

import (
	"github.com/shirou/gopsutil/v3/mem"

	"codeberg.org/mutker/hwcontrol/internal/hardware"
	"codeberg.org/mutker/hwcontrol/internal/logger"
)

type options struct {
	virtual VirtualFunc
	swap    SwapFunc
}

type Option func(*options)

func WithVirtual(f VirtualFunc) Option {
	return func(o *options) { o.virtual = f }
}

func WithSwap(f SwapFunc) Option {
	return func(o *options) { o.swap = f }
}

// Group always holds exactly one memory backend.
type Group struct {
	memory *Memory
}

var _ hardware.Group = (*Group)(nil)

func NewGroup(log logger.Logger, opts ...Option) *Group {
	o := options{virtual: mem.VirtualMemory, swap: mem.SwapMemory}
	for _, opt := range opts {
		opt(&o)
	}

	m := newMemory(o.virtual, o.swap, log)
	m.Update()

	return &Group{memory: m}
}

func (g *Group) Hardware() []hardware.Hardware {
	return []hardware.Hardware{g.memory}
}

func (g *Group) Report() string { return "" }
func (g *Group) Close() error   { return nil }
