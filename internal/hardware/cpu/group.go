package cpu

import (
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"

	"codeberg.org/mutker/hwcontrol/internal/errors"
	"codeberg.org/mutker/hwcontrol/internal/hardware"
	"codeberg.org/mutker/hwcontrol/internal/logger"
	"codeberg.org/mutker/hwcontrol/internal/ring0"
)

// InfoFunc returns one entry per logical processor.
type InfoFunc func() ([]cpu.InfoStat, error)

type options struct {
	info  InfoFunc
	times TimesFunc
}

type Option func(*options)

// WithInfo replaces the /proc/cpuinfo reader.
func WithInfo(f InfoFunc) Option {
	return func(o *options) { o.info = f }
}

// WithTimes replaces the per-CPU times reader.
func WithTimes(f TimesFunc) Option {
	return func(o *options) { o.times = f }
}

// Group holds one CPU per physical package.
type Group struct {
	cpus []*CPU
}

var _ hardware.Group = (*Group)(nil)

func NewGroup(access ring0.Access, log logger.Logger, opts ...Option) (*Group, error) {
	o := options{info: cpu.Info, times: defaultTimes}
	for _, opt := range opts {
		opt(&o)
	}

	infos, err := o.info()
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrUnavailable, err).WithData("cpuinfo")
	}

	g := &Group{}
	for _, pkg := range packages(infos) {
		g.cpus = append(g.cpus, newCPU(pkg, access, o.times, log))
	}

	return g, nil
}

func (g *Group) Hardware() []hardware.Hardware {
	out := make([]hardware.Hardware, len(g.cpus))
	for i, c := range g.cpus {
		out[i] = c
	}

	return out
}

func (g *Group) Report() string {
	var b strings.Builder

	b.WriteString("CPUID\n\n")
	for _, c := range g.cpus {
		b.WriteString(c.Report())
	}

	return b.String()
}

func (g *Group) Close() error {
	return nil
}
