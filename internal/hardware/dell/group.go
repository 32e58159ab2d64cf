package dell

import (
	"strings"

	"codeberg.org/mutker/hwcontrol/internal/hardware"
	"codeberg.org/mutker/hwcontrol/internal/logger"
)

// System is the DMI identity used to detect a Dell machine.
type System struct {
	Vendor string
	Board  string
}

type options struct {
	procPath string
	run      Runner
}

type Option func(*options)

// WithProcPath replaces /proc/i8k.
func WithProcPath(path string) Option {
	return func(o *options) { o.procPath = path }
}

func WithRunner(r Runner) Option {
	return func(o *options) { o.run = r }
}

// Group is empty on machines that are not Dell or lack the i8k driver.
type Group struct {
	dell *Dell
}

var _ hardware.Group = (*Group)(nil)

func NewGroup(sys System, log logger.Logger, opts ...Option) *Group {
	o := options{procPath: defaultProcPath, run: runCommand}
	for _, opt := range opts {
		opt(&o)
	}

	g := &Group{}
	if !strings.HasPrefix(strings.ToLower(sys.Vendor), "dell") {
		return g
	}

	d, err := newDell(sys.Board, o.procPath, o.run, log)
	if err != nil {
		log.Warn().Err(err).Msg("Dell system without usable i8k interface")
		return g
	}
	d.Update()
	g.dell = d

	return g
}

func (g *Group) Hardware() []hardware.Hardware {
	if g.dell == nil {
		return nil
	}
	return []hardware.Hardware{g.dell}
}

func (g *Group) Report() string {
	if g.dell == nil {
		return ""
	}
	return g.dell.Report()
}

func (g *Group) Close() error { return nil }
