// Package computer aggregates hardware groups by category and drives the
// per-hardware update loops.
package computer

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"codeberg.org/mutker/hwcontrol/internal/errors"
	"codeberg.org/mutker/hwcontrol/internal/hardware"
	"codeberg.org/mutker/hwcontrol/internal/logger"
	"codeberg.org/mutker/hwcontrol/internal/ring0"
)

const ErrGroupPanic = errors.ErrorCode("computer_group_panic")

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrGroupPanic: "Hardware group construction panicked",
	})
}

type options struct {
	factories map[Category][]Factory
	readDMI   func() (DMI, error)
	log       logger.Logger
}

type Option func(*options)

// WithFactories replaces the group factories of category.
func WithFactories(c Category, f ...Factory) Option {
	return func(o *options) { o.factories[c] = f }
}

func WithDMIReader(f func() (DMI, error)) Option {
	return func(o *options) { o.readDMI = f }
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

type entry struct {
	category Category
	group    hardware.Group
	stop     context.CancelFunc
	loops    sync.WaitGroup
}

// Computer owns every hardware group. It is safe for concurrent use.
type Computer struct {
	access    ring0.Access
	factories map[Category][]Factory
	readDMI   func() (DMI, error)
	log       logger.Logger

	mu      sync.Mutex
	enabled map[Category]bool
	open    bool
	dmi     DMI
	groups  []*entry
	monitor context.Context
	cancel  context.CancelFunc
}

// New returns a closed Computer with every category enabled. access is the
// single privileged-access instance shared by every backend.
func New(access ring0.Access, opts ...Option) *Computer {
	o := options{
		factories: defaultFactories(),
		readDMI:   readDMI,
		log:       logger.Component("computer"),
	}
	for _, opt := range opts {
		opt(&o)
	}
	enabled := make(map[Category]bool, len(Categories))
	for _, c := range Categories {
		enabled[c] = true
	}

	return &Computer{
		access:    access,
		factories: o.factories,
		readDMI:   o.readDMI,
		log:       o.log,
		enabled:   enabled,
	}
}

func (c *Computer) IsEnabled(cat Category) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled[cat]
}

// SetEnabled toggles a category. On an open Computer the category's groups
// are added or removed immediately; added hardware joins a running monitor.
func (c *Computer) SetEnabled(cat Category, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.enabled[cat] == enabled {
		return
	}
	c.enabled[cat] = enabled
	if !c.open {
		return
	}

	if enabled {
		c.addCategory(cat)
		return
	}
	c.removeWhere(func(e *entry) bool { return e.category == cat })
}

func (c *Computer) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Open reads the machine identity, opens register access and builds the
// groups of every enabled category. Later calls do nothing.
func (c *Computer) Open() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open {
		return
	}

	dmi, err := c.readDMI()
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to read DMI tables")
	}
	c.dmi = dmi

	if !c.access.Open() {
		c.log.Warn().Msg("Register access unavailable, low-level sensors are disabled")
	}

	c.addGroups()
	c.open = true
}

func (c *Computer) addGroups() {
	for _, cat := range Categories {
		if c.enabled[cat] {
			c.addCategory(cat)
		}
	}
}

func (c *Computer) addCategory(cat Category) {
	env := Env{Access: c.access, DMI: c.dmi, Log: c.log.With("category", cat.String())}

	for _, factory := range c.factories[cat] {
		group, err := build(factory, env)
		if err != nil {
			c.log.Info().Err(err).Str("category", cat.String()).Msg("Hardware group unavailable")
			continue
		}

		e := &entry{category: cat, group: group}
		c.groups = append(c.groups, e)
		for _, h := range hardware.Flatten(group.Hardware()...) {
			c.log.Debug().Str("hardware", h.Identifier().String()).Msg("Hardware added")
		}
		if c.monitor != nil && c.monitor.Err() == nil {
			c.startLoops(e)
		}
	}
}

// build runs factory in isolation so a failing vendor cannot take the
// other groups down.
func build(factory Factory, env Env) (group hardware.Group, err error) {
	defer func() {
		if r := recover(); r != nil {
			group = nil
			err = errors.New().WithData(ErrGroupPanic, fmt.Sprintf("%v\n%s", r, debug.Stack()))
		}
	}()

	return factory(env)
}

func (c *Computer) removeWhere(match func(*entry) bool) {
	for i := len(c.groups) - 1; i >= 0; i-- {
		e := c.groups[i]
		if !match(e) {
			continue
		}
		c.groups = append(c.groups[:i], c.groups[i+1:]...)
		c.closeEntry(e)
	}
}

func (c *Computer) closeEntry(e *entry) {
	if e.stop != nil {
		e.stop()
	}
	e.loops.Wait()

	if err := e.group.Close(); err != nil {
		c.log.Warn().Err(err).Str("category", e.category.String()).Msg("Failed to close hardware group")
	}
}

// Hardware returns every backend including sub-hardware.
func (c *Computer) Hardware() []hardware.Hardware {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hardware()
}

func (c *Computer) hardware() []hardware.Hardware {
	var out []hardware.Hardware
	for _, e := range c.groups {
		out = append(out, hardware.Flatten(e.group.Hardware()...)...)
	}
	return out
}

func (c *Computer) Sensors() []*hardware.Sensor {
	var out []*hardware.Sensor
	for _, h := range c.Hardware() {
		out = append(out, h.Sensors()...)
	}
	return out
}

func (c *Computer) Controls() []*hardware.Control {
	var out []*hardware.Control
	for _, h := range c.Hardware() {
		out = append(out, h.Controls()...)
	}
	return out
}

// Monitor stops any running update loops and starts one per hardware,
// each calling Update and then waiting its UpdateDelay until ctx ends.
func (c *Computer) Monitor(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopMonitor()
	c.monitor, c.cancel = context.WithCancel(ctx)
	for _, e := range c.groups {
		c.startLoops(e)
	}
}

func (c *Computer) stopMonitor() {
	if c.cancel != nil {
		c.cancel()
	}
	for _, e := range c.groups {
		if e.stop != nil {
			e.stop()
		}
		e.loops.Wait()
		e.stop = nil
	}
	c.monitor, c.cancel = nil, nil
}

func (c *Computer) startLoops(e *entry) {
	ctx, stop := context.WithCancel(c.monitor)
	e.stop = stop

	for _, h := range hardware.Flatten(e.group.Hardware()...) {
		e.loops.Add(1)
		go func(h hardware.Hardware) {
			defer e.loops.Done()
			c.updateLoop(ctx, h)
		}(h)
	}
}

func (c *Computer) updateLoop(ctx context.Context, h hardware.Hardware) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		c.update(h)
		timer.Reset(h.UpdateDelay())
	}
}

func (c *Computer) update(h hardware.Hardware) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Str("hardware", h.Identifier().String()).Interface("panic", r).Msg("Hardware update panicked")
		}
	}()

	h.Update()
}

// Close stops the update loops, closes every group in reverse order and
// releases register access. Closing a closed Computer does nothing.
func (c *Computer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return nil
	}

	c.stopMonitor()
	c.removeWhere(func(*entry) bool { return true })
	c.open = false
	c.dmi = DMI{}

	return c.access.Close()
}

// Reset rebuilds every group. A running monitor picks up the new hardware.
func (c *Computer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return
	}

	c.removeWhere(func(*entry) bool { return true })
	c.addGroups()
}
