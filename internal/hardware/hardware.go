package hardware

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultUpdateDelay is the polling interval of a backend that does not
// override it.
const DefaultUpdateDelay = 10 * time.Second

// Hardware is the contract every physical-device backend satisfies.
type Hardware interface {
	Name() string
	Identifier() Identifier
	Type() HardwareType
	Sensors() []*Sensor
	Controls() []*Control
	SubHardware() []Hardware
	// Update refreshes every owned sensor. A failed read for one sensor
	// must not stop the others.
	Update()
	UpdateDelay() time.Duration
	Report() string
	Close() error
}

// Group owns the backends of one vendor or category.
type Group interface {
	Hardware() []Hardware
	Report() string
	Close() error
}

// Base carries the bookkeeping shared by all backends. Backends embed it
// and provide Update.
type Base struct {
	name  string
	id    Identifier
	typ   HardwareType
	delay time.Duration

	mu       sync.RWMutex
	sensors  []*Sensor
	controls []*Control
}

func NewBase(name string, id Identifier, typ HardwareType) *Base {
	return &Base{
		name:  name,
		id:    id,
		typ:   typ,
		delay: DefaultUpdateDelay,
	}
}

func (b *Base) Name() string               { return b.name }
func (b *Base) Identifier() Identifier     { return b.id }
func (b *Base) Type() HardwareType         { return b.typ }
func (b *Base) SubHardware() []Hardware    { return nil }
func (b *Base) UpdateDelay() time.Duration { return b.delay }
func (b *Base) Report() string             { return "" }
func (b *Base) Close() error               { return nil }

func (b *Base) SetUpdateDelay(d time.Duration) {
	b.delay = d
}

// NewSensor creates a sensor owned by this hardware. It is not active
// until ActivateSensor.
func (b *Base) NewSensor(name string, index int, typ SensorType) *Sensor {
	return NewSensor(name, index, typ, b.id)
}

// NewControl creates a control owned by this hardware.
func (b *Base) NewControl(
	name string, index int, typ ControlType, min, max float64, change WriteFunc, setDefault DefaultFunc,
) *Control {
	return NewControl(name, index, b.id, typ, min, max, change, setDefault)
}

// ActivateSensor adds s to the visible set. Activating twice is a no-op.
func (b *Base) ActivateSensor(s *Sensor) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.sensors {
		if existing == s {
			return
		}
	}
	b.sensors = append(b.sensors, s)
}

func (b *Base) DeactivateSensor(s *Sensor) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, existing := range b.sensors {
		if existing == s {
			b.sensors = append(b.sensors[:i], b.sensors[i+1:]...)
			return
		}
	}
}

func (b *Base) ActivateControl(c *Control) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.controls {
		if existing == c {
			return
		}
	}
	b.controls = append(b.controls, c)
}

func (b *Base) DeactivateControl(c *Control) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, existing := range b.controls {
		if existing == c {
			b.controls = append(b.controls[:i], b.controls[i+1:]...)
			return
		}
	}
}

func (b *Base) Sensors() []*Sensor {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*Sensor, len(b.sensors))
	copy(out, b.sensors)

	return out
}

func (b *Base) Controls() []*Control {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*Control, len(b.controls))
	copy(out, b.controls)

	return out
}

// Flatten returns hw and all of its sub-hardware, depth first.
func Flatten(hw ...Hardware) []Hardware {
	var out []Hardware
	for _, h := range hw {
		out = append(out, h)
		out = append(out, Flatten(h.SubHardware()...)...)
	}

	return out
}

// SortSensors orders sensors by type, then index.
func SortSensors(sensors []*Sensor) {
	sort.SliceStable(sensors, func(i, j int) bool {
		if sensors[i].Type() != sensors[j].Type() {
			return sensors[i].Type() < sensors[j].Type()
		}
		return sensors[i].Index() < sensors[j].Index()
	})
}

// FormatValue renders a value the way reports show it.
func FormatValue(v float64) string {
	return strings.TrimSpace(fmt.Sprintf("%8.6g", v))
}
