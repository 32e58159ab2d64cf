// Package tree holds the mirrored view of the hardware: sensor values with
// history and the user's control settings, grouped by hardware and type.
package tree

import (
	"sync"

	"codeberg.org/mutker/hwcontrol/internal/hardware"
)

// SensorTypeGroup holds the sensors of one type on one hardware.
type SensorTypeGroup struct {
	Type    hardware.SensorType
	Sensors []*SensorNode
}

func (g *SensorTypeGroup) Name() string { return g.Type.String() }

// ControlTypeGroup holds the controls of one type on one hardware.
type ControlTypeGroup struct {
	Type     hardware.ControlType
	Controls []*ControlNode
}

func (g *ControlTypeGroup) Name() string { return g.Type.String() }

// HardwareNode mirrors one backend.
type HardwareNode struct {
	ID   hardware.Identifier
	Name string
	Type hardware.HardwareType

	SensorTypes  []*SensorTypeGroup
	ControlTypes []*ControlTypeGroup
}

// AddSensor files s under its type group, creating the group on first use.
func (h *HardwareNode) AddSensor(s *SensorNode) {
	for _, g := range h.SensorTypes {
		if g.Type == s.Type() {
			g.Sensors = append(g.Sensors, s)
			return
		}
	}
	h.SensorTypes = append(h.SensorTypes, &SensorTypeGroup{Type: s.Type(), Sensors: []*SensorNode{s}})
}

func (h *HardwareNode) AddControl(c *ControlNode) {
	for _, g := range h.ControlTypes {
		if g.Type == c.Type() {
			g.Controls = append(g.Controls, c)
			return
		}
	}
	h.ControlTypes = append(h.ControlTypes, &ControlTypeGroup{Type: c.Type(), Controls: []*ControlNode{c}})
}

// Tree is the root of the mirrored view. Structure is built once at start
// and only read afterwards; node values carry their own locks.
type Tree struct {
	mu       sync.RWMutex
	hardware []*HardwareNode
	sensors  map[string]*SensorNode
	controls map[string]*ControlNode
}

func New() *Tree {
	return &Tree{
		sensors:  make(map[string]*SensorNode),
		controls: make(map[string]*ControlNode),
	}
}

// Node returns the hardware node for h, creating it if needed.
func (t *Tree) Node(h hardware.Hardware) *HardwareNode {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, n := range t.hardware {
		if n.ID.String() == h.Identifier().String() {
			return n
		}
	}
	n := &HardwareNode{ID: h.Identifier(), Name: h.Name(), Type: h.Type()}
	t.hardware = append(t.hardware, n)

	return n
}

func (t *Tree) AddSensor(h *HardwareNode, s *SensorNode) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h.AddSensor(s)
	t.sensors[s.Identifier().String()] = s
}

func (t *Tree) AddControl(h *HardwareNode, c *ControlNode) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h.AddControl(c)
	t.controls[c.Identifier().String()] = c
}

func (t *Tree) Hardware() []*HardwareNode {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*HardwareNode, len(t.hardware))
	copy(out, t.hardware)

	return out
}

func (t *Tree) Sensor(id string) (*SensorNode, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sensors[id]
	return s, ok
}

func (t *Tree) Control(id string) (*ControlNode, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.controls[id]
	return c, ok
}

// Sensors returns every sensor node in hardware, type and insertion order.
func (t *Tree) Sensors() []*SensorNode {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []*SensorNode
	for _, h := range t.hardware {
		for _, g := range h.SensorTypes {
			out = append(out, g.Sensors...)
		}
	}
	return out
}

func (t *Tree) Controls() []*ControlNode {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []*ControlNode
	for _, h := range t.hardware {
		for _, g := range h.ControlTypes {
			out = append(out, g.Controls...)
		}
	}
	return out
}
