package tree

import (
	"sync"

	"codeberg.org/mutker/hwcontrol/internal/hardware"
)

// Policy decides how the control engine drives a control. The numeric
// values are persisted.
type Policy int

const (
	PolicyDefault Policy = iota
	PolicyFixed
	PolicyCurve
)

var policyNames = [...]string{"Default", "Fixed", "Curve"}

func (p Policy) String() string {
	if p < 0 || int(p) >= len(policyNames) {
		return "Unknown"
	}
	return policyNames[p]
}

// ControlNode mirrors one writable control together with the settings the
// user attached to it. New nodes are locked, which leaves the hardware in
// charge.
type ControlNode struct {
	control *hardware.Control
	span    int

	mu       sync.RWMutex
	policy   Policy
	locked   bool
	value    float64
	boundID  string
	bound    *SensorNode
	feedback *SensorNode
	markers  []Marker
	samples  []Marker
	subs     subscribers
}

// NewControlNode mirrors c; curves are resampled to span points.
func NewControlNode(c *hardware.Control, span int) *ControlNode {
	return &ControlNode{
		control: c,
		span:    span,
		locked:  true,
		value:   c.Value(),
	}
}

func (n *ControlNode) Control() *hardware.Control      { return n.control }
func (n *ControlNode) Identifier() hardware.Identifier { return n.control.Identifier() }
func (n *ControlNode) Name() string                    { return n.control.Name() }
func (n *ControlNode) Type() hardware.ControlType      { return n.control.Type() }
func (n *ControlNode) Min() float64                    { return n.control.Min() }
func (n *ControlNode) Max() float64                    { return n.control.Max() }

// update applies fn under the lock and notifies subscribers if fn reports
// a change.
func (n *ControlNode) update(fn func() bool) {
	n.mu.Lock()
	changed := fn()
	n.mu.Unlock()

	if changed {
		n.subs.notify()
	}
}

func (n *ControlNode) Policy() Policy {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.policy
}

func (n *ControlNode) SetPolicy(p Policy) {
	n.update(func() bool {
		if n.policy == p {
			return false
		}
		n.policy = p
		return true
	})
}

func (n *ControlNode) Locked() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.locked
}

func (n *ControlNode) SetLocked(locked bool) {
	n.update(func() bool {
		if n.locked == locked {
			return false
		}
		n.locked = locked
		return true
	})
}

// Value is the target value of the Fixed policy and the last value the user
// applied.
func (n *ControlNode) Value() float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.value
}

func (n *ControlNode) SetValue(v float64) {
	n.update(func() bool {
		if n.value == v {
			return false
		}
		n.value = v
		return true
	})
}

// BoundSensorID is the identifier of the sensor driving the curve. It is
// kept even when the sensor is not present.
func (n *ControlNode) BoundSensorID() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.boundID
}

func (n *ControlNode) BoundSensor() *SensorNode {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.bound
}

// Bind attaches the sensor with identifier id; node may be nil when the
// sensor is not present.
func (n *ControlNode) Bind(id string, node *SensorNode) {
	n.update(func() bool {
		if n.boundID == id && n.bound == node {
			return false
		}
		n.boundID = id
		n.bound = node
		return true
	})
}

// Feedback is the sensor reading the control's applied value back.
func (n *ControlNode) Feedback() *SensorNode {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.feedback
}

func (n *ControlNode) SetFeedback(s *SensorNode) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.feedback = s
}

func (n *ControlNode) Markers() []Marker {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]Marker, len(n.markers))
	copy(out, n.markers)

	return out
}

// SetMarkers replaces the curve and recomputes its samples.
func (n *ControlNode) SetMarkers(markers []Marker) {
	m := make([]Marker, len(markers))
	copy(m, markers)
	samples := Resample(m, n.span)

	n.update(func() bool {
		if equalMarkers(n.markers, m) {
			return false
		}
		n.markers = m
		n.samples = samples
		return true
	})
}

// Samples is the resampled curve, nil without markers.
func (n *ControlNode) Samples() []Marker {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.samples
}

// Subscribe registers fn for any settings change and returns its cancel
// func.
func (n *ControlNode) Subscribe(fn func()) func() {
	return n.subs.add(fn)
}

func equalMarkers(a, b []Marker) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
