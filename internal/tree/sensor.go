package tree

import (
	"sync"
	"time"

	"codeberg.org/mutker/hwcontrol/internal/hardware"
)

// Sample is one history point.
type Sample struct {
	Time  time.Time
	Value float64
}

// SensorNode mirrors one backend sensor with a running maximum and a
// bounded history.
type SensorNode struct {
	id   hardware.Identifier
	name string
	typ  hardware.SensorType

	mu      sync.RWMutex
	value   float64
	max     float64
	history []Sample
	head    int
	count   int
	subs    subscribers
}

// NewSensorNode returns a node keeping the last span samples.
func NewSensorNode(s *hardware.Sensor, span int) *SensorNode {
	if span < 1 {
		span = 1
	}

	return &SensorNode{
		id:      s.Identifier(),
		name:    s.Name(),
		typ:     s.Type(),
		history: make([]Sample, span),
	}
}

func (n *SensorNode) Identifier() hardware.Identifier { return n.id }
func (n *SensorNode) Name() string                    { return n.name }
func (n *SensorNode) Type() hardware.SensorType       { return n.typ }
func (n *SensorNode) Unit() hardware.Unit             { return n.typ.Unit() }

func (n *SensorNode) Value() float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.value
}

func (n *SensorNode) Max() float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.max
}

// Set records v at t. Every call appends to the history; subscribers are
// only notified when the value changed.
func (n *SensorNode) Set(v float64, t time.Time) {
	n.mu.Lock()
	changed := v != n.value
	n.value = v
	if v >= n.max {
		n.max = v
	}
	n.push(Sample{Time: t, Value: v})
	n.mu.Unlock()

	if changed {
		n.subs.notify()
	}
}

func (n *SensorNode) push(s Sample) {
	span := len(n.history)
	n.history[(n.head+n.count)%span] = s
	if n.count < span {
		n.count++
		return
	}
	n.head = (n.head + 1) % span
}

// Seed fills the history with zero samples one second apart, ending at now.
func (n *SensorNode) Seed(now time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()

	span := len(n.history)
	n.head, n.count = 0, 0
	for i := span; i > 0; i-- {
		n.push(Sample{Time: now.Add(-time.Duration(i) * time.Second)})
	}
}

// History returns the samples oldest first.
func (n *SensorNode) History() []Sample {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]Sample, n.count)
	for i := 0; i < n.count; i++ {
		out[i] = n.history[(n.head+i)%len(n.history)]
	}

	return out
}

// Subscribe registers fn for value changes and returns its cancel func.
func (n *SensorNode) Subscribe(fn func()) func() {
	return n.subs.add(fn)
}
