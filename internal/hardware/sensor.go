package hardware

import (
	"math"
	"sync"
	"time"

	"codeberg.org/mutker/hwcontrol/internal/errors"
)

// RangeParameterName names the parameter describing a sensor's valid span.
const RangeParameterName = "Range"

type ParameterKind int

const (
	ParameterValue ParameterKind = iota
	ParameterRange
)

// Parameter is either a default value or a min/max range attached to a
// sensor.
type Parameter struct {
	Name        string
	Description string
	Kind        ParameterKind
	Value       float64
	Min         float64
	Max         float64
}

// Sensor is one measured quantity owned by a hardware backend. Only the
// owning backend's Update assigns its value.
type Sensor struct {
	name   string
	index  int
	typ    SensorType
	id     Identifier
	params []Parameter

	mu        sync.RWMutex
	value     float64
	valueTime time.Time
}

// NewSensor creates a sensor whose identifier is owner/type/index.
func NewSensor(name string, index int, typ SensorType, owner Identifier) *Sensor {
	return &Sensor{
		name:  name,
		index: index,
		typ:   typ,
		id:    owner.ChildIndex(typ.Key(), index),
	}
}

func (s *Sensor) Name() string           { return s.name }
func (s *Sensor) Index() int             { return s.index }
func (s *Sensor) Type() SensorType       { return s.typ }
func (s *Sensor) Unit() Unit             { return s.typ.Unit() }
func (s *Sensor) Identifier() Identifier { return s.id }

// SetValue stores v rounded to two decimals and stamps the time.
func (s *Sensor) SetValue(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.value = Round2(v)
	s.valueTime = time.Now()
}

func (s *Sensor) Value() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// ValueTime is when the value was last assigned.
func (s *Sensor) ValueTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.valueTime
}

// AddValueParameter attaches a default value. Call during construction only.
func (s *Sensor) AddValueParameter(name, description string, value float64) {
	s.params = append(s.params, Parameter{
		Name:        name,
		Description: description,
		Kind:        ParameterValue,
		Value:       value,
	})
}

// AddRangeParameter attaches the valid span. Call during construction only.
func (s *Sensor) AddRangeParameter(min, max float64) {
	s.params = append(s.params, Parameter{
		Name: RangeParameterName,
		Kind: ParameterRange,
		Min:  min,
		Max:  max,
	})
}

func (s *Sensor) Parameters() []Parameter {
	out := make([]Parameter, len(s.params))
	copy(out, s.params)

	return out
}

// Range returns the range parameter if the sensor has one.
func (s *Sensor) Range() (min, max float64, ok bool) {
	for _, p := range s.params {
		if p.Kind == ParameterRange {
			return p.Min, p.Max, true
		}
	}

	return 0, 0, false
}

// DefaultValue returns the single value parameter.
func (s *Sensor) DefaultValue() (float64, error) {
	if err := s.ValidateParameters(); err != nil {
		return 0, err
	}
	for _, p := range s.params {
		if p.Kind == ParameterValue {
			return p.Value, nil
		}
	}

	return 0, errors.New().WithData(ErrNoDefaultValue, s.id.String())
}

// ValidateParameters fails when more than one default value is attached,
// which is a construction bug in the backend.
func (s *Sensor) ValidateParameters() error {
	n := 0
	for _, p := range s.params {
		if p.Kind == ParameterValue {
			n++
		}
	}
	if n > 1 {
		return errors.New().WithData(ErrParameterConflict, s.id.String())
	}

	return nil
}

// Round2 rounds half to even at two decimals.
func Round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}
