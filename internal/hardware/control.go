package hardware

import (
	"fmt"
	"sync"

	"codeberg.org/mutker/hwcontrol/internal/errors"
)

// WriteFunc performs the hardware write for the control at index and
// returns the value the hardware actually applied.
type WriteFunc func(index int, value float64) (float64, error)

// DefaultFunc hands the control back to the hardware's own management.
type DefaultFunc func(index int, value float64) error

// Control is a writable setting owned by a hardware backend.
type Control struct {
	name       string
	index      int
	typ        ControlType
	min, max   float64
	id         Identifier
	change     WriteFunc
	setDefault DefaultFunc

	mu    sync.RWMutex
	value float64
}

// NewControl creates a control whose identifier is owner/controltype/index.
func NewControl(
	name string, index int, owner Identifier, typ ControlType,
	min, max float64, change WriteFunc, setDefault DefaultFunc,
) *Control {
	return &Control{
		name:       name,
		index:      index,
		typ:        typ,
		min:        min,
		max:        max,
		id:         owner.ChildIndex(typ.Key(), index),
		change:     change,
		setDefault: setDefault,
	}
}

func (c *Control) Name() string           { return c.name }
func (c *Control) Index() int             { return c.index }
func (c *Control) Type() ControlType      { return c.typ }
func (c *Control) Unit() Unit             { return c.typ.Unit() }
func (c *Control) Min() float64           { return c.min }
func (c *Control) Max() float64           { return c.max }
func (c *Control) Identifier() Identifier { return c.id }

func (c *Control) Value() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// SetCurrent records a value read back from hardware without writing it.
func (c *Control) SetCurrent(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
}

// ChangeValue writes v through the backend. Values outside [Min, Max] are
// rejected before the backend is called.
func (c *Control) ChangeValue(v float64) (float64, error) {
	errFactory := errors.New()

	if v < c.min || v > c.max {
		return 0, errFactory.WithData(ErrOutOfRange,
			fmt.Sprintf("%s: %g not in [%g, %g]", c.id, v, c.min, c.max))
	}
	if c.change == nil {
		return 0, errFactory.WithData(ErrNoWritePath, c.id.String())
	}

	applied, err := c.change(c.index, v)
	if err != nil {
		return 0, errFactory.Wrap(ErrWriteFailed, err).WithData(c.id.String())
	}
	c.SetCurrent(applied)

	return applied, nil
}

// SetDefaultValue returns the control to hardware management.
func (c *Control) SetDefaultValue(v float64) error {
	errFactory := errors.New()

	if c.setDefault == nil {
		return errFactory.WithData(ErrNoWritePath, c.id.String())
	}
	if err := c.setDefault(c.index, v); err != nil {
		return errFactory.Wrap(ErrWriteFailed, err).WithData(c.id.String())
	}

	return nil
}
