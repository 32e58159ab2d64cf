package memory

import (
	"errors"
	"testing"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/hwcontrol/internal/hardware"
	"codeberg.org/mutker/hwcontrol/internal/logger"
)

const gb = 1024 * 1024 * 1024

func values(h hardware.Hardware) map[string]float64 {
	out := make(map[string]float64)
	for _, s := range h.Sensors() {
		out[s.Identifier().String()] = s.Value()
	}
	return out
}

func TestMemoryUpdate(t *testing.T) {
	g := NewGroup(logger.Nop(),
		WithVirtual(func() (*mem.VirtualMemoryStat, error) {
			return &mem.VirtualMemoryStat{Total: 16 * gb, Available: 12 * gb}, nil
		}),
		WithSwap(func() (*mem.SwapMemoryStat, error) {
			return &mem.SwapMemoryStat{Total: 4 * gb, Used: 1 * gb}, nil
		}),
	)

	require.Len(t, g.Hardware(), 1)
	h := g.Hardware()[0]
	assert.Equal(t, "Generic Memory", h.Name())
	assert.Equal(t, "/ram", h.Identifier().String())
	assert.Equal(t, hardware.TypeMemory, h.Type())

	v := values(h)
	assert.Equal(t, 4.0, v["/ram/data/0"])
	assert.Equal(t, 12.0, v["/ram/data/1"])
	assert.Equal(t, 5.0, v["/ram/data/2"])
	assert.Equal(t, 15.0, v["/ram/data/3"])
	assert.Equal(t, 25.0, v["/ram/load/0"])
	assert.Equal(t, 25.0, v["/ram/load/1"])
}

func TestMemoryZeroOnFailure(t *testing.T) {
	fail := false
	g := NewGroup(logger.Nop(),
		WithVirtual(func() (*mem.VirtualMemoryStat, error) {
			if fail {
				return nil, errors.New("no meminfo")
			}
			return &mem.VirtualMemoryStat{Total: 8 * gb, Available: 4 * gb}, nil
		}),
		WithSwap(func() (*mem.SwapMemoryStat, error) {
			return nil, errors.New("no swap")
		}),
	)
	h := g.Hardware()[0]
	assert.Equal(t, 50.0, values(h)["/ram/load/1"])

	fail = true
	h.Update()
	for id, v := range values(h) {
		assert.Zero(t, v, id)
	}
}
