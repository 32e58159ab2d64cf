package dell

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/hwcontrol/internal/hardware"
	"codeberg.org/mutker/hwcontrol/internal/logger"
)

const i8kLine = "1.0 A17 2J59L02 52 1 2 2310 4620 1 -1\n"

type recorder struct {
	calls [][]string
}

func (r *recorder) run(_ context.Context, name string, args ...string) error {
	r.calls = append(r.calls, append([]string{name}, args...))
	return nil
}

var dellSystem = System{Vendor: "Dell Inc.", Board: "0X8DXD"}

func writeStatus(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestGroup(t *testing.T, rec *recorder) (*Group, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "i8k")
	writeStatus(t, path, i8kLine)

	return NewGroup(dellSystem, logger.Nop(), WithProcPath(path), WithRunner(rec.run)), path
}

func value(h hardware.Hardware, id string) float64 {
	for _, s := range h.Sensors() {
		if s.Identifier().String() == id {
			return s.Value()
		}
	}
	return -1
}

func TestParseStatus(t *testing.T) {
	st, err := parseStatus(i8kLine)
	require.NoError(t, err)
	assert.Equal(t, [fanCount]float64{1, 2}, st.levels)
	assert.Equal(t, [fanCount]float64{2310, 4620}, st.rpms)

	_, err = parseStatus("1.0 A17")
	assert.Error(t, err)
}

func TestDellSensors(t *testing.T) {
	g, path := newTestGroup(t, &recorder{})
	require.Len(t, g.Hardware(), 1)

	h := g.Hardware()[0]
	assert.Equal(t, "/dell/0x8dxd", h.Identifier().String())
	assert.Equal(t, hardware.TypeCooler, h.Type())
	assert.Equal(t, 1.0, value(h, "/dell/0x8dxd/fanlevel/1"))
	assert.Equal(t, 2310.0, value(h, "/dell/0x8dxd/fan/1"))
	assert.Equal(t, 2.0, value(h, "/dell/0x8dxd/fanlevel/2"))
	assert.Equal(t, 4620.0, value(h, "/dell/0x8dxd/fan/2"))

	writeStatus(t, path, "garbage")
	h.Update()
	assert.Equal(t, 4620.0, value(h, "/dell/0x8dxd/fan/2"))
	assert.Contains(t, g.Report(), "Failed to read i8k status")
}

func TestDellFanLevelControl(t *testing.T) {
	rec := &recorder{}
	g, _ := newTestGroup(t, rec)
	h := g.Hardware()[0]
	require.Len(t, h.Controls(), 2)

	ctrl := h.Controls()[1]
	assert.Equal(t, "/dell/0x8dxd/fanlevel/2", ctrl.Identifier().String())

	applied, err := ctrl.ChangeValue(2)
	require.NoError(t, err)
	assert.Equal(t, 2.0, applied)
	require.NoError(t, ctrl.SetDefaultValue(0))

	assert.Equal(t, [][]string{
		{"i8kctl", "fan", "-", "2"},
		{"i8kctl", "fan", "-", "0"},
	}, rec.calls)

	_, err = ctrl.ChangeValue(3)
	assert.Error(t, err)
	assert.Len(t, rec.calls, 2)
}

func TestGroupSkipsOtherVendors(t *testing.T) {
	g := NewGroup(System{Vendor: "LENOVO"}, logger.Nop())
	assert.Empty(t, g.Hardware())
	assert.Empty(t, g.Report())
}

func TestGroupWithoutDriver(t *testing.T) {
	g := NewGroup(dellSystem, logger.Nop(), WithProcPath(filepath.Join(t.TempDir(), "missing")))
	assert.Empty(t, g.Hardware())
}
