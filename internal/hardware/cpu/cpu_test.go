package cpu

import (
	"testing"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/hwcontrol/internal/errors"
	"codeberg.org/mutker/hwcontrol/internal/hardware"
	"codeberg.org/mutker/hwcontrol/internal/logger"
	"codeberg.org/mutker/hwcontrol/internal/ring0"
	"codeberg.org/mutker/hwcontrol/internal/ring0/ring0test"
)

func intelInfo(vendor string) InfoFunc {
	return func() ([]cpu.InfoStat, error) {
		flags := []string{"fpu", "tsc", "dts", "pts"}
		return []cpu.InfoStat{
			{CPU: 0, VendorID: vendor, Family: "6", Model: "158", Stepping: 9, PhysicalID: "0", CoreID: "0",
				ModelName: "Intel(R) Core(TM) i7-7700K CPU @ 4.20GHz", Mhz: 800, Flags: flags},
			{CPU: 1, VendorID: vendor, Family: "6", Model: "158", Stepping: 9, PhysicalID: "0", CoreID: "1",
				ModelName: "Intel(R) Core(TM) i7-7700K CPU @ 4.20GHz", Mhz: 800, Flags: flags},
		}, nil
	}
}

// fakeTimes reports cpu0 at 75% busy and cpu1 at 50% busy between samples.
func fakeTimes() TimesFunc {
	k := 0
	return func() ([]cpu.TimesStat, error) {
		k++
		return []cpu.TimesStat{
			{CPU: "cpu0", User: float64(k * 30), Idle: float64(k * 10)},
			{CPU: "cpu1", User: float64(k * 10), Idle: float64(k * 10)},
		}, nil
	}
}

// mailbox simulates the overclocking mailbox: a write command latches the
// offset of a plane, a read command places it in the data register.
func mailbox(mem *ring0test.Memory) {
	planes := make(map[uint32]uint32)
	mem.OnWriteMsr = func(index, eax, edx uint32, set func(int, uint32, uint64)) {
		if index != msrOcMailbox {
			return
		}
		plane := (edx >> 8) & 0xFF
		switch edx &^ (0xFF << 8) {
		case mailboxWriteOffset:
			planes[plane] = eax
		case mailboxReadOffset:
			set(0, msrOcMailbox, ring0.Join64(planes[plane], 0))
		}
	}
}

func newIntelMemory(t *testing.T) *ring0test.Memory {
	t.Helper()

	mem := ring0test.NewMemory()
	require.True(t, mem.Open())
	for c := 0; c < 2; c++ {
		mem.SetMsr(c, msrTemperatureTarget, 100<<16)
	}
	mem.SetMsr(0, msrThermStatus, thermalReadingValid|30<<16)
	mem.SetMsr(0, msrPlatformInfo, 42<<8)
	mem.SetMsr(0, msrOcMailbox, 0)
	mailbox(mem)

	return mem
}

func newTestGroup(t *testing.T, mem *ring0test.Memory, vendor string) *Group {
	t.Helper()

	g, err := NewGroup(mem, logger.Nop(), WithInfo(intelInfo(vendor)), WithTimes(fakeTimes()))
	require.NoError(t, err)
	require.Len(t, g.Hardware(), 1)

	return g
}

func sensorByID(h hardware.Hardware, id string) *hardware.Sensor {
	for _, s := range h.Sensors() {
		if s.Identifier().String() == id {
			return s
		}
	}
	return nil
}

func controlByID(h hardware.Hardware, id string) *hardware.Control {
	for _, c := range h.Controls() {
		if c.Identifier().String() == id {
			return c
		}
	}
	return nil
}

func TestDecodeVoltageOffset(t *testing.T) {
	tests := []struct {
		raw  uint32
		want float64
	}{
		{raw: 0, want: 0},
		{raw: 1024, want: 1000},
		{raw: 1025, want: -999.02},
		{raw: 2047, want: -0.98},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, DecodeVoltageOffset(tt.raw), "raw %d", tt.raw)
	}
}

func TestEncodeVoltageOffset(t *testing.T) {
	assert.Equal(t, uint32(0), EncodeVoltageOffset(0))
	assert.Equal(t, 99.61, DecodeVoltageOffset(EncodeVoltageOffset(100)>>21))
	assert.Equal(t, -49.8, DecodeVoltageOffset(EncodeVoltageOffset(-50)>>21))
}

func TestWriteVoltageOffsetReadsBack(t *testing.T) {
	mem := newIntelMemory(t)

	applied, err := WriteVoltageOffset(mem, 2, -50)
	require.NoError(t, err)
	assert.Equal(t, -49.8, applied)

	mv, err := ReadVoltageOffset(mem, 2)
	require.NoError(t, err)
	assert.Equal(t, -49.8, mv)

	mv, err = ReadVoltageOffset(mem, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, mv)

	writes := mem.Writes()
	require.NotEmpty(t, writes)
	assert.Equal(t, uint32(0x80000211), writes[0].Edx)
}

func TestIntelCPUSensors(t *testing.T) {
	mem := newIntelMemory(t)
	h := newTestGroup(t, mem, vendorIntel).Hardware()[0]

	assert.Equal(t, "Intel Core i7-7700K", h.Name())
	assert.Equal(t, "/intelcpu/0", h.Identifier().String())
	assert.Equal(t, hardware.TypeCPU, h.Type())

	temp := sensorByID(h, "/intelcpu/0/temperature/0")
	require.NotNil(t, temp)
	assert.Equal(t, 70.0, temp.Value())
	dist := sensorByID(h, "/intelcpu/0/temperaturetjmax/0")
	require.NotNil(t, dist)
	assert.Equal(t, 30.0, dist.Value())

	bus := sensorByID(h, "/intelcpu/0/clock/0")
	require.NotNil(t, bus)
	assert.Equal(t, 100.0, bus.Value())

	total := sensorByID(h, "/intelcpu/0/load/0")
	require.NotNil(t, total)
	assert.Equal(t, 62.5, total.Value())
	assert.Equal(t, 75.0, sensorByID(h, "/intelcpu/0/load/1").Value())
	assert.Equal(t, 50.0, sensorByID(h, "/intelcpu/0/load/2").Value())

	offset := sensorByID(h, "/intelcpu/0/voltageoffset/0")
	require.NotNil(t, offset)
	dv, err := offset.DefaultValue()
	require.NoError(t, err)
	assert.Equal(t, 0.0, dv)
	assert.Len(t, h.Controls(), len(offsetPlanes))
}

func TestOffsetControlWrite(t *testing.T) {
	mem := newIntelMemory(t)
	h := newTestGroup(t, mem, vendorIntel).Hardware()[0]

	ctrl := controlByID(h, "/intelcpu/0/voltageoffset/1")
	require.NotNil(t, ctrl)

	applied, err := ctrl.ChangeValue(-50)
	require.NoError(t, err)
	assert.Equal(t, -49.8, applied)
	assert.Equal(t, -49.8, ctrl.Value())
	assert.Equal(t, -49.8, sensorByID(h, "/intelcpu/0/voltageoffset/1").Value())

	h.Update()
	assert.Equal(t, -49.8, sensorByID(h, "/intelcpu/0/voltageoffset/1").Value())
	assert.Equal(t, 0.0, sensorByID(h, "/intelcpu/0/voltageoffset/0").Value())
}

func TestOffsetControlRejectsOutOfRange(t *testing.T) {
	mem := newIntelMemory(t)
	h := newTestGroup(t, mem, vendorIntel).Hardware()[0]
	ctrl := controlByID(h, "/intelcpu/0/voltageoffset/0")
	require.NotNil(t, ctrl)

	acquires, writes := mem.Acquires(), len(mem.Writes())

	_, err := ctrl.ChangeValue(-200)
	require.Error(t, err)
	assert.True(t, errorsHasOutOfRange(err))
	assert.Equal(t, acquires, mem.Acquires())
	assert.Len(t, mem.Writes(), writes)
}

func TestGenericCPUOnlyReportsLoad(t *testing.T) {
	mem := ring0test.NewMemory()
	h := newTestGroup(t, mem, "AuthenticAMD").Hardware()[0]

	assert.Equal(t, "/genericcpu/0", h.Identifier().String())
	for _, s := range h.Sensors() {
		assert.Equal(t, hardware.SensorLoad, s.Type())
	}
	assert.Len(t, h.Sensors(), 3)
	assert.Empty(t, h.Controls())
}

func TestPackagesGroupsThreads(t *testing.T) {
	pkgs := packages([]cpu.InfoStat{
		{CPU: 0, PhysicalID: "0", CoreID: "0"},
		{CPU: 1, PhysicalID: "0", CoreID: "1"},
		{CPU: 2, PhysicalID: "0", CoreID: "0"},
		{CPU: 3, PhysicalID: "0", CoreID: "1"},
		{CPU: 4, PhysicalID: "1", CoreID: "0"},
	})

	require.Len(t, pkgs, 2)
	assert.Equal(t, [][]int{{0, 2}, {1, 3}}, pkgs[0].Cores)
	assert.Equal(t, []int{0, 2, 1, 3}, pkgs[0].Threads())
	assert.Equal(t, 1, pkgs[0].Affinity(1))
	assert.Equal(t, 1, pkgs[1].Index)
	assert.Equal(t, 0, pkgs[1].Affinity(5))
}

func TestClassify(t *testing.T) {
	arch, tjMax := classify(6, 0x9E, 9)
	assert.Equal(t, archKabyLake, arch)
	assert.Zero(t, tjMax)

	arch, tjMax = classify(6, 0x0F, 0x0B)
	assert.Equal(t, archCore, arch)
	assert.Equal(t, 100.0, tjMax)

	arch, _ = classify(0x17, 1, 0)
	assert.Equal(t, archUnknown, arch)
	assert.False(t, arch.hasRapl())
}

func errorsHasOutOfRange(err error) bool {
	return errors.HasCode(err, hardware.ErrOutOfRange)
}
