package motherboard

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/hwcontrol/internal/hardware"
	"codeberg.org/mutker/hwcontrol/internal/logger"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func sensor(h hardware.Hardware, id string) *hardware.Sensor {
	for _, s := range h.Sensors() {
		if s.Identifier().String() == id {
			return s
		}
	}
	return nil
}

func TestMotherboardSensors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "hwmon1", "name"), "nct6775\n")
	writeFile(t, filepath.Join(root, "hwmon1", "fan1_input"), "1200\n")
	writeFile(t, filepath.Join(root, "hwmon1", "fan2_input"), "850\n")
	writeFile(t, filepath.Join(root, "hwmon1", "fan2_label"), "CPU Fan\n")

	g := NewGroup(Board{Vendor: "ASUSTeK COMPUTER INC.", Product: "PRIME Z370-A"}, logger.Nop(),
		WithHwmonRoot(root),
		WithTemperatures(func() ([]host.TemperatureStat, error) {
			return []host.TemperatureStat{
				{SensorKey: "nct6775_systin", Temperature: 31.5},
				{SensorKey: "acpitz", Temperature: 27.8},
			}, nil
		}),
	)

	h := g.Hardware()[0]
	assert.Equal(t, "ASUSTeK COMPUTER INC. PRIME Z370-A", h.Name())
	assert.Equal(t, "/mainboard", h.Identifier().String())

	require.NotNil(t, sensor(h, "/mainboard/temperature/0"))
	assert.Equal(t, "acpitz", sensor(h, "/mainboard/temperature/0").Name())
	assert.Equal(t, 27.8, sensor(h, "/mainboard/temperature/0").Value())
	assert.Equal(t, 31.5, sensor(h, "/mainboard/temperature/1").Value())

	fan := sensor(h, "/mainboard/fan/0")
	require.NotNil(t, fan)
	assert.Equal(t, "nct6775 fan1", fan.Name())
	assert.Equal(t, 1200.0, fan.Value())
	assert.Equal(t, "nct6775 CPU Fan", sensor(h, "/mainboard/fan/1").Name())

	writeFile(t, filepath.Join(root, "hwmon1", "fan1_input"), "1350\n")
	h.Update()
	assert.Equal(t, 1350.0, fan.Value())
	assert.Contains(t, g.Report(), "PRIME Z370-A")
}

func TestMotherboardWithoutDMI(t *testing.T) {
	g := NewGroup(Board{}, logger.Nop(),
		WithHwmonRoot(t.TempDir()),
		WithTemperatures(func() ([]host.TemperatureStat, error) { return nil, errors.New("no sensors") }),
	)

	h := g.Hardware()[0]
	assert.Equal(t, "Motherboard", h.Name())
	assert.Empty(t, h.Sensors())
}
