// Package motherboard reports the board identity from DMI together with
// the temperatures and fan speeds the kernel exposes through hwmon.
package motherboard

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/host"

	"codeberg.org/mutker/hwcontrol/internal/hardware"
	"codeberg.org/mutker/hwcontrol/internal/logger"
)

const defaultHwmonRoot = "/sys/class/hwmon"

// Board is the DMI identity of the mainboard.
type Board struct {
	Vendor  string
	Product string
	Version string
}

func (b Board) Name() string {
	name := strings.TrimSpace(b.Vendor + " " + b.Product)
	if name == "" {
		return "Motherboard"
	}
	return name
}

type TemperaturesFunc func() ([]host.TemperatureStat, error)

// Motherboard exposes one sensor per hwmon temperature and fan input.
// Inputs that appear after construction are ignored.
type Motherboard struct {
	*hardware.Base

	board        Board
	temperatures TemperaturesFunc
	hwmonRoot    string
	log          logger.Logger

	temps map[string]*hardware.Sensor
	fans  map[string]*hardware.Sensor
}

func newMotherboard(board Board, temperatures TemperaturesFunc, hwmonRoot string, log logger.Logger) *Motherboard {
	m := &Motherboard{
		Base:         hardware.NewBase(board.Name(), hardware.NewIdentifier("mainboard"), hardware.TypeMotherboard),
		board:        board,
		temperatures: temperatures,
		hwmonRoot:    hwmonRoot,
		log:          log.With("hardware", "mainboard"),
		temps:        make(map[string]*hardware.Sensor),
		fans:         make(map[string]*hardware.Sensor),
	}

	if stats, err := temperatures(); err == nil {
		keys := make([]string, 0, len(stats))
		for _, st := range stats {
			keys = append(keys, st.SensorKey)
		}
		sort.Strings(keys)
		for i, key := range keys {
			s := m.NewSensor(key, i, hardware.SensorTemperature)
			m.temps[key] = s
			m.ActivateSensor(s)
		}
	} else {
		m.log.Debug().Err(err).Msg("No temperature sensors")
	}

	for i, input := range m.fanInputs() {
		s := m.NewSensor(fanName(input), i, hardware.SensorFan)
		m.fans[input] = s
		m.ActivateSensor(s)
	}

	return m
}

func (m *Motherboard) fanInputs() []string {
	inputs, _ := filepath.Glob(filepath.Join(m.hwmonRoot, "hwmon*", "fan*_input"))
	sort.Strings(inputs)

	return inputs
}

// fanName labels a fan input with its chip name, e.g. "nct6775 fan2".
func fanName(input string) string {
	dir := filepath.Dir(input)
	fan := strings.TrimSuffix(filepath.Base(input), "_input")
	if label, err := os.ReadFile(filepath.Join(dir, fan+"_label")); err == nil {
		if l := strings.TrimSpace(string(label)); l != "" {
			fan = l
		}
	}
	if chip, err := os.ReadFile(filepath.Join(dir, "name")); err == nil {
		return strings.TrimSpace(string(chip)) + " " + fan
	}

	return fan
}

func (m *Motherboard) Update() {
	if len(m.temps) > 0 {
		stats, err := m.temperatures()
		if err != nil {
			m.log.Debug().Err(err).Msg("Failed to read temperatures")
		}
		for _, st := range stats {
			if s, ok := m.temps[st.SensorKey]; ok {
				s.SetValue(st.Temperature)
			}
		}
	}

	for input, s := range m.fans {
		raw, err := os.ReadFile(input)
		if err != nil {
			m.log.Debug().Err(err).Str("input", input).Msg("Failed to read fan")
			continue
		}
		rpm, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
		if err != nil {
			continue
		}
		s.SetValue(rpm)
	}
}

func (m *Motherboard) Report() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Mainboard Vendor: %s\n", m.board.Vendor)
	fmt.Fprintf(&b, "Mainboard Name: %s\n", m.board.Product)
	fmt.Fprintf(&b, "Mainboard Version: %s\n\n", m.board.Version)
	for _, input := range m.fanInputs() {
		fmt.Fprintf(&b, "Fan Input: %s\n", input)
	}
	b.WriteString("\n")

	return b.String()
}
