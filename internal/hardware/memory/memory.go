// Package memory reports physical and virtual memory usage.
package memory

import (
	"github.com/shirou/gopsutil/v3/mem"

	"codeberg.org/mutker/hwcontrol/internal/hardware"
	"codeberg.org/mutker/hwcontrol/internal/logger"
)

const bytesPerGB = 1024 * 1024 * 1024

type (
	VirtualFunc func() (*mem.VirtualMemoryStat, error)
	SwapFunc    func() (*mem.SwapMemoryStat, error)
)

// Memory is the generic memory backend. Virtual memory is physical memory
// plus swap.
type Memory struct {
	*hardware.Base

	virtual VirtualFunc
	swap    SwapFunc
	log     logger.Logger

	physicalUsed      *hardware.Sensor
	physicalAvailable *hardware.Sensor
	virtualUsed       *hardware.Sensor
	virtualAvailable  *hardware.Sensor
	physicalLoad      *hardware.Sensor
	virtualLoad       *hardware.Sensor
}

func newMemory(virtual VirtualFunc, swap SwapFunc, log logger.Logger) *Memory {
	m := &Memory{
		Base:    hardware.NewBase("Generic Memory", hardware.NewIdentifier("ram"), hardware.TypeMemory),
		virtual: virtual,
		swap:    swap,
		log:     log.With("hardware", "ram"),
	}

	m.physicalUsed = m.NewSensor("Memory Used", 0, hardware.SensorData)
	m.physicalAvailable = m.NewSensor("Memory Available", 1, hardware.SensorData)
	m.virtualUsed = m.NewSensor("Virtual Memory Used", 2, hardware.SensorData)
	m.virtualAvailable = m.NewSensor("Virtual Memory Available", 3, hardware.SensorData)
	m.physicalLoad = m.NewSensor("Memory", 0, hardware.SensorLoad)
	m.physicalLoad.AddRangeParameter(0, 100)
	m.virtualLoad = m.NewSensor("Virtual Memory", 1, hardware.SensorLoad)
	m.virtualLoad.AddRangeParameter(0, 100)

	for _, s := range []*hardware.Sensor{
		m.physicalUsed, m.physicalAvailable, m.virtualUsed, m.virtualAvailable, m.physicalLoad, m.virtualLoad,
	} {
		m.ActivateSensor(s)
	}

	return m
}

func (m *Memory) Update() {
	vm, err := m.virtual()
	if err != nil || vm == nil {
		m.log.Debug().Err(err).Msg("Failed to read memory status")
		m.zero()
		return
	}

	used := float64(vm.Total - vm.Available)
	m.physicalUsed.SetValue(used / bytesPerGB)
	m.physicalAvailable.SetValue(float64(vm.Available) / bytesPerGB)
	m.physicalLoad.SetValue(percent(used, float64(vm.Total)))

	virtualTotal := float64(vm.Total)
	virtualUsed := used
	if sw, err := m.swap(); err == nil && sw != nil {
		virtualTotal += float64(sw.Total)
		virtualUsed += float64(sw.Used)
	} else {
		m.log.Debug().Err(err).Msg("Failed to read swap status")
	}

	m.virtualUsed.SetValue(virtualUsed / bytesPerGB)
	m.virtualAvailable.SetValue((virtualTotal - virtualUsed) / bytesPerGB)
	m.virtualLoad.SetValue(percent(virtualUsed, virtualTotal))
}

func (m *Memory) zero() {
	for _, s := range m.Sensors() {
		s.SetValue(0)
	}
}

func percent(used, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return 100 * used / total
}
