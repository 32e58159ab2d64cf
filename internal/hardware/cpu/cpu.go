// Package cpu implements the processor backend: per-core load for every
// vendor, plus temperatures, clocks, package power, VID and voltage-offset
// controls on Intel processors through model-specific registers.
package cpu

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/hwcontrol/internal/hardware"
	"codeberg.org/mutker/hwcontrol/internal/logger"
	"codeberg.org/mutker/hwcontrol/internal/ring0"
)

const (
	msrPlatformInfo       = 0xCE
	msrPerfStatus         = 0x198
	msrThermStatus        = 0x19C
	msrTemperatureTarget  = 0x1A2
	msrTurboRatioLimit    = 0x1AD
	msrPackageThermStatus = 0x1B1
	msrRaplPowerUnit      = 0x606
	msrPkgEnergyStatus    = 0x611
	msrDramPowerLimit     = 0x618
	msrDramEnergyStatus   = 0x619
	msrPP0EnergyStatus    = 0x639
	msrPP1EnergyStatus    = 0x641
	defaultTjMax          = 100.0
	thermalReadingValid   = 0x80000000
	updateDelay           = time.Second
	offsetSensorRange     = 1000.0
	offsetControlRange    = 150.0
	offsetParameterName   = "mVOffset"
	offsetParameterDesc   = "Voltage offset applied by the processor in mV."
)

var (
	energyStatusMsrs = []uint32{msrPkgEnergyStatus, msrPP0EnergyStatus, msrPP1EnergyStatus, msrDramEnergyStatus}
	powerLabels      = []string{"CPU Package", "CPU Cores", "CPU Graphics", "CPU Memory"}
	reportMsrs       = []uint32{
		msrPlatformInfo, msrPerfStatus, msrThermStatus, msrTemperatureTarget, msrPackageThermStatus,
		msrRaplPowerUnit, msrPkgEnergyStatus, msrDramPowerLimit, msrDramEnergyStatus,
		msrPP0EnergyStatus, msrPP1EnergyStatus, msrTurboRatioLimit, msrOcMailbox,
	}
)

// CPU is one physical processor package.
type CPU struct {
	*hardware.Base

	access ring0.Access
	log    logger.Logger
	pkg    Package
	load   *loadSampler

	totalLoad *hardware.Sensor
	coreLoads []*hardware.Sensor

	intel           bool
	arch            microArchitecture
	tjMax           []float64
	tSlope          float64
	tscMultiplier   float64
	turboMultiplier float64
	energyUnit      float64
	lastEnergy      []uint32

	coreTemps      []*hardware.Sensor
	distToTjMax    []*hardware.Sensor
	packageTemp    *hardware.Sensor
	busClock       *hardware.Sensor
	coreClocks     []*hardware.Sensor
	power          []*hardware.Sensor
	coreVoltage    *hardware.Sensor
	coreVIDs       []*hardware.Sensor
	offsets        []*hardware.Sensor
	offsetControls []*hardware.Control
}

func coreName(i int) string {
	return "CPU Core #" + strconv.Itoa(i+1)
}

func newCPU(pkg Package, access ring0.Access, times TimesFunc, log logger.Logger) *CPU {
	intel := pkg.Vendor == vendorIntel
	prefix := "genericcpu"
	if intel {
		prefix = "intelcpu"
	}

	name := pkg.Name
	if name == "" {
		name = "CPU"
	}

	c := &CPU{
		Base:   hardware.NewBase(name, hardware.NewIdentifier(prefix, strconv.Itoa(pkg.Index)), hardware.TypeCPU),
		access: access,
		log:    log.With("hardware", name),
		pkg:    pkg,
		intel:  intel,
		tSlope: 1,
	}
	c.SetUpdateDelay(updateDelay)

	c.initLoad(times)
	if intel {
		c.initIntel()
	}
	c.Update()

	return c
}

func (c *CPU) initLoad(times TimesFunc) {
	c.load = newLoadSampler(times)

	c.totalLoad = c.NewSensor("CPU Total", 0, hardware.SensorLoad)
	c.totalLoad.AddRangeParameter(0, 100)
	c.ActivateSensor(c.totalLoad)

	c.coreLoads = make([]*hardware.Sensor, len(c.pkg.Cores))
	for i := range c.pkg.Cores {
		c.coreLoads[i] = c.NewSensor(coreName(i), i+1, hardware.SensorLoad)
		c.coreLoads[i].AddRangeParameter(0, 100)
		c.ActivateSensor(c.coreLoads[i])
	}
}

func (c *CPU) readMsr(index uint32, core int) (eax, edx uint32, ok bool) {
	return c.access.ReadMsrOnCPU(index, c.pkg.Affinity(core))
}

func (c *CPU) initIntel() {
	cores := len(c.pkg.Cores)

	arch, fixed := classify(c.pkg.Family, c.pkg.Model, c.pkg.Stepping)
	c.arch = arch
	c.tjMax = make([]float64, cores)
	for i := range c.tjMax {
		c.tjMax[i] = fixed
		if fixed != 0 {
			continue
		}
		c.tjMax[i] = defaultTjMax
		if eax, _, ok := c.readMsr(msrTemperatureTarget, i); ok {
			c.tjMax[i] = float64((eax >> 16) & 0xFF)
		}
	}

	switch {
	case arch == archUnknown:
	case arch.legacyMultiplier():
		if _, edx, ok := c.access.ReadMsr(msrPerfStatus); ok {
			c.tscMultiplier = float64((edx>>8)&0x1F) + 0.5*float64((edx>>14)&1)
		}
	default:
		if eax, _, ok := c.access.ReadMsr(msrPlatformInfo); ok {
			c.tscMultiplier = float64((eax >> 8) & 0xFF)
		}
	}
	if arch != archUnknown {
		if eax, _, ok := c.access.ReadMsr(msrTurboRatioLimit); ok {
			c.turboMultiplier = float64((eax >> 8) & 0xFF)
		}
	}

	c.initTemperatures()
	c.initClocks()
	c.initPower()
	c.initVoltages()
	c.initOffsets()
}

func (c *CPU) initTemperatures() {
	if c.arch == archUnknown {
		return
	}

	if c.pkg.Flags["dts"] {
		c.coreTemps = make([]*hardware.Sensor, len(c.pkg.Cores))
		c.distToTjMax = make([]*hardware.Sensor, len(c.pkg.Cores))
		for i := range c.pkg.Cores {
			c.coreTemps[i] = c.NewSensor(coreName(i), i, hardware.SensorTemperature)
			c.coreTemps[i].AddRangeParameter(0, c.tjMax[i])
			c.ActivateSensor(c.coreTemps[i])

			c.distToTjMax[i] = c.NewSensor(coreName(i)+" Distance to TjMax", i, hardware.SensorTemperatureTjMax)
			c.distToTjMax[i].AddRangeParameter(0, c.tjMax[i])
			c.ActivateSensor(c.distToTjMax[i])
		}
	}

	if c.pkg.Flags["pts"] {
		c.packageTemp = c.NewSensor("CPU Package", len(c.coreTemps), hardware.SensorTemperature)
		c.packageTemp.AddRangeParameter(0, c.packageTjMax())
		c.ActivateSensor(c.packageTemp)
	}
}

func (c *CPU) packageTjMax() float64 {
	if len(c.tjMax) == 0 {
		return defaultTjMax
	}
	return c.tjMax[0]
}

func (c *CPU) busFrequency() float64 {
	if c.tscMultiplier <= 0 {
		return 0
	}
	return c.pkg.NominalMHz / c.tscMultiplier
}

func (c *CPU) initClocks() {
	c.busClock = c.NewSensor("Bus Speed", 0, hardware.SensorClock)
	c.busClock.AddRangeParameter(0, c.busFrequency())

	c.coreClocks = make([]*hardware.Sensor, len(c.pkg.Cores))
	for i := range c.pkg.Cores {
		c.coreClocks[i] = c.NewSensor(coreName(i), i+1, hardware.SensorClock)
		c.coreClocks[i].AddRangeParameter(0, c.busFrequency()*c.turboMultiplier)
		if c.pkg.Flags["tsc"] && c.arch != archUnknown {
			c.ActivateSensor(c.coreClocks[i])
		}
	}
}

func (c *CPU) initPower() {
	if !c.arch.hasRapl() {
		return
	}

	eax, _, ok := c.access.ReadMsr(msrRaplPowerUnit)
	if !ok {
		return
	}
	shift := (eax >> 8) & 0x1F
	switch c.arch {
	case archSilvermont, archAirmont:
		c.energyUnit = 1.0e-6 * float64(uint64(1)<<shift)
	default:
		c.energyUnit = 1.0 / float64(uint64(1)<<shift)
	}

	c.power = make([]*hardware.Sensor, len(energyStatusMsrs))
	c.lastEnergy = make([]uint32, len(energyStatusMsrs))
	for i, msr := range energyStatusMsrs {
		eax, _, ok := c.access.ReadMsr(msr)
		if !ok {
			continue
		}
		c.lastEnergy[i] = eax
		c.power[i] = c.NewSensor(powerLabels[i], i, hardware.SensorPower)
		c.power[i].SetValue(0)
		c.ActivateSensor(c.power[i])
	}
}

func (c *CPU) initVoltages() {
	if _, edx, ok := c.access.ReadMsr(msrPerfStatus); ok && edx&0xFFFF > 0 {
		c.coreVoltage = c.NewSensor("CPU Core", 0, hardware.SensorVoltage)
		c.ActivateSensor(c.coreVoltage)
	}

	c.coreVIDs = make([]*hardware.Sensor, len(c.pkg.Cores))
	for i := range c.pkg.Cores {
		c.coreVIDs[i] = c.NewSensor(coreName(i), i+1, hardware.SensorVoltage)
		c.ActivateSensor(c.coreVIDs[i])
	}
}

func (c *CPU) initOffsets() {
	if _, _, ok := c.access.ReadMsr(msrOcMailbox); !ok {
		return
	}

	c.offsets = make([]*hardware.Sensor, len(offsetPlanes))
	c.offsetControls = make([]*hardware.Control, len(offsetPlanes))
	for i, label := range offsetPlanes {
		s := c.NewSensor(label, i, hardware.SensorVoltageOffset)
		s.AddRangeParameter(-offsetSensorRange, offsetSensorRange)
		s.AddValueParameter(offsetParameterName, offsetParameterDesc, 0)
		c.offsets[i] = s
		c.ActivateSensor(s)

		ctrl := c.NewControl(label, i, hardware.ControlVoltageOffset, -offsetControlRange, offsetControlRange,
			c.writeOffset,
			func(plane int, mv float64) error {
				_, err := c.writeOffset(plane, mv)
				return err
			})
		c.offsetControls[i] = ctrl
		c.ActivateControl(ctrl)
	}
}

func (c *CPU) writeOffset(plane int, mv float64) (float64, error) {
	applied, err := WriteVoltageOffset(c.access, plane, mv)
	if err != nil {
		return 0, err
	}
	c.offsets[plane].SetValue(applied)
	c.log.Info().Str("plane", offsetPlanes[plane]).Float64("requested", mv).Float64("applied", applied).
		Msg("Voltage offset written")

	return applied, nil
}

// Update refreshes every sensor; each reading fails independently.
func (c *CPU) Update() {
	c.updateLoad()
	if !c.intel {
		return
	}
	c.updateTemperatures()
	c.updateClocks()
	c.updatePower()
	c.updateVoltages()
	c.updateOffsets()
}

func (c *CPU) updateLoad() {
	loads, err := c.load.sample()
	if err != nil {
		c.log.Debug().Err(err).Msg("Failed to sample CPU times")
		return
	}

	var total float64
	var n int
	for i, threads := range c.pkg.Cores {
		var sum float64
		var k int
		for _, t := range threads {
			if v, ok := loads[t]; ok {
				sum += v
				k++
			}
		}
		if k == 0 {
			continue
		}
		c.coreLoads[i].SetValue(sum / float64(k))
		total += sum
		n += k
	}
	if n > 0 {
		c.totalLoad.SetValue(total / float64(n))
	}
}

func (c *CPU) updateTemperatures() {
	for i, s := range c.coreTemps {
		eax, _, ok := c.readMsr(msrThermStatus, i)
		if !ok || eax&thermalReadingValid == 0 {
			continue
		}
		deltaT := float64((eax & 0x007F0000) >> 16)
		s.SetValue(c.tjMax[i] - c.tSlope*deltaT)
		c.distToTjMax[i].SetValue(deltaT)
	}

	if c.packageTemp != nil {
		eax, _, ok := c.readMsr(msrPackageThermStatus, 0)
		if ok && eax&thermalReadingValid != 0 {
			deltaT := float64((eax & 0x007F0000) >> 16)
			c.packageTemp.SetValue(c.packageTjMax() - c.tSlope*deltaT)
		} else {
			c.packageTemp.SetValue(0)
		}
	}
}

func (c *CPU) updateClocks() {
	if !c.pkg.Flags["tsc"] || c.tscMultiplier <= 0 {
		return
	}

	bus := c.busFrequency()
	for i, s := range c.coreClocks {
		eax, _, ok := c.readMsr(msrPerfStatus, i)
		if !ok {
			s.SetValue(c.pkg.NominalMHz)
			continue
		}
		switch {
		case c.arch == archNehalem:
			s.SetValue(float64(eax&0xFF) * bus)
		case c.arch.legacyMultiplier() || c.arch == archUnknown:
			s.SetValue((float64((eax>>8)&0x1F) + 0.5*float64((eax>>14)&1)) * bus)
		default:
			s.SetValue(float64((eax>>8)&0xFF) * bus)
		}
	}

	if bus > 0 {
		c.busClock.SetValue(bus)
		c.ActivateSensor(c.busClock)
	}
}

func (c *CPU) updatePower() {
	for i, s := range c.power {
		if s == nil {
			continue
		}
		eax, _, ok := c.access.ReadMsr(energyStatusMsrs[i])
		if !ok {
			continue
		}
		dt := time.Since(s.ValueTime()).Seconds()
		if dt <= 0 {
			continue
		}
		consumed := eax - c.lastEnergy[i]
		s.SetValue(c.energyUnit * float64(consumed) / dt)
		c.lastEnergy[i] = eax
	}
}

func (c *CPU) updateVoltages() {
	if c.coreVoltage != nil {
		if _, edx, ok := c.access.ReadMsr(msrPerfStatus); ok {
			c.coreVoltage.SetValue(float64(edx&0xFFFF) / float64(1<<13))
		}
	}
	for i, s := range c.coreVIDs {
		if _, edx, ok := c.readMsr(msrPerfStatus, i); ok && edx&0xFFFF > 0 {
			s.SetValue(float64(edx&0xFFFF) / float64(1<<13))
		}
	}
}

func (c *CPU) updateOffsets() {
	for i, s := range c.offsets {
		mv, err := ReadVoltageOffset(c.access, i)
		if err != nil {
			c.log.Debug().Err(err).Str("plane", offsetPlanes[i]).Msg("Failed to read voltage offset")
			continue
		}
		s.SetValue(mv)
		c.offsetControls[i].SetCurrent(mv)
	}
}

// Report lists the architecture and a register dump of every core.
func (c *CPU) Report() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Processor: %s\n", c.Name())
	fmt.Fprintf(&b, "Vendor: %s\n", c.pkg.Vendor)
	fmt.Fprintf(&b, "Family: 0x%X Model: 0x%X Stepping: 0x%X\n", c.pkg.Family, c.pkg.Model, c.pkg.Stepping)
	fmt.Fprintf(&b, "Cores: %d Threads: %d\n", len(c.pkg.Cores), len(c.pkg.Threads()))
	if !c.intel {
		b.WriteString("\n")
		return b.String()
	}

	fmt.Fprintf(&b, "MicroArchitecture: %s\n", c.arch)
	fmt.Fprintf(&b, "Time Stamp Counter Multiplier: %g\n\n", c.tscMultiplier)

	for i := range c.pkg.Cores {
		fmt.Fprintf(&b, "MSR Core #%d (CPU %d)\n\n", i+1, c.pkg.Affinity(i))
		b.WriteString(" MSR       EDX       EAX\n")
		for _, msr := range reportMsrs {
			if eax, edx, ok := c.readMsr(msr, i); ok {
				fmt.Fprintf(&b, " %08X  %08X  %08X\n", msr, edx, eax)
			}
		}
		b.WriteString("\n")
	}

	return b.String()
}
