// Package gpu implements the NVIDIA backend on top of NVML: temperature,
// load, power and fan duty sensors, with fan duty and power limit controls.
package gpu

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/hwcontrol/internal/hardware"
	"codeberg.org/mutker/hwcontrol/internal/logger"
)

const (
	milliWattsToWatts = 1000
	updateDelay       = time.Second

	powerDrawIndex  = 0
	powerLimitIndex = 1
)

// GPU is one NVIDIA device.
type GPU struct {
	*hardware.Base

	dev  device
	uuid string
	log  logger.Logger

	temperature *hardware.Sensor
	coreLoad    *hardware.Sensor
	memoryLoad  *hardware.Sensor
	powerDraw   *hardware.Sensor
	powerLimit  *hardware.Sensor
	fanDuty     []*hardware.Sensor

	mu           sync.Mutex
	fanControls  []*hardware.Control
	limitControl *hardware.Control
	defaultLimit float64
	manualFans   map[int]bool
}

func fanName(i int) string {
	return "GPU Fan #" + strconv.Itoa(i+1)
}

func newGPU(index int, dev device, log logger.Logger) *GPU {
	name, err := dev.Name()
	if err != nil || name == "" {
		name = "NVIDIA GPU"
	}
	uuid, _ := dev.UUID()

	g := &GPU{
		Base:       hardware.NewBase(name, hardware.NewIdentifier("gpu-nvidia", strconv.Itoa(index)), hardware.TypeGpuNvidia),
		dev:        dev,
		uuid:       uuid,
		log:        log.With("hardware", name),
		manualFans: make(map[int]bool),
	}
	g.SetUpdateDelay(updateDelay)

	g.temperature = g.NewSensor("GPU Core", 0, hardware.SensorTemperature)
	g.ActivateSensor(g.temperature)

	g.coreLoad = g.NewSensor("GPU Core", 0, hardware.SensorLoad)
	g.coreLoad.AddRangeParameter(0, 100)
	g.ActivateSensor(g.coreLoad)
	g.memoryLoad = g.NewSensor("GPU Memory Controller", 1, hardware.SensorLoad)
	g.memoryLoad.AddRangeParameter(0, 100)
	g.ActivateSensor(g.memoryLoad)

	g.powerDraw = g.NewSensor("GPU Package", powerDrawIndex, hardware.SensorPower)
	g.ActivateSensor(g.powerDraw)

	g.initFans()
	g.initPowerLimit()

	return g
}

func (g *GPU) initFans() {
	count, err := g.dev.NumFans()
	if err != nil {
		g.log.Debug().Err(err).Msg("No controllable fans")
		return
	}

	minSpeed, maxSpeed, err := g.dev.FanSpeedRange()
	if err != nil {
		g.log.Debug().Err(err).Msg("Fan speed limits unavailable, using 0-100")
		minSpeed, maxSpeed = 0, 100
	}

	g.fanDuty = make([]*hardware.Sensor, count)
	g.fanControls = make([]*hardware.Control, count)
	for i := 0; i < count; i++ {
		s := g.NewSensor(fanName(i), i, hardware.SensorControl)
		s.AddRangeParameter(float64(minSpeed), float64(maxSpeed))
		g.fanDuty[i] = s
		g.ActivateSensor(s)

		c := g.NewControl(fanName(i), i, hardware.ControlFan, float64(minSpeed), float64(maxSpeed),
			g.setFanSpeed, g.setDefaultFanSpeed)
		g.fanControls[i] = c
		g.ActivateControl(c)
	}
}

func (g *GPU) initPowerLimit() {
	minLimit, maxLimit, err := g.dev.PowerLimitConstraints()
	if err != nil {
		g.log.Debug().Err(err).Msg("Power limit not adjustable")
		return
	}
	defaultLimit, err := g.dev.DefaultPowerLimit()
	if err != nil {
		g.log.Debug().Err(err).Msg("Default power limit unavailable")
		return
	}
	g.defaultLimit = float64(defaultLimit / milliWattsToWatts)

	g.powerLimit = g.NewSensor("GPU Power Limit", powerLimitIndex, hardware.SensorPower)
	g.powerLimit.AddRangeParameter(float64(minLimit/milliWattsToWatts), float64(maxLimit/milliWattsToWatts))
	g.ActivateSensor(g.powerLimit)

	g.limitControl = g.NewControl("GPU Power Limit", powerLimitIndex, hardware.ControlPowerLimit,
		float64(minLimit/milliWattsToWatts), float64(maxLimit/milliWattsToWatts),
		g.setPowerLimit,
		func(_ int, _ float64) error {
			_, err := g.setPowerLimit(powerLimitIndex, g.defaultLimit)
			return err
		})
	g.ActivateControl(g.limitControl)
}

func (g *GPU) setFanSpeed(fan int, duty float64) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	speed := int(math.RoundToEven(duty))
	if err := g.dev.SetFanSpeed(fan, speed); err != nil {
		return 0, err
	}
	g.manualFans[fan] = true
	g.fanDuty[fan].SetValue(float64(speed))
	g.log.Debug().Int("fan", fan).Int("speed", speed).Msg("Fan speed set")

	return float64(speed), nil
}

func (g *GPU) setDefaultFanSpeed(fan int, _ float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.dev.SetDefaultFanSpeed(fan); err != nil {
		return err
	}
	delete(g.manualFans, fan)
	g.log.Debug().Int("fan", fan).Msg("Fan returned to automatic control")

	return nil
}

func (g *GPU) setPowerLimit(_ int, watts float64) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.dev.SetPowerLimit(uint32(math.RoundToEven(watts)) * milliWattsToWatts); err != nil {
		return 0, err
	}
	applied, err := g.dev.PowerLimit()
	if err != nil {
		return 0, err
	}
	limit := float64(applied / milliWattsToWatts)
	g.powerLimit.SetValue(limit)
	g.log.Debug().Float64("limit", limit).Msg("Power limit set")

	return limit, nil
}

// Update refreshes every sensor; each NVML call fails independently.
func (g *GPU) Update() {
	if t, err := g.dev.Temperature(); err == nil {
		g.temperature.SetValue(float64(t))
	}
	if core, memory, err := g.dev.Utilization(); err == nil {
		g.coreLoad.SetValue(float64(core))
		g.memoryLoad.SetValue(float64(memory))
	}
	if p, err := g.dev.PowerUsage(); err == nil {
		g.powerDraw.SetValue(float64(p) / milliWattsToWatts)
	}
	if g.powerLimit != nil {
		if l, err := g.dev.PowerLimit(); err == nil {
			g.powerLimit.SetValue(float64(l / milliWattsToWatts))
			g.limitControl.SetCurrent(float64(l / milliWattsToWatts))
		}
	}
	for i, s := range g.fanDuty {
		speed, err := g.dev.FanSpeed(i)
		if err != nil {
			g.log.Debug().Err(err).Int("fan", i).Msg("Failed to get fan speed")
			continue
		}
		s.SetValue(float64(speed))
		g.fanControls[i].SetCurrent(float64(speed))
	}
}

// Close hands any manually driven fan back to the driver.
func (g *GPU) Close() error {
	g.mu.Lock()
	fans := make([]int, 0, len(g.manualFans))
	for fan := range g.manualFans {
		fans = append(fans, fan)
	}
	g.mu.Unlock()

	var errs []error
	for _, fan := range fans {
		if err := g.setDefaultFanSpeed(fan, 0); err != nil {
			errs = append(errs, err)
		}
	}

	return joinErrors(errs)
}

func (g *GPU) Report() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Name: %s\n", g.Name())
	fmt.Fprintf(&b, "UUID: %s\n", g.uuid)
	fmt.Fprintf(&b, "Fans: %d\n", len(g.fanDuty))
	if g.limitControl != nil {
		fmt.Fprintf(&b, "Power Limit: %g W (%g - %g W, default %g W)\n",
			g.limitControl.Value(), g.limitControl.Min(), g.limitControl.Max(), g.defaultLimit)
	}
	b.WriteString("\n")

	return b.String()
}
