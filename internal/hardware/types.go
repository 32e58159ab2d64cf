package hardware

import "strings"

// HardwareType is the fixed category of a hardware node. Its name is
// persisted.
type HardwareType int

const (
	TypeMotherboard HardwareType = iota
	TypeSuperIO
	TypeCPU
	TypeMemory
	TypeGpuNvidia
	TypeGpuAmd
	TypeGpuIntel
	TypeStorage
	TypeNetwork
	TypeCooler
	TypeEmbeddedController
	TypePsu
	TypeBattery
)

var hardwareTypeNames = [...]string{
	"Motherboard", "SuperIO", "Cpu", "Memory", "GpuNvidia", "GpuAmd", "GpuIntel",
	"Storage", "Network", "Cooler", "EmbeddedController", "Psu", "Battery",
}

func (t HardwareType) String() string {
	if t < 0 || int(t) >= len(hardwareTypeNames) {
		return "Unknown"
	}
	return hardwareTypeNames[t]
}

// SensorType classifies a sensor. Declaration order is the report order.
type SensorType int

const (
	SensorVoltage SensorType = iota
	SensorVoltageOffset
	SensorCurrent
	SensorPower
	SensorClock
	SensorTemperature
	SensorTemperatureTjMax
	SensorLoad
	SensorFrequency
	SensorFan
	SensorFanLevel
	SensorFlow
	SensorControl
	SensorLevel
	SensorFactor
	SensorData
	SensorSmallData
	SensorThroughput
	SensorTimeSpan
	SensorEnergy
)

var sensorTypeNames = [...]string{
	"Voltage", "VoltageOffset", "Current", "Power", "Clock", "Temperature", "TemperatureTjMax",
	"Load", "Frequency", "Fan", "FanLevel", "Flow", "Control", "Level", "Factor", "Data",
	"SmallData", "Throughput", "TimeSpan", "Energy",
}

func (t SensorType) String() string {
	if t < 0 || int(t) >= len(sensorTypeNames) {
		return "Unknown"
	}
	return sensorTypeNames[t]
}

// Key is the identifier segment for the type.
func (t SensorType) Key() string {
	return strings.ToLower(t.String())
}

// Unit is the display unit of a sensor or control value.
type Unit string

const (
	UnitUndefined Unit = ""
	UnitVolt      Unit = "V"
	UnitMilliVolt Unit = "mV"
	UnitAmp       Unit = "A"
	UnitWatt      Unit = "W"
	UnitMHz       Unit = "MHz"
	UnitHz        Unit = "Hz"
	UnitCelsius   Unit = "°C"
	UnitPercent   Unit = "%"
	UnitRPM       Unit = "RPM"
	UnitLh        Unit = "L/h"
	UnitGB        Unit = "GB"
	UnitMB        Unit = "MB"
	UnitBs        Unit = "B/s"
	UnitSeconds   Unit = "s"
	UnitMWh       Unit = "mWh"
	UnitLevel     Unit = "Level"
)

// Unit derives the unit from the sensor type.
func (t SensorType) Unit() Unit {
	switch t {
	case SensorVoltage:
		return UnitVolt
	case SensorVoltageOffset:
		return UnitMilliVolt
	case SensorCurrent:
		return UnitAmp
	case SensorPower:
		return UnitWatt
	case SensorClock:
		return UnitMHz
	case SensorFrequency:
		return UnitHz
	case SensorTemperature, SensorTemperatureTjMax:
		return UnitCelsius
	case SensorLoad, SensorLevel, SensorControl:
		return UnitPercent
	case SensorFan:
		return UnitRPM
	case SensorFlow:
		return UnitLh
	case SensorData:
		return UnitGB
	case SensorSmallData:
		return UnitMB
	case SensorThroughput:
		return UnitBs
	case SensorTimeSpan:
		return UnitSeconds
	case SensorEnergy:
		return UnitMWh
	case SensorFanLevel:
		return UnitLevel
	default:
		return UnitUndefined
	}
}

// ControlType classifies a writable control.
type ControlType int

const (
	ControlGeneric ControlType = iota
	ControlVoltageOffset
	ControlFan
	ControlFanLevel
	ControlPowerLimit
)

var controlTypeNames = [...]string{"Control", "VoltageOffset", "Fan", "FanLevel", "PowerLimit"}

func (t ControlType) String() string {
	if t < 0 || int(t) >= len(controlTypeNames) {
		return "Unknown"
	}
	return controlTypeNames[t]
}

func (t ControlType) Key() string {
	return strings.ToLower(t.String())
}

func (t ControlType) Unit() Unit {
	switch t {
	case ControlVoltageOffset:
		return UnitMilliVolt
	case ControlFan:
		return UnitPercent
	case ControlFanLevel:
		return UnitLevel
	case ControlPowerLimit:
		return UnitWatt
	default:
		return UnitUndefined
	}
}

// FeedbackSensor is the sensor type that reads back a control of this type.
// A control is paired with the sensor of that type carrying the same index
// on the same hardware.
func (t ControlType) FeedbackSensor() SensorType {
	switch t {
	case ControlVoltageOffset:
		return SensorVoltageOffset
	case ControlFanLevel:
		return SensorFanLevel
	case ControlPowerLimit:
		return SensorPower
	default:
		return SensorControl
	}
}
