package hardware_test

import (
	"fmt"
	"testing"
	"time"

	"codeberg.org/mutker/hwcontrol/internal/errors"
	"codeberg.org/mutker/hwcontrol/internal/hardware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifier(t *testing.T) {
	cpu := hardware.NewIdentifier("IntelCPU", "0")
	assert.Equal(t, "/intelcpu/0", cpu.String())

	offset := hardware.NewSensor("CPU Cache", 2, hardware.SensorVoltageOffset, cpu)
	assert.Equal(t, "/intelcpu/0/voltageoffset/2", offset.Identifier().String())

	ctrl := hardware.NewControl("Fan", 1, hardware.NewIdentifier("dell", "XPS 15"), hardware.ControlFanLevel, 0, 2, nil, nil)
	assert.Equal(t, "/dell/xps 15/fanlevel/1", ctrl.Identifier().String())

	assert.Equal(t, "/a-b/c", hardware.NewIdentifier("a/b", "", "C").String())
	assert.Equal(t, offset.Identifier(), hardware.ParseIdentifier(offset.Identifier().String()))
	assert.True(t, offset.Identifier().HasPrefix(cpu))
	assert.False(t, cpu.HasPrefix(offset.Identifier()))
}

func TestSensorValueRounding(t *testing.T) {
	s := hardware.NewSensor("Core", 0, hardware.SensorTemperature, hardware.NewIdentifier("cpu"))
	before := time.Now()

	s.SetValue(41.23456)

	assert.Equal(t, 41.23, s.Value())
	assert.False(t, s.ValueTime().Before(before))

	s.SetValue(-999.0234375)
	assert.Equal(t, -999.02, s.Value())
}

func TestSensorUnits(t *testing.T) {
	tests := []struct {
		typ  hardware.SensorType
		unit hardware.Unit
		key  string
	}{
		{hardware.SensorVoltage, hardware.UnitVolt, "voltage"},
		{hardware.SensorVoltageOffset, hardware.UnitMilliVolt, "voltageoffset"},
		{hardware.SensorTemperatureTjMax, hardware.UnitCelsius, "temperaturetjmax"},
		{hardware.SensorFan, hardware.UnitRPM, "fan"},
		{hardware.SensorFanLevel, hardware.UnitLevel, "fanlevel"},
		{hardware.SensorData, hardware.UnitGB, "data"},
		{hardware.SensorFactor, hardware.UnitUndefined, "factor"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.unit, tt.typ.Unit(), tt.typ.String())
		assert.Equal(t, tt.key, tt.typ.Key())
	}
}

func TestSensorParameters(t *testing.T) {
	s := hardware.NewSensor("CPU Core", 0, hardware.SensorVoltageOffset, hardware.NewIdentifier("intelcpu", "0"))
	s.AddRangeParameter(-1000, 1000)

	_, err := s.DefaultValue()
	assert.True(t, errors.HasCode(err, hardware.ErrNoDefaultValue))

	s.AddValueParameter("mVOffset", "Voltage offset", 0)
	v, err := s.DefaultValue()
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)

	min, max, ok := s.Range()
	require.True(t, ok)
	assert.Equal(t, -1000.0, min)
	assert.Equal(t, 1000.0, max)

	s.AddValueParameter("Second", "", 1)
	_, err = s.DefaultValue()
	assert.True(t, errors.HasCode(err, hardware.ErrParameterConflict))
	assert.Error(t, s.ValidateParameters())
}

func TestControlRejectsOutOfRange(t *testing.T) {
	calls := 0
	c := hardware.NewControl("CPU Core", 0, hardware.NewIdentifier("intelcpu", "0"), hardware.ControlVoltageOffset, -150, 150,
		func(int, float64) (float64, error) {
			calls++
			return 0, nil
		}, nil)

	for _, v := range []float64{-150.01, 151, 1e9} {
		_, err := c.ChangeValue(v)
		assert.True(t, errors.HasCode(err, hardware.ErrOutOfRange), "%g", v)
	}
	assert.Zero(t, calls, "backend must not be called for rejected values")
}

func TestControlChangeValue(t *testing.T) {
	var gotIndex int
	c := hardware.NewControl("Fan 2", 1, hardware.NewIdentifier("gpu"), hardware.ControlFan, 30, 100,
		func(index int, v float64) (float64, error) {
			gotIndex = index
			return v - 1, nil
		},
		func(int, float64) error { return fmt.Errorf("busy") })

	applied, err := c.ChangeValue(60)
	require.NoError(t, err)
	assert.Equal(t, 59.0, applied)
	assert.Equal(t, 59.0, c.Value())
	assert.Equal(t, 1, gotIndex)

	err = c.SetDefaultValue(60)
	assert.True(t, errors.HasCode(err, hardware.ErrWriteFailed))
	assert.Contains(t, err.Error(), "busy")
}

func TestControlWithoutWritePath(t *testing.T) {
	c := hardware.NewControl("Fan", 0, hardware.NewIdentifier("x"), hardware.ControlFanLevel, 0, 2, nil, nil)

	_, err := c.ChangeValue(1)
	assert.True(t, errors.HasCode(err, hardware.ErrNoWritePath))
	assert.True(t, errors.HasCode(c.SetDefaultValue(1), hardware.ErrNoWritePath))
}

func TestControlFeedbackSensor(t *testing.T) {
	assert.Equal(t, hardware.SensorVoltageOffset, hardware.ControlVoltageOffset.FeedbackSensor())
	assert.Equal(t, hardware.SensorFanLevel, hardware.ControlFanLevel.FeedbackSensor())
	assert.Equal(t, hardware.SensorControl, hardware.ControlFan.FeedbackSensor())
	assert.Equal(t, hardware.SensorPower, hardware.ControlPowerLimit.FeedbackSensor())
}

type stubHardware struct {
	*hardware.Base
	sub []hardware.Hardware
}

func (s *stubHardware) Update()                          {}
func (s *stubHardware) SubHardware() []hardware.Hardware { return s.sub }

func TestBaseActivation(t *testing.T) {
	b := hardware.NewBase("Board", hardware.NewIdentifier("lpc", "nct6798d"), hardware.TypeSuperIO)
	s1 := b.NewSensor("Fan #1", 0, hardware.SensorFan)
	s2 := b.NewSensor("Fan #2", 1, hardware.SensorFan)

	b.ActivateSensor(s1)
	b.ActivateSensor(s2)
	b.ActivateSensor(s1)
	assert.Len(t, b.Sensors(), 2)

	b.DeactivateSensor(s1)
	assert.Equal(t, []*hardware.Sensor{s2}, b.Sensors())
	assert.Equal(t, hardware.DefaultUpdateDelay, b.UpdateDelay())
	assert.Equal(t, "/lpc/nct6798d/fan/1", s2.Identifier().String())
}

func TestFlatten(t *testing.T) {
	leaf := &stubHardware{Base: hardware.NewBase("leaf", hardware.NewIdentifier("leaf"), hardware.TypeSuperIO)}
	root := &stubHardware{
		Base: hardware.NewBase("root", hardware.NewIdentifier("root"), hardware.TypeMotherboard),
		sub:  []hardware.Hardware{leaf},
	}

	flat := hardware.Flatten(root)
	require.Len(t, flat, 2)
	assert.Equal(t, "root", flat[0].Name())
	assert.Equal(t, "leaf", flat[1].Name())
}

func TestSortSensors(t *testing.T) {
	id := hardware.NewIdentifier("cpu")
	load := hardware.NewSensor("Total", 0, hardware.SensorLoad, id)
	temp1 := hardware.NewSensor("Core #2", 1, hardware.SensorTemperature, id)
	temp0 := hardware.NewSensor("Core #1", 0, hardware.SensorTemperature, id)
	volt := hardware.NewSensor("VID", 0, hardware.SensorVoltage, id)

	sensors := []*hardware.Sensor{load, temp1, volt, temp0}
	hardware.SortSensors(sensors)

	assert.Equal(t, []*hardware.Sensor{volt, temp0, temp1, load}, sensors)
}
