package gpu

import (
	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"codeberg.org/mutker/hwcontrol/internal/errors"
)

// library is the subset of NVML the group needs to enumerate devices.
type library interface {
	Initialize() error
	Shutdown() error
	DeviceCount() (int, error)
	Device(index int) (device, error)
}

// device is one NVML handle. Power values are in milliwatts.
type device interface {
	Name() (string, error)
	UUID() (string, error)
	Temperature() (uint32, error)
	Utilization() (core, memory uint32, err error)
	PowerUsage() (uint32, error)
	PowerLimit() (uint32, error)
	PowerLimitConstraints() (min, max uint32, err error)
	DefaultPowerLimit() (uint32, error)
	SetPowerLimit(milliwatts uint32) error
	NumFans() (int, error)
	FanSpeed(fan int) (uint32, error)
	FanSpeedRange() (min, max int, err error)
	SetFanSpeed(fan, speed int) error
	SetDefaultFanSpeed(fan int) error
}

type nvmlWrapper struct {
	initialized bool
}

func (w *nvmlWrapper) Initialize() error {
	if w.initialized {
		return nil
	}

	if ret := nvml.Init(); !isNVMLSuccess(ret) {
		return errors.New().Wrap(ErrInitFailed, newNVMLError(ret))
	}
	w.initialized = true

	return nil
}

func (w *nvmlWrapper) Shutdown() error {
	if !w.initialized {
		return nil
	}

	if ret := nvml.Shutdown(); !isNVMLSuccess(ret) {
		return errors.New().Wrap(ErrShutdownFailed, newNVMLError(ret))
	}
	w.initialized = false

	return nil
}

func (w *nvmlWrapper) DeviceCount() (int, error) {
	errFactory := errors.New()
	if !w.initialized {
		return 0, errFactory.New(ErrNotInitialized)
	}

	count, ret := nvml.DeviceGetCount()
	if !isNVMLSuccess(ret) {
		return 0, errFactory.Wrap(ErrDeviceCountFailed, newNVMLError(ret))
	}

	return count, nil
}

func (w *nvmlWrapper) Device(index int) (device, error) {
	errFactory := errors.New()
	if !w.initialized {
		return nil, errFactory.New(ErrNotInitialized)
	}

	d, ret := nvml.DeviceGetHandleByIndex(index)
	if !isNVMLSuccess(ret) {
		return nil, errFactory.Wrap(ErrDeviceNotFound, newNVMLError(ret))
	}

	return &nvmlDevice{d: d}, nil
}

type nvmlDevice struct {
	d nvml.Device
}

func (n *nvmlDevice) Name() (string, error) {
	name, ret := n.d.GetName()
	return name, newNVMLError(ret)
}

func (n *nvmlDevice) UUID() (string, error) {
	uuid, ret := n.d.GetUUID()
	return uuid, newNVMLError(ret)
}

func (n *nvmlDevice) Temperature() (uint32, error) {
	t, ret := n.d.GetTemperature(nvml.TEMPERATURE_GPU)
	return t, newNVMLError(ret)
}

func (n *nvmlDevice) Utilization() (core, memory uint32, err error) {
	u, ret := n.d.GetUtilizationRates()
	return u.Gpu, u.Memory, newNVMLError(ret)
}

func (n *nvmlDevice) PowerUsage() (uint32, error) {
	p, ret := n.d.GetPowerUsage()
	return p, newNVMLError(ret)
}

func (n *nvmlDevice) PowerLimit() (uint32, error) {
	l, ret := n.d.GetPowerManagementLimit()
	if !isNVMLSuccess(ret) {
		return 0, errors.New().Wrap(ErrPowerLimitFailed, newNVMLError(ret))
	}
	return l, nil
}

func (n *nvmlDevice) PowerLimitConstraints() (min, max uint32, err error) {
	min, max, ret := n.d.GetPowerManagementLimitConstraints()
	if !isNVMLSuccess(ret) {
		return 0, 0, errors.New().Wrap(ErrPowerLimitsFailed, newNVMLError(ret))
	}
	return min, max, nil
}

func (n *nvmlDevice) DefaultPowerLimit() (uint32, error) {
	l, ret := n.d.GetPowerManagementDefaultLimit()
	if !isNVMLSuccess(ret) {
		return 0, errors.New().Wrap(ErrPowerLimitsFailed, newNVMLError(ret))
	}
	return l, nil
}

func (n *nvmlDevice) SetPowerLimit(milliwatts uint32) error {
	if ret := n.d.SetPowerManagementLimit(milliwatts); !isNVMLSuccess(ret) {
		return errors.New().Wrap(ErrSetPowerLimit, newNVMLError(ret))
	}
	return nil
}

func (n *nvmlDevice) NumFans() (int, error) {
	count, ret := n.d.GetNumFans()
	if !isNVMLSuccess(ret) {
		return 0, errors.New().Wrap(ErrFanCountFailed, newNVMLError(ret))
	}
	return count, nil
}

func (n *nvmlDevice) FanSpeed(fan int) (uint32, error) {
	speed, ret := n.d.GetFanSpeed_v2(fan)
	if !isNVMLSuccess(ret) {
		return 0, errors.New().Wrap(ErrGetFanSpeedFailed, newNVMLError(ret))
	}
	return speed, nil
}

func (n *nvmlDevice) FanSpeedRange() (min, max int, err error) {
	min, max, ret := n.d.GetMinMaxFanSpeed()
	if !isNVMLSuccess(ret) {
		return 0, 0, errors.New().Wrap(ErrGetFanLimitsFailed, newNVMLError(ret))
	}
	return min, max, nil
}

func (n *nvmlDevice) SetFanSpeed(fan, speed int) error {
	if ret := nvml.DeviceSetFanSpeed_v2(n.d, fan, speed); !isNVMLSuccess(ret) {
		return errors.New().Wrap(ErrSetFanSpeed, newNVMLError(ret))
	}
	return nil
}

func (n *nvmlDevice) SetDefaultFanSpeed(fan int) error {
	if ret := nvml.DeviceSetDefaultFanSpeed_v2(n.d, fan); !isNVMLSuccess(ret) {
		return errors.New().Wrap(ErrFanControlFailed, newNVMLError(ret))
	}
	return nil
}
