package gpu

import (
	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"codeberg.org/mutker/hwcontrol/internal/errors"
)

const (
	ErrNotInitialized    = errors.ErrorCode("gpu_not_initialized")
	ErrInitFailed        = errors.ErrorCode("gpu_init_failed")
	ErrShutdownFailed    = errors.ErrorCode("gpu_shutdown_failed")
	ErrDeviceCountFailed = errors.ErrorCode("gpu_device_count_failed")
	ErrDeviceNotFound    = errors.ErrorCode("gpu_device_not_found")

	ErrFanCountFailed     = errors.ErrorCode("gpu_fan_count_failed")
	ErrGetFanSpeedFailed  = errors.ErrorCode("gpu_fan_speed_failed")
	ErrGetFanLimitsFailed = errors.ErrorCode("gpu_fan_limits_failed")
	ErrSetFanSpeed        = errors.ErrorCode("gpu_set_fan_speed_failed")
	ErrFanControlFailed   = errors.ErrorCode("gpu_fan_control_failed")

	ErrPowerLimitFailed  = errors.ErrorCode("gpu_power_limit_failed")
	ErrPowerLimitsFailed = errors.ErrorCode("gpu_power_limits_failed")
	ErrSetPowerLimit     = errors.ErrorCode("gpu_set_power_limit_failed")
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrNotInitialized:     "NVML not initialized",
		ErrInitFailed:         "Failed to initialize NVML",
		ErrShutdownFailed:     "Failed to shut down NVML",
		ErrDeviceCountFailed:  "Failed to get GPU count",
		ErrDeviceNotFound:     "GPU not found",
		ErrFanCountFailed:     "Failed to get fan count",
		ErrGetFanSpeedFailed:  "Failed to get fan speed",
		ErrGetFanLimitsFailed: "Failed to get fan speed limits",
		ErrSetFanSpeed:        "Failed to set fan speed",
		ErrFanControlFailed:   "Failed to return fan to automatic control",
		ErrPowerLimitFailed:   "Failed to get power limit",
		ErrPowerLimitsFailed:  "Failed to get power limit constraints",
		ErrSetPowerLimit:      "Failed to set power limit",
	})
}

// nvmlError carries an NVML return code.
type nvmlError struct {
	ret nvml.Return
}

func (e nvmlError) Error() string {
	return nvml.ErrorString(e.ret)
}

func newNVMLError(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return &nvmlError{ret: ret}
}

func isNVMLSuccess(ret nvml.Return) bool {
	return ret == nvml.SUCCESS
}
