package hardware

import "codeberg.org/mutker/hwcontrol/internal/errors"

const (
	ErrOutOfRange        = errors.ErrorCode("hardware_value_out_of_range")
	ErrNoWritePath       = errors.ErrorCode("hardware_no_write_path")
	ErrWriteFailed       = errors.ErrorCode("hardware_write_failed")
	ErrNoDefaultValue    = errors.ErrorCode("hardware_no_default_value")
	ErrParameterConflict = errors.ErrorCode("hardware_parameter_conflict")
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrOutOfRange:        "Control value out of range",
		ErrNoWritePath:       "Control has no write path",
		ErrWriteFailed:       "Hardware write failed",
		ErrNoDefaultValue:    "Sensor has no default value",
		ErrParameterConflict: "Sensor has more than one default value parameter",
	})
}
