package errors_test

import (
	"fmt"
	"testing"

	"codeberg.org/mutker/hwcontrol/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	f := errors.New()

	assert.Equal(t, "Invalid argument provided", f.New(errors.ErrInvalidArgument).Error())
	assert.Equal(t, "custom", f.WithMessage(errors.ErrInternal, "custom").Error())
	assert.Equal(t, "Resource not found: fan 3", f.WithData(errors.ErrResourceNotFound, "fan 3").Error())
	assert.Equal(t, "unknown_code", f.New("unknown_code").Error())
}

func TestWrapKeepsCause(t *testing.T) {
	cause := fmt.Errorf("device gone")
	err := errors.New().Wrap(errors.ErrOperationFailed, cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Operation failed: device gone", err.Error())
}

func TestCodeMatching(t *testing.T) {
	f := errors.New()
	err := fmt.Errorf("outer: %w", f.Wrap(errors.ErrTimeout, fmt.Errorf("slow")))

	assert.True(t, errors.HasCode(err, errors.ErrTimeout))
	assert.False(t, errors.HasCode(err, errors.ErrInternal))
	assert.ErrorIs(t, err, f.New(errors.ErrTimeout))
	assert.NotErrorIs(t, err, f.New(errors.ErrInternal))
}

func TestRegisterMessages(t *testing.T) {
	const code = errors.ErrorCode("test_registered")
	errors.RegisterMessages(map[errors.ErrorCode]string{code: "Registered message"})

	assert.Equal(t, "Registered message", errors.GetErrorMessage(code))
}
