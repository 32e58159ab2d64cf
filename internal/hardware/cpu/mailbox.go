package cpu

import (
	"math"
	"time"

	"codeberg.org/mutker/hwcontrol/internal/errors"
	"codeberg.org/mutker/hwcontrol/internal/hardware"
	"codeberg.org/mutker/hwcontrol/internal/ring0"
)

const (
	msrOcMailbox = 0x150

	mailboxWriteOffset = 0x80000011
	mailboxReadOffset  = 0x80000010

	mailboxTimeout = 500 * time.Millisecond

	offsetScale = 1.024
)

const (
	ErrMailboxWrite = errors.ErrorCode("cpu_mailbox_write_failed")
	ErrMailboxRead  = errors.ErrorCode("cpu_mailbox_read_failed")
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrMailboxWrite: "Failed to write overclocking mailbox",
		ErrMailboxRead:  "Failed to read overclocking mailbox",
	})
}

// Voltage planes addressed through the overclocking mailbox, in plane order.
var offsetPlanes = []string{"CPU Core", "Intel GPU", "CPU Cache", "Analog IO", "Digital IO"}

// EncodeVoltageOffset converts millivolts into the 11-bit signed field at
// bits 31:21 of the mailbox data register.
func EncodeVoltageOffset(mv float64) uint32 {
	field := uint32(int32(math.RoundToEven(mv*offsetScale))) & 0xFFF
	return 0xFFE00000 & (field << 21)
}

// DecodeVoltageOffset converts the raw field (eax >> 21) back to millivolts.
// Values above 1024 wrap to negative at 2048.
func DecodeVoltageOffset(raw uint32) float64 {
	raw &= 0x7FF

	var steps float64
	if raw <= 1024 {
		steps = float64(raw)
	} else {
		steps = -float64(2048 - raw)
	}

	return hardware.Round2(steps / offsetScale)
}

func planeCommand(base uint32, plane int) uint32 {
	return base | uint32(plane)<<8
}

// readOffset issues the read command for plane and decodes the reply. The
// caller holds MutexMailbox.
func readOffset(access ring0.Access, plane int) (float64, error) {
	errFactory := errors.New()

	if !access.WriteMsr(msrOcMailbox, 0, planeCommand(mailboxReadOffset, plane)) {
		return 0, errFactory.WithData(ErrMailboxWrite, offsetPlanes[plane])
	}
	eax, _, ok := access.ReadMsr(msrOcMailbox)
	if !ok {
		return 0, errFactory.WithData(ErrMailboxRead, offsetPlanes[plane])
	}

	return DecodeVoltageOffset(eax >> 21), nil
}

// ReadVoltageOffset reads the applied offset of plane in millivolts.
func ReadVoltageOffset(access ring0.Access, plane int) (float64, error) {
	var mv float64
	err := ring0.WithMutex(access, ring0.MutexMailbox, mailboxTimeout, func() error {
		var err error
		mv, err = readOffset(access, plane)
		return err
	})

	return mv, err
}

// WriteVoltageOffset proposes mv for plane, then reads back what the
// processor accepted. The whole exchange holds MutexMailbox so no other
// backend can interleave a mailbox command.
func WriteVoltageOffset(access ring0.Access, plane int, mv float64) (float64, error) {
	var applied float64
	err := ring0.WithMutex(access, ring0.MutexMailbox, mailboxTimeout, func() error {
		if !access.WriteMsr(msrOcMailbox, EncodeVoltageOffset(mv), planeCommand(mailboxWriteOffset, plane)) {
			return errors.New().WithData(ErrMailboxWrite, offsetPlanes[plane])
		}

		var err error
		applied, err = readOffset(access, plane)
		return err
	})

	return applied, err
}
