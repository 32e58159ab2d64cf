// Package ring0 provides gated access to model-specific registers, PCI
// configuration space and I/O ports.
//
// Every read or write reports failure through an ok flag instead of an error:
// a register that cannot be reached this tick is simply unavailable.
package ring0

import (
	"context"
	"time"

	"codeberg.org/mutker/hwcontrol/internal/errors"
	"golang.org/x/sync/semaphore"
)

// InvalidPciAddress is returned by PciAddress for out-of-range components.
const InvalidPciAddress uint32 = 0xFFFFFFFF

// Mutex names a machine-wide resource shared between backends.
type Mutex int

const (
	MutexPciBus Mutex = iota
	MutexEc
	MutexIsaBus
	MutexMailbox
	mutexCount
)

func (m Mutex) String() string {
	switch m {
	case MutexPciBus:
		return "pci_bus"
	case MutexEc:
		return "ec"
	case MutexIsaBus:
		return "isa_bus"
	case MutexMailbox:
		return "mailbox"
	default:
		return "unknown"
	}
}

const (
	ErrMutexTimeout = errors.ErrorCode("ring0_mutex_timeout")
	ErrNotOpen      = errors.ErrorCode("ring0_not_open")
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrMutexTimeout: "Timed out waiting for hardware mutex",
		ErrNotOpen:      "Register access is not open",
	})
}

// Access is the register-level contract consumed by hardware backends.
type Access interface {
	Open() bool
	IsOpen() bool
	Close() error

	ReadMsr(index uint32) (eax, edx uint32, ok bool)
	// ReadMsrOnCPU reads a per-core register on the given logical processor.
	ReadMsrOnCPU(index uint32, cpu int) (eax, edx uint32, ok bool)
	WriteMsr(index, eax, edx uint32) bool

	ReadIoPort(port uint32) (byte, bool)
	WriteIoPort(port uint32, value byte) bool

	PciAddress(bus, device, function uint8) uint32
	ReadPciConfig(address, register uint32) (uint32, bool)
	WritePciConfig(address, register, value uint32) bool

	// Acquire waits up to timeout for m. Release must follow a successful
	// Acquire.
	Acquire(m Mutex, timeout time.Duration) bool
	Release(m Mutex)
}

// Mutexes is the named-mutex set embedded by Access implementations.
type Mutexes struct {
	sems [mutexCount]*semaphore.Weighted
}

func NewMutexes() *Mutexes {
	m := &Mutexes{}
	for i := range m.sems {
		m.sems[i] = semaphore.NewWeighted(1)
	}

	return m
}

func (m *Mutexes) Acquire(mu Mutex, timeout time.Duration) bool {
	if mu < 0 || mu >= mutexCount {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return m.sems[mu].Acquire(ctx, 1) == nil
}

func (m *Mutexes) Release(mu Mutex) {
	if mu < 0 || mu >= mutexCount {
		return
	}
	m.sems[mu].Release(1)
}

// WithMutex runs fn while holding m and releases it however fn returns.
func WithMutex(a Access, m Mutex, timeout time.Duration, fn func() error) error {
	if !a.Acquire(m, timeout) {
		return errors.New().WithData(ErrMutexTimeout, m.String())
	}
	defer a.Release(m)

	return fn()
}

// EncodePciAddress packs a bus/device/function triple the way the
// configuration mechanism expects it.
func EncodePciAddress(bus, device, function uint8) uint32 {
	if device > 0x1F || function > 0x07 {
		return InvalidPciAddress
	}

	return uint32(bus)<<8 | uint32(device&0x1F)<<3 | uint32(function&0x07)
}

// DecodePciAddress reverses EncodePciAddress.
func DecodePciAddress(address uint32) (bus, device, function uint8) {
	return uint8(address >> 8), uint8((address >> 3) & 0x1F), uint8(address & 0x07)
}

// Split64 returns the low and high halves of a 64-bit register value.
func Split64(v uint64) (eax, edx uint32) {
	return uint32(v), uint32(v >> 32)
}

// Join64 combines register halves.
func Join64(eax, edx uint32) uint64 {
	return uint64(edx)<<32 | uint64(eax)
}
