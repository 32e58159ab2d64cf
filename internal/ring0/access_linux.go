//go:build linux

package ring0

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"codeberg.org/mutker/hwcontrol/internal/errors"
	"golang.org/x/sys/unix"
)

const (
	msrDevice  = "/dev/cpu/%d/msr"
	portDevice = "/dev/port"
	pciConfig  = "/sys/bus/pci/devices/0000:%02x:%02x.%x/config"
)

type linuxAccess struct {
	*Mutexes

	once   sync.Once
	opened bool

	mu     sync.Mutex
	closed bool
	msr    map[int]int
	port   int
}

// New returns the register access for this platform. The process entry
// point constructs exactly one and passes it to every backend.
func New() Access {
	return &linuxAccess{
		Mutexes: NewMutexes(),
		msr:     make(map[int]int),
		port:    -1,
	}
}

// Open probes the msr driver on CPU 0. Only the first call has effect.
func (a *linuxAccess) Open() bool {
	a.once.Do(func() {
		a.mu.Lock()
		defer a.mu.Unlock()

		_, err := a.msrFD(0)
		a.opened = err == nil
	})

	return a.IsOpen()
}

func (a *linuxAccess) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.opened && !a.closed
}

func (a *linuxAccess) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	for cpu, fd := range a.msr {
		if err := unix.Close(fd); err != nil {
			errs = append(errs, fmt.Errorf("close msr %d: %w", cpu, err))
		}
		delete(a.msr, cpu)
	}
	if a.port >= 0 {
		if err := unix.Close(a.port); err != nil {
			errs = append(errs, fmt.Errorf("close port: %w", err))
		}
		a.port = -1
	}
	a.closed = true

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// msrFD must be called with a.mu held.
func (a *linuxAccess) msrFD(cpu int) (int, error) {
	if fd, ok := a.msr[cpu]; ok {
		return fd, nil
	}

	fd, err := unix.Open(fmt.Sprintf(msrDevice, cpu), unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}
	a.msr[cpu] = fd

	return fd, nil
}

func (a *linuxAccess) ReadMsr(index uint32) (eax, edx uint32, ok bool) {
	return a.ReadMsrOnCPU(index, 0)
}

func (a *linuxAccess) ReadMsrOnCPU(index uint32, cpu int) (eax, edx uint32, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.opened || a.closed {
		return 0, 0, false
	}

	fd, err := a.msrFD(cpu)
	if err != nil {
		return 0, 0, false
	}

	buf := make([]byte, 8)
	n, err := unix.Pread(fd, buf, int64(index))
	if err != nil || n != len(buf) {
		return 0, 0, false
	}

	eax, edx = Split64(binary.LittleEndian.Uint64(buf))

	return eax, edx, true
}

func (a *linuxAccess) WriteMsr(index, eax, edx uint32) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.opened || a.closed {
		return false
	}

	fd, err := a.msrFD(0)
	if err != nil {
		return false
	}

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, Join64(eax, edx))
	n, err := unix.Pwrite(fd, buf, int64(index))

	return err == nil && n == len(buf)
}

func (a *linuxAccess) portFD() (int, error) {
	if a.port >= 0 {
		return a.port, nil
	}

	fd, err := unix.Open(portDevice, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}
	a.port = fd

	return fd, nil
}

func (a *linuxAccess) ReadIoPort(port uint32) (byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.opened || a.closed {
		return 0, false
	}

	fd, err := a.portFD()
	if err != nil {
		return 0, false
	}

	buf := make([]byte, 1)
	if n, err := unix.Pread(fd, buf, int64(port)); err != nil || n != 1 {
		return 0, false
	}

	return buf[0], true
}

func (a *linuxAccess) WriteIoPort(port uint32, value byte) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.opened || a.closed {
		return false
	}

	fd, err := a.portFD()
	if err != nil {
		return false
	}

	n, err := unix.Pwrite(fd, []byte{value}, int64(port))

	return err == nil && n == 1
}

func (a *linuxAccess) PciAddress(bus, device, function uint8) uint32 {
	return EncodePciAddress(bus, device, function)
}

func (a *linuxAccess) pciPath(address uint32) string {
	bus, device, function := DecodePciAddress(address)
	return fmt.Sprintf(pciConfig, bus, device, function)
}

func (a *linuxAccess) ReadPciConfig(address, register uint32) (uint32, bool) {
	if address == InvalidPciAddress || register&3 != 0 || !a.IsOpen() {
		return 0, false
	}

	f, err := os.Open(a.pciPath(address))
	if err != nil {
		return 0, false
	}
	defer f.Close()

	buf := make([]byte, 4)
	if n, err := f.ReadAt(buf, int64(register)); err != nil || n != len(buf) {
		return 0, false
	}

	return binary.LittleEndian.Uint32(buf), true
}

func (a *linuxAccess) WritePciConfig(address, register, value uint32) bool {
	if address == InvalidPciAddress || register&3 != 0 || !a.IsOpen() {
		return false
	}

	f, err := os.OpenFile(a.pciPath(address), os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, value)
	n, err := f.WriteAt(buf, int64(register))

	return err == nil && n == len(buf)
}
