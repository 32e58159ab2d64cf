// Package ring0test provides an in-memory register file for exercising
// hardware backends without privileged access.
package ring0test

import (
	"sync"
	"time"

	"codeberg.org/mutker/hwcontrol/internal/ring0"
)

// MsrWrite records one WriteMsr call.
type MsrWrite struct {
	Index uint32
	Eax   uint32
	Edx   uint32
}

// Memory implements ring0.Access over maps. The zero value is not usable;
// call NewMemory.
type Memory struct {
	*ring0.Mutexes

	mu       sync.Mutex
	open     bool
	openable bool
	msrs     map[int]map[uint32]uint64
	ports    map[uint32]byte
	pci      map[uint64]uint32
	writes   []MsrWrite
	acquires int

	// OnWriteMsr, when set, runs after every successful WriteMsr while the
	// register file is locked; it may update registers through set.
	OnWriteMsr func(index, eax, edx uint32, set func(cpu int, index uint32, value uint64))
}

var _ ring0.Access = (*Memory)(nil)

// NewMemory returns a register file whose Open succeeds.
func NewMemory() *Memory {
	return &Memory{
		Mutexes:  ring0.NewMutexes(),
		openable: true,
		msrs:     make(map[int]map[uint32]uint64),
		ports:    make(map[uint32]byte),
		pci:      make(map[uint64]uint32),
	}
}

// SetOpenable controls the result of the next Open.
func (m *Memory) SetOpenable(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openable = ok
}

// SetMsr stores a register value for cpu.
func (m *Memory) SetMsr(cpu int, index uint32, value uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(cpu, index, value)
}

func (m *Memory) set(cpu int, index uint32, value uint64) {
	regs, ok := m.msrs[cpu]
	if !ok {
		regs = make(map[uint32]uint64)
		m.msrs[cpu] = regs
	}
	regs[index] = value
}

// Writes returns every recorded MSR write.
func (m *Memory) Writes() []MsrWrite {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]MsrWrite, len(m.writes))
	copy(out, m.writes)

	return out
}

// Acquires reports how many mutex acquisitions were attempted.
func (m *Memory) Acquires() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquires
}

func (m *Memory) Open() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		m.open = m.openable
	}

	return m.open
}

func (m *Memory) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false

	return nil
}

func (m *Memory) ReadMsr(index uint32) (uint32, uint32, bool) {
	return m.ReadMsrOnCPU(index, 0)
}

func (m *Memory) ReadMsrOnCPU(index uint32, cpu int) (uint32, uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return 0, 0, false
	}

	v, ok := m.msrs[cpu][index]
	if !ok {
		return 0, 0, false
	}
	eax, edx := ring0.Split64(v)

	return eax, edx, true
}

func (m *Memory) WriteMsr(index, eax, edx uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return false
	}

	m.writes = append(m.writes, MsrWrite{Index: index, Eax: eax, Edx: edx})
	m.set(0, index, ring0.Join64(eax, edx))
	if m.OnWriteMsr != nil {
		m.OnWriteMsr(index, eax, edx, m.set)
	}

	return true
}

func (m *Memory) ReadIoPort(port uint32) (byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.ports[port]
	return v, ok && m.open
}

func (m *Memory) WriteIoPort(port uint32, value byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return false
	}
	m.ports[port] = value

	return true
}

func (m *Memory) PciAddress(bus, device, function uint8) uint32 {
	return ring0.EncodePciAddress(bus, device, function)
}

func (m *Memory) ReadPciConfig(address, register uint32) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.pci[uint64(address)<<32|uint64(register)]
	return v, ok && m.open
}

func (m *Memory) WritePciConfig(address, register, value uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open || address == ring0.InvalidPciAddress {
		return false
	}
	m.pci[uint64(address)<<32|uint64(register)] = value

	return true
}

func (m *Memory) Acquire(mu ring0.Mutex, timeout time.Duration) bool {
	m.mu.Lock()
	m.acquires++
	m.mu.Unlock()

	return m.Mutexes.Acquire(mu, timeout)
}
