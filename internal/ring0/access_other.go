//go:build !linux

package ring0

// New returns the register access for this platform. Register access is
// only implemented on Linux; elsewhere every call reports unavailable.
func New() Access {
	return &unsupported{Mutexes: NewMutexes()}
}

type unsupported struct {
	*Mutexes
}

func (*unsupported) Open() bool   { return false }
func (*unsupported) IsOpen() bool { return false }
func (*unsupported) Close() error { return nil }

func (*unsupported) ReadMsr(uint32) (uint32, uint32, bool)           { return 0, 0, false }
func (*unsupported) ReadMsrOnCPU(uint32, int) (uint32, uint32, bool) { return 0, 0, false }
func (*unsupported) WriteMsr(uint32, uint32, uint32) bool            { return false }

func (*unsupported) ReadIoPort(uint32) (byte, bool)              { return 0, false }
func (*unsupported) WriteIoPort(uint32, byte) bool               { return false }
func (*unsupported) PciAddress(b, d, f uint8) uint32             { return EncodePciAddress(b, d, f) }
func (*unsupported) ReadPciConfig(uint32, uint32) (uint32, bool) { return 0, false }
func (*unsupported) WritePciConfig(uint32, uint32, uint32) bool  { return false }
