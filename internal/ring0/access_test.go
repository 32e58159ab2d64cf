package ring0_test

import (
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/hwcontrol/internal/errors"
	"codeberg.org/mutker/hwcontrol/internal/ring0"
	"codeberg.org/mutker/hwcontrol/internal/ring0/ring0test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPciAddress(t *testing.T) {
	addr := ring0.EncodePciAddress(0x3, 0x1F, 0x7)
	assert.Equal(t, uint32(0x3FF), addr)

	bus, dev, fn := ring0.DecodePciAddress(addr)
	assert.Equal(t, uint8(0x3), bus)
	assert.Equal(t, uint8(0x1F), dev)
	assert.Equal(t, uint8(0x7), fn)

	assert.Equal(t, ring0.InvalidPciAddress, ring0.EncodePciAddress(0, 0x20, 0))
	assert.Equal(t, ring0.InvalidPciAddress, ring0.EncodePciAddress(0, 0, 0x8))
}

func TestSplitJoin(t *testing.T) {
	eax, edx := ring0.Split64(0x1122334455667788)
	assert.Equal(t, uint32(0x55667788), eax)
	assert.Equal(t, uint32(0x11223344), edx)
	assert.Equal(t, uint64(0x1122334455667788), ring0.Join64(eax, edx))
}

func TestMutexTimeout(t *testing.T) {
	m := ring0.NewMutexes()

	require.True(t, m.Acquire(ring0.MutexEc, time.Second))
	assert.False(t, m.Acquire(ring0.MutexEc, 10*time.Millisecond), "held mutex must time out")
	assert.True(t, m.Acquire(ring0.MutexIsaBus, 10*time.Millisecond), "mutexes are independent")

	m.Release(ring0.MutexEc)
	m.Release(ring0.MutexIsaBus)
	assert.True(t, m.Acquire(ring0.MutexEc, 10*time.Millisecond))
	m.Release(ring0.MutexEc)
}

func TestWithMutexReleases(t *testing.T) {
	mem := ring0test.NewMemory()

	err := ring0.WithMutex(mem, ring0.MutexMailbox, time.Second, func() error {
		return errors.New().New(errors.ErrOperationFailed)
	})
	require.Error(t, err)

	assert.True(t, mem.Acquire(ring0.MutexMailbox, 10*time.Millisecond), "released after failing fn")
	mem.Release(ring0.MutexMailbox)
}

func TestWithMutexTimeout(t *testing.T) {
	mem := ring0test.NewMemory()
	require.True(t, mem.Acquire(ring0.MutexPciBus, time.Second))
	defer mem.Release(ring0.MutexPciBus)

	called := false
	err := ring0.WithMutex(mem, ring0.MutexPciBus, 10*time.Millisecond, func() error {
		called = true
		return nil
	})

	assert.False(t, called)
	assert.True(t, errors.HasCode(err, ring0.ErrMutexTimeout))
}

func TestWithMutexSerializes(t *testing.T) {
	mem := ring0test.NewMemory()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		inside int
		peak   int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ring0.WithMutex(mem, ring0.MutexMailbox, time.Second, func() error {
				mu.Lock()
				inside++
				peak = max(peak, inside)
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, peak)
}

func TestUnopenedAccessFails(t *testing.T) {
	mem := ring0test.NewMemory()
	mem.SetMsr(0, 0x19C, 0x88000000)

	_, _, ok := mem.ReadMsr(0x19C)
	assert.False(t, ok, "reads fail before Open")
	assert.False(t, mem.WriteMsr(0x150, 0, 0))

	require.True(t, mem.Open())
	eax, _, ok := mem.ReadMsr(0x19C)
	assert.True(t, ok)
	assert.Equal(t, uint32(0x88000000), eax)
}

func TestOpenIsSticky(t *testing.T) {
	mem := ring0test.NewMemory()
	mem.SetOpenable(false)
	assert.False(t, mem.Open())

	mem.SetOpenable(true)
	assert.True(t, mem.Open())
	mem.SetOpenable(false)
	assert.True(t, mem.Open(), "an open handle stays open")
}
