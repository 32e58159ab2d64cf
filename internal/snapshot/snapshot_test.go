package snapshot

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/hwcontrol/internal/errors"
	"codeberg.org/mutker/hwcontrol/internal/hardware"
	"codeberg.org/mutker/hwcontrol/internal/logger"
	"codeberg.org/mutker/hwcontrol/internal/tree"
)

type fakeHardware struct {
	*hardware.Base
	temp *hardware.Sensor
	load *hardware.Sensor
}

func newFakeHardware() *fakeHardware {
	h := &fakeHardware{Base: hardware.NewBase("CPU", hardware.NewIdentifier("intelcpu", "0"), hardware.TypeCPU)}
	h.temp = h.NewSensor("Core #1", 0, hardware.SensorTemperature)
	h.load = h.NewSensor("CPU Total", 0, hardware.SensorLoad)
	h.load.AddRangeParameter(0, 100)
	h.ActivateSensor(h.load)
	h.ActivateSensor(h.temp)

	return h
}

func (h *fakeHardware) Update() {}

// fakeSource counts how many cycles read it at the same time.
type fakeSource struct {
	mu       sync.Mutex
	open     bool
	hw       []hardware.Hardware
	panics   bool
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (s *fakeSource) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *fakeSource) setOpen(open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = open
}

func (s *fakeSource) Hardware() []hardware.Hardware {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		seen := s.maxSeen.Load()
		if n <= seen || s.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if s.panics {
		panic("backend exploded")
	}
	time.Sleep(s.delay)

	return s.hw
}

type recorder struct {
	mu    sync.Mutex
	calls [][]Reading
}

func (r *recorder) Record(readings []Reading) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, readings)
}

var now = time.Unix(10000, 0)

func newService(src Source, opts ...Option) (*Service, *tree.Tree) {
	t := tree.New()
	opts = append([]Option{WithLogger(logger.Nop()), WithClock(func() time.Time { return now })}, opts...)
	return New(src, t, NewGate(), 10*time.Millisecond, 100, opts...), t
}

func TestInitBuildsAndSeedsTree(t *testing.T) {
	hw := newFakeHardware()
	s, tr := newService(&fakeSource{open: true, hw: []hardware.Hardware{hw}})
	require.NoError(t, s.Init())

	nodes := tr.Hardware()
	require.Len(t, nodes, 1)
	assert.Equal(t, "CPU", nodes[0].Name)
	require.Len(t, nodes[0].SensorTypes, 2)
	assert.Equal(t, hardware.SensorTemperature, nodes[0].SensorTypes[0].Type)
	assert.Equal(t, hardware.SensorLoad, nodes[0].SensorTypes[1].Type)

	node, ok := tr.Sensor("/intelcpu/0/temperature/0")
	require.True(t, ok)
	h := node.History()
	require.Len(t, h, 100)
	assert.Equal(t, now.Add(-100*time.Second), h[0].Time)
	assert.Zero(t, h[99].Value)
}

func TestInitAbortsOnParameterConflict(t *testing.T) {
	hw := newFakeHardware()
	hw.temp.AddValueParameter("Offset", "first", 1)
	hw.temp.AddValueParameter("Scale", "second", 2)

	s, _ := newService(&fakeSource{open: true, hw: []hardware.Hardware{hw}})
	err := s.Init()

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, hardware.ErrParameterConflict))
}

func TestRefreshCopiesValuesAndRecords(t *testing.T) {
	hw := newFakeHardware()
	rec := &recorder{}
	s, tr := newService(&fakeSource{open: true, hw: []hardware.Hardware{hw}}, WithRecorder(rec))
	require.NoError(t, s.Init())

	hw.temp.SetValue(55.5)
	hw.load.SetValue(12.25)
	require.NoError(t, s.Refresh(context.Background()))

	temp, _ := tr.Sensor("/intelcpu/0/temperature/0")
	load, _ := tr.Sensor("/intelcpu/0/load/0")
	assert.Equal(t, 55.5, temp.Value())
	assert.Equal(t, 12.25, load.Value())
	assert.Equal(t, 55.5, temp.Max())

	require.Len(t, rec.calls, 1)
	assert.Len(t, rec.calls[0], 2)
}

func TestRefreshSkipsMissingSensor(t *testing.T) {
	hw := newFakeHardware()
	s, tr := newService(&fakeSource{open: true, hw: []hardware.Hardware{hw}})
	require.NoError(t, s.Init())

	hw.temp.SetValue(40)
	require.NoError(t, s.Refresh(context.Background()))

	hw.DeactivateSensor(hw.temp)
	hw.load.SetValue(30)
	require.NoError(t, s.Refresh(context.Background()))

	temp, _ := tr.Sensor("/intelcpu/0/temperature/0")
	load, _ := tr.Sensor("/intelcpu/0/load/0")
	assert.Equal(t, 40.0, temp.Value())
	assert.Equal(t, 30.0, load.Value())
	assert.Len(t, temp.History(), 100)
}

func TestRefreshZeroesOnFailure(t *testing.T) {
	hw := newFakeHardware()
	src := &fakeSource{open: true, hw: []hardware.Hardware{hw}}
	s, tr := newService(src)
	require.NoError(t, s.Init())

	hw.temp.SetValue(60)
	hw.load.SetValue(20)
	require.NoError(t, s.Refresh(context.Background()))

	src.setOpen(false)
	require.NoError(t, s.Refresh(context.Background()))

	for _, n := range tr.Sensors() {
		assert.Zero(t, n.Value(), n.Identifier().String())
	}
	temp, _ := tr.Sensor("/intelcpu/0/temperature/0")
	assert.Equal(t, 60.0, temp.Max())
}

func TestRefreshRecoversPanic(t *testing.T) {
	hw := newFakeHardware()
	src := &fakeSource{open: true, hw: []hardware.Hardware{hw}}
	s, tr := newService(src)
	require.NoError(t, s.Init())

	hw.temp.SetValue(70)
	require.NoError(t, s.Refresh(context.Background()))

	src.panics = true
	assert.NotPanics(t, func() { _ = s.Refresh(context.Background()) })

	temp, _ := tr.Sensor("/intelcpu/0/temperature/0")
	assert.Zero(t, temp.Value())
}

func TestAtMostOneRefreshAtATime(t *testing.T) {
	hw := newFakeHardware()
	src := &fakeSource{open: true, hw: []hardware.Hardware{hw}}
	s, _ := newService(src)
	require.NoError(t, s.Init())
	src.maxSeen.Store(0)
	src.delay = 2 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Refresh(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), src.maxSeen.Load())
}

func TestRefreshHonoursCancelledContext(t *testing.T) {
	gate := NewGate()
	held := make(chan struct{})
	hold := make(chan struct{})
	go func() {
		_ = gate.Do(context.Background(), func() {
			close(held)
			<-hold
		})
	}()
	<-held

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := gate.Do(ctx, func() { t.Fatal("must not run") })
	close(hold)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunSignalsStartedAfterFirstTick(t *testing.T) {
	hw := newFakeHardware()
	s, tr := newService(&fakeSource{open: true, hw: []hardware.Hardware{hw}})
	require.NoError(t, s.Init())
	hw.temp.SetValue(33)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func() { close(started) })
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("started was never signalled")
	}

	temp, _ := tr.Sensor("/intelcpu/0/temperature/0")
	assert.Eventually(t, func() bool { return temp.Value() == 33 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
