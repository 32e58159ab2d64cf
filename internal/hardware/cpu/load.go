package cpu

import (
	"strconv"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
)

// TimesFunc returns cumulative per-logical-CPU times.
type TimesFunc func() ([]cpu.TimesStat, error)

func defaultTimes() ([]cpu.TimesStat, error) {
	return cpu.Times(true)
}

type cpuTimes struct {
	idle  float64
	total float64
}

// loadSampler turns cumulative idle/total counters into a busy percentage
// since the previous sample.
type loadSampler struct {
	times TimesFunc

	mu   sync.Mutex
	prev map[int]cpuTimes
}

func newLoadSampler(times TimesFunc) *loadSampler {
	l := &loadSampler{times: times, prev: make(map[int]cpuTimes)}
	l.sample()

	return l
}

// sample returns the load per logical CPU number. CPUs without a previous
// sample or without elapsed time are omitted.
func (l *loadSampler) sample() (map[int]float64, error) {
	stats, err := l.times()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[int]float64, len(stats))
	for _, st := range stats {
		n, err := strconv.Atoi(strings.TrimPrefix(st.CPU, "cpu"))
		if err != nil {
			continue
		}

		cur := cpuTimes{
			idle:  st.Idle + st.Iowait,
			total: st.User + st.System + st.Idle + st.Nice + st.Iowait + st.Irq + st.Softirq + st.Steal,
		}
		prev, ok := l.prev[n]
		l.prev[n] = cur
		if !ok {
			continue
		}

		dTotal := cur.total - prev.total
		if dTotal <= 0 {
			continue
		}
		busy := 1 - (cur.idle-prev.idle)/dTotal
		out[n] = clampPercent(busy * 100)
	}

	return out, nil
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
