package gpu

import (
	"strings"

	"codeberg.org/mutker/hwcontrol/internal/errors"
	"codeberg.org/mutker/hwcontrol/internal/hardware"
	"codeberg.org/mutker/hwcontrol/internal/logger"
)

// Group owns the NVML session and one GPU per device.
type Group struct {
	lib  library
	gpus []*GPU
	log  logger.Logger
}

var _ hardware.Group = (*Group)(nil)

// NewGroup fails when NVML cannot be loaded, which is the normal outcome
// on machines without the NVIDIA driver.
func NewGroup(log logger.Logger) (*Group, error) {
	return newGroup(&nvmlWrapper{}, log)
}

func newGroup(lib library, log logger.Logger) (*Group, error) {
	if err := lib.Initialize(); err != nil {
		return nil, err
	}

	count, err := lib.DeviceCount()
	if err != nil {
		if shutdownErr := lib.Shutdown(); shutdownErr != nil {
			log.Debug().Err(shutdownErr).Msg("Failed to shut down NVML")
		}
		return nil, err
	}

	g := &Group{lib: lib, log: log}
	for i := 0; i < count; i++ {
		dev, err := lib.Device(i)
		if err != nil {
			log.Warn().Err(err).Int("index", i).Msg("Skipping GPU")
			continue
		}
		gpu := newGPU(i, dev, log)
		gpu.Update()
		g.gpus = append(g.gpus, gpu)
		log.Info().Str("name", gpu.Name()).Int("fans", len(gpu.fanDuty)).Msg("Detected GPU")
	}

	return g, nil
}

func (g *Group) Hardware() []hardware.Hardware {
	out := make([]hardware.Hardware, len(g.gpus))
	for i, gpu := range g.gpus {
		out[i] = gpu
	}

	return out
}

func (g *Group) Report() string {
	var b strings.Builder

	b.WriteString("NVML\n\n")
	for _, gpu := range g.gpus {
		b.WriteString(gpu.Report())
	}

	return b.String()
}

// Close restores automatic fan control on every device, then ends the
// NVML session.
func (g *Group) Close() error {
	var errs []error
	for _, gpu := range g.gpus {
		if err := gpu.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := g.lib.Shutdown(); err != nil {
		errs = append(errs, err)
	}

	return joinErrors(errs)
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
