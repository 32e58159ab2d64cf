// Package history records mirrored sensor readings to SQLite.
package history

import (
	"context"
	"time"

	"codeberg.org/mutker/hwcontrol/internal/errors"
	"codeberg.org/mutker/hwcontrol/internal/logger"
	"codeberg.org/mutker/hwcontrol/internal/snapshot"
)

// Point is one stored sample.
type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Recorder persists the readings of every snapshot cycle.
type Recorder interface {
	snapshot.Recorder
	Series(ctx context.Context, sensorID string, since time.Time) ([]Point, error)
	Close() error
	Enabled() bool
}

type service struct {
	repo *repository
	log  logger.Logger
}

type noopRecorder struct{}

// New returns a SQLite backed recorder, or a no-op one when recording is
// disabled.
func New(cfg Config, log logger.Logger) (Recorder, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("History recording disabled, using no-op recorder")
		return noopRecorder{}, nil
	}

	repo, err := newRepository(cfg, log)
	if err != nil {
		return nil, err
	}

	return &service{repo: repo, log: log}, nil
}

// Record buffers the readings; a failed flush is logged and the readings
// stay buffered for the next attempt.
func (s *service) Record(readings []snapshot.Reading) {
	if len(readings) == 0 {
		return
	}
	if err := s.repo.record(readings); err != nil {
		s.log.Error().Err(err).Msg("Failed to record sensor history")
	}
}

func (s *service) Series(ctx context.Context, sensorID string, since time.Time) ([]Point, error) {
	return s.repo.series(ctx, sensorID, since)
}

func (s *service) Close() error {
	return s.repo.close()
}

func (*service) Enabled() bool { return true }

func (noopRecorder) Record([]snapshot.Reading) {}

func (noopRecorder) Series(context.Context, string, time.Time) ([]Point, error) {
	return nil, nil
}

func (noopRecorder) Close() error  { return nil }
func (noopRecorder) Enabled() bool { return false }
