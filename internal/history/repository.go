package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/hwcontrol/internal/errors"
	"codeberg.org/mutker/hwcontrol/internal/logger"
	"codeberg.org/mutker/hwcontrol/internal/snapshot"
	_ "github.com/mattn/go-sqlite3"
)

// maxPendingBatches bounds the readings kept while the database rejects
// writes. The oldest are dropped first.
const maxPendingBatches = 4

type repository struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           Config
	mu            sync.Mutex
	buffer        []snapshot.Reading
	dropping      bool
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
}

func newRepository(cfg Config, log logger.Logger) (*repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, cfg.DBPath, log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Dur("batch_timeout", cfg.BatchTimeout).
		Msg("History repository initialized")

	repo := &repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		buffer:        make([]snapshot.Reading, 0, cfg.BatchSize),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	if cfg.BatchSize > 0 && cfg.BatchTimeout > 0 {
		repo.flushTicker = time.NewTicker(cfg.BatchTimeout)
		go repo.flusher()
	} else {
		close(repo.flushDoneChan)
	}

	return repo, nil
}

func (r *repository) record(readings []snapshot.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, readings...)

	if len(r.buffer) >= r.cfg.BatchSize {
		if err := r.flush(); err != nil {
			r.trim(max(r.cfg.BatchSize, len(readings)) * maxPendingBatches)
			return err
		}
	}

	return nil
}

// trim drops the oldest pending readings beyond limit. Callers hold r.mu.
func (r *repository) trim(limit int) {
	over := len(r.buffer) - limit
	if over <= 0 {
		return
	}
	if !r.dropping {
		r.dropping = true
		r.logger.Warn().Int("limit", limit).Msg("History backlog full, dropping oldest readings")
	}
	r.buffer = append(r.buffer[:0], r.buffer[over:]...)
}

// series returns the stored samples of one sensor since the given time.
func (r *repository) series(ctx context.Context, sensorID string, since time.Time) ([]Point, error) {
	r.mu.Lock()
	if err := r.flush(); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, selectSeriesSQL, sensorID, since.UnixMilli())
	if err != nil {
		return nil, errors.New().Wrap(ErrQueryFailed, err)
	}
	defer rows.Close()

	var out []Point
	for rows.Next() {
		var (
			ms    int64
			value float64
		)
		if err := rows.Scan(&ms, &value); err != nil {
			return nil, errors.New().Wrap(ErrQueryFailed, err)
		}
		out = append(out, Point{Time: time.UnixMilli(ms), Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New().Wrap(ErrQueryFailed, err)
	}

	return out, nil
}

func (r *repository) close() error {
	close(r.shutdownChan)
	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}
	<-r.flushDoneChan

	r.mu.Lock()
	err := r.flush()
	r.mu.Unlock()
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to flush pending readings")
	}

	// Checkpoint WAL and cleanup on close
	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Info().Msg("History repository closed gracefully")

	return nil
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Error().Err(err).Msg("Periodic flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			return
		}
	}
}

// flush writes the buffer in one transaction. Callers hold r.mu.
func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.Prepare(insertReadingSQL)
	if err != nil {
		if err := tx.Rollback(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, reading := range r.buffer {
		values := []interface{}{
			reading.Time.UnixMilli(),
			reading.Sensor.String(),
			reading.Hardware.String(),
			reading.Name,
			reading.Type.String(),
			reading.Value,
		}

		if _, err := stmt.Exec(values...); err != nil {
			if err := tx.Rollback(); err != nil {
				r.logger.Error().Err(err).Msg("Failed to roll back transaction")
			}
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	r.logger.Debug().Int("records", len(r.buffer)).Msg("Flushed readings to database")
	r.buffer = r.buffer[:0]
	r.dropping = false

	return nil
}
