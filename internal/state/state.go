// Package state persists the user's control settings to appstate.json and
// restores them at start.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"codeberg.org/mutker/hwcontrol/internal/errors"
	"codeberg.org/mutker/hwcontrol/internal/logger"
	"codeberg.org/mutker/hwcontrol/internal/tree"
)

const (
	ErrDecode = errors.ErrorCode("state_decode")
	ErrRead   = errors.ErrorCode("state_read")
	ErrWrite  = errors.ErrorCode("state_write")
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrDecode: "Failed to decode control settings",
		ErrRead:   "Failed to read control settings",
		ErrWrite:  "Failed to write control settings",
	})
}

type hardwareState struct {
	Name         string             `json:"Name"`
	Type         string             `json:"Type"`
	ControlTypes []controlTypeState `json:"ControlTypes"`
}

type controlTypeState struct {
	Name     string         `json:"Name"`
	Controls []controlState `json:"Controls"`
}

type controlState struct {
	ID             string        `json:"Id"`
	Name           string        `json:"Name"`
	IsLocked       bool          `json:"IsLocked"`
	ControllerType tree.Policy   `json:"ControllerType"`
	Value          float64       `json:"Value"`
	BindedSensorID string        `json:"BindedSensorId"`
	Markers        []markerState `json:"Markers"`
}

type markerState struct {
	X float64 `json:"X"`
	Y float64 `json:"Y"`
}

type Store struct {
	path string
	log  logger.Logger
	mu   sync.Mutex
}

func New(path string, log logger.Logger) *Store {
	return &Store{path: path, log: log}
}

func (s *Store) Path() string {
	return s.path
}

// Save writes every hardware node with its control settings. Sensors are
// not persisted.
func (s *Store) Save(t *tree.Tree) error {
	doc := encode(t)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.New().Wrap(ErrWrite, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFile(s.path, data); err != nil {
		return errors.New().Wrap(ErrWrite, err).WithData(s.path)
	}

	return nil
}

func encode(t *tree.Tree) []hardwareState {
	nodes := t.Hardware()
	doc := make([]hardwareState, 0, len(nodes))

	for _, h := range nodes {
		hs := hardwareState{Name: h.Name, Type: h.Type.String(), ControlTypes: []controlTypeState{}}
		for _, g := range h.ControlTypes {
			cts := controlTypeState{Name: g.Name(), Controls: make([]controlState, 0, len(g.Controls))}
			for _, c := range g.Controls {
				cs := controlState{
					ID:             c.Identifier().String(),
					Name:           c.Name(),
					IsLocked:       c.Locked(),
					ControllerType: c.Policy(),
					Value:          c.Value(),
					BindedSensorID: c.BoundSensorID(),
					Markers:        []markerState{},
				}
				for _, m := range c.Markers() {
					cs.Markers = append(cs.Markers, markerState{X: m.X, Y: m.Y})
				}
				cts.Controls = append(cts.Controls, cs)
			}
			hs.ControlTypes = append(hs.ControlTypes, cts)
		}
		doc = append(doc, hs)
	}

	return doc
}

// writeFile replaces path atomically.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}

// Load copies persisted settings onto the matching controls of t. Controls
// missing on either side are skipped. A missing or malformed file is
// logged and leaves the defaults in place.
func (s *Store) Load(t *tree.Tree) {
	applied, err := s.load(t)
	if err != nil {
		if errors.HasCode(err, ErrRead) && os.IsNotExist(errors.Unwrap(err)) {
			s.log.Info().Str("path", s.path).Msg("No saved control settings")
			return
		}
		s.log.Warn().Err(err).Str("path", s.path).Msg("Ignoring saved control settings")
		return
	}
	s.log.Info().Int("controls", applied).Str("path", s.path).Msg("Control settings restored")
}

func (s *Store) load(t *tree.Tree) (int, error) {
	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if err != nil {
		return 0, errors.New().Wrap(ErrRead, err)
	}

	var doc []hardwareState
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, errors.New().Wrap(ErrDecode, err)
	}

	applied := 0
	for _, h := range doc {
		for _, g := range h.ControlTypes {
			for _, cs := range g.Controls {
				node, ok := t.Control(cs.ID)
				if !ok {
					s.log.Debug().Str("control", cs.ID).Msg("Saved control no longer present")
					continue
				}
				restore(t, node, cs)
				applied++
			}
		}
	}

	return applied, nil
}

func restore(t *tree.Tree, n *tree.ControlNode, cs controlState) {
	markers := make([]tree.Marker, 0, len(cs.Markers))
	for _, m := range cs.Markers {
		markers = append(markers, tree.Marker{X: m.X, Y: m.Y})
	}

	var bound *tree.SensorNode
	if cs.BindedSensorID != "" {
		bound, _ = t.Sensor(cs.BindedSensorID)
	}

	n.SetLocked(cs.IsLocked)
	n.SetPolicy(cs.ControllerType)
	n.SetValue(cs.Value)
	n.SetMarkers(markers)
	n.Bind(cs.BindedSensorID, bound)
}

// Watch saves t whenever any control setting changes once started reports
// true. The returned func unsubscribes.
func (s *Store) Watch(t *tree.Tree, started func() bool) func() {
	save := func() {
		if !started() {
			return
		}
		if err := s.Save(t); err != nil {
			s.log.Error().Err(err).Msg("Failed to save control settings")
		}
	}

	var cancels []func()
	for _, c := range t.Controls() {
		cancels = append(cancels, c.Subscribe(save))
	}

	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}
