package exporter

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"codeberg.org/mutker/hwcontrol/internal/tree"
)

type hardwareView struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Type     string        `json:"type"`
	Sensors  []sensorView  `json:"sensors"`
	Controls []controlView `json:"controls"`
}

type sensorView struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Type  string  `json:"type"`
	Unit  string  `json:"unit"`
	Value float64 `json:"value"`
	Max   float64 `json:"max"`
}

type controlView struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Type        string        `json:"type"`
	Policy      string        `json:"policy"`
	Locked      bool          `json:"locked"`
	Value       float64       `json:"value"`
	Min         float64       `json:"min"`
	Max         float64       `json:"max"`
	BoundSensor string        `json:"boundSensor,omitempty"`
	Markers     []tree.Marker `json:"markers,omitempty"`
}

func (s *Server) handleHardware(w http.ResponseWriter, _ *http.Request) {
	nodes := s.tree.Hardware()
	out := make([]hardwareView, 0, len(nodes))

	for _, h := range nodes {
		hv := hardwareView{
			ID:       h.ID.String(),
			Name:     h.Name,
			Type:     h.Type.String(),
			Sensors:  []sensorView{},
			Controls: []controlView{},
		}
		for _, g := range h.SensorTypes {
			for _, n := range g.Sensors {
				hv.Sensors = append(hv.Sensors, sensorView{
					ID:    n.Identifier().String(),
					Name:  n.Name(),
					Type:  g.Name(),
					Unit:  string(n.Unit()),
					Value: n.Value(),
					Max:   n.Max(),
				})
			}
		}
		for _, g := range h.ControlTypes {
			for _, n := range g.Controls {
				hv.Controls = append(hv.Controls, controlView{
					ID:          n.Identifier().String(),
					Name:        n.Name(),
					Type:        g.Name(),
					Policy:      n.Policy().String(),
					Locked:      n.Locked(),
					Value:       n.Value(),
					Min:         n.Min(),
					Max:         n.Max(),
					BoundSensor: n.BoundSensorID(),
					Markers:     n.Markers(),
				})
			}
		}
		out = append(out, hv)
	}

	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReport(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, s.reporter.Report())
}

// handleHistory serves the recorded samples of the sensor whose identifier
// follows /api/history, or the in-memory history when recording is off.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := "/" + chi.URLParam(r, "*")

	since := time.Now().Add(-historyWindow)
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be RFC3339"})
			return
		}
		since = t
	}

	if s.history != nil && s.history.Enabled() {
		points, err := s.history.Series(r.Context(), id, since)
		if err != nil {
			s.log.Error().Err(err).Str("sensor", id).Msg("History query failed")
			s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		s.writeJSON(w, http.StatusOK, points)
		return
	}

	node, ok := s.tree.Sensor(id)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown sensor " + id})
		return
	}

	samples := []tree.Sample{}
	for _, sample := range node.History() {
		if !sample.Time.Before(since) {
			samples = append(samples, sample)
		}
	}
	s.writeJSON(w, http.StatusOK, samples)
}
