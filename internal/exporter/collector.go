package exporter

import (
	"github.com/prometheus/client_golang/prometheus"

	"codeberg.org/mutker/hwcontrol/internal/tree"
)

const namespace = "hwcontrol"

var (
	sensorValueDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "sensor", "value"),
		"Current mirrored sensor value in the unit given by the unit label.",
		[]string{"hardware", "sensor", "name", "type", "unit"}, nil,
	)
	sensorMaxDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "sensor", "max"),
		"Highest sensor value seen since start.",
		[]string{"hardware", "sensor", "name", "type", "unit"}, nil,
	)
	controlValueDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "control", "value"),
		"Target value configured for a control.",
		[]string{"hardware", "control", "name", "type", "policy"}, nil,
	)
	controlLockedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "control", "locked"),
		"1 when the control is left to the hardware.",
		[]string{"hardware", "control", "name", "type"}, nil,
	)
)

// Collector exposes the mirrored tree. Values are read at scrape time.
type Collector struct {
	tree *tree.Tree
}

func NewCollector(t *tree.Tree) *Collector {
	return &Collector{tree: t}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- sensorValueDesc
	ch <- sensorMaxDesc
	ch <- controlValueDesc
	ch <- controlLockedDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, h := range c.tree.Hardware() {
		hw := h.ID.String()

		for _, g := range h.SensorTypes {
			for _, s := range g.Sensors {
				labels := []string{hw, s.Identifier().String(), s.Name(), g.Name(), string(s.Unit())}
				ch <- prometheus.MustNewConstMetric(sensorValueDesc, prometheus.GaugeValue, s.Value(), labels...)
				ch <- prometheus.MustNewConstMetric(sensorMaxDesc, prometheus.GaugeValue, s.Max(), labels...)
			}
		}

		for _, g := range h.ControlTypes {
			for _, n := range g.Controls {
				id := n.Identifier().String()
				ch <- prometheus.MustNewConstMetric(controlValueDesc, prometheus.GaugeValue, n.Value(),
					hw, id, n.Name(), g.Name(), n.Policy().String())

				locked := 0.0
				if n.Locked() {
					locked = 1
				}
				ch <- prometheus.MustNewConstMetric(controlLockedDesc, prometheus.GaugeValue, locked,
					hw, id, n.Name(), g.Name())
			}
		}
	}
}
