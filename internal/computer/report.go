package computer

import (
	"fmt"
	"io"
	"runtime"
	"strconv"
	"strings"

	"codeberg.org/mutker/hwcontrol/internal/hardware"
)

// Version is reported in the header; the build overrides it.
var Version = "dev"

func newSection(w io.Writer) {
	fmt.Fprintf(w, "%s\n\n", strings.Repeat("-", 80))
}

// Report renders the sensor tree, the parameter tree and every group and
// hardware report.
func (c *Computer) Report() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var w strings.Builder

	fmt.Fprintf(&w, "\nhwcontrol Report\n\n")

	newSection(&w)
	fmt.Fprintf(&w, "Version: %s\n\n", Version)

	newSection(&w)
	fmt.Fprintf(&w, "Go Runtime: %s\n", runtime.Version())
	fmt.Fprintf(&w, "Operating System: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&w, "Process Type: %d-Bit\n", strconv.IntSize)
	if c.dmi != (DMI{}) {
		fmt.Fprintf(&w, "System: %s %s\n", c.dmi.SystemVendor, c.dmi.SystemProduct)
	}
	w.WriteString("\n")

	newSection(&w)
	w.WriteString("Sensors\n\n")
	for _, e := range c.groups {
		for _, h := range e.group.Hardware() {
			sensorTree(&w, h, "")
		}
	}
	w.WriteString("\n")

	newSection(&w)
	w.WriteString("Parameters\n\n")
	for _, e := range c.groups {
		for _, h := range e.group.Hardware() {
			parameterTree(&w, h, "")
		}
	}
	w.WriteString("\n")

	for _, e := range c.groups {
		if report := e.group.Report(); report != "" {
			newSection(&w)
			w.WriteString(report)
		}
		for _, h := range e.group.Hardware() {
			hardwareReport(&w, h)
		}
	}

	return w.String()
}

func sortedSensors(h hardware.Hardware) []*hardware.Sensor {
	sensors := h.Sensors()
	hardware.SortSensors(sensors)
	return sensors
}

func sensorTree(w io.Writer, h hardware.Hardware, space string) {
	fmt.Fprintf(w, "%s|\n", space)
	fmt.Fprintf(w, "%s+- %s (%s)\n", space, h.Name(), h.Identifier())

	for _, s := range sortedSensors(h) {
		fmt.Fprintf(w, "%s|  +- %-14s : %8.6g (%s)\n", space, s.Name(), s.Value(), s.Identifier())
	}
	for _, sub := range h.SubHardware() {
		sensorTree(w, sub, "|  ")
	}
}

func parameterTree(w io.Writer, h hardware.Hardware, space string) {
	fmt.Fprintf(w, "%s|\n", space)
	fmt.Fprintf(w, "%s+- %s (%s)\n", space, h.Name(), h.Identifier())

	inner := space + "|  "
	for _, s := range sortedSensors(h) {
		params := s.Parameters()
		if len(params) == 0 {
			continue
		}
		fmt.Fprintf(w, "%s|\n", inner)
		fmt.Fprintf(w, "%s+- %s (%s)\n", inner, s.Name(), s.Identifier())
		for _, p := range params {
			if p.Kind == hardware.ParameterValue {
				fmt.Fprintf(w, "%s|  +- %s : %g\n", inner, p.Name, p.Value)
			} else {
				fmt.Fprintf(w, "%s|  +- %s : %g - %g\n", inner, p.Name, p.Min, p.Max)
			}
		}
	}
	for _, sub := range h.SubHardware() {
		parameterTree(w, sub, "|  ")
	}
}

func hardwareReport(w io.Writer, h hardware.Hardware) {
	if report := h.Report(); report != "" {
		newSection(w)
		fmt.Fprint(w, report)
	}
	for _, sub := range h.SubHardware() {
		hardwareReport(w, sub)
	}
}
