// Package dell drives the fans of Dell laptops through the i8k interface
// of the dell-smm-hwmon driver. The driver must be loaded with
// restricted=0 for fan writes to succeed.
package dell

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/hwcontrol/internal/errors"
	"codeberg.org/mutker/hwcontrol/internal/hardware"
	"codeberg.org/mutker/hwcontrol/internal/logger"
)

const (
	defaultProcPath = "/proc/i8k"
	fanCount        = 2
	minLevel        = 0
	maxLevel        = 2
	commandTimeout  = 5 * time.Second

	fanParameterName = "Fan"
	fanParameterDesc = "Fan level restored when control is released."
)

const ErrStatusFormat = errors.ErrorCode("dell_status_format")

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrStatusFormat: "Unexpected i8k status format",
	})
}

// Runner executes an external command.
type Runner func(ctx context.Context, name string, args ...string) error

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// status is one parsed line of /proc/i8k.
type status struct {
	levels [fanCount]float64
	rpms   [fanCount]float64
}

// parseStatus reads the fan fields of /proc/i8k: fields 4 and 5 are the
// left and right fan levels, 6 and 7 their speeds in RPM.
func parseStatus(raw string) (status, error) {
	var st status

	fields := strings.Fields(raw)
	if len(fields) < 8 {
		return st, errors.New().WithData(ErrStatusFormat, raw)
	}
	for i := 0; i < fanCount; i++ {
		level, err := strconv.ParseFloat(fields[4+i], 64)
		if err != nil {
			return st, errors.New().Wrap(ErrStatusFormat, err)
		}
		rpm, err := strconv.ParseFloat(fields[6+i], 64)
		if err != nil {
			return st, errors.New().Wrap(ErrStatusFormat, err)
		}
		st.levels[i] = level
		st.rpms[i] = rpm
	}

	return st, nil
}

// fanArgs builds the i8kctl arguments setting fan (1 or 2) to level and
// leaving the other fan unchanged.
func fanArgs(fan int, level int) []string {
	args := []string{"fan", "-", "-"}
	args[fan] = strconv.Itoa(level)

	return args
}

// Dell is the i8k fan controller of one board.
type Dell struct {
	*hardware.Base

	procPath string
	run      Runner
	log      logger.Logger

	levels []*hardware.Sensor
	speeds []*hardware.Sensor
	failed error
}

func newDell(board, procPath string, run Runner, log logger.Logger) (*Dell, error) {
	raw, err := os.ReadFile(procPath)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrUnavailable, err).WithData(procPath)
	}
	if _, err := parseStatus(string(raw)); err != nil {
		return nil, err
	}

	d := &Dell{
		Base:     hardware.NewBase("Dell", hardware.NewIdentifier("dell", board), hardware.TypeCooler),
		procPath: procPath,
		run:      run,
		log:      log.With("hardware", "dell"),
	}

	for i := 1; i <= fanCount; i++ {
		level := d.NewSensor(fmt.Sprintf("Fan%d Level", i), i, hardware.SensorFanLevel)
		level.AddValueParameter(fanParameterName, fanParameterDesc, 0)
		level.AddRangeParameter(minLevel, maxLevel)
		d.levels = append(d.levels, level)
		d.ActivateSensor(level)

		speed := d.NewSensor(fmt.Sprintf("Fan%d Speed", i), i, hardware.SensorFan)
		speed.AddValueParameter(fanParameterName, fanParameterDesc, 0)
		d.speeds = append(d.speeds, speed)
		d.ActivateSensor(speed)

		d.ActivateControl(d.NewControl(fmt.Sprintf("Fan%d FanLevel", i), i, hardware.ControlFanLevel,
			minLevel, maxLevel, d.setLevel, func(fan int, level float64) error {
				_, err := d.setLevel(fan, level)
				return err
			}))
	}

	return d, nil
}

func (d *Dell) setLevel(fan int, value float64) (float64, error) {
	level := int(math.RoundToEven(value))

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := d.run(ctx, "i8kctl", fanArgs(fan, level)...); err != nil {
		return 0, err
	}
	d.log.Debug().Int("fan", fan).Int("level", level).Msg("Fan level set")

	return float64(level), nil
}

// Update reads /proc/i8k. Failures leave the previous values in place.
func (d *Dell) Update() {
	raw, err := os.ReadFile(d.procPath)
	if err == nil {
		var st status
		if st, err = parseStatus(string(raw)); err == nil {
			for i := 0; i < fanCount; i++ {
				d.levels[i].SetValue(st.levels[i])
				d.speeds[i].SetValue(st.rpms[i])
			}
		}
	}
	d.failed = err
	if err != nil {
		d.log.Debug().Err(err).Msg("Failed to read i8k status")
	}
}

func (d *Dell) Report() string {
	var b strings.Builder

	b.WriteString("Dell\n\n")
	if d.failed != nil {
		b.WriteString("Failed to read i8k status.\n")
		b.WriteString(d.failed.Error() + "\n")
	}
	b.WriteString("\n")

	return b.String()
}
