package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/hwcontrol/internal/errors"
	"codeberg.org/mutker/hwcontrol/internal/hardware"
	"codeberg.org/mutker/hwcontrol/internal/logger"
	"codeberg.org/mutker/hwcontrol/internal/tree"
)

type board struct {
	*hardware.Base
}

func (b *board) Update() {}

// newTree mirrors one CPU with two voltage offset controls and a
// temperature sensor with identifier S1.
func newTree(controls ...int) *tree.Tree {
	b := &board{Base: hardware.NewBase("CPU", hardware.NewIdentifier("intelcpu", "0"), hardware.TypeCPU)}
	t := tree.New()
	node := t.Node(b)

	sensor := hardware.NewSensor("Package", 0, hardware.SensorTemperature, hardware.NewIdentifier("s1"))
	t.AddSensor(node, tree.NewSensorNode(sensor, 100))

	for _, i := range controls {
		c := b.NewControl("Offset", i, hardware.ControlVoltageOffset, -150, 150, nil, nil)
		t.AddControl(node, tree.NewControlNode(c, 100))
	}

	return t
}

func control(t *testing.T, tr *tree.Tree, id string) *tree.ControlNode {
	t.Helper()
	n, ok := tr.Control(id)
	require.True(t, ok, id)
	return n
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appstate.json")
	store := New(path, logger.Nop())

	src := newTree(0, 1)
	n := control(t, src, "/intelcpu/0/voltageoffset/0")
	n.SetLocked(false)
	n.SetPolicy(tree.PolicyCurve)
	n.SetValue(-40)
	n.SetMarkers([]tree.Marker{{X: 0, Y: 10}, {X: 50, Y: 60}, {X: 100, Y: 90}})
	n.Bind("/s1/temperature/0", nil)
	require.NoError(t, store.Save(src))

	dst := newTree(0, 1)
	applied, err := store.load(dst)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	got := control(t, dst, "/intelcpu/0/voltageoffset/0")
	assert.False(t, got.Locked())
	assert.Equal(t, tree.PolicyCurve, got.Policy())
	assert.Equal(t, -40.0, got.Value())
	assert.Equal(t, []tree.Marker{{X: 0, Y: 10}, {X: 50, Y: 60}, {X: 100, Y: 90}}, got.Markers())
	assert.Equal(t, "/s1/temperature/0", got.BoundSensorID())
	require.NotNil(t, got.BoundSensor())
	assert.Len(t, got.Samples(), 100)

	other := control(t, dst, "/intelcpu/0/voltageoffset/1")
	assert.True(t, other.Locked())
	assert.Equal(t, tree.PolicyDefault, other.Policy())
}

func TestFileShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appstate.json")
	store := New(path, logger.Nop())

	src := newTree(2)
	n := control(t, src, "/intelcpu/0/voltageoffset/2")
	n.SetPolicy(tree.PolicyFixed)
	n.SetValue(-25)
	require.NoError(t, store.Save(src))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc []map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc, 1)
	assert.Equal(t, "CPU", doc[0]["Name"])
	assert.Equal(t, "Cpu", doc[0]["Type"])
	assert.NotContains(t, doc[0], "SensorTypes")

	types := doc[0]["ControlTypes"].([]any)
	require.Len(t, types, 1)
	group := types[0].(map[string]any)
	assert.Equal(t, "VoltageOffset", group["Name"])

	c := group["Controls"].([]any)[0].(map[string]any)
	assert.Equal(t, "/intelcpu/0/voltageoffset/2", c["Id"])
	assert.Equal(t, true, c["IsLocked"])
	assert.Equal(t, float64(1), c["ControllerType"])
	assert.Equal(t, -25.0, c["Value"])
	assert.Equal(t, "", c["BindedSensorId"])
	assert.Equal(t, []any{}, c["Markers"])
}

func TestLoadNamedType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appstate.json")
	doc := `[{"Name":"CPU","Type":"Cpu","ControlTypes":[{"Name":"VoltageOffset","Controls":[
		{"Id":"/intelcpu/0/voltageoffset/0","Name":"Offset","IsLocked":false,"ControllerType":1,
		 "Value":-25,"BindedSensorId":"","Markers":[]}]}]}]`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	store := New(path, logger.Nop())

	dst := newTree(0)
	applied, err := store.load(dst)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	got := control(t, dst, "/intelcpu/0/voltageoffset/0")
	assert.False(t, got.Locked())
	assert.Equal(t, tree.PolicyFixed, got.Policy())
	assert.Equal(t, -25.0, got.Value())
}

func TestLoadSkipsDrift(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appstate.json")
	store := New(path, logger.Nop())

	src := newTree(0, 3)
	control(t, src, "/intelcpu/0/voltageoffset/3").SetValue(-60)
	control(t, src, "/intelcpu/0/voltageoffset/0").SetValue(-10)
	require.NoError(t, store.Save(src))

	dst := newTree(0, 4)
	applied, err := store.load(dst)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, -10.0, control(t, dst, "/intelcpu/0/voltageoffset/0").Value())
	assert.Zero(t, control(t, dst, "/intelcpu/0/voltageoffset/4").Value())
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appstate.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	store := New(path, logger.Nop())

	dst := newTree(0)
	_, err := store.load(dst)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrDecode))

	assert.NotPanics(t, func() { store.Load(dst) })
	assert.True(t, control(t, dst, "/intelcpu/0/voltageoffset/0").Locked())
}

func TestLoadMissingFile(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "absent.json"), logger.Nop())

	_, err := store.load(newTree(0))
	assert.True(t, errors.HasCode(err, ErrRead))
	assert.NotPanics(t, func() { store.Load(newTree(0)) })
}

func TestWatchSavesOnlyAfterStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appstate.json")
	store := New(path, logger.Nop())
	tr := newTree(0)
	n := control(t, tr, "/intelcpu/0/voltageoffset/0")

	var started atomic.Bool
	cancel := store.Watch(tr, started.Load)

	n.SetValue(-20)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	started.Store(true)
	n.SetValue(-30)
	dst := newTree(0)
	_, err = store.load(dst)
	require.NoError(t, err)
	assert.Equal(t, -30.0, control(t, dst, "/intelcpu/0/voltageoffset/0").Value())

	cancel()
	n.SetValue(-45)
	dst = newTree(0)
	_, err = store.load(dst)
	require.NoError(t, err)
	assert.Equal(t, -30.0, control(t, dst, "/intelcpu/0/voltageoffset/0").Value())
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := New(filepath.Join(dir, "appstate.json"), logger.Nop())
	require.NoError(t, store.Save(newTree(0)))
	require.NoError(t, store.Save(newTree(0)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "appstate.json", entries[0].Name())
}
