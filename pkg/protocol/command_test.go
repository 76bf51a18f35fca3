package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeString(t *testing.T) {
	assert.Equal(t, "x3d", ModeString(ModeX3D, 0, 0, false))
	assert.Equal(t, "x3d;broadcast", ModeString(ModeX3D, 0, 0, true))
	assert.Equal(t, "video: 800x600", ModeString(ModeVideo, 800, 600, false))
}

func TestCommands(t *testing.T) {
	assert.Equal(t, "real-time:60000", RealTime(60000))
	assert.Equal(t, "real-time:-1", RealTime(-1))
	assert.Equal(t, "real-time:1500.5", RealTime(1500.5))
	assert.Equal(t, "resize: 1024x768", Resize(1024, 768))
	assert.Equal(t, "robot:e-puck:hello", Robot("e-puck", "hello"))
	assert.Equal(t, "mouse -1 0 1 10 20 3 0", Mouse(MouseEvent{Type: MouseDown, ButtonsMask: 1, X: 10, Y: 20, Modifiers: ModifierShift | ModifierCtrl}))
	assert.Equal(t, "sync controller:braitenberg", SyncController("braitenberg"))
	assert.Equal(t, "get controller:braitenberg", GetController("braitenberg"))
	assert.Equal(t, "set controller:braitenberg/main.c:2\nint x;\nint y;", SetController("braitenberg", "main.c", "int x;\nint y;"))
}

func TestSetControllerRoundTrip(t *testing.T) {
	msg := decodeSingle(t, SetController("dir", "file.py", "print(1)\n"))
	assert.Equal(t, ControllerFile{Dir: "dir", File: "file.py", Content: "print(1)\n"}, msg)
}

func TestInit(t *testing.T) {
	msg, err := Init("https://example.com", "simple", "simple.wbt", "a@b.c:pw")
	require.NoError(t, err)
	assert.JSONEq(t, `{"init":["https://example.com","simple","simple.wbt","a@b.c:pw"]}`, msg)

	reset, err := ResetControllerRequest("main.c")
	require.NoError(t, err)
	assert.JSONEq(t, `{"reset controller":"main.c"}`, reset)
}

func TestPoseMarshal(t *testing.T) {
	b, err := json.Marshal(Pose{ID: "4", Fields: []Field{{"translation", "1 2 3"}}})
	require.NoError(t, err)
	assert.Equal(t, `{"id":4,"translation":"1 2 3"}`, string(b))

	var back Pose
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, "4", back.ID)
	v, ok := back.Get("translation")
	assert.True(t, ok)
	assert.Equal(t, "1 2 3", v)
}
