package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeSingle(t *testing.T, data string) Message {
	t.Helper()
	msgs := Decode(data)
	require.Len(t, msgs, 1)
	return msgs[0]
}

func TestDecodeConsoleAndRobotBatch(t *testing.T) {
	msgs := Decode("stdout:hello\n\nrobot:e-puck:speed 1:2\nstderr:oops\nbogus")
	require.Len(t, msgs, 4)
	assert.Equal(t, Stdout{Text: "hello"}, msgs[0])
	assert.Equal(t, RobotMessage{Robot: "e-puck", Text: "speed 1:2"}, msgs[1])
	assert.Equal(t, Stderr{Text: "oops"}, msgs[2])
	assert.Equal(t, Unknown{Raw: "bogus"}, msgs[3])
}

func TestDecodeRobotWithoutName(t *testing.T) {
	msg := decodeSingle(t, "robot:nocolon")
	assert.Equal(t, KindMalformed, msg.Kind())
}

func TestDecodePoseFrame(t *testing.T) {
	msg := decodeSingle(t, `application/json:{"time":320,"poses":[{"id":12,"translation":"0 1 2","rotation":"0 1 0 1.57"}]}`)
	frame, ok := msg.(PoseFrame)
	require.True(t, ok)
	assert.Equal(t, 320.0, frame.Frame.Time)
	require.Len(t, frame.Frame.Poses, 1)

	pose := frame.Frame.Poses[0]
	assert.Equal(t, "12", pose.ID)
	assert.Equal(t, []Field{{"translation", "0 1 2"}, {"rotation", "0 1 0 1.57"}}, pose.Fields)
}

func TestDecodePoseFrameWithoutPoses(t *testing.T) {
	frame, ok := decodeSingle(t, `application/json:{"time":16}`).(PoseFrame)
	require.True(t, ok)
	assert.Empty(t, frame.Frame.Poses)
}

func TestDecodeMalformedFrame(t *testing.T) {
	assert.Equal(t, KindMalformed, decodeSingle(t, `application/json:{"time":`).Kind())
	assert.Equal(t, KindMalformed, decodeSingle(t, `application/json:{"time":1,"poses":[{"translation":"0 0 0"}]}`).Kind())
}

func TestDecodeSceneMessages(t *testing.T) {
	assert.Equal(t, NodeAdded{XML: `<Transform id="n3"/>`}, decodeSingle(t, `node:<Transform id="n3"/>`))
	assert.Equal(t, NodeDeleted{ID: "3"}, decodeSingle(t, "delete: 3 "))
	assert.Equal(t, KindMalformed, decodeSingle(t, "delete:").Kind())
	assert.Equal(t, ModelReplaced{XML: "<Scene></Scene>"}, decodeSingle(t, "model: <Scene></Scene>\n"))
	assert.Equal(t, ModelReplaced{XML: ""}, decodeSingle(t, "model:"))
}

func TestDecodeImage(t *testing.T) {
	assert.Equal(t,
		ImageUpdate{URL: "textures/sky.png", Data: "data:image/png;base64,AA=="},
		decodeSingle(t, "image[textures/sky.png]:data:image/png;base64,AA=="))
	assert.Equal(t, KindMalformed, decodeSingle(t, "image[sky.png").Kind())
	assert.Equal(t, KindMalformed, decodeSingle(t, "image[sky.png]").Kind())
}

func TestDecodeVideo(t *testing.T) {
	assert.Equal(t, VideoAttach{URL: "rtsp://host/stream", StreamID: "7"}, decodeSingle(t, "video: rtsp://host/stream 7"))
	assert.Equal(t, KindMalformed, decodeSingle(t, "video: rtsp://host/stream").Kind())
}

func TestDecodeControllerFile(t *testing.T) {
	msg := decodeSingle(t, "set controller:braitenberg/braitenberg.c:3\n#include <stdio.h>\nint main() {}\n")
	assert.Equal(t, ControllerFile{
		Dir:     "braitenberg",
		File:    "braitenberg.c",
		Content: "#include <stdio.h>\nint main() {}\n",
	}, msg)

	assert.Equal(t, KindMalformed, decodeSingle(t, "set controller:nodir:1\nx").Kind())
	assert.Equal(t, KindMalformed, decodeSingle(t, "set controller:dir/file\nx").Kind())
}

func TestDecodeLiterals(t *testing.T) {
	assert.Equal(t, Pause{}, decodeSingle(t, "pause"))
	assert.Equal(t, SceneLoadCompleted{}, decodeSingle(t, "scene load completed"))
	assert.Equal(t, Unknown{Raw: "paused"}, decodeSingle(t, "paused"))
	assert.Equal(t, Unknown{Raw: "scene load completed "}, decodeSingle(t, "scene load completed "))
}

func TestDecodeBroker(t *testing.T) {
	assert.Equal(t, Redirect{URL: "ws://sim:1234"}, DecodeBroker("webots:ws://sim:1234"))
	assert.Equal(t, Redirect{URL: "wss://sim:1234"}, DecodeBroker("webots:wss://sim:1234"))
	assert.Equal(t, BrokerUnknown{Raw: "webots:http://sim"}, DecodeBroker("webots:http://sim"))
	assert.Equal(t, ControllerSpawned{Name: "braitenberg", Port: "8001"}, DecodeBroker("controller:braitenberg:8001"))
	assert.Equal(t, BrokerUnknown{Raw: "controller:noport"}, DecodeBroker("controller:noport"))
	assert.Equal(t, Queue{Waiting: "3"}, DecodeBroker("queue:3"))
	assert.Equal(t, Keepalive{}, DecodeBroker("."))
	assert.Equal(t, ResetController{Name: "braitenberg.c"}, DecodeBroker("reset controller: braitenberg.c"))
	assert.Equal(t, BrokerUnknown{Raw: "hello"}, DecodeBroker("hello"))
}
