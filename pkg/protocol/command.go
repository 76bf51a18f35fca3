package protocol

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Client commands without arguments.
const (
	CommandPause  = "pause"
	CommandStep   = "step"
	CommandRevert = "revert"
)

// Stream modes announced when the streaming socket opens.
const (
	ModeX3D   = "x3d"
	ModeVideo = "video"
)

// Mouse event types of the video mode.
const (
	MouseDown  = -1
	MouseMove  = 0
	MouseUp    = 1
	MouseWheel = 2
)

// Modifier bits of a mouse event.
const (
	ModifierShift = 1
	ModifierCtrl  = 2
	ModifierAlt   = 4
)

// MouseEvent is a pointer event forwarded to a video-mode server.
type MouseEvent struct {
	Type        int
	Button      int
	ButtonsMask int
	X, Y        int
	Modifiers   int
	Wheel       int
}

// ModeString builds the first message sent on the streaming socket.
func ModeString(mode string, width, height int, broadcast bool) string {
	if mode == ModeVideo {
		return mode + ": " + strconv.Itoa(width) + "x" + strconv.Itoa(height)
	}
	if broadcast {
		return mode + ";broadcast"
	}
	return mode
}

// RealTime resumes the simulation with the given timeout in milliseconds.
func RealTime(timeoutMs float64) string {
	return prefixRealTime + strconv.FormatFloat(timeoutMs, 'f', -1, 64)
}

// Resize announces a new video size.
func Resize(width, height int) string {
	return prefixResize + strconv.Itoa(width) + "x" + strconv.Itoa(height)
}

// Robot addresses text to a robot controller.
func Robot(robot, message string) string {
	return prefixRobot + robot + ":" + message
}

// Mouse encodes a video-mode pointer event.
func Mouse(ev MouseEvent) string {
	parts := []int{ev.Type, ev.Button, ev.ButtonsMask, ev.X, ev.Y, ev.Modifiers, ev.Wheel}
	var b strings.Builder
	b.WriteString(strings.TrimSpace(prefixMouse))
	for _, p := range parts {
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(p))
	}
	return b.String()
}

// SyncController asks the server to resynchronize a controller.
func SyncController(name string) string {
	return prefixSyncCtrl + name
}

// GetController requests the source files of a controller directory.
func GetController(dir string) string {
	return prefixGetCtrl + dir
}

// SetController uploads a controller file. The header carries the number of
// lines of content.
func SetController(dir, file, content string) string {
	lines := strings.Count(content, "\n") + 1
	return prefixSetCtrl + dir + "/" + file + ":" + strconv.Itoa(lines) + "\n" + content
}

// Init is the first message sent on the broker socket.
func Init(origin, project, world, user string) (string, error) {
	b, err := json.Marshal(map[string][]string{"init": {origin, project, world, user}})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ResetControllerRequest asks the broker to restore a controller file.
func ResetControllerRequest(name string) (string, error) {
	b, err := json.Marshal(map[string]string{"reset controller": name})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
