// Package protocol decodes the line-oriented streaming protocol spoken by the
// simulation server into typed messages, and encodes the client's commands.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind names a message variant. It is used as a metrics key.
type Kind string

const (
	KindRobot              Kind = "robot"
	KindStdout             Kind = "stdout"
	KindStderr             Kind = "stderr"
	KindPoseFrame          Kind = "frame"
	KindNodeAdded          Kind = "node"
	KindNodeDeleted        Kind = "delete"
	KindModelReplaced      Kind = "model"
	KindImageUpdate        Kind = "image"
	KindVideoAttach        Kind = "video"
	KindControllerFile     Kind = "set_controller"
	KindPause              Kind = "pause"
	KindSceneLoadCompleted Kind = "scene_load_completed"
	KindUnknown            Kind = "unknown"
	KindMalformed          Kind = "malformed"
)

// Literal messages.
const (
	PauseLiteral              = "pause"
	SceneLoadCompletedLiteral = "scene load completed"
)

const (
	prefixRobot     = "robot:"
	prefixStdout    = "stdout:"
	prefixStderr    = "stderr:"
	prefixFrame     = "application/json:"
	prefixNode      = "node:"
	prefixDelete    = "delete:"
	prefixModel     = "model:"
	prefixImage     = "image["
	prefixVideo     = "video: "
	prefixSetCtrl   = "set controller:"
	prefixGetCtrl   = "get controller:"
	prefixSyncCtrl  = "sync controller:"
	prefixRealTime  = "real-time:"
	prefixResize    = "resize: "
	prefixMouse     = "mouse "
	prefixRedirect  = "webots:"
	prefixSpawned   = "controller:"
	prefixQueue     = "queue:"
	prefixResetCtrl = "reset controller:"
)

// Message is one decoded stream message. The set of implementations is closed.
type Message interface {
	Kind() Kind
	isMessage()
}

// RobotMessage is text addressed to a robot window.
type RobotMessage struct {
	Robot string
	Text  string
}

// Stdout is a line printed by a controller on its standard output.
type Stdout struct{ Text string }

// Stderr is a line printed by a controller on its standard error.
type Stderr struct{ Text string }

// PoseFrame carries the simulation time and the poses changed at that time.
type PoseFrame struct{ Frame Frame }

// NodeAdded carries an XML fragment to append to the scene root.
type NodeAdded struct{ XML string }

// NodeDeleted names the wire id of a node to remove.
type NodeDeleted struct{ ID string }

// ModelReplaced carries a whole scene document. An empty XML means teardown only.
type ModelReplaced struct{ XML string }

// ImageUpdate replaces a texture reference by new image data.
type ImageUpdate struct {
	URL  string
	Data string
}

// VideoAttach announces a video sub-stream.
type VideoAttach struct {
	URL      string
	StreamID string
}

// ControllerFile is a controller source file sent by the server.
type ControllerFile struct {
	Dir     string
	File    string
	Content string
}

// Pause reports that the simulation was paused.
type Pause struct{}

// SceneLoadCompleted reports that the scene is ready to receive frames.
type SceneLoadCompleted struct{}

// Unknown is a message with no recognized prefix.
type Unknown struct{ Raw string }

// Malformed is a message whose prefix was recognized but whose payload was not.
type Malformed struct {
	Raw string
	Err error
}

func (RobotMessage) Kind() Kind       { return KindRobot }
func (Stdout) Kind() Kind             { return KindStdout }
func (Stderr) Kind() Kind             { return KindStderr }
func (PoseFrame) Kind() Kind          { return KindPoseFrame }
func (NodeAdded) Kind() Kind          { return KindNodeAdded }
func (NodeDeleted) Kind() Kind        { return KindNodeDeleted }
func (ModelReplaced) Kind() Kind      { return KindModelReplaced }
func (ImageUpdate) Kind() Kind        { return KindImageUpdate }
func (VideoAttach) Kind() Kind        { return KindVideoAttach }
func (ControllerFile) Kind() Kind     { return KindControllerFile }
func (Pause) Kind() Kind              { return KindPause }
func (SceneLoadCompleted) Kind() Kind { return KindSceneLoadCompleted }
func (Unknown) Kind() Kind            { return KindUnknown }
func (Malformed) Kind() Kind          { return KindMalformed }

func (RobotMessage) isMessage()       {}
func (Stdout) isMessage()             {}
func (Stderr) isMessage()             {}
func (PoseFrame) isMessage()          {}
func (NodeAdded) isMessage()          {}
func (NodeDeleted) isMessage()        {}
func (ModelReplaced) isMessage()      {}
func (ImageUpdate) isMessage()        {}
func (VideoAttach) isMessage()        {}
func (ControllerFile) isMessage()     {}
func (Pause) isMessage()              {}
func (SceneLoadCompleted) isMessage() {}
func (Unknown) isMessage()            {}
func (Malformed) isMessage()          {}

var (
	errMissingRobotName = errors.New("robot message without a robot name")
	errMissingID        = errors.New("delete message without an id")
	errBadImage         = errors.New("image message without [url]:")
	errBadVideo         = errors.New("video message requires a url and a stream id")
	errBadController    = errors.New("set controller message requires <dir>/<file>:")
)

// Decode turns one socket message into one or more typed messages. Console
// and robot messages may be batched one per line; every other message maps to
// exactly one value. Decode never fails: bad payloads become Malformed.
func Decode(data string) []Message {
	if strings.HasPrefix(data, prefixRobot) ||
		strings.HasPrefix(data, prefixStdout) ||
		strings.HasPrefix(data, prefixStderr) {
		return decodeLines(data)
	}
	return []Message{decodeOne(data)}
}

func decodeLines(data string) []Message {
	lines := strings.Split(data, "\n")
	msgs := make([]Message, 0, len(lines))
	for _, line := range lines {
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, prefixStdout):
			msgs = append(msgs, Stdout{Text: line[len(prefixStdout):]})
		case strings.HasPrefix(line, prefixStderr):
			msgs = append(msgs, Stderr{Text: line[len(prefixStderr):]})
		case strings.HasPrefix(line, prefixRobot):
			rest := line[len(prefixRobot):]
			colon := strings.IndexByte(rest, ':')
			if colon < 0 {
				msgs = append(msgs, Malformed{Raw: line, Err: errMissingRobotName})
				continue
			}
			msgs = append(msgs, RobotMessage{Robot: rest[:colon], Text: rest[colon+1:]})
		default:
			msgs = append(msgs, Unknown{Raw: line})
		}
	}
	return msgs
}

func decodeOne(data string) Message {
	switch {
	case strings.HasPrefix(data, prefixFrame):
		var frame Frame
		if err := json.Unmarshal([]byte(data[len(prefixFrame):]), &frame); err != nil {
			return Malformed{Raw: data, Err: fmt.Errorf("invalid pose frame: %w", err)}
		}
		return PoseFrame{Frame: frame}

	case strings.HasPrefix(data, prefixNode):
		return NodeAdded{XML: data[len(prefixNode):]}

	case strings.HasPrefix(data, prefixDelete):
		id := strings.TrimSpace(data[len(prefixDelete):])
		if id == "" {
			return Malformed{Raw: data, Err: errMissingID}
		}
		return NodeDeleted{ID: id}

	case strings.HasPrefix(data, prefixModel):
		return ModelReplaced{XML: strings.TrimSpace(data[len(prefixModel):])}

	case strings.HasPrefix(data, prefixImage):
		end := strings.IndexByte(data, ']')
		if end < 0 || end+1 >= len(data) || data[end+1] != ':' {
			return Malformed{Raw: truncate(data), Err: errBadImage}
		}
		return ImageUpdate{URL: data[len(prefixImage):end], Data: data[end+2:]}

	case strings.HasPrefix(data, prefixVideo):
		fields := strings.Split(data, " ")
		if len(fields) < 3 || fields[1] == "" || fields[2] == "" {
			return Malformed{Raw: data, Err: errBadVideo}
		}
		return VideoAttach{URL: fields[1], StreamID: fields[2]}

	case strings.HasPrefix(data, prefixSetCtrl):
		return decodeControllerFile(data)

	case data == PauseLiteral:
		return Pause{}

	case data == SceneLoadCompletedLiteral:
		return SceneLoadCompleted{}
	}
	return Unknown{Raw: data}
}

func decodeControllerFile(data string) Message {
	header, content, _ := strings.Cut(data[len(prefixSetCtrl):], "\n")
	slash := strings.IndexByte(header, '/')
	if slash < 0 {
		return Malformed{Raw: header, Err: errBadController}
	}
	file, _, found := strings.Cut(header[slash+1:], ":")
	if !found || file == "" {
		return Malformed{Raw: header, Err: errBadController}
	}
	return ControllerFile{Dir: header[:slash], File: file, Content: content}
}

// truncate keeps log lines short when payloads carry image data.
func truncate(s string) string {
	const max = 128
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
