package stream

import (
	"errors"
	"fmt"

	"github.com/fasthttp/websocket"
)

// State is the connection state of a Client.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	// ErrNotConnected is returned when a command is sent without an open stream.
	ErrNotConnected = errors.New("stream: not connected")
	// ErrBroadcastMode is returned for simulation controls of a broadcast viewer.
	ErrBroadcastMode = errors.New("stream: simulation controls are disabled in broadcast mode")
	// ErrNotVideoMode is returned for video commands of a 3D stream.
	ErrNotVideoMode = errors.New("stream: command requires video mode")
)

// CloseError describes a disconnection initiated by the server or the network.
type CloseError struct {
	URL      string
	Code     int
	Abnormal bool
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("Disconnected from %s (%d)", e.URL, e.Code)
}

// IsAbnormal classifies a close code. A going-away close is only expected
// once the user asked to quit.
func IsAbnormal(code int, quitting bool) bool {
	return (code > websocket.CloseGoingAway && code < 1016) ||
		(code == websocket.CloseGoingAway && !quitting)
}

func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}
