package protocol

import "strings"

// BrokerMessage is one message received on the session broker socket.
type BrokerMessage interface {
	isBrokerMessage()
}

// Redirect gives the streaming URL of the allocated simulation.
type Redirect struct{ URL string }

// ControllerSpawned announces a controller process listening on Port.
type ControllerSpawned struct {
	Name string
	Port string
}

// Queue reports that the server is saturated and how many clients wait.
type Queue struct{ Waiting string }

// Keepalive is the periodic "." sent while the simulation runs.
type Keepalive struct{}

// ResetController acknowledges a controller reset. It must be forwarded to
// the stream as a sync controller command.
type ResetController struct{ Name string }

// BrokerUnknown is any other broker message.
type BrokerUnknown struct{ Raw string }

func (Redirect) isBrokerMessage()          {}
func (ControllerSpawned) isBrokerMessage() {}
func (Queue) isBrokerMessage()             {}
func (Keepalive) isBrokerMessage()         {}
func (ResetController) isBrokerMessage()   {}
func (BrokerUnknown) isBrokerMessage()     {}

// DecodeBroker decodes one broker socket message.
func DecodeBroker(msg string) BrokerMessage {
	switch {
	case strings.HasPrefix(msg, prefixRedirect+"ws://"), strings.HasPrefix(msg, prefixRedirect+"wss://"):
		return Redirect{URL: msg[len(prefixRedirect):]}
	case strings.HasPrefix(msg, prefixSpawned):
		name, port, found := strings.Cut(msg[len(prefixSpawned):], ":")
		if !found || name == "" {
			return BrokerUnknown{Raw: msg}
		}
		return ControllerSpawned{Name: name, Port: port}
	case strings.HasPrefix(msg, prefixQueue):
		return Queue{Waiting: msg[len(prefixQueue):]}
	case msg == ".":
		return Keepalive{}
	case strings.HasPrefix(msg, prefixResetCtrl):
		return ResetController{Name: strings.TrimSpace(msg[len(prefixResetCtrl):])}
	}
	return BrokerUnknown{Raw: msg}
}
