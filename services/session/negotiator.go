// Package session negotiates a simulation session with the session broker
// and keeps the broker socket open for controller announcements.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/open-teleop/simview/domain/view"
	customlog "github.com/open-teleop/simview/pkg/log"
	"github.com/open-teleop/simview/pkg/protocol"
)

// ErrNotConnected is returned when the broker socket is not open.
var ErrNotConnected = errors.New("session: not connected to the session server")

const errorPrefix = "Error:"

// NegotiationError is an error reported by the session broker. Message is
// meant to be shown to the user as is.
type NegotiationError struct {
	Message string
}

func (e *NegotiationError) Error() string {
	return "session server error: " + e.Message
}

// Controller is a controller process spawned for this session.
type Controller struct {
	Name string `json:"name"`
	Port string `json:"port"`
}

// Handler receives broker events. Methods are called from the broker reader
// goroutine.
type Handler interface {
	// Redirect gives the URL of the streaming server.
	Redirect(streamURL string)
	// ResetController asks to resynchronize a controller on the stream.
	ResetController(name string)
}

// Config holds what the negotiation needs.
type Config struct {
	URL              string
	Origin           string
	Owner            string
	Credentials      view.Credentials
	HandshakeTimeout time.Duration
	Dialer           *websocket.Dialer
}

// Negotiator performs the session handshake and owns the broker socket.
type Negotiator struct {
	cfg      Config
	endpoint Endpoint
	id       string
	handler  Handler
	console  view.Console
	logger   customlog.Logger

	connMu  sync.Mutex
	conn    *websocket.Conn
	closed  bool
	writeMu sync.Mutex

	mu          sync.RWMutex
	controllers []Controller

	doneOnce sync.Once
	done     chan struct{}
}

// NewNegotiator validates the simulation URL and prepares a negotiator.
func NewNegotiator(cfg Config, handler Handler, console view.Console, logger customlog.Logger) (*Negotiator, error) {
	endpoint, err := ParseEndpoint(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	}
	id := uuid.NewString()
	return &Negotiator{
		cfg:      cfg,
		endpoint: endpoint,
		id:       id,
		handler:  handler,
		console:  console,
		logger:   logger.WithField("session", id),
		done:     make(chan struct{}),
	}, nil
}

// ID identifies this session in logs.
func (n *Negotiator) ID() string { return n.id }

// Endpoint returns the parsed simulation URL.
func (n *Negotiator) Endpoint() Endpoint { return n.endpoint }

// Done is closed when the broker socket is closed.
func (n *Negotiator) Done() <-chan struct{} { return n.done }

// Connect asks the broker for a simulation server, opens the broker socket
// and sends the init message. A broker answering "Error: ..." yields a
// *NegotiationError; the caller must not retry.
func (n *Negotiator) Connect(ctx context.Context) error {
	if n.isClosed() {
		return ErrNotConnected
	}
	sessionURL := n.endpoint.Origin + "/session"
	n.logger.Infof("Connecting to session server %s", sessionURL)

	code, body, errs := fiber.Get(sessionURL).Timeout(n.cfg.HandshakeTimeout).String()
	if len(errs) > 0 {
		return fmt.Errorf("failed to reach session server %s: %w", sessionURL, errors.Join(errs...))
	}
	if code != fiber.StatusOK {
		return fmt.Errorf("session server %s answered with status %d", sessionURL, code)
	}

	body = strings.TrimSpace(body)
	if strings.HasPrefix(body, errorPrefix) {
		return &NegotiationError{Message: capitalize(strings.TrimSpace(body[len(errorPrefix):]))}
	}

	clientURL := body + "/client"
	conn, _, err := n.cfg.Dialer.DialContext(ctx, clientURL, nil)
	if err != nil {
		return fmt.Errorf("cannot connect to the simulation server %s: %w", clientURL, err)
	}
	n.connMu.Lock()
	if n.closed {
		n.connMu.Unlock()
		_ = conn.Close()
		return ErrNotConnected
	}
	n.conn = conn
	n.connMu.Unlock()

	user := n.cfg.Owner
	if user == "" && n.cfg.Credentials != nil {
		user = n.cfg.Credentials.Credentials()
	}
	initMsg, err := protocol.Init(CallerOrigin(n.cfg.Origin), n.endpoint.Project, n.endpoint.World, user)
	if err == nil {
		err = n.send(initMsg)
	}
	if err != nil {
		n.connMu.Lock()
		n.conn = nil
		n.connMu.Unlock()
		_ = conn.Close()
		n.finish()
		return fmt.Errorf("failed to send init message: %w", err)
	}

	go n.readLoop(conn)
	return nil
}

// ResetController asks the broker to restore a controller file. No answer is
// correlated with the request.
func (n *Negotiator) ResetController(name string) error {
	msg, err := protocol.ResetControllerRequest(name)
	if err != nil {
		return err
	}
	return n.send(msg)
}

// Controllers returns the announced controllers in announcement order.
func (n *Negotiator) Controllers() []Controller {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]Controller, len(n.controllers))
	copy(out, n.controllers)
	return out
}

// ControllerURL returns the URL of a spawned controller.
func (n *Negotiator) ControllerURL(name string) (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, c := range n.controllers {
		if c.Name == name {
			return ControllerURL(n.cfg.URL, c.Port), true
		}
	}
	return "", false
}

// Close closes the broker socket. It is safe to call more than once, and
// before or during Connect.
func (n *Negotiator) Close() error {
	n.connMu.Lock()
	if n.closed {
		n.connMu.Unlock()
		return nil
	}
	n.closed = true
	conn := n.conn
	n.connMu.Unlock()

	if conn == nil {
		n.finish()
		return nil
	}
	n.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	n.writeMu.Unlock()
	return conn.Close()
}

func (n *Negotiator) isClosed() bool {
	n.connMu.Lock()
	defer n.connMu.Unlock()
	return n.closed
}

func (n *Negotiator) finish() {
	n.doneOnce.Do(func() { close(n.done) })
}

func (n *Negotiator) send(msg string) error {
	n.connMu.Lock()
	conn := n.conn
	n.connMu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	n.writeMu.Lock()
	defer n.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (n *Negotiator) readLoop(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
		n.finish()
	}()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !n.isClosed() {
				n.logger.Warnf("Session server socket error: %v", err)
			}
			n.console.Info("Disconnected from the session server.")
			return
		}
		if mt != websocket.TextMessage {
			n.logger.Debugf("Ignoring non-text session server message type: %d", mt)
			continue
		}
		n.dispatch(string(data))
	}
}

func (n *Negotiator) dispatch(raw string) {
	switch msg := protocol.DecodeBroker(raw).(type) {
	case protocol.Redirect:
		n.logger.Infof("Redirected to streaming server %s", msg.URL)
		n.handler.Redirect(msg.URL)
	case protocol.ControllerSpawned:
		n.mu.Lock()
		n.controllers = append(n.controllers, Controller{Name: msg.Name, Port: msg.Port})
		n.mu.Unlock()
		n.console.Info(fmt.Sprintf("Using controller %s on port %s", msg.Name, msg.Port))
	case protocol.Queue:
		n.console.Error(fmt.Sprintf("The server is saturated. Queue to wait: %s client(s).", msg.Waiting))
	case protocol.Keepalive:
	case protocol.ResetController:
		n.handler.ResetController(msg.Name)
	case protocol.BrokerUnknown:
		n.logger.Warnf("Received an unknown message from the session server socket: %q", msg.Raw)
	}
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
