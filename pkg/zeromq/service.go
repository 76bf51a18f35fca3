package zeromq

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pebbe/zmq4"

	customlog "github.com/open-teleop/simview/pkg/log"
)

// Common errors
var (
	ErrServiceClosed      = errors.New("zeromq service is closed")
	ErrInvalidMessage     = errors.New("invalid message format")
	ErrUnknownMessageType = errors.New("unknown message type")
)

// Message types
const (
	MsgTypeConsole      = "CONSOLE"
	MsgTypeRobotMessage = "ROBOT_MESSAGE"
	MsgTypeCommand      = "COMMAND"
	MsgTypeAck          = "ACK"
	MsgTypeError        = "ERROR"
)

// pollInterval bounds how long the receiver waits before checking for shutdown.
const pollInterval = 500 * time.Millisecond

// ZeroMQMessage is the JSON envelope of every published event and request.
type ZeroMQMessage struct {
	Type      string          `json:"type"`
	Timestamp float64         `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ErrorResponse represents an error response message
type ErrorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Config holds the socket addresses. An empty CommandAddress disables the
// request socket.
type Config struct {
	PublishAddress string
	CommandAddress string
}

// MessageHandler defines the interface for handlers that process specific message types
type MessageHandler interface {
	HandleMessage(data json.RawMessage) (interface{}, error)
}

// HandlerFunc is a function type that implements MessageHandler
type HandlerFunc func(data json.RawMessage) (interface{}, error)

// HandleMessage calls the function
func (f HandlerFunc) HandleMessage(data json.RawMessage) (interface{}, error) {
	return f(data)
}

// NewMessage builds an envelope around data.
func NewMessage(messageType string, data interface{}) (ZeroMQMessage, error) {
	msg := ZeroMQMessage{
		Type:      messageType,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return msg, fmt.Errorf("failed to marshal %s payload: %w", messageType, err)
		}
		msg.Data = raw
	}
	return msg, nil
}

func encode(messageType string, data interface{}) ([]byte, error) {
	msg, err := NewMessage(messageType, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

// MessageDispatcher routes request messages to the appropriate handlers
type MessageDispatcher struct {
	handlers map[string]MessageHandler
	logger   customlog.Logger
	mu       sync.RWMutex
}

// NewMessageDispatcher creates a new message dispatcher
func NewMessageDispatcher(logger customlog.Logger) *MessageDispatcher {
	return &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
		logger:   logger,
	}
}

// RegisterHandler adds a handler for a specific message type
func (d *MessageDispatcher) RegisterHandler(messageType string, handler MessageHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[messageType] = handler
	d.logger.Debugf("Registered handler for message type: %s", messageType)
}

// Dispatch decodes a request, runs its handler and returns the encoded reply.
// Failures are answered with an ERROR message.
func (d *MessageDispatcher) Dispatch(data []byte) []byte {
	reply, err := d.dispatch(data)
	if err != nil {
		d.logger.Warnf("Error dispatching message: %v", err)
		code := 500
		if errors.Is(err, ErrInvalidMessage) || errors.Is(err, ErrUnknownMessageType) {
			code = 400
		}
		reply, _ = encode(MsgTypeError, ErrorResponse{Message: err.Error(), Code: code})
	}
	return reply
}

func (d *MessageDispatcher) dispatch(data []byte) ([]byte, error) {
	var msg ZeroMQMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidMessage, len(data))
	}

	d.mu.RLock()
	handler, exists := d.handlers[msg.Type]
	d.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, msg.Type)
	}

	d.logger.Debugf("Dispatching message of type: %s", msg.Type)
	result, err := handler.HandleMessage(msg.Data)
	if err != nil {
		return nil, err
	}
	return encode(MsgTypeAck, result)
}

// MessageReceiver answers requests on a ZeroMQ REP socket
type MessageReceiver struct {
	socket     *zmq4.Socket
	dispatcher *MessageDispatcher
	poller     *zmq4.Poller
	logger     customlog.Logger
	quit       chan struct{}
	started    bool
	wg         *sync.WaitGroup
}

func newMessageReceiver(ctx *zmq4.Context, address string, dispatcher *MessageDispatcher, logger customlog.Logger, wg *sync.WaitGroup) (*MessageReceiver, error) {
	socket, err := ctx.NewSocket(zmq4.REP)
	if err != nil {
		return nil, fmt.Errorf("failed to create REP socket: %w", err)
	}
	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}
	if err := socket.Bind(address); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to bind to %s: %w", address, err)
	}

	poller := zmq4.NewPoller()
	poller.Add(socket, zmq4.POLLIN)

	logger.Infof("MessageReceiver initialized on %s", address)
	return &MessageReceiver{
		socket:     socket,
		dispatcher: dispatcher,
		poller:     poller,
		logger:     logger,
		quit:       make(chan struct{}),
		wg:         wg,
	}, nil
}

func (r *MessageReceiver) start() {
	r.started = true
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.socket.Close()
		r.logger.Debugf("MessageReceiver started")

		for {
			select {
			case <-r.quit:
				return
			default:
			}

			sockets, err := r.poller.Poll(pollInterval)
			if err != nil {
				r.logger.Warnf("Error polling socket: %v", err)
				continue
			}
			if len(sockets) == 0 {
				continue
			}

			msg, err := r.socket.RecvBytes(0)
			if err != nil {
				r.logger.Warnf("Error receiving message: %v", err)
				continue
			}
			if _, err := r.socket.SendBytes(r.dispatcher.Dispatch(msg), 0); err != nil {
				r.logger.Warnf("Error sending response: %v", err)
			}
		}
	}()
}

// stop ends the receive loop, which closes the socket. A receiver that was
// never started closes it directly.
func (r *MessageReceiver) stop() {
	if !r.started {
		r.socket.Close()
		return
	}
	close(r.quit)
}

// MessageSender publishes messages on a ZeroMQ PUB socket
type MessageSender struct {
	socket *zmq4.Socket
	logger customlog.Logger
	mu     sync.Mutex
}

func newMessageSender(ctx *zmq4.Context, address string, logger customlog.Logger) (*MessageSender, error) {
	socket, err := ctx.NewSocket(zmq4.PUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create PUB socket: %w", err)
	}
	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}
	if err := socket.Bind(address); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to bind to %s: %w", address, err)
	}

	logger.Infof("MessageSender initialized on %s", address)
	return &MessageSender{socket: socket, logger: logger}, nil
}

// publish sends the topic frame then the payload frame.
func (s *MessageSender) publish(topic string, message []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.socket == nil {
		return ErrServiceClosed
	}
	if _, err := s.socket.Send(topic, zmq4.SNDMORE); err != nil {
		return fmt.Errorf("failed to send topic: %w", err)
	}
	if _, err := s.socket.SendBytes(message, 0); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (s *MessageSender) endpoint() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.socket == nil {
		return "", ErrServiceClosed
	}
	return s.socket.GetLastEndpoint()
}

func (s *MessageSender) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.socket != nil {
		s.socket.Close()
		s.socket = nil
	}
}

// ZeroMQService owns the PUB socket viewer events are published on and the
// optional REP socket external tools send commands to.
type ZeroMQService struct {
	ctx        *zmq4.Context
	sender     *MessageSender
	receiver   *MessageReceiver
	dispatcher *MessageDispatcher
	logger     customlog.Logger
	running    bool
	mu         sync.Mutex
	wg         sync.WaitGroup
}

// NewZeroMQService creates the sockets. Handlers must be registered before Start.
func NewZeroMQService(cfg Config, logger customlog.Logger) (*ZeroMQService, error) {
	if cfg.PublishAddress == "" {
		return nil, errors.New("zeromq: publish address is required")
	}
	ctx, err := zmq4.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create ZMQ context: %w", err)
	}

	s := &ZeroMQService{
		ctx:        ctx,
		dispatcher: NewMessageDispatcher(logger),
		logger:     logger,
	}
	s.sender, err = newMessageSender(ctx, cfg.PublishAddress, logger)
	if err != nil {
		ctx.Term()
		return nil, err
	}
	if cfg.CommandAddress != "" {
		s.receiver, err = newMessageReceiver(ctx, cfg.CommandAddress, s.dispatcher, logger, &s.wg)
		if err != nil {
			s.sender.close()
			ctx.Term()
			return nil, err
		}
	}
	return s, nil
}

// RegisterHandler adds a handler for a specific message type
func (s *ZeroMQService) RegisterHandler(messageType string, handler MessageHandler) {
	s.dispatcher.RegisterHandler(messageType, handler)
}

// RegisterHandlerFunc adds a handler function for a specific message type
func (s *ZeroMQService) RegisterHandlerFunc(messageType string, handler func(json.RawMessage) (interface{}, error)) {
	s.dispatcher.RegisterHandler(messageType, HandlerFunc(handler))
}

// Start begins answering requests.
func (s *ZeroMQService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	if s.receiver != nil {
		s.receiver.start()
	}
	s.logger.Infof("ZeroMQ service started")
}

// Stop closes the sockets and the context.
func (s *ZeroMQService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil {
		return
	}
	s.running = false
	if s.receiver != nil {
		s.receiver.stop()
	}
	s.sender.close()
	s.wg.Wait()
	s.ctx.Term()
	s.ctx = nil
	s.logger.Infof("ZeroMQ service stopped")
}

// PublishEndpoint returns the address the PUB socket is bound to.
func (s *ZeroMQService) PublishEndpoint() (string, error) {
	return s.sender.endpoint()
}

// PublishMessage sends a raw message with the given topic
func (s *ZeroMQService) PublishMessage(topic string, message []byte) error {
	return s.sender.publish(topic, message)
}

// PublishJSON publishes an enveloped message with the given topic
func (s *ZeroMQService) PublishJSON(topic string, messageType string, data interface{}) error {
	msgData, err := encode(messageType, data)
	if err != nil {
		return err
	}
	return s.PublishMessage(topic, msgData)
}
