package zeromq

import (
	"encoding/json"
	"fmt"

	"github.com/open-teleop/simview/domain/control"
	customlog "github.com/open-teleop/simview/pkg/log"
)

// RobotSender sends text to a robot controller on behalf of a robot window.
type RobotSender interface {
	SendRobotWindowMessage(robot, message string) error
}

// CommandHandler handles COMMAND requests
type CommandHandler struct {
	control *control.ControlService
	logger  customlog.Logger
}

// NewCommandHandler creates a handler running validated control commands.
func NewCommandHandler(service *control.ControlService, logger customlog.Logger) *CommandHandler {
	return &CommandHandler{control: service, logger: logger}
}

// HandleMessage runs a control command and echoes it back.
func (h *CommandHandler) HandleMessage(data json.RawMessage) (interface{}, error) {
	var cmd control.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := h.control.ValidateCommand(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	h.logger.Debugf("Processing %s command", cmd.Action)
	if err := h.control.SendCommand(cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}

// RobotMessageHandler handles ROBOT_MESSAGE requests
type RobotMessageHandler struct {
	sender RobotSender
	logger customlog.Logger
}

// NewRobotMessageHandler creates a handler forwarding to sender.
func NewRobotMessageHandler(sender RobotSender, logger customlog.Logger) *RobotMessageHandler {
	return &RobotMessageHandler{sender: sender, logger: logger}
}

// HandleMessage forwards the message to the robot.
func (h *RobotMessageHandler) HandleMessage(data json.RawMessage) (interface{}, error) {
	var line RobotLine
	if err := json.Unmarshal(data, &line); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if line.Robot == "" {
		return nil, fmt.Errorf("%w: missing robot name", ErrInvalidMessage)
	}
	if err := h.sender.SendRobotWindowMessage(line.Robot, line.Message); err != nil {
		return nil, err
	}
	return line, nil
}

// RegisterViewerHandlers registers the request handlers of the viewer.
func RegisterViewerHandlers(service *ZeroMQService, controlService *control.ControlService, sender RobotSender, logger customlog.Logger) {
	service.RegisterHandler(MsgTypeCommand, NewCommandHandler(controlService, logger))
	service.RegisterHandler(MsgTypeRobotMessage, NewRobotMessageHandler(sender, logger))
	logger.Infof("Registered ZeroMQ viewer handlers")
}
