package zeromq

import (
	customlog "github.com/open-teleop/simview/pkg/log"
)

// Topic prefixes of published events.
const (
	TopicRobotPrefix   = "robot."
	TopicConsolePrefix = "console."
)

// ConsoleLine is the payload of a CONSOLE event.
type ConsoleLine struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

// RobotLine is the payload of a ROBOT_MESSAGE event and request.
type RobotLine struct {
	Robot   string `json:"robot"`
	Message string `json:"message"`
}

// Publisher is the subset of ZeroMQService events are published through.
type Publisher interface {
	PublishJSON(topic string, messageType string, data interface{}) error
}

// EventPublisher publishes console lines and robot messages. It satisfies
// the viewer console interface and the robot-window handler signature.
type EventPublisher struct {
	service Publisher
	logger  customlog.Logger
}

// NewEventPublisher creates a publisher over service.
func NewEventPublisher(service Publisher, logger customlog.Logger) *EventPublisher {
	return &EventPublisher{service: service, logger: logger}
}

func (p *EventPublisher) Stdout(text string) { p.console("stdout", text) }
func (p *EventPublisher) Stderr(text string) { p.console("stderr", text) }
func (p *EventPublisher) Info(text string)   { p.console("info", text) }
func (p *EventPublisher) Error(text string)  { p.console("error", text) }

func (p *EventPublisher) console(channel, text string) {
	err := p.service.PublishJSON(TopicConsolePrefix+channel, MsgTypeConsole, ConsoleLine{Channel: channel, Text: text})
	if err != nil {
		p.logger.Debugf("Failed to publish console line: %v", err)
	}
}

// RobotMessage publishes a message sent by a robot controller on robot.<name>.
func (p *EventPublisher) RobotMessage(robot, message string) {
	err := p.service.PublishJSON(TopicRobotPrefix+robot, MsgTypeRobotMessage, RobotLine{Robot: robot, Message: message})
	if err != nil {
		p.logger.Debugf("Failed to publish message of robot %s: %v", robot, err)
	}
}
