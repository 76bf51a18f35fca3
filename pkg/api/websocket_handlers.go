package api

import (
	"errors"
	"syscall"

	"github.com/gofiber/contrib/websocket"

	customlog "github.com/open-teleop/simview/pkg/log"
	"github.com/open-teleop/simview/pkg/robotwindow"
)

// robotWindowBuffer is the count of robot messages queued per window client.
// Messages arriving while the queue is full are dropped.
const robotWindowBuffer = 64

// RobotSubscriber subscribes to the messages of one robot.
type RobotSubscriber interface {
	Subscribe(robot string, h robotwindow.Handler) func()
}

// RobotWindowSender sends robot window messages to the controller.
type RobotWindowSender interface {
	SendRobotWindowMessage(robot, message string) error
}

// RobotWindowWebSocketHandler bridges a robot window client and its robot:
// robot messages are written to the client, client text frames go to the robot.
func RobotWindowWebSocketHandler(conn *websocket.Conn, robot string, robots RobotSubscriber, sender RobotWindowSender, logger customlog.Logger) {
	logger = logger.WithField("robot", robot)
	logger.Infof("Robot window connected: %s", conn.RemoteAddr())

	outgoing := make(chan string, robotWindowBuffer)
	unsubscribe := robots.Subscribe(robot, func(_, message string) {
		select {
		case outgoing <- message:
		default:
			logger.Warnf("Robot window queue full, dropping message")
		}
	})

	done := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-done:
				return
			case msg := <-outgoing:
				if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
					logger.Debugf("Robot window write error: %v", err)
					return
				}
			}
		}
	}()

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("Robot window read error: %v", err)
			} else if err != websocket.ErrCloseSent && !errors.Is(err, syscall.EPIPE) && !errors.Is(err, syscall.ECONNRESET) {
				logger.Infof("Robot window connection closed: %v", err)
			}
			break
		}
		if mt != websocket.TextMessage {
			logger.Infof("Ignoring non-text robot window message type: %d", mt)
			continue
		}
		if err := sender.SendRobotWindowMessage(robot, string(msg)); err != nil {
			logger.Warnf("Failed to forward robot window message: %v", err)
		}
	}

	unsubscribe()
	close(done)
	<-writerDone
	logger.Infof("Robot window disconnected: %s", conn.RemoteAddr())
}
