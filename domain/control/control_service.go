package control

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Actions accepted by the control endpoint.
const (
	ActionPause    = "pause"
	ActionStep     = "step"
	ActionRealTime = "real-time"
	ActionRevert   = "revert"
	ActionResize   = "resize"
)

// MaxVideoSize bounds resize requests.
const MaxVideoSize = 8192

// ErrUnknownAction is returned for actions outside the control vocabulary.
var ErrUnknownAction = errors.New("unknown control action")

// Command represents a simulation control command
type Command struct {
	Action string `json:"action"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Commander executes control commands against the simulation.
type Commander interface {
	Pause() error
	Step() error
	RealTime() error
	Revert() error
	Resize(width, height int) error
}

// ControlService handles simulation control commands
type ControlService struct {
	commander Commander
}

// NewControlService creates a new control service instance
func NewControlService(commander Commander) *ControlService {
	return &ControlService{commander: commander}
}

// CommandHandler processes incoming control commands
func (s *ControlService) CommandHandler(c *fiber.Ctx) error {
	var cmd Command
	if err := c.BodyParser(&cmd); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := s.ValidateCommand(cmd); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := s.SendCommand(cmd); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"status":  "command sent",
		"command": cmd,
	})
}

// ValidateCommand checks that a command is well formed
func (s *ControlService) ValidateCommand(cmd Command) error {
	switch cmd.Action {
	case ActionPause, ActionStep, ActionRealTime, ActionRevert:
		return nil
	case ActionResize:
		if cmd.Width <= 0 || cmd.Height <= 0 || cmd.Width > MaxVideoSize || cmd.Height > MaxVideoSize {
			return fmt.Errorf("invalid video size %dx%d", cmd.Width, cmd.Height)
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
}

// SendCommand sends a validated command to the simulation
func (s *ControlService) SendCommand(cmd Command) error {
	switch cmd.Action {
	case ActionPause:
		return s.commander.Pause()
	case ActionStep:
		return s.commander.Step()
	case ActionRealTime:
		return s.commander.RealTime()
	case ActionRevert:
		return s.commander.Revert()
	case ActionResize:
		return s.commander.Resize(cmd.Width, cmd.Height)
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
}
