// Package api serves the local control API of a viewer.
package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/open-teleop/simview/domain/animation"
	"github.com/open-teleop/simview/domain/control"
	"github.com/open-teleop/simview/domain/diagnostic"
	"github.com/open-teleop/simview/domain/video"
	customlog "github.com/open-teleop/simview/pkg/log"
	"github.com/open-teleop/simview/pkg/robotwindow"
)

// Viewer is what the routes drive.
type Viewer interface {
	control.Commander
	RobotWindowSender
	Follow(target string) error
	FollowTarget() string
	SetViewpointMass(mass float64) error
	SendRobotMessage(robot, message string) error
	AnimationStatus() (animation.Status, bool)
	ToggleAnimation() error
	SeekAnimation(percent float64) error
	Hold() error
	Release() error
}

// Deps groups the services exposed by the API.
type Deps struct {
	Viewer      Viewer
	Robots      *robotwindow.Registry
	Diagnostics *diagnostic.DiagnosticService
	Video       *video.VideoService
	Logger      customlog.Logger
}

type handlers struct {
	Deps
	control *control.ControlService
}

// RegisterRoutes registers the viewer routes with the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	h := &handlers{Deps: deps, control: control.NewControlService(deps.Viewer)}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	api := app.Group("/api")
	api.Get("/diagnostics", deps.Diagnostics.GetMetricsHandler)
	api.Post("/control", h.control.CommandHandler)
	api.Post("/hold", h.handleHold)
	api.Delete("/hold", h.handleRelease)
	api.Get("/follow", h.handleGetFollow)
	api.Post("/follow", h.handleFollow)
	api.Put("/viewpoint/mass", h.handleMass)
	api.Get("/robots", h.handleRobots)
	api.Post("/robots/:name", h.handleRobotMessage)
	api.Get("/video", deps.Video.StreamHandler)
	api.Get("/animation", h.handleAnimationStatus)
	api.Post("/animation/toggle", h.handleAnimationToggle)
	api.Post("/animation/seek", h.handleAnimationSeek)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/robots/:name", websocket.New(func(conn *websocket.Conn) {
		RobotWindowWebSocketHandler(conn, conn.Params("name"), deps.Robots, deps.Viewer, deps.Logger)
	}))

	deps.Logger.Infof("Registered viewer API endpoints")
}

func (h *handlers) handleHold(c *fiber.Ctx) error {
	if err := h.Viewer.Hold(); err != nil {
		return c.Status(http.StatusConflict).JSON(ErrorResponse{Error: err.Error()})
	}
	return c.JSON(fiber.Map{"status": "held"})
}

func (h *handlers) handleRelease(c *fiber.Ctx) error {
	if err := h.Viewer.Release(); err != nil {
		return c.Status(http.StatusConflict).JSON(ErrorResponse{Error: err.Error()})
	}
	return c.JSON(fiber.Map{"status": "released"})
}

func (h *handlers) handleGetFollow(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"target": h.Viewer.FollowTarget()})
}

func (h *handlers) handleFollow(c *fiber.Ctx) error {
	var req FollowRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := h.Viewer.Follow(req.Target); err != nil {
		return c.Status(http.StatusNotFound).JSON(ErrorResponse{Error: err.Error()})
	}
	return c.JSON(fiber.Map{"target": h.Viewer.FollowTarget()})
}

func (h *handlers) handleMass(c *fiber.Ctx) error {
	var req MassRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if req.Mass == nil {
		return badRequest(c, errors.New("missing mass"))
	}
	if err := h.Viewer.SetViewpointMass(*req.Mass); err != nil {
		return badRequest(c, err)
	}
	return c.JSON(fiber.Map{"mass": *req.Mass})
}

func (h *handlers) handleRobots(c *fiber.Ctx) error {
	return c.JSON(h.Robots.Windows())
}

func (h *handlers) handleRobotMessage(c *fiber.Ctx) error {
	robot := c.Params("name")
	message := strings.TrimRight(string(c.Body()), "\r\n")
	if err := h.Viewer.SendRobotMessage(robot, message); err != nil {
		return c.Status(http.StatusConflict).JSON(ErrorResponse{Error: err.Error()})
	}
	return c.JSON(fiber.Map{"status": "message sent", "robot": robot})
}

func (h *handlers) handleAnimationStatus(c *fiber.Ctx) error {
	status, ok := h.Viewer.AnimationStatus()
	if !ok {
		return c.Status(http.StatusNotFound).JSON(ErrorResponse{Error: "no animation"})
	}
	return c.JSON(status)
}

func (h *handlers) handleAnimationToggle(c *fiber.Ctx) error {
	if err := h.Viewer.ToggleAnimation(); err != nil {
		return c.Status(http.StatusNotFound).JSON(ErrorResponse{Error: err.Error()})
	}
	return h.handleAnimationStatus(c)
}

func (h *handlers) handleAnimationSeek(c *fiber.Ctx) error {
	var req SeekRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if req.Percent < 0 || req.Percent > 100 {
		return badRequest(c, errors.New("percent must be within [0, 100]"))
	}
	if err := h.Viewer.SeekAnimation(req.Percent); err != nil {
		return c.Status(http.StatusNotFound).JSON(ErrorResponse{Error: err.Error()})
	}
	return h.handleAnimationStatus(c)
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(http.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
}
