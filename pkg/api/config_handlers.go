package api

import (
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"

	customlog "github.com/open-teleop/simview/pkg/log"
	"github.com/open-teleop/simview/services"
)

// ConfigHandler holds dependencies for configuration API endpoints.
type ConfigHandler struct {
	configService services.ViewerConfigService
	logger        customlog.Logger
}

// NewConfigHandler creates a new handler for configuration endpoints.
func NewConfigHandler(configService services.ViewerConfigService, logger customlog.Logger) *ConfigHandler {
	if configService == nil {
		panic("ConfigService cannot be nil in NewConfigHandler")
	}
	return &ConfigHandler{
		configService: configService,
		logger:        logger,
	}
}

// RegisterConfigRoutes registers the configuration API endpoints with the Fiber app.
func RegisterConfigRoutes(app *fiber.App, configService services.ViewerConfigService, logger customlog.Logger) {
	h := NewConfigHandler(configService, logger)

	apiGroup := app.Group("/api/config")
	apiGroup.Get("/", h.handleGetConfig)
	apiGroup.Put("/", h.handleUpdateSettings)

	logger.Infof("Registered configuration API endpoints under /api/config")
}

func (h *ConfigHandler) handleGetConfig(c *fiber.Ctx) error {
	yamlData, err := h.configService.GetCurrentConfigYAML()
	if err != nil {
		h.logger.Errorf("Failed to render configuration: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(ErrorResponse{
			Error: fmt.Sprintf("Failed to retrieve configuration: %v", err),
		})
	}
	c.Set(fiber.HeaderContentType, "application/x-yaml")
	return c.Send(yamlData)
}

func (h *ConfigHandler) handleUpdateSettings(c *fiber.Ctx) error {
	body := c.Body()
	if len(body) == 0 {
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{Error: "Request body cannot be empty."})
	}

	if err := h.configService.UpdateSettings(body); err != nil {
		if v, ok := err.(interface{ IsValidationError() bool }); ok && v.IsValidationError() {
			return c.Status(http.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
		}
		h.logger.Errorf("Failed to apply runtime settings: %v", err)
		return c.Status(http.StatusConflict).JSON(ErrorResponse{Error: err.Error()})
	}
	return c.JSON(fiber.Map{"message": "Settings updated."})
}
