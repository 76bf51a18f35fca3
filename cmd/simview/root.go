package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	"github.com/open-teleop/simview/domain/control"
	"github.com/open-teleop/simview/domain/view"
	"github.com/open-teleop/simview/pkg/api"
	"github.com/open-teleop/simview/pkg/config"
	customlog "github.com/open-teleop/simview/pkg/log"
	"github.com/open-teleop/simview/pkg/zeromq"
	"github.com/open-teleop/simview/services"
	"github.com/open-teleop/simview/services/viewer"
)

const shutdownTimeout = 5 * time.Second

// RootOptions holds the command line flags. Set flags override the
// bootstrap file.
type RootOptions struct {
	ConfigDir string
	LogLevel  string
	Mode      string
	Broadcast bool
	Port      int
	Timeout   float64
	Animation string
	Owner     string
}

// NewRootCommand creates the simview command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "simview [url]",
		Short: "simview - headless simulation stream viewer",
		Long: "Connects to a simulation server (ws:// or wss:// URL) or loads an .x3d scene, " +
			"keeps the scene up to date and serves a local control API.",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts, args)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.ConfigDir, "config-dir", "c", ".", "directory holding "+config.BootstrapFileName)
	flags.StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")
	flags.StringVar(&opts.Mode, "mode", "", "stream mode (x3d|video)")
	flags.BoolVar(&opts.Broadcast, "broadcast", false, "watch without controlling the simulation")
	flags.IntVarP(&opts.Port, "port", "p", 0, "local API port, 0 keeps the configured port")
	flags.Float64Var(&opts.Timeout, "timeout", 0, "simulation timeout in seconds, negative disables")
	flags.StringVar(&opts.Animation, "animation", "", "recorded animation played with an .x3d scene")
	flags.StringVar(&opts.Owner, "owner", "", "owner string sent to the session server")

	return cmd
}

func loadConfig(cmd *cobra.Command, opts *RootOptions, args []string) (*config.BootstrapConfig, error) {
	cfg, err := config.LoadBootstrapConfigUnvalidated(opts.ConfigDir)
	if err != nil {
		return nil, err
	}
	if len(args) == 1 {
		cfg.Stream.URL = args[0]
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.LogLevel
	}
	if flags.Changed("mode") {
		cfg.Stream.Mode = opts.Mode
	}
	if flags.Changed("broadcast") {
		cfg.Stream.Broadcast = opts.Broadcast
	}
	if flags.Changed("port") {
		cfg.Server.HTTPPort = opts.Port
	}
	if flags.Changed("timeout") {
		cfg.Stream.TimeoutSeconds = opts.Timeout
	}
	if flags.Changed("animation") {
		cfg.Animation.URL = opts.Animation
	}
	if flags.Changed("owner") {
		cfg.Stream.Owner = opts.Owner
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.BootstrapConfig) error {
	log, err := customlog.NewLogrusLogger(cfg.Logging.Level, cfg.Logging.LogPath)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	consoles := view.Consoles{view.NewLogConsole(log)}
	var zmqService *zeromq.ZeroMQService
	var events *zeromq.EventPublisher
	if cfg.ZeroMQ.PublishBindAddress != "" {
		zmqService, err = zeromq.NewZeroMQService(zeromq.Config{
			PublishAddress: cfg.ZeroMQ.PublishBindAddress,
			CommandAddress: cfg.ZeroMQ.CommandBindAddress,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to start ZeroMQ service: %w", err)
		}
		defer zmqService.Stop()
		events = zeromq.NewEventPublisher(zmqService, log)
		consoles = append(consoles, events)
	}

	v := viewer.New(viewer.Options{
		Mode:             cfg.Stream.Mode,
		Broadcast:        cfg.Stream.Broadcast,
		VideoWidth:       cfg.Stream.VideoWidth,
		VideoHeight:      cfg.Stream.VideoHeight,
		Origin:           cfg.Stream.Origin,
		Owner:            cfg.Stream.Owner,
		Credentials:      view.StaticCredentials{Email: cfg.Credentials.Email, Password: cfg.Credentials.Password},
		HandshakeTimeout: cfg.HandshakeTimeout(),
		FrameInterval:    cfg.FrameInterval(),
		TimeoutSeconds:   cfg.Stream.TimeoutSeconds,
		ViewpointMass:    cfg.ViewpointMass(),
		Console:          consoles,
	}, log)
	defer v.Close()

	if events != nil {
		stop := v.Robots().Observe(events.RobotMessage)
		defer stop()
		zeromq.RegisterViewerHandlers(zmqService, control.NewControlService(v), v, log)
		zmqService.Start()
	}

	var app *fiber.App
	if cfg.Server.HTTPPort > 0 {
		app, err = newApp(cfg, v, log)
		if err != nil {
			return err
		}
		go func() {
			port := strconv.Itoa(cfg.Server.HTTPPort)
			log.Infof("Local API starting on port %s", port)
			if err := app.Listen(":" + port); err != nil {
				log.Errorf("Local API stopped: %v", err)
			}
		}()
	}

	if cfg.Animation.URL != "" {
		if err := v.SetAnimation(cfg.Animation.URL, cfg.Animation.GUI, cfg.AnimationLoop()); err != nil {
			return err
		}
	}
	if err := v.Open(ctx, cfg.Stream.URL, ""); err != nil {
		shutdown(app, log)
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
loop:
	for {
		select {
		case <-quit:
			log.Infof("Shutting down...")
			break loop
		case <-ctx.Done():
			break loop
		case ev := <-v.Events():
			switch ev.Type {
			case viewer.EventReady:
				log.Infof("Scene ready")
			case viewer.EventClosed:
				log.Infof("Stream closed")
				runErr = ev.Err
				break loop
			}
		}
	}

	shutdown(app, log)
	return runErr
}

func newApp(cfg *config.BootstrapConfig, v *viewer.Viewer, log customlog.Logger) (*fiber.App, error) {
	app := fiber.New(fiber.Config{
		AppName:               "simview",
		ErrorHandler:          customErrorHandler,
		DisableStartupMessage: true,
	})
	app.Use(logger.New())
	app.Use(recover.New())

	configService, err := services.NewViewerConfigService(cfg, v, log)
	if err != nil {
		return nil, err
	}
	api.RegisterConfigRoutes(app, configService, log)
	api.RegisterRoutes(app, api.Deps{
		Viewer:      v,
		Robots:      v.Robots(),
		Diagnostics: v.Diagnostics(),
		Video:       v.Video(),
		Logger:      log,
	})
	return app, nil
}

func shutdown(app *fiber.App, log customlog.Logger) {
	if app == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Errorf("Local API forced to shutdown: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
