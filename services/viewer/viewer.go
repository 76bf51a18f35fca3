// Package viewer assembles one view instance: an event loop owning the scene,
// the viewpoint follower and the connections to a simulation server, or an
// offline scene and its recorded animation.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/open-teleop/simview/domain/animation"
	"github.com/open-teleop/simview/domain/diagnostic"
	"github.com/open-teleop/simview/domain/pose"
	"github.com/open-teleop/simview/domain/video"
	"github.com/open-teleop/simview/domain/view"
	"github.com/open-teleop/simview/domain/viewpoint"
	"github.com/open-teleop/simview/pkg/assets"
	"github.com/open-teleop/simview/pkg/eventloop"
	customlog "github.com/open-teleop/simview/pkg/log"
	"github.com/open-teleop/simview/pkg/protocol"
	"github.com/open-teleop/simview/pkg/robotwindow"
	"github.com/open-teleop/simview/pkg/scene"
	"github.com/open-teleop/simview/services/session"
	"github.com/open-teleop/simview/services/stream"
)

// FollowNone unfollows.
const FollowNone = "none"

// Scene attributes of the Viewpoint node read when a scene is ready.
const (
	attrFollowSmoothness = "followSmoothness"
	attrFollowedID       = "followedId"
)

var (
	// ErrClosed is returned by operations on a closed viewer.
	ErrClosed = errors.New("viewer: closed")
	// ErrNoStream is returned when an operation needs a streaming connection.
	ErrNoStream = errors.New("viewer: no streaming connection")
	// ErrUnknownTarget is returned when a follow target does not match any node.
	ErrUnknownTarget = errors.New("viewer: unknown follow target")
	// ErrAlreadyOpen is returned when Open is called twice.
	ErrAlreadyOpen = errors.New("viewer: already open")
)

// EventType identifies a viewer event.
type EventType string

const (
	EventReady  EventType = "ready"
	EventClosed EventType = "closed"
)

// Event is published on the channel returned by Events.
type Event struct {
	Type EventType
	Err  error
}

// Options configures a viewer.
type Options struct {
	Mode             string
	Broadcast        bool
	VideoWidth       int
	VideoHeight      int
	Origin           string
	Owner            string
	Credentials      view.Credentials
	HandshakeTimeout time.Duration
	FetchTimeout     time.Duration
	FrameInterval    time.Duration
	TimeoutSeconds   float64
	ViewpointMass    float64

	Console view.Console
	UI      view.UI
	Editor  view.Editor
}

type animationRequest struct {
	url  string
	gui  string
	loop bool
}

// Viewer is a view instance. Its methods are safe for concurrent use.
type Viewer struct {
	id     string
	opts   Options
	logger customlog.Logger

	loop        *eventloop.Loop
	context     *view.Context
	store       *scene.Store
	follower    *viewpoint.Follower
	applier     *pose.Applier
	robots      *robotwindow.Registry
	video       *video.VideoService
	diagnostics *diagnostic.DiagnosticService
	console     view.Console
	ui          view.UI
	editor      view.Editor

	baseCtx context.Context
	cancel  context.CancelFunc
	events  chan Event

	// Loop owned.
	url        string
	opened     bool
	closed     bool
	negotiator *session.Negotiator
	client     *stream.Client
	streamGen  int
	followSet  string
	anim       *animationRequest
	player     *animation.Player
	tickerStop chan struct{}

	wg sync.WaitGroup
}

// New creates a viewer and starts its loop.
func New(opts Options, logger customlog.Logger) *Viewer {
	if opts.Mode == "" {
		opts.Mode = protocol.ModeX3D
	}
	if opts.FetchTimeout == 0 {
		opts.FetchTimeout = assets.DefaultTimeout
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = 16 * time.Millisecond
	}
	if opts.Console == nil {
		opts.Console = view.NewLogConsole(logger)
	}
	if opts.UI == nil {
		opts.UI = view.NewLogUI(logger)
	}
	if opts.Editor == nil {
		opts.Editor = view.NewMemoryEditor()
	}

	id := uuid.NewString()
	logger = logger.WithField("viewer", id)
	v := &Viewer{
		id:          id,
		opts:        opts,
		logger:      logger,
		loop:        eventloop.New("viewer", 256, logger),
		context:     view.NewContext(),
		store:       scene.NewStore(),
		follower:    viewpoint.NewFollower(),
		robots:      robotwindow.NewRegistry(logger),
		video:       video.NewVideoService(),
		diagnostics: diagnostic.NewDiagnosticService(),
		console:     opts.Console,
		ui:          opts.UI,
		editor:      opts.Editor,
		events:      make(chan Event, 16),
	}
	v.applier = pose.NewApplier(v.store, v.follower, logger)
	v.baseCtx, v.cancel = context.WithCancel(context.Background())

	if opts.ViewpointMass != 0 {
		v.follower.SetMass(opts.ViewpointMass)
	}
	if opts.Broadcast {
		v.context.SetTimeout(-1)
	} else if opts.TimeoutSeconds != 0 {
		v.context.SetTimeout(opts.TimeoutSeconds)
	}
	v.diagnostics.SetSession(id, opts.Mode)
	v.loop.Start()
	return v
}

// ID returns the viewer instance id.
func (v *Viewer) ID() string { return v.id }

// Events returns the lifecycle events. Events are dropped when nobody reads.
func (v *Viewer) Events() <-chan Event { return v.events }

// Robots returns the robot-window registry.
func (v *Viewer) Robots() *robotwindow.Registry { return v.robots }

// Video returns the registry of attached video streams.
func (v *Viewer) Video() *video.VideoService { return v.video }

// Diagnostics returns the stream diagnostics.
func (v *Viewer) Diagnostics() *diagnostic.DiagnosticService { return v.diagnostics }

// Open connects to a simulation (ws:// or wss:// URL) or loads an .x3d scene
// (http(s) URL or local path). An empty mode keeps the configured mode.
func (v *Viewer) Open(ctx context.Context, url, mode string) error {
	if mode != "" && mode != protocol.ModeX3D && mode != protocol.ModeVideo {
		return fmt.Errorf("wrong mode argument: %s", mode)
	}
	if err := v.do(ctx, func() error {
		if v.closed {
			return ErrClosed
		}
		if v.opened {
			return ErrAlreadyOpen
		}
		v.opened = true
		v.url = url
		if mode != "" {
			v.opts.Mode = mode
			v.diagnostics.SetSession(v.id, mode)
		}
		return nil
	}); err != nil {
		return err
	}

	if isWebSocket(url) {
		return v.openSession(ctx, url)
	}
	return v.openScene(ctx, url)
}

func (v *Viewer) openSession(ctx context.Context, url string) error {
	n, err := session.NewNegotiator(session.Config{
		URL:              url,
		Origin:           v.opts.Origin,
		Owner:            v.opts.Owner,
		Credentials:      v.opts.Credentials,
		HandshakeTimeout: v.opts.HandshakeTimeout,
	}, sessionHandler{v}, v.console, v.logger)
	if err != nil {
		return err
	}
	if err := v.do(ctx, func() error {
		if v.closed {
			return ErrClosed
		}
		v.negotiator = n
		return nil
	}); err != nil {
		return err
	}

	v.ui.Progress("Connecting to session server...")
	if err := n.Connect(ctx); err != nil {
		var negErr *session.NegotiationError
		if errors.As(err, &negErr) {
			v.ui.Alert("Session server error", negErr.Message)
		}
		v.console.Error(err.Error())
		return err
	}
	return nil
}

// openScene installs an offline scene then plays its animation, if any.
func (v *Viewer) openScene(ctx context.Context, url string) error {
	v.ui.Progress("Loading 3D scene...")
	doc, err := assets.Fetch(url, v.opts.FetchTimeout)
	if err != nil {
		v.console.Error(err.Error())
		return err
	}

	var anim *animationRequest
	if err := v.do(ctx, func() error {
		if v.closed {
			return ErrClosed
		}
		if err := v.store.ReplaceScene(string(doc)); err != nil {
			return fmt.Errorf("failed to load scene %s: %w", url, err)
		}
		v.context.SetClock(0)
		v.finalize()
		anim = v.anim
		return nil
	}); err != nil {
		return err
	}

	if anim != nil {
		if err := v.startAnimation(ctx, anim); err != nil {
			return err
		}
	}
	return v.do(ctx, func() error {
		v.ready()
		return nil
	})
}

// SetAnimation declares the recorded animation played after an offline
// scene is loaded. gui is "play" or "pause".
func (v *Viewer) SetAnimation(url, gui string, loop bool) error {
	if gui == "" {
		gui = animation.GUIPlay
	}
	if gui != animation.GUIPlay && gui != animation.GUIPause {
		return fmt.Errorf("invalid animation gui %q", gui)
	}
	return v.do(context.Background(), func() error {
		v.anim = &animationRequest{url: url, gui: gui, loop: loop}
		return nil
	})
}

func (v *Viewer) startAnimation(ctx context.Context, req *animationRequest) error {
	data, err := animation.Load(req.url, v.opts.FetchTimeout)
	if err != nil {
		v.console.Error(err.Error())
		return err
	}
	return v.do(ctx, func() error {
		if v.closed {
			return ErrClosed
		}
		v.player = animation.NewPlayer(data, v.applier, v.animationFrame, req.gui, req.loop)
		v.player.Start()
		v.tickerStop = make(chan struct{})
		v.wg.Add(1)
		go v.tick(v.tickerStop)
		return nil
	})
}

func (v *Viewer) tick(stop <-chan struct{}) {
	defer v.wg.Done()
	ticker := time.NewTicker(v.opts.FrameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := v.loop.Post(func() {
				if v.player != nil {
					v.player.Tick()
				}
			}); err != nil {
				return
			}
		}
	}
}

func (v *Viewer) animationFrame(ms float64, snap bool) {
	v.context.SetClock(ms)
	v.ui.SetClock(ms)
	if v.follower.Following() {
		cam := viewpoint.SceneCamera(v.store)
		if err := v.follower.Update(ms, cam, snap, v.player != nil && v.player.Playing()); err != nil {
			v.logger.Debugf("Viewpoint not updated: %v", err)
		}
	}
}

// AnimationStatus returns the playback state, false without animation.
func (v *Viewer) AnimationStatus() (animation.Status, bool) {
	var status animation.Status
	var ok bool
	_ = v.do(context.Background(), func() error {
		if v.player != nil {
			status, ok = v.player.Status(), true
		}
		return nil
	})
	return status, ok
}

// ToggleAnimation plays or pauses the animation.
func (v *Viewer) ToggleAnimation() error {
	return v.do(context.Background(), func() error {
		if v.player == nil {
			return errors.New("viewer: no animation")
		}
		v.player.TogglePlay()
		return nil
	})
}

// SeekAnimation jumps to a position given in percent.
func (v *Viewer) SeekAnimation(percent float64) error {
	return v.do(context.Background(), func() error {
		if v.player == nil {
			return errors.New("viewer: no animation")
		}
		v.player.Seek(percent)
		return nil
	})
}

// finalize applies the scene settings once a scene is installed.
func (v *Viewer) finalize() {
	v.ui.Progress("Loading HTML and Javascript files...")
	if v.followSet == "" || v.opts.Broadcast {
		if vp, ok := v.store.Viewpoint(); ok {
			if s, ok := vp.Attr(attrFollowSmoothness); ok {
				if mass, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
					v.follower.SetMass(mass)
				} else {
					v.logger.Warnf("Invalid %s %q: %v", attrFollowSmoothness, s, err)
				}
			}
			if id, ok := vp.Attr(attrFollowedID); ok {
				v.followSet = id
			} else {
				v.followSet = FollowNone
			}
		} else {
			v.followSet = FollowNone
		}
	}
	if !v.applyFollow(v.followSet) {
		v.logger.Warnf("Follow target %s not found in the scene", v.followSet)
	}

	if v.client != nil {
		v.robots.Reset()
		for _, w := range v.store.RobotWindows() {
			v.robots.Register(w.Robot, w.Window)
		}
	}
	v.follower.ResetTimestamp()
	if v.context.RunOnLoad && v.client != nil {
		v.context.RunOnLoad = false
		if err := v.client.RealTime(); err != nil {
			v.logger.Warnf("Failed to resume the simulation: %v", err)
		}
	}
	v.ui.HideProgress()
}

func (v *Viewer) applyFollow(target string) bool {
	if target == "" || target == FollowNone {
		v.follower.Follow("")
		return true
	}
	id, ok := v.store.Resolve(target)
	if !ok {
		v.follower.Follow("")
		return false
	}
	v.follower.Follow(id)
	return true
}

// Follow makes the viewpoint track a node given by id or DEF name. "none"
// unfollows. A target set before the scene is loaded is resolved once it is.
func (v *Viewer) Follow(target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		target = FollowNone
	}
	return v.do(context.Background(), func() error {
		v.followSet = target
		if v.store.Empty() {
			return nil
		}
		if !v.applyFollow(target) {
			return fmt.Errorf("%w: %s", ErrUnknownTarget, target)
		}
		return nil
	})
}

// FollowTarget returns the canonical id of the followed node, "" when none.
func (v *Viewer) FollowTarget() string {
	var target string
	_ = v.do(context.Background(), func() error {
		target = v.follower.Target()
		return nil
	})
	return target
}

// SetViewpointMass sets the follow mass. Values at or below 0.05 snap.
func (v *Viewer) SetViewpointMass(mass float64) error {
	if mass < 0 {
		return fmt.Errorf("invalid viewpoint mass %v", mass)
	}
	return v.do(context.Background(), func() error {
		v.follower.SetMass(mass)
		return nil
	})
}

// SetTimeout sets the simulation timeout in seconds. Negative disables it.
func (v *Viewer) SetTimeout(seconds float64) error {
	return v.do(context.Background(), func() error {
		v.context.SetTimeout(seconds)
		v.ui.SetDeadline(v.context.Deadline())
		return nil
	})
}

// SendRobotMessage sends text to a robot controller.
func (v *Viewer) SendRobotMessage(robot, message string) error {
	return v.withClient(func(c *stream.Client) error {
		return c.SendRobotMessage(robot, message)
	})
}

// SendRobotWindowMessage sends a message on behalf of a robot window. A paused
// simulation runs one step so that the controller handles the message.
func (v *Viewer) SendRobotWindowMessage(robot, message string) error {
	return v.withClient(func(c *stream.Client) error {
		if err := c.SendRobotMessage(robot, message); err != nil {
			return err
		}
		if !v.context.Running {
			return c.Send(protocol.CommandStep)
		}
		return nil
	})
}

// Pause pauses the simulation.
func (v *Viewer) Pause() error {
	return v.withClient((*stream.Client).Pause)
}

// Step runs one simulation step.
func (v *Viewer) Step() error {
	return v.withClient((*stream.Client).Step)
}

// RealTime runs the simulation in real time.
func (v *Viewer) RealTime() error {
	return v.withClient((*stream.Client).RealTime)
}

// Revert reloads the world.
func (v *Viewer) Revert() error {
	return v.withClient((*stream.Client).Revert)
}

// Hold pauses a running simulation until Release, without restarting the
// countdown.
func (v *Viewer) Hold() error {
	return v.withClient((*stream.Client).Hold)
}

// Release resumes a simulation paused by Hold.
func (v *Viewer) Release() error {
	return v.withClient((*stream.Client).Release)
}

// Resize changes the size of a video stream.
func (v *Viewer) Resize(width, height int) error {
	return v.withClient(func(c *stream.Client) error {
		return c.Resize(width, height)
	})
}

// Mouse forwards a pointer event to a video stream.
func (v *Viewer) Mouse(ev protocol.MouseEvent) error {
	return v.withClient(func(c *stream.Client) error {
		return c.Mouse(ev)
	})
}

// RequestControllerFiles asks for the sources of a controller directory.
func (v *Viewer) RequestControllerFiles(dir string) error {
	return v.withClient(func(c *stream.Client) error {
		return c.RequestControllerFiles(dir)
	})
}

// UploadControllerFile sends an edited controller source file.
func (v *Viewer) UploadControllerFile(dir, file, content string) error {
	return v.withClient(func(c *stream.Client) error {
		return c.UploadControllerFile(dir, file, content)
	})
}

// ResetController asks the session server to restart a controller.
func (v *Viewer) ResetController(name string) error {
	var n *session.Negotiator
	_ = v.do(context.Background(), func() error {
		n = v.negotiator
		return nil
	})
	if n == nil {
		return session.ErrNotConnected
	}
	return n.ResetController(name)
}

// ControllerURL returns the URL of an announced controller.
func (v *Viewer) ControllerURL(name string) (string, bool) {
	var n *session.Negotiator
	_ = v.do(context.Background(), func() error {
		n = v.negotiator
		return nil
	})
	if n == nil {
		return "", false
	}
	return n.ControllerURL(name)
}

// StreamState returns the state of the streaming connection.
func (v *Viewer) StreamState() stream.State {
	state := stream.StateIdle
	_ = v.do(context.Background(), func() error {
		if v.client != nil {
			state = v.client.State()
		}
		return nil
	})
	return state
}

// Close closes the connections, tears the scene down and stops the loop.
// It is idempotent.
func (v *Viewer) Close() error {
	var n *session.Negotiator
	err := v.do(context.Background(), func() error {
		if v.closed {
			return ErrClosed
		}
		v.closed = true
		v.cancel()
		v.stopAnimation()
		if v.client != nil {
			v.client.Close()
		} else {
			v.store.Teardown()
			v.publish(Event{Type: EventClosed})
		}
		n = v.negotiator
		return nil
	})
	if errors.Is(err, ErrClosed) || errors.Is(err, eventloop.ErrLoopStopped) {
		return nil
	}
	if n != nil {
		_ = n.Close()
	}
	v.wg.Wait()
	v.loop.Stop()
	return err
}

func (v *Viewer) stopAnimation() {
	if v.tickerStop != nil {
		close(v.tickerStop)
		v.tickerStop = nil
	}
	v.player = nil
}

func (v *Viewer) withClient(fn func(*stream.Client) error) error {
	return v.do(context.Background(), func() error {
		if v.closed {
			return ErrClosed
		}
		if v.client == nil {
			return ErrNoStream
		}
		return fn(v.client)
	})
}

// do runs fn on the loop and returns its error.
func (v *Viewer) do(ctx context.Context, fn func() error) error {
	var err error
	if loopErr := v.loop.Do(ctx, func() { err = fn() }); loopErr != nil {
		return loopErr
	}
	return err
}

func (v *Viewer) ready() {
	v.ui.HideProgress()
	v.publish(Event{Type: EventReady})
}

func (v *Viewer) publish(ev Event) {
	select {
	case v.events <- ev:
	default:
		v.logger.Debugf("Dropping %s event", ev.Type)
	}
}

func isWebSocket(url string) bool {
	return strings.HasPrefix(url, "ws://") || strings.HasPrefix(url, "wss://")
}
