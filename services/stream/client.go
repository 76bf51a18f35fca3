// Package stream maintains the streaming connection to a simulation server
// and applies the decoded messages to the view.
package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fasthttp/websocket"

	"github.com/open-teleop/simview/domain/diagnostic"
	"github.com/open-teleop/simview/domain/pose"
	"github.com/open-teleop/simview/domain/video"
	"github.com/open-teleop/simview/domain/view"
	"github.com/open-teleop/simview/domain/viewpoint"
	"github.com/open-teleop/simview/pkg/eventloop"
	customlog "github.com/open-teleop/simview/pkg/log"
	"github.com/open-teleop/simview/pkg/protocol"
	"github.com/open-teleop/simview/pkg/scene"
)

// Owner is notified of the stream lifecycle. Both methods run on the loop.
type Owner interface {
	// Ready is called when the scene finished loading or a video stream
	// was attached.
	Ready()
	// Closed is called once per connection. err is nil for a client
	// requested close and a *CloseError otherwise.
	Closed(err error)
}

// Config describes the stream to open.
type Config struct {
	URL         string
	Mode        string
	Broadcast   bool
	VideoWidth  int
	VideoHeight int
	Dialer      *websocket.Dialer
}

// Deps groups the view components the client mutates. They all belong to the
// loop the client posts to.
type Deps struct {
	Context     *view.Context
	Store       *scene.Store
	Applier     *pose.Applier
	Follower    *viewpoint.Follower
	Console     view.Console
	Robots      view.RobotRouter
	Editor      view.Editor
	UI          view.UI
	Video       *video.VideoService
	Diagnostics *diagnostic.DiagnosticService
	Owner       Owner
}

// Client is the streaming protocol client. Apart from Connect, its methods
// must be called on the loop.
type Client struct {
	cfg    Config
	deps   Deps
	loop   *eventloop.Loop
	logger customlog.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex
	state   State
	closed  bool
}

// NewClient creates a client posting its work to loop.
func NewClient(cfg Config, deps Deps, loop *eventloop.Loop, logger customlog.Logger) *Client {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Mode == "" {
		cfg.Mode = protocol.ModeX3D
	}
	return &Client{
		cfg:    cfg,
		deps:   deps,
		loop:   loop,
		logger: logger.WithField("stream", cfg.URL),
	}
}

// URL returns the streaming URL.
func (c *Client) URL() string { return c.cfg.URL }

// Broadcast reports whether the client only watches the simulation.
func (c *Client) Broadcast() bool { return c.cfg.Broadcast }

// Mode returns the stream mode.
func (c *Client) Mode() string { return c.cfg.Mode }

// State returns the connection state.
func (c *Client) State() State { return c.state }

// Connect dials the streaming server. It blocks on the network and must not
// be called on the loop.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.loop.Post(func() { c.setState(StateConnecting) }); err != nil {
		return err
	}
	c.logger.Infof("Connecting to streaming server")

	conn, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		_ = c.loop.Post(func() {
			c.deps.Console.Error("Cannot connect to the streaming server")
			c.deps.Diagnostics.RecordError(err)
			c.fail()
		})
		return fmt.Errorf("cannot connect to streaming server %s: %w", c.cfg.URL, err)
	}

	if err := c.loop.Post(func() { c.opened(conn) }); err != nil {
		_ = conn.Close()
		return err
	}
	return nil
}

func (c *Client) opened(conn *websocket.Conn) {
	if c.closed {
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.setState(StateStreaming)

	mode := protocol.ModeString(c.cfg.Mode, c.cfg.VideoWidth, c.cfg.VideoHeight, c.cfg.Broadcast)
	if err := c.write(mode); err != nil {
		c.logger.Errorf("Failed to announce stream mode: %v", err)
	}
	c.deps.UI.Progress("Connecting to Webots instance...")
	go c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			_ = c.loop.Post(func() { c.remoteClosed(conn, err) })
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		msg := string(data)
		if c.loop.Post(func() { c.Handle(msg) }) != nil {
			return
		}
	}
}

// Handle decodes and applies one socket message.
func (c *Client) Handle(data string) {
	for _, msg := range protocol.Decode(data) {
		c.deps.Diagnostics.RecordMessage(string(msg.Kind()))
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg protocol.Message) {
	d := c.deps
	switch m := msg.(type) {
	case protocol.RobotMessage:
		d.Robots.Deliver(m.Robot, m.Text, time.Now().UnixNano())

	case protocol.Stdout:
		d.Console.Stdout(m.Text)

	case protocol.Stderr:
		d.Console.Stderr(m.Text)

	case protocol.PoseFrame:
		c.applyFrame(m.Frame)

	case protocol.NodeAdded:
		if _, err := d.Store.AddNode(m.XML); err != nil {
			c.logger.Warnf("Ignoring node: %v", err)
		}

	case protocol.NodeDeleted:
		if !d.Store.DeleteNode(m.ID) {
			c.logger.Debugf("Node %s to delete not found", m.ID)
		}

	case protocol.ModelReplaced:
		d.UI.Progress("Loading 3D scene...")
		d.Context.ResetClock()
		c.reportClock()
		if err := d.Store.ReplaceScene(m.XML); err != nil {
			c.logger.Errorf("Failed to load scene: %v", err)
			d.Diagnostics.RecordError(err)
		}

	case protocol.ImageUpdate:
		if n := d.Store.SwapTexture(m.URL, m.Data); n == 0 {
			c.logger.Debugf("Texture %s not used by the scene", m.URL)
		}

	case protocol.VideoAttach:
		c.logger.Infof("Received video message on %s stream = %s", m.URL, m.StreamID)
		d.Video.StartStream(m.URL, m.StreamID)
		d.Owner.Ready()

	case protocol.ControllerFile:
		if dir := d.Editor.CurrentOpenDirectory(); dir == m.Dir {
			d.Editor.ReceiveFile(m.File, m.Content)
		} else {
			c.logger.Warnf("%s not in controller directory: %s != %s", m.File, m.Dir, dir)
		}

	case protocol.Pause:
		d.UI.SetRunning(false)
		if d.Context.Paused() {
			d.UI.SetDeadline(d.Context.Deadline())
		}

	case protocol.SceneLoadCompleted:
		d.Context.SetClock(0)
		d.UI.SetClock(0)
		c.reportClock()
		d.Owner.Ready()

	case protocol.Unknown:
		c.logger.Warnf("Unknown message received: %q", m.Raw)

	case protocol.Malformed:
		c.logger.Warnf("Malformed message received: %v (%q)", m.Err, m.Raw)
	}
}

// applyFrame applies a pose frame. Frames received while the scene is
// loading belong to the previous scene and are dropped.
func (c *Client) applyFrame(frame protocol.Frame) {
	d := c.deps
	if !d.Context.ClockDefined() {
		d.Diagnostics.RecordStaleFrame()
		return
	}
	d.Context.SetClock(frame.Time)
	d.UI.SetClock(frame.Time)
	d.Applier.ApplyAll(frame.Poses)

	if d.Follower.Following() {
		cam := viewpoint.SceneCamera(d.Store)
		if err := d.Follower.Update(frame.Time, cam, false, false); err != nil {
			c.logger.Debugf("Viewpoint not updated: %v", err)
		}
	}

	stats := d.Applier.Stats()
	d.Diagnostics.SetPoseCounts(stats.Applied, stats.Dropped)
	c.reportClock()
}

func (c *Client) reportClock() {
	ms, defined := c.deps.Context.Clock()
	c.deps.Diagnostics.SetClock(ms, defined, view.ReadableTime(ms))
}

// Send writes a raw command.
func (c *Client) Send(msg string) error {
	if c.state != StateStreaming {
		return ErrNotConnected
	}
	return c.write(msg)
}

func (c *Client) write(msg string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

// Pause asks the server to pause the simulation.
func (c *Client) Pause() error {
	if c.cfg.Broadcast {
		return ErrBroadcastMode
	}
	return c.Send(protocol.CommandPause)
}

// RealTime resumes the simulation with the current timeout.
func (c *Client) RealTime() error {
	if c.cfg.Broadcast {
		return ErrBroadcastMode
	}
	if err := c.Send(protocol.RealTime(c.deps.Context.Timeout())); err != nil {
		return err
	}
	c.deps.Context.Running = true
	c.deps.UI.SetRunning(true)
	return nil
}

// Hold pauses a running simulation while the user is busy elsewhere, without
// restarting the countdown. Release resumes it.
func (c *Client) Hold() error {
	if c.cfg.Broadcast {
		return ErrBroadcastMode
	}
	if c.deps.Context.Hold() {
		return c.Pause()
	}
	return nil
}

// Release ends a hold, resuming the simulation if Hold paused it.
func (c *Client) Release() error {
	if c.cfg.Broadcast {
		return ErrBroadcastMode
	}
	if c.deps.Context.Release() {
		return c.RealTime()
	}
	return nil
}

// Step runs one simulation step.
func (c *Client) Step() error {
	if c.cfg.Broadcast {
		return ErrBroadcastMode
	}
	c.deps.Context.Running = false
	c.deps.UI.SetRunning(false)
	return c.Send(protocol.CommandStep)
}

// Revert reloads the world. The simulation resumes after the reload when it
// was running.
func (c *Client) Revert() error {
	if c.cfg.Broadcast {
		return ErrBroadcastMode
	}
	if c.state != StateStreaming {
		return ErrNotConnected
	}
	d := c.deps
	d.Context.ResetClock()
	c.reportClock()
	d.UI.Progress("Reverting...")
	d.Context.RunOnLoad = d.Context.Running
	if err := c.Pause(); err != nil {
		return err
	}
	d.Robots.Reset()
	d.Context.ResetDeadline()
	d.UI.SetDeadline(d.Context.Deadline())
	return c.Send(protocol.CommandRevert)
}

// Resize announces a new video size.
func (c *Client) Resize(width, height int) error {
	if c.cfg.Mode != protocol.ModeVideo {
		return ErrNotVideoMode
	}
	c.cfg.VideoWidth, c.cfg.VideoHeight = width, height
	return c.Send(protocol.Resize(width, height))
}

// Mouse forwards a pointer event to a video stream.
func (c *Client) Mouse(ev protocol.MouseEvent) error {
	if c.cfg.Mode != protocol.ModeVideo {
		return ErrNotVideoMode
	}
	return c.Send(protocol.Mouse(ev))
}

// SendRobotMessage sends text to a robot controller.
func (c *Client) SendRobotMessage(robot, message string) error {
	return c.Send(protocol.Robot(robot, message))
}

// SyncController asks the server to resynchronize a controller.
func (c *Client) SyncController(name string) error {
	return c.Send(protocol.SyncController(name))
}

// RequestControllerFiles asks for the sources of a controller directory.
func (c *Client) RequestControllerFiles(dir string) error {
	return c.Send(protocol.GetController(dir))
}

// UploadControllerFile sends an edited controller file.
func (c *Client) UploadControllerFile(dir, file, content string) error {
	return c.Send(protocol.SetController(dir, file, content))
}

// Close closes the connection and tears the scene down. It is safe to call
// in any state and more than once.
func (c *Client) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.deps.Context.Quitting = true

	if c.conn != nil {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	}
	c.teardown()
	c.setState(StateClosed)
	c.deps.Owner.Closed(nil)
}

func (c *Client) remoteClosed(conn *websocket.Conn, err error) {
	if c.closed || conn != c.conn {
		return
	}
	c.closed = true
	_ = conn.Close()

	code := closeCode(err)
	closeErr := &CloseError{
		URL:      c.cfg.URL,
		Code:     code,
		Abnormal: IsAbnormal(code, c.deps.Context.Quitting),
	}
	c.deps.Console.Error(closeErr.Error())
	c.deps.Diagnostics.RecordError(closeErr)
	c.deps.Robots.Reset()
	if closeErr.Abnormal {
		c.deps.UI.Alert("Streaming server error", fmt.Sprintf(
			"Connection closed abnormally. (Error code: %d) Please reload the simulation.", code))
		c.setState(StateFailed)
	} else {
		c.setState(StateClosed)
	}
	c.teardown()
	c.deps.Owner.Closed(closeErr)
}

func (c *Client) fail() {
	if c.closed {
		return
	}
	c.closed = true
	c.teardown()
	c.setState(StateFailed)
	c.deps.Owner.Closed(&CloseError{URL: c.cfg.URL, Code: websocket.CloseAbnormalClosure, Abnormal: true})
}

func (c *Client) teardown() {
	c.deps.Store.Teardown()
	c.deps.Video.StopAll()
}

func (c *Client) setState(s State) {
	c.state = s
	c.deps.Diagnostics.SetState(s.String())
}
