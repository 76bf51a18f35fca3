package viewer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customlog "github.com/open-teleop/simview/pkg/log"
	"github.com/open-teleop/simview/pkg/protocol"
	"github.com/open-teleop/simview/services/session"
	"github.com/open-teleop/simview/services/stream"
)

const liveScene = `<X3D><Scene>` +
	`<Viewpoint id="n1" position="0 0 10" followSmoothness="0.5" followedId="n3"></Viewpoint>` +
	`<Transform id="n3" DEF="ROBOT" name="e-puck" window="e-puck_window" translation="0 0 0"></Transform>` +
	`</Scene></X3D>`

// simulation serves the session broker and the streaming server.
type simulation struct {
	server      *httptest.Server
	received    chan string
	closeStream chan struct{}
	brokerGone  chan string
	stopped     chan struct{}
}

func newSimulation(t *testing.T) *simulation {
	t.Helper()
	s := &simulation{
		received:    make(chan string, 32),
		closeStream: make(chan struct{}, 1),
		brokerGone:  make(chan string, 4),
		stopped:     make(chan struct{}),
	}
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ws://" + r.Host))
	})
	mux.HandleFunc("/client", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() {
			_ = conn.Close()
			s.brokerGone <- r.RemoteAddr
		}()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte("webots:ws://"+r.Host+"/stream"))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, msg := range []string{"model:" + liveScene, protocol.SceneLoadCompletedLiteral} {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		go func() {
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				s.received <- string(data)
			}
		}()
		select {
		case <-s.closeStream:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
		case <-s.stopped:
		}
	})
	s.server = httptest.NewServer(mux)
	t.Cleanup(s.server.Close)
	t.Cleanup(func() { close(s.stopped) })
	return s
}

func (s *simulation) url() string {
	return "ws://" + strings.TrimPrefix(s.server.URL, "http://") + "/project/worlds/demo.wbt"
}

func waitEvent(t *testing.T, v *Viewer, want EventType) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-v.Events():
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", want)
			return Event{}
		}
	}
}

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return ""
	}
}

func TestRemoteCloseEndsSession(t *testing.T) {
	sim := newSimulation(t)
	v := New(Options{Origin: "http://localhost"}, customlog.Discard())
	defer v.Close()

	require.NoError(t, v.Open(context.Background(), sim.url(), ""))
	assert.Equal(t, protocol.ModeX3D, receive(t, sim.received))
	waitEvent(t, v, EventReady)

	sim.closeStream <- struct{}{}
	ev := waitEvent(t, v, EventClosed)
	var closeErr *stream.CloseError
	require.ErrorAs(t, ev.Err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.False(t, closeErr.Abnormal)

	receive(t, sim.brokerGone)
	assert.Equal(t, stream.StateClosed, v.StreamState())
	assert.ErrorIs(t, v.ResetController("main.c"), session.ErrNotConnected)
	_, ok := v.ControllerURL("main")
	assert.False(t, ok)
}

func TestLiveSessionFinalizesScene(t *testing.T) {
	sim := newSimulation(t)
	v := New(Options{Origin: "http://localhost"}, customlog.Discard())
	defer v.Close()

	require.NoError(t, v.Open(context.Background(), sim.url(), ""))
	assert.Equal(t, protocol.ModeX3D, receive(t, sim.received))
	waitEvent(t, v, EventReady)

	assert.Equal(t, stream.StateStreaming, v.StreamState())
	assert.Equal(t, "n3", v.FollowTarget())
	window, ok := v.Robots().Window("e-puck")
	require.True(t, ok)
	assert.Equal(t, "e-puck_window", window)

	require.NoError(t, v.do(context.Background(), func() error {
		assert.Equal(t, 0.5, v.follower.Mass())
		return nil
	}))

	require.NoError(t, v.SendRobotWindowMessage("e-puck", "hello"))
	assert.Equal(t, "robot:e-puck:hello", receive(t, sim.received))
	assert.Equal(t, protocol.CommandStep, receive(t, sim.received))

	require.NoError(t, v.Follow("none"))
	assert.Equal(t, "", v.FollowTarget())
	require.NoError(t, v.Follow("ROBOT"))
	assert.Equal(t, "n3", v.FollowTarget())
	assert.ErrorIs(t, v.Follow("ghost"), ErrUnknownTarget)

	require.NoError(t, v.Close())
	ev := waitEvent(t, v, EventClosed)
	assert.NoError(t, ev.Err)
	assert.NoError(t, v.Close())
}

func TestOfflineSceneWithAnimation(t *testing.T) {
	dir := t.TempDir()
	scenePath := filepath.Join(dir, "demo.x3d")
	animPath := filepath.Join(dir, "demo.json")
	require.NoError(t, os.WriteFile(scenePath, []byte(`<?xml version="1.0"?><X3D><Scene>`+
		`<Viewpoint id="n1" position="0 0 10"></Viewpoint>`+
		`<Transform id="n2" translation="0 0 0"></Transform>`+
		`</Scene></X3D>`), 0644))
	require.NoError(t, os.WriteFile(animPath, []byte(`{"basicTimeStep":32,"ids":"2",`+
		`"frames":[{"time":0,"poses":[{"id":2,"translation":"1 2 3"}]},{"time":32}]}`), 0644))

	v := New(Options{FrameInterval: time.Millisecond}, customlog.Discard())
	defer v.Close()

	require.NoError(t, v.SetAnimation(animPath, "play", true))
	require.NoError(t, v.Open(context.Background(), scenePath, ""))
	waitEvent(t, v, EventReady)

	status, ok := v.AnimationStatus()
	require.True(t, ok)
	assert.Equal(t, 2, status.Frames)

	require.NoError(t, v.do(context.Background(), func() error {
		n, ok := v.store.Lookup("2")
		require.True(t, ok)
		value, _ := n.Attr("translation")
		assert.Equal(t, "1 2 3", value)
		return nil
	}))

	assert.ErrorIs(t, v.Pause(), ErrNoStream)
	require.NoError(t, v.Close())
}

func TestOpenRejectsBadModeAndSecondOpen(t *testing.T) {
	dir := t.TempDir()
	scenePath := filepath.Join(dir, "empty.x3d")
	require.NoError(t, os.WriteFile(scenePath, []byte(`<X3D><Scene></Scene></X3D>`), 0644))

	v := New(Options{}, customlog.Discard())
	defer v.Close()

	assert.Error(t, v.Open(context.Background(), scenePath, "x3dom"))
	require.NoError(t, v.Open(context.Background(), scenePath, ""))
	assert.ErrorIs(t, v.Open(context.Background(), scenePath, ""), ErrAlreadyOpen)
}

func TestFollowBeforeLoadIsResolvedLater(t *testing.T) {
	dir := t.TempDir()
	scenePath := filepath.Join(dir, "demo.x3d")
	require.NoError(t, os.WriteFile(scenePath, []byte(`<X3D><Scene>`+
		`<Viewpoint id="n1" followedId="n2"></Viewpoint>`+
		`<Transform id="n2"></Transform><Transform id="n5" DEF="BOX"></Transform>`+
		`</Scene></X3D>`), 0644))

	v := New(Options{}, customlog.Discard())
	defer v.Close()

	require.NoError(t, v.Follow("BOX"))
	require.NoError(t, v.Open(context.Background(), scenePath, ""))
	waitEvent(t, v, EventReady)
	assert.Equal(t, "n5", v.FollowTarget())
}
