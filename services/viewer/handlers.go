package viewer

import (
	"github.com/open-teleop/simview/pkg/protocol"
	"github.com/open-teleop/simview/services/stream"
)

// sessionHandler receives the session server messages. It runs on the
// negotiator's reader goroutine.
type sessionHandler struct{ v *Viewer }

func (h sessionHandler) Redirect(url string) {
	v := h.v
	var client *stream.Client
	err := v.do(v.baseCtx, func() error {
		if v.closed {
			return ErrClosed
		}
		v.streamGen++
		if v.client != nil {
			v.client.Close()
		}
		client = stream.NewClient(stream.Config{
			URL:         url,
			Mode:        v.opts.Mode,
			Broadcast:   v.opts.Broadcast,
			VideoWidth:  v.opts.VideoWidth,
			VideoHeight: v.opts.VideoHeight,
		}, stream.Deps{
			Context:     v.context,
			Store:       v.store,
			Applier:     v.applier,
			Follower:    v.follower,
			Console:     v.console,
			Robots:      v.robots,
			Editor:      v.editor,
			UI:          v.ui,
			Video:       v.video,
			Diagnostics: v.diagnostics,
			Owner:       streamOwner{v: v, gen: v.streamGen},
		}, v.loop, v.logger)
		v.client = client
		// A new connection resumes from a clean context.
		v.context.Quitting = false
		return nil
	})
	if err != nil {
		v.logger.Debugf("Ignoring redirect to %s: %v", url, err)
		return
	}
	if err := client.Connect(v.baseCtx); err != nil {
		v.logger.Errorf("Failed to open stream: %v", err)
	}
}

func (h sessionHandler) ResetController(name string) {
	v := h.v
	_ = v.loop.Post(func() {
		if v.client == nil {
			return
		}
		if err := v.client.SyncController(name); err != nil {
			v.logger.Warnf("Failed to sync controller %s: %v", name, err)
		}
	})
}

// streamOwner receives the stream lifecycle on the loop. Callbacks from a
// client replaced by a later redirect are ignored.
type streamOwner struct {
	v   *Viewer
	gen int
}

func (o streamOwner) Ready() {
	v := o.v
	if o.gen != v.streamGen {
		return
	}
	if v.opts.Mode != protocol.ModeVideo {
		v.finalize()
	}
	v.ready()
}

// Closed ends the session along with its stream.
func (o streamOwner) Closed(err error) {
	v := o.v
	if o.gen != v.streamGen {
		return
	}
	v.store.ClearSelection()
	v.robots.Reset()
	if n := v.negotiator; n != nil {
		v.negotiator = nil
		if cerr := n.Close(); cerr != nil {
			v.logger.Debugf("Failed to close session %s: %v", n.ID(), cerr)
		}
	}
	v.publish(Event{Type: EventClosed, Err: err})
}
