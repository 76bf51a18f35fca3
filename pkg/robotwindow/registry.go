// Package robotwindow keeps track of robot windows and of the clients
// subscribed to each robot's messages.
package robotwindow

import (
	"sort"
	"sync"

	customlog "github.com/open-teleop/simview/pkg/log"
)

// Handler receives a message sent by a robot controller.
type Handler func(robot, message string)

// WindowInfo describes one robot window.
type WindowInfo struct {
	Robot        string `json:"robot"`
	Window       string `json:"window"`
	Registered   bool   `json:"registered"`
	Subscribers  int    `json:"subscribers"`
	StatCount    int64  `json:"count"`
	LastReceived int64  `json:"last_received"`
}

type entry struct {
	window       string
	registered   bool
	handlers     map[uint64]Handler
	statCount    int64
	lastReceived int64
}

// Registry maps robot names to their window and subscribed handlers.
type Registry struct {
	logger    customlog.Logger
	robots    map[string]*entry
	observers map[uint64]Handler
	nextID    uint64
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry(logger customlog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		robots:    make(map[string]*entry),
		observers: make(map[uint64]Handler),
	}
}

func (r *Registry) entryLocked(robot string) *entry {
	e, ok := r.robots[robot]
	if !ok {
		e = &entry{window: robot, handlers: make(map[uint64]Handler)}
		r.robots[robot] = e
	}
	return e
}

// Register declares the window of a robot found in the scene.
func (r *Registry) Register(robot, window string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entryLocked(robot)
	e.window = window
	e.registered = true
	r.logger.Debugf("Registered robot window %s for robot %s", window, robot)
}

// Subscribe adds a handler for a robot's messages. The returned function
// removes it.
func (r *Registry) Subscribe(robot string, h Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	e := r.entryLocked(robot)
	e.handlers[id] = h

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if e, ok := r.robots[robot]; ok {
			delete(e.handlers, id)
			if !e.registered && len(e.handlers) == 0 {
				delete(r.robots, robot)
			}
		}
	}
}

// Observe adds a handler receiving the messages of every robot. The
// returned function removes it.
func (r *Registry) Observe(h Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.observers[id] = h

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.observers, id)
	}
}

// Deliver routes a robot message to every subscribed handler, then to the
// observers. It reports whether at least one subscribed handler received it.
func (r *Registry) Deliver(robot, message string, timestamp int64) bool {
	r.mu.Lock()
	observers := make([]Handler, 0, len(r.observers))
	for _, h := range r.observers {
		observers = append(observers, h)
	}
	var handlers []Handler
	if e, ok := r.robots[robot]; ok {
		e.statCount++
		e.lastReceived = timestamp
		handlers = make([]Handler, 0, len(e.handlers))
		for _, h := range e.handlers {
			handlers = append(handlers, h)
		}
	}
	r.mu.Unlock()

	if handlers == nil {
		r.logger.Debugf("Robot window for robot '%s' not found", robot)
	}
	for _, h := range handlers {
		h(robot, message)
	}
	for _, h := range observers {
		h(robot, message)
	}
	return len(handlers) > 0
}

// Window returns the window name registered for a robot.
func (r *Registry) Window(robot string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.robots[robot]
	if !ok || !e.registered {
		return "", false
	}
	return e.window, true
}

// Reset forgets the windows of the current scene. Subscriptions survive so
// that clients keep receiving messages after a revert.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for robot, e := range r.robots {
		if len(e.handlers) == 0 {
			delete(r.robots, robot)
			continue
		}
		e.registered = false
		e.window = robot
		e.statCount = 0
		e.lastReceived = 0
	}
}

// Windows returns every known robot sorted by name.
func (r *Registry) Windows() []WindowInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]WindowInfo, 0, len(r.robots))
	for robot, e := range r.robots {
		infos = append(infos, WindowInfo{
			Robot:        robot,
			Window:       e.window,
			Registered:   e.registered,
			Subscribers:  len(e.handlers),
			StatCount:    e.statCount,
			LastReceived: e.lastReceived,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Robot < infos[j].Robot })
	return infos
}
