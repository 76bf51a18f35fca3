package view

import (
	"sync"

	customlog "github.com/open-teleop/simview/pkg/log"
)

// Console receives controller output and viewer notices.
type Console interface {
	Stdout(text string)
	Stderr(text string)
	Info(text string)
	Error(text string)
}

// RobotRouter routes robot messages to their windows.
type RobotRouter interface {
	Deliver(robot, message string, timestamp int64) bool
	// Reset forgets the windows of the current scene.
	Reset()
}

// Editor is the controller source editor.
type Editor interface {
	CurrentOpenDirectory() string
	ReceiveFile(name, content string)
}

// Credentials provides the opaque user credential string, "" when anonymous.
type Credentials interface {
	Credentials() string
}

// UI is the presentation layer the view reports its state to.
type UI interface {
	SetRunning(running bool)
	SetClock(ms float64)
	SetDeadline(ms float64)
	Progress(message string)
	HideProgress()
	Alert(title, message string)
}

// LogConsole writes console channels to a logger.
type LogConsole struct {
	logger customlog.Logger
}

// NewLogConsole creates a console backed by logger.
func NewLogConsole(logger customlog.Logger) *LogConsole {
	return &LogConsole{logger: logger}
}

func (c *LogConsole) Stdout(text string) { c.logger.WithField("channel", "stdout").Infof("%s", text) }
func (c *LogConsole) Stderr(text string) { c.logger.WithField("channel", "stderr").Warnf("%s", text) }
func (c *LogConsole) Info(text string)   { c.logger.WithField("channel", "info").Infof("%s", text) }
func (c *LogConsole) Error(text string)  { c.logger.WithField("channel", "error").Errorf("%s", text) }

// Consoles fans console lines out to several consoles.
type Consoles []Console

func (cs Consoles) Stdout(text string) {
	for _, c := range cs {
		c.Stdout(text)
	}
}

func (cs Consoles) Stderr(text string) {
	for _, c := range cs {
		c.Stderr(text)
	}
}

func (cs Consoles) Info(text string) {
	for _, c := range cs {
		c.Info(text)
	}
}

func (cs Consoles) Error(text string) {
	for _, c := range cs {
		c.Error(text)
	}
}

// MemoryEditor keeps received controller files in memory.
type MemoryEditor struct {
	mu    sync.RWMutex
	dir   string
	files map[string]string
}

// NewMemoryEditor creates an editor with no open directory.
func NewMemoryEditor() *MemoryEditor {
	return &MemoryEditor{files: make(map[string]string)}
}

// Open switches to a controller directory and closes the previous files.
func (e *MemoryEditor) Open(dir string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dir = dir
	e.files = make(map[string]string)
}

func (e *MemoryEditor) CurrentOpenDirectory() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dir
}

func (e *MemoryEditor) ReceiveFile(name, content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.files[name] = content
}

// File returns a received file.
func (e *MemoryEditor) File(name string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	content, ok := e.files[name]
	return content, ok
}

// StaticCredentials joins an email and a password as email:password.
type StaticCredentials struct {
	Email    string
	Password string
}

// Credentials returns "" unless both parts are set.
func (c StaticCredentials) Credentials() string {
	if c.Email == "" || c.Password == "" {
		return ""
	}
	return c.Email + ":" + c.Password
}

// LogUI logs presentation updates.
type LogUI struct {
	logger customlog.Logger
}

// NewLogUI creates a UI backed by logger.
func NewLogUI(logger customlog.Logger) *LogUI {
	return &LogUI{logger: logger}
}

func (u *LogUI) SetRunning(running bool) { u.logger.Debugf("Simulation running: %v", running) }
func (u *LogUI) SetClock(ms float64)     { u.logger.Debugf("Simulation time: %s", ReadableTime(ms)) }
func (u *LogUI) SetDeadline(ms float64)  { u.logger.Debugf("Simulation deadline: %s", ReadableTime(ms)) }
func (u *LogUI) Progress(message string) { u.logger.Infof("%s", message) }
func (u *LogUI) HideProgress()           {}
func (u *LogUI) Alert(title, message string) {
	u.logger.Errorf("%s: %s", title, message)
}
