package diagnostic

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// StreamMetrics represents the diagnostics of one view
type StreamMetrics struct {
	Timestamp    time.Time        `json:"timestamp"`
	SessionID    string           `json:"session_id,omitempty"`
	State        string           `json:"state"`
	Mode         string           `json:"mode"`
	Clock        *float64         `json:"clock_ms"` // nil until the scene is loaded
	ReadableTime string           `json:"clock,omitempty"`
	Messages     map[string]int64 `json:"messages"`
	StaleFrames  int64            `json:"stale_frames"`
	PosesApplied int64            `json:"poses_applied"`
	PosesDropped int64            `json:"poses_dropped"`
	LastError    string           `json:"last_error,omitempty"`
}

// DiagnosticService collects stream diagnostics
type DiagnosticService struct {
	mu      sync.RWMutex
	metrics StreamMetrics
}

// NewDiagnosticService creates a new diagnostic service instance
func NewDiagnosticService() *DiagnosticService {
	return &DiagnosticService{
		metrics: StreamMetrics{
			Timestamp: time.Now(),
			Messages:  make(map[string]int64),
		},
	}
}

// GetMetricsHandler handles API requests for stream metrics
func (s *DiagnosticService) GetMetricsHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "success",
		"metrics": s.GetMetrics(),
	})
}

// RecordMessage counts one decoded message of the given kind
func (s *DiagnosticService) RecordMessage(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.Messages[kind]++
	s.metrics.Timestamp = time.Now()
}

// RecordStaleFrame counts a frame dropped while the scene was loading
func (s *DiagnosticService) RecordStaleFrame() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.StaleFrames++
}

// RecordError keeps the last error reported by the stream
func (s *DiagnosticService) RecordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.LastError = err.Error()
}

// SetSession stores the identifiers of the current session
func (s *DiagnosticService) SetSession(id, mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.SessionID = id
	s.metrics.Mode = mode
}

// SetState stores the connection state
func (s *DiagnosticService) SetState(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.State = state
}

// SetClock stores the simulation clock. An undefined clock is reported as null.
func (s *DiagnosticService) SetClock(ms float64, defined bool, readable string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !defined {
		s.metrics.Clock = nil
		s.metrics.ReadableTime = ""
		return
	}
	s.metrics.Clock = &ms
	s.metrics.ReadableTime = readable
}

// SetPoseCounts stores the pose counters
func (s *DiagnosticService) SetPoseCounts(applied, dropped int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.PosesApplied = applied
	s.metrics.PosesDropped = dropped
}

// GetMetrics returns a copy of the current metrics
func (s *DiagnosticService) GetMetrics() StreamMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := s.metrics
	m.Messages = make(map[string]int64, len(s.metrics.Messages))
	for k, v := range s.metrics.Messages {
		m.Messages[k] = v
	}
	if s.metrics.Clock != nil {
		clock := *s.metrics.Clock
		m.Clock = &clock
	}
	return m
}
