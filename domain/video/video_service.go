package video

import (
	"sort"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Stream is a video sub-stream announced by the server
type Stream struct {
	URL        string    `json:"url"`
	StreamID   string    `json:"stream_id"`
	AttachedAt time.Time `json:"attached_at"`
}

// VideoService keeps track of the attached video sub-streams
type VideoService struct {
	mu      sync.RWMutex
	streams map[string]Stream
}

// NewVideoService creates a new video service instance
func NewVideoService() *VideoService {
	return &VideoService{streams: make(map[string]Stream)}
}

// StreamHandler lists the attached streams
func (s *VideoService) StreamHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "success",
		"streams": s.GetActiveStreams(),
	})
}

// StartStream attaches a sub-stream. Attaching an id twice replaces the URL.
func (s *VideoService) StartStream(url, streamID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.streams[streamID] = Stream{URL: url, StreamID: streamID, AttachedAt: time.Now()}
}

// StopStream detaches a sub-stream
func (s *VideoService) StopStream(streamID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.streams[streamID]
	delete(s.streams, streamID)
	return ok
}

// StopAll detaches every sub-stream
func (s *VideoService) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.streams = make(map[string]Stream)
}

// GetActiveStreams returns all attached streams ordered by id
func (s *VideoService) GetActiveStreams() []Stream {
	s.mu.RLock()
	defer s.mu.RUnlock()

	streams := make([]Stream, 0, len(s.streams))
	for _, st := range s.streams {
		streams = append(streams, st)
	}
	sort.Slice(streams, func(i, j int) bool { return streams[i].StreamID < streams[j].StreamID })
	return streams
}
