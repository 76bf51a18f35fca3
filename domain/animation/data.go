package animation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/open-teleop/simview/pkg/assets"
	"github.com/open-teleop/simview/pkg/protocol"
)

var (
	// ErrNoFrames is returned for recordings without frames.
	ErrNoFrames = errors.New("animation: recording has no frames")
	// ErrBadTimeStep is returned when basicTimeStep is not positive.
	ErrBadTimeStep = errors.New("animation: basicTimeStep must be positive")
)

// Data is a recorded animation. It is read-only once loaded.
type Data struct {
	BasicTimeStep float64          `json:"basicTimeStep"`
	IDs           string           `json:"ids"`
	Frames        []protocol.Frame `json:"frames"`
}

// IDList splits the ";"-joined ids of every object the recording moves.
func (d *Data) IDList() []string {
	parts := strings.Split(d.IDs, ";")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

// Parse decodes and validates an animation document.
func Parse(raw []byte) (*Data, error) {
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("animation: invalid document: %w", err)
	}
	if d.BasicTimeStep <= 0 {
		return nil, ErrBadTimeStep
	}
	if len(d.Frames) == 0 {
		return nil, ErrNoFrames
	}
	return &d, nil
}

// Load fetches and parses an animation from a URL or a local path.
func Load(uri string, timeout time.Duration) (*Data, error) {
	raw, err := assets.Fetch(uri, timeout)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}
