package diagnostic

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsAreCopied(t *testing.T) {
	s := NewDiagnosticService()
	s.RecordMessage("frame")
	s.RecordMessage("frame")
	s.RecordStaleFrame()
	s.SetClock(320, true, "00:00:00:320")
	s.RecordError(errors.New("closed"))

	m := s.GetMetrics()
	m.Messages["frame"] = 99
	*m.Clock = 1

	again := s.GetMetrics()
	assert.Equal(t, int64(2), again.Messages["frame"])
	assert.Equal(t, int64(1), again.StaleFrames)
	require.NotNil(t, again.Clock)
	assert.Equal(t, 320.0, *again.Clock)
	assert.Equal(t, "closed", again.LastError)

	s.SetClock(0, false, "")
	assert.Nil(t, s.GetMetrics().Clock)
}

func TestGetMetricsHandler(t *testing.T) {
	s := NewDiagnosticService()
	s.SetSession("abc", "x3d")
	s.SetState("streaming")
	s.SetPoseCounts(5, 1)

	app := fiber.New()
	app.Get("/diagnostics", s.GetMetricsHandler)
	resp, err := app.Test(httptest.NewRequest("GET", "/diagnostics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Status  string        `json:"status"`
		Metrics StreamMetrics `json:"metrics"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, "streaming", body.Metrics.State)
	assert.Equal(t, "abc", body.Metrics.SessionID)
	assert.Equal(t, int64(5), body.Metrics.PosesApplied)
	assert.Nil(t, body.Metrics.Clock)
}
