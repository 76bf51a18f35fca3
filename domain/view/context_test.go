package view

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customlog "github.com/open-teleop/simview/pkg/log"
)

func TestClock(t *testing.T) {
	c := NewContext()
	_, ok := c.Clock()
	assert.False(t, ok)

	c.SetClock(320)
	ms, ok := c.Clock()
	assert.True(t, ok)
	assert.Equal(t, 320.0, ms)

	c.ResetClock()
	assert.False(t, c.ClockDefined())
}

func TestSetTimeout(t *testing.T) {
	c := NewContext()
	assert.Equal(t, 60000.0, c.Timeout())
	assert.Equal(t, 60000.0, c.Deadline())

	c.SetTimeout(-1)
	assert.Equal(t, -1.0, c.Timeout())
	assert.Equal(t, 0.0, c.Deadline())

	c.SetTimeout(10)
	assert.Equal(t, 10000.0, c.Timeout())
	assert.Equal(t, 10000.0, c.Deadline())

	c.SetClock(2500)
	c.SetTimeout(10)
	assert.Equal(t, 12500.0, c.Deadline())
}

func TestPausedRecomputesDeadline(t *testing.T) {
	c := NewContext()
	c.Running = true
	c.SetClock(4000)

	assert.True(t, c.Paused())
	assert.False(t, c.Running)
	assert.Equal(t, 64000.0, c.Deadline())

	c.AutomaticallyPaused = true
	c.SetClock(8000)
	assert.False(t, c.Paused())
	assert.Equal(t, 64000.0, c.Deadline())

	c.AutomaticallyPaused = false
	c.SetTimeout(-1)
	assert.False(t, c.Paused())
	assert.Equal(t, 0.0, c.Deadline())
}

func TestHoldPausesWithoutRestartingCountdown(t *testing.T) {
	c := NewContext()
	c.Running = true
	c.SetClock(4000)
	c.SetTimeout(10)
	require.Equal(t, 14000.0, c.Deadline())

	assert.True(t, c.Hold())
	assert.True(t, c.Held())
	assert.False(t, c.Hold(), "a second hold is a no-op")

	c.SetClock(6000)
	assert.False(t, c.Paused())
	assert.Equal(t, 14000.0, c.Deadline())

	assert.True(t, c.Release())
	assert.False(t, c.Held())
	assert.False(t, c.AutomaticallyPaused)
	assert.False(t, c.Release())
}

func TestHoldOnPausedSimulation(t *testing.T) {
	c := NewContext()

	assert.False(t, c.Hold())
	assert.False(t, c.Release(), "nothing to resume")

	c.SetClock(1000)
	assert.True(t, c.Paused())
	assert.Equal(t, 61000.0, c.Deadline())
}

func TestResetDeadline(t *testing.T) {
	c := NewContext()
	c.SetClock(1000)
	c.SetTimeout(5)
	assert.Equal(t, 6000.0, c.Deadline())
	c.ResetDeadline()
	assert.Equal(t, 5000.0, c.Deadline())
}

func TestReadableTime(t *testing.T) {
	assert.Equal(t, "00:00:00:000", ReadableTime(0))
	assert.Equal(t, "00:00:59:999", ReadableTime(59999))
	assert.Equal(t, "00:01:00:000", ReadableTime(60000))
	assert.Equal(t, "01:02:03:004", ReadableTime(3723004))
	assert.Equal(t, "34:17:36:789", ReadableTime(123456789))
}

func TestStaticCredentials(t *testing.T) {
	assert.Equal(t, "a@b.c:pw", StaticCredentials{Email: "a@b.c", Password: "pw"}.Credentials())
	assert.Equal(t, "", StaticCredentials{Email: "a@b.c"}.Credentials())
	assert.Equal(t, "", StaticCredentials{}.Credentials())
}

func TestMemoryEditor(t *testing.T) {
	e := NewMemoryEditor()
	e.Open("braitenberg")
	e.ReceiveFile("main.c", "int main;")
	assert.Equal(t, "braitenberg", e.CurrentOpenDirectory())
	content, ok := e.File("main.c")
	assert.True(t, ok)
	assert.Equal(t, "int main;", content)

	e.Open("other")
	_, ok = e.File("main.c")
	assert.False(t, ok)
}

func TestConsolesFanOut(t *testing.T) {
	var a, b bytes.Buffer
	cs := Consoles{
		NewLogConsole(customlog.NewWriterLogger("info", &a)),
		NewLogConsole(customlog.NewWriterLogger("info", &b)),
	}
	cs.Stdout("hello")
	assert.Contains(t, a.String(), "hello channel=stdout")
	assert.Contains(t, b.String(), "hello channel=stdout")
}
