package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpoint(t *testing.T) {
	e, err := ParseEndpoint("ws://cyberbotics2.cyberbotics.com:80/simple/worlds/simple.wbt")
	require.NoError(t, err)
	assert.Equal(t, Endpoint{Origin: "http://cyberbotics2.cyberbotics.com:80", Project: "simple", World: "simple.wbt"}, e)

	e, err = ParseEndpoint("wss://sim.example.com:443/robots/epuck/worlds/arena.wbt")
	require.NoError(t, err)
	assert.Equal(t, Endpoint{Origin: "https://sim.example.com:443", Project: "robots/epuck", World: "arena.wbt"}, e)

	for _, bad := range []string{
		"http://host:80/simple/worlds/simple.wbt",
		"ws://host:80/simple/simple.wbt",
		"ws://host:80/worlds/simple.wbt",
		"ws://host:80/simple/worlds/",
		"ws:///simple/worlds/simple.wbt",
	} {
		_, err := ParseEndpoint(bad)
		assert.Error(t, err, bad)
	}
}

func TestCallerOrigin(t *testing.T) {
	assert.Equal(t, "https://example.com", CallerOrigin("https://www.example.com"))
	assert.Equal(t, "http://sim.example.com", CallerOrigin("http://sim.example.com:8080/path"))
	assert.Equal(t, "http://localhost", CallerOrigin(""))
}

func TestControllerURL(t *testing.T) {
	assert.Equal(t, "ws://host:8001", ControllerURL("ws://host:80/simple/worlds/simple.wbt", "8001"))
	assert.Equal(t, "wss://host:8001", ControllerURL("wss://host:443/simple/worlds/simple.wbt", "8001"))
	assert.Equal(t, "8001", ControllerURL("ws://host/simple", "8001"))
}
