package session

import (
	"fmt"
	"net/url"
	"strings"
)

const worldsDir = "/worlds/"

// Endpoint is a simulation URL split into its parts.
//
//	ws://sim.example.com:80/simple/worlds/simple.wbt
//	Origin  = http://sim.example.com:80
//	Project = simple
//	World   = simple.wbt
type Endpoint struct {
	Origin  string
	Project string
	World   string
}

// ParseEndpoint splits a ws:// or wss:// simulation URL.
func ParseEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid simulation URL '%s': %w", raw, err)
	}

	var scheme string
	switch u.Scheme {
	case "ws":
		scheme = "http"
	case "wss":
		scheme = "https"
	default:
		return Endpoint{}, fmt.Errorf("invalid simulation URL '%s': scheme must be ws or wss", raw)
	}
	if u.Host == "" {
		return Endpoint{}, fmt.Errorf("invalid simulation URL '%s': missing host", raw)
	}

	idx := strings.LastIndex(u.Path, worldsDir)
	if idx <= 0 {
		return Endpoint{}, fmt.Errorf("invalid simulation URL '%s': expected /<project>/worlds/<file>", raw)
	}
	project := strings.Trim(u.Path[:idx], "/")
	world := u.Path[idx+len(worldsDir):]
	if project == "" || world == "" || strings.Contains(world, "/") {
		return Endpoint{}, fmt.Errorf("invalid simulation URL '%s': expected /<project>/worlds/<file>", raw)
	}

	return Endpoint{
		Origin:  scheme + "://" + u.Host,
		Project: project,
		World:   world,
	}, nil
}

// CallerOrigin reduces the page origin announced to the broker to
// scheme://host, without a leading www. label.
func CallerOrigin(origin string) string {
	if origin == "" {
		return "http://localhost"
	}
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		return origin
	}
	return u.Scheme + "://" + strings.TrimPrefix(u.Hostname(), "www.")
}

// ControllerURL replaces the port of a simulation URL by a controller port.
func ControllerURL(simulationURL, port string) string {
	const schemeLen = len("wss://")
	if len(simulationURL) <= schemeLen {
		return port
	}
	colon := strings.IndexByte(simulationURL[schemeLen:], ':')
	if colon < 0 {
		return port
	}
	return simulationURL[:schemeLen+colon+1] + port
}
