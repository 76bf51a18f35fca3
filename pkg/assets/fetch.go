// Package assets loads scene and animation files from HTTP(S) URLs or the
// local file system.
package assets

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// DefaultTimeout bounds HTTP downloads when no timeout is given.
const DefaultTimeout = 10 * time.Second

// IsRemote reports whether uri is fetched over HTTP.
func IsRemote(uri string) bool {
	return strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://")
}

// Fetch returns the content of uri. Remote resources must answer 200.
func Fetch(uri string, timeout time.Duration) ([]byte, error) {
	if !IsRemote(uri) {
		data, err := os.ReadFile(strings.TrimPrefix(uri, "file://"))
		if err != nil {
			return nil, fmt.Errorf("failed to read '%s': %w", uri, err)
		}
		return data, nil
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	code, body, errs := fiber.Get(uri).Timeout(timeout).Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to fetch '%s': %w", uri, errors.Join(errs...))
	}
	if code != fiber.StatusOK {
		return nil, fmt.Errorf("failed to fetch '%s': unexpected status %d", uri, code)
	}
	return body, nil
}
