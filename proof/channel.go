// Package proof implements out-of-band proof channels: places a handle's
// owner controls where a verification challenge can be published and read
// back.
package proof

import (
	"context"
	"strings"
)

// Channel publishes and fetches verification content for a handle.
type Channel interface {
	// Publish places content where FetchPublished(handle) will find it and
	// returns a locator for humans. Channels that cannot publish for the
	// handle owner return ErrPublishUnsupported.
	Publish(ctx context.Context, handle, content string) (string, error)

	// FetchPublished returns the content currently published for handle,
	// or ErrNotPublished.
	FetchPublished(ctx context.Context, handle string) (string, error)

	// Instructions tells the handle owner where to publish content manually.
	Instructions(handle string) string
}

// ContainsLine reports whether published holds want as one complete line.
// Line terminators (LF or CRLF) are the only bytes ignored.
func ContainsLine(published, want string) bool {
	if want == "" {
		return false
	}
	for _, line := range strings.Split(published, "\n") {
		if strings.TrimSuffix(line, "\r") == want {
			return true
		}
	}
	return false
}
