package proof

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HandlePlaceholder is replaced by the URL-escaped handle in an HTTPChannel
// template.
const HandlePlaceholder = "{handle}"

const maxProofBytes = 64 << 10

// HTTPChannel reads proofs from a URL derived from the handle, such as a raw
// file in the handle owner's profile repository:
//
//	https://raw.githubusercontent.com/{handle}/{handle}/main/contribsplit-proof.txt
type HTTPChannel struct {
	Template string
	Client   *http.Client
}

var _ Channel = (*HTTPChannel)(nil)

// NewHTTPChannel returns a channel for template, which must contain
// HandlePlaceholder.
func NewHTTPChannel(template string) (*HTTPChannel, error) {
	if !strings.Contains(template, HandlePlaceholder) {
		return nil, fmt.Errorf("proof: url template %q lacks %s", template, HandlePlaceholder)
	}
	return &HTTPChannel{
		Template: template,
		Client:   &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// URL returns the location checked for handle.
func (c *HTTPChannel) URL(handle string) string {
	return strings.ReplaceAll(c.Template, HandlePlaceholder, url.PathEscape(handle))
}

func (c *HTTPChannel) Publish(_ context.Context, handle, _ string) (string, error) {
	return "", fmt.Errorf("%w: publish the challenge at %s", ErrPublishUnsupported, c.URL(handle))
}

func (c *HTTPChannel) FetchPublished(ctx context.Context, handle string) (string, error) {
	target := c.URL(handle)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("proof: create request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: GET %s: %w", ErrLookupFailed, target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return "", fmt.Errorf("%w: %s", ErrNotPublished, target)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", fmt.Errorf("%w: GET %s: HTTP %d", ErrLookupFailed, target, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProofBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", ErrLookupFailed, target, err)
	}
	if len(body) == 0 {
		return "", fmt.Errorf("%w: %s is empty", ErrNotPublished, target)
	}
	return string(body), nil
}

func (c *HTTPChannel) Instructions(handle string) string {
	return fmt.Sprintf("Publish the challenge as a plain-text file reachable at %s", c.URL(handle))
}
