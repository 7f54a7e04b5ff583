package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/bitfsorg/contribsplit/proof"
)

// ProofFilename is the gist file a handle owner publishes a challenge in.
const ProofFilename = "contribsplit-proof.txt"

// GistChannel is a proof channel over public gists. A handle is a GitHub
// login; the newest gist holding ProofFilename is the published proof.
type GistChannel struct {
	Client *Client
}

var _ proof.Channel = (*GistChannel)(nil)

// NewGistChannel returns a gist channel over c.
func NewGistChannel(c *Client) *GistChannel {
	return &GistChannel{Client: c}
}

// Publish creates a public gist holding content. It works only when the
// client's token belongs to handle.
func (g *GistChannel) Publish(ctx context.Context, handle, content string) (string, error) {
	if g.Client.Token == "" {
		return "", fmt.Errorf("%w: no token to publish as %s", proof.ErrPublishUnsupported, handle)
	}
	login, err := g.Client.AuthenticatedUser(ctx)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(login, handle) {
		return "", fmt.Errorf("%w: token belongs to %s, not %s", proof.ErrPublishUnsupported, login, handle)
	}

	req := Gist{
		Description: "contribsplit verification",
		Public:      true,
		Files:       map[string]GistFile{ProofFilename: {Content: content}},
	}
	body, _, err := g.Client.doRequest(ctx, http.MethodPost, g.Client.buildURL("/gists", nil), req)
	if err != nil {
		return "", err
	}
	var created Gist
	if err := jsonUnmarshal(body, &created); err != nil {
		return "", err
	}
	return created.HTMLURL, nil
}

// FetchPublished returns the proof file of handle's newest proof gist.
func (g *GistChannel) FetchPublished(ctx context.Context, handle string) (string, error) {
	if handle == "" {
		return "", fmt.Errorf("%w: empty handle", proof.ErrNotPublished)
	}
	path := "/users/" + url.PathEscape(handle) + "/gists"
	var gists []Gist
	_, err := g.Client.getJSON(ctx, g.Client.buildURL(path, url.Values{"per_page": {strconv.Itoa(MaxPageSize)}}), &gists)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("%w: no GitHub user %s", proof.ErrNotPublished, handle)
		}
		return "", err
	}

	sort.SliceStable(gists, func(i, j int) bool { return gists[i].UpdatedAt.After(gists[j].UpdatedAt) })
	for _, gist := range gists {
		file, ok := gist.Files[ProofFilename]
		if !ok || file.RawURL == "" {
			continue
		}
		return g.fetchRaw(ctx, file.RawURL)
	}
	return "", fmt.Errorf("%w: %s has no %s gist", proof.ErrNotPublished, handle, ProofFilename)
}

func (g *GistChannel) fetchRaw(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("github: create request: %w", err)
	}
	resp, err := g.Client.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: GET %s: %w", ErrTransport, rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: %s", proof.ErrNotPublished, rawURL)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: GET %s: HTTP %d", ErrUnexpectedStatus, rawURL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", ErrTransport, rawURL, err)
	}
	return string(data), nil
}

func (g *GistChannel) Instructions(handle string) string {
	return fmt.Sprintf("Create a public gist as %s containing a file named %s with the challenge as its content", handle, ProofFilename)
}
