package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"github.com/cenkalti/backoff/v4"
)

// NewClient creates a client authenticating with token, which may be empty
// for anonymous access.
func NewClient(token string) *Client {
	return &Client{
		Token:      token,
		BaseURL:    DefaultAPIEndpoint,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		MaxRetries: MaxRetries,
		RetryDelay: RetryDelay,
	}
}

// WithBaseURL returns a copy of c using baseURL (tests, GitHub Enterprise).
func (c *Client) WithBaseURL(baseURL string) *Client {
	cp := *c
	cp.BaseURL = baseURL
	return &cp
}

// WithHTTPClient returns a copy of c using httpClient.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	cp := *c
	cp.HTTPClient = httpClient
	return &cp
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c *Client) buildURL(path string, params url.Values) string {
	u := c.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	if c.RetryDelay > 0 {
		bo.InitialInterval = c.RetryDelay
	}
	return backoff.WithContext(backoff.WithMaxRetries(bo, c.MaxRetries), ctx)
}

func rateLimited(resp *http.Response) bool {
	return resp.StatusCode == http.StatusTooManyRequests ||
		(resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0")
}

// doRequest performs an authenticated API call. Throttling, transport
// failures and 5xx answers are retried with exponential backoff; every
// other failure is returned at once.
func (c *Client) doRequest(ctx context.Context, method, urlStr string, body any) ([]byte, http.Header, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, nil, fmt.Errorf("github: marshal request body: %w", err)
		}
	}

	var (
		respBody []byte
		headers  http.Header
		attempt  int
	)
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, method, urlStr, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("github: create request: %w", err))
		}
		if c.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.Token)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %s %s: %w", ErrTransport, method, urlStr, err)
		}
		const maxResponseSize = 50 << 20
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		_ = resp.Body.Close()
		if err != nil {
			return fmt.Errorf("%w: read response: %w", ErrTransport, err)
		}

		switch {
		case rateLimited(resp):
			c.logger().Warn("github_rate_limited", "url", urlStr, "attempt", attempt,
				"reset", resp.Header.Get("X-RateLimit-Reset"))
			return fmt.Errorf("%w: %s", ErrRateLimited, urlStr)
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrNotFound, urlStr))
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(fmt.Errorf("%w: HTTP %d", ErrUnauthorized, resp.StatusCode))
		case resp.StatusCode >= 500:
			return fmt.Errorf("%w: HTTP %d from %s", ErrTransport, resp.StatusCode, urlStr)
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return backoff.Permanent(fmt.Errorf("%w: HTTP %d: %s", ErrUnexpectedStatus, resp.StatusCode, truncate(data, 512)))
		}
		respBody, headers = data, resp.Header
		return nil
	}

	if err := backoff.Retry(op, c.newBackOff(ctx)); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, fmt.Errorf("%w: %w", ErrTransport, err)
		}
		return nil, nil, err
	}
	return respBody, headers, nil
}

func (c *Client) getJSON(ctx context.Context, urlStr string, out any) (http.Header, error) {
	body, headers, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	if err := jsonUnmarshal(body, out); err != nil {
		return nil, err
	}
	return headers, nil
}

func jsonUnmarshal(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

var linkNextPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// nextPage returns the rel="next" URL from a Link header.
func nextPage(headers http.Header) (string, bool) {
	m := linkNextPattern.FindStringSubmatch(headers.Get("Link"))
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// GetRepository returns metadata for owner/repo, including the parent of a fork.
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (*Repository, error) {
	var r Repository
	path := "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo)
	if _, err := c.getJSON(ctx, c.buildURL(path, nil), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListCommits returns the default branch history of owner/repo, newest
// first, following Link pagination.
func (c *Client) ListCommits(ctx context.Context, owner, repo string) ([]Commit, error) {
	path := "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo) + "/commits"
	next := c.buildURL(path, url.Values{"per_page": {strconv.Itoa(MaxPageSize)}})

	var all []Commit
	for page := 0; next != ""; page++ {
		if page >= MaxPages {
			c.logger().Warn("github_pagination_limit", "owner", owner, "repo", repo, "pages", page)
			break
		}
		var commits []Commit
		headers, err := c.getJSON(ctx, next, &commits)
		if err != nil {
			return nil, err
		}
		all = append(all, commits...)
		next, _ = nextPage(headers)
	}
	return all, nil
}

// AuthenticatedUser returns the login owning the client's token.
func (c *Client) AuthenticatedUser(ctx context.Context) (string, error) {
	var u User
	if _, err := c.getJSON(ctx, c.buildURL("/user", nil), &u); err != nil {
		return "", err
	}
	return u.Login, nil
}
