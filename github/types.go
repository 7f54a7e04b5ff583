// Package github is a GitHub REST API client: the commit history provider
// for attribution and a gist-backed proof channel for verification.
package github

import (
	"log/slog"
	"net/http"
	"time"
)

const (
	DefaultAPIEndpoint = "https://api.github.com"
	DefaultTimeout     = 30 * time.Second

	// MaxRetries bounds retries of throttled or transiently failing requests.
	MaxRetries = 3

	// RetryDelay is the initial backoff interval.
	RetryDelay = time.Second

	MaxPageSize = 100

	// MaxPages stops pagination that never ends.
	MaxPages = 1000
)

// Client talks to the GitHub REST API.
type Client struct {
	Token      string
	BaseURL    string
	HTTPClient *http.Client
	MaxRetries uint64
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// Repository is the subset of repository metadata attribution needs.
type Repository struct {
	FullName    string      `json:"full_name"`
	Name        string      `json:"name"`
	Owner       User        `json:"owner"`
	Fork        bool        `json:"fork"`
	Parent      *Repository `json:"parent,omitempty"`
	Description string      `json:"description"`
	CreatedAt   time.Time   `json:"created_at"`
	PushedAt    time.Time   `json:"pushed_at"`
}

// User is a GitHub account.
type User struct {
	Login string `json:"login"`
}

// Commit is one entry of a repository's commit list. Author is nil when
// GitHub cannot match the commit email to an account.
type Commit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Author struct {
			Name  string    `json:"name"`
			Email string    `json:"email"`
			Date  time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
	Author *User `json:"author"`
}

// Login returns the matched account login, or "".
func (c *Commit) Login() string {
	if c.Author == nil {
		return ""
	}
	return c.Author.Login
}

// Gist is a GitHub gist.
type Gist struct {
	ID          string              `json:"id"`
	HTMLURL     string              `json:"html_url"`
	Description string              `json:"description"`
	Public      bool                `json:"public"`
	Files       map[string]GistFile `json:"files"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// GistFile is one file of a gist. Content is set only on create.
type GistFile struct {
	Filename string `json:"filename,omitempty"`
	RawURL   string `json:"raw_url,omitempty"`
	Content  string `json:"content,omitempty"`
}
