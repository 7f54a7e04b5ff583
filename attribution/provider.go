package attribution

import (
	"context"
	"time"

	"github.com/bitfsorg/contribsplit/github"
)

// RepositoryInfo is the repository metadata attribution needs.
type RepositoryInfo struct {
	Owner       string
	Name        string
	IsFork      bool
	ParentOwner string // set only for forks
	ParentName  string
	Description string
	CreatedAt   time.Time
	PushedAt    time.Time
}

// CommitProvider is a commit history source. Implementations report a
// missing repository with an error wrapping revshare.ErrProviderNotFound.
type CommitProvider interface {
	GetRepository(ctx context.Context, owner, repo string) (*RepositoryInfo, error)
	ListCommits(ctx context.Context, owner, repo string) ([]CommitRecord, error)
}

// GitHubProvider adapts a GitHub client to CommitProvider.
type GitHubProvider struct {
	Client *github.Client
}

var _ CommitProvider = GitHubProvider{}

// GetRepository returns the repository metadata from the GitHub API.
func (p GitHubProvider) GetRepository(ctx context.Context, owner, repo string) (*RepositoryInfo, error) {
	r, err := p.Client.GetRepository(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	info := &RepositoryInfo{
		Owner:       r.Owner.Login,
		Name:        r.Name,
		IsFork:      r.Fork,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
		PushedAt:    r.PushedAt,
	}
	if r.Fork && r.Parent != nil {
		info.ParentOwner = r.Parent.Owner.Login
		info.ParentName = r.Parent.Name
	}
	return info, nil
}

// ListCommits returns every commit on the default branch, newest first.
func (p GitHubProvider) ListCommits(ctx context.Context, owner, repo string) ([]CommitRecord, error) {
	commits, err := p.Client.ListCommits(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	out := make([]CommitRecord, len(commits))
	for i := range commits {
		c := &commits[i]
		out[i] = CommitRecord{
			SHA:          c.SHA,
			AuthorHandle: c.Login(),
			AuthorName:   c.Commit.Author.Name,
			AuthorEmail:  c.Commit.Author.Email,
			Timestamp:    c.Commit.Author.Date,
		}
	}
	return out, nil
}
