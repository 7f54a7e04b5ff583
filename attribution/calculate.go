// Package attribution turns a repository's commit history into integer
// percentage shares per contributor.
package attribution

import (
	"math"
	"sort"
	"strings"
	"time"
)

// CommitRecord is one commit as seen by attribution. AuthorHandle is empty
// when the provider could not match the commit to an account.
type CommitRecord struct {
	SHA          string
	AuthorHandle string
	AuthorName   string
	AuthorEmail  string
	Timestamp    time.Time
}

// ContributorShare is the aggregate for one attribution key.
type ContributorShare struct {
	Key             string    `json:"key"`
	Handle          string    `json:"handle,omitempty"`
	Name            string    `json:"name"`
	Email           string    `json:"email,omitempty"`
	Commits         int       `json:"commits"`
	UpstreamCommits int       `json:"upstream_commits"`
	ForkCommits     int       `json:"fork_commits"`
	LastActive      time.Time `json:"last_active"`
	Share           int       `json:"share"`
}

// Analysis is the attribution result for a repository.
type Analysis struct {
	Owner        string             `json:"owner"`
	Repo         string             `json:"repo"`
	IsFork       bool               `json:"is_fork"`
	Parent       string             `json:"parent,omitempty"`
	TotalCommits int                `json:"total_commits"`
	Discarded    int                `json:"discarded"`
	Contributors []ContributorShare `json:"contributors"`

	// RoundingResidual is 100 minus the sum of the independently rounded
	// shares. It has already been allocated back by largest remainder, so
	// Contributors always sum to exactly 100; a non-zero value records that
	// an adjustment happened.
	RoundingResidual int       `json:"rounding_residual"`
	ComputedAt       time.Time `json:"computed_at"`
}

// ShareSum returns the sum of contributor shares.
func (a *Analysis) ShareSum() int {
	var sum int
	for _, c := range a.Contributors {
		sum += c.Share
	}
	return sum
}

// Calculate aggregates upstream and fork-local commits by attribution key
// and assigns integer shares. Which slice a record arrives in decides
// whether it counts as upstream or fork-local. The result depends only on the input records.
//
// A record without an author name cannot be attributed and is discarded.
// The key is the author handle when present, otherwise the author name, so
// unmatched commits by the same named author merge.
func Calculate(upstream, fork []CommitRecord) Analysis {
	byKey := make(map[string]*ContributorShare)
	var res Analysis

	add := func(r CommitRecord, isUpstream bool) {
		name := strings.TrimSpace(r.AuthorName)
		if name == "" {
			res.Discarded++
			return
		}
		handle := strings.TrimSpace(r.AuthorHandle)
		key := handle
		if key == "" {
			key = name
		}

		cs, ok := byKey[key]
		if !ok {
			cs = &ContributorShare{Key: key, Handle: handle, Name: name, Email: r.AuthorEmail}
			byKey[key] = cs
		}
		cs.Commits++
		if isUpstream {
			cs.UpstreamCommits++
		} else {
			cs.ForkCommits++
		}
		if r.Timestamp.After(cs.LastActive) {
			cs.LastActive = r.Timestamp.UTC()
		}
		if cs.Email == "" {
			cs.Email = r.AuthorEmail
		}
		res.TotalCommits++
	}
	for _, r := range upstream {
		add(r, true)
	}
	for _, r := range fork {
		add(r, false)
	}

	res.Contributors = make([]ContributorShare, 0, len(byKey))
	for _, cs := range byKey {
		res.Contributors = append(res.Contributors, *cs)
	}
	sort.Slice(res.Contributors, func(i, j int) bool {
		a, b := res.Contributors[i], res.Contributors[j]
		if a.Commits != b.Commits {
			return a.Commits > b.Commits
		}
		return a.Key < b.Key
	})

	res.RoundingResidual = allocateShares(res.Contributors, res.TotalCommits)
	return res
}

// allocateShares rounds each share independently, then hands the signed
// difference from 100 back one point at a time by largest remainder. Ties
// favour the higher-ranked contributor. It returns that difference.
func allocateShares(cs []ContributorShare, total int) int {
	if len(cs) == 0 || total == 0 {
		return 0
	}

	// remainder[i] is (exact - rounded) scaled by total, kept integral.
	remainder := make([]int, len(cs))
	sum := 0
	for i := range cs {
		cs[i].Share = int(math.Round(float64(cs[i].Commits) * 100 / float64(total)))
		remainder[i] = cs[i].Commits*100 - cs[i].Share*total
		sum += cs[i].Share
	}
	residual := 100 - sum
	if residual == 0 {
		return 0
	}

	order := make([]int, len(cs))
	for i := range order {
		order[i] = i
	}
	if residual > 0 {
		sort.SliceStable(order, func(a, b int) bool { return remainder[order[a]] > remainder[order[b]] })
		for k := 0; k < residual; k++ {
			cs[order[k%len(order)]].Share++
		}
	} else {
		// Take from the most over-rounded; ties hit the lower-ranked first.
		sort.SliceStable(order, func(a, b int) bool {
			ra, rb := remainder[order[a]], remainder[order[b]]
			if ra != rb {
				return ra < rb
			}
			return order[a] > order[b]
		})
		for k := 0; k < -residual; k++ {
			cs[order[k%len(order)]].Share--
		}
	}
	return residual
}
