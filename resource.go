package eventwatch

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ownerPattern and repoPattern follow the characters GitHub allows in
// account and repository names.
var (
	ownerPattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]{0,38})$`)
	repoPattern  = regexp.MustCompile(`^[A-Za-z0-9._-]{1,100}$`)
)

// Resource identifies the repository whose events feed is polled.
//
// Resource is immutable after creation via [NewResource] or [ParseResource].
type Resource struct {
	owner string
	repo  string
}

// NewResource creates a [Resource] for owner/repo.
//
// Returns an error if either part is empty or contains characters that
// cannot appear in a repository coordinate.
func NewResource(owner, repo string) (Resource, error) {
	owner = strings.TrimSpace(owner)
	repo = strings.TrimSpace(repo)

	if owner == "" {
		return Resource{}, fmt.Errorf("owner cannot be empty")
	}
	if repo == "" {
		return Resource{}, fmt.Errorf("repo cannot be empty")
	}
	if !ownerPattern.MatchString(owner) {
		return Resource{}, fmt.Errorf("invalid owner %q", owner)
	}
	if !repoPattern.MatchString(repo) || repo == "." || repo == ".." {
		return Resource{}, fmt.Errorf("invalid repo %q", repo)
	}

	return Resource{owner: owner, repo: repo}, nil
}

// ParseResource parses an "owner/repo" string.
func ParseResource(s string) (Resource, error) {
	owner, repo, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Resource{}, fmt.Errorf("resource %q must be in owner/repo form", s)
	}
	return NewResource(owner, repo)
}

// Owner returns the repository owner.
func (r Resource) Owner() string {
	return r.owner
}

// Repo returns the repository name.
func (r Resource) Repo() string {
	return r.repo
}

// String returns "owner/repo".
func (r Resource) String() string {
	return r.owner + "/" + r.repo
}

// IsZero reports whether r was never initialized.
func (r Resource) IsZero() bool {
	return r.owner == "" && r.repo == ""
}

// eventsURL builds {base}/repos/{owner}/{repo}/events.
func (r Resource) eventsURL(base string) string {
	return strings.TrimRight(base, "/") + "/repos/" + url.PathEscape(r.owner) + "/" + url.PathEscape(r.repo) + "/events"
}
