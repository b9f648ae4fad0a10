package github_handler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	git "github.com/go-git/go-git/v5"
)

// RepositoryContext identifies the repository tool calls default to. It is immutable.
type RepositoryContext struct {
	Owner      string
	Repo       string
	APIBaseURL string
}

// FullName returns owner/repo.
func (r RepositoryContext) FullName() string {
	return r.Owner + "/" + r.Repo
}

// Validate reports ErrRepositoryUnavailable unless owner and repo are both set.
func (r RepositoryContext) Validate() error {
	if r.Owner == "" || r.Repo == "" {
		return fmt.Errorf("%w: owner=%q repo=%q", ErrRepositoryUnavailable, r.Owner, r.Repo)
	}
	return nil
}

// With returns a copy for an explicit owner and repo. Empty arguments keep the current value.
func (r RepositoryContext) With(owner, repo string) RepositoryContext {
	if owner != "" {
		r.Owner = owner
	}
	if repo != "" {
		r.Repo = repo
	}
	return r
}

// RepoPath builds /repos/{owner}/{repo}[/elems...].
func (r RepositoryContext) RepoPath(elems ...string) string {
	p := "/repos/" + url.PathEscape(r.Owner) + "/" + url.PathEscape(r.Repo)
	for _, e := range elems {
		if e = strings.Trim(e, "/"); e != "" {
			p += "/" + e
		}
	}
	return p
}

// RepositoryDetector discovers owner and repo when configuration does not name them.
type RepositoryDetector interface {
	DetectRepository(ctx context.Context) (owner, repo string, err error)
}

// ResolveRepository builds the RepositoryContext once at startup. Explicit owner and repo win
// field by field; the detector only fills what is missing.
func ResolveRepository(ctx context.Context, owner, repo, apiBaseURL string, detector RepositoryDetector) (RepositoryContext, error) {
	rc := RepositoryContext{Owner: owner, Repo: repo, APIBaseURL: strings.TrimRight(apiBaseURL, "/")}
	if rc.Owner != "" && rc.Repo != "" {
		return rc, nil
	}
	if detector == nil {
		return RepositoryContext{}, rc.Validate()
	}

	detectedOwner, detectedRepo, err := detector.DetectRepository(ctx)
	if err != nil {
		if errors.Is(err, ErrRepositoryUnavailable) {
			return RepositoryContext{}, err
		}
		return RepositoryContext{}, fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}
	if rc.Owner == "" {
		rc.Owner = detectedOwner
	}
	if rc.Repo == "" {
		rc.Repo = detectedRepo
	}
	if err := rc.Validate(); err != nil {
		return RepositoryContext{}, err
	}
	return rc, nil
}

// GitRemoteDetector reads owner and repo from a remote of the git working copy at Dir.
// Parent directories are searched for the .git directory.
type GitRemoteDetector struct {
	Dir    string
	Remote string
	// Host is the git host that remotes must point at, for example github.com.
	Host string
}

// NewGitRemoteDetector detects from the origin remote of dir for the host serving apiBaseURL.
func NewGitRemoteDetector(dir, apiBaseURL string) *GitRemoteDetector {
	return &GitRemoteDetector{Dir: dir, Remote: git.DefaultRemoteName, Host: HostFromAPIURL(apiBaseURL)}
}

func (d *GitRemoteDetector) DetectRepository(ctx context.Context) (string, string, error) {
	dir := d.Dir
	if dir == "" {
		dir = "."
	}
	remoteName := d.Remote
	if remoteName == "" {
		remoteName = git.DefaultRemoteName
	}

	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", "", fmt.Errorf("%w: %s is not a git working copy: %v", ErrRepositoryUnavailable, dir, err)
	}
	remote, err := repo.Remote(remoteName)
	if err != nil {
		return "", "", fmt.Errorf("%w: remote %q: %v", ErrRepositoryUnavailable, remoteName, err)
	}

	for _, u := range remote.Config().URLs {
		if owner, name, err := ParseRemoteURL(u, d.Host); err == nil {
			return owner, name, nil
		}
	}
	return "", "", fmt.Errorf("%w: remote %q does not point at %s", ErrRepositoryUnavailable, remoteName, d.Host)
}

// HostFromAPIURL returns the git host for a REST base URL: api.github.com serves github.com and an
// Enterprise https://ghe.example.com/api/v3 serves ghe.example.com.
func HostFromAPIURL(apiBaseURL string) string {
	u, err := url.Parse(apiBaseURL)
	if err != nil || u.Host == "" {
		return "github.com"
	}
	host := strings.ToLower(u.Hostname())
	if host == "api.github.com" {
		return "github.com"
	}
	return strings.TrimPrefix(host, "api.")
}

// ParseRemoteURL extracts owner and repo from an https, ssh, git or scp-style remote URL.
// When host is non-empty the remote must point at it.
func ParseRemoteURL(raw, host string) (string, string, error) {
	raw = strings.TrimSpace(raw)

	var remoteHost, path string
	if !strings.Contains(raw, "://") {
		// scp-like: git@github.com:owner/repo.git
		at := strings.Index(raw, "@")
		colon := strings.Index(raw, ":")
		if colon < 0 || colon < at {
			return "", "", fmt.Errorf("unrecognized remote URL %q", raw)
		}
		remoteHost = raw[at+1 : colon]
		path = raw[colon+1:]
	} else {
		u, err := url.Parse(raw)
		if err != nil {
			return "", "", fmt.Errorf("unrecognized remote URL %q: %w", raw, err)
		}
		switch u.Scheme {
		case "https", "http", "ssh", "git":
		default:
			return "", "", fmt.Errorf("unsupported remote scheme %q", u.Scheme)
		}
		remoteHost = u.Hostname()
		path = u.Path
	}

	if host != "" && !strings.EqualFold(remoteHost, host) {
		return "", "", fmt.Errorf("remote %q is not on %s", raw, host)
	}

	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("remote %q does not name owner/repo", raw)
	}
	return parts[0], parts[1], nil
}
