package github_handler

import (
	"context"
	"fmt"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	ghhttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/MyCarrier-DevOps/ghaccess/auth"
)

// CloneRepository clones repositoryURL into dir using a credential from resolver.
// repositoryURL must be https. branch is a bare branch name without "refs/heads/"; empty clones
// the default branch. When gitCloneOptions is nil a shallow single-branch clone is made; a nil
// Auth in caller options is filled in with the resolved credential.
func CloneRepository(ctx context.Context, resolver auth.Resolver, repositoryURL, dir, branch string, gitCloneOptions *git.CloneOptions) (*git.Repository, error) {
	cred, err := resolver.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("error resolving GitHub credential for clone: %w", err)
	}

	if gitCloneOptions == nil {
		gitCloneOptions = &git.CloneOptions{
			SingleBranch: true,
			Depth:        1,
		}
		if branch != "" {
			gitCloneOptions.ReferenceName = plumbing.NewBranchReferenceName(branch)
		}
	}
	if gitCloneOptions.URL == "" {
		gitCloneOptions.URL = repositoryURL
	}
	if gitCloneOptions.Auth == nil {
		gitCloneOptions.Auth = &ghhttp.BasicAuth{
			Username: "x-access-token", // GitHub only checks the password
			Password: cred.Token,
		}
	}

	repo, err := git.PlainCloneContext(ctx, dir, false, gitCloneOptions)
	if err != nil {
		return nil, fmt.Errorf("error cloning repository %s: %w", gitCloneOptions.URL, err)
	}
	return repo, nil
}

// CloneURL returns the https clone URL of repo on the host serving the client's API.
func (c *Client) CloneURL(repo RepositoryContext) string {
	return fmt.Sprintf("https://%s/%s/%s.git", HostFromAPIURL(c.apiBaseURL), repo.Owner, repo.Repo)
}

// Clone clones the current repository into dir.
func (c *Client) Clone(ctx context.Context, dir, branch string) (*git.Repository, error) {
	repo, err := c.CurrentRepository()
	if err != nil {
		return nil, err
	}
	return CloneRepository(ctx, c.resolver, c.CloneURL(repo), dir, branch, nil)
}
