package source

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/rs/zerolog/log"
)

// GitFetcher implements Fetcher with go-git
type GitFetcher struct {
	depth    int
	progress io.Writer
}

// GitOption configures a GitFetcher
type GitOption func(*GitFetcher)

// WithDepth limits clone history. Zero clones the full branch history, which
// guarantees the pushed commit is present even if the branch moved on.
func WithDepth(depth int) GitOption {
	return func(f *GitFetcher) {
		f.depth = depth
	}
}

// WithProgress streams clone progress to w
func WithProgress(w io.Writer) GitOption {
	return func(f *GitFetcher) {
		f.progress = w
	}
}

// NewGitFetcher creates a go-git based fetcher
func NewGitFetcher(opts ...GitOption) *GitFetcher {
	f := &GitFetcher{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch clones the repository and checks out the requested commit
func (f *GitFetcher) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if req.CloneURL == "" {
		return nil, ErrFetchFailed{URL: req.CloneURL, Err: fmt.Errorf("clone URL is empty")}
	}

	start := time.Now()
	log.Info().
		Str("url", req.CloneURL).
		Str("ref", req.Ref).
		Str("sha", req.SHA).
		Str("dir", req.Dir).
		Msg("Fetching source")

	cloneOpts := &git.CloneOptions{
		URL:      req.CloneURL,
		Auth:     f.auth(req.Token),
		Depth:    f.depth,
		Progress: f.progress,
	}
	if strings.HasPrefix(req.Ref, "refs/heads/") {
		cloneOpts.ReferenceName = plumbing.ReferenceName(req.Ref)
		cloneOpts.SingleBranch = true
	}

	repo, err := git.PlainCloneContext(ctx, req.Dir, false, cloneOpts)
	if err != nil {
		return nil, ErrFetchFailed{URL: req.CloneURL, Err: err}
	}

	head, err := repo.Head()
	if err != nil {
		return nil, ErrFetchFailed{URL: req.CloneURL, Err: fmt.Errorf("failed to resolve HEAD: %w", err)}
	}

	commit := head.Hash().String()
	if req.SHA != "" && req.SHA != commit {
		wt, err := repo.Worktree()
		if err != nil {
			return nil, ErrFetchFailed{URL: req.CloneURL, Err: fmt.Errorf("failed to open worktree: %w", err)}
		}

		hash := plumbing.NewHash(req.SHA)
		if err := wt.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
			return nil, ErrFetchFailed{URL: req.CloneURL, Err: fmt.Errorf("failed to check out %s: %w", req.SHA, err)}
		}
		commit = hash.String()
	}

	log.Info().
		Str("commit", commit).
		Dur("duration", time.Since(start)).
		Msg("Source fetched")

	return &FetchResult{Dir: req.Dir, Commit: commit}, nil
}

func (f *GitFetcher) auth(token string) transport.AuthMethod {
	if token == "" {
		return nil
	}
	return &githttp.BasicAuth{
		Username: TokenUsername,
		Password: token,
	}
}
