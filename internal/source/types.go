// Package source fetches the triggering commit into a run workspace
package source

import (
	"context"
	"fmt"
)

// TokenUsername is the basic-auth user paired with an access token
const TokenUsername = "x-access-token"

// FetchRequest describes what to fetch and where
type FetchRequest struct {
	// CloneURL is the remote to clone from
	CloneURL string
	// Ref is the pushed ref; branch refs limit the clone to that branch
	Ref string
	// SHA is the commit checked out in the workspace
	SHA string
	// Token authenticates the clone when set
	Token string
	// Dir is the workspace directory; it must be empty or absent
	Dir string
}

// FetchResult describes the fetched workspace
type FetchResult struct {
	Dir    string
	Commit string
}

// Fetcher retrieves repository content into the local workspace
type Fetcher interface {
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}

// ErrFetchFailed is returned when the source cannot be retrieved
type ErrFetchFailed struct {
	URL string
	Err error
}

func (e ErrFetchFailed) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Err)
}

func (e ErrFetchFailed) Unwrap() error {
	return e.Err
}
