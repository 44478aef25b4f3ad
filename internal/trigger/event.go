// Package trigger models the push events that start a pipeline run and the
// branch filter deciding whether a run happens at all.
package trigger

import (
	"errors"
	"fmt"
	"strings"
)

// EventPush is the only event name that can start a run
const EventPush = "push"

// BranchRefPrefix prefixes branch refs
const BranchRefPrefix = "refs/heads/"

// DefaultServerURL is used to build clone URLs when the runtime does not
// provide one
const DefaultServerURL = "https://github.com"

// ZeroSHA is the "after" commit of a push that deleted its ref
const ZeroSHA = "0000000000000000000000000000000000000000"

// ErrIncompleteEvent is returned when a required event field is missing
var ErrIncompleteEvent = errors.New("incomplete push event")

// Event carries the strings a triggering push supplies to a run
type Event struct {
	// Name is the event name, e.g. "push"
	Name string `json:"name" yaml:"name"`
	// Ref is the full ref pushed to, e.g. "refs/heads/main"
	Ref string `json:"ref" yaml:"ref"`
	// Repository is the repository full name (owner/name)
	Repository string `json:"repository" yaml:"repository"`
	// SHA is the pushed commit identifier
	SHA string `json:"sha" yaml:"sha"`
	// Actor is the identity that triggered the push
	Actor string `json:"actor" yaml:"actor"`
	// Token is the ephemeral runtime-issued access token
	Token string `json:"-" yaml:"-"`
	// CloneURL is where the source is fetched from
	CloneURL string `json:"clone_url" yaml:"clone_url"`
	// DeliveryID identifies the webhook delivery, if any
	DeliveryID string `json:"delivery_id,omitempty" yaml:"delivery_id,omitempty"`
}

// Validate checks the fields every run needs. Ref shape is deliberately not
// checked.
func (e *Event) Validate() error {
	var missing []string
	if e.Repository == "" {
		missing = append(missing, "repository")
	}
	if e.SHA == "" {
		missing = append(missing, "sha")
	}
	if e.Ref == "" {
		missing = append(missing, "ref")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncompleteEvent, strings.Join(missing, ", "))
	}
	return nil
}

// IsDeletion reports whether the push removed the ref
func (e *Event) IsDeletion() bool {
	return e.SHA == ZeroSHA
}

// ShortSHA returns the first 7 characters of the commit identifier
func (e *Event) ShortSHA() string {
	if len(e.SHA) > 7 {
		return e.SHA[:7]
	}
	return e.SHA
}

// CloneURLFor builds the HTTPS clone URL of a repository on a server
func CloneURLFor(serverURL, repository string) string {
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	return strings.TrimSuffix(serverURL, "/") + "/" + repository + ".git"
}
