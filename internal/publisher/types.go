// Package publisher builds a container image from a workspace and pushes it
// under every computed tag.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"

	"github.com/alvesdmateus/image-publisher/internal/registry"
)

// LatestTag is always published alongside the commit tag
const LatestTag = "latest"

// DefaultDockerfile is the Dockerfile path relative to the build context
const DefaultDockerfile = "Dockerfile"

// OCI label keys set on every image
const (
	LabelSource   = "org.opencontainers.image.source"
	LabelRevision = "org.opencontainers.image.revision"
	LabelRefName  = "org.opencontainers.image.ref.name"
)

// ErrDigestMismatch is returned by verification when pushed tags resolve to
// different content
var ErrDigestMismatch = errors.New("pushed tags resolve to different digests")

// DockerAPI is the part of the Docker Engine API the publisher uses
type DockerAPI interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
	ImagePush(ctx context.Context, ref string, options image.PushOptions) (io.ReadCloser, error)
}

// Verifier resolves pushed tags at the registry and returns their digests
type Verifier interface {
	Verify(ctx context.Context, tags []string, session *registry.Session) (map[string]string, error)
}

// PublishRequest contains everything needed for one build-and-push
type PublishRequest struct {
	// ContextDir is the build context, the workspace root
	ContextDir string
	// Dockerfile is relative to ContextDir; defaults to DefaultDockerfile
	Dockerfile string
	// Registry is the registry host the tags are qualified with
	Registry string
	// Repository is the lowercase image repository path
	Repository string
	// SHA is the full commit identifier, used as the second tag
	SHA string
	// RefTag is the derived ref fragment, recorded as a label
	RefTag string
	// SourceURL is recorded as the image source label
	SourceURL string
	// Labels are extra image labels
	Labels map[string]string
	// Push uploads the tags; false only builds
	Push bool
	// Session authenticates the pushes
	Session *registry.Session
}

// PushedTag records one successful tag upload
type PushedTag struct {
	Tag    string `json:"tag" yaml:"tag"`
	Digest string `json:"digest" yaml:"digest"`
	Size   int64  `json:"size" yaml:"size"`
}

// PublishResult contains the output of a publish. On a push failure it still
// lists the tags pushed before the failure.
type PublishResult struct {
	Tags          []string      `json:"tags" yaml:"tags"`
	ImageID       string        `json:"image_id" yaml:"image_id"`
	Pushed        []PushedTag   `json:"pushed" yaml:"pushed"`
	BuildLog      string        `json:"-" yaml:"-"`
	BuildDuration time.Duration `json:"build_duration" yaml:"build_duration"`
	Verified      bool          `json:"verified" yaml:"verified"`
}

// PushedTags returns the references that reached the registry
func (r *PublishResult) PushedTags() []string {
	out := make([]string, 0, len(r.Pushed))
	for _, p := range r.Pushed {
		out = append(out, p.Tag)
	}
	return out
}

// ErrInvalidReference is returned when a computed tag is not a valid image
// reference
type ErrInvalidReference struct {
	Reference string
	Err       error
}

func (e ErrInvalidReference) Error() string {
	return fmt.Sprintf("invalid image reference %q: %v", e.Reference, e.Err)
}

func (e ErrInvalidReference) Unwrap() error {
	return e.Err
}

// ErrBuildFailed is returned when the image build fails
type ErrBuildFailed struct {
	Err error
}

func (e ErrBuildFailed) Error() string {
	return fmt.Sprintf("image build failed: %v", e.Err)
}

func (e ErrBuildFailed) Unwrap() error {
	return e.Err
}

// ErrPushFailed is returned when image push fails
type ErrPushFailed struct {
	ImageTag string
	Err      error
}

func (e ErrPushFailed) Error() string {
	return fmt.Sprintf("failed to push image %s: %v", e.ImageTag, e.Err)
}

func (e ErrPushFailed) Unwrap() error {
	return e.Err
}
