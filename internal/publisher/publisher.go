package publisher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/rs/zerolog/log"
)

// Publisher builds an image and pushes it under every tag
type Publisher interface {
	Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error)
}

// DockerPublisher implements Publisher with the Docker Engine API
type DockerPublisher struct {
	api      DockerAPI
	verifier Verifier
}

// Option configures a DockerPublisher
type Option func(*DockerPublisher)

// WithVerifier enables post-push verification of the pushed tags
func WithVerifier(v Verifier) Option {
	return func(p *DockerPublisher) {
		p.verifier = v
	}
}

// NewDockerPublisher creates a publisher over an existing Docker API client
func NewDockerPublisher(api DockerAPI, opts ...Option) *DockerPublisher {
	p := &DockerPublisher{api: api}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewDockerPublisherFromEnv creates a publisher with a Docker client
// configured from the environment. The caller closes the returned client.
func NewDockerPublisherFromEnv(opts ...Option) (*DockerPublisher, *client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return NewDockerPublisher(cli, opts...), cli, nil
}

// Publish builds the workspace once with every tag applied, then pushes the
// tags one by one in order. Pushes are independent: a failure stops the
// remaining pushes but never rolls back tags already pushed.
func (p *DockerPublisher) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	tags, err := Tags(req.Registry, req.Repository, req.SHA)
	if err != nil {
		return nil, err
	}

	result := &PublishResult{Tags: tags}

	dockerfile := req.Dockerfile
	if dockerfile == "" {
		dockerfile = DefaultDockerfile
	}

	log.Info().
		Strs("tags", tags).
		Str("context", req.ContextDir).
		Str("dockerfile", dockerfile).
		Msg("Building container image")

	start := time.Now()
	imageID, buildLog, err := p.build(ctx, req, dockerfile, tags)
	result.BuildLog = buildLog
	result.BuildDuration = time.Since(start)
	if err != nil {
		return result, ErrBuildFailed{Err: err}
	}
	result.ImageID = imageID

	log.Info().
		Str("imageID", imageID).
		Dur("duration", result.BuildDuration).
		Msg("Container image built successfully")

	if !req.Push {
		log.Warn().Msg("Push disabled, skipping upload")
		return result, nil
	}

	if req.Session == nil {
		return result, ErrPushFailed{ImageTag: tags[0], Err: fmt.Errorf("no registry session")}
	}

	for _, tag := range tags {
		pushed, err := p.push(ctx, tag, req.Session.EncodedAuth)
		if err != nil {
			log.Error().
				Err(err).
				Str("imageTag", tag).
				Strs("alreadyPushed", result.PushedTags()).
				Msg("Image push failed")
			return result, ErrPushFailed{ImageTag: tag, Err: err}
		}
		result.Pushed = append(result.Pushed, *pushed)
	}

	if p.verifier != nil {
		if err := p.verify(ctx, result, req); err != nil {
			return result, err
		}
	}

	return result, nil
}

func (p *DockerPublisher) build(ctx context.Context, req *PublishRequest, dockerfile string, tags []string) (string, string, error) {
	buildContext, err := createBuildContext(req.ContextDir, dockerfile)
	if err != nil {
		return "", "", err
	}
	defer buildContext.Close()

	resp, err := p.api.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:        tags,
		Dockerfile:  dockerfile,
		Remove:      true,
		ForceRemove: true,
		PullParent:  true,
		Labels:      buildLabels(req),
	})
	if err != nil {
		return "", "", fmt.Errorf("docker build failed: %w", err)
	}
	defer resp.Body.Close()

	var buildLog strings.Builder
	imageID, err := streamBuildOutput(ctx, resp.Body, &buildLog)
	if err != nil {
		return "", buildLog.String(), err
	}
	return imageID, buildLog.String(), nil
}

func (p *DockerPublisher) push(ctx context.Context, tag, encodedAuth string) (*PushedTag, error) {
	log.Info().Str("imageTag", tag).Msg("Pushing image to registry")

	reader, err := p.api.ImagePush(ctx, tag, image.PushOptions{
		RegistryAuth: encodedAuth,
	})
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	aux, err := streamPushOutput(ctx, reader)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("imageTag", tag).
		Str("digest", aux.Digest).
		Msg("Image pushed successfully")

	return &PushedTag{Tag: tag, Digest: aux.Digest, Size: aux.Size}, nil
}

func (p *DockerPublisher) verify(ctx context.Context, result *PublishResult, req *PublishRequest) error {
	digests, err := p.verifier.Verify(ctx, result.PushedTags(), req.Session)
	if err != nil {
		return fmt.Errorf("failed to verify pushed tags: %w", err)
	}

	var first string
	for _, tag := range result.PushedTags() {
		d, ok := digests[tag]
		if !ok {
			return fmt.Errorf("%w: %s not found at registry", ErrDigestMismatch, tag)
		}
		if first == "" {
			first = d
			continue
		}
		if d != first {
			return fmt.Errorf("%w: %s is %s, expected %s", ErrDigestMismatch, tag, d, first)
		}
	}

	result.Verified = true
	log.Info().Str("digest", first).Msg("Pushed tags verified at registry")
	return nil
}

func buildLabels(req *PublishRequest) map[string]string {
	labels := make(map[string]string, len(req.Labels)+3)
	for k, v := range req.Labels {
		labels[k] = v
	}
	if req.SourceURL != "" {
		labels[LabelSource] = req.SourceURL
	}
	labels[LabelRevision] = req.SHA
	if req.RefTag != "" {
		labels[LabelRefName] = req.RefTag
	}
	return labels
}
