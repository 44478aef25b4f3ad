package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/alvesdmateus/image-publisher/internal/naming"
	"github.com/alvesdmateus/image-publisher/internal/observability"
	"github.com/alvesdmateus/image-publisher/internal/publisher"
	"github.com/alvesdmateus/image-publisher/internal/registry"
	"github.com/alvesdmateus/image-publisher/internal/runenv"
	"github.com/alvesdmateus/image-publisher/internal/source"
)

// normalize derives the image repository path and tag fragment into the run
// environment
func (p *Pipeline) normalize(ctx context.Context, run *Run) error {
	run.Names = naming.Normalize(run.Event.Repository, run.Event.Ref)

	if err := run.Env.Set(runenv.KeyImageRepository, run.Names.Repository); err != nil {
		return err
	}
	if err := run.Env.Set(runenv.KeyImageTag, run.Names.Tag); err != nil {
		return err
	}

	if !run.Names.HasTag() {
		// Passed through uncorrected; the tag set does not depend on it.
		log.Warn().
			Str("runID", run.ID).
			Str("ref", run.Event.Ref).
			Msg("Ref has fewer than three segments, derived tag is empty")
	}

	log.Info().
		Str("runID", run.ID).
		Str("repository", run.Names.Repository).
		Str("tag", run.Names.Tag).
		Msg("Derived image names")
	return nil
}

func (p *Pipeline) fetch(ctx context.Context, run *Run) error {
	token := p.config.GitToken
	if token == "" {
		token = run.Event.Token
	}

	result, err := p.fetcher.Fetch(ctx, &source.FetchRequest{
		CloneURL: run.Event.CloneURL,
		Ref:      run.Event.Ref,
		SHA:      run.Event.SHA,
		Token:    token,
		Dir:      run.Workspace,
	})
	if err != nil {
		return err
	}
	run.Source = result
	return nil
}

func (p *Pipeline) authenticate(ctx context.Context, run *Run) error {
	creds := registry.Credentials{
		Host:     p.config.Registry,
		Username: p.config.RegistryUsername,
		Password: p.config.RegistryPassword,
	}
	if creds.Username == "" {
		creds.Username = run.Event.Actor
	}
	if creds.Password == "" {
		creds.Password = run.Event.Token
	}

	session, err := p.auth.Authenticate(ctx, creds)
	if err != nil {
		return err
	}
	run.Session = session
	return nil
}

func (p *Pipeline) publish(ctx context.Context, run *Run) error {
	repository, err := run.Env.MustGet(runenv.KeyImageRepository)
	if err != nil {
		return err
	}
	refTag, err := run.Env.MustGet(runenv.KeyImageTag)
	if err != nil {
		return err
	}

	contextDir := run.Workspace
	if run.Source != nil && run.Source.Dir != "" {
		contextDir = run.Source.Dir
	}

	result, err := p.publisher.Publish(ctx, &publisher.PublishRequest{
		ContextDir: contextDir,
		Dockerfile: p.config.Dockerfile,
		Registry:   p.config.Registry,
		Repository: repository,
		SHA:        run.Event.SHA,
		RefTag:     refTag,
		SourceURL:  run.Event.CloneURL,
		Labels:     p.config.Labels,
		Push:       !p.config.DisablePush,
		Session:    run.Session,
	})
	run.Publish = result
	if result != nil {
		for _, pushed := range result.Pushed {
			p.tracer.AddEvent(ctx, "image.pushed",
				observability.AttrImageTag.String(pushed.Tag),
				observability.AttrImageDigest.String(pushed.Digest),
			)
		}
	}
	if err != nil {
		return err
	}
	if result == nil {
		return fmt.Errorf("publisher returned no result")
	}
	return nil
}
