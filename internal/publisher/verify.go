package publisher

import (
	"context"
	"fmt"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"

	"github.com/alvesdmateus/image-publisher/internal/registry"
)

// RemoteVerifier resolves tags directly against the registry API
type RemoteVerifier struct {
	insecure bool
}

// NewRemoteVerifier creates a verifier. insecure allows plain-HTTP registries.
func NewRemoteVerifier(insecure bool) *RemoteVerifier {
	return &RemoteVerifier{insecure: insecure}
}

// Verify returns the manifest digest of every tag
func (v *RemoteVerifier) Verify(ctx context.Context, tags []string, session *registry.Session) (map[string]string, error) {
	var nameOpts []name.Option
	if v.insecure {
		nameOpts = append(nameOpts, name.Insecure)
	}

	auth := authn.Anonymous
	if session != nil {
		auth = authn.FromConfig(authn.AuthConfig{
			Username:      session.Username,
			Password:      session.Password,
			IdentityToken: session.IdentityToken,
		})
	}

	digests := make(map[string]string, len(tags))
	for _, tag := range tags {
		ref, err := name.ParseReference(tag, nameOpts...)
		if err != nil {
			return nil, ErrInvalidReference{Reference: tag, Err: err}
		}

		desc, err := remote.Head(ref, remote.WithAuth(auth), remote.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", tag, err)
		}
		digests[tag] = desc.Digest.String()
	}
	return digests, nil
}
