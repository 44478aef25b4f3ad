package registry

import (
	"context"
	"fmt"
	"time"

	dockerregistry "github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/rs/zerolog/log"
)

// LoginAPI is the part of the Docker Engine API used for authentication
type LoginAPI interface {
	RegistryLogin(ctx context.Context, auth dockerregistry.AuthConfig) (dockerregistry.AuthenticateOKBody, error)
}

// DockerClient authenticates against a registry through the Docker daemon
type DockerClient struct {
	api LoginAPI
	now func() time.Time
}

// NewDockerClient creates an authenticator over an existing Docker API client
func NewDockerClient(api LoginAPI) *DockerClient {
	return &DockerClient{
		api: api,
		now: time.Now,
	}
}

// NewDockerClientFromEnv creates an authenticator with a Docker client
// configured from DOCKER_HOST and friends
func NewDockerClientFromEnv() (*DockerClient, *client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return NewDockerClient(cli), cli, nil
}

// Authenticate exchanges the credential for a registry session
func (c *DockerClient) Authenticate(ctx context.Context, creds Credentials) (*Session, error) {
	host := NormalizeHost(creds.Host)

	log.Info().
		Str("registry", host).
		Str("username", creds.Username).
		Msg("Authenticating with container registry")

	if host == "" {
		return nil, ErrAuthenticationFailed{Registry: creds.Host, Err: fmt.Errorf("registry host is empty")}
	}
	if creds.Username == "" || creds.Password == "" {
		return nil, ErrAuthenticationFailed{Registry: host, Err: fmt.Errorf("username and credential are required")}
	}
	if err := checkTokenExpiry(creds.Password, c.now()); err != nil {
		return nil, ErrAuthenticationFailed{Registry: host, Err: err}
	}

	authConfig := dockerregistry.AuthConfig{
		Username:      creds.Username,
		Password:      creds.Password,
		ServerAddress: host,
	}

	resp, err := c.api.RegistryLogin(ctx, authConfig)
	if err != nil {
		return nil, ErrAuthenticationFailed{Registry: host, Err: err}
	}

	session := &Session{
		Host:     host,
		Username: creds.Username,
		Password: creds.Password,
	}

	pushAuth := authConfig
	if resp.IdentityToken != "" {
		session.IdentityToken = resp.IdentityToken
		pushAuth = dockerregistry.AuthConfig{
			IdentityToken: resp.IdentityToken,
			ServerAddress: host,
		}
	}

	encoded, err := dockerregistry.EncodeAuthConfig(pushAuth)
	if err != nil {
		return nil, ErrAuthenticationFailed{Registry: host, Err: fmt.Errorf("failed to encode auth config: %w", err)}
	}
	session.EncodedAuth = encoded

	log.Info().
		Str("registry", host).
		Str("status", resp.Status).
		Msg("Successfully authenticated with container registry")

	return session, nil
}
