// Package registry authenticates pipeline runs against a container registry.
package registry

import (
	"context"
	"fmt"
	"strings"
)

// Credentials identify a principal at a registry host
type Credentials struct {
	Host     string // e.g. ghcr.io
	Username string // principal identifier, usually the triggering actor
	Password string // credential, usually the runtime-issued token
}

// Session is an authenticated registry session used by subsequent pushes
type Session struct {
	Host     string
	Username string
	// EncodedAuth is the base64url X-Registry-Auth value for the Docker API
	EncodedAuth string
	// IdentityToken is set when the registry exchanged the credential for one
	IdentityToken string
	// Password is kept for clients that talk to the registry directly
	Password string
}

// Authenticator establishes a registry session for push operations
type Authenticator interface {
	// Authenticate performs one login exchange. Failure is fatal to the run.
	Authenticate(ctx context.Context, creds Credentials) (*Session, error)
}

// ErrAuthenticationFailed is returned when registry authentication fails
type ErrAuthenticationFailed struct {
	Registry string
	Err      error
}

func (e ErrAuthenticationFailed) Error() string {
	return fmt.Sprintf("authentication failed for registry %s: %v", e.Registry, e.Err)
}

func (e ErrAuthenticationFailed) Unwrap() error {
	return e.Err
}

// NormalizeHost strips a scheme and trailing slash from a registry address
func NormalizeHost(host string) string {
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimSuffix(host, "/")
}
