package pipeline

import (
	"errors"
	"time"
)

// Config controls how runs are executed
type Config struct {
	// Branch is the designated branch; pushes elsewhere perform no steps
	Branch string
	// Registry is the registry host images are pushed to
	Registry string
	// RegistryUsername overrides the event actor as principal
	RegistryUsername string
	// RegistryPassword overrides the event token as credential
	RegistryPassword string
	// GitToken overrides the event token for fetching
	GitToken string
	// Dockerfile is relative to the workspace root
	Dockerfile string
	// Labels are added to every image
	Labels map[string]string
	// WorkspaceRoot holds per-run workspaces; empty means the OS temp dir
	WorkspaceRoot string
	// KeepWorkspace leaves the workspace on disk after the run
	KeepWorkspace bool
	// Timeout bounds a whole run; zero means no timeout
	Timeout time.Duration
	// DisablePush builds without uploading
	DisablePush bool
}

// Validate checks the settings a run cannot do without
func (c Config) Validate() error {
	if c.Branch == "" {
		return errors.New("pipeline branch is required")
	}
	if c.Registry == "" {
		return errors.New("registry host is required")
	}
	return nil
}
