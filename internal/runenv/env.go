// Package runenv holds the write-once values a single pipeline run derives
// and later steps consume.
package runenv

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Keys written by the normalize step
const (
	KeyImageRepository = "IMAGE_REPOSITORY"
	KeyImageTag        = "IMAGE_TAG"
)

// ErrAlreadySet is returned when a key is written twice
var ErrAlreadySet = errors.New("run environment value already set")

// ErrNotSet is returned when a required key was never written
var ErrNotSet = errors.New("run environment value not set")

// Env is the environment of one run. Each run owns its Env; nothing is shared
// between concurrent runs.
type Env struct {
	mu     sync.RWMutex
	values map[string]string
}

// New creates an empty run environment
func New() *Env {
	return &Env{values: make(map[string]string)}
}

// Set writes key once. An empty value still counts as written.
func (e *Env) Set(key, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.values[key]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadySet, key)
	}
	e.values[key] = value
	return nil
}

// Get returns the value for key and whether it was written
func (e *Env) Get(key string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	v, ok := e.values[key]
	return v, ok
}

// MustGet returns the value for key or ErrNotSet
func (e *Env) MustGet(key string) (string, error) {
	v, ok := e.Get(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotSet, key)
	}
	return v, nil
}

// Environ returns the values as sorted KEY=value pairs
func (e *Env) Environ() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]string, 0, len(e.values))
	for k, v := range e.values {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// Map returns a copy of the values
func (e *Env) Map() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]string, len(e.values))
	for k, v := range e.values {
		out[k] = v
	}
	return out
}
