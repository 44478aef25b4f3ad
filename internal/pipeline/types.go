// Package pipeline runs the trigger-driven publish sequence:
// normalize, fetch, authenticate, publish. Steps run strictly in order and
// the first failure ends the run.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/alvesdmateus/image-publisher/internal/naming"
	"github.com/alvesdmateus/image-publisher/internal/publisher"
	"github.com/alvesdmateus/image-publisher/internal/registry"
	"github.com/alvesdmateus/image-publisher/internal/runenv"
	"github.com/alvesdmateus/image-publisher/internal/source"
	"github.com/alvesdmateus/image-publisher/internal/trigger"
)

// Step names a pipeline step
type Step string

const (
	StepNormalize    Step = "normalize"
	StepFetch        Step = "fetch"
	StepAuthenticate Step = "authenticate"
	StepPublish      Step = "publish"
)

// Steps lists the steps in execution order
var Steps = []Step{StepNormalize, StepFetch, StepAuthenticate, StepPublish}

// Status is the outcome of a run or a step
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusSkipped   Status = "SKIPPED"
)

// Run is the mutable state of one run, visible to its steps only
type Run struct {
	ID        string
	Event     *trigger.Event
	Env       *runenv.Env
	Workspace string
	StartedAt time.Time

	Names   naming.Names
	Source  *source.FetchResult
	Session *registry.Session
	Publish *publisher.PublishResult
}

// StepResult records the outcome of one step
type StepResult struct {
	Step      Step          `json:"step" yaml:"step"`
	Status    Status        `json:"status" yaml:"status"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Result is the outcome of Execute
type Result struct {
	RunID      string                   `json:"run_id" yaml:"run_id"`
	Status     Status                   `json:"status" yaml:"status"`
	Event      *trigger.Event           `json:"event" yaml:"event"`
	Env        map[string]string        `json:"env,omitempty" yaml:"env,omitempty"`
	Steps      []StepResult             `json:"steps" yaml:"steps"`
	Publish    *publisher.PublishResult `json:"publish,omitempty" yaml:"publish,omitempty"`
	StartedAt  time.Time                `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time                `json:"finished_at" yaml:"finished_at"`
	Error      string                   `json:"error,omitempty" yaml:"error,omitempty"`
}

// Duration returns the wall time of the run
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// StepError wraps the error of the step that ended a run
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Tracker records run and step progress. Tracker errors never fail a run.
type Tracker interface {
	StartRun(ctx context.Context, run *Run) error
	StartStep(ctx context.Context, runID string, step Step) error
	FinishStep(ctx context.Context, runID string, result StepResult) error
	FinishRun(ctx context.Context, result *Result) error
}

// Metrics receives run and step measurements
type Metrics interface {
	RecordRun(status string)
	RecordStepDuration(step, status string, seconds float64)
	RecordTagsPushed(registry string, count int)
	IncRunsInProgress()
	DecRunsInProgress()
}

// NopTracker discards progress
type NopTracker struct{}

func (NopTracker) StartRun(context.Context, *Run) error                 { return nil }
func (NopTracker) StartStep(context.Context, string, Step) error        { return nil }
func (NopTracker) FinishStep(context.Context, string, StepResult) error { return nil }
func (NopTracker) FinishRun(context.Context, *Result) error             { return nil }

type nopMetrics struct{}

func (nopMetrics) RecordRun(string)                           {}
func (nopMetrics) RecordStepDuration(string, string, float64) {}
func (nopMetrics) RecordTagsPushed(string, int)               {}
func (nopMetrics) IncRunsInProgress()                         {}
func (nopMetrics) DecRunsInProgress()                         {}
