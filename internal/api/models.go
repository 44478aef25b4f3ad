package api

import (
	"time"

	"github.com/alvesdmateus/image-publisher/internal/queue"
)

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// HealthResponse reports the state of the server's dependencies
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks,omitempty"`
	Version string            `json:"version"`
}

// Webhook outcomes
const (
	OutcomeQueued  = "queued"
	OutcomeSkipped = "skipped"
	OutcomePong    = "pong"
)

// WebhookResponse tells the sender what happened to a delivery
type WebhookResponse struct {
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	JobID      string `json:"job_id,omitempty"`
	DeliveryID string `json:"delivery_id,omitempty"`
}

// RunResponse represents a ledger run in API responses
type RunResponse struct {
	ID              string         `json:"id"`
	Repository      string         `json:"repository"`
	Ref             string         `json:"ref"`
	SHA             string         `json:"sha"`
	Actor           string         `json:"actor,omitempty"`
	Status          string         `json:"status"`
	ImageRepository string         `json:"image_repository,omitempty"`
	ImageTag        string         `json:"image_tag,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	Digest          string         `json:"digest,omitempty"`
	Error           string         `json:"error,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      *time.Time     `json:"finished_at,omitempty"`
	Steps           []StepResponse `json:"steps,omitempty"`
}

// StepResponse represents one step of a run
type StepResponse struct {
	Step       string `json:"step"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// StatsResponse summarizes queued work and recorded runs
type StatsResponse struct {
	Queue *queue.Stats     `json:"queue,omitempty"`
	Runs  map[string]int64 `json:"runs,omitempty"`
}
