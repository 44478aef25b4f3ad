package state

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/alvesdmateus/image-publisher/internal/pipeline"
	"github.com/alvesdmateus/image-publisher/internal/runenv"
)

// Tracker records pipeline progress in the run ledger
type Tracker struct {
	repo *Repository
}

// NewTracker creates a new run tracker
func NewTracker(repo *Repository) *Tracker {
	return &Tracker{repo: repo}
}

// StartRun creates the run record
func (t *Tracker) StartRun(ctx context.Context, run *pipeline.Run) error {
	record := &Run{
		ID:         run.ID,
		Repository: run.Event.Repository,
		Ref:        run.Event.Ref,
		SHA:        run.Event.SHA,
		Actor:      run.Event.Actor,
		DeliveryID: run.Event.DeliveryID,
		Status:     string(pipeline.StatusRunning),
		StartedAt:  run.StartedAt,
	}

	if err := t.repo.CreateRun(ctx, record); err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}

	log.Debug().Str("runID", run.ID).Msg("Run recorded")
	return nil
}

// StartStep creates a running step record
func (t *Tracker) StartStep(ctx context.Context, runID string, step pipeline.Step) error {
	record := &StepRecord{
		RunID:     runID,
		Step:      string(step),
		Status:    string(pipeline.StatusRunning),
		StartedAt: time.Now(),
	}

	if err := t.repo.CreateStep(ctx, record); err != nil {
		return fmt.Errorf("failed to record step start: %w", err)
	}
	return nil
}

// FinishStep completes the step record created by StartStep
func (t *Tracker) FinishStep(ctx context.Context, runID string, result pipeline.StepResult) error {
	record, err := t.repo.GetLatestStep(ctx, runID, string(result.Step))
	if err != nil {
		return err
	}

	finishedAt := result.StartedAt.Add(result.Duration)
	record.Status = string(result.Status)
	record.StartedAt = result.StartedAt
	record.FinishedAt = &finishedAt
	record.DurationMS = result.Duration.Milliseconds()
	record.Error = result.Error

	if err := t.repo.UpdateStep(ctx, record); err != nil {
		return fmt.Errorf("failed to record step completion: %w", err)
	}
	return nil
}

// FinishRun stores the final status and published tags of a run
func (t *Tracker) FinishRun(ctx context.Context, result *pipeline.Result) error {
	record, err := t.repo.GetRun(ctx, result.RunID)
	if err != nil {
		return err
	}

	finishedAt := result.FinishedAt
	record.Status = string(result.Status)
	record.FinishedAt = &finishedAt
	record.Error = result.Error
	record.ImageRepository = result.Env[runenv.KeyImageRepository]
	record.ImageTag = result.Env[runenv.KeyImageTag]

	if result.Publish != nil {
		record.Tags = result.Publish.PushedTags()
		if len(result.Publish.Pushed) > 0 {
			record.Digest = result.Publish.Pushed[0].Digest
		}
	}

	if err := t.repo.UpdateRun(ctx, record); err != nil {
		return fmt.Errorf("failed to record run completion: %w", err)
	}

	log.Debug().
		Str("runID", result.RunID).
		Str("status", record.Status).
		Msg("Run completion recorded")
	return nil
}
