package api

import "github.com/alvesdmateus/image-publisher/internal/state"

func toRunResponse(run *state.Run) RunResponse {
	resp := RunResponse{
		ID:              run.ID,
		Repository:      run.Repository,
		Ref:             run.Ref,
		SHA:             run.SHA,
		Actor:           run.Actor,
		Status:          run.Status,
		ImageRepository: run.ImageRepository,
		ImageTag:        run.ImageTag,
		Tags:            run.Tags,
		Digest:          run.Digest,
		Error:           run.Error,
		StartedAt:       run.StartedAt,
		FinishedAt:      run.FinishedAt,
	}
	for _, step := range run.Steps {
		resp.Steps = append(resp.Steps, StepResponse{
			Step:       step.Step,
			Status:     step.Status,
			DurationMS: step.DurationMS,
			Error:      step.Error,
		})
	}
	return resp
}
