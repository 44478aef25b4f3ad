package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrRunNotFound is returned when no run matches the given ID
var ErrRunNotFound = errors.New("run not found")

// ListFilter narrows ListRuns
type ListFilter struct {
	Repository string
	Status     string
	Limit      int
	Offset     int
}

// Repository provides database operations for the run ledger
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new state repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateRun creates a new run record
func (r *Repository) CreateRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// GetRun retrieves a run and its steps in execution order
func (r *Repository) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run

	if err := r.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		First(&run, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return &run, nil
}

// ListRuns returns runs newest first
func (r *Repository) ListRuns(ctx context.Context, filter ListFilter) ([]Run, error) {
	var runs []Run

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	query := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Offset(filter.Offset)

	if filter.Repository != "" {
		query = query.Where("repository = ?", filter.Repository)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if err := query.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return runs, nil
}

// UpdateRun saves all fields of a run record
func (r *Repository) UpdateRun(ctx context.Context, run *Run) error {
	if err := r.db.WithContext(ctx).Omit("Steps").Save(run).Error; err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	return nil
}

// UpdateRunStatus updates only the status of a run
func (r *Repository) UpdateRunStatus(ctx context.Context, id, status string) error {
	result := r.db.WithContext(ctx).
		Model(&Run{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update run status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	return nil
}

// DeleteRun deletes a run and its step records
func (r *Repository) DeleteRun(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", id).Delete(&StepRecord{}).Error; err != nil {
			return fmt.Errorf("failed to delete steps: %w", err)
		}
		if err := tx.Delete(&Run{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete run: %w", err)
		}
		return nil
	})
}

// CreateStep creates a step record
func (r *Repository) CreateStep(ctx context.Context, step *StepRecord) error {
	if err := r.db.WithContext(ctx).Create(step).Error; err != nil {
		return fmt.Errorf("failed to create step: %w", err)
	}

	return nil
}

// GetLatestStep returns the most recent record of the named step for a run
func (r *Repository) GetLatestStep(ctx context.Context, runID, step string) (*StepRecord, error) {
	var record StepRecord

	if err := r.db.WithContext(ctx).
		Where("run_id = ? AND step = ?", runID, step).
		Order("id DESC").
		First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("step %s not found for run %s", step, runID)
		}
		return nil, fmt.Errorf("failed to get step: %w", err)
	}

	return &record, nil
}

// UpdateStep saves a step record
func (r *Repository) UpdateStep(ctx context.Context, step *StepRecord) error {
	if err := r.db.WithContext(ctx).Save(step).Error; err != nil {
		return fmt.Errorf("failed to update step: %w", err)
	}

	return nil
}

// CountRunsByStatus returns the number of runs per status
func (r *Repository) CountRunsByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}

	if err := r.db.WithContext(ctx).
		Model(&Run{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
