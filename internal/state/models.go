package state

import (
	"time"

	"gorm.io/gorm"
)

// Run is the ledger record of one pipeline run
type Run struct {
	ID         string `gorm:"type:varchar(36);primaryKey"`
	Repository string `gorm:"not null;index"`
	Ref        string `gorm:"not null"`
	SHA        string `gorm:"not null"`
	Actor      string
	DeliveryID string
	Status     string `gorm:"not null;index"`

	ImageRepository string
	ImageTag        string
	Tags            []string `gorm:"serializer:json"`
	Digest          string
	Error           string

	StartedAt  time.Time
	FinishedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Steps []StepRecord `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

// StepRecord tracks one step of a run
type StepRecord struct {
	ID         uint   `gorm:"primaryKey"`
	RunID      string `gorm:"type:varchar(36);not null;index"`
	Step       string `gorm:"not null"`
	Status     string `gorm:"not null"`
	StartedAt  time.Time
	FinishedAt *time.Time
	DurationMS int64
	Error      string
}

// Duration returns the run's wall time, or zero while it is running
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Models lists the ledger models for migration
func Models() []interface{} {
	return []interface{}{&Run{}, &StepRecord{}}
}

// AutoMigrate runs database migrations
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
