package database

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Migrate creates or updates the tables of models. Each table is logged as
// created or updated so a first start against an empty ledger is visible.
func Migrate(db *gorm.DB, models ...interface{}) error {
	for _, model := range models {
		table, err := TableName(db, model)
		if err != nil {
			return err
		}
		existed := HasTable(db, model)

		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate table %s: %w", table, err)
		}

		action := "updated"
		if !existed {
			action = "created"
		}
		log.Debug().Str("table", table).Str("action", action).Msg("Migrated table")
	}

	log.Info().Int("tables", len(models)).Msg("Database migrations completed")
	return nil
}

// TableName resolves the table a model maps to
func TableName(db *gorm.DB, model interface{}) (string, error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(model); err != nil {
		return "", fmt.Errorf("failed to parse model %T: %w", model, err)
	}
	return stmt.Schema.Table, nil
}

// HasTable checks if a table exists
func HasTable(db *gorm.DB, model interface{}) bool {
	return db.Migrator().HasTable(model)
}
