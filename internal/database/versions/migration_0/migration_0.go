package migration_0

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TrainingRun struct {
	Id     uuid.UUID `gorm:"type:uuid;primaryKey"`
	Status string    `gorm:"size:20;not null"`

	Files datatypes.JSON

	Error sql.NullString

	CreationTime   time.Time
	CompletionTime sql.NullTime
}

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(&TrainingRun{}); err != nil {
		return fmt.Errorf("error creating training_runs table: %w", err)
	}
	return nil
}
