package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	JobQueued    string = "QUEUED"
	JobRunning   string = "RUNNING"
	JobCompleted string = "COMPLETED"
	JobFailed    string = "FAILED"
)

// TrainingRun records one dataset submission and the outcome of the training
// it started.
type TrainingRun struct {
	Id     uuid.UUID `gorm:"type:uuid;primaryKey"`
	Status string    `gorm:"size:20;not null"`

	// JSON encoded []api.DatasetFile.
	Files datatypes.JSON

	TrainSamples int `gorm:"default:0"`
	TestSamples  int `gorm:"default:0"`

	Error sql.NullString

	CreationTime   time.Time
	CompletionTime sql.NullTime
}
