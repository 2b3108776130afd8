package migration_1

import (
	"fmt"

	"gorm.io/gorm"
)

type TrainingRun struct {
	TrainSamples int `gorm:"default:0"`
	TestSamples  int `gorm:"default:0"`
}

func Migration(db *gorm.DB) error {
	for _, column := range []string{"train_samples", "test_samples"} {
		if err := db.Migrator().AddColumn(&TrainingRun{}, column); err != nil {
			return fmt.Errorf("error adding %s column: %w", column, err)
		}

		if err := db.Model(&TrainingRun{}).
			Where(column + " IS NULL").
			Update(column, 0).Error; err != nil {
			return fmt.Errorf("error setting default value for %s: %w", column, err)
		}
	}

	return nil
}

func Rollback(db *gorm.DB) error {
	for _, column := range []string{"TrainSamples", "TestSamples"} {
		if err := db.Migrator().DropColumn(&TrainingRun{}, column); err != nil {
			return fmt.Errorf("error dropping %s column: %w", column, err)
		}
	}

	return nil
}
