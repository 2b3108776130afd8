package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ducphuonguit/federated-learning/pkg/api"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrRunNotFound = errors.New("training run not found")

func CreateTrainingRun(ctx context.Context, txn *gorm.DB, runId uuid.UUID, files []api.DatasetFile) (TrainingRun, error) {
	encoded, err := json.Marshal(files)
	if err != nil {
		return TrainingRun{}, fmt.Errorf("error encoding dataset files: %w", err)
	}

	run := TrainingRun{
		Id:           runId,
		Status:       JobQueued,
		Files:        datatypes.JSON(encoded),
		CreationTime: time.Now().UTC(),
	}

	if err := txn.WithContext(ctx).Create(&run).Error; err != nil {
		slog.Error("error creating training run", "error", err)
		return TrainingRun{}, fmt.Errorf("error creating training run: %w", err)
	}

	return run, nil
}

func UpdateTrainingRunStatus(ctx context.Context, txn *gorm.DB, runId uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	if status == JobCompleted || status == JobFailed {
		updates["completion_time"] = time.Now().UTC()
	}

	if err := txn.WithContext(ctx).Model(&TrainingRun{Id: runId}).Updates(updates).Error; err != nil {
		slog.Error("error updating training run status", "run_id", runId, "status", status, "error", err)
		return err
	}
	return nil
}

func SetTrainingRunSamples(ctx context.Context, txn *gorm.DB, runId uuid.UUID, trainSamples, testSamples int) error {
	if err := txn.WithContext(ctx).Model(&TrainingRun{Id: runId}).Updates(map[string]any{
		"train_samples": trainSamples,
		"test_samples":  testSamples,
	}).Error; err != nil {
		slog.Error("error saving training run sample counts", "run_id", runId, "error", err)
		return err
	}
	return nil
}

func FailTrainingRun(ctx context.Context, txn *gorm.DB, runId uuid.UUID, cause error) error {
	if err := txn.WithContext(ctx).Model(&TrainingRun{Id: runId}).Updates(map[string]any{
		"status":          JobFailed,
		"error":           sql.NullString{String: cause.Error(), Valid: true},
		"completion_time": time.Now().UTC(),
	}).Error; err != nil {
		slog.Error("error marking training run failed", "run_id", runId, "error", err)
		return err
	}
	return nil
}

func GetTrainingRun(ctx context.Context, txn *gorm.DB, runId uuid.UUID) (TrainingRun, error) {
	var run TrainingRun
	if err := txn.WithContext(ctx).First(&run, "id = ?", runId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TrainingRun{}, ErrRunNotFound
		}
		slog.Error("error getting training run", "run_id", runId, "error", err)
		return TrainingRun{}, fmt.Errorf("error getting training run: %w", err)
	}
	return run, nil
}

func ListTrainingRuns(ctx context.Context, txn *gorm.DB, limit int) ([]TrainingRun, error) {
	var runs []TrainingRun
	query := txn.WithContext(ctx).Order("creation_time DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&runs).Error; err != nil {
		slog.Error("error listing training runs", "error", err)
		return nil, fmt.Errorf("error listing training runs: %w", err)
	}
	return runs, nil
}

// LatestFinishedRun returns the most recently completed or failed run.
func LatestFinishedRun(ctx context.Context, txn *gorm.DB) (TrainingRun, error) {
	var run TrainingRun
	if err := txn.WithContext(ctx).
		Where("status IN ?", []string{JobCompleted, JobFailed}).
		Order("completion_time DESC").
		First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TrainingRun{}, ErrRunNotFound
		}
		return TrainingRun{}, fmt.Errorf("error getting latest finished run: %w", err)
	}
	return run, nil
}

// MarkInterruptedRuns fails runs left queued or running by a previous process.
// The in-memory queue does not survive a restart, so they can never finish.
func MarkInterruptedRuns(ctx context.Context, txn *gorm.DB) (int64, error) {
	res := txn.WithContext(ctx).Model(&TrainingRun{}).
		Where("status IN ?", []string{JobQueued, JobRunning}).
		Updates(map[string]any{
			"status":          JobFailed,
			"error":           sql.NullString{String: "interrupted by backend restart", Valid: true},
			"completion_time": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("error marking interrupted runs: %w", res.Error)
	}
	return res.RowsAffected, nil
}
