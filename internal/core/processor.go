package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ducphuonguit/federated-learning/internal/database"
	"github.com/ducphuonguit/federated-learning/internal/messaging"
	"github.com/ducphuonguit/federated-learning/internal/mnist"
	"github.com/ducphuonguit/federated-learning/internal/storage"

	"gorm.io/gorm"
)

type TaskProcessor struct {
	db        *gorm.DB
	storage   storage.ObjectStore
	publisher messaging.Publisher
	reciever  messaging.Reciever

	tracker *StatusTracker
	trainer Trainer

	ctx    context.Context
	cancel context.CancelFunc
}

// NewTaskProcessor creates a processor for training tasks. A nil trainer
// validates the dataset and completes the run without training.
func NewTaskProcessor(db *gorm.DB, storage storage.ObjectStore, publisher messaging.Publisher, reciever messaging.Reciever, tracker *StatusTracker, trainer Trainer) *TaskProcessor {
	ctx, cancel := context.WithCancel(context.Background())
	return &TaskProcessor{
		db:        db,
		storage:   storage,
		publisher: publisher,
		reciever:  reciever,
		tracker:   tracker,
		trainer:   trainer,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (proc *TaskProcessor) Start() {
	slog.Info("starting task processor")

	for task := range proc.reciever.Tasks() {
		proc.ProcessTask(task)
	}
}

// Stop closes the queue and cancels the training command in progress.
func (proc *TaskProcessor) Stop() {
	slog.Info("stopping task processor")

	proc.publisher.Close()
	proc.reciever.Close()
	proc.cancel()
}

func (proc *TaskProcessor) ProcessTask(task messaging.Task) {
	var err error
	switch task.Type() {

	case messaging.TrainQueue:
		var payload messaging.TrainTaskPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error unmarshalling training task", "error", err)
			if err := task.Reject(); err != nil {
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		err = proc.processTrainTask(proc.ctx, payload)

	default:
		slog.Error("received unknown task type", "queue", task.Type())
		if err := task.Reject(); err != nil {
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	if err != nil {
		slog.Error("error processing task", "queue", task.Type(), "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
	} else {
		slog.Info("successfully processed task", "queue", task.Type())
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}
	}
}

func (proc *TaskProcessor) processTrainTask(ctx context.Context, payload messaging.TrainTaskPayload) error {
	runId := payload.RunId
	defer proc.tracker.Finish(runId)

	slog.Info("processing training task", "run_id", runId, "prefix", payload.Prefix)

	if err := database.UpdateTrainingRunStatus(ctx, proc.db, runId, database.JobRunning); err != nil {
		return fmt.Errorf("error updating training run status: %w", err)
	}

	if err := proc.train(ctx, payload); err != nil {
		// The run may have been canceled by shutdown, so the failure is saved
		// without the task context.
		if dbErr := database.FailTrainingRun(context.Background(), proc.db, runId, err); dbErr != nil {
			return fmt.Errorf("error saving training failure: %w", dbErr)
		}
		return err
	}

	if err := database.UpdateTrainingRunStatus(ctx, proc.db, runId, database.JobCompleted); err != nil {
		return fmt.Errorf("error updating training run status: %w", err)
	}

	slog.Info("training run completed", "run_id", runId)
	return nil
}

func (proc *TaskProcessor) train(ctx context.Context, payload messaging.TrainTaskPayload) error {
	dir, err := proc.storage.LocalDir(ctx, payload.Prefix)
	if err != nil {
		return fmt.Errorf("error fetching dataset: %w", err)
	}

	summary, err := mnist.ValidateDataset(mnist.RawDataset(dir))
	if err != nil {
		return fmt.Errorf("error validating dataset: %w", err)
	}

	slog.Info("dataset validated", "run_id", payload.RunId, "train_samples", summary.TrainSamples, "test_samples", summary.TestSamples)

	if err := database.SetTrainingRunSamples(ctx, proc.db, payload.RunId, summary.TrainSamples, summary.TestSamples); err != nil {
		return fmt.Errorf("error saving sample counts: %w", err)
	}

	if proc.trainer == nil {
		slog.Info("no trainer configured, skipping training", "run_id", payload.RunId)
		return nil
	}

	return proc.trainer.Train(ctx, dir)
}
