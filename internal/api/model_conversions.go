package api

import (
	"encoding/json"
	"log/slog"

	"github.com/ducphuonguit/federated-learning/internal/database"
	"github.com/ducphuonguit/federated-learning/pkg/api"
)

func convertRun(r database.TrainingRun) api.TrainingRun {
	run := api.TrainingRun{
		Id:           r.Id,
		Status:       r.Status,
		TrainSamples: r.TrainSamples,
		TestSamples:  r.TestSamples,
		CreationTime: r.CreationTime,
	}

	if len(r.Files) > 0 {
		if err := json.Unmarshal(r.Files, &run.Files); err != nil {
			slog.Error("error decoding run files", "run_id", r.Id, "error", err)
		}
	}
	if r.Error.Valid {
		run.Error = r.Error.String
	}
	if r.CompletionTime.Valid {
		completed := r.CompletionTime.Time
		run.CompletionTime = &completed
	}

	return run
}

func convertRuns(rs []database.TrainingRun) []api.TrainingRun {
	runs := make([]api.TrainingRun, 0, len(rs))
	for _, r := range rs {
		runs = append(runs, convertRun(r))
	}
	return runs
}
