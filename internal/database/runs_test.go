package database_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ducphuonguit/federated-learning/internal/database"
	"github.com/ducphuonguit/federated-learning/pkg/api"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func createDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, database.GetMigrator(db).Migrate())

	return db
}

func testFiles() []api.DatasetFile {
	return []api.DatasetFile{
		{Field: api.TrainImagesField, Filename: "a.gz", Size: 10},
		{Field: api.TrainLabelsField, Filename: "b.gz", Size: 11},
		{Field: api.TestImagesField, Filename: "c.gz", Size: 12},
		{Field: api.TestLabelsField, Filename: "d.gz", Size: 13},
	}
}

func TestCreateAndGetTrainingRun(t *testing.T) {
	db := createDB(t)
	ctx := context.Background()

	run, err := database.CreateTrainingRun(ctx, db, uuid.New(), testFiles())
	require.NoError(t, err)
	assert.Equal(t, database.JobQueued, run.Status)

	stored, err := database.GetTrainingRun(ctx, db, run.Id)
	require.NoError(t, err)
	assert.Equal(t, run.Id, stored.Id)
	assert.Equal(t, database.JobQueued, stored.Status)
	assert.False(t, stored.CompletionTime.Valid)
	assert.False(t, stored.Error.Valid)

	var files []api.DatasetFile
	require.NoError(t, json.Unmarshal(stored.Files, &files))
	assert.Equal(t, testFiles(), files)

	_, err = database.GetTrainingRun(ctx, db, uuid.New())
	assert.True(t, errors.Is(err, database.ErrRunNotFound))
}

func TestUpdateTrainingRunStatus(t *testing.T) {
	db := createDB(t)
	ctx := context.Background()

	run, err := database.CreateTrainingRun(ctx, db, uuid.New(), testFiles())
	require.NoError(t, err)

	require.NoError(t, database.UpdateTrainingRunStatus(ctx, db, run.Id, database.JobRunning))
	stored, err := database.GetTrainingRun(ctx, db, run.Id)
	require.NoError(t, err)
	assert.Equal(t, database.JobRunning, stored.Status)
	assert.False(t, stored.CompletionTime.Valid)

	require.NoError(t, database.SetTrainingRunSamples(ctx, db, run.Id, 60000, 10000))
	require.NoError(t, database.UpdateTrainingRunStatus(ctx, db, run.Id, database.JobCompleted))
	stored, err = database.GetTrainingRun(ctx, db, run.Id)
	require.NoError(t, err)
	assert.Equal(t, database.JobCompleted, stored.Status)
	assert.True(t, stored.CompletionTime.Valid)
	assert.Equal(t, 60000, stored.TrainSamples)
	assert.Equal(t, 10000, stored.TestSamples)
}

func TestFailTrainingRun(t *testing.T) {
	db := createDB(t)
	ctx := context.Background()

	run, err := database.CreateTrainingRun(ctx, db, uuid.New(), testFiles())
	require.NoError(t, err)

	require.NoError(t, database.FailTrainingRun(ctx, db, run.Id, errors.New("exit status 1")))

	stored, err := database.GetTrainingRun(ctx, db, run.Id)
	require.NoError(t, err)
	assert.Equal(t, database.JobFailed, stored.Status)
	assert.Equal(t, "exit status 1", stored.Error.String)
	assert.True(t, stored.CompletionTime.Valid)
}

func TestListTrainingRuns(t *testing.T) {
	db := createDB(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	ids := make([]uuid.UUID, 0, 3)
	for i := 0; i < 3; i++ {
		run := database.TrainingRun{
			Id:           uuid.New(),
			Status:       database.JobCompleted,
			CreationTime: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(&run).Error)
		ids = append(ids, run.Id)
	}

	runs, err := database.ListTrainingRuns(ctx, db, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[2], runs[0].Id)
	assert.Equal(t, ids[0], runs[2].Id)

	runs, err = database.ListTrainingRuns(ctx, db, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].Id)
	assert.Equal(t, ids[1], runs[1].Id)
}

func TestMarkInterruptedRuns(t *testing.T) {
	db := createDB(t)
	ctx := context.Background()

	queued, err := database.CreateTrainingRun(ctx, db, uuid.New(), testFiles())
	require.NoError(t, err)
	running, err := database.CreateTrainingRun(ctx, db, uuid.New(), testFiles())
	require.NoError(t, err)
	require.NoError(t, database.UpdateTrainingRunStatus(ctx, db, running.Id, database.JobRunning))
	done, err := database.CreateTrainingRun(ctx, db, uuid.New(), testFiles())
	require.NoError(t, err)
	require.NoError(t, database.UpdateTrainingRunStatus(ctx, db, done.Id, database.JobCompleted))

	n, err := database.MarkInterruptedRuns(ctx, db)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	for _, id := range []uuid.UUID{queued.Id, running.Id} {
		stored, err := database.GetTrainingRun(ctx, db, id)
		require.NoError(t, err)
		assert.Equal(t, database.JobFailed, stored.Status)
		assert.True(t, stored.Error.Valid)
	}

	stored, err := database.GetTrainingRun(ctx, db, done.Id)
	require.NoError(t, err)
	assert.Equal(t, database.JobCompleted, stored.Status)
}

func TestOpenSqliteUnderRoot(t *testing.T) {
	root := t.TempDir()

	db, err := database.Open("", root)
	require.NoError(t, err)

	_, err = database.CreateTrainingRun(context.Background(), db, uuid.New(), testFiles())
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(root, "db", "backend.db"))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

func TestMigrationRollback(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	migrator := database.GetMigrator(db)
	require.NoError(t, migrator.Migrate())
	assert.True(t, db.Migrator().HasColumn(&database.TrainingRun{}, "train_samples"))

	require.NoError(t, migrator.RollbackLast())
	assert.False(t, db.Migrator().HasColumn(&database.TrainingRun{}, "train_samples"))
}

func TestLatestFinishedRun(t *testing.T) {
	db := createDB(t)
	ctx := context.Background()

	_, err := database.LatestFinishedRun(ctx, db)
	assert.ErrorIs(t, err, database.ErrRunNotFound)

	first, err := database.CreateTrainingRun(ctx, db, uuid.New(), testFiles())
	require.NoError(t, err)
	require.NoError(t, database.FailTrainingRun(ctx, db, first.Id, errors.New("bad dataset")))

	time.Sleep(5 * time.Millisecond)

	second, err := database.CreateTrainingRun(ctx, db, uuid.New(), testFiles())
	require.NoError(t, err)
	require.NoError(t, database.UpdateTrainingRunStatus(ctx, db, second.Id, database.JobCompleted))

	_, err = database.CreateTrainingRun(ctx, db, uuid.New(), testFiles())
	require.NoError(t, err)

	latest, err := database.LatestFinishedRun(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, second.Id, latest.Id)
}
