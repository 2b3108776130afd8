package integrationtests

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http/httptest"
	"testing"
	"time"

	backend "github.com/ducphuonguit/federated-learning/internal/api"
	"github.com/ducphuonguit/federated-learning/internal/client"
	"github.com/ducphuonguit/federated-learning/internal/core"
	"github.com/ducphuonguit/federated-learning/internal/database"
	"github.com/ducphuonguit/federated-learning/internal/messaging"
	"github.com/ducphuonguit/federated-learning/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/minio"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

// fixedPredictor scores every image the same way.
type fixedPredictor struct {
	scores []float32
}

func (p *fixedPredictor) Predict([]float32) ([]float32, error) { return p.scores, nil }
func (p *fixedPredictor) Release()                              {}

func digitScores(digit int) []float32 {
	scores := make([]float32, 10)
	scores[digit] = 1
	return scores
}

func pngImage(t *testing.T) []byte {
	img := image.NewGray(image.Rect(0, 0, 28, 28))
	for i := 10; i < 18; i++ {
		img.SetGray(i, i, color.Gray{Y: 255})
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// startBackend serves the full backend, including the training worker, over
// a real http listener.
func startBackend(t *testing.T, db *gorm.DB, store storage.ObjectStore, predictor core.Predictor, trainer core.Trainer) *httptest.Server {
	queue := messaging.NewInMemoryQueue(10)
	tracker := core.NewStatusTracker()

	worker := core.NewTaskProcessor(db, store, queue, queue, tracker, trainer)
	workerDone := make(chan struct{})
	go func() {
		worker.Start()
		close(workerDone)
	}()

	service := backend.NewBackendService(db, store, queue, tracker, predictor, 0)
	router := chi.NewRouter()
	service.AddRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		worker.Stop()
		<-workerDone
	})

	return server
}

func newClient(server *httptest.Server) *client.Client {
	return client.New(client.Config{
		PredictURL: server.URL + "/predict",
		TrainURL:   server.URL + "/train",
		StatusURL:  server.URL + "/status",
		Timeout:    30 * time.Second,
	})
}

func createSqliteDB(t *testing.T) *gorm.DB {
	db, err := database.Open("", t.TempDir())
	require.NoError(t, err)
	return db
}

func createPostgresDB(t *testing.T) *gorm.DB {
	uri := setupPostgresContainer(t, context.Background())
	db, err := database.Open(uri, t.TempDir())
	require.NoError(t, err)

	return db
}

const (
	minioUsername = "admin"
	minioPassword = "password"
)

func setupMinioContainer(t *testing.T, ctx context.Context) string {
	minioContainer, err := minio.Run(
		ctx,
		"minio/minio:RELEASE.2024-01-16T16-07-38Z",
		minio.WithUsername(minioUsername),
		minio.WithPassword(minioPassword),
	)
	require.NoError(t, err, "Failed to start MinIO container")

	t.Cleanup(func() {
		err := minioContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate MinIO container")
	})

	connStr, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err, "Failed to get MinIO connection string")

	return "http://" + connStr
}

func setupPostgresContainer(t *testing.T, ctx context.Context) string {
	dbName, dbUser, dbPassword := "test_db", "test_user", "test_password"

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	t.Cleanup(func() {
		err := postgresContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate PostgreSQL container")
	})

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get PostgreSQL connection string")

	return connStr
}

func skipShort(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
}
