package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"

	"github.com/ducphuonguit/federated-learning/internal/core"
	"github.com/ducphuonguit/federated-learning/internal/database"
	"github.com/ducphuonguit/federated-learning/internal/messaging"
	"github.com/ducphuonguit/federated-learning/internal/mnist"
	"github.com/ducphuonguit/federated-learning/internal/storage"
	"github.com/ducphuonguit/federated-learning/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	trainingStarted    = "Training started"
	trainingInProgress = "Training already in progress"
	missingFiles       = "All four files are required"
	noImageUploaded    = "No image uploaded"
	invalidImage       = "Invalid image"

	defaultRunsLimit = 20
	maxMemoryBytes   = 32 << 20
)

// Each upload field and the raw name the trainer expects for it.
var datasetParts = []struct {
	field   string
	rawName string
}{
	{api.TrainImagesField, mnist.RawTrainImages},
	{api.TrainLabelsField, mnist.RawTrainLabels},
	{api.TestImagesField, mnist.RawTestImages},
	{api.TestLabelsField, mnist.RawTestLabels},
}

type BackendService struct {
	db        *gorm.DB
	storage   storage.ObjectStore
	publisher messaging.Publisher
	tracker   *core.StatusTracker
	predictor core.Predictor

	maxUploadBytes int64
}

// NewBackendService creates the service. predictor may be nil, in which case
// the predict endpoint reports that no model is loaded.
func NewBackendService(db *gorm.DB, storage storage.ObjectStore, publisher messaging.Publisher, tracker *core.StatusTracker, predictor core.Predictor, maxUploadBytes int64) *BackendService {
	return &BackendService{
		db:             db,
		storage:        storage,
		publisher:      publisher,
		tracker:        tracker,
		predictor:      predictor,
		maxUploadBytes: maxUploadBytes,
	}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))

	r.Post("/predict", RestHandler(s.Predict))
	r.Post("/train", RestHandler(s.Train))
	r.Get("/status", RestHandler(s.Status))

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListRuns))
		r.Get("/{run_id}", RestHandler(s.GetRun))
	})
}

func (s *BackendService) parseMultipart(r *http.Request) error {
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(nil, r.Body, s.maxUploadBytes)
	}

	if err := r.ParseMultipartForm(maxMemoryBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return CodedErrorf(http.StatusRequestEntityTooLarge, "upload exceeds %d bytes", tooLarge.Limit)
		}
		// Treated as an empty form so the caller reports the missing parts.
		slog.Info("unable to parse multipart form", "error", err)
	}
	return nil
}

func (s *BackendService) Predict(r *http.Request) (any, error) {
	if s.predictor == nil {
		return nil, CodedJsonError(http.StatusServiceUnavailable, api.ErrorResponse{Error: "No model loaded"}, errors.New("no model loaded"))
	}

	if err := s.parseMultipart(r); err != nil {
		return nil, err
	}

	file, header, err := r.FormFile(api.ImageField)
	if err != nil {
		return nil, CodedJsonError(http.StatusBadRequest, api.ErrorResponse{Error: noImageUploaded}, err)
	}
	defer file.Close()

	slog.Info("received image for prediction", "filename", header.Filename, "size", header.Size)

	class, err := core.PredictDigit(s.predictor, file)
	if err != nil {
		if errors.Is(err, core.ErrInvalidImage) {
			return nil, CodedJsonError(http.StatusBadRequest, api.ErrorResponse{Error: invalidImage}, err)
		}
		return nil, CodedJsonError(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to process the image"}, err)
	}

	slog.Info("predicted digit", "filename", header.Filename, "predicted", class)

	return api.PredictResponse{Predicted: api.Prediction(fmt.Sprint(class))}, nil
}

func (s *BackendService) Train(r *http.Request) (any, error) {
	if status, _ := s.tracker.Current(); status == api.StatusTraining {
		return nil, CodedJsonError(http.StatusBadRequest, api.TrainResponse{Status: trainingInProgress}, core.ErrTrainingInProgress)
	}

	if err := s.parseMultipart(r); err != nil {
		return nil, err
	}

	headers := make([]*multipart.FileHeader, len(datasetParts))
	for i, part := range datasetParts {
		if r.MultipartForm == nil || len(r.MultipartForm.File[part.field]) == 0 {
			return nil, CodedJsonError(http.StatusBadRequest, api.TrainResponse{Status: missingFiles}, fmt.Errorf("missing %s", part.field))
		}
		headers[i] = r.MultipartForm.File[part.field][0]
	}

	runId := uuid.New()
	if err := s.tracker.TryStart(runId); err != nil {
		return nil, CodedJsonError(http.StatusBadRequest, api.TrainResponse{Status: trainingInProgress}, err)
	}

	if err := s.queueRun(r.Context(), runId, headers); err != nil {
		s.tracker.Finish(runId)
		return nil, err
	}

	slog.Info("training run queued", "run_id", runId)

	return api.TrainResponse{Status: trainingStarted}, nil
}

func (s *BackendService) queueRun(ctx context.Context, runId uuid.UUID, headers []*multipart.FileHeader) (err error) {
	prefix := path.Join("runs", runId.String())

	defer func() {
		if err == nil {
			return
		}
		// Uploads of a run that never reached the worker are not kept.
		if delErr := s.storage.DeleteObjects(context.Background(), prefix); delErr != nil {
			slog.Error("error removing dataset files of unqueued run", "run_id", runId, "error", delErr)
		}
	}()

	files := make([]api.DatasetFile, 0, len(headers))
	for i, header := range headers {
		if err := s.storeUpload(ctx, path.Join(prefix, datasetParts[i].rawName), header); err != nil {
			slog.Error("error storing dataset file", "run_id", runId, "field", datasetParts[i].field, "error", err)
			return CodedErrorf(http.StatusInternalServerError, "error storing dataset files")
		}
		files = append(files, api.DatasetFile{Field: datasetParts[i].field, Filename: header.Filename, Size: header.Size})
	}

	if _, err := database.CreateTrainingRun(ctx, s.db, runId, files); err != nil {
		return CodedErrorf(http.StatusInternalServerError, "error creating training run")
	}

	if err := s.publisher.PublishTrainTask(ctx, messaging.TrainTaskPayload{RunId: runId, Prefix: prefix}); err != nil {
		slog.Error("error publishing training task", "run_id", runId, "error", err)
		if err := database.FailTrainingRun(context.Background(), s.db, runId, fmt.Errorf("failed to queue training task: %w", err)); err != nil {
			slog.Error("error marking unqueued run failed", "run_id", runId, "error", err)
		}
		return CodedErrorf(http.StatusInternalServerError, "failed to queue training task")
	}

	return nil
}

func (s *BackendService) storeUpload(ctx context.Context, key string, header *multipart.FileHeader) error {
	file, err := header.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	return s.storage.PutObject(ctx, key, file)
}

func (s *BackendService) Status(r *http.Request) (any, error) {
	status, runId := s.tracker.Current()
	res := api.StatusResponse{Status: status, RunId: runId}

	last, err := database.LatestFinishedRun(r.Context(), s.db)
	if err != nil && !errors.Is(err, database.ErrRunNotFound) {
		slog.Error("error getting latest finished run", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving training status")
	}
	if err == nil {
		run := convertRun(last)
		res.LastRun = &run
	}

	return res, nil
}

func (s *BackendService) ListRuns(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ListRunsRequest](r)
	if err != nil {
		return nil, err
	}

	if params.Limit < 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "limit must not be negative")
	}
	if params.Limit == 0 {
		params.Limit = defaultRunsLimit
	}

	runs, err := database.ListTrainingRuns(r.Context(), s.db, params.Limit)
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving training runs")
	}

	return convertRuns(runs), nil
}

func (s *BackendService) GetRun(r *http.Request) (any, error) {
	runId, err := URLParamUUID(r, "run_id")
	if err != nil {
		return nil, err
	}

	run, err := database.GetTrainingRun(r.Context(), s.db, runId)
	if err != nil {
		if errors.Is(err, database.ErrRunNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "training run not found")
		}
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving training run")
	}

	return convertRun(run), nil
}
