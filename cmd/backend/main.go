package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/ducphuonguit/federated-learning/cmd"
	"github.com/ducphuonguit/federated-learning/internal/api"
	"github.com/ducphuonguit/federated-learning/internal/config"
	"github.com/ducphuonguit/federated-learning/internal/core"
	"github.com/ducphuonguit/federated-learning/internal/database"
	"github.com/ducphuonguit/federated-learning/internal/messaging"
	"github.com/ducphuonguit/federated-learning/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	ort "github.com/yalue/onnxruntime_go"
)

const queueCapacity = 16

func createObjectStore(ctx context.Context, cfg config.BackendConfig) storage.ObjectStore {
	if cfg.DatasetStore == config.S3DatasetStore {
		store, err := storage.NewS3ObjectStore(ctx, cfg.DatasetBucket, filepath.Join(cfg.Root, "cache"), cfg.S3())
		if err != nil {
			log.Fatalf("failed to create s3 dataset store: %v", err)
		}
		if err := store.CreateBucket(ctx); err != nil {
			log.Fatalf("failed to create dataset bucket: %v", err)
		}
		return store
	}

	store, err := storage.NewLocalObjectStore(filepath.Join(cfg.Root, "storage"))
	if err != nil {
		log.Fatalf("failed to create local dataset store: %v", err)
	}
	return store
}

func loadPredictor(cfg config.BackendConfig) core.Predictor {
	if cfg.ModelPath == "" {
		slog.Warn("MODEL_PATH not set, predict endpoint is disabled")
		return nil
	}

	if err := core.InitOnnxRuntime(cfg.OnnxRuntimeDylib); err != nil {
		log.Fatalf("could not init ONNX Runtime: %v", err)
	}

	predictor, err := core.LoadOnnxPredictor(cfg.ModelPath)
	if err != nil {
		log.Fatalf("could not load model %s: %v", cfg.ModelPath, err)
	}
	return predictor
}

func createTrainer(cfg config.BackendConfig) core.Trainer {
	if cfg.TrainCommand == "" {
		slog.Warn("TRAIN_COMMAND not set, training runs only validate the dataset")
		return nil
	}

	trainer, err := core.NewCommandTrainer(cfg.TrainCommand, "")
	if err != nil {
		log.Fatalf("invalid TRAIN_COMMAND: %v", err)
	}
	return trainer
}

func createRouter(service *api.BackendService) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	service.AddRoutes(r)

	return r
}

func main() {
	cmd.LoadEnvFile()

	cfg, err := config.LoadBackendConfig()
	if err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	logFile, err := cmd.RedirectLogs(filepath.Join(cfg.Root, "backend.log"), true)
	if err != nil {
		log.Fatalf("error setting up logging: %v", err)
	}
	defer logFile.Close()

	slog.Info("starting backend", "root", cfg.Root, "listen_addrs", cfg.ListenAddrs, "dataset_store", cfg.DatasetStore)

	ctx := context.Background()

	db, err := database.Open(cfg.DatabaseURL, cfg.Root)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}

	if n, err := database.MarkInterruptedRuns(ctx, db); err != nil {
		log.Fatalf("failed to clean up interrupted runs: %v", err)
	} else if n > 0 {
		slog.Warn("marked interrupted training runs as failed", "count", n)
	}

	store := createObjectStore(ctx, cfg)

	predictor := loadPredictor(cfg)
	if predictor != nil {
		defer func() {
			predictor.Release()
			if err := ort.DestroyEnvironment(); err != nil {
				slog.Error("error destroying onnx env", "error", err)
			}
		}()
	}

	queue := messaging.NewInMemoryQueue(queueCapacity)
	tracker := core.NewStatusTracker()

	worker := core.NewTaskProcessor(db, store, queue, queue, tracker, createTrainer(cfg))

	service := api.NewBackendService(db, store, queue, tracker, predictor, cfg.MaxUploadBytes)
	router := createRouter(service)

	servers := make([]*http.Server, 0, len(cfg.ListenAddrs))
	for _, addr := range cfg.ListenAddrs {
		servers = append(servers, &http.Server{Addr: addr, Handler: router})
	}

	slog.Info("starting worker")
	workerDone := make(chan struct{})
	go func() {
		worker.Start()
		close(workerDone)
	}()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down servers")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		for _, server := range servers {
			if err := server.Shutdown(ctx); err != nil {
				slog.Error("server forced to shutdown", "addr", server.Addr, "error", err)
			}
		}

		slog.Info("shutting down worker")
		worker.Stop()
	}()

	var wg sync.WaitGroup
	for _, server := range servers {
		server := server
		wg.Add(1)
		go func() {
			defer wg.Done()
			slog.Info("server started", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("could not listen on %s: %v", server.Addr, err)
			}
		}()
	}
	wg.Wait()

	<-workerDone
	slog.Info("server stopped")
}
