package config

import (
	"fmt"
	"time"

	"github.com/ducphuonguit/federated-learning/internal/client"
	"github.com/ducphuonguit/federated-learning/internal/storage"

	"github.com/caarlos0/env/v11"
)

const (
	LocalDatasetStore = "local"
	S3DatasetStore    = "s3"
)

type ClientConfig struct {
	PredictURL     string        `env:"PREDICT_URL" envDefault:"http://127.0.0.1:8081/predict"`
	TrainURL       string        `env:"TRAIN_URL" envDefault:"http://127.0.0.1:4001/train"`
	StatusURL      string        `env:"STATUS_URL" envDefault:"http://127.0.0.1:4000/status"`
	PollInterval   time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"0"`
	LogFile        string        `env:"LOG_FILE" envDefault:"fedclient.log"`
}

func (c ClientConfig) Client() client.Config {
	return client.Config{
		PredictURL: c.PredictURL,
		TrainURL:   c.TrainURL,
		StatusURL:  c.StatusURL,
		Timeout:    c.RequestTimeout,
	}
}

type BackendConfig struct {
	ListenAddrs []string `env:"LISTEN_ADDRS" envSeparator:"," envDefault:":8081,:4001,:4000"`
	Root        string   `env:"ROOT" envDefault:"./fl-backend"`
	DatabaseURL string   `env:"DATABASE_URL"`

	DatasetStore      string `env:"DATASET_STORE" envDefault:"local"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
	DatasetBucket     string `env:"DATASET_BUCKET" envDefault:"datasets"`

	TrainCommand string `env:"TRAIN_COMMAND"`

	OnnxRuntimeDylib string `env:"ONNX_RUNTIME_DYLIB"`
	ModelPath        string `env:"MODEL_PATH"`

	MaxUploadBytes int64 `env:"MAX_UPLOAD_BYTES" envDefault:"104857600"`
}

func (c BackendConfig) S3() storage.S3ClientConfig {
	return storage.S3ClientConfig{
		Endpoint:        c.S3EndpointURL,
		Region:          c.S3Region,
		AccessKeyID:     c.S3AccessKeyID,
		SecretAccessKey: c.S3SecretAccessKey,
	}
}

func (c BackendConfig) Validate() error {
	if len(c.ListenAddrs) == 0 {
		return fmt.Errorf("LISTEN_ADDRS must name at least one address")
	}
	switch c.DatasetStore {
	case LocalDatasetStore:
	case S3DatasetStore:
		if c.DatasetBucket == "" {
			return fmt.Errorf("DATASET_BUCKET is required when DATASET_STORE=s3")
		}
	default:
		return fmt.Errorf("invalid DATASET_STORE %q: must be %q or %q", c.DatasetStore, LocalDatasetStore, S3DatasetStore)
	}
	if (c.ModelPath == "") != (c.OnnxRuntimeDylib == "") {
		return fmt.Errorf("MODEL_PATH and ONNX_RUNTIME_DYLIB must be set together")
	}
	if c.MaxUploadBytes < 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must not be negative")
	}
	return nil
}

func LoadClientConfig() (ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("error parsing client config: %w", err)
	}
	if cfg.PollInterval <= 0 {
		return ClientConfig{}, fmt.Errorf("POLL_INTERVAL must be positive")
	}
	return cfg, nil
}

func LoadBackendConfig() (BackendConfig, error) {
	var cfg BackendConfig
	if err := env.Parse(&cfg); err != nil {
		return BackendConfig{}, fmt.Errorf("error parsing backend config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return BackendConfig{}, err
	}
	return cfg, nil
}
