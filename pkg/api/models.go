package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	StatusIdle     = "idle"
	StatusTraining = "training"
)

// Multipart field names understood by the predict and train endpoints.
const (
	ImageField       = "image"
	TrainImagesField = "trainImages"
	TrainLabelsField = "trainLabels"
	TestImagesField  = "testImages"
	TestLabelsField  = "testLabels"
)

// Conventional MNIST archive names attached to the train upload parts.
const (
	TrainImagesFilename = "train-images-idx3-ubyte.gz"
	TrainLabelsFilename = "train-labels-idx1-ubyte.gz"
	TestImagesFilename  = "t10k-images-idx3-ubyte.gz"
	TestLabelsFilename  = "t10k-labels-idx1-ubyte.gz"
)

// Prediction is the value returned by the predict endpoint. The endpoint
// returns a class index, but a label string is accepted as well.
type Prediction string

func (p *Prediction) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = Prediction(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("prediction must be a number or a string: %w", err)
	}
	*p = Prediction(n.String())
	return nil
}

// MarshalJSON writes numeric predictions as JSON numbers.
func (p Prediction) MarshalJSON() ([]byte, error) {
	var n json.Number
	if err := json.Unmarshal([]byte(p), &n); err == nil && n.String() == string(p) {
		return []byte(p), nil
	}
	return json.Marshal(string(p))
}

func (p Prediction) String() string {
	return string(p)
}

type PredictResponse struct {
	Predicted Prediction `json:"predicted"`
}

type TrainResponse struct {
	Status string `json:"status"`
}

type StatusResponse struct {
	Status  string       `json:"status"`
	RunId   *uuid.UUID   `json:"run_id,omitempty"`
	LastRun *TrainingRun `json:"last_run,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type DatasetFile struct {
	Field    string `json:"field"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

type TrainingRun struct {
	Id             uuid.UUID     `json:"id"`
	Status         string        `json:"status"`
	Files          []DatasetFile `json:"files,omitempty"`
	TrainSamples   int           `json:"train_samples"`
	TestSamples    int           `json:"test_samples"`
	Error          string        `json:"error,omitempty"`
	CreationTime   time.Time     `json:"creation_time"`
	CompletionTime *time.Time    `json:"completion_time,omitempty"`
}

type ListRunsRequest struct {
	Limit int `schema:"limit"`
}
