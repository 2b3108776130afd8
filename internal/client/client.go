package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ducphuonguit/federated-learning/pkg/api"

	"github.com/go-resty/resty/v2"
)

var ErrRequestFailed = errors.New("backend request failed")

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrRequestFailed
}

type Config struct {
	PredictURL string
	TrainURL   string
	StatusURL  string

	// Zero means no per-request timeout.
	Timeout time.Duration
}

type Client struct {
	client *resty.Client
	cfg    Config
}

func New(cfg Config) *Client {
	return &Client{client: resty.New(), cfg: cfg}
}

// Dataset holds the four MNIST archives of one training submission.
type Dataset struct {
	TrainImages File
	TrainLabels File
	TestImages  File
	TestLabels  File
}

type datasetPart struct {
	field    string
	filename string
	file     File
}

func (d Dataset) parts() []datasetPart {
	return []datasetPart{
		{field: api.TrainImagesField, filename: api.TrainImagesFilename, file: d.TrainImages},
		{field: api.TrainLabelsField, filename: api.TrainLabelsFilename, file: d.TrainLabels},
		{field: api.TestImagesField, filename: api.TestImagesFilename, file: d.TestImages},
		{field: api.TestLabelsField, filename: api.TestLabelsFilename, file: d.TestLabels},
	}
}

// Missing returns the multipart field names of the slots with no file.
func (d Dataset) Missing() []string {
	var missing []string
	for _, part := range d.parts() {
		if part.file == nil {
			missing = append(missing, part.field)
		}
	}
	return missing
}

func (c *Client) request(ctx context.Context) (*resty.Request, context.CancelFunc) {
	cancel := context.CancelFunc(func() {})
	if c.cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
	}
	return c.client.R().SetContext(ctx), cancel
}

func decodeResponse[T any](res *resty.Response, err error, endpoint string) (T, error) {
	var data T
	if err != nil {
		slog.Error("unable to reach backend", "endpoint", endpoint, "error", err)
		return data, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}

	if !res.IsSuccess() {
		slog.Error("backend returned error", "endpoint", endpoint, "status_code", res.StatusCode(), "body", res.String())
		return data, &StatusError{Code: res.StatusCode(), Body: res.String()}
	}

	if err := json.Unmarshal(res.Body(), &data); err != nil {
		slog.Error("error parsing response from backend", "endpoint", endpoint, "error", err)
		return data, fmt.Errorf("%w: invalid response body: %w", ErrRequestFailed, err)
	}

	return data, nil
}

// Predict uploads one image as the multipart field "image".
func (c *Client) Predict(ctx context.Context, image File) (api.PredictResponse, error) {
	reader, err := image.Open()
	if err != nil {
		return api.PredictResponse{}, fmt.Errorf("error opening image %s: %w", image.Name(), err)
	}
	defer reader.Close()

	req, cancel := c.request(ctx)
	defer cancel()

	res, err := req.
		SetFileReader(api.ImageField, image.Name(), reader).
		Post(c.cfg.PredictURL)

	return decodeResponse[api.PredictResponse](res, err, c.cfg.PredictURL)
}

// Train uploads the four dataset files in one multipart request.
func (c *Client) Train(ctx context.Context, dataset Dataset) (api.TrainResponse, error) {
	if missing := dataset.Missing(); len(missing) > 0 {
		return api.TrainResponse{}, fmt.Errorf("missing dataset files: %v", missing)
	}

	req, cancel := c.request(ctx)
	defer cancel()

	var readers []io.Closer
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()

	for _, part := range dataset.parts() {
		reader, err := part.file.Open()
		if err != nil {
			return api.TrainResponse{}, fmt.Errorf("error opening %s file %s: %w", part.field, part.file.Name(), err)
		}
		readers = append(readers, reader)
		req.SetFileReader(part.field, part.filename, reader)
	}

	res, err := req.Post(c.cfg.TrainURL)

	return decodeResponse[api.TrainResponse](res, err, c.cfg.TrainURL)
}

func (c *Client) Status(ctx context.Context) (api.StatusResponse, error) {
	req, cancel := c.request(ctx)
	defer cancel()

	res, err := req.Get(c.cfg.StatusURL)

	return decodeResponse[api.StatusResponse](res, err, c.cfg.StatusURL)
}
