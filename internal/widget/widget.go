// Package widget holds the submission and polling logic of the predict and
// train widgets, independent of how they are rendered.
package widget

import (
	"context"
	"errors"
	"time"

	"github.com/ducphuonguit/federated-learning/internal/client"
	"github.com/ducphuonguit/federated-learning/pkg/api"
)

var (
	ErrNoFileSelected      = errors.New("no image file selected")
	ErrMissingDatasetFiles = errors.New("all four dataset files are required")
	ErrSubmissionInFlight  = errors.New("a submission is already in flight")
	ErrSelectionChanged    = errors.New("file selection changed during submission")
	ErrWidgetClosed        = errors.New("widget is closed")
)

const DefaultPollInterval = time.Second

type Predictor interface {
	Predict(ctx context.Context, image client.File) (api.PredictResponse, error)
}

type TrainingBackend interface {
	Train(ctx context.Context, dataset client.Dataset) (api.TrainResponse, error)

	Status(ctx context.Context) (api.StatusResponse, error)
}

type options struct {
	notifier     Notifier
	onChange     func()
	pollInterval time.Duration
	newTicker    func(time.Duration) Ticker
}

type Option func(*options)

func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithOnChange registers a callback invoked after every state change. It is
// called without any widget lock held and may be called from the poll
// goroutine.
func WithOnChange(fn func()) Option {
	return func(o *options) { o.onChange = fn }
}

func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

func WithTicker(newTicker func(time.Duration) Ticker) Option {
	return func(o *options) { o.newTicker = newTicker }
}

func buildOptions(opts []Option) options {
	o := options{
		notifier:     LogNotifier{},
		onChange:     func() {},
		pollInterval: DefaultPollInterval,
		newTicker:    NewTimeTicker,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.pollInterval <= 0 {
		o.pollInterval = DefaultPollInterval
	}
	return o
}

// lifetime ties requests to the widget so that Close cancels them.
type lifetime struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func newLifetime() lifetime {
	ctx, cancel := context.WithCancel(context.Background())
	return lifetime{ctx: ctx, cancel: cancel}
}

func (l lifetime) bind(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(l.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
