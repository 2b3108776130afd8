package widget_test

import (
	"context"
	"sync"
	"time"

	"github.com/ducphuonguit/federated-learning/internal/client"
	"github.com/ducphuonguit/federated-learning/internal/widget"
	"github.com/ducphuonguit/federated-learning/pkg/api"
)

type recorder struct {
	mu            sync.Mutex
	notifications []widget.Notification
}

func (r *recorder) Notify(n widget.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

func (r *recorder) all() []widget.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]widget.Notification(nil), r.notifications...)
}

func (r *recorder) count(level widget.Level) int {
	n := 0
	for _, notification := range r.all() {
		if notification.Level == level {
			n++
		}
	}
	return n
}

type manualTicker struct {
	c       chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func newManualTicker() *manualTicker {
	return &manualTicker{c: make(chan time.Time), stopped: make(chan struct{})}
}

func (t *manualTicker) C() <-chan time.Time {
	return t.c
}

func (t *manualTicker) Stop() {
	t.once.Do(func() { close(t.stopped) })
}

// tick delivers one tick and reports whether the poll goroutine accepted it.
func (t *manualTicker) tick(timeout time.Duration) bool {
	select {
	case t.c <- time.Now():
		return true
	case <-time.After(timeout):
		return false
	}
}

func (t *manualTicker) isStopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}

type fakePredictor struct {
	mu       sync.Mutex
	calls    []string
	response api.PredictResponse
	err      error
	block    chan struct{}
}

func (p *fakePredictor) Predict(ctx context.Context, image client.File) (api.PredictResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, image.Name())
	block, res, err := p.block, p.response, p.err
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return api.PredictResponse{}, ctx.Err()
		}
	}
	return res, err
}

func (p *fakePredictor) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type statusReply struct {
	status string
	err    error
}

type fakeTrainingBackend struct {
	mu          sync.Mutex
	trainCalls  []client.Dataset
	trainStatus string
	trainErr    error
	replies     []statusReply
	statusCalls int
}

func (b *fakeTrainingBackend) Train(ctx context.Context, dataset client.Dataset) (api.TrainResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trainCalls = append(b.trainCalls, dataset)
	if b.trainErr != nil {
		return api.TrainResponse{}, b.trainErr
	}
	return api.TrainResponse{Status: b.trainStatus}, nil
}

func (b *fakeTrainingBackend) Status(ctx context.Context) (api.StatusResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	reply := statusReply{status: api.StatusTraining}
	if b.statusCalls < len(b.replies) {
		reply = b.replies[b.statusCalls]
	}
	b.statusCalls++

	if reply.err != nil {
		return api.StatusResponse{}, reply.err
	}
	return api.StatusResponse{Status: reply.status}, nil
}

func (b *fakeTrainingBackend) counts() (train int, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.trainCalls), b.statusCalls
}
