package widget_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ducphuonguit/federated-learning/internal/client"
	"github.com/ducphuonguit/federated-learning/internal/widget"
	"github.com/ducphuonguit/federated-learning/pkg/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tickTimeout = 100 * time.Millisecond

func newTestTrainWidget(backend widget.TrainingBackend, notifications widget.Notifier) (*widget.TrainWidget, *manualTicker) {
	ticker := newManualTicker()
	w := widget.NewTrainWidget(backend,
		widget.WithNotifier(notifications),
		widget.WithTicker(func(time.Duration) widget.Ticker { return ticker }),
	)
	return w, ticker
}

func selectAll(w *widget.TrainWidget) {
	for _, slot := range widget.Slots {
		w.SelectFile(slot, client.MemoryFile(slot.String()+".gz", []byte(slot.String())))
	}
}

func TestTrainMissingFiles(t *testing.T) {
	for _, missing := range widget.Slots {
		t.Run(missing.String(), func(t *testing.T) {
			backend := &fakeTrainingBackend{trainStatus: "Training started"}
			notifications := &recorder{}
			w, _ := newTestTrainWidget(backend, notifications)
			defer w.Close()

			for _, slot := range widget.Slots {
				if slot != missing {
					w.SelectFile(slot, client.MemoryFile("f", nil))
				}
			}

			assert.ErrorIs(t, w.Submit(context.Background()), widget.ErrMissingDatasetFiles)

			trainCalls, statusCalls := backend.counts()
			assert.Equal(t, 0, trainCalls)
			assert.Equal(t, 0, statusCalls)
			assert.False(t, w.State().Polling)
			assert.Equal(t, []widget.Notification{{Level: widget.LevelError, Message: "All four files are required."}}, notifications.all())
		})
	}
}

func TestTrainSubmitStartsPolling(t *testing.T) {
	backend := &fakeTrainingBackend{trainStatus: "Training started"}
	notifications := &recorder{}
	w, _ := newTestTrainWidget(backend, notifications)
	defer w.Close()

	selectAll(w)
	require.NoError(t, w.Submit(context.Background()))

	trainCalls, _ := backend.counts()
	assert.Equal(t, 1, trainCalls)
	assert.Empty(t, backend.trainCalls[0].Missing())

	state := w.State()
	assert.True(t, state.Polling)
	assert.Equal(t, "Training started", state.Status)
	assert.Contains(t, w.View(), "Status: Training started")
	assert.Equal(t, []widget.Notification{{Level: widget.LevelSuccess, Message: "Files uploaded successfully!"}}, notifications.all())
}

func TestTrainUploadFailure(t *testing.T) {
	backend := &fakeTrainingBackend{trainErr: errors.New("connection refused")}
	notifications := &recorder{}
	w, ticker := newTestTrainWidget(backend, notifications)
	defer w.Close()

	selectAll(w)
	assert.Error(t, w.Submit(context.Background()))

	assert.False(t, w.State().Polling)
	assert.False(t, ticker.tick(tickTimeout), "no poller is running")
	assert.Equal(t, []widget.Notification{{Level: widget.LevelError, Message: "Failed to upload files."}}, notifications.all())
}

func TestPollingOneRequestPerTick(t *testing.T) {
	backend := &fakeTrainingBackend{trainStatus: "Training started"}
	w, ticker := newTestTrainWidget(backend, &recorder{})
	defer w.Close()

	selectAll(w)
	require.NoError(t, w.Submit(context.Background()))

	_, statusCalls := backend.counts()
	assert.Equal(t, 0, statusCalls, "no request before the first tick")

	for i := 1; i <= 3; i++ {
		require.True(t, ticker.tick(time.Second))
		require.Eventually(t, func() bool {
			_, n := backend.counts()
			return n == i
		}, time.Second, time.Millisecond)
	}

	assert.True(t, w.State().Polling)
	assert.Equal(t, api.StatusTraining, w.State().Status)
}

func TestPollingStopsOnIdle(t *testing.T) {
	backend := &fakeTrainingBackend{
		trainStatus: "Training started",
		replies:     []statusReply{{status: api.StatusTraining}, {status: api.StatusIdle}},
	}
	notifications := &recorder{}
	w, ticker := newTestTrainWidget(backend, notifications)
	defer w.Close()

	selectAll(w)
	require.NoError(t, w.Submit(context.Background()))

	require.True(t, ticker.tick(time.Second))
	require.True(t, ticker.tick(time.Second))

	require.Eventually(t, func() bool { return !w.State().Polling }, time.Second, time.Millisecond)
	require.Eventually(t, ticker.isStopped, time.Second, time.Millisecond)

	assert.False(t, ticker.tick(tickTimeout))
	_, statusCalls := backend.counts()
	assert.Equal(t, 2, statusCalls)
	assert.Equal(t, api.StatusIdle, w.State().Status)

	last := notifications.all()[len(notifications.all())-1]
	assert.Equal(t, widget.Notification{Level: widget.LevelSuccess, Message: "Training completed!"}, last)
}

func TestPollingFailureKeepsPolling(t *testing.T) {
	backend := &fakeTrainingBackend{
		trainStatus: "Training started",
		replies: []statusReply{
			{err: errors.New("connection refused")},
			{status: api.StatusTraining},
		},
	}
	notifications := &recorder{}
	w, ticker := newTestTrainWidget(backend, notifications)
	defer w.Close()

	selectAll(w)
	require.NoError(t, w.Submit(context.Background()))

	require.True(t, ticker.tick(time.Second))
	require.Eventually(t, func() bool { return notifications.count(widget.LevelError) == 1 }, time.Second, time.Millisecond)
	assert.True(t, w.State().Polling)
	assert.Equal(t, "Training started", w.State().Status)

	require.True(t, ticker.tick(time.Second))
	require.Eventually(t, func() bool {
		_, n := backend.counts()
		return n == 2
	}, time.Second, time.Millisecond)
	assert.Contains(t, notifications.all(), widget.Notification{Level: widget.LevelError, Message: "Failed to fetch status."})
}

func TestCloseStopsPolling(t *testing.T) {
	backend := &fakeTrainingBackend{trainStatus: "Training started"}
	w, ticker := newTestTrainWidget(backend, &recorder{})

	selectAll(w)
	require.NoError(t, w.Submit(context.Background()))
	require.True(t, ticker.tick(time.Second))
	require.Eventually(t, func() bool {
		_, n := backend.counts()
		return n == 1
	}, time.Second, time.Millisecond)

	w.Close()

	assert.True(t, ticker.isStopped())
	assert.False(t, ticker.tick(tickTimeout))
	_, statusCalls := backend.counts()
	assert.Equal(t, 1, statusCalls)
	assert.False(t, w.State().Polling)
	assert.ErrorIs(t, w.Submit(context.Background()), widget.ErrWidgetClosed)
}

func TestResubmitWhilePollingKeepsOnePoller(t *testing.T) {
	backend := &fakeTrainingBackend{trainStatus: "Training started"}
	tickers := 0
	ticker := newManualTicker()
	w := widget.NewTrainWidget(backend,
		widget.WithNotifier(&recorder{}),
		widget.WithTicker(func(time.Duration) widget.Ticker {
			tickers++
			return ticker
		}),
	)
	defer w.Close()

	selectAll(w)
	require.NoError(t, w.Submit(context.Background()))
	require.NoError(t, w.Submit(context.Background()))

	trainCalls, _ := backend.counts()
	assert.Equal(t, 2, trainCalls)
	assert.Equal(t, 1, tickers)
}

func TestTrainAndPollOverHTTP(t *testing.T) {
	var posts, gets, getsAfterIdle atomic.Int32
	var idle atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("/train", func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		for _, field := range []string{api.TrainImagesField, api.TrainLabelsField, api.TestImagesField, api.TestLabelsField} {
			assert.Contains(t, r.MultipartForm.File, field)
		}
		w.Write([]byte(`{"status": "Training started"}`)) //nolint:errcheck
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if idle.Load() {
			getsAfterIdle.Add(1)
		}
		if gets.Add(1) >= 3 {
			idle.Store(true)
			w.Write([]byte(`{"status": "idle"}`)) //nolint:errcheck
			return
		}
		w.Write([]byte(`{"status": "training"}`)) //nolint:errcheck
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	backend := client.New(client.Config{TrainURL: server.URL + "/train", StatusURL: server.URL + "/status"})
	w := widget.NewTrainWidget(backend, widget.WithNotifier(&recorder{}), widget.WithPollInterval(10*time.Millisecond))
	defer w.Close()

	selectAll(w)
	require.NoError(t, w.Submit(context.Background()))
	assert.Equal(t, int32(1), posts.Load())

	require.Eventually(t, func() bool { return !w.State().Polling }, 5*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(3), gets.Load())
	assert.Equal(t, int32(0), getsAfterIdle.Load())
	assert.Equal(t, api.StatusIdle, w.State().Status)
}

func TestCloseOverHTTP(t *testing.T) {
	var gets atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/train", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "Training started"}`)) //nolint:errcheck
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		gets.Add(1)
		w.Write([]byte(`{"status": "training"}`)) //nolint:errcheck
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	backend := client.New(client.Config{TrainURL: server.URL + "/train", StatusURL: server.URL + "/status"})
	w := widget.NewTrainWidget(backend, widget.WithNotifier(&recorder{}), widget.WithPollInterval(5*time.Millisecond))

	selectAll(w)
	require.NoError(t, w.Submit(context.Background()))
	require.Eventually(t, func() bool { return gets.Load() >= 2 }, 5*time.Second, time.Millisecond)

	w.Close()
	// a request written before Close may still reach the handler
	time.Sleep(20 * time.Millisecond)
	afterClose := gets.Load()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, afterClose, gets.Load())
}
