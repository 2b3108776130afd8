package widget

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ducphuonguit/federated-learning/internal/client"
	"github.com/ducphuonguit/federated-learning/pkg/api"
)

type Slot int

const (
	TrainImages Slot = iota
	TrainLabels
	TestImages
	TestLabels
	slotCount
)

var Slots = []Slot{TrainImages, TrainLabels, TestImages, TestLabels}

func (s Slot) String() string {
	switch s {
	case TrainImages:
		return api.TrainImagesField
	case TrainLabels:
		return api.TrainLabelsField
	case TestImages:
		return api.TestImagesField
	case TestLabels:
		return api.TestLabelsField
	default:
		return fmt.Sprintf("slot(%d)", int(s))
	}
}

type TrainState struct {
	Files      map[Slot]string
	Status     string
	Polling    bool
	Submitting bool
}

// TrainWidget uploads the four MNIST files and then polls the training status
// until the backend reports idle.
type TrainWidget struct {
	backend  TrainingBackend
	opts     options
	lifetime lifetime

	mu         sync.Mutex
	files      [slotCount]client.File
	status     string
	submitting bool
	closed     bool

	poller *Poller
	// pollSession identifies the current poller so that a poll callback of a
	// stopped poller does not touch the state of a newer one.
	pollSession int
}

func NewTrainWidget(backend TrainingBackend, opts ...Option) *TrainWidget {
	return &TrainWidget{
		backend:  backend,
		opts:     buildOptions(opts),
		lifetime: newLifetime(),
	}
}

func (w *TrainWidget) SelectFile(slot Slot, file client.File) {
	if slot < 0 || slot >= slotCount {
		return
	}

	w.mu.Lock()
	w.files[slot] = file
	w.mu.Unlock()

	w.opts.onChange()
}

func (w *TrainWidget) dataset() client.Dataset {
	return client.Dataset{
		TrainImages: w.files[TrainImages],
		TrainLabels: w.files[TrainLabels],
		TestImages:  w.files[TestImages],
		TestLabels:  w.files[TestLabels],
	}
}

func (w *TrainWidget) Submit(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWidgetClosed
	}
	if w.submitting {
		w.mu.Unlock()
		return ErrSubmissionInFlight
	}

	dataset := w.dataset()
	if missing := dataset.Missing(); len(missing) > 0 {
		w.mu.Unlock()
		slog.Warn("dataset incomplete, not submitting", "missing", missing)
		w.opts.notifier.Notify(Notification{Level: LevelError, Message: msgMissingDataset})
		return ErrMissingDatasetFiles
	}

	w.submitting = true
	w.mu.Unlock()
	w.opts.onChange()

	ctx, release := w.lifetime.bind(ctx)
	defer release()

	res, err := w.backend.Train(ctx, dataset)

	w.mu.Lock()
	w.submitting = false
	if w.closed {
		w.mu.Unlock()
		return ErrWidgetClosed
	}

	if err != nil {
		w.mu.Unlock()
		slog.Error("error uploading dataset", "error", err)
		w.opts.notifier.Notify(Notification{Level: LevelError, Message: msgUploadFailed})
		w.opts.onChange()
		return fmt.Errorf("error uploading dataset: %w", err)
	}

	w.status = res.Status
	w.startPollingLocked()
	w.mu.Unlock()

	slog.Info("dataset uploaded, polling training status", "status", res.Status)
	w.opts.notifier.Notify(Notification{Level: LevelSuccess, Message: msgUploadSucceeded})
	w.opts.onChange()
	return nil
}

// startPollingLocked enters the polling state. It is a no-op when a poller is
// already running. w.mu must be held.
func (w *TrainWidget) startPollingLocked() {
	if w.poller != nil {
		return
	}

	w.pollSession++
	session := w.pollSession
	w.poller = StartPoller(w.opts.newTicker(w.opts.pollInterval), func(ctx context.Context) bool {
		return w.poll(ctx, session)
	})
}

func (w *TrainWidget) poll(ctx context.Context, session int) bool {
	res, err := w.backend.Status(ctx)
	if ctx.Err() != nil {
		return true
	}

	w.mu.Lock()
	if session != w.pollSession || w.poller == nil {
		w.mu.Unlock()
		return true
	}

	if err != nil {
		w.mu.Unlock()
		slog.Error("error fetching training status", "error", err)
		w.opts.notifier.Notify(Notification{Level: LevelError, Message: msgStatusFailed})
		return false
	}

	w.status = res.Status
	terminal := res.Status == api.StatusIdle
	if terminal {
		w.poller = nil
	}
	w.mu.Unlock()

	if terminal {
		slog.Info("training finished")
		w.opts.notifier.Notify(Notification{Level: LevelSuccess, Message: msgTrainingFinished})
	}
	w.opts.onChange()
	return terminal
}

func (w *TrainWidget) State() TrainState {
	w.mu.Lock()
	defer w.mu.Unlock()

	state := TrainState{
		Files:      make(map[Slot]string),
		Status:     w.status,
		Polling:    w.poller != nil,
		Submitting: w.submitting,
	}
	for _, slot := range Slots {
		if f := w.files[slot]; f != nil {
			state.Files[slot] = f.Name()
		}
	}
	return state
}

func (w *TrainWidget) View() string {
	state := w.State()

	var b strings.Builder
	for _, slot := range Slots {
		name, ok := state.Files[slot]
		if !ok {
			name = "(none)"
		}
		fmt.Fprintf(&b, "%s: %s\n", slot, name)
	}
	if state.Submitting {
		b.WriteString("Uploading...\n")
	}
	if state.Status != "" {
		fmt.Fprintf(&b, "Status: %s\n", state.Status)
	}
	return b.String()
}

// Close stops polling and cancels an in-flight upload. Once Close returns no
// further status request is issued.
func (w *TrainWidget) Close() {
	w.mu.Lock()
	w.closed = true
	poller := w.poller
	w.poller = nil
	w.mu.Unlock()

	w.lifetime.cancel()
	if poller != nil {
		poller.Stop()
	}
}
