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

type PredictState struct {
	Filename   string
	Prediction *api.Prediction
	Error      string
	Submitting bool
}

// PredictWidget uploads one image and holds the returned prediction.
type PredictWidget struct {
	predictor Predictor
	opts      options
	lifetime  lifetime

	mu         sync.Mutex
	file       client.File
	selection  int
	prediction *api.Prediction
	errMsg     string
	submitting bool
	closed     bool
}

func NewPredictWidget(predictor Predictor, opts ...Option) *PredictWidget {
	return &PredictWidget{
		predictor: predictor,
		opts:      buildOptions(opts),
		lifetime:  newLifetime(),
	}
}

// SelectFile replaces the selected image and clears any previous prediction
// or error. A nil file clears the selection.
func (w *PredictWidget) SelectFile(file client.File) {
	w.mu.Lock()
	w.file = file
	w.selection++
	w.prediction = nil
	w.errMsg = ""
	w.mu.Unlock()

	w.opts.onChange()
}

func (w *PredictWidget) Submit(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWidgetClosed
	}
	if w.submitting {
		w.mu.Unlock()
		return ErrSubmissionInFlight
	}

	w.errMsg = ""
	if w.file == nil {
		w.errMsg = msgNoImageSelected
		w.mu.Unlock()
		w.opts.onChange()
		return ErrNoFileSelected
	}

	file, selection := w.file, w.selection
	w.submitting = true
	w.mu.Unlock()
	w.opts.onChange()

	ctx, release := w.lifetime.bind(ctx)
	defer release()

	res, err := w.predictor.Predict(ctx, file)

	w.mu.Lock()
	w.submitting = false
	if w.closed || selection != w.selection {
		w.mu.Unlock()
		w.opts.onChange()
		return ErrSelectionChanged
	}

	if err != nil {
		slog.Error("error predicting image", "file", file.Name(), "error", err)
		w.prediction = nil
		w.errMsg = msgPredictFailed
		w.mu.Unlock()
		w.opts.onChange()
		return fmt.Errorf("error predicting image %s: %w", file.Name(), err)
	}

	prediction := res.Predicted
	w.prediction = &prediction
	w.mu.Unlock()

	w.opts.notifier.Notify(Notification{Level: LevelSuccess, Message: msgPredictSucceeded})
	w.opts.onChange()
	return nil
}

func (w *PredictWidget) State() PredictState {
	w.mu.Lock()
	defer w.mu.Unlock()

	state := PredictState{Error: w.errMsg, Submitting: w.submitting}
	if w.file != nil {
		state.Filename = w.file.Name()
	}
	if w.prediction != nil {
		p := *w.prediction
		state.Prediction = &p
	}
	return state
}

func (w *PredictWidget) View() string {
	state := w.State()

	var b strings.Builder
	if state.Filename != "" {
		fmt.Fprintf(&b, "Image: %s\n", state.Filename)
	}
	if state.Submitting {
		b.WriteString("Predicting...\n")
	}
	if state.Prediction != nil {
		fmt.Fprintf(&b, "Predicted Value: %s\n", state.Prediction)
	}
	if state.Error != "" {
		fmt.Fprintf(&b, "%s\n", state.Error)
	}
	return b.String()
}

// Close cancels an in-flight prediction. The widget rejects further
// submissions.
func (w *PredictWidget) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	w.lifetime.cancel()
}
