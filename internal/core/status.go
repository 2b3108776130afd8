package core

import (
	"errors"
	"sync"

	"github.com/ducphuonguit/federated-learning/pkg/api"

	"github.com/google/uuid"
)

var ErrTrainingInProgress = errors.New("training already in progress")

// StatusTracker records the run currently holding the trainer. At most one
// run trains at a time.
type StatusTracker struct {
	mu      sync.Mutex
	current *uuid.UUID
}

func NewStatusTracker() *StatusTracker {
	return &StatusTracker{}
}

func (t *StatusTracker) TryStart(runId uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil {
		return ErrTrainingInProgress
	}
	t.current = &runId
	return nil
}

// Finish releases the trainer if runId still holds it.
func (t *StatusTracker) Finish(runId uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil && *t.current == runId {
		t.current = nil
	}
}

// Current returns the status string reported by the status endpoint and the
// id of the running run, if any.
func (t *StatusTracker) Current() (string, *uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return api.StatusIdle, nil
	}
	id := *t.current
	return api.StatusTraining, &id
}
