package messaging

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

const TrainQueue = "train_queue"

var ErrQueueClosed = errors.New("queue is closed")

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

// TrainTaskPayload points the worker at a stored dataset. Prefix is the
// object store prefix holding the four raw MNIST files.
type TrainTaskPayload struct {
	RunId  uuid.UUID
	Prefix string
}

type Publisher interface {
	PublishTrainTask(ctx context.Context, payload TrainTaskPayload) error

	Close()
}

type Reciever interface {
	Tasks() <-chan Task

	Close()
}
