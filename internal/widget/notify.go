package widget

import "log/slog"

type Level int

const (
	LevelSuccess Level = iota
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Notification is a one-shot toast emitted by a widget.
type Notification struct {
	Level   Level
	Message string
}

type Notifier interface {
	Notify(n Notification)
}

type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) {
	f(n)
}

// LogNotifier writes notifications to the default slog logger.
type LogNotifier struct{}

func (LogNotifier) Notify(n Notification) {
	if n.Level == LevelError {
		slog.Error(n.Message)
		return
	}
	slog.Info(n.Message)
}

const (
	msgNoImageSelected  = "Please select an image file."
	msgPredictFailed    = "Failed to predict the image. Please try again."
	msgPredictSucceeded = "Predicted successfully"

	msgMissingDataset   = "All four files are required."
	msgUploadFailed     = "Failed to upload files."
	msgUploadSucceeded  = "Files uploaded successfully!"
	msgStatusFailed     = "Failed to fetch status."
	msgTrainingFinished = "Training completed!"
)
