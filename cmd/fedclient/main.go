package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ducphuonguit/federated-learning/cmd"
	"github.com/ducphuonguit/federated-learning/internal/client"
	"github.com/ducphuonguit/federated-learning/internal/config"
	"github.com/ducphuonguit/federated-learning/internal/widget"

	"github.com/schollz/progressbar/v3"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage:
  fedclient [-env file] predict -image <path>
  fedclient [-env file] train -train-images <path> -train-labels <path> -test-images <path> -test-labels <path>
`)
}

// notifyChanges returns an onChange hook that never blocks the widget.
func notifyChanges() (func(), <-chan struct{}) {
	changed := make(chan struct{}, 1)
	return func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}, changed
}

func runPredict(ctx context.Context, backend *client.Client, args []string) error {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	image := fs.String("image", "", "image file to classify")
	if err := fs.Parse(args); err != nil {
		return err
	}

	w := widget.NewPredictWidget(backend, widget.WithNotifier(widget.LogNotifier{}))
	defer w.Close()

	if *image != "" {
		w.SelectFile(client.LocalFile(*image))
	}

	err := w.Submit(ctx)
	fmt.Print(w.View())
	return err
}

func runTrain(ctx context.Context, backend *client.Client, cfg config.ClientConfig, args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	paths := map[widget.Slot]*string{
		widget.TrainImages: fs.String("train-images", "", "train images idx file"),
		widget.TrainLabels: fs.String("train-labels", "", "train labels idx file"),
		widget.TestImages:  fs.String("test-images", "", "test images idx file"),
		widget.TestLabels:  fs.String("test-labels", "", "test labels idx file"),
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	onChange, changed := notifyChanges()
	w := widget.NewTrainWidget(backend,
		widget.WithNotifier(widget.LogNotifier{}),
		widget.WithPollInterval(cfg.PollInterval),
		widget.WithOnChange(onChange),
	)
	defer w.Close()

	for _, slot := range widget.Slots {
		if path := *paths[slot]; path != "" {
			w.SelectFile(slot, client.LocalFile(path))
		}
	}

	if err := w.Submit(ctx); err != nil {
		return err
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("⏳ training"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	defer bar.Finish() //nolint:errcheck

	for w.State().Polling {
		select {
		case <-changed:
			_ = bar.Add(1)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	fmt.Print(w.View())
	return nil
}

func main() {
	flag.Usage = usage
	cmd.LoadEnvFile()

	cfg, err := config.LoadClientConfig()
	if err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend := client.New(cfg.Client())

	switch args[0] {
	case "predict":
		err = runPredict(ctx, backend, args[1:])
	case "train":
		err = runTrain(ctx, backend, cfg, args[1:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Info("interrupted")
			os.Exit(130)
		}
		slog.Error("command failed", "command", args[0], "error", err)
		os.Exit(1)
	}
}
