package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/ducphuonguit/federated-learning/cmd"
	"github.com/ducphuonguit/federated-learning/internal/client"
	"github.com/ducphuonguit/federated-learning/internal/config"
	"github.com/ducphuonguit/federated-learning/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	cmd.LoadEnvFile()

	cfg, err := config.LoadClientConfig()
	if err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	// The terminal belongs to the ui, so logs only go to the file.
	logFile, err := cmd.RedirectLogs(cfg.LogFile, false)
	if err != nil {
		log.Fatalf("error setting up logging: %v", err)
	}
	defer logFile.Close()

	slog.Info("starting console", "predict_url", cfg.PredictURL, "train_url", cfg.TrainURL, "status_url", cfg.StatusURL)

	backend := client.New(cfg.Client())
	model := tui.NewModel(backend, backend, cfg.PollInterval)

	if err := tui.Run(model, tea.WithAltScreen()); err != nil {
		slog.Error("console exited with error", "error", err)
		logFile.Close()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
