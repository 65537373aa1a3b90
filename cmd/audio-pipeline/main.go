// main package for the audio-pipeline service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/audio-pipeline/internal/config"
	"github.com/book-expert/audio-pipeline/internal/worker"
	"github.com/book-expert/logger"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), "audio-pipeline-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Pick up credentials from a local .env, if there is one
	envErr := godotenv.Load()
	if envErr != nil && !os.IsNotExist(envErr) {
		bootstrapLog.Warn("Failed to read .env file: %v", envErr)
	}

	// 3. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 4. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, "audio-pipeline.log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Connect to NATS
	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name("audio-pipeline"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	// 6. Build the artifact store and the orchestrator with every backend that came up
	store, err := newStore(cfg, natsConnection, os.Getenv)
	if err != nil {
		return err
	}

	orchestrator, err := newOrchestrator(ctx, cfg, store, os.Getenv, finalLog)
	if err != nil {
		return err
	}

	natsWorker, err := worker.NewNatsWorker(
		natsConnection,
		worker.Subjects{
			Run:        cfg.NATS.RunSubject,
			Languages:  cfg.NATS.LanguagesSubject,
			Characters: cfg.NATS.CharactersSubject,
			Artifact:   cfg.NATS.ArtifactSubject,
		},
		cfg.NATS.QueueGroup,
		orchestrator,
		cfg.Pipeline.RequestTimeout(),
		finalLog,
	)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	finalLog.System("Audio-Pipeline successfully initialized. Listening for work items on subject: %s",
		cfg.NATS.RunSubject)

	// 7. Serve until interrupted
	runErr := natsWorker.Run(ctx)
	if runErr != nil {
		return fmt.Errorf("worker stopped with error: %w", runErr)
	}

	finalLog.System("Audio-Pipeline shut down cleanly.")

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
