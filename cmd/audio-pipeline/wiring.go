package main

import (
	"context"
	"fmt"

	"github.com/book-expert/audio-pipeline/internal/catalog"
	"github.com/book-expert/audio-pipeline/internal/config"
	"github.com/book-expert/audio-pipeline/internal/core"
	"github.com/book-expert/audio-pipeline/internal/denoise"
	"github.com/book-expert/audio-pipeline/internal/objectstore"
	"github.com/book-expert/audio-pipeline/internal/pipeline"
	"github.com/book-expert/audio-pipeline/internal/synth"
	"github.com/book-expert/audio-pipeline/internal/translate"
	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
)

// S3 credentials are read from the environment (or .env), never from the project TOML.
const (
	envS3AccessKeyID     = "AWS_ACCESS_KEY_ID"
	envS3SecretAccessKey = "AWS_SECRET_ACCESS_KEY"
)

// newStore builds the artifact store selected by storage.backend.
func newStore(cfg *config.Config, natsConnection *nats.Conn, getenv func(string) string) (core.ObjectStore, error) {
	switch cfg.Storage.Backend {
	case config.StorageLocal:
		store, err := objectstore.NewLocal(cfg.Storage.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open local artifact store: %w", err)
		}

		return store, nil
	case config.StorageS3:
		client := objectstore.NewS3Client(objectstore.S3ClientOptions{
			Region:          cfg.Storage.S3.Region,
			Endpoint:        cfg.Storage.S3.Endpoint,
			UsePathStyle:    cfg.Storage.S3.UsePathStyle,
			AccessKeyID:     getenv(envS3AccessKeyID),
			SecretAccessKey: getenv(envS3SecretAccessKey),
		})

		return objectstore.NewS3(client, cfg.Storage.S3.Bucket, cfg.Storage.S3.Prefix), nil
	default:
		jetstreamContext, err := natsConnection.JetStream()
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}

		store, err := objectstore.NewNATS(jetstreamContext, cfg.NATS.ArtifactObjectStoreBucket)
		if err != nil {
			return nil, fmt.Errorf("failed to open NATS artifact store: %w", err)
		}

		return store, nil
	}
}

// newOrchestrator wires every backend the configuration enables. Backends that
// cannot start are left out and their modes answer ServiceUnavailable; only a
// broken voice catalog stops the service.
func newOrchestrator(
	ctx context.Context,
	cfg *config.Config,
	store core.ObjectStore,
	getenv func(string) string,
	log *logger.Logger,
) (*pipeline.Orchestrator, error) {
	voices, err := catalog.Builtin(cfg.Pipeline.DefaultCharacter)
	if err != nil {
		return nil, fmt.Errorf("failed to load character voices: %w", err)
	}

	modes := make([]core.Mode, 0, len(cfg.Pipeline.EnabledModes))
	for _, name := range cfg.Pipeline.EnabledModes {
		modes = append(modes, core.Mode(name))
	}

	opts := []pipeline.Option{
		pipeline.WithEnabledModes(modes...),
		pipeline.WithReferencePrefix(cfg.Pipeline.ReferencePrefix),
		pipeline.WithStageTimeout(cfg.Pipeline.StageTimeout()),
		pipeline.WithMaxRetries(cfg.Pipeline.MaxRetries),
		pipeline.WithMaxBlockingStages(cfg.Pipeline.MaxBlockingStages),
		pipeline.WithDefaultCloneText(cfg.Pipeline.DefaultCloneText),
		pipeline.WithDenoiser(denoise.New(cfg.Denoise.FFmpegPath, cfg.Denoise.Filter, nil, log)),
		pipeline.WithOfflineEngine(synth.NewOfflineEngine(cfg.OfflineTTS.EspeakPath, cfg.OfflineTTS.FFmpegPath, nil, log)),
	}

	onlineKey := getenv(cfg.OnlineTTS.APIKeyEnv)
	if onlineKey != "" {
		opts = append(opts, pipeline.WithOnlineEngine(
			synth.NewOnlineEngine(onlineKey, cfg.OnlineTTS.BaseURL, cfg.OnlineTTS.Model, log),
		))
	} else {
		log.Warn("%s is not set; the online TTS engine is disabled", cfg.OnlineTTS.APIKeyEnv)
	}

	translatorKey := getenv(cfg.Translator.APIKeyEnv)
	if translatorKey != "" {
		opts = append(opts, pipeline.WithTranslator(translate.New(translatorKey, cfg.Translator.BaseURL, translate.Models{
			Transcription: cfg.Translator.TranscriptionModel,
			Chat:          cfg.Translator.ChatModel,
			Speech:        cfg.Translator.SpeechModel,
		}, log)))
	} else {
		log.Warn("%s is not set; translation is disabled", cfg.Translator.APIKeyEnv)
	}

	cloner := newCloningEngine(ctx, cfg.Cloning, log)
	if cloner != nil {
		opts = append(opts, pipeline.WithCloningEngine(cloner))
	}

	return pipeline.New(store, voices, log, opts...), nil
}

// newCloningEngine initializes the cloning backend once. A nil result means
// the model is unavailable for the lifetime of the process.
func newCloningEngine(ctx context.Context, cfg config.CloningConfig, log *logger.Logger) *synth.CloningEngine {
	if cfg.ServiceURL == "" {
		log.Warn("Cloning service URL is not configured; voice cloning is unavailable")

		return nil
	}

	initCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	engine, err := synth.NewCloningEngine(initCtx, synth.CloningOptions{
		BaseURL:     cfg.ServiceURL,
		Language:    cfg.Language,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout(),
	}, log)
	if err != nil {
		log.Warn("Voice cloning is unavailable: %v", err)

		return nil
	}

	log.Info("Voice cloning model is loaded at %s", cfg.ServiceURL)

	return engine
}
