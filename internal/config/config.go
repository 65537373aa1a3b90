// Package config provides the configuration structure for the audio-pipeline service.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Storage backend names.
const (
	StorageNATS  = "nats"
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Defaults applied by ApplyDefaults for values left empty in the project TOML.
const (
	defaultRunSubject        = "audio.pipeline.run"
	defaultLanguagesSubject  = "audio.pipeline.languages"
	defaultCharactersSubject = "audio.pipeline.characters"
	defaultArtifactSubject   = "audio.pipeline.artifact"
	defaultQueueGroup        = "audio-pipeline-workers"
	defaultArtifactBucket    = "AUDIO_ARTIFACTS"
	defaultReferencePrefix   = "/audio_output/"
	defaultStageTimeout      = 120
	defaultRequestTimeout    = 300
	defaultMaxBlockingStages = 4
	defaultCharacter         = "narrator"
	defaultCloneText         = "Hello, this is my cloned voice speaking."
	defaultCloneLanguage     = "en"
	defaultCloneTemperature  = 0.75
	defaultDenoiseFilter     = "highpass=f=80,afftdn=nf=-25"
	defaultFFmpegPath        = "ffmpeg"
	defaultEspeakPath        = "espeak-ng"
	defaultSpeechModel       = "tts-1"
	defaultTranscribeModel   = "whisper-1"
	defaultChatModel         = "gpt-4o-mini"
	defaultAPIKeyEnv         = "OPENAI_API_KEY"
)

var (
	// ErrNATSURLEmpty indicates that no NATS server URL was configured.
	ErrNATSURLEmpty = errors.New("nats url cannot be empty")
	// ErrUnknownStorageBackend indicates an unsupported storage backend name.
	ErrUnknownStorageBackend = errors.New("unknown storage backend")
	// ErrLocalDirEmpty indicates that the local storage backend has no directory.
	ErrLocalDirEmpty = errors.New("local storage directory cannot be empty")
	// ErrS3BucketEmpty indicates that the S3 storage backend has no bucket.
	ErrS3BucketEmpty = errors.New("s3 bucket cannot be empty")
	// ErrUnknownMode indicates that enabled_modes names an unknown mode.
	ErrUnknownMode = errors.New("unknown pipeline mode")
	// ErrNegativeRetries indicates a negative retry count.
	ErrNegativeRetries = errors.New("max_retries must be non-negative")
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                       string `toml:"url"`
	RunSubject                string `toml:"run_subject"`
	LanguagesSubject          string `toml:"languages_subject"`
	CharactersSubject         string `toml:"characters_subject"`
	ArtifactSubject           string `toml:"artifact_subject"`
	QueueGroup                string `toml:"queue_group"`
	ArtifactObjectStoreBucket string `toml:"artifact_object_store_bucket"`
}

// S3Config holds the configuration for the S3 artifact backend.
type S3Config struct {
	Bucket       string `toml:"bucket"`
	Prefix       string `toml:"prefix"`
	Region       string `toml:"region"`
	Endpoint     string `toml:"endpoint"`
	UsePathStyle bool   `toml:"use_path_style"`
}

// StorageConfig selects and configures the artifact store.
type StorageConfig struct {
	Backend  string   `toml:"backend"`
	LocalDir string   `toml:"local_dir"`
	S3       S3Config `toml:"s3"`
}

// PipelineConfig holds orchestrator policy.
type PipelineConfig struct {
	EnabledModes          []string `toml:"enabled_modes"`
	ReferencePrefix       string   `toml:"reference_prefix"`
	StageTimeoutSeconds   int      `toml:"stage_timeout_seconds"`
	RequestTimeoutSeconds int      `toml:"request_timeout_seconds"`
	MaxRetries            int      `toml:"max_retries"`
	MaxBlockingStages     int      `toml:"max_blocking_stages"`
	DefaultCharacter      string   `toml:"default_character"`
	DefaultCloneText      string   `toml:"default_clone_text"`
}

// DenoiseConfig holds the ffmpeg denoiser settings.
type DenoiseConfig struct {
	FFmpegPath string `toml:"ffmpeg_path"`
	Filter     string `toml:"filter"`
}

// OfflineTTSConfig holds the local espeak-ng engine settings.
type OfflineTTSConfig struct {
	EspeakPath string `toml:"espeak_path"`
	FFmpegPath string `toml:"ffmpeg_path"`
}

// OpenAIConfig holds the settings shared by the OpenAI-backed components.
type OpenAIConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKeyEnv string `toml:"api_key_env"`
}

// OnlineTTSConfig holds the remote neural engine settings.
type OnlineTTSConfig struct {
	OpenAIConfig

	Model string `toml:"model"`
}

// TranslatorConfig holds the speech translation settings.
type TranslatorConfig struct {
	OpenAIConfig

	TranscriptionModel string `toml:"transcription_model"`
	ChatModel          string `toml:"chat_model"`
	SpeechModel        string `toml:"speech_model"`
}

// CloningConfig holds the voice cloning inference server settings.
type CloningConfig struct {
	ServiceURL     string  `toml:"service_url"`
	Language       string  `toml:"language"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS       NATSConfig       `toml:"nats"`
	Storage    StorageConfig    `toml:"storage"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Denoise    DenoiseConfig    `toml:"denoise"`
	OfflineTTS OfflineTTSConfig `toml:"offline_tts"`
	OnlineTTS  OnlineTTSConfig  `toml:"online_tts"`
	Translator TranslatorConfig `toml:"translator"`
	Cloning    CloningConfig    `toml:"cloning"`
	Paths      PathsConfig      `toml:"paths"`
}

// Load loads the configuration for the audio-pipeline service.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &cfg, nil
}

// ApplyDefaults fills every optional field that was left empty.
func (c *Config) ApplyDefaults() {
	setString(&c.NATS.RunSubject, defaultRunSubject)
	setString(&c.NATS.LanguagesSubject, defaultLanguagesSubject)
	setString(&c.NATS.CharactersSubject, defaultCharactersSubject)
	setString(&c.NATS.ArtifactSubject, defaultArtifactSubject)
	setString(&c.NATS.QueueGroup, defaultQueueGroup)
	setString(&c.NATS.ArtifactObjectStoreBucket, defaultArtifactBucket)

	setString(&c.Storage.Backend, StorageNATS)

	if len(c.Pipeline.EnabledModes) == 0 {
		c.Pipeline.EnabledModes = []string{"denoise", "translate", "tts", "clone"}
	}

	setString(&c.Pipeline.ReferencePrefix, defaultReferencePrefix)
	setInt(&c.Pipeline.StageTimeoutSeconds, defaultStageTimeout)
	setInt(&c.Pipeline.RequestTimeoutSeconds, defaultRequestTimeout)
	setInt(&c.Pipeline.MaxBlockingStages, defaultMaxBlockingStages)
	setString(&c.Pipeline.DefaultCharacter, defaultCharacter)
	setString(&c.Pipeline.DefaultCloneText, defaultCloneText)

	setString(&c.Denoise.FFmpegPath, defaultFFmpegPath)
	setString(&c.Denoise.Filter, defaultDenoiseFilter)

	setString(&c.OfflineTTS.EspeakPath, defaultEspeakPath)
	setString(&c.OfflineTTS.FFmpegPath, defaultFFmpegPath)

	setString(&c.OnlineTTS.Model, defaultSpeechModel)
	setString(&c.OnlineTTS.APIKeyEnv, defaultAPIKeyEnv)

	setString(&c.Translator.TranscriptionModel, defaultTranscribeModel)
	setString(&c.Translator.ChatModel, defaultChatModel)
	setString(&c.Translator.SpeechModel, defaultSpeechModel)
	setString(&c.Translator.APIKeyEnv, defaultAPIKeyEnv)

	setString(&c.Cloning.Language, defaultCloneLanguage)
	setInt(&c.Cloning.TimeoutSeconds, defaultStageTimeout)

	if c.Cloning.Temperature == 0 {
		c.Cloning.Temperature = defaultCloneTemperature
	}
}

// Validate reports the first structural problem in the configuration.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return ErrNATSURLEmpty
	}

	switch c.Storage.Backend {
	case StorageNATS:
	case StorageLocal:
		if c.Storage.LocalDir == "" {
			return ErrLocalDirEmpty
		}
	case StorageS3:
		if c.Storage.S3.Bucket == "" {
			return ErrS3BucketEmpty
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStorageBackend, c.Storage.Backend)
	}

	for _, mode := range c.Pipeline.EnabledModes {
		switch mode {
		case "denoise", "translate", "tts", "clone":
		default:
			return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
		}
	}

	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("%w: got %d", ErrNegativeRetries, c.Pipeline.MaxRetries)
	}

	return nil
}

// StageTimeout returns the per-stage timeout for suspending stages.
func (p PipelineConfig) StageTimeout() time.Duration {
	return time.Duration(p.StageTimeoutSeconds) * time.Second
}

// RequestTimeout returns the upper bound for handling one request end to end.
func (p PipelineConfig) RequestTimeout() time.Duration {
	return time.Duration(p.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the HTTP timeout used against the cloning server.
func (c CloningConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func setString(target *string, fallback string) {
	if *target == "" {
		*target = fallback
	}
}

func setInt(target *int, fallback int) {
	if *target == 0 {
		*target = fallback
	}
}
