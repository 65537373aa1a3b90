// Package pipeline maps a WorkItem onto an ordered sequence of stages and
// normalizes every outcome into a core.PipelineResult.
//
// Stages within one WorkItem run strictly in order; each stage's bytes are
// complete before the next stage reads them. Collaborator errors never leave
// this package raw: they are converted into a *core.Failure of the kind that
// matches the failing stage.
package pipeline

import (
	"context"
	"time"

	"github.com/book-expert/audio-pipeline/internal/catalog"
	"github.com/book-expert/audio-pipeline/internal/core"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
)

const (
	defaultReferencePrefix   = "/audio_output/"
	defaultStageTimeout      = 120 * time.Second
	defaultMaxBlockingStages = 4
	defaultCloneText         = "Hello, this is my cloned voice speaking."
)

// Orchestrator runs WorkItems against its collaborators. A nil collaborator
// means the capability is not available in this process; requests needing it
// fail with ServiceUnavailable.
type Orchestrator struct {
	store      core.ObjectStore
	voices     *catalog.Catalog
	denoiser   core.Denoiser
	translator core.Translator
	offline    core.SpeechSynthesizer
	online     core.SpeechSynthesizer
	cloner     core.SpeechSynthesizer
	log        *logger.Logger

	enabled          map[core.Mode]bool
	referencePrefix  string
	stageTimeout     time.Duration
	maxRetries       int
	blockingSlots    chan struct{}
	defaultCloneText string
	newToken         func() string
}

// Option configures an Orchestrator during construction.
type Option func(*Orchestrator)

// WithDenoiser sets the denoise stage.
func WithDenoiser(d core.Denoiser) Option {
	return func(o *Orchestrator) { o.denoiser = d }
}

// WithTranslator sets the translate stage.
func WithTranslator(t core.Translator) Option {
	return func(o *Orchestrator) { o.translator = t }
}

// WithOfflineEngine sets the local TTS backend.
func WithOfflineEngine(s core.SpeechSynthesizer) Option {
	return func(o *Orchestrator) { o.offline = s }
}

// WithOnlineEngine sets the remote neural TTS backend.
func WithOnlineEngine(s core.SpeechSynthesizer) Option {
	return func(o *Orchestrator) { o.online = s }
}

// WithCloningEngine sets the voice cloning backend. Leave it unset when the
// cloning model failed to initialize.
func WithCloningEngine(s core.SpeechSynthesizer) Option {
	return func(o *Orchestrator) { o.cloner = s }
}

// WithEnabledModes restricts the modes this orchestrator accepts.
func WithEnabledModes(modes ...core.Mode) Option {
	return func(o *Orchestrator) {
		o.enabled = make(map[core.Mode]bool, len(modes))
		for _, mode := range modes {
			o.enabled[mode] = true
		}
	}
}

// WithReferencePrefix sets the prefix used to turn artifact names into references.
func WithReferencePrefix(prefix string) Option {
	return func(o *Orchestrator) { o.referencePrefix = prefix }
}

// WithStageTimeout bounds each attempt of a suspending stage.
func WithStageTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.stageTimeout = d }
}

// WithMaxRetries sets how many extra attempts a suspending stage gets.
func WithMaxRetries(n int) Option {
	return func(o *Orchestrator) { o.maxRetries = n }
}

// WithMaxBlockingStages bounds how many blocking stages run at once across requests.
func WithMaxBlockingStages(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.blockingSlots = make(chan struct{}, n)
		}
	}
}

// WithDefaultCloneText sets the text spoken by CloneVoice when the item has none.
func WithDefaultCloneText(text string) Option {
	return func(o *Orchestrator) { o.defaultCloneText = text }
}

// WithTokenSource replaces the uuid token generator.
func WithTokenSource(fn func() string) Option {
	return func(o *Orchestrator) { o.newToken = fn }
}

// New creates an Orchestrator over the given store and voice catalog.
func New(store core.ObjectStore, voices *catalog.Catalog, log *logger.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:  store,
		voices: voices,
		log:    log,
		enabled: map[core.Mode]bool{
			core.ModeDenoise:      true,
			core.ModeTranslate:    true,
			core.ModeTextToSpeech: true,
			core.ModeCloneVoice:   true,
		},
		referencePrefix:  defaultReferencePrefix,
		stageTimeout:     defaultStageTimeout,
		blockingSlots:    make(chan struct{}, defaultMaxBlockingStages),
		defaultCloneText: defaultCloneText,
		newToken:         uuid.NewString,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Run executes one WorkItem and returns either its outputs or a Failure.
func (o *Orchestrator) Run(ctx context.Context, item core.WorkItem) core.PipelineResult {
	started := time.Now()

	outputs, failure := o.dispatch(ctx, item)
	if failure != nil {
		o.log.Warn("Work item %s failed after %s: %s", item.Mode, time.Since(started), failure.Error())

		return core.Failed(failure)
	}

	o.log.Info("Work item %s succeeded in %s", item.Mode, time.Since(started))

	return core.Succeeded(outputs)
}

// Available reports whether mode can be served at all, before any input is
// looked at. Unknown modes are ValidationErrors; disabled modes and modes whose
// backend is missing are ServiceUnavailable. Callers that accept uploads check
// this first so a request that cannot run never writes anything.
func (o *Orchestrator) Available(mode core.Mode) *core.Failure {
	parsed, err := core.ParseMode(string(mode))
	if err != nil {
		return core.NewFailure(core.KindValidation, "%v", err)
	}

	if !o.enabled[parsed] {
		return core.NewFailure(core.KindServiceUnavailable, "mode %q is not enabled on this service", parsed)
	}

	switch parsed {
	case core.ModeDenoise:
		if o.denoiser == nil {
			return core.NewFailure(core.KindServiceUnavailable, "denoising is not available on this service")
		}
	case core.ModeTranslate:
		if o.translator == nil {
			return core.NewFailure(core.KindServiceUnavailable, "translation is not available on this service")
		}
	case core.ModeTextToSpeech:
		if o.offline == nil && o.online == nil {
			return core.NewFailure(core.KindServiceUnavailable, "no speech engine is available on this service")
		}
	case core.ModeCloneVoice:
		if o.cloner == nil {
			return core.NewFailure(core.KindServiceUnavailable, "voice cloning model is not loaded")
		}
	}

	return nil
}

func (o *Orchestrator) dispatch(ctx context.Context, item core.WorkItem) (map[string]string, *core.Failure) {
	failure := o.Available(item.Mode)
	if failure != nil {
		return nil, failure
	}

	mode, _ := core.ParseMode(string(item.Mode))

	switch mode {
	case core.ModeDenoise:
		return o.runDenoise(ctx, item)
	case core.ModeTranslate:
		return o.runTranslate(ctx, item)
	case core.ModeTextToSpeech:
		return o.runTextToSpeech(ctx, item)
	case core.ModeCloneVoice:
		return o.runCloneVoice(ctx, item)
	}

	return nil, core.NewFailure(core.KindValidation, "unhandled mode %q", mode)
}
