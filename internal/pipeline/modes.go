package pipeline

import (
	"context"
	"errors"
	"maps"
	"strings"

	"github.com/book-expert/audio-pipeline/internal/core"
)

// Stage names used in logs and failure messages.
const (
	stageDenoise   = "denoise"
	stageTranslate = "translate"
	stageOffline   = "offline synthesis"
	stageOnline    = "online synthesis"
	stageClone     = "voice cloning"
)

func (o *Orchestrator) runDenoise(ctx context.Context, item core.WorkItem) (map[string]string, *core.Failure) {
	audio, original, failure := o.loadInput(ctx, item.Input, core.KindProcessing)
	if failure != nil {
		return nil, failure
	}

	cleaned, err := runBlocking(ctx, o, stageDenoise, func(stageCtx context.Context) ([]byte, error) {
		return o.denoiser.Denoise(stageCtx, audio, Extension(original))
	})
	if err != nil {
		return nil, core.NewFailure(core.KindProcessing, "%v", err)
	}

	if len(cleaned) == 0 {
		return nil, core.NewFailure(core.KindProcessing, "%s produced no audio", stageDenoise)
	}

	name := cleanedName(o.newToken(), original)

	uploadErr := o.store.Upload(ctx, name, cleaned)
	if uploadErr != nil {
		return nil, core.NewFailure(core.KindProcessing, "failed to store cleaned audio: %v", uploadErr)
	}

	return map[string]string{core.OutputAudioReference: o.Reference(name)}, nil
}

func (o *Orchestrator) runTranslate(ctx context.Context, item core.WorkItem) (map[string]string, *core.Failure) {
	audio, original, failure := o.loadInput(ctx, item.Input, core.KindTranslation)
	if failure != nil {
		return nil, failure
	}

	request := core.TranslationRequest{
		Audio:       audio,
		Filename:    original,
		SourceLang:  item.SourceLang,
		TargetLang:  item.TargetLang,
		VoiceOption: item.VoiceOption,
	}

	result, err := runSuspending(ctx, o, stageTranslate, func(stageCtx context.Context) (*core.TranslationResult, error) {
		return o.translator.TranslateAndResynthesize(stageCtx, request)
	})
	if err != nil {
		return nil, core.NewFailure(core.KindTranslation, "%v", err)
	}

	// A reported error wins over everything else; no audio reference is attached.
	if result.Error != "" {
		return nil, &core.Failure{Kind: core.KindTranslation, Message: result.Error}
	}

	if len(result.Audio) == 0 {
		return nil, core.NewFailure(core.KindTranslation, "translator produced no audio")
	}

	name := translatedName(o.newToken())

	uploadErr := o.store.Upload(ctx, name, result.Audio)
	if uploadErr != nil {
		return nil, core.NewFailure(core.KindTranslation, "failed to store translated audio: %v", uploadErr)
	}

	outputs := make(map[string]string, len(result.Fields)+1)
	maps.Copy(outputs, result.Fields)
	outputs[core.OutputAudioReference] = o.Reference(name)

	return outputs, nil
}

func (o *Orchestrator) runTextToSpeech(ctx context.Context, item core.WorkItem) (map[string]string, *core.Failure) {
	if strings.TrimSpace(item.Text) == "" {
		return nil, core.NewFailure(core.KindValidation, "text is required for text-to-speech")
	}

	profile, ok := o.voices.Lookup(item.CharacterKey)
	if !ok {
		return nil, core.NewFailure(core.KindValidation, "unknown character voice %q", item.CharacterKey)
	}

	engine, err := core.ParseEngine(string(item.Engine))
	if err != nil {
		return nil, core.NewFailure(core.KindValidation, "%v", err)
	}

	request := core.SynthesisRequest{Text: item.Text, Profile: profile}

	var audio []byte

	switch engine {
	case core.EngineOffline:
		if o.offline == nil {
			return nil, core.NewFailure(core.KindServiceUnavailable, "offline engine is not available on this service")
		}

		audio, err = runBlocking(ctx, o, stageOffline, func(stageCtx context.Context) ([]byte, error) {
			return o.offline.Synthesize(stageCtx, request)
		})
	case core.EngineOnline:
		if o.online == nil {
			return nil, core.NewFailure(core.KindServiceUnavailable, "online engine is not available on this service")
		}

		audio, err = runSuspending(ctx, o, stageOnline, func(stageCtx context.Context) ([]byte, error) {
			return o.online.Synthesize(stageCtx, request)
		})
	}

	if err != nil {
		return nil, core.NewFailure(core.KindSynthesis, "%v", err)
	}

	if len(audio) == 0 {
		return nil, core.NewFailure(core.KindSynthesis, "%s engine produced no audio", engine)
	}

	name := ttsName(o.newToken())

	uploadErr := o.store.Upload(ctx, name, audio)
	if uploadErr != nil {
		return nil, core.NewFailure(core.KindSynthesis, "failed to store synthesized audio: %v", uploadErr)
	}

	return map[string]string{core.OutputAudioReference: o.Reference(name)}, nil
}

func (o *Orchestrator) runCloneVoice(ctx context.Context, item core.WorkItem) (map[string]string, *core.Failure) {
	sample, _, failure := o.loadInput(ctx, item.Input, core.KindSynthesis)
	if failure != nil {
		return nil, failure
	}

	text := strings.TrimSpace(item.Text)
	if text == "" {
		text = o.defaultCloneText
	}

	request := core.SynthesisRequest{Text: text, Sample: sample}

	cloned, err := runSuspending(ctx, o, stageClone, func(stageCtx context.Context) ([]byte, error) {
		return o.cloner.Synthesize(stageCtx, request)
	})
	if err != nil {
		return nil, core.NewFailure(core.KindSynthesis, "%v", err)
	}

	if len(cloned) == 0 {
		return nil, core.NewFailure(core.KindSynthesis, "cloning engine produced no audio")
	}

	token := o.newToken()
	samplePath := sampleName(token)
	clonePath := cloneName(cloneLabel(item.CloneName), token)

	cloneErr := o.store.Upload(ctx, clonePath, cloned)
	if cloneErr != nil {
		return nil, core.NewFailure(core.KindSynthesis, "failed to store cloned audio: %v", cloneErr)
	}

	// The clone is only published together with its sample; withdraw it if the sample cannot be stored.
	sampleErr := o.store.Upload(ctx, samplePath, sample)
	if sampleErr != nil {
		deleteErr := o.store.Delete(ctx, clonePath)
		if deleteErr != nil {
			o.log.Error("Failed to remove %s after a failed clone: %v", clonePath, deleteErr)

			return nil, core.NewFailure(core.KindSynthesis,
				"failed to store voice sample: %v (cloned audio %s could not be removed)", sampleErr, clonePath)
		}

		return nil, core.NewFailure(core.KindSynthesis, "failed to store voice sample: %v", sampleErr)
	}

	return map[string]string{
		core.OutputAudioReference:          o.Reference(clonePath),
		core.OutputOriginalSampleReference: o.Reference(samplePath),
	}, nil
}

// loadInput validates and downloads an input artifact. Structural problems are
// ValidationErrors; store faults take the mode's failure kind.
func (o *Orchestrator) loadInput(
	ctx context.Context,
	input core.Artifact,
	storeFailureKind core.ErrorKind,
) ([]byte, string, *core.Failure) {
	if input.IsZero() {
		return nil, "", core.NewFailure(core.KindValidation, "an input audio file is required")
	}

	original := originalName(input.Name, input.OriginalName)
	if original == "" {
		return nil, "", core.NewFailure(core.KindValidation, "input file name is empty after sanitizing")
	}

	if !IsAllowedExtension(original) {
		return nil, "", core.NewFailure(core.KindValidation,
			"unsupported file extension %q; allowed: wav, mp3, flac, ogg, m4a", Extension(original))
	}

	audio, err := o.store.Download(ctx, input.Name)
	if err != nil {
		if errors.Is(err, core.ErrObjectNotFound) {
			return nil, "", core.NewFailure(core.KindValidation, "input file %q was not found", input.Name)
		}

		return nil, "", core.NewFailure(storeFailureKind, "failed to load input file: %v", err)
	}

	if len(audio) == 0 {
		return nil, "", core.NewFailure(core.KindValidation, "input file %q is empty", input.Name)
	}

	return audio, original, nil
}
