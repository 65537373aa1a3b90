// Package translate implements speech-to-speech translation on top of the
// OpenAI audio and chat endpoints: transcribe, translate, then speak.
package translate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"

	"github.com/book-expert/audio-pipeline/internal/core"
	"github.com/book-expert/logger"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Result field names.
const (
	FieldOriginalText   = "original_text"
	FieldTranslatedText = "translated_text"
	FieldSourceLanguage = "source_language"
	FieldTargetLanguage = "target_language"
)

var (
	// ErrEmptyTranslation is returned when the chat model answers with no text.
	ErrEmptyTranslation = errors.New("translation model returned no text")
	// ErrEmptyAudio is returned when the speech endpoint answers with no audio.
	ErrEmptyAudio = errors.New("speech model returned no audio")
)

// Models names the OpenAI models used by each step.
type Models struct {
	Transcription string
	Chat          string
	Speech        string
}

// OpenAITranslator transcribes, translates and re-synthesizes speech.
type OpenAITranslator struct {
	client openai.Client
	models Models
	log    *logger.Logger
}

// New creates an OpenAITranslator. baseURL may be empty to use the public API.
func New(apiKey, baseURL string, models Models, log *logger.Logger) *OpenAITranslator {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAITranslator{
		client: openai.NewClient(opts...),
		models: models,
		log:    log,
	}
}

// SupportedLanguages returns a copy of the language tag to display name table.
func (t *OpenAITranslator) SupportedLanguages() map[string]string {
	return maps.Clone(supportedLanguages)
}

// TranslateAndResynthesize runs the full speech translation.
//
// Caller-level problems (unsupported language, silence in the input) are
// reported through the result's Error field. Transport faults are returned as errors.
func (t *OpenAITranslator) TranslateAndResynthesize(
	ctx context.Context,
	req core.TranslationRequest,
) (*core.TranslationResult, error) {
	if _, ok := supportedLanguages[req.SourceLang]; !ok {
		return &core.TranslationResult{Error: fmt.Sprintf("Unsupported source language: %s", req.SourceLang)}, nil
	}

	if _, ok := supportedLanguages[req.TargetLang]; !ok {
		return &core.TranslationResult{Error: fmt.Sprintf("Unsupported target language: %s", req.TargetLang)}, nil
	}

	original, err := t.transcribe(ctx, req)
	if err != nil {
		return nil, err
	}

	if original == "" {
		return &core.TranslationResult{Error: "Could not transcribe audio: no speech detected"}, nil
	}

	translated := original
	if req.SourceLang != req.TargetLang {
		translated, err = t.translateText(ctx, original, req.SourceLang, req.TargetLang)
		if err != nil {
			return nil, err
		}
	}

	audio, err := t.speak(ctx, translated, presetFor(req.VoiceOption))
	if err != nil {
		return nil, err
	}

	t.log.Info("Translated %s -> %s (%d chars, %d audio bytes)",
		req.SourceLang, req.TargetLang, len(translated), len(audio))

	return &core.TranslationResult{
		Fields: map[string]string{
			FieldOriginalText:   original,
			FieldTranslatedText: translated,
			FieldSourceLanguage: req.SourceLang,
			FieldTargetLanguage: req.TargetLang,
		},
		Audio: audio,
	}, nil
}

func (t *OpenAITranslator) transcribe(ctx context.Context, req core.TranslationRequest) (string, error) {
	transcription, err := t.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:     openai.File(bytes.NewReader(req.Audio), req.Filename, "application/octet-stream"),
		Model:    openai.AudioModel(t.models.Transcription),
		Language: openai.String(req.SourceLang),
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}

	return strings.TrimSpace(transcription.Text), nil
}

func (t *OpenAITranslator) translateText(ctx context.Context, text, source, target string) (string, error) {
	instruction := fmt.Sprintf(
		"Translate the user's text from %s to %s. Reply with the translation only.",
		supportedLanguages[source], supportedLanguages[target],
	)

	completion, err := t.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(t.models.Chat),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(instruction),
			openai.UserMessage(text),
		},
	})
	if err != nil {
		return "", fmt.Errorf("translation failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return "", ErrEmptyTranslation
	}

	translated := strings.TrimSpace(completion.Choices[0].Message.Content)
	if translated == "" {
		return "", ErrEmptyTranslation
	}

	return translated, nil
}

func (t *OpenAITranslator) speak(ctx context.Context, text string, preset voicePreset) ([]byte, error) {
	resp, err := t.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(t.models.Speech),
		Voice:          openai.AudioSpeechNewParamsVoice(preset.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
		Speed:          openai.Float(preset.speed),
	})
	if err != nil {
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}
	defer resp.Body.Close()

	audio, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read speech audio: %w", readErr)
	}

	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}

	return audio, nil
}

var _ core.Translator = (*OpenAITranslator)(nil)
