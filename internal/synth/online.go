package synth

import (
	"context"
	"fmt"
	"io"

	"github.com/book-expert/audio-pipeline/internal/core"
	"github.com/book-expert/logger"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOnlineSpeed = 1.0

// OnlineEngine synthesizes speech with a remote neural voice through the
// OpenAI audio/speech endpoint. The call returns once the whole MP3 body has
// been received.
type OnlineEngine struct {
	client openai.Client
	model  string
	log    *logger.Logger
}

// NewOnlineEngine creates an OnlineEngine. baseURL may be empty to use the public API.
// Retries are left to the pipeline stage policy, so the client itself never retries.
func NewOnlineEngine(apiKey, baseURL, model string, log *logger.Logger) *OnlineEngine {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OnlineEngine{
		client: openai.NewClient(opts...),
		model:  model,
		log:    log,
	}
}

// Synthesize renders req.Text with the profile's neural voice and speed.
func (e *OnlineEngine) Synthesize(ctx context.Context, req core.SynthesisRequest) ([]byte, error) {
	text := NormalizeText(req.Text)
	if text == "" {
		return nil, synthesisError(ErrTextEmpty)
	}

	speed := req.Profile.Online.Speed
	if speed == 0 {
		speed = defaultOnlineSpeed
	}

	resp, err := e.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(e.model),
		Voice:          openai.AudioSpeechNewParamsVoice(req.Profile.Online.Voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
		Speed:          openai.Float(speed),
	})
	if err != nil {
		return nil, synthesisError(fmt.Errorf("online speech request failed: %w", err))
	}
	defer resp.Body.Close()

	audio, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, synthesisError(fmt.Errorf("failed to read online speech audio: %w", readErr))
	}

	if len(audio) == 0 {
		return nil, synthesisError(ErrEmptyAudio)
	}

	e.log.Info("Online voice '%s' produced %d bytes", req.Profile.Online.Voice, len(audio))

	return audio, nil
}

var _ core.SpeechSynthesizer = (*OnlineEngine)(nil)
