// Package synth provides the SpeechSynthesizer variants: a local espeak-ng
// engine, a remote neural engine and a voice cloning engine.
//
// Every variant wraps backend faults with ErrSynthesis, so callers can rely on
// errors.Is instead of inspecting backend-specific errors.
package synth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/book-expert/audio-pipeline/internal/command"
	"github.com/book-expert/audio-pipeline/internal/core"
	"github.com/book-expert/logger"
)

var (
	// ErrSynthesis marks every failure reported by a synthesizer variant.
	ErrSynthesis = errors.New("speech synthesis failed")
	// ErrTextEmpty indicates that there is nothing to synthesize.
	ErrTextEmpty = errors.New("text cannot be empty")
	// ErrEmptyAudio indicates that a backend returned no audio.
	ErrEmptyAudio = errors.New("backend returned empty audio")
)

func synthesisError(err error) error {
	return fmt.Errorf("%w: %w", ErrSynthesis, err)
}

// OfflineEngine synthesizes speech with a local espeak-ng binary and encodes
// the result to MP3 with ffmpeg. It blocks until both processes exit.
//
// espeak-ng has no continuous pitch control that maps onto the character
// table, so pitch is approximated by picking one of a few fixed voice
// variants (see catalog.OfflineVoices).
type OfflineEngine struct {
	espeakPath string
	ffmpegPath string
	runner     command.Runner
	log        *logger.Logger
}

// NewOfflineEngine creates an OfflineEngine. A nil runner defaults to command.ExecRunner.
func NewOfflineEngine(espeakPath, ffmpegPath string, runner command.Runner, log *logger.Logger) *OfflineEngine {
	if runner == nil {
		runner = command.ExecRunner{}
	}

	return &OfflineEngine{
		espeakPath: espeakPath,
		ffmpegPath: ffmpegPath,
		runner:     runner,
		log:        log,
	}
}

// Synthesize renders req.Text with the profile's offline voice and rate.
func (e *OfflineEngine) Synthesize(ctx context.Context, req core.SynthesisRequest) ([]byte, error) {
	text := NormalizeText(req.Text)
	if text == "" {
		return nil, synthesisError(ErrTextEmpty)
	}

	workDir, err := os.MkdirTemp("", "tts-offline-*")
	if err != nil {
		return nil, synthesisError(fmt.Errorf("failed to create scratch directory: %w", err))
	}

	defer func() {
		removeErr := os.RemoveAll(workDir)
		if removeErr != nil {
			e.log.Warn("Failed to remove scratch directory '%s': %v", workDir, removeErr)
		}
	}()

	wavPath := filepath.Join(workDir, "speech.wav")
	mp3Path := filepath.Join(workDir, "speech.mp3")

	espeakArgs := []string{
		"-v", req.Profile.Offline.Voice,
		"-s", strconv.Itoa(req.Profile.Offline.Rate),
		"-w", wavPath,
		"--", text,
	}

	_, runErr := e.runner.Run(ctx, e.espeakPath, espeakArgs...)
	if runErr != nil {
		return nil, synthesisError(fmt.Errorf("espeak-ng failed: %w", runErr))
	}

	ffmpegArgs := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", wavPath,
		"-codec:a", "libmp3lame", "-q:a", "4",
		mp3Path,
	}

	_, encodeErr := e.runner.Run(ctx, e.ffmpegPath, ffmpegArgs...)
	if encodeErr != nil {
		return nil, synthesisError(fmt.Errorf("mp3 encoding failed: %w", encodeErr))
	}

	audio, readErr := os.ReadFile(mp3Path)
	if readErr != nil {
		return nil, synthesisError(fmt.Errorf("failed to read synthesized audio: %w", readErr))
	}

	if len(audio) == 0 {
		return nil, synthesisError(ErrEmptyAudio)
	}

	return audio, nil
}

var _ core.SpeechSynthesizer = (*OfflineEngine)(nil)
