// Package denoise provides the ffmpeg-backed noise removal stage.
package denoise

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/audio-pipeline/internal/command"
	"github.com/book-expert/audio-pipeline/internal/core"
	"github.com/book-expert/logger"
)

var (
	// ErrEmptyAudio is returned when the input contains no bytes.
	ErrEmptyAudio = errors.New("audio input is empty")
	// ErrEmptyOutput is returned when ffmpeg finishes without producing audio.
	ErrEmptyOutput = errors.New("denoiser produced no audio")
)

// FFmpegDenoiser removes stationary background noise with ffmpeg's afftdn filter.
type FFmpegDenoiser struct {
	ffmpegPath string
	filter     string
	runner     command.Runner
	log        *logger.Logger
}

// New creates an FFmpegDenoiser. A nil runner defaults to command.ExecRunner.
func New(ffmpegPath, filter string, runner command.Runner, log *logger.Logger) *FFmpegDenoiser {
	if runner == nil {
		runner = command.ExecRunner{}
	}

	return &FFmpegDenoiser{
		ffmpegPath: ffmpegPath,
		filter:     filter,
		runner:     runner,
		log:        log,
	}
}

// Denoise writes the input to a scratch directory, filters it and returns the
// cleaned audio in the same container format.
func (d *FFmpegDenoiser) Denoise(ctx context.Context, audio []byte, format string) ([]byte, error) {
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}

	workDir, err := os.MkdirTemp("", "denoise-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}

	defer func() {
		removeErr := os.RemoveAll(workDir)
		if removeErr != nil {
			d.log.Warn("Failed to remove scratch directory '%s': %v", workDir, removeErr)
		}
	}()

	inputPath := filepath.Join(workDir, "input."+format)
	outputPath := filepath.Join(workDir, "output."+format)

	writeErr := os.WriteFile(inputPath, audio, 0o600)
	if writeErr != nil {
		return nil, fmt.Errorf("failed to write denoise input: %w", writeErr)
	}

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", inputPath,
		"-af", d.filter,
		outputPath,
	}

	_, runErr := d.runner.Run(ctx, d.ffmpegPath, args...)
	if runErr != nil {
		return nil, fmt.Errorf("ffmpeg denoise failed: %w", runErr)
	}

	cleaned, readErr := os.ReadFile(outputPath)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read denoised audio: %w", readErr)
	}

	if len(cleaned) == 0 {
		return nil, ErrEmptyOutput
	}

	return cleaned, nil
}

var _ core.Denoiser = (*FFmpegDenoiser)(nil)
