// Package core defines the core business logic and interfaces for the audio pipeline.
package core

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned by ObjectStore implementations when a key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore defines the interface for interacting with a key-value blob store.
// Implementations must be safe for concurrent use.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	// Delete removes key. Deleting a key that does not exist is not an error.
	Delete(ctx context.Context, key string) error
}

// Denoiser removes background noise from a single audio file.
// The format is the file extension without the leading dot and is preserved in the output.
type Denoiser interface {
	Denoise(ctx context.Context, audio []byte, format string) ([]byte, error)
}

// TranslationRequest describes one translate-and-resynthesize invocation.
type TranslationRequest struct {
	Audio       []byte
	Filename    string
	SourceLang  string
	TargetLang  string
	VoiceOption int
}

// TranslationResult is what a Translator produces. A non-empty Error means the
// translator finished but reports an internal failure; Fields and Audio are then
// not usable.
type TranslationResult struct {
	Fields map[string]string
	Audio  []byte
	Error  string
}

// Translator transcribes, translates and re-synthesizes speech in one opaque call.
type Translator interface {
	TranslateAndResynthesize(ctx context.Context, req TranslationRequest) (*TranslationResult, error)
	SupportedLanguages() map[string]string
}

// SynthesisRequest carries everything a SpeechSynthesizer variant may need.
// Sample is only read by cloning engines.
type SynthesisRequest struct {
	Text    string
	Profile VoiceProfile
	Sample  []byte
}

// SpeechSynthesizer is the common capability of every TTS backend. Whether the
// backend blocks on a local process or waits on a network round trip, Synthesize
// returns only once the audio is complete.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error)
}
