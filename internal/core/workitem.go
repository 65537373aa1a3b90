package core

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects which stages a WorkItem runs.
type Mode string

const (
	ModeDenoise      Mode = "denoise"
	ModeTranslate    Mode = "translate"
	ModeTextToSpeech Mode = "tts"
	ModeCloneVoice   Mode = "clone"
)

// ErrUnknownMode is returned when a mode string does not name a known mode.
var ErrUnknownMode = errors.New("unknown mode")

// ParseMode converts a caller-supplied mode name into a Mode.
func ParseMode(value string) (Mode, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(value)))
	switch mode {
	case ModeDenoise, ModeTranslate, ModeTextToSpeech, ModeCloneVoice:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, value)
	}
}

// EngineChoice selects the TTS backend for ModeTextToSpeech.
type EngineChoice string

const (
	EngineOffline EngineChoice = "offline"
	EngineOnline  EngineChoice = "online"
)

// ErrUnknownEngine is returned when an engine string does not name a known engine.
var ErrUnknownEngine = errors.New("unknown engine")

// ParseEngine converts a caller-supplied engine name into an EngineChoice.
func ParseEngine(value string) (EngineChoice, error) {
	engine := EngineChoice(strings.ToLower(strings.TrimSpace(value)))
	switch engine {
	case EngineOffline, EngineOnline:
		return engine, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEngine, value)
	}
}

// Artifact references a stored binary by its store key.
type Artifact struct {
	Name         string `json:"name"`
	OriginalName string `json:"original_name,omitempty"`
}

// IsZero reports whether the artifact references nothing.
func (a Artifact) IsZero() bool {
	return a.Name == ""
}

// WorkItem describes one pipeline run. Fields that do not apply to Mode are ignored.
type WorkItem struct {
	Mode         Mode
	Input        Artifact
	Text         string
	SourceLang   string
	TargetLang   string
	VoiceOption  int
	CharacterKey string
	Engine       EngineChoice
	CloneName    string
}

// OfflineVoice holds the local engine settings of a character voice.
// Voice is one of a small fixed set of local voices, which is how pitch is approximated.
type OfflineVoice struct {
	Rate  int    `toml:"rate"`
	Voice string `toml:"voice"`
}

// OnlineVoice holds the remote neural engine settings of a character voice.
type OnlineVoice struct {
	Voice string  `toml:"voice"`
	Speed float64 `toml:"speed"`
}

// VoiceProfile is one character voice entry.
type VoiceProfile struct {
	Key         string       `toml:"key"`
	Description string       `toml:"description"`
	Offline     OfflineVoice `toml:"offline"`
	Online      OnlineVoice  `toml:"online"`
}
