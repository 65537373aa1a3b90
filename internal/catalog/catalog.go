// Package catalog provides the read-only character voice catalog.
//
// The catalog is built once at start-up and never mutated afterwards, so a
// single *Catalog can be shared by every in-flight request without locking.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"

	"github.com/book-expert/audio-pipeline/internal/core"
	"github.com/pelletier/go-toml/v2"
)

//go:embed voices.toml
var builtinVoices []byte

var (
	// ErrEmptyCatalog indicates that a voice table has no entries.
	ErrEmptyCatalog = errors.New("voice catalog is empty")
	// ErrDuplicateKey indicates that two entries share a key.
	ErrDuplicateKey = errors.New("duplicate voice key")
	// ErrInvalidEntry indicates an entry with missing or out-of-range fields.
	ErrInvalidEntry = errors.New("invalid voice entry")
	// ErrUnknownDefault indicates that the default key is not in the table.
	ErrUnknownDefault = errors.New("default voice key not in catalog")
)

// OfflineVoices is the fixed set of local voices the offline engine can choose from.
var OfflineVoices = map[string]struct{}{
	"en-us+m3":      {},
	"en-us+m7":      {},
	"en-us+f4":      {},
	"en-us+f5":      {},
	"en-us+klatt":   {},
	"en-us+whisper": {},
}

type voiceTable struct {
	Voices []core.VoiceProfile `toml:"voice"`
}

// Catalog maps character keys to voice profiles.
type Catalog struct {
	entries    map[string]core.VoiceProfile
	defaultKey string
}

// Builtin parses the embedded voice table.
func Builtin(defaultKey string) (*Catalog, error) {
	return Parse(builtinVoices, defaultKey)
}

// Parse builds a catalog from a TOML voice table.
func Parse(data []byte, defaultKey string) (*Catalog, error) {
	var table voiceTable

	err := toml.Unmarshal(data, &table)
	if err != nil {
		return nil, fmt.Errorf("failed to parse voice table: %w", err)
	}

	return New(table.Voices, defaultKey)
}

// New validates the profiles and builds a catalog from them.
func New(profiles []core.VoiceProfile, defaultKey string) (*Catalog, error) {
	if len(profiles) == 0 {
		return nil, ErrEmptyCatalog
	}

	entries := make(map[string]core.VoiceProfile, len(profiles))

	for _, profile := range profiles {
		validateErr := validateProfile(profile)
		if validateErr != nil {
			return nil, validateErr
		}

		if _, exists := entries[profile.Key]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateKey, profile.Key)
		}

		entries[profile.Key] = profile
	}

	if _, ok := entries[defaultKey]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDefault, defaultKey)
	}

	return &Catalog{entries: entries, defaultKey: defaultKey}, nil
}

// Lookup returns the profile for key. An empty key resolves to the default entry.
func (c *Catalog) Lookup(key string) (core.VoiceProfile, bool) {
	if key == "" {
		key = c.defaultKey
	}

	profile, ok := c.entries[key]

	return profile, ok
}

// Default returns the key used when a request names no character.
func (c *Catalog) Default() string {
	return c.defaultKey
}

// ListPublic returns key -> description, hiding backend parameters.
func (c *Catalog) ListPublic() map[string]string {
	public := make(map[string]string, len(c.entries))
	for key, profile := range c.entries {
		public[key] = profile.Description
	}

	return public
}

// Keys returns the catalog keys in sorted order.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

func validateProfile(profile core.VoiceProfile) error {
	if profile.Key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidEntry)
	}

	if profile.Description == "" {
		return fmt.Errorf("%w: %q has no description", ErrInvalidEntry, profile.Key)
	}

	if profile.Offline.Rate <= 0 {
		return fmt.Errorf("%w: %q offline rate must be positive", ErrInvalidEntry, profile.Key)
	}

	if _, ok := OfflineVoices[profile.Offline.Voice]; !ok {
		return fmt.Errorf("%w: %q uses unsupported offline voice %q", ErrInvalidEntry, profile.Key, profile.Offline.Voice)
	}

	if profile.Online.Voice == "" {
		return fmt.Errorf("%w: %q has no online voice", ErrInvalidEntry, profile.Key)
	}

	return nil
}
