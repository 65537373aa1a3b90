package pipeline

import (
	"path"
	"regexp"
	"strings"
)

// UploadsPrefix is the private namespace for caller uploads. Objects under it
// are inputs, not results, and are never served back through Retrieve.
const UploadsPrefix = "uploads/"

const defaultCloneLabel = "voice"

// AllowedExtensions lists the upload formats every audio mode accepts.
var AllowedExtensions = map[string]struct{}{
	"wav":  {},
	"mp3":  {},
	"flac": {},
	"ogg":  {},
	"m4a":  {},
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SanitizeFilename reduces a caller-supplied filename to a safe base name:
// directory parts are dropped, whitespace becomes '_', anything outside
// [A-Za-z0-9_.-] is removed and leading or trailing dots and underscores are
// trimmed. The result may be empty.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(name)

	if name == "." || name == "/" {
		return ""
	}

	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")

	return strings.Trim(name, "._")
}

// Extension returns the lower-cased extension of name without the dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
}

// IsAllowedExtension reports whether name carries an accepted upload extension.
func IsAllowedExtension(name string) bool {
	_, ok := AllowedExtensions[Extension(name)]

	return ok
}

func uploadName(token, sanitized string) string {
	return UploadsPrefix + token + "_" + sanitized
}

// cleanedName keeps the caller's file name visible while the token directory
// keeps concurrent requests for the same file apart.
func cleanedName(token, original string) string {
	return token + "/cleaned_" + original
}

func translatedName(token string) string {
	return "translated_" + token + ".mp3"
}

func ttsName(token string) string {
	return "tts_" + token + ".mp3"
}

func cloneName(label, token string) string {
	return "clone_" + label + "_" + token + ".wav"
}

func sampleName(token string) string {
	return "sample_" + token + ".wav"
}

// cloneLabel sanitizes a clone label; the extension separator is not allowed.
func cloneLabel(label string) string {
	label = strings.ReplaceAll(SanitizeFilename(label), ".", "_")
	if label == "" {
		return defaultCloneLabel
	}

	return label
}

// originalName is the caller-facing filename of an input artifact.
func originalName(name, original string) string {
	if original != "" {
		return SanitizeFilename(original)
	}

	base := path.Base(name)
	if strings.HasPrefix(name, UploadsPrefix) {
		if _, rest, found := strings.Cut(base, "_"); found {
			return rest
		}
	}

	return base
}
