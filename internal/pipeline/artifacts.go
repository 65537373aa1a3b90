package pipeline

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/book-expert/audio-pipeline/internal/core"
)

// Reference turns an artifact name into the reference handed to callers.
func (o *Orchestrator) Reference(name string) string {
	return o.referencePrefix + name
}

// Ingest stores a caller upload under a fresh name in the private uploads
// namespace and returns the artifact to put in a WorkItem.
func (o *Orchestrator) Ingest(ctx context.Context, filename string, data []byte) (core.Artifact, *core.Failure) {
	sanitized := SanitizeFilename(filename)
	if sanitized == "" {
		return core.Artifact{}, core.NewFailure(core.KindValidation, "no file name supplied")
	}

	if !IsAllowedExtension(sanitized) {
		return core.Artifact{}, core.NewFailure(core.KindValidation,
			"unsupported file extension %q; allowed: wav, mp3, flac, ogg, m4a", Extension(sanitized))
	}

	if len(data) == 0 {
		return core.Artifact{}, core.NewFailure(core.KindValidation, "uploaded file %q is empty", sanitized)
	}

	name := uploadName(o.newToken(), sanitized)

	err := o.store.Upload(ctx, name, data)
	if err != nil {
		return core.Artifact{}, core.NewFailure(core.KindProcessing, "failed to store upload: %v", err)
	}

	o.log.Info("Stored upload '%s' (%d bytes)", name, len(data))

	return core.Artifact{Name: name, OriginalName: sanitized}, nil
}

// Retrieve returns the content of a produced artifact, addressed either by its
// name or by the reference returned from Run.
func (o *Orchestrator) Retrieve(ctx context.Context, nameOrReference string) ([]byte, *core.Failure) {
	name := strings.TrimPrefix(nameOrReference, o.referencePrefix)

	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, `\`) ||
		path.Clean(name) != name || strings.HasPrefix(name, "../") || name == ".." {
		return nil, core.NewFailure(core.KindValidation, "invalid artifact name %q", nameOrReference)
	}

	if strings.HasPrefix(name, UploadsPrefix) {
		return nil, core.NewFailure(core.KindNotFound, "artifact %q not found", name)
	}

	data, err := o.store.Download(ctx, name)
	if err != nil {
		if errors.Is(err, core.ErrObjectNotFound) {
			return nil, core.NewFailure(core.KindNotFound, "artifact %q not found", name)
		}

		return nil, core.NewFailure(core.KindProcessing, "failed to load artifact %q: %v", name, err)
	}

	if len(data) == 0 {
		return nil, core.NewFailure(core.KindNotFound, "artifact %q is empty", name)
	}

	return data, nil
}

// Languages lists the language tags the translator accepts.
func (o *Orchestrator) Languages() map[string]string {
	if o.translator == nil || !o.enabled[core.ModeTranslate] {
		return map[string]string{}
	}

	return o.translator.SupportedLanguages()
}

// Characters lists the character voices by key and description.
func (o *Orchestrator) Characters() map[string]string {
	return o.voices.ListPublic()
}
