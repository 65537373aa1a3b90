// Package objectstore provides the artifact store backends behind core.ObjectStore:
// a NATS JetStream object store, a local directory and an S3 bucket.
//
// Every backend uses the same flat key layout chosen by the pipeline:
//
//	uploads/<token>_<name>      caller inputs, never served as results
//	<token>/cleaned_<name>      denoised audio
//	translated_<token>.mp3      translated speech
//	tts_<token>.mp3             character speech
//	clone_<label>_<token>.wav   cloned speech
//	sample_<token>.wav          the reference sample of a clone
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/audio-pipeline/internal/core"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NatsObjectStore keeps pipeline artifacts in one JetStream object store bucket.
type NatsObjectStore struct {
	bucket string
	store  nats.ObjectStore
}

// NewNATS opens the artifact bucket, creating it on first use. Artifacts are
// kept on file storage without a TTL; retention belongs to whoever operates
// the bucket.
func NewNATS(jetstreamContext nats.JetStreamContext, bucketName string) (*NatsObjectStore, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: "Audio pipeline uploads and results",
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create artifact bucket '%s': %w", bucketName, err)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to artifact bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsObjectStore{bucket: bucketName, store: store}, nil
}

// Download returns the artifact stored under key, or core.ErrObjectNotFound.
func (n *NatsObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	data, err := n.store.GetBytes(key)
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: '%s' in bucket '%s'", core.ErrObjectNotFound, key, n.bucket)
		}

		return nil, fmt.Errorf("failed to get artifact '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	return data, nil
}

// Upload stores data under key. JetStream chunks the object, so artifacts are
// not limited by the NATS max payload.
func (n *NatsObjectStore) Upload(_ context.Context, key string, data []byte) error {
	_, err := n.store.Put(&nats.ObjectMeta{Name: key}, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to put artifact '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}

// Delete removes key; a missing key is ignored.
func (n *NatsObjectStore) Delete(_ context.Context, key string) error {
	err := n.store.Delete(key)
	if err != nil && !errors.Is(err, nats.ErrObjectNotFound) {
		return fmt.Errorf("failed to delete artifact '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}

var _ core.ObjectStore = (*NatsObjectStore)(nil)
