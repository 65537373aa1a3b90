package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/book-expert/audio-pipeline/internal/catalog"
	"github.com/book-expert/audio-pipeline/internal/core"
	"github.com/book-expert/audio-pipeline/internal/objectstore"
	"github.com/book-expert/audio-pipeline/internal/pipeline"
	"github.com/book-expert/logger"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend exploded")

var errStoreFull = errors.New("store is full")

// countingStore wraps a LocalStore and counts uploads. When failOnUpload is
// set, that upload (counted from 1) fails.
type countingStore struct {
	*objectstore.LocalStore

	uploads      atomic.Int32
	deletes      atomic.Int32
	failOnUpload atomic.Int32
}

func (c *countingStore) Upload(ctx context.Context, key string, data []byte) error {
	count := c.uploads.Add(1)
	if count == c.failOnUpload.Load() {
		return errStoreFull
	}

	return c.LocalStore.Upload(ctx, key, data)
}

func (c *countingStore) Delete(ctx context.Context, key string) error {
	c.deletes.Add(1)

	return c.LocalStore.Delete(ctx, key)
}

type stubDenoiser struct {
	denoiseShouldFail bool
	delay             time.Duration
	calls             atomic.Int32
	running           atomic.Int32
	maxRunning        atomic.Int32
}

func (s *stubDenoiser) Denoise(_ context.Context, audio []byte, format string) ([]byte, error) {
	s.calls.Add(1)

	current := s.running.Add(1)
	defer s.running.Add(-1)

	for {
		seen := s.maxRunning.Load()
		if current <= seen || s.maxRunning.CompareAndSwap(seen, current) {
			break
		}
	}

	time.Sleep(s.delay)

	if s.denoiseShouldFail {
		return nil, errBackend
	}

	return append([]byte("cleaned "+format+": "), audio...), nil
}

type stubTranslator struct {
	reportedError  string
	callShouldFail bool
	calls          atomic.Int32
}

func (s *stubTranslator) TranslateAndResynthesize(
	_ context.Context,
	req core.TranslationRequest,
) (*core.TranslationResult, error) {
	s.calls.Add(1)

	if s.callShouldFail {
		return nil, errBackend
	}

	if s.reportedError != "" {
		return &core.TranslationResult{Error: s.reportedError}, nil
	}

	return &core.TranslationResult{
		Fields: map[string]string{
			"original_text":   "good morning",
			"translated_text": "suprabhat",
			"source_language": req.SourceLang,
			"target_language": req.TargetLang,
		},
		Audio: []byte("translated audio"),
	}, nil
}

func (s *stubTranslator) SupportedLanguages() map[string]string {
	return map[string]string{"en": "English", "hi": "Hindi"}
}

type stubSynth struct {
	mu                sync.Mutex
	synthShouldFail   bool
	synthShouldPanic  bool
	failFirstAttempts int
	delay             time.Duration
	output            []byte
	requests          []core.SynthesisRequest
}

func (s *stubSynth) Synthesize(ctx context.Context, req core.SynthesisRequest) ([]byte, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	attempt := len(s.requests)
	s.mu.Unlock()

	if s.synthShouldPanic {
		panic("model crashed")
	}

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if s.synthShouldFail || attempt <= s.failFirstAttempts {
		return nil, errBackend
	}

	if s.output != nil {
		return s.output, nil
	}

	return []byte("audio for " + req.Text), nil
}

func (s *stubSynth) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.requests)
}

func (s *stubSynth) lastRequest() core.SynthesisRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.requests[len(s.requests)-1]
}

type fixture struct {
	store      *countingStore
	denoiser   *stubDenoiser
	translator *stubTranslator
	offline    *stubSynth
	online     *stubSynth
	cloner     *stubSynth
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	local, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)

	return &fixture{
		store:      &countingStore{LocalStore: local},
		denoiser:   &stubDenoiser{},
		translator: &stubTranslator{},
		offline:    &stubSynth{},
		online:     &stubSynth{},
		cloner:     &stubSynth{},
	}
}

func (f *fixture) orchestrator(t *testing.T, opts ...pipeline.Option) *pipeline.Orchestrator {
	t.Helper()

	log, err := logger.New(t.TempDir(), "pipeline-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	voices, err := catalog.Builtin("narrator")
	require.NoError(t, err)

	base := []pipeline.Option{
		pipeline.WithDenoiser(f.denoiser),
		pipeline.WithTranslator(f.translator),
		pipeline.WithOfflineEngine(f.offline),
		pipeline.WithOnlineEngine(f.online),
		pipeline.WithCloningEngine(f.cloner),
	}

	return pipeline.New(f.store, voices, log, append(base, opts...)...)
}

// ingest uploads data and resets the upload counter so tests only see pipeline writes.
func (f *fixture) ingest(t *testing.T, orch *pipeline.Orchestrator, filename string, data []byte) core.Artifact {
	t.Helper()

	artifact, failure := orch.Ingest(context.Background(), filename, data)
	require.Nil(t, failure)

	f.store.uploads.Store(0)

	return artifact
}
