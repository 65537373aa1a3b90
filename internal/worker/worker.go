// Package worker exposes the audio pipeline over NATS request/reply.
//
// Every caller-facing operation has its own subject. Replies to run, language
// and character requests are JSON presenter responses. Artifact replies carry
// raw bytes, one page per request: the Artifact-Size and Artifact-Offset
// headers tell the caller where the page sits and whether to ask for the next
// offset. A failed artifact request gets a JSON error with the Pipeline-Error
// header set instead.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/book-expert/audio-pipeline/internal/core"
	"github.com/book-expert/audio-pipeline/internal/presenter"
	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Artifact reply headers. HeaderPipelineError marks a reply that carries an
// error instead of bytes; a page carries the artifact's total size and the
// offset of its first byte.
const (
	HeaderPipelineError  = "Pipeline-Error"
	HeaderArtifactSize   = "Artifact-Size"
	HeaderArtifactOffset = "Artifact-Offset"
)

// Transport defaults applied when a run request leaves them out.
const (
	DefaultSourceLang  = "en"
	DefaultTargetLang  = "hi"
	DefaultVoiceOption = 1
)

const (
	defaultRequestTimeout = 300 * time.Second
	drainPollInterval     = 10 * time.Millisecond
	drainTimeout          = 30 * time.Second

	// replyHeadroom is kept free in every artifact page for the reply headers.
	replyHeadroom = 1024
)

// ErrSubjectEmpty indicates that a required subject was not configured.
var ErrSubjectEmpty = errors.New("subject cannot be empty")

// Pipeline is what the worker needs from the orchestrator.
type Pipeline interface {
	Available(mode core.Mode) *core.Failure
	Run(ctx context.Context, item core.WorkItem) core.PipelineResult
	Ingest(ctx context.Context, filename string, data []byte) (core.Artifact, *core.Failure)
	Retrieve(ctx context.Context, nameOrReference string) ([]byte, *core.Failure)
	Languages() map[string]string
	Characters() map[string]string
}

// Subjects names the NATS subject of each operation.
type Subjects struct {
	Run        string
	Languages  string
	Characters string
	Artifact   string
}

// Upload is an inline file carried by a RunRequest. Data is base64 in JSON.
type Upload struct {
	Filename string `json:"filename"`
	Data     []byte `json:"data"`
}

// RunRequest is the body of a run request.
type RunRequest struct {
	Header events.EventHeader `json:"header"`
	Mode   string             `json:"mode"`
	// Upload is stored first and used as the input; InputName refers to an earlier upload.
	Upload       *Upload `json:"upload,omitempty"`
	InputName    string  `json:"input_name,omitempty"`
	Text         string  `json:"text,omitempty"`
	SourceLang   string  `json:"source_lang,omitempty"`
	TargetLang   string  `json:"target_lang,omitempty"`
	VoiceOption  *int    `json:"voice_option,omitempty"`
	CharacterKey string  `json:"character_key,omitempty"`
	Engine       string  `json:"engine,omitempty"`
	CloneName    string  `json:"clone_name,omitempty"`
}

// RunReply is the body of a run reply.
type RunReply struct {
	Header events.EventHeader `json:"header"`

	presenter.Response
}

// ArtifactRequest is the body of an artifact request. Offset selects the page;
// artifacts larger than one NATS message are read by repeating the request
// with the offset of the next missing byte.
type ArtifactRequest struct {
	Name   string `json:"name"`
	Offset int    `json:"offset,omitempty"`
}

// NatsWorker serves pipeline operations on NATS subjects within a queue group,
// so several service instances share the load.
type NatsWorker struct {
	natsConnection *nats.Conn
	subjects       Subjects
	queueGroup     string
	pipeline       Pipeline
	requestTimeout time.Duration
	log            *logger.Logger
	inflight       sync.WaitGroup
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subjects Subjects,
	queueGroup string,
	pipeline Pipeline,
	requestTimeout time.Duration,
	log *logger.Logger,
) (*NatsWorker, error) {
	for _, subject := range []string{subjects.Run, subjects.Languages, subjects.Characters, subjects.Artifact} {
		if subject == "" {
			return nil, ErrSubjectEmpty
		}
	}

	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subjects:       subjects,
		queueGroup:     queueGroup,
		pipeline:       pipeline,
		requestTimeout: requestTimeout,
		log:            log,
	}, nil
}

// Run subscribes to every subject and blocks until ctx is done. Subscriptions
// are drained and in-flight run requests finish before it returns.
func (w *NatsWorker) Run(ctx context.Context) error {
	handlers := map[string]nats.MsgHandler{
		w.subjects.Run:        w.dispatchRun,
		w.subjects.Languages:  w.handleLanguages,
		w.subjects.Characters: w.handleCharacters,
		w.subjects.Artifact:   w.handleArtifact,
	}

	subscriptions := make([]*nats.Subscription, 0, len(handlers))

	for subject, handler := range handlers {
		sub, err := w.natsConnection.QueueSubscribe(subject, w.queueGroup, handler)
		if err != nil {
			_ = w.drain(subscriptions)

			return fmt.Errorf("failed to subscribe to subject %s: %w", subject, err)
		}

		subscriptions = append(subscriptions, sub)
	}

	w.log.Info("Worker listening on %s, %s, %s, %s (queue %q)",
		w.subjects.Run, w.subjects.Languages, w.subjects.Characters, w.subjects.Artifact, w.queueGroup)

	<-ctx.Done()

	drainErr := w.drain(subscriptions)

	w.inflight.Wait()

	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

// drain stops delivery on every subscription and waits until pending
// callbacks have run, so no new run request starts after it returns.
func (w *NatsWorker) drain(subscriptions []*nats.Subscription) error {
	var drainErrs []error

	for _, sub := range subscriptions {
		drainErr := sub.Drain()
		if drainErr != nil {
			drainErrs = append(drainErrs, drainErr)
		}
	}

	deadline := time.Now().Add(drainTimeout)

	for _, sub := range subscriptions {
		for sub.IsValid() && time.Now().Before(deadline) {
			time.Sleep(drainPollInterval)
		}
	}

	return errors.Join(drainErrs...)
}

// dispatchRun hands run requests to their own goroutine; pipeline stages can
// take minutes and must not hold up the subscription.
func (w *NatsWorker) dispatchRun(msg *nats.Msg) {
	w.inflight.Add(1)

	go func() {
		defer w.inflight.Done()

		w.handleRun(msg)
	}()
}

func (w *NatsWorker) handleRun(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.requestTimeout)
	defer cancel()

	var request RunRequest

	err := json.Unmarshal(msg.Data, &request)
	if err != nil {
		w.log.Error("Failed to unmarshal run request: %v", err)
		w.respondRun(msg, replyHeader(events.EventHeader{}),
			presenter.PresentFailure(core.NewFailure(core.KindValidation, "malformed request: %v", err)))

		return
	}

	header := replyHeader(request.Header)

	// Nothing is stored for a request the pipeline cannot serve.
	failure := w.pipeline.Available(core.Mode(request.Mode))
	if failure != nil {
		w.respondRun(msg, header, presenter.PresentFailure(failure))

		return
	}

	item, failure := w.buildWorkItem(ctx, &request)
	if failure != nil {
		w.respondRun(msg, header, presenter.PresentFailure(failure))

		return
	}

	w.log.Info("Running %s for workflow %s", item.Mode, header.WorkflowID)

	result := w.pipeline.Run(ctx, item)

	w.respondRun(msg, header, presenter.Present(result))
}

// buildWorkItem applies transport defaults and stores an inline upload.
func (w *NatsWorker) buildWorkItem(ctx context.Context, request *RunRequest) (core.WorkItem, *core.Failure) {
	item := core.WorkItem{
		Mode:         core.Mode(request.Mode),
		Text:         request.Text,
		SourceLang:   valueOr(request.SourceLang, DefaultSourceLang),
		TargetLang:   valueOr(request.TargetLang, DefaultTargetLang),
		VoiceOption:  DefaultVoiceOption,
		CharacterKey: request.CharacterKey,
		Engine:       core.EngineChoice(request.Engine),
		CloneName:    request.CloneName,
	}

	if request.VoiceOption != nil {
		item.VoiceOption = *request.VoiceOption
	}

	switch {
	case request.Upload != nil:
		artifact, failure := w.pipeline.Ingest(ctx, request.Upload.Filename, request.Upload.Data)
		if failure != nil {
			return core.WorkItem{}, failure
		}

		item.Input = artifact
	case request.InputName != "":
		item.Input = core.Artifact{Name: request.InputName}
	}

	return item, nil
}

func (w *NatsWorker) handleLanguages(msg *nats.Msg) {
	w.respondJSON(msg, presenter.Success(w.pipeline.Languages()))
}

func (w *NatsWorker) handleCharacters(msg *nats.Msg) {
	w.respondJSON(msg, presenter.Success(w.pipeline.Characters()))
}

func (w *NatsWorker) handleArtifact(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.requestTimeout)
	defer cancel()

	var request ArtifactRequest

	err := json.Unmarshal(msg.Data, &request)
	if err != nil {
		w.respondArtifactFailure(msg, core.NewFailure(core.KindValidation, "malformed request: %v", err))

		return
	}

	data, failure := w.pipeline.Retrieve(ctx, request.Name)
	if failure != nil {
		w.respondArtifactFailure(msg, failure)

		return
	}

	if request.Offset < 0 || request.Offset >= len(data) {
		w.respondArtifactFailure(msg, core.NewFailure(core.KindValidation,
			"offset %d is outside artifact %q of %d bytes", request.Offset, request.Name, len(data)))

		return
	}

	end := min(request.Offset+w.pageSize(), len(data))

	reply := nats.NewMsg(msg.Reply)
	reply.Header.Set(HeaderArtifactSize, strconv.Itoa(len(data)))
	reply.Header.Set(HeaderArtifactOffset, strconv.Itoa(request.Offset))
	reply.Data = data[request.Offset:end]

	err = msg.RespondMsg(reply)
	if err != nil {
		w.log.Error("Failed to respond with artifact %s at offset %d: %v", request.Name, request.Offset, err)
		w.respondArtifactFailure(msg, core.NewFailure(core.KindProcessing, "failed to send artifact: %v", err))
	}
}

// pageSize is the number of artifact bytes that fit in one reply.
func (w *NatsWorker) pageSize() int {
	maxPayload := int(w.natsConnection.MaxPayload())
	headroom := min(replyHeadroom, maxPayload/2)

	return max(maxPayload-headroom, 1)
}

func (w *NatsWorker) respondArtifactFailure(msg *nats.Msg, failure *core.Failure) {
	body, err := json.Marshal(presenter.PresentFailure(failure))
	if err != nil {
		w.log.Error("Failed to marshal artifact failure: %v", err)

		return
	}

	reply := nats.NewMsg(msg.Reply)
	reply.Header.Set(HeaderPipelineError, string(failure.Kind))
	reply.Data = body

	err = msg.RespondMsg(reply)
	if err != nil {
		w.log.Error("Failed to respond with artifact failure: %v", err)
	}
}

func (w *NatsWorker) respondRun(msg *nats.Msg, header events.EventHeader, response presenter.Response) {
	w.respondJSON(msg, RunReply{Header: header, Response: response})
}

func (w *NatsWorker) respondJSON(msg *nats.Msg, payload any) {
	replyData, err := json.Marshal(payload)
	if err != nil {
		w.log.Error("Failed to marshal reply: %v", err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		w.log.Error("Failed to publish reply: %v", err)
	}
}

// replyHeader keeps the caller's workflow and identity and stamps a new event.
func replyHeader(request events.EventHeader) events.EventHeader {
	header := request
	if header.WorkflowID == "" {
		header.WorkflowID = uuid.NewString()
	}

	header.EventID = uuid.NewString()
	header.Timestamp = time.Now().UTC()

	return header
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}
