package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/book-expert/audio-pipeline/internal/presenter"
	"github.com/book-expert/audio-pipeline/internal/worker"
	"github.com/nats-io/nats.go"
)

// ErrRequestFailed is returned when the service answers with a failure.
var ErrRequestFailed = errors.New("pipeline request failed")

// subjectsFor derives every operation subject from a shared prefix.
func subjectsFor(prefix string) worker.Subjects {
	return worker.Subjects{
		Run:        prefix + ".run",
		Languages:  prefix + ".languages",
		Characters: prefix + ".characters",
		Artifact:   prefix + ".artifact",
	}
}

// pipelineClient issues request/reply calls against a running audio-pipeline service.
type pipelineClient struct {
	natsConnection *nats.Conn
	subjects       worker.Subjects
	timeout        time.Duration
}

func (c *pipelineClient) run(request worker.RunRequest) (worker.RunReply, error) {
	data, err := json.Marshal(request)
	if err != nil {
		return worker.RunReply{}, fmt.Errorf("failed to marshal run request: %w", err)
	}

	replyMsg, err := c.natsConnection.Request(c.subjects.Run, data, c.timeout)
	if err != nil {
		return worker.RunReply{}, fmt.Errorf("run request on %s failed: %w", c.subjects.Run, err)
	}

	var reply worker.RunReply

	err = json.Unmarshal(replyMsg.Data, &reply)
	if err != nil {
		return worker.RunReply{}, fmt.Errorf("failed to decode run reply: %w", err)
	}

	return reply, nil
}

func (c *pipelineClient) listing(subject string) (presenter.Response, error) {
	replyMsg, err := c.natsConnection.Request(subject, nil, c.timeout)
	if err != nil {
		return presenter.Response{}, fmt.Errorf("request on %s failed: %w", subject, err)
	}

	var response presenter.Response

	err = json.Unmarshal(replyMsg.Data, &response)
	if err != nil {
		return presenter.Response{}, fmt.Errorf("failed to decode reply from %s: %w", subject, err)
	}

	return response, nil
}

// fetch downloads an artifact, following the service's pages until every byte
// named by the Artifact-Size header has arrived.
func (c *pipelineClient) fetch(name string) ([]byte, error) {
	var artifact []byte

	for {
		page, size, err := c.fetchPage(name, len(artifact))
		if err != nil {
			return nil, err
		}

		artifact = append(artifact, page...)

		if size < 0 || len(artifact) >= size {
			return artifact, nil
		}

		if len(page) == 0 {
			return nil, fmt.Errorf("%w: empty page at offset %d of %d", ErrRequestFailed, len(artifact), size)
		}
	}
}

// fetchPage returns one page and the total size, or -1 when the reply has no size header.
func (c *pipelineClient) fetchPage(name string, offset int) ([]byte, int, error) {
	data, err := json.Marshal(worker.ArtifactRequest{Name: name, Offset: offset})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal artifact request: %w", err)
	}

	replyMsg, err := c.natsConnection.Request(c.subjects.Artifact, data, c.timeout)
	if err != nil {
		return nil, 0, fmt.Errorf("artifact request on %s failed: %w", c.subjects.Artifact, err)
	}

	if replyMsg.Header.Get(worker.HeaderPipelineError) != "" {
		var response presenter.Response

		err = json.Unmarshal(replyMsg.Data, &response)
		if err != nil || response.Error == nil {
			return nil, 0, fmt.Errorf("%w: %s", ErrRequestFailed, replyMsg.Header.Get(worker.HeaderPipelineError))
		}

		return nil, 0, failureError(response.Error)
	}

	sizeHeader := replyMsg.Header.Get(worker.HeaderArtifactSize)
	if sizeHeader == "" {
		return replyMsg.Data, -1, nil
	}

	size, err := strconv.Atoi(sizeHeader)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: bad %s header %q", ErrRequestFailed, worker.HeaderArtifactSize, sizeHeader)
	}

	return replyMsg.Data, size, nil
}

func failureError(body *presenter.ErrorBody) error {
	return fmt.Errorf("%w: %s: %s", ErrRequestFailed, body.Kind, body.Message)
}

// readUpload loads a local audio file for an inline upload.
func readUpload(path string) (*worker.Upload, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- the path is chosen by the CLI user
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return &worker.Upload{Filename: filepath.Base(path), Data: data}, nil
}
