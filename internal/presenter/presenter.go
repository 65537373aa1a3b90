// Package presenter turns pipeline results into transport-agnostic response
// payloads. Status codes follow HTTP semantics so any transport can reuse them.
package presenter

import (
	"net/http"

	"github.com/book-expert/audio-pipeline/internal/core"
)

// Severity separates "your input was wrong" from "the service is broken"
// from "this feature is not running".
type Severity string

const (
	SeverityClient      Severity = "client"
	SeverityServer      Severity = "server"
	SeverityUnavailable Severity = "unavailable"
)

// ErrorBody is the error part of a Response.
type ErrorBody struct {
	Kind     core.ErrorKind `json:"kind"`
	Message  string         `json:"message"`
	Status   int            `json:"status"`
	Severity Severity       `json:"severity"`
}

// Response is the payload sent back to callers.
type Response struct {
	Success bool              `json:"success"`
	Data    map[string]string `json:"data,omitempty"`
	Error   *ErrorBody        `json:"error,omitempty"`
}

// Present converts a PipelineResult into a Response.
func Present(result core.PipelineResult) Response {
	if result.Failure != nil {
		return PresentFailure(result.Failure)
	}

	return Success(result.Outputs)
}

// Success wraps a data map, such as a catalog listing.
func Success(data map[string]string) Response {
	if data == nil {
		data = map[string]string{}
	}

	return Response{Success: true, Data: data}
}

// PresentFailure converts a Failure into an error Response.
func PresentFailure(failure *core.Failure) Response {
	status := StatusFor(failure.Kind)

	return Response{
		Success: false,
		Error: &ErrorBody{
			Kind:     failure.Kind,
			Message:  failure.Message,
			Status:   status,
			Severity: severityFor(status),
		},
	}
}

// StatusFor maps a failure kind to its HTTP-equivalent status code.
func StatusFor(kind core.ErrorKind) int {
	switch kind {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case core.KindProcessing, core.KindTranslation, core.KindSynthesis:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func severityFor(status int) Severity {
	switch {
	case status == http.StatusServiceUnavailable:
		return SeverityUnavailable
	case status >= http.StatusInternalServerError:
		return SeverityServer
	default:
		return SeverityClient
	}
}
