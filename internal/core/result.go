package core

import "fmt"

// ErrorKind classifies a pipeline failure.
type ErrorKind string

const (
	KindValidation         ErrorKind = "ValidationError"
	KindProcessing         ErrorKind = "ProcessingFailure"
	KindTranslation        ErrorKind = "TranslationFailure"
	KindSynthesis          ErrorKind = "SynthesisFailure"
	KindServiceUnavailable ErrorKind = "ServiceUnavailable"
	KindNotFound           ErrorKind = "NotFound"
)

// Failure is the structured error of a pipeline operation.
type Failure struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// NewFailure builds a Failure with a formatted message.
func NewFailure(kind ErrorKind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Output keys shared by every mode.
const (
	OutputAudioReference          = "audio_reference"
	OutputOriginalSampleReference = "original_sample_reference"
)

// PipelineResult is either a set of named outputs or a Failure, never both.
type PipelineResult struct {
	Outputs map[string]string
	Failure *Failure
}

// Succeeded builds a successful result.
func Succeeded(outputs map[string]string) PipelineResult {
	return PipelineResult{Outputs: outputs}
}

// Failed builds a failed result.
func Failed(failure *Failure) PipelineResult {
	return PipelineResult{Failure: failure}
}

// OK reports whether the result is a success.
func (r PipelineResult) OK() bool {
	return r.Failure == nil
}
