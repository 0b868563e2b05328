// Package apperr defines the error taxonomy shared by the evaluation
// pipeline and its transports.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Upstream service names used in UpstreamServiceError.
const (
	ServiceIndex    = "index"
	ServiceModel    = "model"
	ServiceEmbedder = "embedder"
)

// ValidationError reports malformed caller input. It is raised before any
// external call is made.
type ValidationError struct {
	// Fields maps a field name to its validation messages.
	Fields map[string][]string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid input"
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, strings.Join(e.Fields[name], ", ")))
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// Add records a message for field.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// OrNil returns e if any field failed and nil otherwise.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Invalid builds a ValidationError for a single field.
func Invalid(field, msg string) *ValidationError {
	e := &ValidationError{}
	e.Add(field, msg)
	return e
}

// UpstreamServiceError reports that the semantic index, the embedder or the
// language model was unavailable or failed. No partial report is produced
// when one of these surfaces.
type UpstreamServiceError struct {
	// Service is one of ServiceIndex, ServiceModel or ServiceEmbedder.
	Service string

	// Op names the operation that failed, e.g. "search" or "complete".
	Op string

	// Retryable is true when the cause was transient (timeout, 429, 5xx).
	Retryable bool

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *UpstreamServiceError) Error() string {
	return fmt.Sprintf("upstream %s %s failed: %v", e.Service, e.Op, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *UpstreamServiceError) Unwrap() error {
	return e.Cause
}

// Upstream wraps err as an UpstreamServiceError. An error that already is
// one is returned unchanged so the innermost service stays attributed.
func Upstream(service, op string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamServiceError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamServiceError{Service: service, Op: op, Cause: err}
}

// AgentBoundExceeded reports that an agent retrieval loop hit its tool-call
// cap before signalling completion. It is never fatal: callers attach it to
// the result as a reduced-confidence note.
type AgentBoundExceeded struct {
	Steps int
	Cap   int
}

// Error implements the error interface.
func (e *AgentBoundExceeded) Error() string {
	return fmt.Sprintf("agent retrieval stopped after %d of %d allowed tool calls without completing", e.Steps, e.Cap)
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsUpstream reports whether err wraps an UpstreamServiceError.
func IsUpstream(err error) bool {
	var ue *UpstreamServiceError
	return errors.As(err, &ue)
}
