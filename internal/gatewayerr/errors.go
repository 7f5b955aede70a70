// Package gatewayerr defines the typed error taxonomy the gateway surfaces
// across the version resolver, artifact store, model cache and inference
// engine, and maps each kind to the HTTP status the router should return.
package gatewayerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a class of failure from §7 of the specification.
type Kind string

const (
	AuthMissing              Kind = "auth_missing"
	AuthMalformed            Kind = "auth_malformed"
	AuthInvalid              Kind = "auth_invalid"
	AuthExpired              Kind = "auth_expired"
	ScopeDenied              Kind = "scope_denied"
	VersionUnresolved        Kind = "version_unresolved"
	ArtifactNotFound         Kind = "artifact_not_found"
	ArtifactInvalid          Kind = "artifact_invalid"
	LoadFailed               Kind = "load_failed"
	OutOfMemory              Kind = "out_of_memory"
	GenerationTimeout        Kind = "generation_timeout"
	GpuFault                 Kind = "gpu_fault"
	MetadataStoreUnavailable Kind = "metadata_store_unavailable"
	BadRequest               Kind = "bad_request"
	Internal                 Kind = "internal"
)

var statusByKind = map[Kind]int{
	AuthMissing:              http.StatusUnauthorized,
	AuthMalformed:            http.StatusUnauthorized,
	AuthInvalid:              http.StatusUnauthorized,
	AuthExpired:              http.StatusUnauthorized,
	ScopeDenied:              http.StatusForbidden,
	VersionUnresolved:        http.StatusInternalServerError,
	ArtifactNotFound:         http.StatusInternalServerError,
	ArtifactInvalid:          http.StatusInternalServerError,
	LoadFailed:               http.StatusInternalServerError,
	OutOfMemory:              http.StatusInternalServerError,
	GenerationTimeout:        http.StatusInternalServerError,
	GpuFault:                 http.StatusInternalServerError,
	MetadataStoreUnavailable: http.StatusInternalServerError,
	BadRequest:               http.StatusBadRequest,
	Internal:                 http.StatusInternalServerError,
}

// Error is a Kind paired with a message and optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Model   string
	Cause   error
}

func (e *Error) Error() string {
	if e.Model != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s (model=%s): %v", e.Kind, e.Message, e.Model, e.Cause)
		}
		return fmt.Sprintf("%s: %s (model=%s)", e.Kind, e.Message, e.Model)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithModel attaches the model name this error concerns.
func (e *Error) WithModel(name string) *Error {
	e.Model = name
	return e
}

// StatusCode returns the HTTP status the router maps this error's kind to.
func StatusCode(err error) int {
	var ge *Error
	if errors.As(err, &ge) {
		if status, ok := statusByKind[ge.Kind]; ok {
			return status
		}
	}
	return http.StatusInternalServerError
}

// KindOf extracts the Kind from err, or Internal if err is not a *Error.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return Internal
}

// Is reports whether err is a gatewayerr.Error of the given kind.
func Is(err error, kind Kind) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind == kind
	}
	return false
}
