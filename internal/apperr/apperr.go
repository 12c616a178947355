// Package apperr defines the proxy's error taxonomy, per spec §7: a
// small set of kinds the handler maps to an HTTP status without
// needing to know which component produced the error.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindBadRequest        Kind = "bad_request"
	KindPayloadTooLarge   Kind = "payload_too_large"
	KindTimeout           Kind = "timeout"
	KindUpstreamTransport Kind = "upstream_transport"
	KindTooManyRedirects  Kind = "too_many_redirects"
)

// Error is the typed error every component-facing failure should be
// wrapped in before reaching the handler. Errors that must stay silent
// (mid-stream upstream failures) never use this type - they're plain
// errors logged and swallowed at the streamer boundary.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with a matching Kind, used by
// callers that only care about the classification.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

func BadRequest(message string, err error) *Error {
	return &Error{Kind: KindBadRequest, Status: http.StatusBadRequest, Message: message, Err: err}
}

func PayloadTooLarge(message string) *Error {
	return &Error{Kind: KindPayloadTooLarge, Status: http.StatusRequestEntityTooLarge, Message: message}
}

func Timeout(message string, err error) *Error {
	return &Error{Kind: KindTimeout, Status: http.StatusRequestTimeout, Message: message, Err: err}
}

func UpstreamTransport(message string, err error) *Error {
	return &Error{Kind: KindUpstreamTransport, Status: http.StatusInternalServerError, Message: message, Err: err}
}

func TooManyRedirects(message string) *Error {
	return &Error{Kind: KindTooManyRedirects, Status: http.StatusInternalServerError, Message: message}
}

// Of extracts an *Error from err, reporting ok=false if err is not one.
func Of(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// StatusOf returns the HTTP status to surface for err: the wrapped
// *Error's status if present, else 500.
func StatusOf(err error) int {
	if e, ok := Of(err); ok {
		return e.Status
	}
	return http.StatusInternalServerError
}
