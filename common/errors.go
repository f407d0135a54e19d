// Package common provides shared utilities for epaperpub services
package common

import (
	"errors"
	"net/http"
)

// Sentinel errors for the aggregation pipeline. Components wrap these with
// fmt.Errorf("...: %w", ErrX) so callers can classify failures with errors.Is
// without depending on component-specific error types.
var (
	// ErrNotFound indicates the requested address, event or publication does
	// not exist anywhere the system looked (cache, relays).
	ErrNotFound = errors.New("not found")

	// ErrInvalidAddress indicates a bech32 identifier failed to decode, or
	// decoded to a variant the call site did not expect.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrUnsupportedKind indicates a decoded address names a kind the
	// calling endpoint cannot handle.
	ErrUnsupportedKind = errors.New("unsupported kind")

	// ErrUpstreamUnavailable indicates every relay in the configured set
	// failed to connect or subscribe; the caller gets an empty result rather
	// than this error for ordinary fetches, but collaborators that must
	// distinguish "empty" from "unreachable" (e.g. diagnostics) use it.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrMediaTooLarge indicates a media fetch exceeded the absolute size
	// ceiling, either via a declared Content-Length or observed bytes.
	ErrMediaTooLarge = errors.New("media exceeds size ceiling")

	// ErrMediaTimeout indicates a media fetch exceeded its per-type time
	// budget.
	ErrMediaTimeout = errors.New("media fetch timed out")

	// ErrRendererUnavailable indicates the external renderer collaborator
	// could not be reached or returned a non-2xx status.
	ErrRendererUnavailable = errors.New("renderer unavailable")
)

// CodeOf maps an error produced anywhere in the pipeline to the HTTP status
// code the public surface should report. Errors that wrap more than one
// sentinel resolve to the first match in the order checked below.
func CodeOf(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidAddress), errors.Is(err, ErrUnsupportedKind):
		return http.StatusBadRequest
	case errors.Is(err, ErrMediaTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrMediaTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrUpstreamUnavailable), errors.Is(err, ErrRendererUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
