// Package apperr defines the error taxonomy shared by the fetch client, the
// stream resolver and the media relay, and maps each kind to an HTTP status.
package apperr

import (
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// SnippetLimit bounds how much of an upstream body is echoed back to callers.
const SnippetLimit = 512

// BadRequestError reports missing or invalid caller input.
type BadRequestError struct {
	Message string
}

func (e *BadRequestError) Error() string { return e.Message }

// BadRequest builds a BadRequestError with a formatted message.
func BadRequest(format string, args ...interface{}) error {
	return &BadRequestError{Message: fmt.Sprintf(format, args...)}
}

// NetworkError is a transport failure (DNS, dial, TLS, reset, cancelled context).
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error fetching %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// UpstreamError is a terminal non-2xx, non-redirect response.
type UpstreamError struct {
	URL     string
	Status  int
	Snippet string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s returned HTTP %d", e.URL, e.Status)
}

// TooManyRedirectsError means the redirect chain outgrew the configured budget.
type TooManyRedirectsError struct {
	URL string
	Max int
}

func (e *TooManyRedirectsError) Error() string {
	return fmt.Sprintf("too many redirects fetching %s (max %d)", e.URL, e.Max)
}

// MissingLocationError is a redirect status without a Location header.
type MissingLocationError struct {
	URL    string
	Status int
}

func (e *MissingLocationError) Error() string {
	return fmt.Sprintf("redirect %d from %s has no Location header", e.Status, e.URL)
}

// NotFoundError means no usable content could be extracted. It is distinct
// from transport failure: the upstream answered, it just had nothing playable.
type NotFoundError struct {
	Message    string
	Candidates []string
	Source     string
}

func (e *NotFoundError) Error() string { return e.Message }

// InvalidPayloadError is relayed media that failed content validation.
type InvalidPayloadError struct {
	URL    string
	Reason string
}

func (e *InvalidPayloadError) Error() string {
	return fmt.Sprintf("invalid payload from %s: %s", e.URL, e.Reason)
}

// Status maps err onto the HTTP status surfaced to callers.
func Status(err error) int {
	var (
		badRequest *BadRequestError
		notFound   *NotFoundError
		network    *NetworkError
		upstream   *UpstreamError
		tooMany    *TooManyRedirectsError
		missing    *MissingLocationError
		invalid    *InvalidPayloadError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &badRequest):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &invalid),
		errors.As(err, &upstream),
		errors.As(err, &network),
		errors.As(err, &tooMany),
		errors.As(err, &missing):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Kind returns a short machine-readable name for err.
func Kind(err error) string {
	var (
		badRequest *BadRequestError
		notFound   *NotFoundError
		network    *NetworkError
		upstream   *UpstreamError
		tooMany    *TooManyRedirectsError
		missing    *MissingLocationError
		invalid    *InvalidPayloadError
	)
	switch {
	case errors.As(err, &badRequest):
		return "bad_request"
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &invalid):
		return "invalid_payload"
	case errors.As(err, &upstream):
		return "upstream"
	case errors.As(err, &network):
		return "network"
	case errors.As(err, &tooMany):
		return "too_many_redirects"
	case errors.As(err, &missing):
		return "missing_location"
	default:
		return "internal"
	}
}

// Fields returns the diagnostics that accompany err in a JSON error body.
func Fields(err error) map[string]interface{} {
	fields := map[string]interface{}{"kind": Kind(err)}

	var (
		notFound *NotFoundError
		upstream *UpstreamError
		tooMany  *TooManyRedirectsError
		missing  *MissingLocationError
		invalid  *InvalidPayloadError
	)
	switch {
	case errors.As(err, &notFound):
		candidates := notFound.Candidates
		if candidates == nil {
			candidates = []string{}
		}
		fields["candidates"] = candidates
		fields["source"] = notFound.Source
	case errors.As(err, &upstream):
		fields["status"] = upstream.Status
		fields["url"] = upstream.URL
		fields["snippet"] = Snippet([]byte(upstream.Snippet))
	case errors.As(err, &tooMany):
		fields["url"] = tooMany.URL
		fields["maxRedirects"] = tooMany.Max
	case errors.As(err, &missing):
		fields["url"] = missing.URL
		fields["status"] = missing.Status
	case errors.As(err, &invalid):
		fields["url"] = invalid.URL
		fields["reason"] = invalid.Reason
	}
	return fields
}

// Snippet truncates b to SnippetLimit bytes without splitting a UTF-8 rune.
func Snippet(b []byte) string {
	if len(b) > SnippetLimit {
		b = b[:SnippetLimit]
	}
	// A read limit can also split the final rune.
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				b = b[:i]
			}
			break
		}
	}
	return string(b)
}
