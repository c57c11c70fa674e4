package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// Kind classifies a failed exchange.
type Kind string

const (
	KindBadRequest   Kind = "bad_request"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindTooLarge     Kind = "too_large"
	KindValidation   Kind = "validation"
	KindServer       Kind = "server"
	KindTimeout      Kind = "timeout"
	KindNetwork      Kind = "network"
	KindUnknown      Kind = "unknown"
)

// Persistent reports whether failures of this kind point at a systemic
// problem that the user has to dismiss explicitly.
func (k Kind) Persistent() bool {
	return k == KindServer || k == KindNetwork
}

// Error is returned by every exchange that did not end in a 2xx response.
// Message is the text shown to the user; Err is the underlying failure.
type Error struct {
	Kind    Kind
	Status  int // 0 when no response was received
	Method  string
	Path    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Method, e.Path, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// IsKind reports whether err carries a transport error of kind k.
func IsKind(err error, k Kind) bool {
	te, ok := AsError(err)
	return ok && te.Kind == k
}

// errorBody is the FastAPI-style error payload.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
}

// backendDetail pulls a human-readable reason out of an error body. A
// "detail" that is not a plain string (422 validation lists) is ignored.
func backendDetail(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	if len(eb.Detail) > 0 {
		var s string
		if json.Unmarshal(eb.Detail, &s) == nil && s != "" {
			return s
		}
	}
	return eb.Message
}

func orDefault(s, def string) string {
	if s != "" {
		return s
	}
	return def
}

// statusError classifies a non-2xx response.
func statusError(method, path string, status int, body []byte) *Error {
	detail := backendDetail(body)
	e := &Error{
		Method: method,
		Path:   path,
		Status: status,
		Err:    fmt.Errorf("server returned %d", status),
	}

	switch status {
	case http.StatusBadRequest:
		e.Kind, e.Message = KindBadRequest, orDefault(detail, "Invalid request parameters")
	case http.StatusUnauthorized:
		e.Kind, e.Message = KindUnauthorized, "Unauthorized, please sign in again"
	case http.StatusForbidden:
		e.Kind, e.Message = KindForbidden, "Permission denied"
	case http.StatusNotFound:
		e.Kind, e.Message = KindNotFound, "The requested resource does not exist"
	case http.StatusRequestEntityTooLarge:
		e.Kind, e.Message = KindTooLarge, "File size exceeds the limit"
	case http.StatusUnprocessableEntity:
		e.Kind, e.Message = KindValidation, "Data validation failed"
	case http.StatusInternalServerError:
		e.Kind, e.Message = KindServer, orDefault(detail, "Internal server error")
	case http.StatusBadGateway:
		e.Kind, e.Message = KindServer, "Bad gateway"
	case http.StatusServiceUnavailable:
		e.Kind, e.Message = KindServer, "Service temporarily unavailable"
	default:
		e.Kind = KindUnknown
		if status >= 500 {
			e.Kind = KindServer
		}
		e.Message = orDefault(detail, fmt.Sprintf("Request failed (%d)", status))
	}
	return e
}

// failureError classifies an exchange that produced no response.
func failureError(method, path string, err error) *Error {
	e := &Error{Method: method, Path: path, Err: err}

	var netErr net.Error
	var opErr *net.OpError
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		e.Kind, e.Message = KindTimeout, "Request timed out, please try again later"
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.As(err, &dnsErr),
		errors.As(err, &opErr):
		e.Kind, e.Message = KindNetwork, "Unable to reach the server, please check your network connection"
	default:
		e.Kind, e.Message = KindUnknown, orDefault(err.Error(), "Network request failed")
	}
	return e
}
