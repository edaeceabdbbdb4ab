package apperr

import (
	"context"
	"errors"
	"net/http"
)

const (
	KindNotFound              = "not_found"
	KindConflict              = "conflict"
	KindInvalidRequest        = "invalid_request"
	KindInvalidTransition     = "invalid_transition"
	KindMalformedWebhook      = "malformed_webhook"
	KindSettlementUnavailable = "settlement_unavailable"
	KindTimeout               = "timeout"
	KindCanceled              = "canceled"
	KindInternal              = "internal"
)

// Error is a sentinel carrying a classification kind.
type Error struct {
	kind string
	msg  string
}

// New returns a classified sentinel. Compare with errors.Is.
func New(kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Kind returns the classification.
func (e *Error) Kind() string { return e.kind }

// kinder is satisfied by domain errors that carry a classification kind.
type kinder interface {
	Kind() string
}

var kindToStatus = map[string]int{
	KindNotFound:              http.StatusNotFound,
	KindConflict:              http.StatusConflict,
	KindInvalidRequest:        http.StatusBadRequest,
	KindInvalidTransition:     http.StatusConflict,
	KindMalformedWebhook:      http.StatusBadRequest,
	KindSettlementUnavailable: http.StatusBadGateway,
	KindTimeout:               http.StatusGatewayTimeout,
	KindCanceled:              http.StatusRequestTimeout,
}

// Kind classifies err, looking through wrapping.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	var k kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindInternal
	}
}

// HTTPStatus maps err to the status code a JSON endpoint should answer with.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if s, ok := kindToStatus[Kind(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}
