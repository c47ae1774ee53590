package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"
)

// Kind classifies a domain failure so the HTTP layer can translate it
// without inspecting message strings.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindPrecondition
	KindBlocked
	KindValidation
	KindUnauthorized
)

// Error is the domain error type surfaced by services and repositories.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func NotFound(msg string) error     { return &Error{Kind: KindNotFound, Msg: msg} }
func Precondition(msg string) error { return &Error{Kind: KindPrecondition, Msg: msg} }
func Blocked(msg string) error      { return &Error{Kind: KindBlocked, Msg: msg} }
func Validation(msg string) error   { return &Error{Kind: KindValidation, Msg: msg} }
func Unauthorized(msg string) error { return &Error{Kind: KindUnauthorized, Msg: msg} }
func Internal(err error) error      { return &Error{Kind: KindInternal, Msg: "internal error", Err: err} }

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// HTTPStatus maps domain and infra errors onto HTTP status codes.
// Centralized here so handlers stay free of status juggling.
func HTTPStatus(err error) (int, string) {
	if err == nil {
		return http.StatusOK, ""
	}

	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindNotFound:
			return http.StatusNotFound, e.Msg
		case KindPrecondition, KindBlocked, KindValidation:
			return http.StatusBadRequest, e.Msg
		case KindUnauthorized:
			return http.StatusUnauthorized, e.Msg
		}
		return http.StatusInternalServerError, "internal error"
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, "record not found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, "request was canceled"
	}

	return http.StatusInternalServerError, "internal error"
}
