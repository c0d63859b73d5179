// Package apperr defines the error taxonomy shared by the ledgers, the risk
// validator, the schedulers and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

type Kind string

const (
	KindValidation          Kind = "validation"
	KindNotFound            Kind = "not_found"
	KindForbidden           Kind = "forbidden"
	KindInvalidState        Kind = "invalid_state"
	KindRiskViolation       Kind = "risk_violation"
	KindExternalUnavailable Kind = "external_unavailable"
	KindConflict            Kind = "conflict"
	KindUnauthorized        Kind = "unauthorized"
	KindInternal            Kind = "internal"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrForbidden           = &Error{Kind: KindForbidden}
	ErrInvalidState        = &Error{Kind: KindInvalidState}
	ErrRiskViolation       = &Error{Kind: KindRiskViolation}
	ErrExternalUnavailable = &Error{Kind: KindExternalUnavailable}
	ErrConflict            = &Error{Kind: KindConflict}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized}
)

type Error struct {
	Kind    Kind
	Code    string
	Message string

	// Fields carries field-level detail for validation errors.
	Fields map[string]string
	// State is the entity state observed when an invalid transition was attempted.
	State string
	// Violations lists the failed rules of a risk rejection.
	Violations []string

	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Code != "" {
		b.WriteString(" [")
		b.WriteString(e.Code)
		b.WriteString("]")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.State != "" {
		b.WriteString(" (state=")
		b.WriteString(e.State)
		b.WriteString(")")
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+e.Fields[k])
		}
		b.WriteString(" {")
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString("}")
	}
	if len(e.Violations) > 0 {
		b.WriteString(" violations=")
		b.WriteString(strings.Join(e.Violations, ","))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches sentinels (no code, no message) by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	if t.Code == "" && t.Message == "" {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

func Validation(code, message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message, Fields: fields}
}

func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

// Forbidden never carries detail about the protected entity.
func Forbidden() *Error {
	return &Error{Kind: KindForbidden, Code: "FORBIDDEN", Message: "access denied"}
}

func InvalidState(code, message, state string) *Error {
	return &Error{Kind: KindInvalidState, Code: code, Message: message, State: state}
}

func RiskViolation(violations []string) *Error {
	return &Error{
		Kind:       KindRiskViolation,
		Code:       "RISK_VIOLATION",
		Message:    "trade rejected by risk rules",
		Violations: append([]string(nil), violations...),
	}
}

func Unavailable(code string, err error) *Error {
	msg := "external collaborator unavailable"
	return &Error{Kind: KindExternalUnavailable, Code: code, Message: msg, Err: err}
}

func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Code: "UNAUTHORIZED", Message: message}
}

// Internal wraps a storage or programming failure. The cause is kept for logs
// only and is not rendered to clients.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Code: "INTERNAL", Message: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidState:
		return http.StatusConflict
	case KindRiskViolation:
		return http.StatusUnprocessableEntity
	case KindExternalUnavailable:
		return http.StatusServiceUnavailable
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Wrap annotates err with an operation name while keeping its kind.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
