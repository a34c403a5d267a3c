package apperr

import (
	"context"
	"errors"
)

// Kind classifies failures surfaced to a requesting client.
type Kind string

const (
	KindAuth        Kind = "auth"
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindPersistence Kind = "persistence"
)

const internalMessage = "internal error"

// Error is a classified failure. Message is safe to show to the requester.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Persistence(err error) *Error {
	return &Error{Kind: KindPersistence, Err: err}
}

func Auth(err error) *Error {
	return &Error{Kind: KindAuth, Message: "unauthorized", Err: err}
}

// KindOf classifies err. Unclassified errors count as persistence failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindPersistence
}

// PublicMessage is the reason string returned to the acting client.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindPersistence {
		return internalMessage
	}
	if e.Message != "" {
		return e.Message
	}
	return internalMessage
}
