package common

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to react to the cause,
// e.g. an HTTP adapter choosing a status code.
type Kind string

const (
	KindValidation Kind = "validation"
	KindProvider   Kind = "provider"
	KindExtraction Kind = "extraction"
	KindStore      Kind = "store"
	KindNotFound   Kind = "not_found"
)

// Sentinels for errors.Is. An extraction error also matches ErrProvider.
var (
	ErrValidation = errors.New("validation error")
	ErrProvider   = errors.New("provider error")
	ErrExtraction = errors.New("extraction error")
	ErrStore      = errors.New("store error")
	ErrNotFound   = errors.New("not found")
)

// Error is a classified error carrying the failing operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" && e.Err != nil {
		return e.Err.Error()
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrProvider:
		return e.Kind == KindProvider || e.Kind == KindExtraction
	case ErrExtraction:
		return e.Kind == KindExtraction
	case ErrStore:
		return e.Kind == KindStore
	case ErrNotFound:
		return e.Kind == KindNotFound
	}
	return false
}

func newError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func ValidationError(op string, format string, args ...any) error {
	return newError(KindValidation, op, fmt.Errorf(format, args...))
}

func ProviderError(op string, err error) error {
	return newError(KindProvider, op, err)
}

func ExtractionError(op string, err error) error {
	return newError(KindExtraction, op, err)
}

func StoreError(op string, err error) error {
	return newError(KindStore, op, err)
}

func NotFoundError(op string, format string, args ...any) error {
	return newError(KindNotFound, op, fmt.Errorf(format, args...))
}

// KindOf returns the kind of the first classified error in err's chain,
// or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
