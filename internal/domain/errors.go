package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for reporting purposes.
type Kind string

const (
	KindDatabase      Kind = "database"
	KindNotFound      Kind = "not_found"
	KindValidation    Kind = "validation"
	KindConfig        Kind = "config"
	KindEncryption    Kind = "encryption"
	KindSync          Kind = "sync"
	KindIO            Kind = "io"
	KindSerialization Kind = "serialization"
	KindOther         Kind = "other"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Error carries a classification kind alongside the underlying error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind. A nil err returns nil.
func NewError(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Errorf formats a new classified error.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the kind of err, walking the wrap chain. Errors that
// were never classified report KindOther, except ErrNotFound which
// reports KindNotFound.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	return KindOther
}

// CleanMessage strips engine-internal prefixes from an error message
// before it is shown to the user.
func CleanMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	for _, prefix := range []string{"sql parser error:", "syntax error:"} {
		if rest, ok := strings.CutPrefix(msg, prefix); ok {
			return strings.TrimSpace(rest)
		}
	}
	return msg
}
