package runtime

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the expected failures of the control core.
type ErrorKind string

const (
	KindNotFound          ErrorKind = "NotFound"
	KindAlreadyExists     ErrorKind = "AlreadyExists"
	KindPermissionDenied  ErrorKind = "PermissionDenied"
	KindInvalidArgument   ErrorKind = "InvalidArgument"
	KindAlreadyPending    ErrorKind = "AlreadyPending"
	KindNotPending        ErrorKind = "NotPending"
	KindInternal          ErrorKind = "InternalError"
	KindNoSuchInterpreter ErrorKind = "NoSuchInterpreter"
)

// Failure is the typed error returned by every core operation. Message is shown
// to scripts verbatim, so it quotes names exactly as the caller supplied them.
type Failure struct {
	Kind    ErrorKind
	Message string
	Err     error
}

var (
	ErrNotFound          = &Failure{Kind: KindNotFound}
	ErrAlreadyExists     = &Failure{Kind: KindAlreadyExists}
	ErrPermissionDenied  = &Failure{Kind: KindPermissionDenied}
	ErrInvalidArgument   = &Failure{Kind: KindInvalidArgument}
	ErrAlreadyPending    = &Failure{Kind: KindAlreadyPending}
	ErrNotPending        = &Failure{Kind: KindNotPending}
	ErrInternal          = &Failure{Kind: KindInternal}
	ErrNoSuchInterpreter = &Failure{Kind: KindNoSuchInterpreter}
)

func NewError(kind ErrorKind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError records err as the cause of a new error of the given kind.
func WrapError(kind ErrorKind, err error, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *Failure) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Failure) Unwrap() error {
	return e.Err
}

// Is matches the bare sentinels by kind, so errors.Is(err, ErrNotFound) works
// for any NotFound error regardless of its message.
func (e *Failure) Is(target error) bool {
	t, ok := target.(*Failure)
	if !ok {
		return false
	}
	if t.Message != "" || t.Err != nil {
		return e == t
	}
	return e.Kind == t.Kind
}

// KindOf reports the kind of the outermost *Failure in err's chain.
func KindOf(err error) ErrorKind {
	var typed *Failure
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return ""
}
