package runtime

import (
	"errors"
	"fmt"
	"strings"
)

// Code is the completion status of a command or evaluation.
type Code int

const (
	Ok Code = iota
	Error
	Break
	Continue
)

func (c Code) String() string {
	switch c {
	case Ok:
		return "ok"
	case Error:
		return "error"
	case Break:
		return "break"
	case Continue:
		return "continue"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Result is what a command, alias shim or evaluation hands back to its caller.
// ErrorInfo accumulates diagnostic lines while an error propagates outward; it
// never alters Value or Err.
type Result struct {
	Code      Code
	Value     string
	Err       error
	ErrorInfo []string
}

func OK(value string) Result {
	return Result{Code: Ok, Value: value}
}

func Fail(err error) Result {
	if err == nil {
		err = errors.New("unknown error")
	}
	return Result{Code: Error, Value: err.Error(), Err: err}
}

func Failf(format string, args ...any) Result {
	return Fail(fmt.Errorf(format, args...))
}

func (r Result) IsError() bool {
	return r.Code == Error
}

// Annotate returns a copy of r with line appended to its error trail.
func (r Result) Annotate(line string) Result {
	info := make([]string, 0, len(r.ErrorInfo)+1)
	info = append(info, r.ErrorInfo...)
	r.ErrorInfo = append(info, line)
	return r
}

// AsError converts an Error result into a Go error; any other code yields nil.
func (r Result) AsError() error {
	if r.Code != Error {
		return nil
	}
	if r.Err != nil {
		return r.Err
	}
	return errors.New(r.Value)
}

// Trace renders the message followed by every annotation, one per line.
func (r Result) Trace() string {
	if len(r.ErrorInfo) == 0 {
		return r.Value
	}
	var b strings.Builder
	b.WriteString(r.Value)
	for _, line := range r.ErrorInfo {
		b.WriteString("\n    ")
		b.WriteString(line)
	}
	return b.String()
}
