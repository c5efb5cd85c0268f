package scope

import (
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2"
)

// RuntimeError is an error raised while executing statements. A warning is
// reported and execution continues; a fatal error ends the owning unit.
type RuntimeError struct {
	Err       error
	Statement string
	Range     hcl.Range
	Fatal     bool
}

func (e *RuntimeError) Error() string {
	prefix := "error"
	if !e.Fatal {
		prefix = "warning"
	}
	if e.Statement == "" {
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	}
	if e.Range.Filename != "" {
		return fmt.Sprintf("%s in %s at %s: %v", prefix, e.Statement, e.Range, e.Err)
	}
	return fmt.Sprintf("%s in %s: %v", prefix, e.Statement, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// Warningf builds a recoverable runtime error.
func Warningf(format string, args ...any) *RuntimeError {
	return &RuntimeError{Err: fmt.Errorf(format, args...)}
}

// Fatalf builds a fatal runtime error.
func Fatalf(format string, args ...any) *RuntimeError {
	return &RuntimeError{Err: fmt.Errorf(format, args...), Fatal: true}
}

// AsRuntimeError classifies err. Errors that are not RuntimeErrors are
// treated as fatal.
func AsRuntimeError(err error) *RuntimeError {
	if err == nil {
		return nil
	}
	var rt *RuntimeError
	if errors.As(err, &rt) {
		return rt
	}
	return &RuntimeError{Err: err, Fatal: true}
}

// IsWarning reports whether err is a recoverable runtime error.
func IsWarning(err error) bool {
	var rt *RuntimeError
	return errors.As(err, &rt) && !rt.Fatal
}
