package forwarder

import (
	"errors"
	"fmt"
	"io/fs"
)

// Op names the step of forwarding a file that failed.
type Op string

const (
	OpScan    Op = "scan"
	OpRead    Op = "read"
	OpUpload  Op = "upload"
	OpArchive Op = "archive"
	OpRemove  Op = "remove"
)

// OpError records a failed step together with the path it was working on.
type OpError struct {
	Op   Op
	Path string
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// IsOp reports whether the error tree of err holds an *OpError for op.
func IsOp(err error, op Op) bool {
	switch e := err.(type) {
	case nil:
		return false
	case *OpError:
		return e.Op == op || IsOp(e.Err, op)
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if IsOp(inner, op) {
				return true
			}
		}
		return false
	case interface{ Unwrap() error }:
		return IsOp(e.Unwrap(), op)
	default:
		return false
	}
}

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

func newOpError(op Op, path string, err error) *OpError {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) && pathErr.Path == path {
		err = pathErr.Err
	}
	return &OpError{Op: op, Path: path, Err: err}
}
