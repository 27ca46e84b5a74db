package core

import (
	"strings"

	"github.com/pkg/errors"
)

// FieldError is the error of a single input field, eg. `scores[1].score`.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError rejects an input. Err, when set, is the sentinel callers match with errors.Is.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

func (err ValidationError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	if len(err.Fields) == 0 {
		return "invalid input"
	}
	msgs := make([]string, 0, len(err.Fields))
	for _, fld := range err.Fields {
		msgs = append(msgs, fld.Field+": "+fld.Error)
	}
	return strings.Join(msgs, "; ")
}

func (err ValidationError) Unwrap() error {
	return err.Err
}

// FieldMap indexes the field errors by field; nil without field errors.
func (err ValidationError) FieldMap() map[string]string {
	if len(err.Fields) == 0 {
		return nil
	}
	flds := make(map[string]string, len(err.Fields))
	for _, fld := range err.Fields {
		flds[fld.Field] = fld.Error
	}
	return flds
}

// ShutdownError reports a failure the process should stop on, eg. the database going away.
type ShutdownError struct {
	Reason string
}

func NewShutdownError(reason string) error {
	return &ShutdownError{Reason: reason}
}

func (err *ShutdownError) Error() string {
	return "shutdown: " + err.Reason
}

// IsShutdown reports whether a ShutdownError is anywhere in err's chain.
func IsShutdown(err error) bool {
	var sErr *ShutdownError
	return errors.As(err, &sErr)
}
