package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/streamforge/vodflow/log"
)

type apiError struct {
	Msg    string `json:"message"`
	Status int    `json:"status"`
	Err    error  `json:"-"`
}

func writeHttpError(w http.ResponseWriter, msg string, status int, err error) apiError {
	var errorDetail string
	if err != nil {
		errorDetail = err.Error()
	}

	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": msg, "error_detail": errorDetail}); err != nil {
		log.LogNoVideoID("error writing HTTP error", "http_error_msg", msg, "error", err)
	}

	return apiError{msg, status, err}
}

// HTTP Errors
func WriteHTTPUnauthorized(w http.ResponseWriter, msg string, err error) apiError {
	return writeHttpError(w, msg, http.StatusUnauthorized, err)
}

func WriteHTTPForbidden(w http.ResponseWriter, msg string, err error) apiError {
	return writeHttpError(w, msg, http.StatusForbidden, err)
}

func WriteHTTPNotFound(w http.ResponseWriter, msg string, err error) apiError {
	return writeHttpError(w, msg, http.StatusNotFound, err)
}

func WriteHTTPBadRequest(w http.ResponseWriter, msg string, err error) apiError {
	return writeHttpError(w, msg, http.StatusBadRequest, err)
}

func WriteHTTPInternalServerError(w http.ResponseWriter, msg string, err error) apiError {
	return writeHttpError(w, msg, http.StatusInternalServerError, err)
}

// unretriableError wraps errors that must not be attempted again: bad input,
// wrong precondition state, corrupt sources. It embeds backoff.PermanentError
// so that retry loops built on the backoff package also stop on it.
type unretriableError struct {
	perm *backoff.PermanentError
}

func (e unretriableError) Error() string {
	return e.perm.Error()
}

// Unwrap keeps the backoff.PermanentError in the chain so both errors.As
// checks and backoff retry loops see it.
func (e unretriableError) Unwrap() error {
	return e.perm
}

// Unretriable returns an error that IsUnretriable reports as fatal.
func Unretriable(err error) error {
	return unretriableError{&backoff.PermanentError{Err: err}}
}

// IsUnretriable reports whether the error (or anything it wraps) was marked
// unretriable.
func IsUnretriable(err error) bool {
	var ue unretriableError
	return errors.As(err, &ue)
}

// The pipeline's error kinds. Each one is a plain wrapper so that stages can
// classify failures without string matching.

// Validation is invalid input: bad video ID, wrong precondition state,
// unknown quality label. Always fatal.
func Validation(format string, args ...interface{}) error {
	return Unretriable(validationError{fmt.Errorf(format, args...)})
}

type validationError struct{ error }

func (e validationError) Unwrap() error { return e.error }

func IsValidation(err error) bool {
	var ve validationError
	return errors.As(err, &ve)
}

// TransientIO marks object-store transport and disk I/O failures, retryable
// under the stage policy.
func TransientIO(err error) error {
	return transientIOError{err}
}

type transientIOError struct{ error }

func (e transientIOError) Unwrap() error { return e.error }

func IsTransientIO(err error) bool {
	var te transientIOError
	return errors.As(err, &te)
}

// ToolFailure marks a non-zero exit from an external tool. Retryable for
// encoder stages; callers wrap with Unretriable for probe failures.
func ToolFailure(tool string, err error) error {
	return toolFailureError{tool, err}
}

type toolFailureError struct {
	tool string
	err  error
}

func (e toolFailureError) Error() string { return fmt.Sprintf("%s failed: %s", e.tool, e.err) }
func (e toolFailureError) Unwrap() error { return e.err }

func IsToolFailure(err error) bool {
	var te toolFailureError
	return errors.As(err, &te)
}

// CorruptSource means the probe ran but the source is unusable: essential
// fields missing or no video stream. Always fatal.
func CorruptSource(format string, args ...interface{}) error {
	return Unretriable(corruptSourceError{fmt.Errorf(format, args...)})
}

type corruptSourceError struct{ error }

func (e corruptSourceError) Unwrap() error { return e.error }

func IsCorruptSource(err error) bool {
	var ce corruptSourceError
	return errors.As(err, &ce)
}
