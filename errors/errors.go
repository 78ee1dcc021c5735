package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/cenkalti/backoff/v4"

	"github.com/videonest/videonest/log"
)

// Unretriable marks an error as a permanent failure: queue consumers must not
// requeue the message and retry loops must stop. Used for malformed payloads,
// probe failures and ffmpeg exits, where redelivery would only reproduce the
// same failure.
func Unretriable(err error) error {
	return unretriableError{backoff.Permanent(err)}
}

// IsUnretriable reports whether any error in the chain is unretriable.
func IsUnretriable(err error) bool {
	return errors.As(err, &unretriableError{})
}

type unretriableError struct{ error }

func (e unretriableError) Unwrap() error {
	return e.error
}

// NewObjectNotFoundError wraps a missing object-store key. Retriable: an
// upload notification can arrive before its blob is visible in the store, so
// consumers requeue and try again on redelivery.
func NewObjectNotFoundError(msg string, err error) error {
	if err != nil {
		msg = fmt.Sprintf("ObjectNotFoundError: %s: %s", msg, err)
	} else {
		msg = fmt.Sprintf("ObjectNotFoundError: %s", msg)
	}
	return objectNotFoundError{msg: msg, err: err}
}

func IsObjectNotFound(err error) bool {
	return errors.As(err, &objectNotFoundError{})
}

type objectNotFoundError struct {
	msg string
	err error
}

func (e objectNotFoundError) Error() string { return e.msg }

func (e objectNotFoundError) Unwrap() error { return e.err }

type apiError struct {
	Msg    string `json:"message"`
	Status int    `json:"status"`
	Err    error  `json:"-"`
}

func writeHTTPError(w http.ResponseWriter, msg string, status int, err error) apiError {
	var errorDetail string
	if err != nil {
		errorDetail = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": msg, "error_detail": errorDetail}); err != nil {
		log.LogNoVideoID("error writing HTTP error", "http_error_msg", msg, "error", err)
	}

	return apiError{msg, status, err}
}

// HTTP Errors
func WriteHTTPUnauthorized(w http.ResponseWriter, msg string, err error) apiError {
	return writeHTTPError(w, msg, http.StatusUnauthorized, err)
}

func WriteHTTPBadRequest(w http.ResponseWriter, msg string, err error) apiError {
	return writeHTTPError(w, msg, http.StatusBadRequest, err)
}

func WriteHTTPNotFound(w http.ResponseWriter, msg string, err error) apiError {
	return writeHTTPError(w, msg, http.StatusNotFound, err)
}

func WriteHTTPInternalServerError(w http.ResponseWriter, msg string, err error) apiError {
	return writeHTTPError(w, msg, http.StatusInternalServerError, err)
}
