package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// NotFoundError is returned when readOne, update or destroy match no row
type NotFoundError struct {
	Domain string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no such %s with id '%s'", e.Domain, e.ID)
}

// StatusCode returns 404
func (e *NotFoundError) StatusCode() int {
	return http.StatusNotFound
}

type statusError struct {
	err    error
	status int
}

func (e *statusError) Error() string   { return e.err.Error() }
func (e *statusError) Unwrap() error   { return e.err }
func (e *statusError) StatusCode() int { return e.status }

// WithStatus attaches an HTTP status to err. Formatters use it to reject requests
// with a specific status.
func WithStatus(err error, status int) error {
	if err == nil {
		return nil
	}
	return &statusError{err: err, status: status}
}

// StatusOf returns the HTTP status carried by err, 500 if there is none
func StatusOf(err error) int {
	var coded interface{ StatusCode() int }
	if errors.As(err, &coded) {
		if status := coded.StatusCode(); status >= 400 && status < 600 {
			return status
		}
	}
	return http.StatusInternalServerError
}
