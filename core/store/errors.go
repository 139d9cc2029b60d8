package store

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// Error is a failure reported by the database backend
type Error struct {
	Op         string
	Collection string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode maps well known driver errors to HTTP status codes. Everything
// else is an internal server error.
func (e *Error) StatusCode() int {
	var pqErr *pq.Error
	if errors.As(e.Err, &pqErr) {
		switch pqErr.Code {
		case "22P02", // invalid_text_representation, e.g. a broken id
			"23502", // not_null_violation
			"42703": // undefined_column
			return http.StatusBadRequest
		case "23505": // unique_violation
			return http.StatusConflict
		}
		return http.StatusInternalServerError
	}
	var myErr *mysql.MySQLError
	if errors.As(e.Err, &myErr) {
		switch myErr.Number {
		case 1062: // duplicate entry
			return http.StatusConflict
		case 1048, 1054, 1366: // column cannot be null, unknown column, incorrect value
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func wrap(op, collection string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Collection: collection, Err: err}
}
