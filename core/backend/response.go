package backend

import (
	"context"
	"crypto/sha1"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/restgen/core/logger"
)

// Record is the per request staging record. Exactly one handler writes it, exactly one
// finalizer turns it into the response.
type Record struct {
	Data   interface{}
	Error  error
	Status int
	Meta   interface{}
	Links  interface{}

	staged bool
}

// Staged returns true once a handler has written a result or an error
func (rec *Record) Staged() bool {
	return rec.staged
}

// Succeed stages data with status, 0 means 200
func (rec *Record) Succeed(data interface{}, status int) {
	rec.Data = data
	rec.Status = status
	rec.staged = true
}

// Fail stages err. The status is taken from the error.
func (rec *Record) Fail(err error) {
	rec.Error = err
	rec.Status = StatusOf(err)
	rec.staged = true
}

// Finalizer writes the response for a staged record
type Finalizer func(w http.ResponseWriter, r *http.Request, rec *Record)

type contextKeyRecordType struct{}

var contextKeyRecord = &contextKeyRecordType{}

// ContextWithRecord returns a new context with an empty staging record
func ContextWithRecord(ctx context.Context) (context.Context, *Record) {
	rec := &Record{}
	return context.WithValue(ctx, contextKeyRecord, rec), rec
}

// RecordFromContext returns the staging record of the request or nil
func RecordFromContext(ctx context.Context) *Record {
	rec, _ := ctx.Value(contextKeyRecord).(*Record)
	return rec
}

// Finalize returns the middleware which creates the staging record of every request and
// hands it to onResult or onError once the handler returns. Nil finalizers mean the
// defaults. A panic in the handler is staged as an internal server error.
func Finalize(onResult, onError Finalizer) mux.MiddlewareFunc {
	if onResult == nil {
		onResult = ResultFinalizer
	}
	if onError == nil {
		onError = ErrorFinalizer
	}
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, rec := ContextWithRecord(r.Context())
			r = r.WithContext(ctx)

			func() {
				defer func() {
					if p := recover(); p != nil {
						logger.FromContext(ctx).Errorf("Error 4700: recovered from panic: %v", p)
						rec.Fail(fmt.Errorf("recovered from panic: %v", p))
					}
				}()
				h.ServeHTTP(w, r)
			}()

			if !rec.Staged() {
				return
			}
			if rec.Error != nil {
				onError(w, r, rec)
				return
			}
			onResult(w, r, rec)
		})
	}
}

type resultBody struct {
	Data  interface{} `json:"data"`
	Meta  interface{} `json:"meta,omitempty"`
	Links interface{} `json:"links,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

// ResultFinalizer writes {data, meta, links}. Responses to GET requests carry an Etag
// and honor If-None-Match.
func ResultFinalizer(w http.ResponseWriter, r *http.Request, rec *Record) {
	jsonData, err := json.Marshal(resultBody{Data: rec.Data, Meta: rec.Meta, Links: rec.Links})
	if err != nil {
		logger.FromContext(r.Context()).WithError(err).Errorf("Error 4701: cannot marshal response")
		http.Error(w, "Error 4701", http.StatusInternalServerError)
		return
	}
	status := rec.Status
	if status == 0 {
		status = http.StatusOK
	}
	if r.Method == http.MethodGet && status == http.StatusOK {
		etag := bytesToEtag(jsonData)
		w.Header().Set("Etag", etag)
		if ifNoneMatchFound(r.Header.Get("If-None-Match"), etag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(jsonData)
}

// ErrorFinalizer logs the staged error and writes {error}. Internal errors are not
// exposed to the client.
func ErrorFinalizer(w http.ResponseWriter, r *http.Request, rec *Record) {
	status := rec.Status
	if status == 0 {
		status = StatusOf(rec.Error)
	}
	rlog := logger.FromContext(r.Context()).WithError(rec.Error).WithField("status", status)
	message := rec.Error.Error()
	if status >= http.StatusInternalServerError {
		rlog.Errorf("Error 4702: %s %s failed", r.Method, r.URL.Path)
		message = http.StatusText(status)
	} else {
		rlog.Warnf("%s %s rejected", r.Method, r.URL.Path)
	}
	jsonData, _ := json.Marshal(errorBody{Error: message})
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(jsonData)
}

func bytesToEtag(b []byte) string {
	return fmt.Sprintf("\"%x\"", sha1.Sum(b))
}

// ifNoneMatchFound returns true if etag is found in ifNoneMatch. The format of ifNoneMatch is one
// of the following:
// If-None-Match: "<etag_value>"
// If-None-Match: "<etag_value>", "<etag_value>", ...
// If-None-Match: *
func ifNoneMatchFound(ifNoneMatch, etag string) bool {
	ifNoneMatch = strings.Trim(ifNoneMatch, " ")
	if len(ifNoneMatch) == 0 {
		return false
	}
	if ifNoneMatch == "*" {
		return true
	}
	for _, s := range strings.Split(ifNoneMatch, ",") {
		s = strings.Trim(s, " \"")
		t := strings.Trim(etag, " \"")
		if s == t {
			return true
		}
	}
	return false
}
