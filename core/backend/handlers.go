// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/restgen/core"
	"github.com/relabs-tech/restgen/core/kss"
	"github.com/relabs-tech/restgen/core/logger"
	"github.com/relabs-tech/restgen/core/store"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// query parameters which are never validated nor used as filters
var reservedParameters = []string{"limit", "offset", "keys"}

// domainHandlers are the five generated handlers of one domain
type domainHandlers struct {
	domain     string
	schemas    SchemasConfig
	formatters map[core.Operation]Formatter
	adapter    store.Adapter
	kssDriver  kss.Driver
	notifier   core.Notifier
}

func (h *domainHandlers) install(router *mux.Router) {
	logger.Default().Debugln("  handle domain routes:", h.domain, "GET, POST")
	logger.Default().Debugln("  handle domain routes:", h.domain+"/{id}", "GET, PATCH, DELETE")

	router.Handle("", stage(h.readMany)).Methods(http.MethodGet)
	router.Handle("", stage(h.create)).Methods(http.MethodPost)
	router.Handle("/{id}", stage(h.readOne)).Methods(http.MethodGet)
	router.Handle("/{id}", stage(h.update)).Methods(http.MethodPatch)
	router.Handle("/{id}", stage(h.destroy)).Methods(http.MethodDelete)
}

type stagedHandler func(ctx context.Context, r *http.Request, rec *Record)

// stage runs fn with the staging record of the request. Without a record, i.e. if the
// route is not wrapped by Finalize, the default finalizers write the response.
func stage(fn stagedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		if rec := RecordFromContext(r.Context()); rec != nil {
			fn(r.Context(), r, rec)
			return
		}
		Finalize(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fn(r.Context(), r, RecordFromContext(r.Context()))
		})).ServeHTTP(w, r)
	})
}

func (h *domainHandlers) readMany(ctx context.Context, r *http.Request, rec *Record) {
	query := r.URL.Query()
	params := queryParameters(query)
	if err := h.schemas.ReadMany.Validate(params); err != nil {
		rec.Fail(err)
		return
	}
	limit, offset, err := pagination(query)
	if err != nil {
		rec.Fail(err)
		return
	}
	projection, err := requestedKeys(query)
	if err != nil {
		rec.Fail(err)
		return
	}

	rows, err := h.adapter.SelectRows(ctx, h.domain, projection.Or(h.schemas.Keys), h.filter(params), limit, offset)
	if err != nil {
		rec.Fail(err)
		return
	}
	rec.Succeed(rows, http.StatusOK)
	rec.Meta = pageMeta{Limit: limit, Offset: offset, Count: len(rows)}
	rec.Links = newPageLinks(r.URL, limit, offset, len(rows))
}

func (h *domainHandlers) create(ctx context.Context, r *http.Request, rec *Record) {
	input, err := h.input(ctx, r, core.OperationCreate)
	if err != nil {
		rec.Fail(err)
		return
	}
	row, err := h.adapter.InsertRow(ctx, h.domain, input, h.schemas.Keys.Or())
	if err != nil {
		rec.Fail(err)
		return
	}
	h.respond(ctx, rec, core.OperationCreate, row, http.StatusCreated)
}

// readOne honors keys only, limit and offset are meaningless for a single row
func (h *domainHandlers) readOne(ctx context.Context, r *http.Request, rec *Record) {
	query := r.URL.Query()
	if err := h.schemas.ReadOne.Validate(queryParameters(query)); err != nil {
		rec.Fail(err)
		return
	}
	projection, err := requestedKeys(query)
	if err != nil {
		rec.Fail(err)
		return
	}
	id := mux.Vars(r)["id"]
	row, err := h.adapter.SelectOne(ctx, h.domain, store.ByID(id), projection.Or(h.schemas.Keys))
	if err != nil {
		rec.Fail(err)
		return
	}
	if row == nil {
		rec.Fail(&NotFoundError{Domain: h.domain, ID: id})
		return
	}
	h.respond(ctx, rec, core.OperationReadOne, row, http.StatusOK)
}

func (h *domainHandlers) update(ctx context.Context, r *http.Request, rec *Record) {
	input, err := h.input(ctx, r, core.OperationUpdate)
	if err != nil {
		rec.Fail(err)
		return
	}
	id := mux.Vars(r)["id"]
	row, err := h.adapter.UpdateRow(ctx, h.domain, store.ByID(id), input, h.schemas.Keys.Or())
	if err != nil {
		rec.Fail(err)
		return
	}
	if row == nil {
		rec.Fail(&NotFoundError{Domain: h.domain, ID: id})
		return
	}
	h.respond(ctx, rec, core.OperationUpdate, row, http.StatusOK)
}

func (h *domainHandlers) destroy(ctx context.Context, r *http.Request, rec *Record) {
	if err := h.schemas.Destroy.Validate(queryParameters(r.URL.Query())); err != nil {
		rec.Fail(err)
		return
	}
	id := mux.Vars(r)["id"]
	row, err := h.adapter.DeleteRow(ctx, h.domain, store.ByID(id), h.schemas.Keys.Or())
	if err != nil {
		rec.Fail(err)
		return
	}
	if row == nil {
		rec.Fail(&NotFoundError{Domain: h.domain, ID: id})
		return
	}
	h.respond(ctx, rec, core.OperationDestroy, row, http.StatusOK)
}

// input reads, validates and formats the body of create and update. Accepted files are
// stored after validation, so the input formatter sees their keys.
func (h *domainHandlers) input(ctx context.Context, r *http.Request, operation core.Operation) (store.Row, error) {
	s := h.schemas.Schema(operation)
	body, files, err := readBody(r, s)
	// r is a copy made by WithContext, the server only cleans up the form of the original
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	if err != nil {
		return nil, err
	}
	if err := s.Validate(body); err != nil {
		return nil, err
	}
	if len(files) > 0 && h.kssDriver != nil {
		if err := storeFiles(ctx, h.kssDriver, h.domain, s.FileKeys(), files, body); err != nil {
			return nil, err
		}
	}

	request := &Request{
		Request:   r,
		Domain:    h.domain,
		Operation: operation,
		Body:      body,
		Params:    mux.Vars(r),
		Files:     files,
	}
	input, err := applyInput(ctx, h.formatters[operation].Input, request)
	if err != nil {
		return nil, err
	}
	if input == nil {
		input = store.Row{}
	}
	return input, nil
}

// respond formats row, notifies about mutations and stages the result
func (h *domainHandlers) respond(ctx context.Context, rec *Record, operation core.Operation, row store.Row, status int) {
	output, err := applyOutput(ctx, h.formatters[operation].Output, row)
	if err != nil {
		rec.Fail(err)
		return
	}
	if operation.Mutating() {
		h.notify(ctx, operation, output)
	}
	rec.Succeed(output, status)
}

// notify publishes a successful mutation. Failures are logged only, the mutation
// already happened.
func (h *domainHandlers) notify(ctx context.Context, operation core.Operation, row store.Row) {
	if h.notifier == nil {
		return
	}
	rlog := logger.FromContext(ctx)
	payload, err := json.Marshal(row)
	if err != nil {
		rlog.WithError(err).Errorf("Error 4710: cannot marshal %s notification for %s", operation, h.domain)
		return
	}
	if err := h.notifier.Notify(ctx, h.domain, operation, payload); err != nil {
		rlog.WithError(err).Errorf("Error 4711: cannot notify %s on %s", operation, h.domain)
	}
}

// filter returns the equality conditions for all query parameters the readMany schema declares
func (h *domainHandlers) filter(params store.Row) store.Filter {
	var names []string
	for name := range params {
		if h.schemas.ReadMany.Declares(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	var filter store.Filter
	for _, name := range names {
		if value, ok := params[name].(string); ok {
			filter = append(filter, store.Condition{Column: name, Value: value})
		}
	}
	return filter
}

// queryParameters returns the query without the reserved parameters as payload for validation
func queryParameters(query url.Values) store.Row {
	params := url.Values{}
	for k, v := range query {
		params[k] = v
	}
	for _, reserved := range reservedParameters {
		params.Del(reserved)
	}
	return formValues(params)
}

func pagination(query url.Values) (limit, offset int, err error) {
	limit, offset = defaultLimit, 0
	if s := query.Get("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil || limit < 1 || limit > maxLimit {
			return 0, 0, WithStatus(fmt.Errorf("parameter 'limit': must be an integer between 1 and %d", maxLimit), http.StatusBadRequest)
		}
	}
	if s := query.Get("offset"); s != "" {
		offset, err = strconv.Atoi(s)
		if err != nil || offset < 0 {
			return 0, 0, WithStatus(fmt.Errorf("parameter 'offset': must be a non-negative integer"), http.StatusBadRequest)
		}
	}
	return limit, offset, nil
}

func requestedKeys(query url.Values) (store.Projection, error) {
	keys, ok := query["keys"]
	if !ok {
		return store.Projection{}, nil
	}
	projection, err := store.ParseProjection(strings.Join(keys, ","))
	if err != nil {
		return projection, WithStatus(fmt.Errorf("parameter 'keys': %w", err), http.StatusBadRequest)
	}
	return projection, nil
}

type pageMeta struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

type pageLinks struct {
	Self string `json:"self"`
	Next string `json:"next,omitempty"`
	Prev string `json:"prev,omitempty"`
}

// newPageLinks returns the links of the current page. A full page has a next page.
func newPageLinks(u *url.URL, limit, offset, count int) pageLinks {
	links := pageLinks{Self: pageURL(u, limit, offset)}
	if count == limit {
		links.Next = pageURL(u, limit, offset+limit)
	}
	if offset > 0 {
		prev := offset - limit
		if prev < 0 {
			prev = 0
		}
		links.Prev = pageURL(u, limit, prev)
	}
	return links
}

func pageURL(u *url.URL, limit, offset int) string {
	page := *u
	q := page.Query()
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	page.RawQuery = q.Encode()
	return page.RequestURI()
}
