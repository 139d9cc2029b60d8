// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package client provides easy and fast in-process access to a generated REST api

Instead of marshalling HTTP, the client talks directly to the mux router. The client
is perfectly suited for unit tests. With NewWithURL it talks to a remote server instead.
*/
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Client provides easy access to the REST API.
type Client struct {
	router     http.Handler
	httpClient *http.Client
	url        string
	ctx        context.Context

	defaultHeaders map[string]string
}

// NewWithRouter creates a client to make pseudo-REST requests to the backend,
// through the router
func NewWithRouter(router http.Handler) Client {
	return Client{
		router:         router,
		defaultHeaders: map[string]string{},
	}
}

// NewWithURL creates a client to make REST requests to the backend
func NewWithURL(url string) Client {
	return Client{
		url:            strings.TrimSuffix(url, "/"),
		httpClient:     &http.Client{Timeout: 20 * time.Second},
		defaultHeaders: map[string]string{},
	}
}

// WithHeader returns a new client with a default header added
func (c Client) WithHeader(key string, value string) Client {
	headers := make(map[string]string, len(c.defaultHeaders)+1)
	for k, v := range c.defaultHeaders {
		headers[k] = v
	}
	headers[key] = value
	c.defaultHeaders = headers
	return c
}

// WithContext returns a new client with specific request context
func (c Client) WithContext(ctx context.Context) Client {
	c.ctx = ctx
	return c
}

// Context returns the base context of all requests
func (c Client) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Envelope is the response body of the generated API
type Envelope struct {
	Data  json.RawMessage `json:"data"`
	Meta  *Meta           `json:"meta,omitempty"`
	Links *Links          `json:"links,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Meta is the pagination information of read many responses
type Meta struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

// Links are the page links of read many responses
type Links struct {
	Self string `json:"self"`
	Next string `json:"next,omitempty"`
	Prev string `json:"prev,omitempty"`
}

// Response is a raw response
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Do executes a request and returns the raw response. It never fails for HTTP error
// statuses, only if the request could not be made.
func (c Client) Do(method, path string, header map[string]string, body io.Reader) (*Response, error) {
	r, err := http.NewRequestWithContext(c.Context(), method, c.url+path, body)
	if err != nil {
		return nil, err
	}
	for key, value := range c.defaultHeaders {
		r.Header.Set(key, value)
	}
	for key, value := range header {
		r.Header.Set(key, value)
	}

	if c.router != nil {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, r)
		res := rec.Result()
		return &Response{Status: res.StatusCode, Header: res.Header, Body: rec.Body.Bytes()}, nil
	}

	res, err := c.httpClient.Do(r)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	return &Response{Status: res.StatusCode, Header: res.Header, Body: resBody}, nil
}

// request executes a JSON request. Statuses of 400 and above are returned as error, with
// the message of the error envelope. result receives the data of the envelope, it can be nil.
func (c Client) request(method, path string, header map[string]string, body io.Reader, result interface{}) (int, *Envelope, error) {
	res, err := c.Do(method, path, header, body)
	if err != nil {
		return http.StatusInternalServerError, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if res.Status == http.StatusNotModified || res.Status == http.StatusNoContent {
		return res.Status, nil, nil
	}

	var envelope Envelope
	if err := json.Unmarshal(res.Body, &envelope); err != nil {
		if res.Status >= http.StatusBadRequest {
			return res.Status, nil, fmt.Errorf("%s %s returned %d: %s", method, path, res.Status, strings.TrimSpace(string(res.Body)))
		}
		return res.Status, nil, fmt.Errorf("%s %s: cannot decode response: %w", method, path, err)
	}
	if res.Status >= http.StatusBadRequest {
		return res.Status, &envelope, fmt.Errorf("%s %s returned %d: %s", method, path, res.Status, envelope.Error)
	}
	if result != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, result); err != nil {
			return res.Status, &envelope, fmt.Errorf("%s %s: cannot decode data: %w", method, path, err)
		}
	}
	return res.Status, &envelope, nil
}

func jsonBody(body interface{}) (io.Reader, error) {
	if raw, ok := body.([]byte); ok {
		return bytes.NewReader(raw), nil
	}
	j, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(j), nil
}

var jsonHeader = map[string]string{"Content-Type": "application/json"}

// Get gets path and decodes the data into result. Returns the actual http status code.
func (c Client) Get(path string, result interface{}) (int, error) {
	status, _, err := c.request(http.MethodGet, path, nil, nil, result)
	return status, err
}

// GetPage gets a list from path and decodes the data into result. Returns the pagination
// meta data and links as well.
func (c Client) GetPage(path string, result interface{}) (int, *Envelope, error) {
	return c.request(http.MethodGet, path, nil, nil, result)
}

// Post posts body to path. body can also be a []byte.
func (c Client) Post(path string, body interface{}, result interface{}) (int, error) {
	reader, err := jsonBody(body)
	if err != nil {
		return http.StatusBadRequest, fmt.Errorf("POST to %s: %w", path, err)
	}
	status, _, err := c.request(http.MethodPost, path, jsonHeader, reader, result)
	return status, err
}

// Patch patches path with body. body can also be a []byte.
func (c Client) Patch(path string, body interface{}, result interface{}) (int, error) {
	reader, err := jsonBody(body)
	if err != nil {
		return http.StatusBadRequest, fmt.Errorf("PATCH to %s: %w", path, err)
	}
	status, _, err := c.request(http.MethodPatch, path, jsonHeader, reader, result)
	return status, err
}

// Delete deletes path. result receives the deleted row, it can be nil.
func (c Client) Delete(path string, result interface{}) (int, error) {
	status, _, err := c.request(http.MethodDelete, path, nil, nil, result)
	return status, err
}

// FormFile is a file for a multipart request
type FormFile struct {
	Field    string
	Filename string
	Data     []byte
}

// PostMultipart posts a multipart form with values and files to path
func (c Client) PostMultipart(path string, values map[string]string, files []FormFile, result interface{}) (int, error) {
	return c.multipart(http.MethodPost, path, values, files, result)
}

// PatchMultipart patches path with a multipart form
func (c Client) PatchMultipart(path string, values map[string]string, files []FormFile, result interface{}) (int, error) {
	return c.multipart(http.MethodPatch, path, values, files, result)
}

func (c Client) multipart(method, path string, values map[string]string, files []FormFile, result interface{}) (int, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	for key, value := range values {
		if err := w.WriteField(key, value); err != nil {
			return http.StatusBadRequest, err
		}
	}
	for _, f := range files {
		fw, err := w.CreateFormFile(f.Field, f.Filename)
		if err != nil {
			return http.StatusBadRequest, err
		}
		if _, err = fw.Write(f.Data); err != nil {
			return http.StatusBadRequest, err
		}
	}
	w.Close()

	status, _, err := c.request(method, path, map[string]string{"Content-Type": w.FormDataContentType()}, &b, result)
	return status, err
}

// Domain returns a client for the routes of one domain below prefix, e.g. "/api"
func (c Client) Domain(prefix, name string) Domain {
	return Domain{client: c, path: strings.TrimSuffix(prefix, "/") + "/" + name}
}

// Domain addresses the generated routes of one domain
type Domain struct {
	client     Client
	path       string
	parameters url.Values
}

// WithParameter returns a new domain client with an additional query parameter
func (d Domain) WithParameter(key, value string) Domain {
	parameters := url.Values{}
	for k, v := range d.parameters {
		parameters[k] = append([]string(nil), v...)
	}
	parameters.Add(key, value)
	d.parameters = parameters
	return d
}

// WithPage returns a new domain client for the page at offset
func (d Domain) WithPage(limit, offset int) Domain {
	return d.WithParameter("limit", strconv.Itoa(limit)).WithParameter("offset", strconv.Itoa(offset))
}

// Path returns the collection path including query parameters
func (d Domain) Path() string {
	return d.withQuery(d.path)
}

// ItemPath returns the path of a single item including query parameters
func (d Domain) ItemPath(id interface{}) string {
	return d.withQuery(d.path + "/" + url.PathEscape(fmt.Sprint(id)))
}

func (d Domain) withQuery(path string) string {
	if len(d.parameters) == 0 {
		return path
	}
	return path + "?" + d.parameters.Encode()
}

// Create posts body to the domain
func (d Domain) Create(body interface{}, result interface{}) (int, error) {
	return d.client.Post(d.path, body, result)
}

// List reads a page of the domain
func (d Domain) List(result interface{}) (int, *Envelope, error) {
	return d.client.GetPage(d.Path(), result)
}

// Read reads a single item
func (d Domain) Read(id interface{}, result interface{}) (int, error) {
	return d.client.Get(d.ItemPath(id), result)
}

// Update patches a single item
func (d Domain) Update(id interface{}, body interface{}, result interface{}) (int, error) {
	return d.client.Patch(d.ItemPath(id), body, result)
}

// Delete deletes a single item
func (d Domain) Delete(id interface{}, result interface{}) (int, error) {
	return d.client.Delete(d.ItemPath(id), result)
}
