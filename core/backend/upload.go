package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/relabs-tech/restgen/core/kss"
	"github.com/relabs-tech/restgen/core/logger"
	"github.com/relabs-tech/restgen/core/schema"
	"github.com/relabs-tech/restgen/core/store"
)

// maxMemory is the part of a multipart form kept in memory, the rest goes to temporary files
const maxMemory = 32 << 20

// File is an uploaded file of a multipart request
type File struct {
	Field       string
	Filename    string
	ContentType string
	Size        int64
	// Key is the storage key, set once the file has been stored
	Key string

	header *multipart.FileHeader
}

// Open opens the uploaded content
func (f *File) Open() (multipart.File, error) {
	return f.header.Open()
}

// readBody reads the payload of create and update.
//
// The upload gate is decided here, before anything is read: multipart bodies are only
// parsed if the operation's schema accepts files. Files are only accepted under the
// schema's file keys. JSON bodies and url encoded forms are accepted always.
func readBody(r *http.Request, s *schema.Schema) (store.Row, map[string][]*File, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if !s.AcceptFiles() {
			return nil, nil, WithStatus(errors.New("multipart bodies are not accepted"), http.StatusUnsupportedMediaType)
		}
		return readMultipart(r, s.FileKeys())
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, nil, WithStatus(err, http.StatusBadRequest)
		}
		return formValues(r.PostForm), nil, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, nil, WithStatus(fmt.Errorf("cannot read body: %w", err), http.StatusBadRequest)
	}
	body := store.Row{}
	if len(bytes.TrimSpace(data)) == 0 {
		return body, nil, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&body); err != nil {
		return nil, nil, WithStatus(fmt.Errorf("invalid json body: %w", err), http.StatusBadRequest)
	}
	return body, nil, nil
}

func readMultipart(r *http.Request, keys []schema.FileKey) (store.Row, map[string][]*File, error) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		return nil, nil, WithStatus(fmt.Errorf("cannot parse multipart form: %w", err), http.StatusBadRequest)
	}
	accepted := make(map[string]schema.FileKey, len(keys))
	for _, k := range keys {
		accepted[k.Name] = k
	}

	files := map[string][]*File{}
	for field, headers := range r.MultipartForm.File {
		k, ok := accepted[field]
		if !ok {
			return nil, nil, WithStatus(fmt.Errorf("unexpected file field '%s'", field), http.StatusBadRequest)
		}
		maxCount := k.MaxCount
		if maxCount < 1 {
			maxCount = 1
		}
		if len(headers) > maxCount {
			return nil, nil, WithStatus(fmt.Errorf("too many files for field '%s', at most %d allowed", field, maxCount), http.StatusBadRequest)
		}
		for _, h := range headers {
			files[field] = append(files[field], &File{
				Field:       field,
				Filename:    h.Filename,
				ContentType: h.Header.Get("Content-Type"),
				Size:        h.Size,
				header:      h,
			})
		}
	}
	return formValues(r.MultipartForm.Value), files, nil
}

// formValues converts form values into a payload. Repeated fields become lists.
func formValues(values url.Values) store.Row {
	body := store.Row{}
	for k, v := range values {
		switch len(v) {
		case 0:
		case 1:
			body[k] = v[0]
		default:
			list := make([]interface{}, len(v))
			for i := range v {
				list[i] = v[i]
			}
			body[k] = list
		}
	}
	return body
}

// storeFiles stores every accepted file under <domain>/<uuid>/<filename> and merges the keys
// into body. Fields accepting more than one file get a list of keys.
func storeFiles(ctx context.Context, driver kss.Driver, domain string, keys []schema.FileKey, files map[string][]*File, body store.Row) error {
	for _, k := range keys {
		uploaded := files[k.Name]
		if len(uploaded) == 0 {
			continue
		}
		stored := make([]interface{}, 0, len(uploaded))
		for _, f := range uploaded {
			key := path.Join(domain, uuid.New().String(), safeFilename(f.Filename))
			if err := putFile(ctx, driver, key, f); err != nil {
				return fmt.Errorf("cannot store file '%s': %w", f.Filename, err)
			}
			f.Key = key
			stored = append(stored, key)
		}
		if k.Multiple() {
			body[k.Name] = stored
		} else {
			body[k.Name] = stored[0]
		}
		logger.FromContext(ctx).Debugf("stored %d file(s) for field '%s'", len(stored), k.Name)
	}
	return nil
}

func putFile(ctx context.Context, driver kss.Driver, key string, f *File) error {
	content, err := f.Open()
	if err != nil {
		return err
	}
	defer content.Close()
	return driver.Put(ctx, key, content, f.ContentType)
}

func safeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "")
	if name == "" || name == "." || name == "/" {
		return "file"
	}
	return name
}
