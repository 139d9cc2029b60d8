package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/relabs-tech/restgen/core"
	"github.com/relabs-tech/restgen/core/store"
)

// Request is what an input formatter sees: the original HTTP request plus the
// validated body, the route parameters and the accepted files
type Request struct {
	*http.Request
	Domain    string
	Operation core.Operation
	// Body is the validated payload. For multipart requests it holds the form values
	// and, if files are stored, their keys.
	Body store.Row
	// Params are the route parameters, e.g. "id"
	Params map[string]string
	// Files are the uploaded files by form field, only set if the operation accepts files
	Files map[string][]*File
}

// InputFormatter turns a request into the row that gets persisted. It runs after
// validation and before persistence.
type InputFormatter func(ctx context.Context, r *Request) (store.Row, error)

// OutputFormatter transforms a persisted row before it is returned
type OutputFormatter func(ctx context.Context, row store.Row) (store.Row, error)

// Formatter is the optional pair of transforms around persistence
type Formatter struct {
	Input  InputFormatter
	Output OutputFormatter
}

// Formatters holds the formatters of a domain by operation
type Formatters map[core.Operation]Formatter

func identityInput(_ context.Context, r *Request) (store.Row, error) {
	return r.Body, nil
}

func identityOutput(_ context.Context, row store.Row) (store.Row, error) {
	return row, nil
}

// normalized returns a complete formatter for every operation, identity where nothing is configured
func (f Formatters) normalized() map[core.Operation]Formatter {
	result := make(map[core.Operation]Formatter, len(core.Operations))
	for _, op := range core.Operations {
		formatter := f[op]
		if formatter.Input == nil {
			formatter.Input = identityInput
		}
		if formatter.Output == nil {
			formatter.Output = identityOutput
		}
		result[op] = formatter
	}
	return result
}

func applyInput(ctx context.Context, formatter InputFormatter, r *Request) (row store.Row, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("input formatter recovered from panic: %v", p)
		}
	}()
	return formatter(ctx, r)
}

func applyOutput(ctx context.Context, formatter OutputFormatter, row store.Row) (result store.Row, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("output formatter recovered from panic: %v", p)
		}
	}()
	return formatter(ctx, row)
}
