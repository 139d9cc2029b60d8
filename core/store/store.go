// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package store provides the persistence adapter used by the generated handlers.

An Adapter exposes collection scoped insert, select, update and delete primitives.
The collection is the domain name. Rows are untyped JSON-like objects.

SQL implements the adapter on top of database/sql for postgres and mysql, Memory
keeps everything in process and is meant for tests and demos.
*/
package store

import (
	"context"
	"fmt"
	"strings"
)

// Row is a single stored record
type Row map[string]interface{}

// IDColumn is the identifying column every collection is expected to have
const IDColumn = "id"

// Adapter is the persistence capability handed to the request handlers. It is acquired
// once at server construction and shared by all requests.
//
// SelectOne, UpdateRow and DeleteRow return a nil row and no error if nothing matched.
type Adapter interface {
	SelectRows(ctx context.Context, collection string, projection Projection, filter Filter, limit, offset int) ([]Row, error)
	SelectOne(ctx context.Context, collection string, filter Filter, projection Projection) (Row, error)
	InsertRow(ctx context.Context, collection string, payload Row, returning Projection) (Row, error)
	UpdateRow(ctx context.Context, collection string, filter Filter, payload Row, returning Projection) (Row, error)
	DeleteRow(ctx context.Context, collection string, filter Filter, returning Projection) (Row, error)
	Ping(ctx context.Context) error
}

// Projection is the normalized "keys" setting: either an ordered list of
// columns or all fields. The zero value means "not configured".
type Projection struct {
	all     bool
	columns []string
}

// AllFields is the projection selecting every column
var AllFields = Projection{all: true}

// Columns returns a projection of the given columns. Without columns it is AllFields.
func Columns(columns ...string) Projection {
	if len(columns) == 0 {
		return AllFields
	}
	return Projection{columns: append([]string(nil), columns...)}
}

// ParseProjection normalizes a keys setting. Accepted are "*" for all fields,
// a comma separated string, or a list of strings.
func ParseProjection(keys interface{}) (Projection, error) {
	switch k := keys.(type) {
	case nil:
		return Projection{}, nil
	case Projection:
		return k, nil
	case string:
		return parseProjectionString(k), nil
	case []string:
		return Columns(k...), nil
	case []interface{}:
		columns := make([]string, 0, len(k))
		for _, c := range k {
			s, ok := c.(string)
			if !ok {
				return Projection{}, fmt.Errorf("keys must be strings, got %T", c)
			}
			columns = append(columns, strings.TrimSpace(s))
		}
		return Columns(columns...), nil
	}
	return Projection{}, fmt.Errorf("keys must be a string or a list of strings, got %T", keys)
}

func parseProjectionString(s string) Projection {
	s = strings.TrimSpace(s)
	if s == "" {
		return Projection{}
	}
	if s == "*" {
		return AllFields
	}
	var columns []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			columns = append(columns, c)
		}
	}
	for _, c := range columns {
		if c == "*" {
			return AllFields
		}
	}
	return Columns(columns...)
}

// IsSet returns true unless p is the zero value
func (p Projection) IsSet() bool {
	return p.all || len(p.columns) > 0
}

// All returns true if every column is selected
func (p Projection) All() bool {
	return p.all || len(p.columns) == 0
}

// List returns the selected columns, nil for all fields
func (p Projection) List() []string {
	if p.All() {
		return nil
	}
	return p.columns
}

// Or returns p if it is set, otherwise the first set fallback, otherwise AllFields
func (p Projection) Or(fallbacks ...Projection) Projection {
	if p.IsSet() {
		return p
	}
	for _, f := range fallbacks {
		if f.IsSet() {
			return f
		}
	}
	return AllFields
}

func (p Projection) String() string {
	if p.All() {
		return "*"
	}
	return strings.Join(p.columns, ",")
}

// apply returns a copy of row restricted to the projection
func (p Projection) apply(row Row) Row {
	if row == nil {
		return nil
	}
	out := Row{}
	if p.All() {
		for k, v := range row {
			out[k] = v
		}
		return out
	}
	for _, c := range p.columns {
		if v, ok := row[c]; ok {
			out[c] = v
		}
	}
	return out
}

// Condition is a single equality condition column = value
type Condition struct {
	Column string
	Value  interface{}
}

// Filter is a conjunction of equality conditions. The order is preserved in
// generated queries.
type Filter []Condition

// ByID returns the filter matching the row with the given id
func ByID(id interface{}) Filter {
	return Filter{{Column: IDColumn, Value: id}}
}

// matches returns true if row satisfies all conditions. Values are compared by their
// textual representation, route parameters are strings while stored ids are numbers.
func (f Filter) matches(row Row) bool {
	for _, c := range f {
		v, ok := row[c.Column]
		if !ok || fmt.Sprint(v) != fmt.Sprint(c.Value) {
			return false
		}
	}
	return true
}
