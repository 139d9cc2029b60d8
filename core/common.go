// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package core

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Operation is one of the five canonical operations a domain supports:
// Create, ReadOne, ReadMany, Update, Destroy
type Operation string

// all supported domain operations
const (
	OperationCreate   Operation = "create"
	OperationReadOne  Operation = "readOne"
	OperationReadMany Operation = "readMany"
	OperationUpdate   Operation = "update"
	OperationDestroy  Operation = "destroy"
)

// Operations lists all operations in route installation order
var Operations = []Operation{
	OperationReadMany,
	OperationCreate,
	OperationReadOne,
	OperationUpdate,
	OperationDestroy,
}

// Valid returns true if o is one of the canonical operations
func (o Operation) Valid() bool {
	switch o {
	case OperationCreate, OperationReadOne, OperationReadMany, OperationUpdate, OperationDestroy:
		return true
	}
	return false
}

// Mutating returns true for operations which change stored rows
func (o Operation) Mutating() bool {
	return o == OperationCreate || o == OperationUpdate || o == OperationDestroy
}

// AcceptsBody returns true for operations which read their input from the request body.
// All other operations validate the query parameters.
func (o Operation) AcceptsBody() bool {
	return o == OperationCreate || o == OperationUpdate
}

// UnmarshalJSON is a custom JSON unmarshaller
func (o *Operation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = Operation(s)
	if !o.Valid() {
		return fmt.Errorf("%s is not valid Operation", s)
	}
	return nil
}
