// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"fmt"
	"regexp"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/restgen/core"
	"github.com/relabs-tech/restgen/core/schema"
	"github.com/relabs-tech/restgen/core/store"
	"github.com/relabs-tech/restgen/core/views"
)

// Configuration holds a complete backend configuration. The order of the domains
// is the order in which their routes are installed.
type Configuration struct {
	Domains []Domain `json:"domains"`
}

// Domain is one generated resource. The name is also the collection in the database.
type Domain struct {
	Name    string        `json:"name"`
	Schemas SchemasConfig `json:"schemas"`
	Views   views.Config  `json:"views"`
}

// SchemasConfig holds the optional schema of every operation. An operation without
// schema performs no validation.
type SchemasConfig struct {
	Create   *schema.Schema `json:"create,omitempty"`
	ReadOne  *schema.Schema `json:"readOne,omitempty"`
	ReadMany *schema.Schema `json:"readMany,omitempty"`
	Update   *schema.Schema `json:"update,omitempty"`
	Destroy  *schema.Schema `json:"destroy,omitempty"`

	// Keys is the projection of all returned rows, unless a request asks for
	// specific keys. Not set means all fields.
	Keys store.Projection `json:"-"`

	// Formatters are Go functions and therefore never part of the JSON configuration
	Formatters Formatters `json:"-"`
}

// UnmarshalJSON is a custom JSON unmarshaller which normalizes keys
func (c *SchemasConfig) UnmarshalJSON(data []byte) error {
	type plain SchemasConfig
	var raw struct {
		plain
		Keys interface{} `json:"keys"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	keys, err := store.ParseProjection(raw.Keys)
	if err != nil {
		return err
	}
	*c = SchemasConfig(raw.plain)
	c.Keys = keys
	return nil
}

// Schema returns the schema of operation, nil if there is none
func (c *SchemasConfig) Schema(operation core.Operation) *schema.Schema {
	switch operation {
	case core.OperationCreate:
		return c.Create
	case core.OperationReadOne:
		return c.ReadOne
	case core.OperationReadMany:
		return c.ReadMany
	case core.OperationUpdate:
		return c.Update
	case core.OperationDestroy:
		return c.Destroy
	}
	return nil
}

// ParseConfiguration parses a JSON configuration of the form
//
//	{"domains": [{"name": "users", "schemas": {...}, "views": {...}}]}
func ParseConfiguration(data []byte) (*Configuration, error) {
	var config Configuration
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse error in backend configuration: %w", err)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

var domainNameRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

func (c *Configuration) validate() error {
	seen := map[string]bool{}
	for _, d := range c.Domains {
		if !domainNameRegexp.MatchString(d.Name) {
			return fmt.Errorf("invalid domain name '%s'", d.Name)
		}
		if seen[d.Name] {
			return fmt.Errorf("domain '%s' is configured twice", d.Name)
		}
		seen[d.Name] = true
		for op := range d.Schemas.Formatters {
			if !op.Valid() {
				return fmt.Errorf("domain '%s': formatter for unknown operation '%s'", d.Name, op)
			}
		}
		for _, op := range []core.Operation{core.OperationReadOne, core.OperationReadMany, core.OperationDestroy} {
			if d.Schemas.Schema(op).AcceptFiles() {
				return fmt.Errorf("domain '%s': %s cannot accept files", d.Name, op)
			}
		}
	}
	return nil
}
