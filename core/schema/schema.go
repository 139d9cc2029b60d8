// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package schema

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/xeipuuv/gojsonschema"
)

// schema extensions understood by the request pipeline. They are stripped
// before the schema is compiled.
const (
	keyAcceptFiles  = "acceptFiles"
	keyAcceptedKeys = "acceptedKeys"
	keyFileKeys     = "fileKeys"
)

const rootContext = "(root)"

// DefaultFileKey is the multipart field accepted when a schema accepts files
// but does not name any keys
const DefaultFileKey = "file"

// FileKey names a multipart field which may carry files. MaxCount limits the number
// of files for that field, 0 means a single file.
type FileKey struct {
	Name     string `json:"name"`
	MaxCount int    `json:"maxCount"`
}

// UnmarshalJSON accepts either a plain field name or an object {name, maxCount}
func (k *FileKey) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*k = FileKey{Name: name}
		return nil
	}
	type plain FileKey
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("file key must be a string or {name, maxCount}: %w", err)
	}
	*k = FileKey(p)
	return nil
}

// Multiple returns true if the field may carry more than one file
func (k FileKey) Multiple() bool {
	return k.MaxCount > 1
}

// ValidationError is the first violation found while validating a payload
type ValidationError struct {
	// Field is the offending property path without the root qualifier
	Field string
	// Kind is the gojsonschema error type, e.g. "required" or "invalid_type"
	Kind    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// StatusCode returns the HTTP status of validation errors, always 400
func (e *ValidationError) StatusCode() int {
	return http.StatusBadRequest
}

// Schema is a compiled operation schema. The zero value and the nil schema
// accept every payload.
type Schema struct {
	compiled    *gojsonschema.Schema
	raw         map[string]interface{}
	acceptFiles bool
	fileKeys    []FileKey
	properties  []string
}

// Compile compiles a JSON-schema shaped document. refs are additional schemas with an $id
// which may be referenced from the document.
//
// Properties may use the draft-03 style `"required": true`, it is rewritten into the
// `required` array of the enclosing object.
func Compile(document map[string]interface{}, refs ...string) (*Schema, error) {
	s := &Schema{raw: document}

	if v, ok := document[keyAcceptFiles]; ok {
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%s must be a boolean", keyAcceptFiles)
		}
		s.acceptFiles = b
	}
	for _, key := range []string{keyAcceptedKeys, keyFileKeys} {
		v, ok := document[key]
		if !ok {
			continue
		}
		data, _ := json.Marshal(v)
		var keys []FileKey
		if err := json.Unmarshal(data, &keys); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		s.fileKeys = append(s.fileKeys, keys...)
	}

	normalized := normalize(document, true)
	if props, ok := normalized["properties"].(map[string]interface{}); ok {
		for name := range props {
			s.properties = append(s.properties, name)
		}
		sort.Strings(s.properties)
	}

	sl := gojsonschema.NewSchemaLoader()
	for _, ref := range refs {
		if err := sl.AddSchemas(gojsonschema.NewStringLoader(ref)); err != nil {
			return nil, fmt.Errorf("cannot add ref %s: %w", ref, err)
		}
	}
	compiled, err := sl.Compile(gojsonschema.NewGoLoader(normalized))
	if err != nil {
		return nil, fmt.Errorf("cannot compile schema: %w", err)
	}
	s.compiled = compiled
	return s, nil
}

// MustCompile is like Compile but panics on error. Useful for configurations written in Go.
func MustCompile(document map[string]interface{}, refs ...string) *Schema {
	s, err := Compile(document, refs...)
	if err != nil {
		panic(err)
	}
	return s
}

// FromJSON compiles a schema given as JSON text
func FromJSON(document string, refs ...string) (*Schema, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(document), &raw); err != nil {
		return nil, fmt.Errorf("parse error '%v' in schema: '%s'", err, document)
	}
	return Compile(raw, refs...)
}

// UnmarshalJSON compiles the schema while decoding a configuration. Refs are not
// available here, use Compile for schemas referencing others.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	compiled, err := Compile(raw)
	if err != nil {
		return err
	}
	*s = *compiled
	return nil
}

// MarshalJSON returns the document the schema was compiled from
func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.raw)
}

// AcceptFiles returns true if the operation accepts multipart file fields
func (s *Schema) AcceptFiles() bool {
	return s != nil && s.acceptFiles
}

// FileKeys returns the multipart fields which may carry files. It defaults to a
// single field named "file".
func (s *Schema) FileKeys() []FileKey {
	if s == nil || len(s.fileKeys) == 0 {
		return []FileKey{{Name: DefaultFileKey}}
	}
	return s.fileKeys
}

// Declares returns true if name is a declared top level property
func (s *Schema) Declares(name string) bool {
	if s == nil {
		return false
	}
	i := sort.SearchStrings(s.properties, name)
	return i < len(s.properties) && s.properties[i] == name
}

// Validate validates payload against the schema. Only the first violation is reported.
//
// An unexpected property rejected by `additionalProperties: false` is reported with
// the validator's own description, every other violation as "Key <field> is required".
func (s *Schema) Validate(payload interface{}) error {
	if s == nil || s.compiled == nil {
		return nil
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}

	result, err := s.compiled.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return &ValidationError{Kind: "invalid_document", Message: err.Error()}
	}
	if result.Valid() {
		return nil
	}

	first := result.Errors()[0]
	field := fieldPath(first)
	if first.Type() == "additional_property_not_allowed" {
		return &ValidationError{Field: field, Kind: first.Type(), Message: first.Description()}
	}
	return &ValidationError{
		Field:   field,
		Kind:    first.Type(),
		Message: fmt.Sprintf("Key %s is required", field),
	}
}

// fieldPath returns the offending property path with the root qualifier stripped. For
// missing required properties the context is the enclosing object, hence the property
// name gets appended.
func fieldPath(e gojsonschema.ResultError) string {
	path := ""
	if e.Context() != nil {
		path = e.Context().String()
	}
	path = strings.TrimPrefix(path, rootContext)
	path = strings.TrimPrefix(path, ".")

	switch e.Type() {
	case "required", "additional_property_not_allowed":
		if p, ok := e.Details()["property"].(string); ok && p != "" {
			if path == "" {
				path = p
			} else {
				path += "." + p
			}
		}
	}
	if path == "" {
		return rootContext
	}
	return path
}

// normalize returns a copy of node with draft-03 required flags moved into
// required arrays. On the top level the pipeline extensions are removed.
func normalize(node map[string]interface{}, top bool) map[string]interface{} {
	out := make(map[string]interface{}, len(node))
	for k, v := range node {
		out[k] = v
	}
	if top {
		delete(out, keyAcceptFiles)
		delete(out, keyAcceptedKeys)
		delete(out, keyFileKeys)
	}

	if items, ok := out["items"].(map[string]interface{}); ok {
		out["items"] = normalize(items, false)
	}

	if _, isFlag := out["required"].(bool); isFlag {
		// the flag was read by the parent
		delete(out, "required")
	}

	props, ok := out["properties"].(map[string]interface{})
	if !ok {
		return out
	}

	var required []string
	if existing, ok := out["required"].([]interface{}); ok {
		for _, r := range existing {
			if name, ok := r.(string); ok {
				required = append(required, name)
			}
		}
	}
	if existing, ok := out["required"].([]string); ok {
		required = append(required, existing...)
	}

	normalizedProps := make(map[string]interface{}, len(props))
	for name, p := range props {
		pm, ok := p.(map[string]interface{})
		if !ok {
			normalizedProps[name] = p
			continue
		}
		if flag, _ := pm["required"].(bool); flag {
			required = append(required, name)
		}
		normalizedProps[name] = normalize(pm, false)
	}
	out["properties"] = normalizedProps

	if len(required) > 0 {
		sort.Strings(required)
		list := make([]interface{}, 0, len(required))
		for i, name := range required {
			if i > 0 && required[i-1] == name {
				continue
			}
			list = append(list, name)
		}
		out["required"] = list
	} else {
		delete(out, "required")
	}
	return out
}
