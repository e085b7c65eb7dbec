// Package schema implements structural validation of decoded JSON payloads
// against explicit schema descriptors.
//
// A Schema is the shape authority: every declared required field must be
// present with the declared primitive kind, and any candidate key not
// declared is rejected as an additional property. Validation is pure and
// fails fast on the first violation in a deterministic order: declared
// fields in declaration order, depth first, then additional-property
// detection over the candidate's remaining keys in sorted order.
package schema

import (
	"fmt"
	"sort"
)

// Kind is the primitive type of a field
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindObject  Kind = "object"
	KindArray   Kind = "array"
)

// Field describes one declared property
type Field struct {
	Name     string
	Kind     Kind
	Optional bool
	Fields   []Field // object members, in declaration order
	Elem     *Field  // array element template
}

// Schema is a versioned shape descriptor
type Schema struct {
	Version int
	Fields  []Field
}

// Error is a first-failure structural mismatch. Path is a JSON-Pointer to
// the offending location ("" means the document root).
type Error struct {
	Path   string
	Reason string
}

func (e *Error) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// Str declares a required string field
func Str(name string) Field { return Field{Name: name, Kind: KindString} }

// Num declares a required number field
func Num(name string) Field { return Field{Name: name, Kind: KindNumber} }

// Bool declares a required boolean field
func Bool(name string) Field { return Field{Name: name, Kind: KindBoolean} }

// Obj declares a required object field with the given members
func Obj(name string, fields ...Field) Field {
	return Field{Name: name, Kind: KindObject, Fields: fields}
}

// Arr declares a required array field whose elements match elem
func Arr(name string, elem Field) Field {
	return Field{Name: name, Kind: KindArray, Elem: &elem}
}

// Opt marks a field optional
func (f Field) Opt() Field {
	f.Optional = true
	return f
}

// New builds a schema from declared fields
func New(version int, fields ...Field) *Schema {
	return &Schema{Version: version, Fields: fields}
}

// Validate checks candidate against the schema, returning nil or the first
// *Error found.
func (s *Schema) Validate(candidate map[string]any) error {
	return validateObject("", s.Fields, candidate)
}

func validateObject(path string, fields []Field, candidate map[string]any) error {
	for _, f := range fields {
		value, ok := candidate[f.Name]
		if !ok {
			if f.Optional {
				continue
			}
			return &Error{Path: path, Reason: fmt.Sprintf("must have required property '%s'", f.Name)}
		}
		if err := validateValue(path+"/"+f.Name, f, value); err != nil {
			return err
		}
	}

	declared := make(map[string]bool, len(fields))
	for _, f := range fields {
		declared[f.Name] = true
	}
	extras := make([]string, 0)
	for k := range candidate {
		if !declared[k] {
			extras = append(extras, k)
		}
	}
	if len(extras) > 0 {
		sort.Strings(extras)
		return &Error{Path: path + "/" + extras[0], Reason: "must NOT have additional properties"}
	}
	return nil
}

func validateValue(path string, f Field, value any) error {
	switch f.Kind {
	case KindString:
		if _, ok := value.(string); !ok {
			return &Error{Path: path, Reason: "must be string"}
		}
	case KindNumber:
		switch value.(type) {
		case float64, int, int64:
		default:
			return &Error{Path: path, Reason: "must be number"}
		}
	case KindBoolean:
		if _, ok := value.(bool); !ok {
			return &Error{Path: path, Reason: "must be boolean"}
		}
	case KindObject:
		obj, ok := value.(map[string]any)
		if !ok {
			return &Error{Path: path, Reason: "must be object"}
		}
		return validateObject(path, f.Fields, obj)
	case KindArray:
		arr, ok := value.([]any)
		if !ok {
			return &Error{Path: path, Reason: "must be array"}
		}
		if f.Elem != nil {
			for i, elem := range arr {
				if err := validateValue(fmt.Sprintf("%s/%d", path, i), *f.Elem, elem); err != nil {
					return err
				}
			}
		}
	default:
		return &Error{Path: path, Reason: fmt.Sprintf("unknown kind %q", f.Kind)}
	}
	return nil
}
