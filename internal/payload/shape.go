// Package payload validates the shape of collaborator JSON before it is decoded.
package payload

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind enumerates the response shapes collaborators are expected to return.
type Kind int

const (
	KindAny Kind = iota
	KindArray
	KindObject
	KindObjectWithNumber
	KindObjectWithArray
	KindObjectWithString
)

// Shape is a tagged union: Kind selects the check, Path is used by the
// field-level kinds and is a gjson path.
type Shape struct {
	Kind Kind
	Path string
}

func Any() Shape { return Shape{Kind: KindAny} }
func Array() Shape { return Shape{Kind: KindArray} }
func Object() Shape { return Shape{Kind: KindObject} }
func ObjectWithNumber(p string) Shape { return Shape{Kind: KindObjectWithNumber, Path: p} }
func ObjectWithArray(p string) Shape { return Shape{Kind: KindObjectWithArray, Path: p} }
func ObjectWithString(p string) Shape { return Shape{Kind: KindObjectWithString, Path: p} }

func (s Shape) String() string {
	switch s.Kind {
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindObjectWithNumber:
		return fmt.Sprintf("object with numeric %q", s.Path)
	case KindObjectWithArray:
		return fmt.Sprintf("object with array %q", s.Path)
	case KindObjectWithString:
		return fmt.Sprintf("object with string %q", s.Path)
	default:
		return "any"
	}
}

// Validate reports whether raw matches the shape. The returned error describes
// the mismatch and is meant to be wrapped as a data-format failure.
func (s Shape) Validate(raw []byte) error {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return fmt.Errorf("empty payload, expected %s", s)
	}
	if !gjson.ValidBytes(raw) {
		return fmt.Errorf("payload is not valid JSON, expected %s", s)
	}
	root := gjson.ParseBytes(raw)

	switch s.Kind {
	case KindAny:
		return nil
	case KindArray:
		if !root.IsArray() {
			return fmt.Errorf("expected array, got %s", describe(root))
		}
		return nil
	case KindObject:
		if !root.IsObject() {
			return fmt.Errorf("expected object, got %s", describe(root))
		}
		return nil
	}

	if !root.IsObject() {
		return fmt.Errorf("expected %s, got %s", s, describe(root))
	}
	field := root.Get(s.Path)
	if !field.Exists() {
		return fmt.Errorf("expected %s, field missing", s)
	}
	switch s.Kind {
	case KindObjectWithNumber:
		if field.Type != gjson.Number {
			return fmt.Errorf("expected %s, got %s", s, describe(field))
		}
	case KindObjectWithArray:
		if !field.IsArray() {
			return fmt.Errorf("expected %s, got %s", s, describe(field))
		}
	case KindObjectWithString:
		if field.Type != gjson.String {
			return fmt.Errorf("expected %s, got %s", s, describe(field))
		}
	}
	return nil
}

func describe(v gjson.Result) string {
	switch {
	case v.IsArray():
		return "array"
	case v.IsObject():
		return "object"
	}
	switch v.Type {
	case gjson.Null:
		return "null"
	case gjson.False, gjson.True:
		return "bool"
	case gjson.Number:
		return "number"
	case gjson.String:
		return "string"
	default:
		return "unknown"
	}
}
