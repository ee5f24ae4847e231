// Package validation provides helpers for contract enforcement in constructors.
package validation

import (
	"fmt"
	"reflect"
)

// AssertNotNil panics if v is nil, including a typed nil pointer, map, slice,
// func or channel stored in an interface. It is meant for constructors where a
// dependency is mandatory.
//
// Usage:
//
//	validation.AssertNotNil(repo, "repository")
func AssertNotNil(v any, name string) {
	if isNil(v) {
		panic(fmt.Sprintf("critical error: %s cannot be nil", name))
	}
}

// Note: panic is reserved for programmer error (misconfiguration),
// never for runtime failures such as a database being unreachable.

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
