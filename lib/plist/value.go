// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package plist

import (
	"errors"
	"time"
)

// ErrMalformed is returned for any structural decode failure:
// truncated input, out-of-range references, unknown object markers,
// and inputs that exceed the depth or object limits.
var ErrMalformed = errors.New("plist: malformed property list")

const (
	// MaxDepth bounds container nesting.
	MaxDepth = 64

	// MaxObjects bounds the number of objects materialized by one
	// decode. Binary plists can share subtrees by reference, so the
	// decoded tree can be much larger than the input. Real Info.plist
	// files hold a few hundred objects.
	MaxObjects = 1 << 16
)

// Kind identifies which field of a [Value] is meaningful.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindString
	KindInteger
	KindReal
	KindBool
	KindData
	KindDate
	KindArray
	KindDict
	KindUID
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindBool:
		return "bool"
	case KindData:
		return "data"
	case KindDate:
		return "date"
	case KindArray:
		return "array"
	case KindDict:
		return "dict"
	case KindUID:
		return "uid"
	default:
		return "invalid"
	}
}

// Value is one decoded property list object. Kind selects the field
// that holds the payload; the others are zero. Integers and UIDs share
// Integer.
type Value struct {
	Kind    Kind
	String  string
	Integer int64
	Real    float64
	Bool    bool
	Data    []byte
	Date    time.Time
	Array   []Value
	Dict    map[string]Value
}

// Lookup follows a path of dictionary keys from v. It returns false if
// any step is missing or is not a dictionary.
func (v Value) Lookup(keys ...string) (Value, bool) {
	current := v
	for _, key := range keys {
		if current.Kind != KindDict {
			return Value{}, false
		}
		next, exists := current.Dict[key]
		if !exists {
			return Value{}, false
		}
		current = next
	}
	return current, true
}

// StringAt returns the string at the given key path. Missing keys and
// values of any other kind report false.
func (v Value) StringAt(keys ...string) (string, bool) {
	found, ok := v.Lookup(keys...)
	if !ok || found.Kind != KindString {
		return "", false
	}
	return found.String, true
}

// Strings returns the string elements of an array value, skipping
// non-string elements. A string value yields a one-element slice so
// keys that accept either form can be read uniformly.
func (v Value) Strings() []string {
	switch v.Kind {
	case KindString:
		return []string{v.String}
	case KindArray:
		var result []string
		for _, element := range v.Array {
			if element.Kind == KindString {
				result = append(result, element.String)
			}
		}
		return result
	default:
		return nil
	}
}
