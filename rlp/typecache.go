// Copyright 2025 R5 Labs
// This file is part of the R5 Core library.
//
// This software is provided "as is", without warranty of any kind,
// express or implied, including but not limited to the warranties
// of merchantability, fitness for a particular purpose and
// noninfringement. In no event shall the authors or copyright
// holders be liable for any claim, damages, or other liability,
// whether in an action of contract, tort or otherwise, arising
// from, out of or in connection with the software or the use or
// other dealings in the software.

package rlp

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// field represents a struct field that participates in RLP encoding/decoding.
type field struct {
	index    int
	typ      reflect.Type
	optional bool
	tail     bool
}

type structFields struct {
	fields        []field
	firstOptional int // index into fields of the first optional field, or len(fields)
}

var fieldCache sync.Map // map[reflect.Type]*structFields

func cachedStructFields(typ reflect.Type) (*structFields, error) {
	if v, ok := fieldCache.Load(typ); ok {
		return v.(*structFields), nil
	}
	sf, err := buildStructFields(typ)
	if err != nil {
		return nil, err
	}
	actual, _ := fieldCache.LoadOrStore(typ, sf)
	return actual.(*structFields), nil
}

func buildStructFields(typ reflect.Type) (*structFields, error) {
	var fields []field
	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		if sf.PkgPath != "" {
			continue // unexported
		}
		tag := sf.Tag.Get("rlp")
		var opts map[string]bool
		if tag != "" {
			opts = make(map[string]bool)
			for _, part := range strings.Split(tag, ",") {
				opts[strings.TrimSpace(part)] = true
			}
		}
		if opts["-"] {
			continue
		}
		f := field{index: i, typ: sf.Type, optional: opts["optional"], tail: opts["tail"]}
		if f.tail {
			if i != typ.NumField()-1 {
				return nil, fmt.Errorf("rlp: tail field %s.%s must be the last field", typ, sf.Name)
			}
			if sf.Type.Kind() != reflect.Slice {
				return nil, fmt.Errorf("rlp: invalid tail field %s.%s: type must be slice", typ, sf.Name)
			}
			f.optional = true
		}
		fields = append(fields, f)
	}
	firstOptional := len(fields)
	for i, f := range fields {
		if f.optional {
			firstOptional = i
			break
		}
	}
	// Every field after the first optional field must also be optional (or tail).
	for _, f := range fields[firstOptional:] {
		if !f.optional {
			return nil, fmt.Errorf("rlp: struct %s: required field after optional field", typ)
		}
	}
	return &structFields{fields: fields, firstOptional: firstOptional}, nil
}

