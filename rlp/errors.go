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
	"errors"
	"fmt"
	"reflect"
)

var (
	// EOL is returned by Stream's decoder functions when the end of the
	// current list has been reached during streaming.
	EOL = errors.New("rlp: end of list")

	// Actual Errors
	ErrExpectedString   = errors.New("rlp: expected String or Byte")
	ErrExpectedList     = errors.New("rlp: expected List")
	ErrCanonInt         = errors.New("rlp: non-canonical integer format")
	ErrCanonSize        = errors.New("rlp: non-canonical size information")
	ErrElemTooLarge     = errors.New("rlp: element is larger than containing list")
	ErrValueTooLarge    = errors.New("rlp: value size exceeds available input length")
	ErrMoreThanOneValue = errors.New("rlp: input contains more than one value")
	ErrNegativeBigInt   = errors.New("rlp: cannot encode negative big.Int")

	// internal errors
	errNotInList  = errors.New("rlp: call of ListEnd outside of any list")
	errNotAtEOL   = errors.New("rlp: call of ListEnd not positioned at EOL")
	errUintOverflow = errors.New("rlp: uint overflow")
	errNoPointer  = errors.New("rlp: interface given to Decode must be a pointer")
	errDecodeIntoNil = errors.New("rlp: pointer given to Decode must not be nil")
)

// ListLengthMismatch is returned when the number of elements consumed while
// decoding a list did not match the list's declared payload length.
type ListLengthMismatch struct {
	Expected, Got uint64
}

func (e *ListLengthMismatch) Error() string {
	return fmt.Sprintf("rlp: list length mismatch: expected %d, got %d", e.Expected, e.Got)
}

// Decode error traces the struct field or type in which a decode error
// occurred, similar to an encoding/json.UnmarshalTypeError.
type decodeError struct {
	msg string
	typ reflect.Type
	ctx []string
	err error // original sentinel, if any; unwraps for errors.Is/As
}

func (err *decodeError) Error() string {
	ctx := ""
	if len(err.ctx) > 0 {
		ctx = ", decoding into "
		for i := len(err.ctx) - 1; i >= 0; i-- {
			ctx += err.ctx[i]
		}
	}
	return fmt.Sprintf("rlp: %s for %v%s", err.msg, err.typ, ctx)
}

func (err *decodeError) Unwrap() error { return err.err }

func wrapStreamError(err error, typ reflect.Type) error {
	switch err {
	case ErrCanonInt:
		return &decodeError{msg: "non-canonical integer (leading zero bytes)", typ: typ, err: err}
	case ErrCanonSize:
		return &decodeError{msg: "non-canonical size information", typ: typ, err: err}
	case ErrExpectedList:
		return &decodeError{msg: "expected input list", typ: typ, err: err}
	case ErrExpectedString:
		return &decodeError{msg: "expected input string or byte", typ: typ, err: err}
	case errUintOverflow:
		return &decodeError{msg: "input string too long", typ: typ, err: err}
	case errNotAtEOL:
		return &decodeError{msg: "extra input at end of list", typ: typ, err: err}
	}
	return err
}

func addErrorContext(err error, ctx string) error {
	if d, ok := err.(*decodeError); ok {
		d.ctx = append(d.ctx, ctx)
	}
	return err
}
