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

// Package rlp implements the RLP serialization format described by the
// Ethereum Yellow Paper. It is used throughout discv4 for encoding the
// six wire messages and for the raw key/value pairs carried by ENR
// records.
package rlp

import (
	"bytes"
	"fmt"
	"io"
	"math/big"
	"net"
	"reflect"
)

// Encoder is implemented by types that want to control their own RLP encoding.
type Encoder interface {
	EncodeRLP(io.Writer) error
}

var (
	encoderInterface = reflect.TypeOf(new(Encoder)).Elem()
	bigIntType       = reflect.TypeOf(big.Int{})
	netIPType        = reflect.TypeOf(net.IP(nil))
)

// Encode writes the RLP encoding of val to w.
func Encode(w io.Writer, val interface{}) error {
	b, err := EncodeToBytes(val)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// EncodeToBytes returns the RLP encoding of val.
func EncodeToBytes(val interface{}) ([]byte, error) {
	return encodeValue(reflect.ValueOf(val))
}

// EncodeToReader returns a reader from which the RLP encoding of val can be
// read as well as its size.
func EncodeToReader(val interface{}) (size int, r io.Reader, err error) {
	b, err := EncodeToBytes(val)
	if err != nil {
		return 0, nil, err
	}
	return len(b), bytes.NewReader(b), nil
}

func encodeValue(v reflect.Value) ([]byte, error) {
	if !v.IsValid() {
		return []byte{0x80}, nil
	}

	// Encoder interface takes priority, including on pointer and addressable
	// non-pointer receivers.
	if v.Type().Implements(encoderInterface) {
		return encodeEncoder(v.Interface().(Encoder))
	}
	if v.CanAddr() && v.Addr().Type().Implements(encoderInterface) {
		return encodeEncoder(v.Addr().Interface().(Encoder))
	}

	for v.Kind() == reflect.Interface || v.Kind() == reflect.Ptr {
		if v.IsNil() {
			// A nil pointer or interface has no statically known shape to
			// encode an empty instance of, so it degenerates to the empty string.
			return []byte{0x80}, nil
		}
		v = v.Elem()
		if v.Type().Implements(encoderInterface) {
			return encodeEncoder(v.Interface().(Encoder))
		}
	}

	if v.Type() == bigIntType {
		bi := v.Interface().(big.Int)
		return encodeBigInt(&bi)
	}
	if v.Type() == netIPType {
		return encodeString(v.Interface().(net.IP)), nil
	}

	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			return []byte{0x01}, nil
		}
		return []byte{0x80}, nil

	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		return encodeUint(v.Uint()), nil

	case reflect.String:
		return encodeString([]byte(v.String())), nil

	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return encodeString(v.Bytes()), nil
		}
		return encodeList(v)

	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, v.Len())
			reflect.Copy(reflect.ValueOf(b), v)
			return encodeString(b), nil
		}
		return encodeList(v)

	case reflect.Struct:
		return encodeStruct(v)

	default:
		return nil, fmt.Errorf("rlp: type %v is not RLP-serializable", v.Type())
	}
}

func encodeEncoder(e Encoder) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := e.EncodeRLP(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeUint(u uint64) []byte {
	if u == 0 {
		return []byte{0x80}
	}
	if u < 128 {
		return []byte{byte(u)}
	}
	b := putUintBigEndian(u)
	return encodeString(b)
}

func encodeBigInt(i *big.Int) ([]byte, error) {
	if i.Sign() < 0 {
		return nil, ErrNegativeBigInt
	}
	if i.Sign() == 0 {
		return []byte{0x80}, nil
	}
	return encodeString(i.Bytes()), nil
}

func encodeString(data []byte) []byte {
	n := len(data)
	if n == 1 && data[0] <= 0x7f {
		return []byte{data[0]}
	}
	if n <= 55 {
		buf := make([]byte, 1+n)
		buf[0] = 0x80 + byte(n)
		copy(buf[1:], data)
		return buf
	}
	lenBytes := putUintBigEndian(uint64(n))
	buf := make([]byte, 1+len(lenBytes)+n)
	buf[0] = 0xb7 + byte(len(lenBytes))
	copy(buf[1:], lenBytes)
	copy(buf[1+len(lenBytes):], data)
	return buf
}

func encodeList(v reflect.Value) ([]byte, error) {
	var payload []byte
	for i := 0; i < v.Len(); i++ {
		enc, err := encodeValue(v.Index(i))
		if err != nil {
			return nil, err
		}
		payload = append(payload, enc...)
	}
	return wrapList(payload), nil
}

// encodeStruct encodes the exported fields of v as an RLP list, honoring
// "optional" and "tail" struct tags. Trailing optional fields that hold
// their zero value are omitted entirely, which is how Ping/Pong encode
// enr_seq only when it has been set.
func encodeStruct(v reflect.Value) ([]byte, error) {
	sf, err := cachedStructFields(v.Type())
	if err != nil {
		return nil, err
	}
	// Determine how many trailing optional fields are zero, so they can be
	// dropped from the tail of the field list.
	lastNonZero := sf.firstOptional - 1
	for i := sf.firstOptional; i < len(sf.fields); i++ {
		f := sf.fields[i]
		if !isZero(v.Field(f.index)) {
			lastNonZero = i
		}
	}

	var payload []byte
	for i, f := range sf.fields {
		if f.tail {
			tv := v.Field(f.index)
			for j := 0; j < tv.Len(); j++ {
				enc, err := encodeValue(tv.Index(j))
				if err != nil {
					return nil, err
				}
				payload = append(payload, enc...)
			}
			continue
		}
		if f.optional && i > lastNonZero {
			break
		}
		enc, err := encodeValue(v.Field(f.index))
		if err != nil {
			return nil, err
		}
		payload = append(payload, enc...)
	}
	return wrapList(payload), nil
}

func isZero(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint() == 0
	case reflect.Slice:
		return v.Len() == 0
	case reflect.String:
		return v.Len() == 0
	default:
		return v.IsZero()
	}
}

// WrapList wraps an already RLP-encoded payload in a list header. This is
// used when assembling values (such as an ENR) whose elements were encoded
// ahead of time and concatenated by the caller.
func WrapList(payload []byte) []byte {
	return wrapList(payload)
}

func wrapList(payload []byte) []byte {
	n := len(payload)
	if n <= 55 {
		buf := make([]byte, 1+n)
		buf[0] = 0xc0 + byte(n)
		copy(buf[1:], payload)
		return buf
	}
	lenBytes := putUintBigEndian(uint64(n))
	buf := make([]byte, 1+len(lenBytes)+n)
	buf[0] = 0xf7 + byte(len(lenBytes))
	copy(buf[1:], lenBytes)
	copy(buf[1+len(lenBytes):], payload)
	return buf
}

func headsize(contentSize uint64) int {
	if contentSize < 56 {
		return 1
	}
	return 1 + intsize(contentSize)
}

func intsize(u uint64) int {
	n := 1
	for u >= 256 {
		u >>= 8
		n++
	}
	return n
}

func putUintBigEndian(u uint64) []byte {
	b := make([]byte, intsize(u))
	for i := len(b) - 1; i >= 0; i-- {
		b[i] = byte(u)
		u >>= 8
	}
	return b
}
