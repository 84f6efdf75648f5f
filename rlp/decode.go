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
	"bytes"
	"io"
	"math/big"
	"net"
	"reflect"
)

// Decoder is implemented by types that want to control their own RLP decoding.
type Decoder interface {
	DecodeRLP(*Stream) error
}

var decoderInterface = reflect.TypeOf(new(Decoder)).Elem()

// ByteReader is the interface required by Stream.Decode when reading directly
// from an io.Reader.
type ByteReader interface {
	io.Reader
	io.ByteReader
}

// listpos tracks the payload boundary of a list frame currently being read.
type listpos struct {
	pos, end uint64
}

// Stream provides a cursor over RLP-encoded data, mirroring the Stream API
// used throughout discv4 message decoding (List/ListEnd/Decode/Raw).
type Stream struct {
	r ByteReader

	remaining uint64 // number of bytes left to read, bounded by inputLimit
	limited   bool

	data []byte // entire input, buffered up front
	pos  uint64

	stack []listpos
}

// NewStream creates a new decoding stream reading from r. If inputLimit is
// non-zero, the Stream will treat the input as being at most inputLimit bytes
// long.
func NewStream(r io.Reader, inputLimit uint64) *Stream {
	s := new(Stream)
	s.Reset(r, inputLimit)
	return s
}

// NewListStream creates a new stream that pretends to be positioned at an
// already-open list of the given declared length.
func NewListStream(r io.Reader, length uint64) *Stream {
	s := NewStream(r, length)
	s.stack = append(s.stack, listpos{0, length})
	return s
}

// Reset discards any state in s and makes it read from r.
func (s *Stream) Reset(r io.Reader, inputLimit uint64) {
	buf, _ := io.ReadAll(io.LimitReader(r, maxInt64(inputLimit)))
	s.data = buf
	s.pos = 0
	s.stack = s.stack[:0]
}

func maxInt64(limit uint64) int64 {
	if limit == 0 || limit > uint64(1)<<62 {
		return 1 << 62
	}
	return int64(limit)
}

// limit returns the exclusive end position of the innermost open list, or the
// length of the whole buffer if no list is open.
func (s *Stream) limit() uint64 {
	if len(s.stack) > 0 {
		return s.stack[len(s.stack)-1].end
	}
	return uint64(len(s.data))
}

// Kind returns the kind and size of the next value without consuming it.
func (s *Stream) Kind() (Kind, uint64, error) {
	lim := s.limit()
	if s.pos >= lim {
		return 0, 0, io.EOF
	}
	k, tagsize, size, err := readKind(s.data[s.pos:lim])
	if err != nil {
		return 0, 0, err
	}
	if s.pos+tagsize+size > lim {
		return 0, 0, ErrElemTooLarge
	}
	return k, size, nil
}

// List starts decoding an RLP list. It returns the declared payload length of
// the list. Subsequent calls to Bytes/Uint64/Decode/etc. read elements from
// inside the list until ListEnd is called.
func (s *Stream) List() (uint64, error) {
	k, size, err := s.Kind()
	if err != nil {
		return 0, err
	}
	if k != List {
		return 0, ErrExpectedList
	}
	_, tagsize, _, _ := readKind(s.data[s.pos:s.limit()])
	start := s.pos + tagsize
	s.stack = append(s.stack, listpos{start, start + size})
	s.pos = start
	return size, nil
}

// ListEnd closes a list opened with List. It returns an error if there are
// unconsumed bytes remaining in the list's declared payload.
func (s *Stream) ListEnd() error {
	if len(s.stack) == 0 {
		return errNotInList
	}
	top := s.stack[len(s.stack)-1]
	if s.pos != top.end {
		return &ListLengthMismatch{Expected: top.end - top.pos, Got: s.pos - top.pos}
	}
	s.stack = s.stack[:len(s.stack)-1]
	return nil
}

// ListEndLenient closes a list opened with List without enforcing that the
// cursor landed exactly on the declared payload boundary. The cursor is
// forced to the declared end regardless, mirroring how the ENR sub-decoder
// advances by its own re-read length prefix. It reports whether the actual
// position disagreed with the declared one, so callers can log it.
func (s *Stream) ListEndLenient() (mismatch bool, err error) {
	if len(s.stack) == 0 {
		return false, errNotInList
	}
	top := s.stack[len(s.stack)-1]
	mismatch = s.pos != top.end
	s.pos = top.end
	s.stack = s.stack[:len(s.stack)-1]
	return mismatch, nil
}

// Remaining reports how many bytes are left to read in the current list scope
// (or the whole input if not inside a list).
func (s *Stream) Remaining() uint64 {
	return s.limit() - s.pos
}

// atEOL reports whether the current scope has no more bytes.
func (s *Stream) atEOL() bool {
	return s.pos >= s.limit()
}

// AtEOL reports whether the innermost open list has no more bytes to read.
// It is exported for decoders in other packages, such as enr.Record, that
// read a variable number of list elements themselves.
func (s *Stream) AtEOL() bool {
	return s.atEOL()
}

// readItem consumes and returns the next full item (header + content).
func (s *Stream) readItem() (Kind, []byte, error) {
	lim := s.limit()
	if s.pos >= lim {
		return 0, nil, EOL
	}
	k, tagsize, size, err := readKind(s.data[s.pos:lim])
	if err != nil {
		return 0, nil, err
	}
	start, end := s.pos+tagsize, s.pos+tagsize+size
	if end > lim {
		return 0, nil, ErrElemTooLarge
	}
	content := s.data[start:end]
	s.pos = end
	return k, content, nil
}

// Bytes reads an RLP string and returns its content.
func (s *Stream) Bytes() ([]byte, error) {
	k, content, err := s.readItem()
	if err != nil {
		return nil, err
	}
	if k == List {
		return nil, ErrExpectedString
	}
	return content, nil
}

// Raw reads the next value (of any kind) and returns its full encoding,
// including the header. This is what allows forward-compatible "tail" fields
// and ENR values to be captured opaquely without interpreting their contents.
func (s *Stream) Raw() ([]byte, error) {
	lim := s.limit()
	if s.pos >= lim {
		return nil, EOL
	}
	start := s.pos
	_, tagsize, size, err := readKind(s.data[s.pos:lim])
	if err != nil {
		return nil, err
	}
	end := s.pos + tagsize + size
	if end > lim {
		return nil, ErrElemTooLarge
	}
	s.pos = end
	return s.data[start:end], nil
}

// Uint64 reads an RLP-encoded unsigned integer.
func (s *Stream) Uint64() (uint64, error) {
	b, err := s.Bytes()
	if err != nil {
		return 0, err
	}
	return parseUint(b)
}

func parseUint(b []byte) (uint64, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if len(b) > 8 {
		return 0, errUintOverflow
	}
	if b[0] == 0 {
		return 0, ErrCanonInt
	}
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v, nil
}

// Bool reads an RLP-encoded boolean.
func (s *Stream) Bool() (bool, error) {
	b, err := s.Bytes()
	if err != nil {
		return false, err
	}
	switch {
	case len(b) == 0:
		return false, nil
	case len(b) == 1 && (b[0] == 0 || b[0] == 1):
		return b[0] == 1, nil
	default:
		return false, ErrCanonInt
	}
}

// BigInt reads an RLP-encoded big integer.
func (s *Stream) BigInt() (*big.Int, error) {
	b, err := s.Bytes()
	if err != nil {
		return nil, err
	}
	if len(b) > 0 && b[0] == 0 {
		return nil, ErrCanonInt
	}
	return new(big.Int).SetBytes(b), nil
}

// Decode reads the next value and stores it into the value pointed to by val,
// which must be a non-nil pointer.
func (s *Stream) Decode(val interface{}) error {
	rv := reflect.ValueOf(val)
	if rv.Kind() != reflect.Ptr {
		return errNoPointer
	}
	if rv.IsNil() {
		return errDecodeIntoNil
	}
	return s.decodeInto(rv.Elem())
}

func (s *Stream) decodeInto(v reflect.Value) error {
	if v.CanAddr() && v.Addr().Type().Implements(decoderInterface) {
		return v.Addr().Interface().(Decoder).DecodeRLP(s)
	}

	if v.Type() == bigIntType {
		bi, err := s.BigInt()
		if err != nil {
			return wrapStreamError(err, v.Type())
		}
		v.Set(reflect.ValueOf(*bi))
		return nil
	}
	if v.Type() == netIPType {
		b, err := s.Bytes()
		if err != nil {
			return wrapStreamError(err, v.Type())
		}
		if len(b) != 0 && len(b) != 4 && len(b) != 16 {
			return &decodeError{msg: "invalid IP address length", typ: v.Type()}
		}
		v.SetBytes(net.IP(bytes.Clone(b)))
		return nil
	}

	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		return s.decodeInto(v.Elem())

	case reflect.Bool:
		b, err := s.Bool()
		if err != nil {
			return wrapStreamError(err, v.Type())
		}
		v.SetBool(b)
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := s.Uint64()
		if err != nil {
			return wrapStreamError(err, v.Type())
		}
		v.SetUint(u)
		return nil

	case reflect.String:
		b, err := s.Bytes()
		if err != nil {
			return wrapStreamError(err, v.Type())
		}
		v.SetString(string(b))
		return nil

	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b, err := s.Bytes()
			if err != nil {
				return wrapStreamError(err, v.Type())
			}
			v.SetBytes(bytes.Clone(b))
			return nil
		}
		return s.decodeSliceOrTail(v, nil)

	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b, err := s.Bytes()
			if err != nil {
				return wrapStreamError(err, v.Type())
			}
			if len(b) != v.Len() {
				return &decodeError{msg: "input string has wrong length for array", typ: v.Type()}
			}
			reflect.Copy(v, reflect.ValueOf(b))
			return nil
		}
		return s.decodeArray(v)

	case reflect.Struct:
		return s.decodeStruct(v)

	case reflect.Interface:
		// Interface values, including the empty interface, are not
		// supported; values are decoded into concrete types only.
		return &decodeError{msg: "type is not RLP-serializable", typ: v.Type()}

	default:
		return &decodeError{msg: "type is not RLP-serializable", typ: v.Type()}
	}
}

func (s *Stream) decodeArray(v reflect.Value) error {
	if _, err := s.List(); err != nil {
		return wrapStreamError(err, v.Type())
	}
	for i := 0; i < v.Len(); i++ {
		if err := s.decodeInto(v.Index(i)); err != nil {
			return err
		}
	}
	return s.ListEnd()
}

// decodeSliceOrTail decodes a []T value from an RLP list, growing it
// dynamically. A non-nil elemDecode overrides per-element decoding. "tail"
// fields do not go through here; decodeTailField handles them.
func (s *Stream) decodeSliceOrTail(v reflect.Value, elemDecode func(reflect.Value) error) error {
	if _, err := s.List(); err != nil {
		return wrapStreamError(err, v.Type())
	}
	v.Set(reflect.MakeSlice(v.Type(), 0, 0))
	for !s.atEOL() {
		elem := reflect.New(v.Type().Elem()).Elem()
		var err error
		if elemDecode != nil {
			err = elemDecode(elem)
		} else {
			err = s.decodeInto(elem)
		}
		if err != nil {
			return err
		}
		v.Set(reflect.Append(v, elem))
	}
	return s.ListEnd()
}

// decodeStruct decodes a struct, honoring "optional" and "tail" tags: once
// the list payload runs out, all remaining optional fields are left at their
// zero value; a tail field (if present) swallows everything left over,
// including bytes belonging to future protocol versions.
func (s *Stream) decodeStruct(v reflect.Value) error {
	sf, err := cachedStructFields(v.Type())
	if err != nil {
		return err
	}
	if _, err := s.List(); err != nil {
		return wrapStreamError(err, v.Type())
	}
	for _, f := range sf.fields {
		if f.tail {
			if err := s.decodeTailField(v.Field(f.index)); err != nil {
				return addErrorContext(err, "."+v.Type().Field(f.index).Name)
			}
			continue
		}
		if f.optional && s.atEOL() {
			continue // leave zero value, and leave all later optional fields zero too
		}
		if err := s.decodeInto(v.Field(f.index)); err != nil {
			return addErrorContext(err, "."+v.Type().Field(f.index).Name)
		}
	}
	return s.ListEnd()
}

// decodeTailField consumes every remaining element in the enclosing list as a
// raw, unparsed RLP value. It never errors on the leftover bytes: this is the
// forward-compatibility behavior required of Ping/Pong/Findnode/etc.
func (s *Stream) decodeTailField(v reflect.Value) error {
	v.Set(reflect.MakeSlice(v.Type(), 0, 0))
	for !s.atEOL() {
		raw, err := s.Raw()
		if err != nil {
			return err
		}
		elem := reflect.New(v.Type().Elem()).Elem()
		elem.Set(reflect.ValueOf(RawValue(raw)).Convert(v.Type().Elem()))
		v.Set(reflect.Append(v, elem))
	}
	return nil
}

// Decode is a convenience wrapper that reads a complete value from r.
func Decode(r io.Reader, val interface{}) error {
	return NewStream(r, 0).Decode(val)
}

// DecodeBytes parses RLP data from b into the value pointed to by val. It is
// an error if b contains additional data after the first value.
func DecodeBytes(b []byte, val interface{}) error {
	s := NewStream(bytes.NewReader(b), uint64(len(b)))
	if err := s.Decode(val); err != nil {
		return err
	}
	if s.pos != uint64(len(s.data)) {
		return ErrMoreThanOneValue
	}
	return nil
}
