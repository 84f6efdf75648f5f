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

// Package enr implements Ethereum Node Records as specified by EIP-778: a
// signed, sequence-numbered, sorted set of key/value pairs describing a
// node. Values are stored pre-encoded (rlp.RawValue); callers decode the
// keys they understand and ignore the rest, which is what makes the format
// forward- and backward-compatible.
package enr

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/r5-labs/discv4/crypto"
	"github.com/r5-labs/discv4/rlp"
)

var (
	errNoID           = errors.New("enr: unknown or unspecified identity scheme")
	errInvalidSig     = errors.New("enr: invalid signature")
	errInvalidSigsize = errors.New("enr: invalid signature size")
	errNotSorted      = errors.New("enr: key/value pairs are not sorted by key")
	errDuplicateKey   = errors.New("enr: record contains duplicate key")
	errIncompletePair = errors.New("enr: record contains incomplete k/v pair")
	errNotSigned      = errors.New("enr: record is not signed")
)

// SizeLimit is the maximum encoded size of a record, per EIP-778.
const SizeLimit = 300

// pair is a sorted key/value entry. The value is stored as already-encoded
// RLP bytes (opaque at this layer); only Load/Set interpret it.
type pair struct {
	k string
	v rlp.RawValue
}

// Record is a signed Ethereum Node Record.
type Record struct {
	seq       uint64
	signature []byte // 64-byte r||s signature, set once signed
	raw       []byte // cached encoding, set once signed or decoded
	pairs     []pair // sorted by k
}

// Seq returns the sequence number.
func (r *Record) Seq() uint64 { return r.seq }

// SetSeq sets the sequence number. It invalidates any existing signature.
func (r *Record) SetSeq(s uint64) {
	r.signature = nil
	r.raw = nil
	r.seq = s
}

// Load retrieves the value of the key matching k's ENRKey into k itself. It
// reports whether the key was present.
func (r *Record) Load(k Entry) (bool, error) {
	key := k.ENRKey()
	i := sort.Search(len(r.pairs), func(i int) bool { return r.pairs[i].k >= key })
	if i >= len(r.pairs) || r.pairs[i].k != key {
		return false, &KeyError{Key: key, Err: errNotFound}
	}
	if err := rlp.DecodeBytes(r.pairs[i].v, k); err != nil {
		return false, &KeyError{Key: key, Err: err}
	}
	return true, nil
}

// Set adds or replaces the value for the key of e. It invalidates any
// existing signature; call Sign again before transmitting the record.
func (r *Record) Set(e Entry) error {
	blob, err := rlp.EncodeToBytes(e)
	if err != nil {
		return err
	}
	r.signature = nil
	r.raw = nil

	key := e.ENRKey()
	i := sort.Search(len(r.pairs), func(i int) bool { return r.pairs[i].k >= key })
	if i < len(r.pairs) && r.pairs[i].k == key {
		r.pairs[i].v = blob
		return nil
	}
	r.pairs = append(r.pairs, pair{})
	copy(r.pairs[i+1:], r.pairs[i:])
	r.pairs[i] = pair{key, blob}
	return nil
}

// signingContent returns the RLP list [seq, k1, v1, ..., kn, vn] whose
// keccak256 digest is what gets signed.
func (r *Record) signingContent() []byte {
	list := make([]interface{}, 1, 1+len(r.pairs)*2)
	list[0] = r.seq
	for _, p := range r.pairs {
		list = append(list, p.k, p.v)
	}
	enc, _ := rlp.EncodeToBytes(list)
	return enc
}

// Sign signs the record with privkey using the "v4" identity scheme
// (secp256k1 + keccak256), setting the "id" and "secp256k1" entries and
// bumping the sequence number.
func (r *Record) Sign(privkey *ecdsa.PrivateKey) error {
	r.Set(IDv4)
	r.Set(Secp256k1(privkey.PublicKey))
	r.seq++

	hash := crypto.Keccak256(r.signingContent())
	sig, err := crypto.Sign(hash, privkey)
	if err != nil {
		return err
	}
	r.signature = sig[:64] // drop the recovery id; the pubkey is already in the record
	return r.encode()
}

func (r *Record) encode() error {
	list := make([]interface{}, 0, 2+len(r.pairs)*2)
	list = append(list, r.signature, r.seq)
	for _, p := range r.pairs {
		list = append(list, p.k, p.v)
	}
	enc, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	if len(enc) > SizeLimit {
		return fmt.Errorf("enr: record exceeds %d-byte size limit", SizeLimit)
	}
	r.raw = enc
	return nil
}

// Verify checks the record's signature against its own "id" and "secp256k1"
// entries. The codec never verifies implicitly on decode; callers that care
// about authenticity must call Verify explicitly.
func (r *Record) Verify() error {
	if len(r.signature) == 0 {
		return errNotSigned
	}
	var id ID
	if _, err := r.Load(&id); err != nil {
		return errNoID
	}
	if id != IDv4 {
		return errNoID
	}
	var pk Secp256k1
	if _, err := r.Load(&pk); err != nil {
		return fmt.Errorf("enr: can't verify signature: %w", err)
	}
	hash := crypto.Keccak256(r.signingContent())
	pub := crypto.CompressPubkey((*ecdsa.PublicKey)(&pk))
	if !crypto.VerifySignature(pub, hash, r.signature) {
		return errInvalidSig
	}
	return nil
}

// EncodeRLP implements rlp.Encoder. It fails if the record has not been
// signed, since an unsigned record has no canonical byte representation.
func (r Record) EncodeRLP(w io.Writer) error {
	if r.signature == nil {
		return errNotSigned
	}
	_, err := w.Write(r.raw)
	return err
}

// DecodeRLP implements rlp.Decoder. It enforces the structural invariants
// (unique, ascending keys) but does not verify the signature; call Verify
// separately for that.
func (r *Record) DecodeRLP(s *rlp.Stream) error {
	raw, err := s.Raw()
	if err != nil {
		return err
	}
	dec := Record{raw: raw}

	ns := rlp.NewStream(bytes.NewReader(raw), uint64(len(raw)))
	if _, err := ns.List(); err != nil {
		return err
	}
	if err := ns.Decode(&dec.signature); err != nil {
		return err
	}
	if len(dec.signature) != 64 {
		return errInvalidSigsize
	}
	if err := ns.Decode(&dec.seq); err != nil {
		return err
	}

	var prevKey string
	for i := 0; !ns.AtEOL(); i++ {
		var kv pair
		if err := ns.Decode(&kv.k); err != nil {
			return err
		}
		if ns.AtEOL() {
			return errIncompletePair
		}
		if err := ns.Decode(&kv.v); err != nil {
			return err
		}
		if i > 0 {
			if kv.k == prevKey {
				return errDuplicateKey
			}
			if kv.k < prevKey {
				return errNotSorted
			}
		}
		dec.pairs = append(dec.pairs, kv)
		prevKey = kv.k
	}
	if err := ns.ListEnd(); err != nil {
		return err
	}
	*r = dec
	return nil
}
