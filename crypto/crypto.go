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

// Package crypto collects the secp256k1 and keccak-256 primitives that the
// discv4 codec treats as an external collaborator: key generation,
// recoverable signing/recovery, and hashing.
package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"golang.org/x/crypto/sha3"
)

const (
	// DigestLength is the expected length of a keccak-256 digest.
	DigestLength = 32

	// SignatureLength is the length of a recoverable secp256k1 signature in
	// [R || S || V] form, where V is the 1-byte recovery id.
	SignatureLength = 64 + 1

	// RecoveryIDOffset is the byte offset of the recovery id in a recoverable
	// signature.
	RecoveryIDOffset = 64
)

var (
	ErrInvalidRecoveryID = errors.New("crypto: invalid signature recovery id")
	ErrInvalidSignature  = errors.New("crypto: invalid signature")
	ErrInvalidPubkey     = errors.New("crypto: invalid public key")
)

// S256 returns the secp256k1 curve, shared by both packet signatures and
// ENR signatures.
func S256() elliptic.Curve {
	return btcec.S256()
}

// GenerateKey generates a new secp256k1 private key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(S256(), rand.Reader)
}

// Keccak256 returns the Keccak-256 digest of the concatenation of its inputs.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, b := range data {
		h.Write(b)
	}
	return h.Sum(nil)
}

// Keccak256Hash returns the Keccak-256 digest of the concatenation of its
// inputs as a fixed-size H256.
func Keccak256Hash(data ...[]byte) (h [32]byte) {
	d := Keccak256(data...)
	copy(h[:], d)
	return h
}

// Sign computes an ECDSA signature over a 32-byte digest using the secp256k1
// curve. The returned 65-byte signature is [R || S || V], where V is the
// recovery id in {0,1,2,3}, matching the packet envelope's sig_bytes layout.
func Sign(digest []byte, prv *ecdsa.PrivateKey) ([]byte, error) {
	if len(digest) != DigestLength {
		return nil, fmt.Errorf("crypto: hash is required to be exactly %d bytes (%d)", DigestLength, len(digest))
	}
	if prv == nil || prv.D == nil {
		return nil, errors.New("crypto: invalid private key")
	}
	priv := toBtcecPrivateKey(prv)
	compact := btcecdsa.SignCompact(priv, digest, false)
	// compact = [27+recid || R(32) || S(32)] for an uncompressed public key.
	recid := compact[0] - 27
	sig := make([]byte, SignatureLength)
	copy(sig, compact[1:])
	sig[RecoveryIDOffset] = recid
	return sig, nil
}

// Ecrecover returns the uncompressed public key (65 bytes, 0x04 prefix) that
// produced the given signature over digest.
func Ecrecover(digest, sig []byte) ([]byte, error) {
	pub, err := SigToPub(digest, sig)
	if err != nil {
		return nil, err
	}
	return FromECDSAPub(pub), nil
}

// SigToPub recovers the public key from a signed digest.
func SigToPub(digest, sig []byte) (*ecdsa.PublicKey, error) {
	if len(sig) != SignatureLength {
		return nil, ErrInvalidSignature
	}
	if sig[RecoveryIDOffset] > 3 {
		return nil, ErrInvalidRecoveryID
	}
	compact := make([]byte, 65)
	compact[0] = 27 + sig[RecoveryIDOffset]
	copy(compact[1:], sig[:64])
	pub, _, err := btcecdsa.RecoverCompact(compact, digest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return pub.ToECDSA(), nil
}

// VerifySignature checks that sig (64-byte, [R || S]) is a valid signature of
// digest under pubkey (33-byte compressed or 65-byte uncompressed).
func VerifySignature(pubkey, digest, sig []byte) bool {
	if len(sig) != 64 || len(digest) != DigestLength {
		return false
	}
	pub, err := btcec.ParsePubKey(pubkey)
	if err != nil {
		return false
	}
	r := new(btcec.ModNScalar)
	s := new(btcec.ModNScalar)
	if overflow := r.SetByteSlice(sig[:32]); overflow {
		return false
	}
	if overflow := s.SetByteSlice(sig[32:64]); overflow {
		return false
	}
	signature := btcecdsa.NewSignature(r, s)
	return signature.Verify(digest, pub)
}

// FromECDSAPub marshals a public key to its 65-byte uncompressed form
// (0x04 || X || Y).
func FromECDSAPub(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return elliptic.Marshal(S256(), pub.X, pub.Y)
}

// UnmarshalPubkey parses a 65-byte uncompressed public key.
func UnmarshalPubkey(pub []byte) (*ecdsa.PublicKey, error) {
	x, y := elliptic.Unmarshal(S256(), pub)
	if x == nil {
		return nil, ErrInvalidPubkey
	}
	return &ecdsa.PublicKey{Curve: S256(), X: x, Y: y}, nil
}

// CompressPubkey encodes a public key to the 33-byte compressed form used in
// ENR "secp256k1" entries.
func CompressPubkey(pub *ecdsa.PublicKey) []byte {
	return elliptic.MarshalCompressed(S256(), pub.X, pub.Y)
}

// DecompressPubkey parses a 33-byte compressed public key.
func DecompressPubkey(b []byte) (*ecdsa.PublicKey, error) {
	x, y := elliptic.UnmarshalCompressed(S256(), b)
	if x == nil {
		return nil, ErrInvalidPubkey
	}
	return &ecdsa.PublicKey{Curve: S256(), X: x, Y: y}, nil
}

func toBtcecPrivateKey(prv *ecdsa.PrivateKey) *btcec.PrivateKey {
	var b [32]byte
	prv.D.FillBytes(b[:])
	priv, _ := btcec.PrivKeyFromBytes(b[:])
	return priv
}
