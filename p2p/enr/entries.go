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

package enr

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/r5-labs/discv4/crypto"
	"github.com/r5-labs/discv4/rlp"
)

// Entry is implemented by known node record key/value types. A type that
// also implements rlp.Decoder can perform extra validation when loaded.
type Entry interface {
	ENRKey() string
}

// generic wraps an arbitrary value under a key name, for callers that don't
// want to define a dedicated type.
type generic struct {
	key   string
	value interface{}
}

func (g generic) ENRKey() string { return g.key }

func (g generic) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, g.value)
}

func (g *generic) DecodeRLP(s *rlp.Stream) error {
	return s.Decode(g.value)
}

// WithEntry wraps an arbitrary RLP-encodable value under key k. To use it
// with Load, v must be a pointer.
func WithEntry(k string, v interface{}) Entry {
	return &generic{key: k, value: v}
}

// ID is the "id" key, naming the identity scheme used to verify the record's
// signature. "v4" (secp256k1 + keccak256) is the only scheme this package
// implements.
type ID string

// IDv4 is the default identity scheme.
const IDv4 = ID("v4")

func (v ID) ENRKey() string { return "id" }

// Secp256k1 is the "secp256k1" key, holding the 33-byte compressed public key
// that signed the record.
type Secp256k1 ecdsa.PublicKey

func (v Secp256k1) ENRKey() string { return "secp256k1" }

// EncodeRLP implements rlp.Encoder.
func (v Secp256k1) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, crypto.CompressPubkey((*ecdsa.PublicKey)(&v)))
}

// DecodeRLP implements rlp.Decoder.
func (v *Secp256k1) DecodeRLP(s *rlp.Stream) error {
	var b []byte
	if err := s.Decode(&b); err != nil {
		return err
	}
	pk, err := crypto.DecompressPubkey(b)
	if err != nil {
		return err
	}
	*v = Secp256k1(*pk)
	return nil
}

// IP is the "ip" key, holding a 4-byte IPv4 address.
type IP net.IP

func (v IP) ENRKey() string { return "ip" }

// EncodeRLP implements rlp.Encoder.
func (v IP) EncodeRLP(w io.Writer) error {
	ip4 := net.IP(v).To4()
	if ip4 == nil {
		return fmt.Errorf("enr: invalid IPv4 address: %v", net.IP(v))
	}
	return rlp.Encode(w, ip4)
}

// DecodeRLP implements rlp.Decoder.
func (v *IP) DecodeRLP(s *rlp.Stream) error {
	var ip net.IP
	if err := s.Decode(&ip); err != nil {
		return err
	}
	if len(ip) != 4 {
		return fmt.Errorf("enr: invalid IPv4 address, want 4 bytes: %v", ip)
	}
	*v = IP(ip)
	return nil
}

// IPv6 is the "ip6" key, holding a 16-byte IPv6 address.
type IPv6 net.IP

func (v IPv6) ENRKey() string { return "ip6" }

// EncodeRLP implements rlp.Encoder.
func (v IPv6) EncodeRLP(w io.Writer) error {
	ip6 := net.IP(v).To16()
	if ip6 == nil {
		return fmt.Errorf("enr: invalid IPv6 address: %v", net.IP(v))
	}
	return rlp.Encode(w, ip6)
}

// DecodeRLP implements rlp.Decoder.
func (v *IPv6) DecodeRLP(s *rlp.Stream) error {
	var ip net.IP
	if err := s.Decode(&ip); err != nil {
		return err
	}
	if len(ip) != 16 {
		return fmt.Errorf("enr: invalid IPv6 address, want 16 bytes: %v", ip)
	}
	*v = IPv6(ip)
	return nil
}

// TCP is the "tcp" key, holding the node's TCP (RLPx) port.
type TCP uint16

func (v TCP) ENRKey() string { return "tcp" }

// UDP is the "udp" key, holding the node's UDP (discovery) port.
type UDP uint16

func (v UDP) ENRKey() string { return "udp" }

// TCP6 is the "tcp6" key, the IPv6-specific TCP port.
type TCP6 uint16

func (v TCP6) ENRKey() string { return "tcp6" }

// UDP6 is the "udp6" key, the IPv6-specific UDP port.
type UDP6 uint16

func (v UDP6) ENRKey() string { return "udp6" }

// Eth is the "eth" key, holding the chain's fork identifier (EIP-2124).
type Eth struct {
	ForkID ForkID
}

func (v Eth) ENRKey() string { return "eth" }

// ForkID is a 4-byte fork hash plus the block number of the next scheduled
// fork, or 0 if none is planned.
type ForkID struct {
	Hash [4]byte
	Next uint64
}

// KeyError associates a decode/verification failure with the ENR key that
// caused it.
type KeyError struct {
	Key string
	Err error
}

func (err *KeyError) Error() string {
	if errors.Is(err.Err, errNotFound) {
		return fmt.Sprintf("enr: missing key %q", err.Key)
	}
	return fmt.Sprintf("enr: key %q: %v", err.Key, err.Err)
}

func (err *KeyError) Unwrap() error { return err.Err }

var errNotFound = errors.New("not found")

// IsNotFound reports whether err indicates a missing key/value pair.
func IsNotFound(err error) bool {
	var ke *KeyError
	return errors.As(err, &ke) && errors.Is(ke.Err, errNotFound)
}
