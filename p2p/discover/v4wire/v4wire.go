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

// Package v4wire implements the Discovery v4 wire protocol: the packet
// envelope that wraps a signed, hashed message, and the six message records
// it carries.
package v4wire

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"errors"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/r5-labs/discv4/common/math"
	"github.com/r5-labs/discv4/crypto"
	"github.com/r5-labs/discv4/log"
	"github.com/r5-labs/discv4/p2p/enr"
	"github.com/r5-labs/discv4/rlp"
)

// MessageId identifies which of the six record types a packet carries.
type MessageId byte

// Message type bytes. Zero is reserved and never valid.
const (
	PingPacket MessageId = iota + 1
	PongPacket
	FindNodePacket
	NeighboursPacket
	EnrRequestPacket
	EnrResponsePacket
)

func (id MessageId) String() string {
	switch id {
	case PingPacket:
		return "PING/v4"
	case PongPacket:
		return "PONG/v4"
	case FindNodePacket:
		return "FINDNODE/v4"
	case NeighboursPacket:
		return "NEIGHBOURS/v4"
	case EnrRequestPacket:
		return "ENRREQUEST/v4"
	case EnrResponsePacket:
		return "ENRRESPONSE/v4"
	default:
		return fmt.Sprintf("UNKNOWN/%d", byte(id))
	}
}

// version is the discv4 protocol version carried in every Ping.
const version = 4

// Message records.
type (
	// Ping checks whether a peer is alive and exchanges endpoint information.
	Ping struct {
		Version    uint
		From, To   Endpoint
		Expiration uint64
		EnrSeq     uint64 `rlp:"optional"` // local record sequence number, EIP-868

		Rest []rlp.RawValue `rlp:"tail"`
	}

	// Pong is the reply to Ping.
	Pong struct {
		// To mirrors the UDP envelope address the Ping arrived from, letting
		// the sender discover its own external address after NAT.
		To         Endpoint
		Echo       H256 // keccak256 hash of the Ping packet being answered
		Expiration uint64
		EnrSeq     uint64 `rlp:"optional"`

		Rest []rlp.RawValue `rlp:"tail"`
	}

	// FindNode queries for nodes close to TargetID.
	FindNode struct {
		TargetID   PeerID
		Expiration uint64

		Rest []rlp.RawValue `rlp:"tail"`
	}

	// Neighbours is the reply to FindNode.
	Neighbours struct {
		Nodes      []NodeRecord
		Expiration uint64

		Rest []rlp.RawValue `rlp:"tail"`
	}

	// EnrRequest queries for the remote node's record (EIP-868).
	EnrRequest struct {
		Expiration uint64

		Rest []rlp.RawValue `rlp:"tail"`
	}

	// EnrResponse is the reply to EnrRequest.
	EnrResponse struct {
		RequestHash H256
		Record      enr.Record
	}
)

// Packet is implemented by all message record types.
type Packet interface {
	Name() string
	Kind() MessageId
}

func (*Ping) Name() string          { return "PING/v4" }
func (*Ping) Kind() MessageId       { return PingPacket }
func (*Pong) Name() string          { return "PONG/v4" }
func (*Pong) Kind() MessageId       { return PongPacket }
func (*FindNode) Name() string      { return "FINDNODE/v4" }
func (*FindNode) Kind() MessageId   { return FindNodePacket }
func (*Neighbours) Name() string    { return "NEIGHBOURS/v4" }
func (*Neighbours) Kind() MessageId { return NeighboursPacket }
func (*EnrRequest) Name() string    { return "ENRREQUEST/v4" }
func (*EnrRequest) Kind() MessageId { return EnrRequestPacket }
func (*EnrResponse) Name() string   { return "ENRRESPONSE/v4" }
func (*EnrResponse) Kind() MessageId { return EnrResponsePacket }

// DecodeRLP implements rlp.Decoder. Unlike every other record, it does not
// enforce that the outer list's declared payload length equals the number
// of bytes actually consumed: the embedded ENR re-derives its own end
// position from its own length header, which is occasionally inconsistent
// with the outer declaration. The mismatch is logged, not rejected; see the
// design notes on this elision.
func (req *EnrResponse) DecodeRLP(s *rlp.Stream) error {
	if _, err := s.List(); err != nil {
		return err
	}
	if err := s.Decode(&req.RequestHash); err != nil {
		return err
	}
	if err := s.Decode(&req.Record); err != nil {
		return err
	}
	mismatch, err := s.ListEndLenient()
	if err != nil {
		return err
	}
	if mismatch {
		log.Debug("discv4: EnrResponse payload length disagreed with outer list declaration")
	}
	return nil
}

// EthForkID extracts and decodes the "eth" key of the embedded record,
// returning nil if the key is absent or malformed.
func (req *EnrResponse) EthForkID() *enr.ForkID {
	var eth enr.Eth
	if _, err := req.Record.Load(&eth); err != nil {
		return nil
	}
	fid := eth.ForkID
	return &fid
}

// PeerID is the uncompressed secp256k1 public key of a node, with the
// leading 0x04 format-tag byte stripped.
type PeerID [64]byte

// H256 is a 32-byte hash: a keccak256 digest, echo token, or request hash.
type H256 [32]byte

// Endpoint describes a node's network address and ports.
type Endpoint struct {
	IP  net.IP // 4 bytes for IPv4, 16 bytes for IPv6
	UDP uint16
	TCP uint16
}

// NewEndpoint builds an Endpoint from a UDP address and a separately known
// TCP port (the UDP packet carries no TCP port of its own).
func NewEndpoint(addr *net.UDPAddr, tcpPort uint16) Endpoint {
	ip := net.IP{}
	if ip4 := addr.IP.To4(); ip4 != nil {
		ip = ip4
	} else if ip6 := addr.IP.To16(); ip6 != nil {
		ip = ip6
	}
	return Endpoint{IP: ip, UDP: uint16(addr.Port), TCP: tcpPort}
}

// NodeRecord is an Endpoint plus the node's public key identifier, as
// carried in a Neighbours reply.
type NodeRecord struct {
	IP  net.IP
	UDP uint16
	TCP uint16
	ID  PeerID
}

// Expired reports whether a unix timestamp, as carried in Expiration fields,
// is in the past.
func Expired(ts uint64) bool {
	return time.Unix(int64(ts), 0).Before(time.Now())
}

// Packet size bounds (§6 of the wire spec).
const (
	hashSize = 32
	sigSize  = crypto.SignatureLength // 65: R || S || recovery id
	headSize = hashSize + sigSize     // 97

	// MinPacketSize is the smallest possible valid packet: header plus a
	// single type byte. An empty body is caught by the per-record RLP rules,
	// not by this bound.
	MinPacketSize = headSize + 1

	// MaxPacketSize is the discv4 datagram cap, equal to the IPv6 minimum
	// MTU (1280 bytes) by industry convention.
	MaxPacketSize = 1280
)

// SafeMaxDatagramNeighbourRecords is the largest number of NodeRecord
// entries guaranteed to fit in a single Neighbours packet, computed for the
// worst case (every node carrying a 16-byte IPv6 address, maximum port
// values, and an expiration large enough to need the full 8 integer bytes).
var SafeMaxDatagramNeighbourRecords = computeSafeMaxNeighbours()

func computeSafeMaxNeighbours() int {
	maxSizeNode := NodeRecord{IP: make(net.IP, 16), UDP: ^uint16(0), TCP: ^uint16(0)}
	p := Neighbours{Expiration: ^uint64(0)}
	for n := 0; ; n++ {
		p.Nodes = append(p.Nodes, maxSizeNode)
		enc, err := rlp.EncodeToBytes(&p)
		if err != nil {
			panic("v4wire: cannot size Neighbours: " + err.Error())
		}
		if headSize+1+len(enc) > MaxPacketSize {
			return n
		}
	}
}

// Errors returned by Decode, matching the closed DecodePacketError taxonomy.
var (
	ErrPacketTooShort  = &DecodeError{Kind: "PacketTooShort"}
	ErrHashMismatch    = &DecodeError{Kind: "HashMismatch"}
	ErrInvalidRecID    = &DecodeError{Kind: "Secp256k1", Detail: "invalid recovery id"}
	ErrInvalidSig      = &DecodeError{Kind: "Secp256k1", Detail: "invalid signature"}
	ErrInvalidPoint    = &DecodeError{Kind: "Secp256k1", Detail: "invalid curve point"}
)

// DecodeError reports why Decode rejected a packet. Kind identifies which
// branch of the closed taxonomy in the wire spec's error handling design
// applies; the remaining fields carry branch-specific detail.
type DecodeError struct {
	Kind        string // PacketTooShort | HashMismatch | Secp256k1 | UnknownMessage | Rlp
	Detail      string
	MessageType byte  // set when Kind == UnknownMessage
	Mismatch    *rlp.ListLengthMismatch
	Cause       error
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case "PacketTooShort":
		return "discv4: packet too short"
	case "HashMismatch":
		return "discv4: packet hash mismatch"
	case "Secp256k1":
		return "discv4: " + e.Detail
	case "UnknownMessage":
		return fmt.Sprintf("discv4: unknown message type %d", e.MessageType)
	case "Rlp":
		if e.Mismatch != nil {
			return fmt.Sprintf("discv4: rlp: list length mismatch: expected %d, got %d", e.Mismatch.Expected, e.Mismatch.Got)
		}
		return "discv4: rlp: " + e.Cause.Error()
	default:
		return "discv4: decode error"
	}
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// errUnknownMessage builds an UnknownMessage error for type byte b.
func errUnknownMessage(b byte) error {
	return &DecodeError{Kind: "UnknownMessage", MessageType: b}
}

// errRLP classifies an RLP-layer error into the canonical Rlp(kind) branch.
func errRLP(err error) error {
	var mismatch *rlp.ListLengthMismatch
	if m, ok := err.(*rlp.ListLengthMismatch); ok {
		mismatch = m
	}
	return &DecodeError{Kind: "Rlp", Mismatch: mismatch, Cause: err}
}

// Decode parses a discv4 packet, verifying its integrity hash and recovering
// the sender's public key from its signature.
func Decode(input []byte) (Packet, PeerID, H256, error) {
	var hash H256
	if len(input) < MinPacketSize {
		return nil, PeerID{}, hash, ErrPacketTooShort
	}
	headerAndType, body := input[:headSize], input[headSize:]
	sig := headerAndType[hashSize:headSize]

	computed := crypto.Keccak256(input[hashSize:])
	if !bytes.Equal(computed, input[:hashSize]) {
		return nil, PeerID{}, hash, ErrHashMismatch
	}
	copy(hash[:], computed)

	msgHash := crypto.Keccak256(input[headSize:])
	fromKey, err := recoverNodeKey(msgHash, sig)
	if err != nil {
		return nil, fromKey, hash, err
	}

	var req Packet
	switch ptype := MessageId(body[0]); ptype {
	case PingPacket:
		req = new(Ping)
	case PongPacket:
		req = new(Pong)
	case FindNodePacket:
		req = new(FindNode)
	case NeighboursPacket:
		req = new(Neighbours)
	case EnrRequestPacket:
		req = new(EnrRequest)
	case EnrResponsePacket:
		req = new(EnrResponse)
	default:
		return nil, fromKey, hash, errUnknownMessage(byte(ptype))
	}
	s := rlp.NewStream(bytes.NewReader(body[1:]), 0)
	if err := s.Decode(req); err != nil {
		return nil, fromKey, hash, errRLP(err)
	}
	return req, fromKey, hash, nil
}

// Encode assembles and signs a discv4 packet. It returns the wire bytes and
// the envelope hash (the same hash that would be returned by decoding those
// bytes again).
func Encode(priv *ecdsa.PrivateKey, req Packet) (packet []byte, hash H256, err error) {
	b := new(bytes.Buffer)
	b.Write(make([]byte, headSize))
	b.WriteByte(byte(req.Kind()))
	if err := rlp.Encode(b, req); err != nil {
		return nil, hash, err
	}
	packet = b.Bytes()

	msgHash := crypto.Keccak256(packet[headSize:])
	sig, err := crypto.Sign(msgHash, priv)
	if err != nil {
		return nil, hash, err
	}
	copy(packet[hashSize:headSize], sig)

	envHash := crypto.Keccak256(packet[hashSize:])
	copy(packet[:hashSize], envHash)
	copy(hash[:], envHash)
	return packet, hash, nil
}

// recoverNodeKey recovers the sender's PeerID from a signed message hash.
func recoverNodeKey(hash, sig []byte) (PeerID, error) {
	var key PeerID
	pubkey, err := crypto.Ecrecover(hash, sig)
	if err != nil {
		if errors.Is(err, crypto.ErrInvalidRecoveryID) {
			return key, ErrInvalidRecID
		}
		return key, ErrInvalidSig
	}
	copy(key[:], pubkey[1:])
	return key, nil
}

// EncodePubkey converts a public key into its PeerID form.
func EncodePubkey(key *ecdsa.PublicKey) PeerID {
	var e PeerID
	math.ReadBits(key.X, e[:len(e)/2])
	math.ReadBits(key.Y, e[len(e)/2:])
	return e
}

// DecodePubkey reconstructs a public key from a PeerID, validating that the
// resulting point lies on the curve.
func DecodePubkey(curve elliptic.Curve, e PeerID) (*ecdsa.PublicKey, error) {
	p := &ecdsa.PublicKey{Curve: curve, X: new(big.Int), Y: new(big.Int)}
	half := len(e) / 2
	p.X.SetBytes(e[:half])
	p.Y.SetBytes(e[half:])
	if !p.Curve.IsOnCurve(p.X, p.Y) {
		return nil, ErrInvalidPoint
	}
	return p, nil
}
