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

package v4wire

import (
	"net"
	"testing"

	"github.com/r5-labs/discv4/crypto"
	"github.com/r5-labs/discv4/p2p/enr"
	"github.com/stretchr/testify/require"
)

func testEndpoint() Endpoint {
	return Endpoint{IP: net.IPv4(127, 0, 0, 1).To4(), UDP: 30303, TCP: 30303}
}

func TestPingPongRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	ping := &Ping{
		Version:    version,
		From:       testEndpoint(),
		To:         testEndpoint(),
		Expiration: 1893456000,
	}
	packet, hash, err := Encode(key, ping)
	require.NoError(t, err)

	decoded, fromKey, decodedHash, err := Decode(packet)
	require.NoError(t, err)
	require.Equal(t, hash, decodedHash)

	got, ok := decoded.(*Ping)
	require.True(t, ok)
	require.Equal(t, ping.Version, got.Version)
	require.Equal(t, ping.Expiration, got.Expiration)
	require.Equal(t, EncodePubkey(&key.PublicKey), fromKey)

	pong := &Pong{To: testEndpoint(), Echo: hash, Expiration: 1893456000}
	packet, _, err = Encode(key, pong)
	require.NoError(t, err)

	decoded, _, _, err = Decode(packet)
	require.NoError(t, err)
	gotPong, ok := decoded.(*Pong)
	require.True(t, ok)
	require.Equal(t, pong.Echo, gotPong.Echo)
	require.Equal(t, pong.Expiration, gotPong.Expiration)
}

func TestHashOutputConsistency(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	req := &EnrRequest{Expiration: 1893456000}
	packet, hash, err := Encode(key, req)
	require.NoError(t, err)

	_, _, decodedHash, err := Decode(packet)
	require.NoError(t, err)
	require.Equal(t, hash, decodedHash)
}

func TestSignatureCoversOnlyTypeAndPayload(t *testing.T) {
	// Flipping a byte inside the envelope hash region (but outside the
	// signed region) must break the integrity hash before signature
	// verification is even attempted.
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	packet, _, err := Encode(key, &EnrRequest{Expiration: 1})
	require.NoError(t, err)

	// The signature recovers the signing key from keccak256(type || payload)
	// alone.
	pub, err := crypto.Ecrecover(crypto.Keccak256(packet[headSize:]), packet[hashSize:headSize])
	require.NoError(t, err)
	require.Equal(t, crypto.FromECDSAPub(&key.PublicKey), pub)

	tampered := append([]byte(nil), packet...)
	tampered[0] ^= 0xff
	_, _, _, err = Decode(tampered)
	require.ErrorIs(t, err, ErrHashMismatch)
}

func TestTamperDetectionHashRegion(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	packet, _, err := Encode(key, &EnrRequest{Expiration: 1})
	require.NoError(t, err)

	for _, i := range []int{0, 5, 31} {
		tampered := append([]byte(nil), packet...)
		tampered[i] ^= 0xff
		_, _, _, err := Decode(tampered)
		require.ErrorIs(t, err, ErrHashMismatch)
	}
}

func TestTamperDetectionSignedRegionChangesNodeID(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	// A full 8-byte expiration value ensures the packet's last byte is a
	// content byte of that integer, not an RLP header byte, so tampering it
	// cannot corrupt the structure -- only recoverable-signature validity.
	packet, _, err := Encode(key, &EnrRequest{Expiration: 0x0102030405060708})
	require.NoError(t, err)

	tampered := append([]byte(nil), packet...)
	tampered[len(tampered)-1] ^= 0xff
	envHash := crypto.Keccak256(tampered[hashSize:])
	copy(tampered[:hashSize], envHash)

	_, fromKey, _, err := Decode(tampered)
	require.NoError(t, err)
	require.NotEqual(t, EncodePubkey(&key.PublicKey), fromKey)
}

func TestAppendedByteCausesHashMismatch(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	packet, _, err := Encode(key, &EnrRequest{Expiration: 1})
	require.NoError(t, err)

	tampered := append(packet, 0x00)
	_, _, _, err = Decode(tampered)
	require.ErrorIs(t, err, ErrHashMismatch)
}

func TestPacketTooShort(t *testing.T) {
	_, _, _, err := Decode(make([]byte, MinPacketSize-1))
	require.ErrorIs(t, err, ErrPacketTooShort)
}

func TestUnknownMessageType(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	packet, _, err := Encode(key, &EnrRequest{Expiration: 1})
	require.NoError(t, err)

	packet[headSize] = 0x63 // not in {1..6}
	envHash := crypto.Keccak256(packet[hashSize:])
	copy(packet[:hashSize], envHash)

	_, _, _, err = Decode(packet)
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	require.Equal(t, "UnknownMessage", decErr.Kind)
}

func TestForwardCompatibilityEnrSeqPresent(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	ping := &Ping{Version: version, From: testEndpoint(), To: testEndpoint(), Expiration: 1, EnrSeq: 42}
	packet, _, err := Encode(key, ping)
	require.NoError(t, err)

	decoded, _, _, err := Decode(packet)
	require.NoError(t, err)
	require.EqualValues(t, 42, decoded.(*Ping).EnrSeq)
}

func TestForwardCompatibilityEnrSeqAbsent(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	ping := &Ping{Version: version, From: testEndpoint(), To: testEndpoint(), Expiration: 1}
	packet, _, err := Encode(key, ping)
	require.NoError(t, err)

	decoded, _, _, err := Decode(packet)
	require.NoError(t, err)
	require.EqualValues(t, 0, decoded.(*Ping).EnrSeq)
}

// findNodeWithExtra simulates a future protocol version that appends a field
// FindNode does not know about. It shares FindNode's message type byte so
// that Decode hands its payload to the real *FindNode decoder.
type findNodeWithExtra struct {
	TargetID   PeerID
	Expiration uint64
	Future     uint64
}

func (*findNodeWithExtra) Name() string    { return "FINDNODE/v4" }
func (*findNodeWithExtra) Kind() MessageId { return FindNodePacket }

func TestForwardCompatibilityExtraTrailingBytes(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	fn := &findNodeWithExtra{TargetID: PeerID{1, 2, 3}, Expiration: 1, Future: 99}
	packet, _, err := Encode(key, fn)
	require.NoError(t, err)

	decoded, _, _, err := Decode(packet)
	require.NoError(t, err)
	got, ok := decoded.(*FindNode)
	require.True(t, ok)
	require.Equal(t, PeerID{1, 2, 3}, got.TargetID)
	require.Len(t, got.Rest, 1)
}

func TestNeighboursSizeInvariant(t *testing.T) {
	// Worst-case field values throughout: maximal ports and an expiration
	// requiring the full 8 integer bytes, matching how
	// SafeMaxDatagramNeighbourRecords itself was derived.
	ipv4Node := NodeRecord{IP: net.IPv4(1, 2, 3, 4).To4(), UDP: ^uint16(0), TCP: ^uint16(0), ID: PeerID{}}
	ipv6Node := NodeRecord{IP: net.ParseIP("2001:db8::1").To16(), UDP: ^uint16(0), TCP: ^uint16(0), ID: PeerID{}}

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	sixteenIPv4 := &Neighbours{Expiration: ^uint64(0)}
	for i := 0; i < 16; i++ {
		sixteenIPv4.Nodes = append(sixteenIPv4.Nodes, ipv4Node)
	}
	packet, _, err := Encode(key, sixteenIPv4)
	require.NoError(t, err)
	require.Greater(t, len(packet), MaxPacketSize, "16 IPv4 records must not fit, even though IPv4 addresses are smaller than the IPv6 addresses used to size the safe bound")

	safe := &Neighbours{Expiration: ^uint64(0)}
	for i := 0; i < SafeMaxDatagramNeighbourRecords; i++ {
		safe.Nodes = append(safe.Nodes, ipv6Node)
	}
	packet, _, err = Encode(key, safe)
	require.NoError(t, err)
	require.LessOrEqual(t, len(packet), MaxPacketSize)

	swapped := &Neighbours{Expiration: ^uint64(0)}
	for i := 0; i < SafeMaxDatagramNeighbourRecords-1; i++ {
		swapped.Nodes = append(swapped.Nodes, ipv6Node)
	}
	swapped.Nodes = append(swapped.Nodes, ipv4Node)
	packet, _, err = Encode(key, swapped)
	require.NoError(t, err)
	require.LessOrEqual(t, len(packet), MaxPacketSize)

	tooMany := &Neighbours{Expiration: ^uint64(0)}
	for i := 0; i < SafeMaxDatagramNeighbourRecords+1; i++ {
		tooMany.Nodes = append(tooMany.Nodes, ipv6Node)
	}
	packet, _, err = Encode(key, tooMany)
	require.NoError(t, err)
	require.Greater(t, len(packet), MaxPacketSize)
}

// enrResponseWithExtra carries one element after the record, so the outer
// list's declared payload is longer than what EnrResponse consumes. It shares
// EnrResponse's message type byte so that Decode hands it to *EnrResponse.
type enrResponseWithExtra struct {
	RequestHash H256
	Record      enr.Record
	Extra       uint64
}

func (*enrResponseWithExtra) Name() string    { return "ENRRESPONSE/v4" }
func (*enrResponseWithExtra) Kind() MessageId { return EnrResponsePacket }

func TestEnrResponseLenientLengthCheck(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	var rec enr.Record
	require.NoError(t, rec.Set(enr.UDP(30303)))
	require.NoError(t, rec.Sign(key))

	resp := &enrResponseWithExtra{RequestHash: H256{1, 2, 3}, Record: rec, Extra: 99}
	packet, _, err := Encode(key, resp)
	require.NoError(t, err)

	decoded, _, _, err := Decode(packet)
	require.NoError(t, err)
	got, ok := decoded.(*EnrResponse)
	require.True(t, ok)
	require.Equal(t, resp.RequestHash, got.RequestHash)
	require.NoError(t, got.Record.Verify())
}

func TestEthForkIDExtraction(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	var rec enr.Record
	fid := enr.ForkID{Hash: [4]byte{0xde, 0xad, 0xbe, 0xef}, Next: 1150000}
	require.NoError(t, rec.Set(enr.Eth{ForkID: fid}))
	require.NoError(t, rec.Sign(key))

	resp := &EnrResponse{Record: rec}
	got := resp.EthForkID()
	require.NotNil(t, got)
	require.Equal(t, fid, *got)
}

func TestEthForkIDAbsent(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	var rec enr.Record
	require.NoError(t, rec.Sign(key))

	resp := &EnrResponse{Record: rec}
	require.Nil(t, resp.EthForkID())
}

func TestNodeIDRecoveryFreshKeypair(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	packet, _, err := Encode(key, &EnrRequest{Expiration: 1})
	require.NoError(t, err)

	_, nodeID, _, err := Decode(packet)
	require.NoError(t, err)
	require.Equal(t, EncodePubkey(&key.PublicKey), nodeID)
}
