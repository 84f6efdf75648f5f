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
	"net"
	"testing"

	"github.com/r5-labs/discv4/crypto"
	"github.com/r5-labs/discv4/rlp"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	var r Record
	require.NoError(t, r.Set(IP(net.IPv4(127, 0, 0, 1))))
	require.NoError(t, r.Set(UDP(30303)))
	require.NoError(t, r.Sign(key))
	require.NoError(t, r.Verify())
	require.EqualValues(t, 1, r.Seq())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	var r Record
	require.NoError(t, r.Set(IP(net.IPv4(10, 0, 0, 1))))
	require.NoError(t, r.Set(UDP(9000)))
	require.NoError(t, r.Sign(key))

	enc, err := rlp.EncodeToBytes(&r)
	require.NoError(t, err)

	var r2 Record
	require.NoError(t, rlp.DecodeBytes(enc, &r2))
	require.NoError(t, r2.Verify())

	var ip IP
	_, err = r2.Load(&ip)
	require.NoError(t, err)
	require.True(t, net.IP(ip).Equal(net.IPv4(10, 0, 0, 1)))

	var udp UDP
	_, err = r2.Load(&udp)
	require.NoError(t, err)
	require.EqualValues(t, 9000, udp)

	enc2, err := rlp.EncodeToBytes(&r2)
	require.NoError(t, err)
	require.Equal(t, enc, enc2)
}

func TestSeqBumpsOnEachSign(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	var r Record
	require.NoError(t, r.Sign(key))
	require.EqualValues(t, 1, r.Seq())
	require.NoError(t, r.Sign(key))
	require.EqualValues(t, 2, r.Seq())
}

func TestTamperedSignatureFailsVerify(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	var r Record
	require.NoError(t, r.Sign(key))

	enc, err := rlp.EncodeToBytes(&r)
	require.NoError(t, err)
	enc[len(enc)-1] ^= 0xff // corrupt the last byte of the last k/v pair's value

	var r2 Record
	if err := rlp.DecodeBytes(enc, &r2); err == nil {
		require.Error(t, r2.Verify())
	}
}

func TestDuplicateKeyRejected(t *testing.T) {
	// Hand-build a record with a duplicate "udp" key, which Set() itself
	// cannot produce since it replaces in place; simulate the wire form
	// directly by constructing two pairs with the same key and signing them
	// through the low-level encoder.
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	var r Record
	require.NoError(t, r.Set(UDP(1)))
	r.pairs = append(r.pairs, pair{k: "udp", v: mustEncode(t, uint16(2))})
	require.NoError(t, r.Sign(key))

	enc, err := rlp.EncodeToBytes(&r)
	require.NoError(t, err)

	var r2 Record
	err = rlp.DecodeBytes(enc, &r2)
	require.ErrorIs(t, err, errDuplicateKey)
}

func TestUnsortedKeysRejected(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	var r Record
	require.NoError(t, r.Sign(key))
	// Swap the "id" and "secp256k1" pairs out of order (normally "id" < "secp256k1"),
	// then re-encode so the malformed order actually reaches the wire bytes.
	r.pairs[0], r.pairs[1] = r.pairs[1], r.pairs[0]
	require.NoError(t, r.encode())

	enc, err := rlp.EncodeToBytes(&r)
	require.NoError(t, err)

	var r2 Record
	err = rlp.DecodeBytes(enc, &r2)
	require.ErrorIs(t, err, errNotSorted)
}

func TestUnsignedRecordCannotEncode(t *testing.T) {
	var r Record
	_, err := rlp.EncodeToBytes(&r)
	require.ErrorIs(t, err, errNotSigned)
}

func TestLoadMissingKeyReportsNotFound(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	var r Record
	require.NoError(t, r.Sign(key))

	var ip IP
	_, err = r.Load(&ip)
	require.Error(t, err)
	require.True(t, IsNotFound(err))
}

func mustEncode(t *testing.T, v interface{}) rlp.RawValue {
	b, err := rlp.EncodeToBytes(v)
	require.NoError(t, err)
	return b
}
