// Package peerid computes and verifies Kadcast node identifiers.
//
// A node's identifier is derived deterministically from its socket address,
// so that any peer observing a datagram can recompute the sender's claimed
// ID from the header's declared port and the UDP source IP, without any
// prior handshake.
package peerid

import (
	"encoding/binary"
	"net"

	"golang.org/x/crypto/blake2s"
)

// KeyLen is the width, in bits, of a BinaryKey. The reference
// implementation carries two inconsistent definitions of this constant
// across two versions of its peer.rs; this module keeps exactly one.
const KeyLen = 128

// KeyLenBytes is KeyLen expressed in bytes.
const KeyLenBytes = KeyLen / 8

// BinaryKey is a fixed-width node identifier.
type BinaryKey [KeyLenBytes]byte

// IsZero reports whether k is the all-zero key, i.e. XOR distance zero,
// which never corresponds to a storable peer (it is the local node).
func (k BinaryKey) IsZero() bool {
	return k == BinaryKey{}
}

// Xor returns the bitwise XOR distance between k and other.
func (k BinaryKey) Xor(other BinaryKey) BinaryKey {
	var out BinaryKey
	for i := range out {
		out[i] = k[i] ^ other[i]
	}
	return out
}

// BucketIndex returns the position of the most significant set bit of k
// (0..KeyLen-1), or -1 if k is the zero key (self-distance, never stored).
func (k BinaryKey) BucketIndex() int {
	for byteIdx := 0; byteIdx < KeyLenBytes; byteIdx++ {
		b := k[byteIdx]
		if b == 0 {
			continue
		}
		bit := 7
		for ; bit >= 0; bit-- {
			if b&(1<<uint(bit)) != 0 {
				break
			}
		}
		// Bit 7 of byte 0 is the most significant bit of the key.
		return (KeyLenBytes-1-byteIdx)*8 + bit
	}
	return -1
}

// ComputeID derives the canonical node ID for a given IP/port pair:
// the first KeyLenBytes bytes of BLAKE2s(port_le_bytes || ip_octets).
func ComputeID(ip net.IP, port uint16) BinaryKey {
	h, err := blake2s.New256(nil)
	if err != nil {
		// blake2s.New256 only fails for an oversized key, and we pass nil.
		panic(err)
	}
	var portBytes [2]byte
	binary.LittleEndian.PutUint16(portBytes[:], port)
	h.Write(portBytes[:])
	h.Write(ipOctets(ip))

	sum := h.Sum(nil)
	var out BinaryKey
	copy(out[:], sum[:KeyLenBytes])
	return out
}

// VerifyHeader reports whether claimedID is the canonical ID for the
// address formed by observedIP and the sender-declared port.
func VerifyHeader(claimedID BinaryKey, observedIP net.IP, declaredPort uint16) bool {
	return ComputeID(observedIP, declaredPort) == claimedID
}

// ipOctets returns the 4-byte form for an IPv4 address or the 16-byte form
// for an IPv6 address, matching the reference's match on IpAddr::V4/V6.
func ipOctets(ip net.IP) []byte {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip.To16()
}
