package peerid

import (
	"math/big"
	"net"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/blake2s"
)

func TestComputeIDMatchesReferenceHash(t *testing.T) {
	ip := net.ParseIP("192.168.0.1")
	port := uint16(666)

	h, err := blake2s.New256(nil)
	assert.NoError(t, err)
	h.Write([]byte{0x9A, 0x02}) // 666 little-endian
	h.Write(ip.To4())
	want := h.Sum(nil)[:KeyLenBytes]

	got := ComputeID(ip, port)
	assert.Equal(t, want, got[:])
}

func TestVerifyHeader(t *testing.T) {
	id := ComputeID(net.ParseIP("192.168.0.1"), 666)
	assert.True(t, VerifyHeader(id, net.ParseIP("192.168.0.1"), 666))
	assert.False(t, VerifyHeader(id, net.ParseIP("10.0.0.1"), 333))
}

func TestComputeIDIPv6(t *testing.T) {
	id := ComputeID(net.ParseIP("2001:db8::1"), 7000)
	assert.False(t, id.IsZero())
}

func TestBucketIndexMSB(t *testing.T) {
	var a, b BinaryKey
	// Keys differing only in the least-significant bit -> bucket 0.
	a[KeyLenBytes-1] = 0
	b[KeyLenBytes-1] = 1
	assert.Equal(t, 0, a.Xor(b).BucketIndex())

	// Keys differing in the most significant bit -> bucket KeyLen-1.
	a = BinaryKey{}
	b = BinaryKey{}
	b[0] = 0x80
	assert.Equal(t, KeyLen-1, a.Xor(b).BucketIndex())
}

func TestBucketIndexZeroDistance(t *testing.T) {
	var a BinaryKey
	assert.Equal(t, -1, a.Xor(a).BucketIndex())
}

// bucketIndexBig mirrors BucketIndex using math/big, for property testing
// against a reference the implementation doesn't share code with
// (grounded on the teacher's quick.CheckEqual(logdist, logdistBig, ...) idiom).
func bucketIndexBig(a, b [KeyLenBytes]byte) int {
	abig := new(big.Int).SetBytes(a[:])
	bbig := new(big.Int).SetBytes(b[:])
	x := new(big.Int).Xor(abig, bbig)
	return x.BitLen() - 1
}

func TestBucketIndexAgreesWithBigIntReference(t *testing.T) {
	f := func(a, b [KeyLenBytes]byte) bool {
		ka, kb := BinaryKey(a), BinaryKey(b)
		return ka.Xor(kb).BucketIndex() == bucketIndexBig(a, b)
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 512}); err != nil {
		t.Error(err)
	}
}
