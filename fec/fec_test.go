package fec

import (
	"bytes"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEncodeDecodeRoundTrip mirrors original_source's raptorq.rs test_encode:
// a payload is encoded into chunks, then fed one at a time into a decoder
// until it reconstructs the original bytes.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := make([]byte, 10_000)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	enc := NewEncoder(DefaultEncoderConfig())
	chunks, err := enc.Encode(payload)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	cache, err := NewDecoderCache(16)
	require.NoError(t, err)

	var out []byte
	var delivered bool
	for _, chunk := range chunks {
		got, ok, dup, err := cache.Feed(chunk)
		require.NoError(t, err)
		assert.False(t, dup)
		if ok {
			out = got
			delivered = true
			break
		}
	}

	require.True(t, delivered, "decoder never reconstructed the payload")
	assert.True(t, bytes.Equal(payload, out))
}

func TestFeedDuplicateAfterDelivery(t *testing.T) {
	payload := make([]byte, 2_000)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	enc := NewEncoder(DefaultEncoderConfig())
	chunks, err := enc.Encode(payload)
	require.NoError(t, err)

	cache, err := NewDecoderCache(16)
	require.NoError(t, err)

	var deliveredAt int
	for i, chunk := range chunks {
		_, ok, _, err := cache.Feed(chunk)
		require.NoError(t, err)
		if ok {
			deliveredAt = i
			break
		}
	}
	require.Greater(t, len(chunks), deliveredAt)

	// Feeding another chunk for the same UID after delivery must be
	// reported as a duplicate, not reprocessed.
	if deliveredAt+1 < len(chunks) {
		_, ok, dup, err := cache.Feed(chunks[deliveredAt+1])
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, dup)
	}
}

func TestDecoderCachePrunesStaleEntries(t *testing.T) {
	payload := make([]byte, 2_000)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	enc := NewEncoder(DefaultEncoderConfig())
	chunks, err := enc.Encode(payload)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	cache, err := NewDecoderCache(16)
	require.NoError(t, err)

	// Feed only the first chunk so the entry stays in-flight (undelivered).
	_, _, _, err = cache.Feed(chunks[0])
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())

	time.Sleep(10 * time.Millisecond)
	pruned := cache.Prune(5 * time.Millisecond)
	assert.Equal(t, 1, pruned)
	assert.Equal(t, 0, cache.Len())
}

func TestChunkedPayloadRoundTrip(t *testing.T) {
	cp := ChunkedPayload{EncodedChunk: []byte{1, 2, 3, 4}}
	copy(cp.UID[:], bytes.Repeat([]byte{0xAB}, uidLen))
	copy(cp.TransmissionInfo[:], bytes.Repeat([]byte{0xCD}, transmissionInfoLen))

	parsed, err := ParseChunkedPayload(cp.Bytes())
	require.NoError(t, err)
	assert.Equal(t, cp.UID, parsed.UID)
	assert.Equal(t, cp.TransmissionInfo, parsed.TransmissionInfo)
	assert.Equal(t, cp.EncodedChunk, parsed.EncodedChunk)
}

func TestParseChunkedPayloadTruncated(t *testing.T) {
	_, err := ParseChunkedPayload([]byte{1, 2, 3})
	assert.Error(t, err)
}
