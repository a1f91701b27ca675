// Package fec implements the rateless-fountain-code chunking layer that
// sits beneath the wire protocol's Broadcast message: a large application
// payload is split into source and repair symbols before it is handed to
// the broadcast engine, and reassembled from whichever symbols a receiver
// happens to get (spec §4.3).
package fec

import (
	"fmt"

	"golang.org/x/crypto/blake2s"
)

const (
	uidLen               = 32
	transmissionInfoLen  = 12
	chunkedPayloadHeader = uidLen + transmissionInfoLen
)

// ChunkedPayload is the framing carried inside a Broadcast message's gossip
// frame: a content UID, the RaptorQ transmission parameters a decoder needs
// before it can interpret the chunk, and one encoded symbol.
//
// Grounded on original_source/src/transport/encoding/raptorq.rs's
// ChunkedPayload (uid/transmission_info/encoded_chunk byte offsets).
type ChunkedPayload struct {
	UID              [uidLen]byte
	TransmissionInfo [transmissionInfoLen]byte
	EncodedChunk     []byte
}

// ParseChunkedPayload splits a raw gossip frame into its three fields.
func ParseChunkedPayload(frame []byte) (ChunkedPayload, error) {
	if len(frame) < chunkedPayloadHeader {
		return ChunkedPayload{}, fmt.Errorf("fec: frame too short: %d bytes", len(frame))
	}
	var cp ChunkedPayload
	copy(cp.UID[:], frame[0:uidLen])
	copy(cp.TransmissionInfo[:], frame[uidLen:chunkedPayloadHeader])
	cp.EncodedChunk = append([]byte(nil), frame[chunkedPayloadHeader:]...)
	return cp, nil
}

// Bytes reassembles the gossip frame wire representation.
func (c ChunkedPayload) Bytes() []byte {
	out := make([]byte, 0, chunkedPayloadHeader+len(c.EncodedChunk))
	out = append(out, c.UID[:]...)
	out = append(out, c.TransmissionInfo[:]...)
	out = append(out, c.EncodedChunk...)
	return out
}

// SafeUID folds the transmission info into the cache key alongside the
// content UID. A corrupted transmission-info byte on the first chunk
// received under a UID must not poison every later decode attempt for that
// UID — keying the cache on uid+transmission_info keeps a corrupted first
// arrival isolated to its own (unreconstructable) cache entry, rather than
// shadowing a clean retransmission under the same uid.
func (c ChunkedPayload) SafeUID() ([32]byte, error) {
	h, err := blake2s.New256(nil)
	if err != nil {
		return [32]byte{}, err
	}
	h.Write(c.UID[:])
	h.Write(c.TransmissionInfo[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// generateUID hashes the pre-chunking payload; used by the encoder so every
// symbol produced for the same original message shares a UID.
func generateUID(payload []byte) ([32]byte, error) {
	h, err := blake2s.New256(nil)
	if err != nil {
		return [32]byte{}, err
	}
	h.Write(payload)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}
