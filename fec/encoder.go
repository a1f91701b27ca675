package fec

import (
	"encoding/binary"
	"fmt"
)

// Reference defaults, grounded on original_source's RaptorQEncoderConf.
const (
	DefaultMinRepairPackets uint32  = 5
	DefaultMTU              uint16  = 1300
	DefaultFECRedundancy    float32 = 0.15
)

// EncoderConfig controls how much redundancy an Encoder produces.
type EncoderConfig struct {
	MinRepairPackets uint32
	MTU              uint16
	FECRedundancy    float32
}

// DefaultEncoderConfig matches the reference implementation's defaults.
func DefaultEncoderConfig() EncoderConfig {
	return EncoderConfig{
		MinRepairPackets: DefaultMinRepairPackets,
		MTU:              DefaultMTU,
		FECRedundancy:    DefaultFECRedundancy,
	}
}

// Encoder splits a payload into source and repair symbols, each framed as a
// ChunkedPayload.
type Encoder struct {
	config EncoderConfig
}

// NewEncoder builds an Encoder with the given config.
func NewEncoder(config EncoderConfig) *Encoder {
	return &Encoder{config: config}
}

// Encode returns one wire-ready gossip frame per symbol (source symbols
// first, then repair symbols), grounded on
// original_source/.../raptorq/encoder.rs's RaptorQEncoder::encode.
func (e *Encoder) Encode(payload []byte) ([][]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("fec: cannot encode an empty payload")
	}

	uid, err := generateUID(payload)
	if err != nil {
		return nil, err
	}

	rq, err := newRQEncoder(uint32(e.config.MTU), payload)
	if err != nil {
		return nil, err
	}

	repairCount := uint32(float32(len(payload)) * e.config.FECRedundancy / float32(e.config.MTU))
	if repairCount < e.config.MinRepairPackets {
		repairCount = e.config.MinRepairPackets
	}

	src := rq.sourceSymbols()
	out := make([][]byte, 0, len(src)+int(repairCount))
	for _, s := range src {
		out = append(out, frameFor(uid, rq.params, s))
	}

	nextID := uint32(len(src))
	for i := uint32(0); i < repairCount; i++ {
		s := rq.repairSymbol(nextID)
		nextID++
		out = append(out, frameFor(uid, rq.params, s))
	}
	return out, nil
}

// frameFor frames one symbol as a ChunkedPayload, prefixing its encoding
// symbol ID (the decoder needs it to know which symbol this is) onto the
// symbol's own data.
func frameFor(uid [uidLen]byte, params [transmissionInfoLen]byte, s symbol) []byte {
	chunk := make([]byte, 4+len(s.data))
	binary.BigEndian.PutUint32(chunk[:4], s.id)
	copy(chunk[4:], s.data)
	cp := ChunkedPayload{UID: uid, TransmissionInfo: params, EncodedChunk: chunk}
	return cp.Bytes()
}

// symbolFromChunk reverses frameFor's encoding.
func symbolFromChunk(chunk []byte) (symbol, error) {
	if len(chunk) < 4 {
		return symbol{}, fmt.Errorf("fec: encoded chunk too short: %d bytes", len(chunk))
	}
	return symbol{id: binary.BigEndian.Uint32(chunk[:4]), data: chunk[4:]}, nil
}
