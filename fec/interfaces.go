package fec

// PayloadEncoder is the capability seam broadcast depends on instead of the
// concrete *Encoder (spec §9 — "capability-seam interfaces" so callers can
// substitute an in-memory fake that returns the payload as a single
// "chunk" for codec-focused tests that don't want to pull in real FEC).
type PayloadEncoder interface {
	Encode(payload []byte) ([][]byte, error)
}

// PayloadDecoder is the inbound-side capability seam.
type PayloadDecoder interface {
	Feed(frame []byte) (payload []byte, delivered bool, duplicate bool, err error)
}

var (
	_ PayloadEncoder = (*Encoder)(nil)
	_ PayloadDecoder = (*DecoderCache)(nil)
)
