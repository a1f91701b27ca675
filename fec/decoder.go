package fec

import "fmt"

// Decoder turns a stream of ChunkedPayload frames sharing a UID back into
// the original payload, given enough distinct symbols arrive. It holds
// exactly one in-flight reconstruction; DecoderCache fans this out across
// concurrently in-flight UIDs.
type Decoder struct {
	rq *rqDecoder
}

// newDecoderFor constructs a Decoder from the transmission parameters
// carried in the first chunk seen for a UID.
func newDecoderFor(params [transmissionInfoLen]byte) (*Decoder, error) {
	rq, err := newRQDecoderFromParams(params)
	if err != nil {
		return nil, fmt.Errorf("fec: decoder init: %w", err)
	}
	return &Decoder{rq: rq}, nil
}

// Add feeds one chunk into the decoder. It returns the reassembled payload
// once enough symbols have arrived, and ok=false otherwise.
func (d *Decoder) Add(cp ChunkedPayload) (payload []byte, ok bool, err error) {
	s, err := symbolFromChunk(cp.EncodedChunk)
	if err != nil {
		return nil, false, err
	}
	done, err := d.rq.addSymbol(s)
	if err != nil {
		return nil, false, err
	}
	if !done {
		return nil, false, nil
	}
	out, err := d.rq.decode()
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}
