package broadcast

import (
	"context"
	"fmt"

	"github.com/legitnull/kadcast/fec"
	"github.com/legitnull/kadcast/metrics"
)

// Deliver is the application message-handler callback spec.md treats as an
// external collaborator: broadcast only hands it a fully-reassembled
// payload, never a raw chunk. height is the value carried on the wire
// message that completed reassembly, passed through for the caller's own
// metadata/reporting purposes.
type Deliver func(payload []byte, height uint8)

// Inbound wires a Broadcast message's decode/reassemble/re-forward path:
// feed the chunk to the decoder cache, and once a payload is fully
// reassembled, deliver it to the application and, when AutoPropagate is
// set, re-forward it one layer further down the tree using the height
// carried on the wire.
type Inbound[V any] struct {
	engine  *Engine[V]
	cache   fec.PayloadDecoder
	deliver Deliver
}

// NewInbound builds the inbound half of the broadcast pipeline. cache is
// typically a *fec.DecoderCache; deliver is the application callback.
func NewInbound[V any](engine *Engine[V], cache fec.PayloadDecoder, deliver Deliver) *Inbound[V] {
	return &Inbound[V]{engine: engine, cache: cache, deliver: deliver}
}

// HandleChunk processes one inbound Broadcast gossip frame at the given
// height. When FEC is disabled the frame IS the payload; otherwise it's one
// symbol among possibly many needed to reconstruct it.
func (in *Inbound[V]) HandleChunk(ctx context.Context, height uint8, frame []byte) error {
	if !in.engine.config.UseFEC {
		in.deliver(frame, height)
		if !in.engine.config.AutoPropagate {
			return nil
		}
		return in.engine.Broadcast(ctx, height, frame)
	}

	metrics.FECChunksFed.Mark(1)
	payload, delivered, duplicate, err := in.cache.Feed(frame)
	if err != nil {
		return fmt.Errorf("broadcast: decode chunk: %w", err)
	}
	if duplicate {
		metrics.FECDuplicate.Mark(1)
		return nil
	}
	if !delivered {
		return nil
	}
	metrics.FECDelivered.Mark(1)

	in.deliver(payload, height)
	if !in.engine.config.AutoPropagate {
		return nil
	}
	return in.engine.Broadcast(ctx, height, payload)
}
