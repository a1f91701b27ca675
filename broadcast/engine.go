// Package broadcast implements the Kadcast height-indexed fan-out
// algorithm: a message is pushed down through progressively narrower
// buckets, each hop re-broadcasting to a random subset of a bucket one
// step closer to the leaves, until the height reaches zero.
//
// Grounded on spec §4.4 and, for the Go shape of the fan-out loop, on
// drawdrop-dusk-blockchain/pkg/p2p/kadcast/writer.go's broadcastPacket /
// fetchDelegates / sendToDelegates (that repo has no go.mod and is used
// here as style grounding only, not as the teacher).
package broadcast

import (
	"context"
	"fmt"
	"net"

	"github.com/legitnull/kadcast/fec"
	"github.com/legitnull/kadcast/kbucket"
	"github.com/legitnull/kadcast/metrics"
	"github.com/legitnull/kadcast/peerid"
	"github.com/legitnull/kadcast/wire"
)

// DefaultBeta is the default fan-out width per non-zero-height bucket, per spec:
// "Instead of a single delegate per bucket, select β delegates to raise the
// odds that at least one is honest and reachable."
const DefaultBeta = 3

// Sender is the capability seam the engine uses to actually put bytes on
// the wire. The UDP socket driver and its retry loop are an external
// collaborator (spec §1 Non-goals/out-of-scope) — Sender is the boundary.
type Sender interface {
	SendTo(ctx context.Context, addr *net.UDPAddr, data []byte) error
}

// Config tunes the fan-out.
type Config struct {
	Beta       int
	UseFEC     bool
	EncoderCfg fec.EncoderConfig

	// AutoPropagate, when false, stops HandleChunk from re-forwarding a
	// reassembled payload after delivering it locally (spec §4.4).
	AutoPropagate bool
}

// DefaultConfig matches the reference's defaults.
func DefaultConfig() Config {
	return Config{Beta: DefaultBeta, UseFEC: true, EncoderCfg: fec.DefaultEncoderConfig(), AutoPropagate: true}
}

// Engine drives outbound and forwarded broadcasts over a routing table
// whose value type V is opaque except for the caller-supplied addrOf hook
// (the same seam kbucket.Tree.Validate uses, for the same reason: the
// table has no concrete addressing type of its own).
type Engine[V any] struct {
	table    *kbucket.Tree[V]
	selfID   peerid.BinaryKey
	selfAddr *net.UDPAddr
	addrOf   func(V) *net.UDPAddr
	sender   Sender
	config   Config
	encoder  fec.PayloadEncoder
}

// NewEngine constructs a broadcast engine bound to table and sender.
func NewEngine[V any](
	table *kbucket.Tree[V],
	selfID peerid.BinaryKey,
	selfAddr *net.UDPAddr,
	addrOf func(V) *net.UDPAddr,
	sender Sender,
	config Config,
) *Engine[V] {
	return &Engine[V]{
		table:    table,
		selfID:   selfID,
		selfAddr: selfAddr,
		addrOf:   addrOf,
		sender:   sender,
		config:   config,
		encoder:  fec.NewEncoder(config.EncoderCfg),
	}
}

// Broadcast fans payload out across buckets 0..maxHeight-1, used both for
// an application-originated broadcast (maxHeight chosen by the caller, e.g.
// one past the highest occupied bucket index) and for re-propagating an inbound
// Broadcast message (maxHeight = the height carried in that message).
//
// Grounded on writer.go's broadcastPacket: for h in [0, maxHeight), fetch
// that bucket's delegates and send them a packet tagged with height h.
func (e *Engine[V]) Broadcast(ctx context.Context, maxHeight uint8, payload []byte) error {
	if maxHeight == 0 {
		return nil
	}

	chunks, err := e.chunksFor(payload)
	if err != nil {
		return fmt.Errorf("broadcast: encode: %w", err)
	}

	for h := uint8(0); h < maxHeight; h++ {
		delegates := e.fetchDelegates(int(h))
		if len(delegates) == 0 {
			continue
		}
		if err := e.sendToDelegates(ctx, delegates, h, chunks); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine[V]) chunksFor(payload []byte) ([][]byte, error) {
	if !e.config.UseFEC {
		return [][]byte{payload}, nil
	}
	chunks, err := e.encoder.Encode(payload)
	if err != nil {
		return nil, err
	}
	metrics.FECChunksEncoded.Mark(int64(len(chunks)))
	return chunks, nil
}

// fetchDelegates mirrors writer.go's rule: bucket 0 yields a single
// neighbor (it holds nodes of the one closest distance only), every other
// bucket yields up to Beta randomly-picked delegates.
func (e *Engine[V]) fetchDelegates(height int) []kbucket.Node[V] {
	b, ok := e.table.BucketAt(height)
	if !ok || b.Len() == 0 {
		return nil
	}
	if height == 0 {
		picked := b.Pick(1)
		return picked
	}
	return b.Pick(e.config.Beta)
}

func (e *Engine[V]) sendToDelegates(ctx context.Context, delegates []kbucket.Node[V], height uint8, chunks [][]byte) error {
	for _, d := range delegates {
		addr := e.addrOf(d.Value)
		if addr == nil {
			continue
		}
		for _, chunk := range chunks {
			msg := wire.Message{
				Kind: wire.KindBroadcast,
				Header: wire.Header{
					SenderID:   e.selfID,
					SenderPort: uint16(e.selfAddr.Port),
				},
				Broadcast: wire.BroadcastPayload{Height: height, GossipFrame: chunk},
			}
			encoded, err := wire.Encode(msg)
			if err != nil {
				return fmt.Errorf("broadcast: encode wire message: %w", err)
			}
			if err := e.sender.SendTo(ctx, addr, encoded); err != nil {
				return fmt.Errorf("broadcast: send to %s: %w", addr, err)
			}
		}
	}
	return nil
}
