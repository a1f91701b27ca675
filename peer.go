package kadcast

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/golang/glog"

	"github.com/legitnull/kadcast/broadcast"
	"github.com/legitnull/kadcast/fec"
	"github.com/legitnull/kadcast/kbucket"
	"github.com/legitnull/kadcast/metrics"
	"github.com/legitnull/kadcast/peerid"
	"github.com/legitnull/kadcast/wire"
)

// Builder assembles a Peer, mirroring original_source's
// Peer::builder(address, bootstrap, listener).with_*(...).build() chain,
// expressed as Go functional options over a single constructor instead of a
// fluent fighter-chain (see config.go's Option doc comment for why).
type Builder struct {
	publicAddr string
	bootstrap  []string
	listener   NetworkListen
	cfg        config
	transport  Transport // overridable, defaults to the built-in UDP transport
}

// NewBuilder starts a Peer build. publicAddr is the address this node
// binds and advertises; bootstrap is the set of known-good peers to join
// the overlay through; listener receives every reassembled broadcast
// payload.
func NewBuilder(publicAddr string, bootstrap []string, listener NetworkListen, opts ...Option) *Builder {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Builder{publicAddr: publicAddr, bootstrap: bootstrap, listener: listener, cfg: cfg}
}

// WithTransport overrides the default UDP transport — the seam tests use
// to run a multi-node harness without real sockets.
func (b *Builder) WithTransport(t Transport) *Builder {
	b.transport = t
	return b
}

// TransportConf exposes the free-form transport config map for direct
// mutation, mirroring peer_builder.transport_conf().insert(...).
func (b *Builder) TransportConf() map[string]string {
	return b.cfg.transportConf
}

// Build resolves the public address, binds (or adopts) a transport,
// constructs the routing table and broadcast engine, and starts the three
// cooperative tasks. The returned Peer is immediately usable.
func (b *Builder) Build() (*Peer, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", b.publicAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrInvalidAddr, b.publicAddr, err)
	}

	transport := b.transport
	if transport == nil {
		transport, err = newUDPTransport(udpAddr, b.cfg.transportConf)
		if err != nil {
			return nil, fmt.Errorf("kadcast: bind transport: %w", err)
		}
	}

	selfID := peerid.ComputeID(udpAddr.IP, uint16(udpAddr.Port))
	table := kbucket.NewTree[*net.UDPAddr](selfID, b.cfg.bucketConfig())
	table.Validate = func(id peerid.BinaryKey, addr *net.UDPAddr) bool {
		return peerid.VerifyHeader(id, addr.IP, uint16(addr.Port))
	}

	cache, err := fec.NewDecoderCache(b.cfg.cacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("kadcast: decoder cache: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Peer{
		selfID:    selfID,
		selfAddr:  udpAddr,
		table:     table,
		cache:     cache,
		transport: transport,
		listener:  b.listener,
		cfg:       b.cfg,

		ctx:    ctx,
		cancel: cancel,

		routingCh:  make(chan inboundEvent, b.cfg.channelSize),
		outboundCh: make(chan outboundEnvelope, b.cfg.channelSize),

		discoveryRounds: make(map[peerid.BinaryKey]int),
		ipLimiter:       newIPLimiter(b.cfg.tableIPLimit, b.cfg.bucketIPLimit),
	}

	sender := chanSender{out: p.outboundCh}
	p.engine = broadcast.NewEngine[*net.UDPAddr](table, selfID, udpAddr, func(a *net.UDPAddr) *net.UDPAddr { return a }, sender, b.cfg.resolvedBroadcastCfg())
	p.inbound = broadcast.NewInbound[*net.UDPAddr](p.engine, cache, func(payload []byte, height uint8) {
		p.listener.OnMessage(payload, MessageInfo{height: height})
	})

	p.wg.Add(3)
	go p.runInboundTask()
	go p.runRoutingTask()
	go p.runOutboundTask()

	for _, addr := range b.bootstrap {
		if err := p.joinVia(addr); err != nil {
			glog.Warningf("kadcast: bootstrap %s: %s", addr, err)
		}
	}

	return p, nil
}

// Peer is the public handle on a running overlay node: the routing table,
// the broadcast engine, the FEC decoder cache, and the three cooperative
// tasks wired together over bounded channels (spec §5).
type Peer struct {
	selfID   peerid.BinaryKey
	selfAddr *net.UDPAddr

	table     *kbucket.Tree[*net.UDPAddr]
	engine    *broadcast.Engine[*net.UDPAddr]
	inbound   *broadcast.Inbound[*net.UDPAddr]
	cache     *fec.DecoderCache
	transport Transport
	listener  NetworkListen
	cfg       config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	routingCh  chan inboundEvent
	outboundCh chan outboundEnvelope

	discoveryMu     sync.Mutex
	discoveryRounds map[peerid.BinaryKey]int

	ipLimiter *ipLimiter
}

// SelfID returns this node's derived identity.
func (p *Peer) SelfID() peerid.BinaryKey { return p.selfID }

// LocalAddr returns the bound/advertised address.
func (p *Peer) LocalAddr() *net.UDPAddr { return p.selfAddr }

// Broadcast sends data out across the overlay to buckets 0..height-1. A
// height of 0 uses one past the highest currently-occupied bucket index
// (i.e. "as wide as the routing table currently supports").
func (p *Peer) Broadcast(ctx context.Context, data []byte, height uint8) error {
	if height == 0 {
		height = p.topHeight()
	}
	metrics.MsgBroadcastOut.Mark(1)
	return p.engine.Broadcast(ctx, height, data)
}

func (p *Peer) topHeight() uint8 {
	indices := p.table.BucketIndices()
	if len(indices) == 0 {
		return 0
	}
	top := indices[len(indices)-1]
	if top >= 255 {
		return 255
	}
	return uint8(top + 1)
}

// joinVia sends an initial FindNodes probe to a bootstrap address so its
// response seeds the routing table — the reference's join procedure isn't
// spelled out in spec.md, supplemented here as standard Kademlia bootstrap.
func (p *Peer) joinVia(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAddr, addr)
	}
	msg := wire.Message{
		Kind:      wire.KindFindNodes,
		Header:    p.header(),
		FindNodes: wire.FindNodesPayload{Target: p.selfID},
	}
	return p.sendMessage(udpAddr, msg)
}

func (p *Peer) header() wire.Header {
	return wire.Header{SenderID: p.selfID, SenderPort: uint16(p.selfAddr.Port)}
}

func (p *Peer) sendMessage(addr *net.UDPAddr, msg wire.Message) error {
	data, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	return p.trySendOutbound(outboundEnvelope{addr: addr, data: data})
}

func (p *Peer) trySendOutbound(env outboundEnvelope) error {
	select {
	case p.outboundCh <- env:
		return nil
	default:
		metrics.ChannelDropOutbound.Mark(1)
		glog.V(1).Infof("kadcast: outbound channel full, dropping message to %s", env.addr)
		return ErrChannelFull
	}
}

// Close stops all three tasks and releases the transport.
func (p *Peer) Close() error {
	p.cancel()
	err := p.transport.Close()
	p.wg.Wait()
	return err
}
