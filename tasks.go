package kadcast

import (
	"context"
	"net"

	"github.com/golang/glog"

	"github.com/legitnull/kadcast/kbucket"
	"github.com/legitnull/kadcast/metrics"
	"github.com/legitnull/kadcast/peerid"
	"github.com/legitnull/kadcast/wire"
)

// inboundEvent is what the inbound task hands the routing/broadcast task:
// a decoded message plus the address it actually arrived from (distinct
// from the header's claimed port once IP is added at the transport layer).
type inboundEvent struct {
	msg  wire.Message
	from *net.UDPAddr
}

// outboundEnvelope is what the routing/broadcast task hands the outbound
// task: raw wire bytes and a destination.
type outboundEnvelope struct {
	addr *net.UDPAddr
	data []byte
}

// chanSender adapts the routing task's outbound channel to
// broadcast.Sender, so the broadcast engine never touches a socket
// directly — only the outbound task does (spec §5's task boundaries).
type chanSender struct {
	out chan outboundEnvelope
}

func (s chanSender) SendTo(ctx context.Context, addr *net.UDPAddr, data []byte) error {
	select {
	case s.out <- outboundEnvelope{addr: addr, data: data}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		metrics.ChannelDropOutbound.Mark(1)
		glog.V(1).Infof("kadcast: outbound channel full, dropping broadcast chunk to %s", addr)
		return ErrChannelFull
	}
}

// runInboundTask owns the receive socket: decode and hand off. Header
// verification happens afterwards, in handleInbound on the routing task.
// It never touches the routing table or the send socket directly.
func (p *Peer) runInboundTask() {
	defer p.wg.Done()

	_ = p.transport.Listen(p.ctx, func(data []byte, from *net.UDPAddr) {
		msg, err := wire.Decode(data)
		if err != nil {
			metrics.MsgDecodeErrors.Mark(1)
			glog.V(2).Infof("kadcast: decode error from %s: %s", from, err)
			return
		}

		select {
		case p.routingCh <- inboundEvent{msg: msg, from: from}:
		default:
			metrics.ChannelDropRouting.Mark(1)
			glog.V(1).Infof("kadcast: routing channel full, dropping message from %s", from)
		}
	})
}

// runOutboundTask owns the send socket.
func (p *Peer) runOutboundTask() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case env := <-p.outboundCh:
			if err := p.transport.SendTo(p.ctx, env.addr, env.data); err != nil {
				glog.V(1).Infof("kadcast: send to %s failed: %s", env.addr, err)
			}
		}
	}
}

// runRoutingTask owns the routing table and the broadcast engine's
// decision-making (it enqueues sends onto outboundCh rather than ever
// calling the transport itself). It also drives the maintenance loop.
func (p *Peer) runRoutingTask() {
	defer p.wg.Done()

	ticker := newMaintenanceTicker(p.cfg.refreshInterval)
	defer ticker.Stop()

	pruneTicker := newMaintenanceTicker(p.cfg.cachePruneEvery)
	defer pruneTicker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case ev := <-p.routingCh:
			p.handleInbound(ev)
		case <-ticker.C:
			p.runMaintenance()
		case <-pruneTicker.C:
			pruned := p.cache.Prune(parseSeconds(p.cfg.transportConf["cache_ttl_secs"], 60))
			if pruned > 0 {
				metrics.FECCachePruned.Mark(int64(pruned))
			}
		}
	}
}

func (p *Peer) handleInbound(ev inboundEvent) {
	sender := &net.UDPAddr{IP: ev.from.IP, Port: int(ev.msg.Header.SenderPort)}

	if !peerid.VerifyHeader(ev.msg.Header.SenderID, sender.IP, ev.msg.Header.SenderPort) {
		metrics.MsgHeaderMismatch.Mark(1)
		glog.V(1).Infof("kadcast: dropping %s from %s: sender_id does not match address", ev.msg.Kind, sender)
		return
	}

	switch ev.msg.Kind {
	case wire.KindPing:
		metrics.MsgPingIn.Mark(1)
		p.admit(ev.msg.Header.SenderID, sender)
		p.replyPong(sender)
	case wire.KindPong:
		metrics.MsgPongIn.Mark(1)
		p.admit(ev.msg.Header.SenderID, sender)
	case wire.KindFindNodes:
		metrics.MsgFindNodesIn.Mark(1)
		p.admit(ev.msg.Header.SenderID, sender)
		p.replyNodes(sender, ev.msg.FindNodes.Target)
	case wire.KindNodes:
		metrics.MsgNodesIn.Mark(1)
		p.admit(ev.msg.Header.SenderID, sender)
		p.handleNodes(ev.msg.Nodes)
	case wire.KindBroadcast:
		metrics.MsgBroadcastIn.Mark(1)
		p.admit(ev.msg.Header.SenderID, sender)
		if err := p.inbound.HandleChunk(p.ctx, ev.msg.Broadcast.Height, ev.msg.Broadcast.GossipFrame); err != nil {
			glog.V(1).Infof("kadcast: broadcast chunk from %s: %s", sender, err)
		}
	}
}

// admit inserts or refreshes the sender in the routing table, absorbing
// BucketFull/InvalidNode as structured, non-fatal outcomes (spec §7). IP
// diversity (bucket_ip_limit/table_ip_limit) is enforced here, ahead of
// the table itself, since Tree has no concrete addressing type to consult.
func (p *Peer) admit(id peerid.BinaryKey, addr *net.UDPAddr) {
	idx := bucketIndexFor(p.selfID, id)
	if idx < 0 {
		return
	}
	if !p.ipLimiter.admit(idx, addr) {
		glog.V(2).Infof("kadcast: admit %s: ip diversity limit reached", addr)
		return
	}

	out, err := p.table.Insert(kbucket.NewNode(id, addr))
	if err != nil {
		p.ipLimiter.release(idx, addr)
		if err == kbucket.ErrInvalidNode {
			metrics.MsgHeaderMismatch.Mark(1)
		} else {
			metrics.BucketFull.Mark(1)
		}
		glog.V(2).Infof("kadcast: admit %s: %s", addr, err)
		return
	}
	switch out.Kind {
	case kbucket.Inserted:
		metrics.BucketInsert.Mark(1)
	case kbucket.Updated:
		metrics.BucketUpdate.Mark(1)
	case kbucket.Pending:
		metrics.BucketPending.Mark(1)
	}
	if out.Evicted {
		metrics.BucketEvict.Mark(1)
	}
}

func (p *Peer) replyPong(to *net.UDPAddr) {
	_ = p.sendMessage(to, wire.Message{Kind: wire.KindPong, Header: p.header()})
	metrics.MsgPongOut.Mark(1)
}

func (p *Peer) replyNodes(to *net.UDPAddr, target peerid.BinaryKey) {
	closest := p.table.Closest(target, kbucket.K)
	peers := make([]wire.PeerEncodedInfo, 0, len(closest))
	for _, n := range closest {
		ip := n.Value.IP.To4()
		if ip == nil {
			ip = n.Value.IP.To16()
		}
		peers = append(peers, wire.PeerEncodedInfo{IP: ip, Port: uint16(n.Value.Port), ID: n.ID})
	}
	_ = p.sendMessage(to, wire.Message{
		Kind:   wire.KindNodes,
		Header: p.header(),
		Nodes:  wire.NodesPayload{Peers: peers},
	})
	metrics.MsgNodesOut.Mark(1)
}

func (p *Peer) handleNodes(payload wire.NodesPayload) {
	fresh := make([]wire.PeerEncodedInfo, 0, len(payload.Peers))
	for _, info := range payload.Peers {
		addr := info.Addr()
		if !peerid.VerifyHeader(info.ID, addr.IP, info.Port) {
			metrics.MsgHeaderMismatch.Mark(1)
			continue
		}
		if p.table.HasNode(info.ID) {
			continue
		}
		p.admit(info.ID, addr)
		fresh = append(fresh, info)
	}
	if p.cfg.recursiveDisc {
		p.followUpDiscovery(fresh)
	}
}
