package kadcast

import (
	"crypto/rand"
	"net"
	"strconv"
	"time"

	"github.com/golang/glog"

	"github.com/legitnull/kadcast/kbucket"
	"github.com/legitnull/kadcast/metrics"
	"github.com/legitnull/kadcast/peerid"
	"github.com/legitnull/kadcast/wire"
)

// newMaintenanceTicker builds a ticker, falling back to a long interval
// rather than panicking on a misconfigured zero/negative duration (the
// teacher's refreshLoop guards the same way around its own ticker).
func newMaintenanceTicker(d time.Duration) *time.Ticker {
	if d <= 0 {
		d = time.Hour
	}
	return time.NewTicker(d)
}

func parseSeconds(s string, def int) time.Duration {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Second
}

// runMaintenance is the routing task's periodic housekeeping pass,
// following the teacher's refreshLoop/doRefresh shape: ping heads flagged
// for eviction, and probe any bucket that has gone idle.
//
// Grounded on ethereumproject-go-ethereum's p2p/discover/table.go
// doRefresh, adapted from a single target lookup to Kadcast's per-bucket
// idle scan (spec §4.2's bucket_ttl refresh).
func (p *Peer) runMaintenance() {
	for _, n := range p.table.PendingEvictions() {
		p.pingNode(n)
	}

	for _, idx := range p.table.MaintainIdle() {
		metrics.BucketRefresh.Mark(1)
		p.probeBucket(idx)
	}
}

func (p *Peer) pingNode(n kbucket.Node[*net.UDPAddr]) {
	msg := wire.Message{Kind: wire.KindPing, Header: p.header()}
	if err := p.sendMessage(n.Value, msg); err != nil {
		glog.V(2).Infof("kadcast: ping %s: %s", n.Value, err)
		return
	}
	metrics.MsgPingOut.Mark(1)
}

// probeBucket sends a FindNodes whose target falls squarely inside bucket
// idx's distance range, so the response actually refreshes that bucket
// rather than some other one (spec §4.2).
func (p *Peer) probeBucket(idx int) {
	target, err := randomTargetInBucket(p.selfID, idx)
	if err != nil {
		glog.V(1).Infof("kadcast: random target for bucket %d: %s", idx, err)
		return
	}
	for _, n := range p.table.Closest(target, 1) {
		msg := wire.Message{
			Kind:      wire.KindFindNodes,
			Header:    p.header(),
			FindNodes: wire.FindNodesPayload{Target: target},
		}
		if err := p.sendMessage(n.Value, msg); err != nil {
			glog.V(2).Infof("kadcast: refresh probe to %s: %s", n.Value, err)
			continue
		}
		metrics.MsgFindNodesOut.Mark(1)
	}
}

// randomTargetInBucket returns an ID whose XOR distance from self has its
// highest set bit exactly at idx — i.e. an ID that, if it existed, would
// route into bucket idx — with every lower bit randomized and every higher
// bit matching self (distance 0 there).
func randomTargetInBucket(self peerid.BinaryKey, idx int) (peerid.BinaryKey, error) {
	var dist peerid.BinaryKey
	if _, err := rand.Read(dist[:]); err != nil {
		return peerid.BinaryKey{}, err
	}

	byteIdx := peerid.KeyLenBytes - 1 - idx/8
	bit := uint(idx % 8)

	// Zero every bit above idx (including idx's own byte above `bit`), set
	// bit idx itself, leave everything below idx as random noise.
	for i := 0; i < byteIdx; i++ {
		dist[i] = 0
	}
	mask := byte(1<<(bit+1)) - 1
	dist[byteIdx] &= mask
	dist[byteIdx] |= 1 << bit

	return self.Xor(dist), nil
}

// followUpDiscovery implements recursive_discovery (see SPEC_FULL.md
// "Supplemented features"): every peer a Nodes reply introduced that was not
// already in the table is sent another FindNodes for our own ID, bounded by
// a per-peer-ID round counter so the recursion can't run forever.
func (p *Peer) followUpDiscovery(fresh []wire.PeerEncodedInfo) {
	const maxRounds = 4

	p.discoveryMu.Lock()
	defer p.discoveryMu.Unlock()

	for _, info := range fresh {
		rounds := p.discoveryRounds[info.ID]
		if rounds >= maxRounds {
			continue
		}
		p.discoveryRounds[info.ID] = rounds + 1

		msg := wire.Message{
			Kind:      wire.KindFindNodes,
			Header:    p.header(),
			FindNodes: wire.FindNodesPayload{Target: p.selfID},
		}
		if err := p.sendMessage(info.Addr(), msg); err != nil {
			glog.V(2).Infof("kadcast: recursive discovery to %s: %s", info.Addr(), err)
			continue
		}
		metrics.MsgFindNodesOut.Mark(1)
	}
}
