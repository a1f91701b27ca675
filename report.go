package kadcast

import (
	"bytes"
	"fmt"
	"net"

	"github.com/legitnull/kadcast/peerid"
)

// RoutingSnapshot is a point-in-time view of the routing table, meant for
// the reference CLI's status output and for debugging (spec.md has no wire
// format for this — it's purely a local introspection surface). Marshaling
// is hand-written rather than generated (the teacher generates theirs with
// easyjson, but running the generator isn't available here).
type RoutingSnapshot struct {
	SelfID  peerid.BinaryKey   `json:"self_id"`
	Buckets []BucketSnapshot   `json:"buckets"`
}

// BucketSnapshot describes one occupied bucket.
type BucketSnapshot struct {
	Index   int            `json:"index"`
	Entries []EntrySnapshot `json:"entries"`
}

// EntrySnapshot describes one routing table entry.
type EntrySnapshot struct {
	ID   peerid.BinaryKey `json:"id"`
	Addr *net.UDPAddr     `json:"addr"`
}

// Report takes a snapshot of the current routing table, ordered by bucket
// index ascending.
func (p *Peer) Report() RoutingSnapshot {
	snap := RoutingSnapshot{SelfID: p.selfID}
	for _, idx := range p.table.BucketIndices() {
		b, ok := p.table.BucketAt(idx)
		if !ok {
			continue
		}
		entries := b.Entries()
		bs := BucketSnapshot{Index: idx, Entries: make([]EntrySnapshot, 0, len(entries))}
		for _, n := range entries {
			bs.Entries = append(bs.Entries, EntrySnapshot{ID: n.ID, Addr: n.Value})
		}
		snap.Buckets = append(snap.Buckets, bs)
	}
	return snap
}

// MarshalJSON hand-writes the snapshot's JSON form, following the
// teacher's easyjson-generated MarshalJSON methods byte-for-byte in shape
// (a single buffer, manual field-by-field writes) without depending on the
// generator, which cannot be run in this environment.
func (s RoutingSnapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"self_id":"`)
	buf.WriteString(hexString(s.SelfID[:]))
	buf.WriteString(`","buckets":[`)
	for i, b := range s.Buckets {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, `{"index":%d,"entries":[`, b.Index)
		for j, e := range b.Entries {
			if j > 0 {
				buf.WriteByte(',')
			}
			addr := "null"
			if e.Addr != nil {
				addr = `"` + e.Addr.String() + `"`
			}
			fmt.Fprintf(&buf, `{"id":"%s","addr":%s}`, hexString(e.ID[:]), addr)
		}
		buf.WriteString("]}")
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}

const hexDigits = "0123456789abcdef"

func hexString(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0x0f]
	}
	return string(out)
}
