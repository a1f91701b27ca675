package kadcast

import (
	"net"
	"sync"

	"github.com/legitnull/kadcast/p2p/distip"
	"github.com/legitnull/kadcast/peerid"
)

// ipLimiter enforces spec §9's IP-diversity knobs (bucket_ip_limit,
// table_ip_limit) in front of the routing table. kbucket.Tree treats its
// value type as fully opaque, so this concern lives here, where the
// concrete *net.UDPAddr type is known, per the DESIGN.md decision.
//
// Subnet width matches the teacher's own bootnode usage of DistinctNetSet
// (table.go's bucket/ip bookkeeping): /24 for IPv4, /64 for IPv6.
type ipLimiter struct {
	mu sync.Mutex

	tableLimit  uint
	bucketLimit uint

	table   distip.DistinctNetSet
	buckets map[int]*distip.DistinctNetSet
}

func newIPLimiter(tableLimit, bucketLimit uint) *ipLimiter {
	return &ipLimiter{
		tableLimit:  tableLimit,
		bucketLimit: bucketLimit,
		table:       distip.DistinctNetSet{Subnet: subnetBits(nil), Limit: tableLimit},
		buckets:     make(map[int]*distip.DistinctNetSet),
	}
}

func subnetBits(ip net.IP) uint {
	if ip == nil || ip.To4() != nil {
		return 24
	}
	return 64
}

// admit reports whether addr may be inserted into bucket idx, and records
// it if so. It must be paired with a later release if the insert attempt
// ultimately fails, so counts never leak.
func (l *ipLimiter) admit(idx int, addr *net.UDPAddr) bool {
	if l.tableLimit == 0 && l.bucketLimit == 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.table.Subnet = subnetBits(addr.IP)
	if l.tableLimit > 0 && !l.table.Contains(addr.IP) {
		if !l.table.Add(addr.IP) {
			return false
		}
	}

	b, ok := l.buckets[idx]
	if !ok {
		b = &distip.DistinctNetSet{Subnet: subnetBits(addr.IP), Limit: l.bucketLimit}
		l.buckets[idx] = b
	}
	if l.bucketLimit > 0 && !b.Contains(addr.IP) {
		if !b.Add(addr.IP) {
			l.table.Remove(addr.IP)
			return false
		}
	}
	return true
}

// release drops addr's bookkeeping when a bucket insert ultimately fails
// after admit already reserved a slot. Nodes later evicted or aged out of a
// bucket are not released.
func (l *ipLimiter) release(idx int, addr *net.UDPAddr) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.table.Remove(addr.IP)
	if b, ok := l.buckets[idx]; ok {
		b.Remove(addr.IP)
	}
}

// bucketIndexFor exposes the same XOR/MSB computation Tree uses
// internally, needed here because the limiter must gate an insert before
// it reaches the table.
func bucketIndexFor(self, id peerid.BinaryKey) int {
	return self.Xor(id).BucketIndex()
}
