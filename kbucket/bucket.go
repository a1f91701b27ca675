package kbucket

import (
	"math/rand"
	"time"

	"github.com/legitnull/kadcast/peerid"
)

// K is the maximum number of live entries a bucket holds (Kademlia's "k").
const K = 20

// Config bounds the liveness and refresh timers a bucket enforces.
type Config struct {
	NodeTTL        time.Duration // how long since SeenAt a node is still "alive"
	NodeEvictAfter time.Duration // how long a flagged head may go unconfirmed before eviction
	BucketTTL      time.Duration // how long since the head's SeenAt a bucket is "idle"
}

// DefaultConfig matches the reference implementation's defaults.
func DefaultConfig() Config {
	return Config{
		NodeTTL:        30 * time.Minute,
		NodeEvictAfter: 5 * time.Second,
		BucketTTL:      1 * time.Hour,
	}
}

// InsertKind classifies a successful insert.
type InsertKind int

const (
	Inserted InsertKind = iota
	Updated
	Pending
)

func (k InsertKind) String() string {
	switch k {
	case Inserted:
		return "Inserted"
	case Updated:
		return "Updated"
	case Pending:
		return "Pending"
	default:
		return "Unknown"
	}
}

// InsertOutcome is the successful result of a Bucket.Insert call.
type InsertOutcome[V any] struct {
	Kind            InsertKind
	Node            Node[V]
	PendingEviction *Node[V] // the flagged head, if any, regardless of Kind
	Evicted         bool     // true if this call dropped a dead head and promoted pending
}

// Bucket is an ordered sequence of at most K node records (LRU: index 0 is
// least recently seen, last is most recently seen), plus at most one
// pending replacement slot.
//
// Invariants (spec §3): len(nodes) <= K; IDs unique within the bucket; a
// pending slot implies the bucket was full when it was assigned; only
// nodes[0] may carry eviction_status = Requested.
type Bucket[V any] struct {
	nodes   []Node[V]
	pending *Node[V]
	config  Config
}

// NewBucket constructs an empty bucket.
func NewBucket[V any](config Config) *Bucket[V] {
	return &Bucket[V]{config: config}
}

// Len returns the number of live entries.
func (b *Bucket[V]) Len() int { return len(b.nodes) }

// Entries returns a copy of the bucket's current entries, oldest first.
func (b *Bucket[V]) Entries() []Node[V] {
	out := make([]Node[V], len(b.nodes))
	copy(out, b.nodes)
	return out
}

// Pending returns the pending replacement, if any.
func (b *Bucket[V]) Pending() (Node[V], bool) {
	if b.pending == nil {
		var zero Node[V]
		return zero, false
	}
	return *b.pending, true
}

// HasNode reports whether id is currently a live entry.
func (b *Bucket[V]) HasNode(id peerid.BinaryKey) bool {
	for i := range b.nodes {
		if b.nodes[i].ID == id {
			return true
		}
	}
	return false
}

// refreshNode rotates the entry matching id to the tail and resets its
// liveness clock, preserving relative order of everything else.
func (b *Bucket[V]) refreshNode(id peerid.BinaryKey) (int, bool) {
	idx := -1
	for i := range b.nodes {
		if b.nodes[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return -1, false
	}
	n := b.nodes[idx].refresh()
	b.nodes = append(b.nodes[:idx], b.nodes[idx+1:]...)
	b.nodes = append(b.nodes, n)
	return len(b.nodes) - 1, true
}

// pendingEvictionNode returns the head if it currently carries a flag.
func (b *Bucket[V]) pendingEvictionNode() *Node[V] {
	if len(b.nodes) == 0 {
		return nil
	}
	if !b.nodes[0].Eviction.IsRequested() {
		return nil
	}
	n := b.nodes[0]
	return &n
}

// tryPerformEviction is called on every insert. If the bucket is full and
// the head isn't flagged, it flags the head when the head looks dead. If
// already flagged and node_evict_after has elapsed, it drops the head and
// promotes pending (if still alive) onto the tail. Reports whether it
// actually evicted the head this call.
func (b *Bucket[V]) tryPerformEviction() bool {
	if len(b.nodes) < K {
		return false
	}
	head := b.nodes[0]
	if head.Eviction.IsRequested() {
		if time.Since(head.Eviction.RequestedAt()) >= b.config.NodeEvictAfter {
			b.nodes = b.nodes[1:]
			b.insertPending()
			return true
		}
		return false
	}
	if !head.IsAlive(b.config.NodeTTL) {
		b.nodes[0] = head.flagForCheck()
	}
	return false
}

// insertPending moves the pending slot onto the tail if there's room and
// the pending node is still alive. The LRU invariant is knowingly relaxed
// here: the promoted node may not be the most recently seen, mitigated by
// the liveness check (spec §4.2).
func (b *Bucket[V]) insertPending() {
	if len(b.nodes) >= K || b.pending == nil {
		return
	}
	p := *b.pending
	b.pending = nil
	if p.IsAlive(b.config.NodeTTL) {
		b.nodes = append(b.nodes, p)
	}
}

// Insert applies the bucket's insertion state machine. The caller is
// responsible for ID validity and self-insert checks (those require
// knowledge the bucket doesn't have). Insert returns ErrBucketFull when the
// bucket is full and either its head is still alive or the pending slot is
// already taken.
func (b *Bucket[V]) Insert(node Node[V]) (InsertOutcome[V], error) {
	if idx, ok := b.refreshNode(node.ID); ok {
		evicted := b.tryPerformEviction()
		return InsertOutcome[V]{
			Kind:            Updated,
			Node:            b.nodes[idx],
			PendingEviction: b.pendingEvictionNode(),
			Evicted:         evicted,
		}, nil
	}

	evicted := b.tryPerformEviction()

	if len(b.nodes) < K {
		b.nodes = append(b.nodes, node)
		return InsertOutcome[V]{Kind: Inserted, Node: node, PendingEviction: b.pendingEvictionNode(), Evicted: evicted}, nil
	}

	// Bucket is full. If the head is alive, the newcomer is rejected; only a
	// dead head lets it take the pending slot.
	if b.nodes[0].IsAlive(b.config.NodeTTL) {
		return InsertOutcome[V]{}, ErrBucketFull
	}
	if b.pending != nil {
		// A pending replacement is already queued: the reference silently
		// keeps the first one (spec §9 open question, FIFO).
		return InsertOutcome[V]{}, ErrBucketFull
	}
	b.pending = &node
	return InsertOutcome[V]{
		Kind:            Pending,
		Node:            node,
		PendingEviction: b.pendingEvictionNode(),
		Evicted:         evicted,
	}, nil
}

// RemoveIdleNodes retains only entries alive under node_ttl, then promotes
// pending onto the tail if room opened up.
func (b *Bucket[V]) RemoveIdleNodes() {
	alive := b.nodes[:0:0]
	for _, n := range b.nodes {
		if n.IsAlive(b.config.NodeTTL) {
			alive = append(alive, n)
		}
	}
	b.nodes = alive
	b.insertPending()
}

// IsIdle reports whether the bucket's head hasn't been seen within
// bucket_ttl — callers should schedule a FindNodes probe into it.
func (b *Bucket[V]) IsIdle() bool {
	if len(b.nodes) == 0 {
		return false
	}
	return time.Since(b.nodes[0].SeenAt) > b.config.BucketTTL
}

// Pick returns up to n records chosen uniformly at random without
// replacement from the bucket's current contents.
func (b *Bucket[V]) Pick(n int) []Node[V] {
	if n <= 0 || len(b.nodes) == 0 {
		return nil
	}
	idxs := rand.Perm(len(b.nodes))
	if n > len(idxs) {
		n = len(idxs)
	}
	out := make([]Node[V], n)
	for i := 0; i < n; i++ {
		out[i] = b.nodes[idxs[i]]
	}
	return out
}

// AliveNodes returns entries currently alive under node_ttl.
func (b *Bucket[V]) AliveNodes() []Node[V] {
	out := make([]Node[V], 0, len(b.nodes))
	for _, n := range b.nodes {
		if n.IsAlive(b.config.NodeTTL) {
			out = append(out, n)
		}
	}
	return out
}
