package kbucket

import (
	"sort"
	"sync"

	"github.com/legitnull/kadcast/peerid"
)

// Tree is the routing table: a self ID and up to KeyLen buckets, indexed by
// XOR-distance bucket index, created lazily as distinct distances show up.
//
// V is opaque to the table (spec §3/§9) — no global state, no knowledge of
// what a value represents (an address, a connection handle, anything).
type Tree[V any] struct {
	mu     sync.RWMutex
	selfID peerid.BinaryKey
	config Config

	// Validate, if set, rejects a candidate before it reaches a bucket —
	// e.g. checking the claimed ID against a recomputed hash of the value's
	// address. The table has no concrete addressing type to do this itself.
	Validate func(id peerid.BinaryKey, value V) bool

	buckets map[int]*Bucket[V]
}

// NewTree constructs an empty routing table rooted at selfID.
func NewTree[V any](selfID peerid.BinaryKey, config Config) *Tree[V] {
	return &Tree[V]{
		selfID:  selfID,
		config:  config,
		buckets: make(map[int]*Bucket[V]),
	}
}

// SelfID returns the table's own identity.
func (t *Tree[V]) SelfID() peerid.BinaryKey { return t.selfID }

func (t *Tree[V]) bucketIndex(id peerid.BinaryKey) int {
	return t.selfID.Xor(id).BucketIndex()
}

func (t *Tree[V]) bucketAt(idx int) *Bucket[V] {
	b, ok := t.buckets[idx]
	if !ok {
		b = NewBucket[V](t.config)
		t.buckets[idx] = b
	}
	return b
}

// Insert routes node into the bucket matching its XOR distance from self.
// A zero distance (self-insert) or a failed Validate callback is reported
// as ErrInvalidNode; everything else is delegated to Bucket.Insert.
func (t *Tree[V]) Insert(node Node[V]) (InsertOutcome[V], error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.bucketIndex(node.ID)
	if idx < 0 {
		return InsertOutcome[V]{}, ErrInvalidNode
	}
	if t.Validate != nil && !t.Validate(node.ID, node.Value) {
		return InsertOutcome[V]{}, ErrInvalidNode
	}
	return t.bucketAt(idx).Insert(node)
}

// HasNode reports whether id is currently a live entry in its bucket.
func (t *Tree[V]) HasNode(id peerid.BinaryKey) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	idx := t.bucketIndex(id)
	if idx < 0 {
		return false
	}
	b, ok := t.buckets[idx]
	if !ok {
		return false
	}
	return b.HasNode(id)
}

// Remove drops id from its bucket, if present.
func (t *Tree[V]) Remove(id peerid.BinaryKey) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.bucketIndex(id)
	if idx < 0 {
		return
	}
	b, ok := t.buckets[idx]
	if !ok {
		return
	}
	kept := b.nodes[:0:0]
	for _, n := range b.nodes {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	b.nodes = kept
}

// BucketAt returns the bucket at idx if it has been created, for read-only
// inspection (e.g. reporting, maintenance scans).
func (t *Tree[V]) BucketAt(idx int) (*Bucket[V], bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.buckets[idx]
	return b, ok
}

// BucketIndices returns the indices of every bucket that currently exists,
// ascending.
func (t *Tree[V]) BucketIndices() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]int, 0, len(t.buckets))
	for idx := range t.buckets {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// MaintainIdle runs RemoveIdleNodes across every bucket and returns the
// indices of buckets now idle (head unseen past bucket_ttl) — candidates
// for a FindNodes refresh probe.
func (t *Tree[V]) MaintainIdle() []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idle []int
	for idx, b := range t.buckets {
		b.RemoveIdleNodes()
		if b.Len() > 0 && b.IsIdle() {
			idle = append(idle, idx)
		}
	}
	sort.Ints(idle)
	return idle
}

// PendingEvictions returns, for every bucket, the head node currently
// flagged for a liveness check — candidates for an out-of-band Ping probe.
func (t *Tree[V]) PendingEvictions() []Node[V] {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Node[V]
	for _, b := range t.buckets {
		if n := b.pendingEvictionNode(); n != nil {
			out = append(out, *n)
		}
	}
	return out
}

type closestEntry[V any] struct {
	node Node[V]
	dist peerid.BinaryKey
}

// Closest returns up to count entries ordered by increasing XOR distance
// from target, scanning every known bucket. Distinct IDs never share an XOR
// distance from the same target, so the order has no ties.
func (t *Tree[V]) Closest(target peerid.BinaryKey, count int) []Node[V] {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if count <= 0 {
		return nil
	}

	var all []closestEntry[V]
	for _, b := range t.buckets {
		for _, n := range b.nodes {
			all = append(all, closestEntry[V]{node: n, dist: target.Xor(n.ID)})
		}
	}

	sort.Slice(all, func(i, j int) bool {
		return lessBinaryKey(all[i].dist, all[j].dist)
	})

	if count > len(all) {
		count = len(all)
	}
	out := make([]Node[V], count)
	for i := 0; i < count; i++ {
		out[i] = all[i].node
	}
	return out
}

// lessBinaryKey compares two keys as big-endian unsigned integers.
func lessBinaryKey(a, b peerid.BinaryKey) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Len returns the total number of live entries across all buckets.
func (t *Tree[V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, b := range t.buckets {
		n += b.Len()
	}
	return n
}
