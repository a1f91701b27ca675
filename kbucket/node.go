package kbucket

import (
	"time"

	"github.com/legitnull/kadcast/peerid"
)

// EvictionStatus tracks whether a bucket's head entry has been flagged as a
// candidate for eviction pending a liveness check.
type EvictionStatus struct {
	requested bool
	at        time.Time
}

// None is the zero value: no eviction in progress.
var None = EvictionStatus{}

// Requested returns a flagged status, timestamped at.
func Requested(at time.Time) EvictionStatus {
	return EvictionStatus{requested: true, at: at}
}

// IsRequested reports whether the status is Requested.
func (s EvictionStatus) IsRequested() bool { return s.requested }

// RequestedAt returns the flag time; valid only if IsRequested().
func (s EvictionStatus) RequestedAt() time.Time { return s.at }

// Node is a single routing-table entry: an identity, an opaque value (the
// socket address, from the table's point of view), and liveness metadata.
type Node[V any] struct {
	ID        peerid.BinaryKey
	Value     V
	SeenAt    time.Time
	Eviction  EvictionStatus
}

// NewNode builds a fresh node record, seen now, with no eviction flag.
func NewNode[V any](id peerid.BinaryKey, value V) Node[V] {
	return Node[V]{ID: id, Value: value, SeenAt: time.Now()}
}

// IsAlive reports whether the node was seen within ttl of now.
func (n Node[V]) IsAlive(ttl time.Duration) bool {
	return time.Since(n.SeenAt) < ttl
}

// refresh returns a copy of n with SeenAt reset to now and any eviction flag
// cleared (a message from the node proves liveness).
func (n Node[V]) refresh() Node[V] {
	n.SeenAt = time.Now()
	n.Eviction = None
	return n
}

// flagForCheck returns a copy of n flagged Requested at now, unless it
// already carries a flag (idempotent).
func (n Node[V]) flagForCheck() Node[V] {
	if n.Eviction.IsRequested() {
		return n
	}
	n.Eviction = Requested(time.Now())
	return n
}
