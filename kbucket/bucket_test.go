package kbucket

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legitnull/kadcast/peerid"
)

func nodeAt(port uint16) Node[string] {
	id := peerid.ComputeID(net.ParseIP("127.0.0.1"), port)
	return NewNode(id, "peer")
}

func fastConfig() Config {
	return Config{
		NodeTTL:        50 * time.Millisecond,
		NodeEvictAfter: 20 * time.Millisecond,
		BucketTTL:      time.Hour,
	}
}

func TestBucketInsertFillsToK(t *testing.T) {
	b := NewBucket[string](DefaultConfig())
	for i := 0; i < K; i++ {
		out, err := b.Insert(nodeAt(uint16(1000 + i)))
		require.NoError(t, err)
		assert.Equal(t, Inserted, out.Kind)
	}
	assert.Equal(t, K, b.Len())
}

func TestBucketInsertDuplicateUpdates(t *testing.T) {
	b := NewBucket[string](DefaultConfig())
	n := nodeAt(2000)
	_, err := b.Insert(n)
	require.NoError(t, err)

	out, err := b.Insert(n)
	require.NoError(t, err)
	assert.Equal(t, Updated, out.Kind)
	assert.Equal(t, 1, b.Len())
}

func TestBucketFullRejectsWhenHeadAlive(t *testing.T) {
	b := NewBucket[string](DefaultConfig())
	for i := 0; i < K; i++ {
		_, err := b.Insert(nodeAt(uint16(3000 + i)))
		require.NoError(t, err)
	}

	_, err := b.Insert(nodeAt(4000))
	assert.ErrorIs(t, err, ErrBucketFull)
}

// TestLRUEvictionLifecycle mirrors the reference implementation's
// test_lru_base timing scenario: fill a bucket, let the head go stale so a
// newcomer is queued Pending, then let node_evict_after elapse so the head
// is dropped and the pending entry is promoted.
func TestLRUEvictionLifecycle(t *testing.T) {
	cfg := fastConfig()
	b := NewBucket[string](cfg)

	for i := 0; i < K; i++ {
		_, err := b.Insert(nodeAt(uint16(5000 + i)))
		require.NoError(t, err)
	}
	head := b.nodes[0]

	time.Sleep(cfg.NodeTTL + 5*time.Millisecond)

	candidate := nodeAt(6000)
	out, err := b.Insert(candidate)
	require.NoError(t, err)
	assert.Equal(t, Pending, out.Kind)
	assert.Equal(t, K, b.Len(), "bucket size unchanged while eviction pending")

	pending, ok := b.Pending()
	require.True(t, ok)
	assert.Equal(t, candidate.ID, pending.ID)

	// A second candidate while one is already pending is rejected.
	_, err = b.Insert(nodeAt(6001))
	assert.ErrorIs(t, err, ErrBucketFull)

	time.Sleep(cfg.NodeEvictAfter + 5*time.Millisecond)

	out, err = b.Insert(nodeAt(7000))
	require.NoError(t, err)
	assert.Equal(t, K, b.Len())
	assert.False(t, b.HasNode(head.ID), "stale head evicted")
	assert.True(t, b.HasNode(candidate.ID), "pending entry promoted")
	_ = out
}

func TestBucketRefreshMovesToTail(t *testing.T) {
	b := NewBucket[string](DefaultConfig())
	first := nodeAt(8000)
	_, err := b.Insert(first)
	require.NoError(t, err)
	_, err = b.Insert(nodeAt(8001))
	require.NoError(t, err)

	_, err = b.Insert(first)
	require.NoError(t, err)

	entries := b.Entries()
	assert.Equal(t, first.ID, entries[len(entries)-1].ID)
}

func TestBucketIsIdle(t *testing.T) {
	cfg := Config{NodeTTL: time.Hour, NodeEvictAfter: time.Hour, BucketTTL: 10 * time.Millisecond}
	b := NewBucket[string](cfg)
	_, err := b.Insert(nodeAt(9000))
	require.NoError(t, err)
	assert.False(t, b.IsIdle())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, b.IsIdle())
}

func TestBucketPickWithoutReplacement(t *testing.T) {
	b := NewBucket[string](DefaultConfig())
	for i := 0; i < 10; i++ {
		_, err := b.Insert(nodeAt(uint16(10000 + i)))
		require.NoError(t, err)
	}

	picked := b.Pick(5)
	assert.Len(t, picked, 5)
	seen := make(map[peerid.BinaryKey]bool)
	for _, n := range picked {
		assert.False(t, seen[n.ID], "pick must not repeat an entry")
		seen[n.ID] = true
	}
}

func TestBucketRemoveIdleNodesPromotesPending(t *testing.T) {
	cfg := fastConfig()
	b := NewBucket[string](cfg)
	for i := 0; i < K; i++ {
		_, err := b.Insert(nodeAt(uint16(11000 + i)))
		require.NoError(t, err)
	}

	time.Sleep(cfg.NodeTTL + 5*time.Millisecond)

	candidate := nodeAt(12000)
	out, err := b.Insert(candidate)
	require.NoError(t, err)
	assert.Equal(t, Pending, out.Kind)

	// All K entries are now stale; RemoveIdleNodes should clear them and
	// promote the pending candidate.
	b.RemoveIdleNodes()
	assert.Equal(t, 1, b.Len())
	assert.True(t, b.HasNode(candidate.ID))
}
