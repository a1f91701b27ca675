package kbucket

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legitnull/kadcast/peerid"
)

func idFor(t *testing.T, port uint16) peerid.BinaryKey {
	t.Helper()
	return peerid.ComputeID(net.ParseIP("127.0.0.1"), port)
}

func TestTreeRejectsSelfInsert(t *testing.T) {
	self := idFor(t, 1)
	tree := NewTree[string](self, DefaultConfig())

	_, err := tree.Insert(NewNode(self, "self"))
	assert.ErrorIs(t, err, ErrInvalidNode)
}

func TestTreeRejectsFailedValidate(t *testing.T) {
	self := idFor(t, 1)
	tree := NewTree[string](self, DefaultConfig())
	tree.Validate = func(id peerid.BinaryKey, value string) bool { return false }

	_, err := tree.Insert(NewNode(idFor(t, 2), "peer"))
	assert.ErrorIs(t, err, ErrInvalidNode)
}

func TestTreeInsertRoutesByDistance(t *testing.T) {
	self := idFor(t, 1)
	tree := NewTree[string](self, DefaultConfig())

	peer := idFor(t, 2)
	out, err := tree.Insert(NewNode(peer, "peer"))
	require.NoError(t, err)
	assert.Equal(t, Inserted, out.Kind)
	assert.Equal(t, 1, tree.Len())

	idx := self.Xor(peer).BucketIndex()
	b, ok := tree.BucketAt(idx)
	require.True(t, ok)
	assert.True(t, b.HasNode(peer))
}

func TestTreeClosestOrdersByDistance(t *testing.T) {
	self := idFor(t, 1)
	tree := NewTree[string](self, DefaultConfig())

	target := idFor(t, 100)
	var ids []peerid.BinaryKey
	for p := uint16(2); p < 30; p++ {
		id := idFor(t, p)
		_, err := tree.Insert(NewNode(id, "peer"))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	closest := tree.Closest(target, 5)
	require.Len(t, closest, 5)

	all := tree.Closest(target, len(ids))
	require.Len(t, all, len(ids))
	for i := 1; i < len(closest); i++ {
		d1 := target.Xor(closest[i-1].ID)
		d2 := target.Xor(closest[i].ID)
		assert.False(t, lessBinaryKey(d2, d1), "closest() must be sorted ascending by distance")
	}
}

func TestTreeRemove(t *testing.T) {
	self := idFor(t, 1)
	tree := NewTree[string](self, DefaultConfig())
	peer := idFor(t, 2)

	_, err := tree.Insert(NewNode(peer, "peer"))
	require.NoError(t, err)
	require.Equal(t, 1, tree.Len())

	tree.Remove(peer)
	assert.Equal(t, 0, tree.Len())
}

func TestTreeMaintainIdleReportsStaleBuckets(t *testing.T) {
	self := idFor(t, 1)
	cfg := Config{NodeTTL: 0, NodeEvictAfter: 0, BucketTTL: 0}
	tree := NewTree[string](self, cfg)

	peer := idFor(t, 2)
	_, err := tree.Insert(NewNode(peer, "peer"))
	require.NoError(t, err)

	idle := tree.MaintainIdle()
	// NodeTTL=0 means RemoveIdleNodes drops the entry immediately, so the
	// bucket ends up empty rather than reported idle.
	assert.Empty(t, idle)
	assert.Equal(t, 0, tree.Len())
}
