package blockserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickReplicationTargetsBoundsAndDistinct(t *testing.T) {
	peers := []string{"a", "b", "c", "d"}
	targets := pickReplicationTargets(peers, 2)
	require.Len(t, targets, 2)
	assert.NotEqual(t, targets[0], targets[1])
	for _, target := range targets {
		assert.Contains(t, peers, target)
	}
}

func TestPickReplicationTargetsCapsAtAvailablePeers(t *testing.T) {
	peers := []string{"a", "b"}
	targets := pickReplicationTargets(peers, 5)
	assert.Len(t, targets, 2)
}

func TestPickReplicationTargetsZero(t *testing.T) {
	assert.Nil(t, pickReplicationTargets([]string{"a"}, 0))
}

func TestReplicateTaskNoPeersLogsAndReturns(t *testing.T) {
	b := newTestServer(t, &fakeCoordinator{})
	// No peers registered; replicateTask must not panic or block.
	b.replicateTask(replicationTask{StorageName: "s", BlockID: 0, Data: []byte("x")})
}

func TestEnqueueReplicationDoesNotBlockWhenQueueFull(t *testing.T) {
	b := newTestServer(t, &fakeCoordinator{})
	b.cfg.ReplicationQueueSize = 1
	b.replicationQueue = make(chan replicationTask, 1)

	b.enqueueReplication(replicationTask{StorageName: "s", BlockID: 0})
	// Queue is now full; this must not block the caller.
	b.enqueueReplication(replicationTask{StorageName: "s", BlockID: 1})
}
