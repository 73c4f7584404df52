package bytestream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlocorradini/sea-streamer/stream"
)

func recvAssignment(t *testing.T, m *Membership) Assignment {
	t.Helper()
	select {
	case a := <-m.Updates:
		return a
	case <-time.After(time.Second):
		t.Fatal("no assignment delivered")
		return Assignment{}
	}
}

func TestSingleMemberOwnsEverything(t *testing.T) {
	coord := NewCoordinator(context.Background(), 0, nil)
	m := coord.Join("workers")

	a := recvAssignment(t, m)
	assert.Equal(t, 1, a.Count)
	for shard := stream.ShardID(0); shard < 8; shard++ {
		assert.True(t, a.Owns(shard))
	}
}

func TestTwoMembersSplitShardsExclusively(t *testing.T) {
	coord := NewCoordinator(context.Background(), 0, nil)
	m1 := coord.Join("workers")
	recvAssignment(t, m1)

	m2 := coord.Join("workers")
	a1 := recvAssignment(t, m1)
	a2 := recvAssignment(t, m2)

	require.Equal(t, 2, a1.Count)
	require.Equal(t, 2, a2.Count)
	require.NotEqual(t, a1.Index, a2.Index)

	owned1, owned2 := 0, 0
	for shard := stream.ShardID(0); shard < 4; shard++ {
		o1, o2 := a1.Owns(shard), a2.Owns(shard)
		assert.NotEqual(t, o1, o2, "shard %d must have exactly one owner", shard)
		if o1 {
			owned1++
		}
		if o2 {
			owned2++
		}
	}
	assert.Equal(t, 2, owned1)
	assert.Equal(t, 2, owned2)
}

func TestLeaveHandsShardsBack(t *testing.T) {
	coord := NewCoordinator(context.Background(), 0, nil)
	m1 := coord.Join("workers")
	recvAssignment(t, m1)
	m2 := coord.Join("workers")
	recvAssignment(t, m1)
	recvAssignment(t, m2)

	m2.Leave()
	a := recvAssignment(t, m1)
	assert.Equal(t, 1, a.Count)
	for shard := stream.ShardID(0); shard < 4; shard++ {
		assert.True(t, a.Owns(shard))
	}
}

func TestLatestAssignmentWins(t *testing.T) {
	coord := NewCoordinator(context.Background(), 0, nil)
	m1 := coord.Join("workers")

	// Never drain m1 while two more members come and go; m1 must see only
	// the newest snapshot.
	m2 := coord.Join("workers")
	m3 := coord.Join("workers")
	m3.Leave()
	m2.Leave()

	a := recvAssignment(t, m1)
	assert.Equal(t, 1, a.Count)
	select {
	case extra := <-m1.Updates:
		t.Fatalf("stale assignment queued: %+v", extra)
	default:
	}
}

func TestExpiredMemberRejoinsOnHeartbeat(t *testing.T) {
	coord := NewCoordinator(context.Background(), 0, nil)
	m1 := coord.Join("workers")
	recvAssignment(t, m1)
	m2 := coord.Join("workers")
	recvAssignment(t, m1)
	recvAssignment(t, m2)

	// Backdate m2 and run the liveness sweep by hand.
	coord.mu.Lock()
	coord.livenessTimeout = time.Millisecond
	coord.groups["workers"].members[m2.ID].lastSeen = time.Now().Add(-time.Minute)
	coord.mu.Unlock()
	coord.expire()

	a1 := recvAssignment(t, m1)
	assert.Equal(t, 1, a1.Count)

	// The expired member polls again: it self-heals back into the group.
	m2.Heartbeat()
	a1 = recvAssignment(t, m1)
	a2 := recvAssignment(t, m2)
	assert.Equal(t, 2, a1.Count)
	assert.Equal(t, 2, a2.Count)
	assert.NotEqual(t, a1.Index, a2.Index)

	// Rebalances after the rejoin must still reach the rejoined handle.
	m1.Leave()
	a2 = recvAssignment(t, m2)
	assert.Equal(t, 1, a2.Count)
}

func TestAssignmentVersionsIncrease(t *testing.T) {
	coord := NewCoordinator(context.Background(), 0, nil)
	m1 := coord.Join("workers")
	v1 := recvAssignment(t, m1).Version

	m2 := coord.Join("workers")
	v2 := recvAssignment(t, m1).Version
	recvAssignment(t, m2)
	assert.Greater(t, v2, v1)
}
