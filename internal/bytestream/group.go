package bytestream

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carlocorradini/sea-streamer/internal/logger"
	"github.com/carlocorradini/sea-streamer/internal/metrics"
	"github.com/carlocorradini/sea-streamer/internal/runtime"
	"github.com/carlocorradini/sea-streamer/stream"
)

// Assignment is one member's view of a rebalance: with Count live members,
// the member polls exactly the shards whose id mod Count equals Index.
// Members recompute locally from the same membership snapshot; there is no
// cross-member lock, so a member may act on a view that is stale by at most
// one rebalance.
type Assignment struct {
	Version uint64
	Index   int
	Count   int
}

// Owns reports whether the assignment covers the shard.
func (a Assignment) Owns(shard stream.ShardID) bool {
	if a.Count <= 0 {
		return false
	}
	return int(uint32(shard))%a.Count == a.Index
}

// Membership is one consumer's handle on its group. Updates carries the
// latest assignment snapshot; stale snapshots are overwritten, never queued.
type Membership struct {
	ID      string
	Group   string
	Updates chan Assignment

	coord *Coordinator
}

// Leave removes the member and triggers a rebalance.
func (m *Membership) Leave() {
	m.coord.leave(m.Group, m.ID)
}

// Heartbeat marks the member live. Called on every poll.
func (m *Membership) Heartbeat() {
	m.coord.heartbeat(m.Group, m.ID, m.Updates)
}

// member is the coordinator's record of one group member.
type member struct {
	id       string
	updates  chan Assignment
	lastSeen time.Time
}

// group holds the members of one named consumer group.
type group struct {
	name    string
	members map[string]*member
	version uint64
}

// Coordinator assigns shards to the members of each named group by
// round-robin over the sorted set of live member IDs, recomputing on every
// join, leave, or liveness expiry.
type Coordinator struct {
	mu              sync.Mutex
	groups          map[string]*group
	livenessTimeout time.Duration
	log             zerolog.Logger
	metrics         *metrics.StreamerMetrics
}

// NewCoordinator creates a coordinator. With a positive livenessTimeout a
// background sweep expires members that stopped polling; ctx stops the
// sweep.
func NewCoordinator(ctx context.Context, livenessTimeout time.Duration, m *metrics.StreamerMetrics) *Coordinator {
	c := &Coordinator{
		groups:          make(map[string]*group),
		livenessTimeout: livenessTimeout,
		log:             logger.WithComponent("coordinator"),
		metrics:         m,
	}
	if livenessTimeout > 0 {
		runtime.Spawn("group-liveness-sweep", func() {
			for runtime.Sleep(ctx, livenessTimeout/2) {
				c.expire()
			}
		})
	}
	return c
}

// Join registers a new member and rebalances the group.
func (c *Coordinator) Join(groupName string) *Membership {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.groups[groupName]
	if !ok {
		g = &group{name: groupName, members: make(map[string]*member)}
		c.groups[groupName] = g
	}

	id := uuid.NewString()
	m := &member{
		id:       id,
		updates:  make(chan Assignment, 1),
		lastSeen: time.Now(),
	}
	g.members[id] = m
	c.rebalance(g)

	c.log.Debug().
		Str("group", groupName).
		Str("member", id).
		Int("members", len(g.members)).
		Msg("Member joined group")

	return &Membership{ID: id, Group: groupName, Updates: m.updates, coord: c}
}

func (c *Coordinator) leave(groupName, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.groups[groupName]
	if !ok {
		return
	}
	if _, ok := g.members[id]; !ok {
		return
	}
	delete(g.members, id)
	c.rebalance(g)

	c.log.Debug().
		Str("group", groupName).
		Str("member", id).
		Int("members", len(g.members)).
		Msg("Member left group")
}

func (c *Coordinator) heartbeat(groupName, id string, updates chan Assignment) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.groups[groupName]
	if !ok {
		return
	}
	m, ok := g.members[id]
	if !ok {
		// Expired by the liveness sweep but still polling: rejoin under the
		// same ID, keeping the handle's own channel so the rejoined member
		// still sees every later snapshot.
		m = &member{id: id, updates: updates}
		g.members[id] = m
		defer c.rebalance(g)
	}
	m.lastSeen = time.Now()
}

// expire removes members that have not polled within the liveness timeout.
func (c *Coordinator) expire() {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(-c.livenessTimeout)
	for _, g := range c.groups {
		removed := false
		for id, m := range g.members {
			if m.lastSeen.Before(deadline) {
				delete(g.members, id)
				removed = true
				c.log.Warn().
					Str("group", g.name).
					Str("member", id).
					Msg("Member expired by liveness timeout")
			}
		}
		if removed {
			c.rebalance(g)
		}
	}
}

// rebalance recomputes each member's rotation index over the sorted live IDs
// and broadcasts the new snapshot. Callers hold c.mu. Delivery is
// latest-wins: a member that has not consumed the previous snapshot sees
// only the current one.
func (c *Coordinator) rebalance(g *group) {
	g.version++
	c.metrics.RecordRebalance(g.name)

	ids := make([]string, 0, len(g.members))
	for id := range g.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for index, id := range ids {
		m := g.members[id]
		a := Assignment{Version: g.version, Index: index, Count: len(ids)}
		select {
		case <-m.updates:
		default:
		}
		m.updates <- a
	}
}
