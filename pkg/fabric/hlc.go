package fabric

import (
	"encoding/binary"
	"sync"
	"time"
)

// TemporalAnchor is a Hybrid Logical Clock timestamp: (physical_ms,
// logical, node_id). Total order is lexicographic on those three
// components (§3 TemporalAnchor).
type TemporalAnchor struct {
	Physical int64  `json:"physical_ms"`
	Logical  uint32 `json:"logical"`
	NodeId   uint64 `json:"node_id"`
}

// Bytes encodes the anchor as 20 big-endian bytes, used as the timestamp
// component of a fabric event's integrity hash.
func (a TemporalAnchor) Bytes() []byte {
	buf := make([]byte, 20)
	binary.BigEndian.PutUint64(buf[0:8], uint64(a.Physical))
	binary.BigEndian.PutUint32(buf[8:12], a.Logical)
	binary.BigEndian.PutUint64(buf[12:20], a.NodeId)
	return buf
}

// Less reports whether a sorts strictly before b under the lexicographic
// order on (physical, logical, node_id).
func (a TemporalAnchor) Less(b TemporalAnchor) bool {
	if a.Physical != b.Physical {
		return a.Physical < b.Physical
	}
	if a.Logical != b.Logical {
		return a.Logical < b.Logical
	}
	return a.NodeId < b.NodeId
}

// Clock is a Hybrid Logical Clock. Every operation is guarded by a
// single mutex; the zero value is not usable, construct with NewClock.
type Clock struct {
	mu     sync.Mutex
	state  TemporalAnchor
	nodeId uint64
	wall   func() time.Time
}

// NewClock returns a clock identified by nodeId, using time.Now for the
// wall-clock source.
func NewClock(nodeId uint64) *Clock {
	return NewClockWithWallFunc(nodeId, time.Now)
}

// NewClockWithWallFunc is NewClock with an injectable wall-clock source,
// for deterministic testing.
func NewClockWithWallFunc(nodeId uint64, wall func() time.Time) *Clock {
	return &Clock{nodeId: nodeId, wall: wall}
}

// Now produces the next local anchor. physical advances to max(wall,
// state.physical); logical resets to 0 on a physical advance, otherwise
// increments. The result is always strictly greater than any anchor this
// clock has previously produced.
func (c *Clock) Now() TemporalAnchor {
	c.mu.Lock()
	defer c.mu.Unlock()

	wallMs := c.wall().UnixMilli()
	if wallMs > c.state.Physical {
		c.state.Physical = wallMs
		c.state.Logical = 0
	} else {
		c.state.Logical++
	}
	c.state.NodeId = c.nodeId
	return c.state
}

// Update merges a remote anchor into this clock's state, per §3's
// receive-side rule, and returns the resulting local anchor.
func (c *Clock) Update(remote TemporalAnchor) TemporalAnchor {
	c.mu.Lock()
	defer c.mu.Unlock()

	wallMs := c.wall().UnixMilli()
	maxPhysical := wallMs
	if c.state.Physical > maxPhysical {
		maxPhysical = c.state.Physical
	}
	if remote.Physical > maxPhysical {
		maxPhysical = remote.Physical
	}

	switch {
	case wallMs > c.state.Physical && wallMs > remote.Physical:
		c.state.Logical = 0
	case c.state.Physical == remote.Physical && remote.Physical == maxPhysical:
		c.state.Logical = max32(c.state.Logical, remote.Logical) + 1
	case c.state.Physical == maxPhysical && c.state.Physical >= remote.Physical:
		c.state.Logical++
	case remote.Physical == maxPhysical:
		c.state.Logical = remote.Logical + 1
	default:
		c.state.Logical++
	}

	c.state.Physical = maxPhysical
	c.state.NodeId = c.nodeId
	return c.state
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
