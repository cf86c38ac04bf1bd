// Package replication implements the area-of-interest visibility and
// distance-tiered update-rate optimizer. It decides, per connection and per
// tick, which entities go into that connection's snapshot and how much of
// each entity's state to include — the snapshot codec itself lives in
// package snapshot.
package replication

import (
	"sort"

	"github.com/aycrith/darkages-zoned/config"
	"github.com/aycrith/darkages-zoned/ecs"
	"github.com/aycrith/darkages-zoned/fixedpoint"
	"github.com/aycrith/darkages-zoned/spatial"
)

// Tier is the distance-banded update priority.
type Tier int

const (
	TierNear Tier = iota
	TierMid
	TierFar
)

// Visible is one entity selected for replication to a connection, tagged
// with its tier and squared distance for sorting/truncation.
type Visible struct {
	Entity     ecs.Entity
	Tier       Tier
	DistSq     int64
	RateHz     int
	FullFields bool // near tier replicates every field; mid/far cull some
}

// Optimizer computes per-connection AOI lists from the shared spatial hash.
type Optimizer struct {
	cfg config.ReplicationConfig
}

// New constructs an Optimizer bound to the zone's replication config.
func New(cfg config.ReplicationConfig) *Optimizer {
	return &Optimizer{cfg: cfg}
}

// Visibility returns every entity within farRadius of origin (queried from
// hash), tiered by distance, sorted by (tier, distance), and truncated to
// MaxEntitiesPerSnapshot. self is excluded from the result.
func (o *Optimizer) Visibility(hash *spatial.Hash, self ecs.Entity, origin fixedpoint.Vec3, alive func(ecs.Entity) bool, posOf func(ecs.Entity) (fixedpoint.Vec3, bool)) []Visible {
	farFixed := int64(o.cfg.FarRadius * fixedpoint.Scale)
	x, z := spatial.PositionKey(origin)
	candidates := hash.Query(x, z, farFixed)

	out := make([]Visible, 0, len(candidates))
	for _, e := range candidates {
		if e == self {
			continue
		}
		if alive != nil && !alive(e) {
			continue
		}
		pos, ok := posOf(e)
		if !ok {
			continue
		}
		distSq := origin.DistSqXZ(pos)
		if distSq > farFixed*farFixed {
			continue
		}
		out = append(out, Visible{
			Entity:     e,
			Tier:       o.tierFor(distSq),
			DistSq:     distSq,
			RateHz:     o.rateFor(o.tierFor(distSq)),
			FullFields: o.tierFor(distSq) == TierNear,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Tier != out[j].Tier {
			return out[i].Tier < out[j].Tier
		}
		return out[i].DistSq < out[j].DistSq
	})
	if max := o.cfg.MaxEntitiesPerSnapshot; max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

func (o *Optimizer) tierFor(distSq int64) Tier {
	near := int64(o.cfg.NearRadius * fixedpoint.Scale)
	mid := int64(o.cfg.MidRadius * fixedpoint.Scale)
	switch {
	case distSq <= near*near:
		return TierNear
	case distSq <= mid*mid:
		return TierMid
	default:
		return TierFar
	}
}

func (o *Optimizer) rateFor(t Tier) int {
	switch t {
	case TierNear:
		return o.cfg.NearRateHz
	case TierMid:
		return o.cfg.MidRateHz
	default:
		return o.cfg.FarRateHz
	}
}

// Tracker records, per (connectionID, entity), the server tick of the last
// update sent — used to decide whether a tier's rate budget allows sending
// again this tick, and to purge stale entries on disconnect/destroy.
type Tracker struct {
	last map[trackKey]uint64
}

type trackKey struct {
	connectionID uint32
	entity       ecs.Entity
}

// NewTracker constructs an empty per-connection update tracker.
func NewTracker() *Tracker {
	return &Tracker{last: make(map[trackKey]uint64)}
}

// ShouldSend reports whether enough ticks have elapsed since the last send
// to this (connectionID, entity) pair to honor rateHz at tickRateHz, and
// records currentTick as the new last-sent tick if so.
func (t *Tracker) ShouldSend(connectionID uint32, e ecs.Entity, currentTick uint64, rateHz, tickRateHz int) bool {
	if rateHz <= 0 || tickRateHz <= 0 {
		return false
	}
	key := trackKey{connectionID: connectionID, entity: e}
	interval := uint64(tickRateHz / rateHz)
	if interval == 0 {
		interval = 1
	}
	last, ok := t.last[key]
	if ok && currentTick-last < interval {
		return false
	}
	t.last[key] = currentTick
	return true
}

// PurgeEntity drops all tracked state for e across every connection (called
// on entity destroy).
func (t *Tracker) PurgeEntity(e ecs.Entity) {
	for k := range t.last {
		if k.entity == e {
			delete(t.last, k)
		}
	}
}

// PurgeConnection drops all tracked state for one connection (called on
// disconnect).
func (t *Tracker) PurgeConnection(connectionID uint32) {
	for k := range t.last {
		if k.connectionID == connectionID {
			delete(t.last, k)
		}
	}
}
