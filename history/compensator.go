package history

import (
	"github.com/aycrith/darkages-zoned/fixedpoint"
)

// Compensator rewinds a target's position to where it was from the
// attacker's point of view, bounded by MaxRewindMs: a rewind request
// older than the window is clamped to the window edge, so a high-ping
// attacker can never treat a target as present anywhere the trusted
// window no longer covers.
type Compensator struct {
	maxRewindMs  int64
	hitTolerance float64
}

// NewCompensator constructs a Compensator bound to the configured rewind
// bound and hit-radius tolerance.
func NewCompensator(maxRewindMs int64, hitTolerance float64) *Compensator {
	return &Compensator{maxRewindMs: maxRewindMs, hitTolerance: hitTolerance}
}

// EffectiveTimestamp clamps the attacker-reported timestamp to at most
// maxRewindMs behind now, per the rewind bound.
func (c *Compensator) EffectiveTimestamp(now, clientTimestamp int64) int64 {
	earliest := now - c.maxRewindMs
	if clientTimestamp < earliest {
		return earliest
	}
	if clientTimestamp > now {
		return now
	}
	return clientTimestamp
}

// HistoricalPosition resolves where an entity was at the effective
// timestamp using its Ring. An effective timestamp older than the ring's
// oldest entry is moved up to that entry; an empty ring, or a timestamp
// past the newest entry, yields ErrOutOfRange.
func (c *Compensator) HistoricalPosition(ring *Ring, now, clientTimestamp int64) (fixedpoint.Vec3, error) {
	eff := c.EffectiveTimestamp(now, clientTimestamp)
	if oldest, ok := ring.Oldest(); ok && eff < oldest {
		eff = oldest
	}
	e, err := ring.At(eff)
	if err != nil {
		return fixedpoint.Vec3{}, err
	}
	return e.Position, nil
}

// HitTest reports whether attackerClaimed lies within hitRadius (plus the
// configured tolerance) of the target's rewound historical position.
func (c *Compensator) HitTest(ring *Ring, now, clientTimestamp int64, attackerClaimed fixedpoint.Vec3, hitRadius float64) (bool, error) {
	targetPos, err := c.HistoricalPosition(ring, now, clientTimestamp)
	if err != nil {
		return false, err
	}
	distSq := targetPos.DistSq(attackerClaimed)
	allowed := hitRadius + c.hitTolerance
	allowedFixed := int64(allowed * fixedpoint.Scale)
	return distSq <= allowedFixed*allowedFixed, nil
}
