// Package history implements the per-entity position ring and the
// lag compensator built on top of it.
package history

import (
	"errors"

	"github.com/aycrith/darkages-zoned/ecs"
	"github.com/aycrith/darkages-zoned/fixedpoint"
)

// capacity bounds the ring at 120 entries (2s at 60Hz); eviction is by age,
// not count — capacity is a backstop against a stalled tick rate filling
// the ring faster than the 2s window would otherwise allow.
const capacity = 120

// windowMs is the retained history span.
const windowMs = 2000

// Entry is one recorded position/velocity/rotation sample.
type Entry struct {
	Timestamp int64
	Position  fixedpoint.Vec3
	Velocity  fixedpoint.Vec3
	Rotation  ecs.Rotation
}

// ErrOutOfRange is returned when a query timestamp falls outside the
// recorded interval.
var ErrOutOfRange = errors.New("history: timestamp outside recorded interval")

// Ring is one entity's time-ordered ring buffer.
type Ring struct {
	entries []Entry // append-only until eviction trims the front
}

// NewRing constructs an empty Ring.
func NewRing() *Ring {
	return &Ring{entries: make([]Entry, 0, capacity)}
}

// Record appends a new sample at t, evicting anything older than the 2s
// window and anything beyond the capacity backstop.
func (r *Ring) Record(t int64, pos, vel fixedpoint.Vec3, rot ecs.Rotation) {
	r.entries = append(r.entries, Entry{Timestamp: t, Position: pos, Velocity: vel, Rotation: rot})
	r.evict(t)
}

func (r *Ring) evict(now int64) {
	cutoff := now - windowMs
	i := 0
	for i < len(r.entries) && r.entries[i].Timestamp < cutoff {
		i++
	}
	if i > 0 {
		r.entries = append(r.entries[:0], r.entries[i:]...)
	}
	if over := len(r.entries) - capacity; over > 0 {
		r.entries = append(r.entries[:0], r.entries[over:]...)
	}
}

// Len returns the number of retained entries.
func (r *Ring) Len() int { return len(r.entries) }

// Oldest returns the timestamp of the oldest retained entry, or false if
// empty.
func (r *Ring) Oldest() (int64, bool) {
	if len(r.entries) == 0 {
		return 0, false
	}
	return r.entries[0].Timestamp, true
}

// AtTime returns the exact entry at t, if present.
func (r *Ring) AtTime(t int64) (Entry, bool) {
	for _, e := range r.entries {
		if e.Timestamp == t {
			return e, true
		}
	}
	return Entry{}, false
}

// Interpolated returns the linearly interpolated position/velocity/rotation
// at t, bracketed by the two nearest recorded entries. Fails with
// ErrOutOfRange if t lies outside [oldest, newest].
func (r *Ring) Interpolated(t int64) (Entry, error) {
	n := len(r.entries)
	if n == 0 {
		return Entry{}, ErrOutOfRange
	}
	if n == 1 {
		if r.entries[0].Timestamp == t {
			return r.entries[0], nil
		}
		return Entry{}, ErrOutOfRange
	}
	if t < r.entries[0].Timestamp || t > r.entries[n-1].Timestamp {
		return Entry{}, ErrOutOfRange
	}
	for i := 0; i < n-1; i++ {
		a, b := r.entries[i], r.entries[i+1]
		if t >= a.Timestamp && t <= b.Timestamp {
			if a.Timestamp == b.Timestamp {
				return a, nil
			}
			frac := float64(t-a.Timestamp) / float64(b.Timestamp-a.Timestamp)
			return Entry{
				Timestamp: t,
				Position:  fixedpoint.Lerp(a.Position, b.Position, frac),
				Velocity:  fixedpoint.Lerp(a.Velocity, b.Velocity, frac),
				Rotation: ecs.Rotation{
					Yaw:   a.Rotation.Yaw + frac*(b.Rotation.Yaw-a.Rotation.Yaw),
					Pitch: a.Rotation.Pitch + frac*(b.Rotation.Pitch-a.Rotation.Pitch),
				},
			}, nil
		}
	}
	return Entry{}, ErrOutOfRange
}

// At returns the exact entry at t if present, otherwise the interpolated
// sample — the combined contract of getPositionAtTime / getInterpolatedPosition.
func (r *Ring) At(t int64) (Entry, error) {
	if e, ok := r.AtTime(t); ok {
		return e, nil
	}
	return r.Interpolated(t)
}
