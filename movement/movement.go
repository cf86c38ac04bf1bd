// Package movement implements the input-to-position integration and the
// companion straight-line displacement validator anti-cheat's speed-hack
// detector builds on. It is pure: given components in, it returns a result
// struct, never mutating the entity store itself — the tick loop applies
// the result.
package movement

import (
	"math"

	"github.com/aycrith/darkages-zoned/config"
	"github.com/aycrith/darkages-zoned/ecs"
	"github.com/aycrith/darkages-zoned/fixedpoint"
)

// Result carries the outcome of stepping one entity's movement for a tick.
type Result struct {
	Valid              bool
	CorrectedPosition  fixedpoint.Vec3
	CorrectedVelocity  fixedpoint.Vec3
	AntiCheatTriggered bool
	Reason             string
}

// System steps the movement simulation for entities that carry
// {Position, Velocity, InputState}.
type System struct {
	cfg   config.MovementConfig
	world config.WorldConfig
}

// New constructs a movement System bound to the zone's movement/world
// config.
func New(cfg config.MovementConfig, world config.WorldConfig) *System {
	return &System{cfg: cfg, world: world}
}

// dtSeconds is the fixed simulation timestep; callers pass the zone's
// configured DT (1/tickRateHz) so the system stays timestep-agnostic for
// tests that want to simulate a different rate.
//
// Step computes steps 1-4 and returns the resulting Result. rotation
// supplies the facing used to project input flags into world space.
func (s *System) Step(pos ecs.Position, vel ecs.Velocity, in ecs.InputState, rot ecs.Rotation, dtSeconds float64) Result {
	targetSpeed := s.cfg.MaxPlayerSpeed
	if in.Flags.Sprint {
		targetSpeed = s.cfg.MaxPlayerSpeed * s.cfg.SprintMult
	}

	fx, fz := fixedpoint.Facing(rot.Yaw)
	// right-hand perpendicular to facing, used for strafe (left/right).
	rx, rz := fz, -fx

	var moveX, moveZ float64
	if in.Flags.Forward {
		moveX += fx
		moveZ += fz
	}
	if in.Flags.Backward {
		moveX -= fx
		moveZ -= fz
	}
	if in.Flags.Right {
		moveX += rx
		moveZ += rz
	}
	if in.Flags.Left {
		moveX -= rx
		moveZ -= rz
	}

	hasInput := moveX != 0 || moveZ != 0
	if hasInput {
		norm := math.Hypot(moveX, moveZ)
		moveX, moveZ = moveX/norm*targetSpeed, moveZ/norm*targetSpeed
	}
	targetVX := fixedpoint.FromFloat(moveX)
	targetVZ := fixedpoint.FromFloat(moveZ)

	curV := vel.Vec3
	newV := curV
	if hasInput {
		newV.X = approach(curV.X, targetVX, s.cfg.Acceleration, dtSeconds)
		newV.Z = approach(curV.Z, targetVZ, s.cfg.Acceleration, dtSeconds)
	} else {
		newV.X = approach(curV.X, 0, s.cfg.Friction, dtSeconds)
		newV.Z = approach(curV.Z, 0, s.cfg.Friction, dtSeconds)
	}
	if in.Flags.Jump {
		newV.Y = fixedpoint.FromFloat(4.0)
	}

	newPos := pos.Vec3.Add(newV.ScaleRat(int64(dtSeconds*1000), 1000))
	newPos = s.clampToWorld(newPos)

	return Result{
		Valid:             true,
		CorrectedPosition: newPos,
		CorrectedVelocity: newV,
	}
}

// approach moves current toward target by rate units/second² over dt
// seconds, never overshooting.
func approach(current, target int64, rate, dt float64) int64 {
	curF, targetF := fixedpoint.ToFloat(current), fixedpoint.ToFloat(target)
	maxDelta := rate * dt
	delta := targetF - curF
	if delta > maxDelta {
		delta = maxDelta
	} else if delta < -maxDelta {
		delta = -maxDelta
	}
	return fixedpoint.FromFloat(curF + delta)
}

func (s *System) clampToWorld(p fixedpoint.Vec3) fixedpoint.Vec3 {
	clamp := func(v, lo, hi float64) float64 {
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
		return v
	}
	x := fixedpoint.ToFloat(p.X)
	z := fixedpoint.ToFloat(p.Z)
	y := fixedpoint.ToFloat(p.Y)
	x = clamp(x, s.world.MinX, s.world.MaxX)
	z = clamp(z, s.world.MinZ, s.world.MaxZ)
	y = clamp(y, s.world.MinY, s.world.MaxY)
	return fixedpoint.Vec3{X: fixedpoint.FromFloat(x), Y: fixedpoint.FromFloat(y), Z: fixedpoint.FromFloat(z)}
}

// ValidateMovement answers the validator question: is the straight-line
// displacement from old to new achievable within dtMs at
// maxSpeed*SPEED_TOLERANCE? Returns ok=false and a corrected position
// (lastValidPosition) on failure.
func ValidateMovement(old, newPos fixedpoint.Vec3, dtMs int64, maxSpeed, tolerance float64) (ok bool, corrected fixedpoint.Vec3) {
	if dtMs <= 0 {
		return false, old
	}
	distSq := old.DistSqXZ(newPos)
	// DistSqXZ is in fixed-point units squared; sqrt then rescale to meters.
	dist := math.Sqrt(float64(distSq)) / fixedpoint.Scale
	elapsedSeconds := float64(dtMs) / 1000.0
	allowedDist := maxSpeed * tolerance * elapsedSeconds
	if dist <= allowedDist {
		return true, newPos
	}
	return false, old
}
