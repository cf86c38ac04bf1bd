// Package anticheat implements the detector set, per-player behavior
// profile, and trust score. Detectors never mutate the world: each returns
// a Violation the tick loop applies as a correction, matching the Design
// Notes guidance that detectors are pure functions returning tagged results.
package anticheat

import (
	"math"
	"time"

	"github.com/aycrith/darkages-zoned/config"
	"github.com/aycrith/darkages-zoned/fixedpoint"
	"github.com/aycrith/darkages-zoned/movement"
)

// ViolationType enumerates the detector battery.
type ViolationType string

const (
	SpeedHack         ViolationType = "SPEED_HACK"
	Teleport          ViolationType = "TELEPORT"
	FlyHack           ViolationType = "FLY_HACK"
	NoClip            ViolationType = "NO_CLIP"
	InputManipulation ViolationType = "INPUT_MANIPULATION"
	PacketFlooding    ViolationType = "PACKET_FLOODING"
	DamageHack        ViolationType = "DAMAGE_HACK"
	HitboxExtension   ViolationType = "HITBOX_EXTENSION"
	CooldownViolation ViolationType = "COOLDOWN_VIOLATION"
)

// Severity is computed from the recent-violation sliding window.
type Severity int

const (
	Info Severity = iota
	Warning
	Suspicious
	Critical
	Ban
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Suspicious:
		return "SUSPICIOUS"
	case Critical:
		return "CRITICAL"
	case Ban:
		return "BAN"
	default:
		return "UNKNOWN"
	}
}

// Violation is one detector's finding.
type Violation struct {
	Detected          bool
	Type              ViolationType
	Severity          Severity
	Confidence        float64
	CorrectedPosition fixedpoint.Vec3
	Description       string
}

// behaviorProfileCapacity bounds the per-player incident ring.
const behaviorProfileCapacity = 20

// BehaviorProfile is a bounded ring of a player's recent violations plus its
// rolling trust score.
type BehaviorProfile struct {
	incidents []incident
	next      int
	Trust     float64
	CreatedAt int64 // ms since zone start, used for the new-player grace period
}

type incident struct {
	at   int64
	vtyp ViolationType
}

// NewBehaviorProfile constructs a profile for a player first seen at now
// (ms), starting at a neutral trust score.
func NewBehaviorProfile(now int64) *BehaviorProfile {
	return &BehaviorProfile{incidents: make([]incident, 0, behaviorProfileCapacity), Trust: 70, CreatedAt: now}
}

// record appends a violation to the ring, evicting the oldest once full.
func (b *BehaviorProfile) record(now int64, vtyp ViolationType) {
	if len(b.incidents) < behaviorProfileCapacity {
		b.incidents = append(b.incidents, incident{at: now, vtyp: vtyp})
		return
	}
	b.incidents[b.next] = incident{at: now, vtyp: vtyp}
	b.next = (b.next + 1) % behaviorProfileCapacity
}

// countInWindow returns how many incidents fall within windowSeconds of now.
func (b *BehaviorProfile) countInWindow(now int64, windowSeconds int) int {
	cutoff := now - int64(windowSeconds)*1000
	n := 0
	for _, inc := range b.incidents {
		if inc.at >= cutoff {
			n++
		}
	}
	return n
}

// severityFor maps a recent-count-in-window to the severity table.
func severityFor(recentCount int) Severity {
	switch {
	case recentCount == 0:
		return Info
	case recentCount == 1:
		return Warning
	case recentCount == 2:
		return Suspicious
	case recentCount <= 4:
		return Critical
	default:
		return Ban
	}
}

// Detector runs the full detector battery plus trust-score bookkeeping.
type Detector struct {
	cfg config.AntiCheatConfig
}

// New constructs a Detector bound to the zone's anti-cheat config.
func New(cfg config.AntiCheatConfig) *Detector {
	return &Detector{cfg: cfg}
}

// EvaluateMovement runs the speed/teleport/fly/no-clip detectors against one
// movement step, recording any violation into profile and returning it.
// If profile is within its new-player grace period, bounds are relaxed by a
// fixed factor — a trust floor a cheat-detection false positive can't push
// a brand-new account below immediately.
func (d *Detector) EvaluateMovement(profile *BehaviorProfile, now int64, old, newPos fixedpoint.Vec3, dtMs int64, maxSpeed float64, worldMinY, worldMaxY float64) Violation {
	tolerance := 1.2
	if d.inGracePeriod(profile, now) {
		tolerance *= 1.5
	}
	if profile.Trust < d.cfg.TrustStrictBelow {
		tolerance *= 0.8
	}
	if dtMs <= 0 {
		dtMs = 17
	}

	distSq := old.DistSqXZ(newPos)
	distMeters := math.Sqrt(float64(distSq)) / fixedpoint.Scale
	speed := distMeters / (float64(dtMs) / 1000.0)
	allowed := maxSpeed * tolerance

	ok, corrected := movement.ValidateMovement(old, newPos, dtMs, maxSpeed, tolerance)

	v := Violation{}
	switch {
	case !ok && speed > allowed*50:
		// Essentially instantaneous relocation: a teleport, not a speed-hack.
		v = Violation{Detected: true, Type: Teleport, Severity: Critical, Confidence: 0.95,
			CorrectedPosition: corrected, Description: "displacement exceeds any plausible teleport-free movement"}
	case !ok:
		confidence := math.Min(1.0, (speed-allowed)/allowed)
		v = Violation{Detected: true, Type: SpeedHack, Severity: Info, Confidence: confidence,
			CorrectedPosition: corrected, Description: "implied speed exceeds max*tolerance"}
	case fixedpoint.ToFloat(newPos.Y) > worldMaxY:
		v = Violation{Detected: true, Type: FlyHack, Severity: Warning, Confidence: 0.7,
			CorrectedPosition: fixedpoint.Vec3{X: newPos.X, Z: newPos.Z, Y: fixedpoint.FromFloat(worldMaxY)},
			Description:       "position above world vertical bound"}
	case fixedpoint.ToFloat(newPos.Y) < worldMinY:
		v = Violation{Detected: true, Type: NoClip, Severity: Warning, Confidence: 0.7,
			CorrectedPosition: fixedpoint.Vec3{X: newPos.X, Z: newPos.Z, Y: fixedpoint.FromFloat(worldMinY)},
			Description:       "position below world vertical bound"}
	default:
		d.applyClean(profile)
		return Violation{}
	}

	// The sliding window escalates severity but never downgrades a
	// detector's intrinsic rating: a first-offense teleport stays CRITICAL.
	if s := severityFor(profile.countInWindow(now, d.cfg.ViolationWindow)); s > v.Severity {
		v.Severity = s
	}
	profile.record(now, v.Type)
	d.applyViolation(profile)
	return v
}

// EvaluateInput detects NaN/infinite/out-of-range rotation or a non-monotone
// input sequence.
func (d *Detector) EvaluateInput(profile *BehaviorProfile, now int64, yaw, pitch float64, sequence, lastSequence uint32) Violation {
	bad := math.IsNaN(yaw) || math.IsInf(yaw, 0) || math.IsNaN(pitch) || math.IsInf(pitch, 0) ||
		pitch < -math.Pi/2-1e-6 || pitch > math.Pi/2+1e-6 ||
		(lastSequence != 0 && sequence <= lastSequence)
	if !bad {
		d.applyClean(profile)
		return Violation{}
	}
	recent := profile.countInWindow(now, d.cfg.ViolationWindow)
	v := Violation{Detected: true, Type: InputManipulation, Severity: severityFor(recent), Confidence: 0.9,
		Description: "malformed or out-of-range input fields"}
	profile.record(now, v.Type)
	d.applyViolation(profile)
	return v
}

// EvaluateDamage flags a claimed damage amount over the configured per-hit
// cap (damage-hack detector).
func (d *Detector) EvaluateDamage(profile *BehaviorProfile, now int64, claimedDamage uint32) Violation {
	if claimedDamage <= d.cfg.MaxDamagePerHit {
		d.applyClean(profile)
		return Violation{}
	}
	recent := profile.countInWindow(now, d.cfg.ViolationWindow)
	v := Violation{Detected: true, Type: DamageHack, Severity: severityFor(recent), Confidence: 0.85,
		Description: "claimed damage exceeds configured per-hit cap"}
	profile.record(now, v.Type)
	d.applyViolation(profile)
	return v
}

// EvaluateHitboxRange flags a claimed hit whose range exceeds the weapon's
// nominal range plus a small slop (hitbox-extension detector).
func (d *Detector) EvaluateHitboxRange(profile *BehaviorProfile, now int64, claimedRange, weaponRange float64) Violation {
	if claimedRange <= weaponRange+d.cfg.MaxHitboxRangeBonus {
		d.applyClean(profile)
		return Violation{}
	}
	recent := profile.countInWindow(now, d.cfg.ViolationWindow)
	v := Violation{Detected: true, Type: HitboxExtension, Severity: severityFor(recent), Confidence: 0.8,
		Description: "claimed hit at impossible range"}
	profile.record(now, v.Type)
	d.applyViolation(profile)
	return v
}

// EvaluateCooldown flags an attack attempted before lastAttackTime+cooldown.
func (d *Detector) EvaluateCooldown(profile *BehaviorProfile, now, lastAttackTime int64, cooldown time.Duration) Violation {
	if now-lastAttackTime >= cooldown.Milliseconds() {
		d.applyClean(profile)
		return Violation{}
	}
	recent := profile.countInWindow(now, d.cfg.ViolationWindow)
	v := Violation{Detected: true, Type: CooldownViolation, Severity: severityFor(recent), Confidence: 1.0,
		Description: "attack attempted before cooldown elapsed"}
	profile.record(now, v.Type)
	d.applyViolation(profile)
	return v
}

func (d *Detector) inGracePeriod(p *BehaviorProfile, now int64) bool {
	return now-p.CreatedAt < d.cfg.NewPlayerGraceSecs*1000
}

func (d *Detector) applyClean(p *BehaviorProfile) {
	p.Trust = math.Min(100, p.Trust+d.cfg.TrustGainPerTick)
}

func (d *Detector) applyViolation(p *BehaviorProfile) {
	p.Trust = math.Max(0, p.Trust-d.cfg.TrustDecayPerTick)
}
