package protocol

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/aycrith/darkages-zoned/config"
	"github.com/aycrith/darkages-zoned/fixedpoint"
)

// ValidationResult is the validator's failure taxonomy.
type ValidationResult int

const (
	Valid ValidationResult = iota
	InvalidPosition
	InvalidRotation
	InvalidSpeed
	InvalidAbilityID
	InvalidPlayerName
	InvalidChatMessage
	InvalidPacketSize
	InvalidSequence
	SuspiciousPattern
)

func (r ValidationResult) String() string {
	switch r {
	case Valid:
		return "Valid"
	case InvalidPosition:
		return "Invalid_Position"
	case InvalidRotation:
		return "Invalid_Rotation"
	case InvalidSpeed:
		return "Invalid_Speed"
	case InvalidAbilityID:
		return "Invalid_AbilityId"
	case InvalidPlayerName:
		return "Invalid_PlayerName"
	case InvalidChatMessage:
		return "Invalid_ChatMessage"
	case InvalidPacketSize:
		return "Invalid_PacketSize"
	case InvalidSequence:
		return "Invalid_Sequence"
	case SuspiciousPattern:
		return "Suspicious_Pattern"
	default:
		return "Unknown"
	}
}

// Validator applies the bounds/sanitization checks ahead of the
// simulation: positions/rotations are clamped, everything else is rejected
// outright.
type Validator struct {
	world config.WorldConfig
	cfg   config.ValidationConfig
}

// New constructs a Validator from the zone's world bounds and validation
// limits.
func New(world config.WorldConfig, cfg config.ValidationConfig) *Validator {
	return &Validator{world: world, cfg: cfg}
}

// ClampPosition clamps pos into the zone's world bounds in place, reporting
// whether a clamp was needed.
func (v *Validator) ClampPosition(pos *fixedpoint.Vec3) bool {
	clamped := false
	x, y, z := fixedpoint.FromFloat(v.world.MinX), fixedpoint.FromFloat(v.world.MinY), fixedpoint.FromFloat(v.world.MinZ)
	maxX, maxY, maxZ := fixedpoint.FromFloat(v.world.MaxX), fixedpoint.FromFloat(v.world.MaxY), fixedpoint.FromFloat(v.world.MaxZ)
	if pos.X < x {
		pos.X = x
		clamped = true
	} else if pos.X > maxX {
		pos.X = maxX
		clamped = true
	}
	if pos.Y < y {
		pos.Y = y
		clamped = true
	} else if pos.Y > maxY {
		pos.Y = maxY
		clamped = true
	}
	if pos.Z < z {
		pos.Z = z
		clamped = true
	} else if pos.Z > maxZ {
		pos.Z = maxZ
		clamped = true
	}
	return clamped
}

// ClampRotation wraps yaw into [0, 2π) and clamps pitch into [-π/2, π/2],
// reporting whether a clamp was needed.
func (v *Validator) ClampRotation(yaw, pitch *float64) bool {
	clamped := false
	wrapped := wrapRadians(*yaw)
	if wrapped != *yaw {
		*yaw = wrapped
		clamped = true
	}
	if *pitch < -math.Pi/2 {
		*pitch = -math.Pi / 2
		clamped = true
	} else if *pitch > math.Pi/2 {
		*pitch = math.Pi / 2
		clamped = true
	}
	return clamped
}

func wrapRadians(rad float64) float64 {
	r := math.Mod(rad, 2*math.Pi)
	if r < 0 {
		r += 2 * math.Pi
	}
	return r
}

// ValidateAbilityID reports whether abilityID is within the known range.
func (v *Validator) ValidateAbilityID(abilityID uint32) bool {
	return abilityID > 0 && abilityID <= v.cfg.MaxAbilityID
}

// ValidatePacketSize reports whether a raw packet's length is within
// the MIN_PACKET_SIZE..MAX_PACKET_SIZE bounds.
func (v *Validator) ValidatePacketSize(n int) bool {
	return n >= v.cfg.MinPacketSize && n <= v.cfg.MaxPacketSize
}

// ValidateSequence reports whether newSeq is a legal successor to lastSeq:
// strictly greater, with the gap at least MinInputSequenceDelta. Gaps
// beyond MaxInputSequenceDelta are tolerated too — the new
// sequence is simply accepted as the high-water mark, and the intervening
// inputs are never going to arrive.
func (v *Validator) ValidateSequence(lastSeq, newSeq uint32) bool {
	if newSeq <= lastSeq {
		return false
	}
	delta := newSeq - lastSeq
	return delta >= v.cfg.MinInputSequenceDelta
}

var nameCharset = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidatePlayerName checks length and character whitelist. It does
// not itself run a profanity filter word-list — that is an external
// moderation concern — but still rejects the structural abuse patterns
// ValidateChatMessage's HasSuspiciousPattern also catches.
func (v *Validator) ValidatePlayerName(name string) ValidationResult {
	if len(name) == 0 || len(name) > v.cfg.MaxPlayerNameLength {
		return InvalidPlayerName
	}
	if !nameCharset.MatchString(name) {
		return InvalidPlayerName
	}
	if HasSuspiciousPattern(name) {
		return SuspiciousPattern
	}
	return Valid
}

// ValidateChatMessage checks length and suspicious-pattern rules.
func (v *Validator) ValidateChatMessage(message string) ValidationResult {
	if len(message) == 0 || len(message) > v.cfg.MaxChatMessageLength {
		return InvalidChatMessage
	}
	if HasSuspiciousPattern(message) {
		return SuspiciousPattern
	}
	return Valid
}

// HasSuspiciousPattern flags repeated-character spam and excessive caps.
// Known exploit-string matching is moderation-owned and lives outside the
// zone process.
func HasSuspiciousPattern(text string) bool {
	if hasLongRun(text, 6) {
		return true
	}
	return excessiveCaps(text)
}

func hasLongRun(text string, runLen int) bool {
	if len(text) < runLen {
		return false
	}
	run := 1
	for i := 1; i < len(text); i++ {
		if text[i] == text[i-1] {
			run++
			if run >= runLen {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

func excessiveCaps(text string) bool {
	letters, caps := 0, 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				caps++
			}
		}
	}
	return letters >= 10 && caps*100/letters >= 80
}

// NormalizeWhitespace trims and collapses a chat/name string's whitespace.
// Callers sanitize before length/pattern checks run.
func NormalizeWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
