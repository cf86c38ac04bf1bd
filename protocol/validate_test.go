package protocol

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aycrith/darkages-zoned/config"
	"github.com/aycrith/darkages-zoned/fixedpoint"
)

func testValidator() *Validator {
	cfg := config.Defaults()
	return New(cfg.World, cfg.Validation)
}

func TestClampPositionWithinBounds(t *testing.T) {
	v := testValidator()
	pos := fixedpoint.Vec3{X: fixedpoint.FromFloat(500), Y: 0, Z: fixedpoint.FromFloat(500)}
	require.False(t, v.ClampPosition(&pos))
}

func TestClampPositionOutOfBounds(t *testing.T) {
	v := testValidator()
	pos := fixedpoint.Vec3{X: fixedpoint.FromFloat(-50), Y: 0, Z: fixedpoint.FromFloat(5000)}
	clamped := v.ClampPosition(&pos)
	require.True(t, clamped)
	require.Equal(t, fixedpoint.FromFloat(0), pos.X)
	require.Equal(t, fixedpoint.FromFloat(1000), pos.Z)
}

func TestClampRotationWrapsYawAndClampsPitch(t *testing.T) {
	v := testValidator()
	yaw, pitch := -1.0, 2.0
	clamped := v.ClampRotation(&yaw, &pitch)
	require.True(t, clamped)
	require.InDelta(t, 2*math.Pi-1, yaw, 1e-9)
	require.InDelta(t, math.Pi/2, pitch, 1e-9)
}

func TestValidateAbilityID(t *testing.T) {
	v := testValidator()
	require.True(t, v.ValidateAbilityID(1))
	require.True(t, v.ValidateAbilityID(1000))
	require.False(t, v.ValidateAbilityID(0))
	require.False(t, v.ValidateAbilityID(1001))
}

func TestValidatePacketSize(t *testing.T) {
	v := testValidator()
	require.True(t, v.ValidatePacketSize(1))
	require.True(t, v.ValidatePacketSize(1400))
	require.False(t, v.ValidatePacketSize(0))
	require.False(t, v.ValidatePacketSize(1401))
}

func TestValidateSequence(t *testing.T) {
	v := testValidator()
	require.True(t, v.ValidateSequence(10, 11))
	require.True(t, v.ValidateSequence(10, 25))
	require.False(t, v.ValidateSequence(10, 10))
	require.False(t, v.ValidateSequence(10, 5))
}

func TestValidatePlayerNameRejectsBadCharsAndLength(t *testing.T) {
	v := testValidator()
	require.Equal(t, Valid, v.ValidatePlayerName("abbey_01"))
	require.Equal(t, InvalidPlayerName, v.ValidatePlayerName(""))
	require.Equal(t, InvalidPlayerName, v.ValidatePlayerName("has spaces"))
	require.Equal(t, InvalidPlayerName, v.ValidatePlayerName("way-too-long-a-name-for-this-game-x"))
}

func TestValidatePlayerNameFlagsSuspiciousRepeat(t *testing.T) {
	v := testValidator()
	require.Equal(t, SuspiciousPattern, v.ValidatePlayerName("aaaaaaaa"))
}

func TestValidateChatMessageLengthAndSuspicious(t *testing.T) {
	v := testValidator()
	require.Equal(t, Valid, v.ValidateChatMessage("hello there"))
	require.Equal(t, InvalidChatMessage, v.ValidateChatMessage(""))
	require.Equal(t, SuspiciousPattern, v.ValidateChatMessage("AAAAAAAAAAAAA SHOUTING"))
}

func TestHasSuspiciousPatternRepeatedChars(t *testing.T) {
	require.True(t, HasSuspiciousPattern("loooooooool"))
	require.False(t, HasSuspiciousPattern("a normal sentence"))
}

func TestNormalizeWhitespace(t *testing.T) {
	require.Equal(t, "hello world", NormalizeWhitespace("  hello   world  "))
}
