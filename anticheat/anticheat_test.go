package anticheat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aycrith/darkages-zoned/config"
	"github.com/aycrith/darkages-zoned/fixedpoint"
)

func testConfig() config.AntiCheatConfig {
	return config.Defaults().AntiCheat
}

func TestEvaluateMovementSpeedHack(t *testing.T) {
	d := New(testConfig())
	p := NewBehaviorProfile(0)
	old := fixedpoint.Vec3{}
	newPos := fixedpoint.Vec3{X: fixedpoint.FromFloat(20)}
	v := d.EvaluateMovement(p, 100000, old, newPos, 50, 9.6, -100, 500)
	require.True(t, v.Detected)
	require.Equal(t, SpeedHack, v.Type)
	require.Equal(t, old, v.CorrectedPosition)
}

func TestEvaluateMovementClean(t *testing.T) {
	d := New(testConfig())
	p := NewBehaviorProfile(0)
	old := fixedpoint.Vec3{}
	newPos := fixedpoint.Vec3{X: fixedpoint.FromFloat(0.05)}
	v := d.EvaluateMovement(p, 100000, old, newPos, 50, 9.6, -100, 500)
	require.False(t, v.Detected)
}

func TestSeverityEscalation(t *testing.T) {
	d := New(testConfig())
	p := NewBehaviorProfile(0)
	old := fixedpoint.Vec3{}
	newPos := fixedpoint.Vec3{X: fixedpoint.FromFloat(20)}
	var last Violation
	for i := 0; i < 5; i++ {
		last = d.EvaluateMovement(p, 100000+int64(i)*16, old, newPos, 50, 9.6, -100, 500)
	}
	require.True(t, last.Detected)
	require.GreaterOrEqual(t, int(last.Severity), int(Suspicious))
}

func TestTeleportKeepsCriticalOnFirstOffense(t *testing.T) {
	d := New(testConfig())
	p := NewBehaviorProfile(0)
	old := fixedpoint.Vec3{}
	newPos := fixedpoint.Vec3{X: fixedpoint.FromFloat(10000)}
	v := d.EvaluateMovement(p, 100000, old, newPos, 50, 9.6, -100, 500)
	require.True(t, v.Detected)
	require.Equal(t, Teleport, v.Type)
	require.Equal(t, Critical, v.Severity)
	require.Equal(t, old, v.CorrectedPosition)
}

func TestEvaluateCooldown(t *testing.T) {
	d := New(testConfig())
	p := NewBehaviorProfile(0)
	v := d.EvaluateCooldown(p, 1100, 1000, 500*time.Millisecond)
	require.True(t, v.Detected)
}
