package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aycrith/darkages-zoned/config"
)

func testCfg() config.RateLimitConfig {
	return config.Defaults().RateLimit
}

func TestTokenBucketAllowsBurstThenLimits(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewTokenBucket(5, 1, now)
	for i := 0; i < 5; i++ {
		require.True(t, b.Allow(now))
	}
	require.False(t, b.Allow(now))
}

func TestTokenBucketRefills(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewTokenBucket(1, 1, now)
	require.True(t, b.Allow(now))
	require.False(t, b.Allow(now))
	later := now.Add(1100 * time.Millisecond)
	require.True(t, b.Allow(later))
}

func TestConnectionThrottleBlocksAfterLimit(t *testing.T) {
	cfg := testCfg()
	cfg.MaxConnectionsPerIP = 2
	cfg.ConnWindowSeconds = 60
	cfg.BlockDurationSeconds = 300
	th := NewConnectionThrottle(cfg)
	now := time.Now()
	require.True(t, th.Allow(now, "1.2.3.4"))
	require.True(t, th.Allow(now, "1.2.3.4"))
	require.False(t, th.Allow(now, "1.2.3.4"))
	require.True(t, th.IsBlocked(now, "1.2.3.4"))
}

func TestAllowListBypass(t *testing.T) {
	al := NewAllowList()
	require.False(t, al.Contains("9.9.9.9"))
	al.Add("9.9.9.9")
	require.True(t, al.Contains("9.9.9.9"))
}

func TestBlockListManualBlockAndUnblock(t *testing.T) {
	bl := NewBlockList()
	now := time.Now()
	bl.Block(now, "5.5.5.5", time.Minute, "cheating")
	blocked, reason := bl.IsBlocked(now, "5.5.5.5")
	require.True(t, blocked)
	require.Equal(t, "cheating", reason)
	bl.Unblock("5.5.5.5")
	blocked, _ = bl.IsBlocked(now, "5.5.5.5")
	require.False(t, blocked)
}

func TestBlockListUpdateDecaysExpired(t *testing.T) {
	bl := NewBlockList()
	now := time.Now()
	bl.Block(now, "5.5.5.5", time.Millisecond, "spam")
	later := now.Add(time.Second)
	bl.Update(later)
	blocked, _ := bl.IsBlocked(later, "5.5.5.5")
	require.False(t, blocked)
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cfg := testCfg()
	cfg.CircuitFailureThresh = 3
	cfg.CircuitTimeout = time.Second
	cb := NewCircuitBreaker(cfg)
	now := time.Now()
	for i := 0; i < 3; i++ {
		cb.RecordFailure(now)
	}
	require.Equal(t, Open, cb.State())
	require.False(t, cb.Allow(now))
}

func TestCircuitBreakerHalfOpenThenCloses(t *testing.T) {
	cfg := testCfg()
	cfg.CircuitFailureThresh = 1
	cfg.CircuitSuccessThresh = 2
	cfg.CircuitTimeout = 10 * time.Millisecond
	cb := NewCircuitBreaker(cfg)
	now := time.Now()
	cb.RecordFailure(now)
	require.Equal(t, Open, cb.State())

	later := now.Add(20 * time.Millisecond)
	require.True(t, cb.Allow(later))
	require.Equal(t, HalfOpen, cb.State())
	cb.RecordSuccess()
	cb.RecordSuccess()
	require.Equal(t, Closed, cb.State())
}

func TestAnalyzerFlagsSpike(t *testing.T) {
	a := NewAnalyzer(testCfg())
	for i := 0; i < 5; i++ {
		a.Observe(TrafficSample{Connections: 10, Packets: 100})
	}
	require.False(t, a.EmergencyMode())
	a.Observe(TrafficSample{Connections: 1000, Packets: 100})
	require.True(t, a.EmergencyMode())
}
