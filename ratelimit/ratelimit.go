// Package ratelimit implements the DDoS protection layer: a per-IP
// sliding-window connection throttle (backed by go-catrate), a per-
// connection packet token bucket, a global traffic analyzer with an
// emergency mode, an IP allow/block list, and a circuit breaker for
// external-service calls.
package ratelimit

import (
	"sync"
	"time"

	"github.com/joeycumines/go-catrate"

	"github.com/aycrith/darkages-zoned/config"
)

// ConnectionThrottle wraps a catrate.Limiter keyed by IP, blocking an IP
// once it exceeds maxAttempts in windowSeconds and decaying the block
// after blockDurationSeconds.
type ConnectionThrottle struct {
	limiter *catrate.Limiter
	cfg     config.RateLimitConfig

	mu      sync.Mutex
	blocked map[string]time.Time // ip -> unblock time
}

// NewConnectionThrottle constructs a per-IP connection throttle from cfg.
func NewConnectionThrottle(cfg config.RateLimitConfig) *ConnectionThrottle {
	window := time.Duration(cfg.ConnWindowSeconds) * time.Second
	return &ConnectionThrottle{
		limiter: catrate.NewLimiter(map[time.Duration]int{window: cfg.MaxConnectionsPerIP}),
		cfg:     cfg,
		blocked: make(map[string]time.Time),
	}
}

// Allow reports whether a new connection attempt from ip is permitted. A
// rejection due to the sliding window escalates into a timed block once the
// window limit is hit; a still-active block rejects immediately without
// touching the limiter.
func (t *ConnectionThrottle) Allow(now time.Time, ip string) bool {
	t.mu.Lock()
	if until, ok := t.blocked[ip]; ok {
		if now.Before(until) {
			t.mu.Unlock()
			return false
		}
		delete(t.blocked, ip)
	}
	t.mu.Unlock()

	_, ok := t.limiter.Allow(ip)
	if !ok {
		t.mu.Lock()
		t.blocked[ip] = now.Add(time.Duration(t.cfg.BlockDurationSeconds) * time.Second)
		t.mu.Unlock()
		return false
	}
	return true
}

// IsBlocked reports whether ip is currently under a decaying block.
func (t *ConnectionThrottle) IsBlocked(now time.Time, ip string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	until, ok := t.blocked[ip]
	return ok && now.Before(until)
}

// TokenBucket is a per-connection packet-rate limiter: maxTokens burst
// capacity, refilled at tokensPerSecond.
type TokenBucket struct {
	maxTokens       float64
	tokensPerSecond float64
	tokens          float64
	lastRefill      time.Time
}

// NewTokenBucket constructs a full bucket.
func NewTokenBucket(maxTokens, tokensPerSecond float64, now time.Time) *TokenBucket {
	return &TokenBucket{maxTokens: maxTokens, tokensPerSecond: tokensPerSecond, tokens: maxTokens, lastRefill: now}
}

// Allow attempts to consume one token at now, refilling first.
func (b *TokenBucket) Allow(now time.Time) bool {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.tokensPerSecond
		if b.tokens > b.maxTokens {
			b.tokens = b.maxTokens
		}
		b.lastRefill = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// TrafficSample is one tick's worth of global traffic counts, fed into the
// Analyzer's rolling baseline.
type TrafficSample struct {
	Connections int
	Packets     int
	Bytes       int64
	UniqueIPs   int
}

// Analyzer tracks a rolling baseline of global traffic and flips emergency
// mode when a sample exceeds spikeThresholdPercent of the baseline.
type Analyzer struct {
	cfg       config.RateLimitConfig
	baseline  TrafficSample
	emergency bool
	mu        sync.Mutex
}

// NewAnalyzer constructs an Analyzer bound to cfg.
func NewAnalyzer(cfg config.RateLimitConfig) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Observe folds one sample into the rolling baseline (simple exponential
// smoothing) and updates emergency-mode state.
func (a *Analyzer) Observe(sample TrafficSample) {
	a.mu.Lock()
	defer a.mu.Unlock()

	spike := exceedsBy(sample.Connections, a.baseline.Connections, a.cfg.SpikeThresholdPercent) ||
		exceedsBy(sample.Packets, a.baseline.Packets, a.cfg.SpikeThresholdPercent) ||
		exceedsBy(int(sample.Bytes), int(a.baseline.Bytes), a.cfg.SpikeThresholdPercent)
	a.emergency = spike

	const smoothing = 0.2
	a.baseline.Connections = blend(a.baseline.Connections, sample.Connections, smoothing)
	a.baseline.Packets = blend(a.baseline.Packets, sample.Packets, smoothing)
	a.baseline.Bytes = int64(blend(int(a.baseline.Bytes), int(sample.Bytes), smoothing))
	a.baseline.UniqueIPs = blend(a.baseline.UniqueIPs, sample.UniqueIPs, smoothing)
}

// EmergencyMode reports whether the analyzer currently believes the zone is
// under a traffic spike.
func (a *Analyzer) EmergencyMode() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.emergency
}

func exceedsBy(current, baseline int, percentThreshold float64) bool {
	if baseline <= 0 {
		return false
	}
	return float64(current) > float64(baseline)*(1+percentThreshold/100)
}

func blend(base, sample int, alpha float64) int {
	return int(float64(base)*(1-alpha) + float64(sample)*alpha)
}

// AllowList holds IPs exempt from every throttle/block below.
type AllowList struct {
	mu  sync.RWMutex
	ips map[string]bool
}

// NewAllowList constructs an empty allow-list.
func NewAllowList() *AllowList {
	return &AllowList{ips: make(map[string]bool)}
}

// Add exempts ip from rate limiting.
func (a *AllowList) Add(ip string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ips[ip] = true
}

// Contains reports whether ip is allow-listed.
func (a *AllowList) Contains(ip string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ips[ip]
}

// BlockList supports manual blockIP/unblockIP independent of the
// sliding-window throttle's automatic blocks.
type BlockList struct {
	mu     sync.Mutex
	blocks map[string]blockEntry
}

type blockEntry struct {
	until  time.Time
	reason string
}

// NewBlockList constructs an empty manual block list.
func NewBlockList() *BlockList {
	return &BlockList{blocks: make(map[string]blockEntry)}
}

// Block manually blocks ip for duration, recording reason.
func (b *BlockList) Block(now time.Time, ip string, duration time.Duration, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blocks[ip] = blockEntry{until: now.Add(duration), reason: reason}
}

// Unblock removes any manual block on ip.
func (b *BlockList) Unblock(ip string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blocks, ip)
}

// IsBlocked reports whether ip is currently manually blocked.
func (b *BlockList) IsBlocked(now time.Time, ip string) (blocked bool, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.blocks[ip]
	if !ok || now.After(e.until) {
		return false, ""
	}
	return true, e.reason
}

// Update decays every expired manual block; called once per tick.
func (b *BlockList) Update(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ip, e := range b.blocks {
		if now.After(e.until) {
			delete(b.blocks, ip)
		}
	}
}

// CircuitState is the breaker's current phase.
type CircuitState int

const (
	Closed CircuitState = iota
	Open
	HalfOpen
)

// CircuitBreaker guards an external-service call (persistence writes) with
// the CLOSED→OPEN→HALF_OPEN→CLOSED state machine.
type CircuitBreaker struct {
	cfg   config.RateLimitConfig
	mu    sync.Mutex
	state CircuitState

	consecutiveFailures int
	consecutiveSuccess  int
	openedAt            time.Time
}

// NewCircuitBreaker constructs a breaker in the CLOSED state.
func NewCircuitBreaker(cfg config.RateLimitConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg}
}

// Allow reports whether a call should be attempted right now, transitioning
// OPEN→HALF_OPEN once the configured timeout elapses.
func (c *CircuitBreaker) Allow(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Closed:
		return true
	case Open:
		if now.Sub(c.openedAt) >= c.cfg.CircuitTimeout {
			c.state = HalfOpen
			c.consecutiveSuccess = 0
			return true
		}
		return false
	default: // HalfOpen
		return true
	}
}

// RecordSuccess reports a successful call, closing the breaker from
// HALF_OPEN once CircuitSuccessThresh consecutive successes accrue.
func (c *CircuitBreaker) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveFailures = 0
	switch c.state {
	case HalfOpen:
		c.consecutiveSuccess++
		if c.consecutiveSuccess >= c.cfg.CircuitSuccessThresh {
			c.state = Closed
		}
	case Open:
		// shouldn't normally be reachable, but keep state sane.
		c.state = Closed
	}
}

// RecordFailure reports a failed call, opening the breaker once
// CircuitFailureThresh consecutive failures accrue (or immediately on any
// failure while HALF_OPEN).
func (c *CircuitBreaker) RecordFailure(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == HalfOpen {
		c.state = Open
		c.openedAt = now
		return
	}
	c.consecutiveFailures++
	if c.consecutiveFailures >= c.cfg.CircuitFailureThresh {
		c.state = Open
		c.openedAt = now
	}
}

// State returns the breaker's current phase.
func (c *CircuitBreaker) State() CircuitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
