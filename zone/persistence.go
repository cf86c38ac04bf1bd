package zone

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aycrith/darkages-zoned/combat"
	"github.com/aycrith/darkages-zoned/fixedpoint"
	"github.com/aycrith/darkages-zoned/logging"
	"github.com/aycrith/darkages-zoned/persistence"
	"github.com/aycrith/darkages-zoned/ratelimit"
)

// persistenceOutbox is the zone's fire-and-forget write path: the
// simulation goroutine never blocks on Redis/Scylla I/O, it only enqueues
// a closure onto a buffered channel a small worker pool drains. The
// circuit breaker guards the pool from hammering a store that's down.
type persistenceOutbox struct {
	hot     persistence.HotStore
	cold    persistence.ColdStore
	breaker *ratelimit.CircuitBreaker
	logger  *logging.Logger
	jobs    chan func(context.Context)
	done    chan struct{}
}

const outboxWorkers = 4

// newPersistenceOutbox starts outboxWorkers background goroutines draining
// a buffered job queue of size capacity.
func newPersistenceOutbox(hot persistence.HotStore, cold persistence.ColdStore, breaker *ratelimit.CircuitBreaker, logger *logging.Logger, capacity int) *persistenceOutbox {
	o := &persistenceOutbox{
		hot: hot, cold: cold, breaker: breaker, logger: logger,
		jobs: make(chan func(context.Context), capacity),
		done: make(chan struct{}),
	}
	for i := 0; i < outboxWorkers; i++ {
		go o.worker()
	}
	return o
}

func (o *persistenceOutbox) worker() {
	for {
		select {
		case <-o.done:
			return
		case job := <-o.jobs:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			job(ctx)
			cancel()
		}
	}
}

// enqueue drops the job rather than blocking the simulation goroutine if
// the outbox is saturated — a lost hot-state write is recoverable (the next
// tick's write supersedes it), unlike a stalled tick.
func (o *persistenceOutbox) enqueue(job func(context.Context)) {
	select {
	case o.jobs <- job:
	default:
		if o.logger != nil {
			o.logger.Warn("persistence outbox saturated, dropping write")
		}
	}
}

func (o *persistenceOutbox) guarded(now time.Time, fn func(ctx context.Context) error) func(context.Context) {
	return func(ctx context.Context) {
		if o.breaker != nil && !o.breaker.Allow(now) {
			return
		}
		err := fn(ctx)
		if o.breaker == nil {
			return
		}
		if err != nil {
			o.breaker.RecordFailure(now)
			if o.logger != nil {
				o.logger.Warn("persistence write failed", map[string]interface{}{"error": err.Error()})
			}
			return
		}
		o.breaker.RecordSuccess()
	}
}

// SaveSession enqueues a hot-state session upsert.
func (o *persistenceOutbox) SaveSession(now time.Time, session persistence.PlayerSession) {
	if o.hot == nil {
		return
	}
	o.enqueue(o.guarded(now, func(ctx context.Context) error { return o.hot.SaveSession(ctx, session) }))
}

// DeleteSession enqueues a hot-state session teardown on disconnect.
func (o *persistenceOutbox) DeleteSession(now time.Time, playerID uint64) {
	if o.hot == nil {
		return
	}
	o.enqueue(o.guarded(now, func(ctx context.Context) error { return o.hot.DeleteSession(ctx, playerID) }))
}

// SavePosition enqueues a periodic position checkpoint.
func (o *persistenceOutbox) SavePosition(now time.Time, playerID uint64, pos fixedpoint.Vec3) {
	if o.hot == nil {
		return
	}
	o.enqueue(o.guarded(now, func(ctx context.Context) error { return o.hot.SavePosition(ctx, playerID, pos) }))
}

// SaveZoneStatus enqueues the load-reporting heartbeat an orchestrator
// polls from zone:<id>:status.
func (o *persistenceOutbox) SaveZoneStatus(now time.Time, status persistence.ZoneStatus) {
	if o.hot == nil {
		return
	}
	o.enqueue(o.guarded(now, func(ctx context.Context) error { return o.hot.SaveZoneStatus(ctx, status) }))
}

// AddZonePlayer/RemoveZonePlayer enqueue the zone's player-set membership.
func (o *persistenceOutbox) AddZonePlayer(now time.Time, zoneID uint32, playerID uint64) {
	if o.hot == nil {
		return
	}
	o.enqueue(o.guarded(now, func(ctx context.Context) error { return o.hot.AddZonePlayer(ctx, zoneID, playerID) }))
}

func (o *persistenceOutbox) RemoveZonePlayer(now time.Time, zoneID uint32, playerID uint64) {
	if o.hot == nil {
		return
	}
	o.enqueue(o.guarded(now, func(ctx context.Context) error { return o.hot.RemoveZonePlayer(ctx, zoneID, playerID) }))
}

// RecordCombatEvent implements combat.EventSink: every resolved attack and
// death is translated into a cold-store row and enqueued.
func (o *persistenceOutbox) RecordCombatEvent(e combat.CombatEvent) {
	if o.cold == nil {
		return
	}
	now := time.Now()
	rec := persistence.CombatEventRecord{
		EventID:      uuid.NewString(),
		ZoneID:       e.ZoneID,
		EventTime:    now,
		AttackerID:   e.AttackerID,
		TargetID:     e.TargetID,
		EventType:    e.EventType,
		DamageAmount: e.DamageAmount,
		IsCritical:   e.IsCritical,
		WeaponType:   uint8(e.WeaponType),
		PosX:         e.Position.X,
		PosY:         e.Position.Y,
		PosZ:         e.Position.Z,
		ServerTick:   e.ServerTick,
	}
	o.enqueue(o.guarded(now, func(ctx context.Context) error { return o.cold.RecordCombatEvent(ctx, rec) }))

	if e.EventType != "death" {
		return
	}
	delta := persistence.PlayerCombatStatsDelta{
		PlayerID:    e.TargetID,
		SessionDate: now.Format("2006-01-02"),
		Deaths:      1,
	}
	killer := persistence.PlayerCombatStatsDelta{
		PlayerID:    e.AttackerID,
		SessionDate: now.Format("2006-01-02"),
		Kills:       1,
	}
	o.enqueue(o.guarded(now, func(ctx context.Context) error { return o.cold.ApplyCombatStatsDelta(ctx, delta) }))
	o.enqueue(o.guarded(now, func(ctx context.Context) error { return o.cold.ApplyCombatStatsDelta(ctx, killer) }))
}

// Close runs every job still queued, then stops every worker goroutine.
// Called once during shutdown drain after the last tick's writes have been
// enqueued.
func (o *persistenceOutbox) Close() {
	for {
		select {
		case job := <-o.jobs:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			job(ctx)
			cancel()
		default:
			close(o.done)
			return
		}
	}
}

var _ combat.EventSink = (*persistenceOutbox)(nil)
