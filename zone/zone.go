// Package zone wires every simulation collaborator — entity store, spatial
// hash, movement/combat/anti-cheat systems, lag compensation, replication,
// aura/migration/handoff, persistence, and the wire protocol — into the
// single-threaded tick loop: one simulation goroutine owns all of this
// state and never shares
// it directly with the background transport/persistence/pub-sub goroutines,
// which communicate through the mutex-protected queues and atomics built
// into transport.InputPump, the persistence outbox, and metrics.Registry.
package zone

import (
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aycrith/darkages-zoned/anticheat"
	"github.com/aycrith/darkages-zoned/aura"
	"github.com/aycrith/darkages-zoned/auth"
	"github.com/aycrith/darkages-zoned/combat"
	"github.com/aycrith/darkages-zoned/config"
	"github.com/aycrith/darkages-zoned/ecs"
	"github.com/aycrith/darkages-zoned/fixedpoint"
	"github.com/aycrith/darkages-zoned/handoff"
	"github.com/aycrith/darkages-zoned/history"
	"github.com/aycrith/darkages-zoned/logging"
	"github.com/aycrith/darkages-zoned/memory"
	"github.com/aycrith/darkages-zoned/messenger"
	"github.com/aycrith/darkages-zoned/metrics"
	"github.com/aycrith/darkages-zoned/migration"
	"github.com/aycrith/darkages-zoned/movement"
	"github.com/aycrith/darkages-zoned/persistence"
	"github.com/aycrith/darkages-zoned/protocol"
	"github.com/aycrith/darkages-zoned/ratelimit"
	"github.com/aycrith/darkages-zoned/replication"
	"github.com/aycrith/darkages-zoned/spatial"
	"github.com/aycrith/darkages-zoned/transport"
)

// Zone owns every piece of per-process simulation state and runs the tick
// loop. All of its fields below the embedded systems are touched only
// by the goroutine executing Run — nothing here is safe for concurrent
// access except the explicitly-synchronized collaborators (InputPump,
// outbox, Registry) that background goroutines also reach into.
type Zone struct {
	cfg    *config.Config
	logger *logging.Logger

	// Core simulation state (never shared, single-goroutine owned).
	store   *ecs.Store
	hash    *spatial.Hash
	arena   *memory.Arena
	rings   map[ecs.Entity]*history.Ring
	profile map[uint64]*anticheat.BehaviorProfile // keyed by playerID, survives reconnects

	// Systems.
	movement     *movement.System
	anticheat    *anticheat.Detector
	compensator  *history.Compensator
	combat       *combat.System
	replication  *replication.Optimizer
	tracker      *replication.Tracker
	aura         *aura.Manager
	migrationMgr *migration.Manager
	handoffCtl   *handoff.Controller
	validator    *protocol.Validator
	auth         authVerifier
	partitions   handoff.PartitionLookup

	// ghosts indexes adjacent-zone entities projected into our aura by
	// (sourceZone, remoteEntityId), so a repeated EntitySync envelope
	// updates the same local ghost entity instead of creating a new one.
	ghosts map[uint32]map[uint32]ecs.Entity

	// crossZone is the queue crosszone.go's background pub/sub reader
	// feeds and updateGameLogic drains once per tick (the handler pushes
	// into the mutex-protected queue the simulation goroutine drains).
	crossZone chan messenger.Envelope

	// Background collaborators.
	pump      *transport.InputPump
	webrtc    *transport.WebRTCManager
	msgr      *messenger.Messenger
	hot       persistence.HotStore
	cold      persistence.ColdStore
	breaker   *ratelimit.CircuitBreaker
	throttle  *ratelimit.ConnectionThrottle
	analyzer  *ratelimit.Analyzer
	allowList *ratelimit.AllowList
	blockList *ratelimit.BlockList
	registry  *metrics.Registry
	outbox    *persistenceOutbox

	// Connection bookkeeping.
	connMu      sync.Mutex
	connections map[transport.Channel]*connection
	byPlayer    map[uint64]*connection
	nextConnID  uint32

	// Tick/QoS state, touched only by the simulation goroutine.
	trafficPackets       int64
	trafficBytes         int64
	tick                 uint64
	startedAt            time.Time
	degraded             bool
	skipReplicationTicks int
	lastAuraSync         time.Time

	shutdown atomic.Bool
	rng      *rand.Rand
}

// authVerifier is the thin collaborator interface the zone needs from
// package auth, kept narrow so tests can substitute a stub.
type authVerifier interface {
	Verify(tokenString string) (*auth.Claims, error)
}

// Deps bundles every externally-constructed collaborator New needs. Redis
// and Scylla clients are dialed by main before Zone construction, since
// connection failures there should abort startup rather than surface as a
// degraded runtime state.
type Deps struct {
	Config          *config.Config
	Logger          *logging.Logger
	RedisClient     *redis.Client
	Hot             persistence.HotStore
	Cold            persistence.ColdStore
	Auth            authVerifier
	PartitionLookup handoff.PartitionLookup
}

// New constructs a Zone ready to Run, wiring every subsystem from cfg.
func New(deps Deps) *Zone {
	cfg := deps.Config
	z := &Zone{
		cfg:    cfg,
		logger: deps.Logger,

		store:   ecs.NewStore(4096),
		hash:    spatial.New(int64(cfg.World.SpatialCellSize * fixedpoint.Scale)),
		arena:   memory.NewArena(1 << 20),
		rings:   make(map[ecs.Entity]*history.Ring),
		profile: make(map[uint64]*anticheat.BehaviorProfile),

		movement:    movement.New(cfg.Movement, cfg.World),
		anticheat:   anticheat.New(cfg.AntiCheat),
		compensator: history.NewCompensator(cfg.LagComp.MaxRewindMs, cfg.LagComp.HitTolerance),
		replication: replication.New(cfg.Replication),
		tracker:     replication.NewTracker(),
		aura: aura.New(aura.Rect{
			MinX: cfg.World.MinX, MaxX: cfg.World.MaxX,
			MinZ: cfg.World.MinZ, MaxZ: cfg.World.MaxZ,
		}, cfg.Aura),
		validator: protocol.New(cfg.World, cfg.Validation),

		pump:      transport.NewInputPump(4096),
		hot:       deps.Hot,
		cold:      deps.Cold,
		breaker:   ratelimit.NewCircuitBreaker(cfg.RateLimit),
		throttle:  ratelimit.NewConnectionThrottle(cfg.RateLimit),
		analyzer:  ratelimit.NewAnalyzer(cfg.RateLimit),
		allowList: ratelimit.NewAllowList(),
		blockList: ratelimit.NewBlockList(),
		registry:  metrics.NewRegistry(),

		connections: make(map[transport.Channel]*connection),
		byPlayer:    make(map[uint64]*connection),
		ghosts:      make(map[uint32]map[uint32]ecs.Entity),
		crossZone:   make(chan messenger.Envelope, 256),

		startedAt: time.Now(),
		rng:       rand.New(rand.NewSource(int64(cfg.Zone.ID)<<32 + time.Now().UnixNano())),
	}
	z.auth = deps.Auth
	z.partitions = deps.PartitionLookup
	z.outbox = newPersistenceOutbox(z.hot, z.cold, z.breaker, deps.Logger, 512)
	z.webrtc = transport.NewWebRTCManager(deps.Logger, z.pump)
	z.combat = combat.New(cfg.Combat, z.compensator, z.rng.Float64, z.outbox)
	z.migrationMgr = migration.NewManager(cfg.Zone.ID, cfg.Migration.DefaultTimeout, cfg.Migration.SyncOverlap, z.onMigrationRedirect)
	z.handoffCtl = handoff.New(cfg.Handoff, deps.PartitionLookup)
	if deps.RedisClient != nil {
		z.msgr = messenger.New(deps.RedisClient, deps.Logger, cfg.Zone.ID)
	}
	return z
}

// Registry exposes the metrics registry so main can wire it into an HTTP
// admin server.
func (z *Zone) Registry() *metrics.Registry { return z.registry }

// Pump exposes the input pump so main can hand it to the transport layer.
func (z *Zone) Pump() *transport.InputPump { return z.pump }

// WebRTC exposes the signaling manager so main can mount its HTTP handler.
func (z *Zone) WebRTC() *transport.WebRTCManager { return z.webrtc }

// ServeSignaling delegates to the WebRTC manager after the zone's
// connection-level rate limiting has had a say, matching the ordering
// (the DDoS layer runs ahead of the application protocol).
func (z *Zone) ServeSignaling(w http.ResponseWriter, r *http.Request) {
	remoteAddr := r.RemoteAddr
	now := time.Now()
	if blocked, _ := z.blockList.IsBlocked(now, remoteAddr); blocked {
		http.Error(w, "blocked", http.StatusForbidden)
		return
	}
	if !z.allowList.Contains(remoteAddr) {
		if z.analyzer.EmergencyMode() {
			http.Error(w, "server under load", http.StatusServiceUnavailable)
			return
		}
		if z.throttle.IsBlocked(now, remoteAddr) || !z.throttle.Allow(now, remoteAddr) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}
	if err := z.webrtc.ServeSignaling(w, r, remoteAddr); err != nil {
		z.logger.Warn("signaling failed", map[string]interface{}{"error": err.Error(), "remote": remoteAddr})
	}
}

// RequestShutdown flips the atomic flag Run's loop checks once per tick
// (the "atomic shutdown-requested flag"), letting a signal handler ask for
// a graceful drain without directly touching simulation-goroutine state.
func (z *Zone) RequestShutdown() { z.shutdown.Store(true) }

func (z *Zone) nowMs() int64 {
	return time.Since(z.startedAt).Milliseconds()
}
