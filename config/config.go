// Package config loads the zone process's configuration as a layered
// override chain: defaults, then a YAML file, then environment variables,
// then CLI flags, each layer overriding the previous one. The result is an
// explicitly constructed *Config passed into every subsystem constructor —
// there is no package-level global.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aycrith/darkages-zoned/logging"
)

// Config is the complete zone configuration tree.
type Config struct {
	Zone        ZoneConfig        `yaml:"zone"`
	World       WorldConfig       `yaml:"world"`
	Movement    MovementConfig    `yaml:"movement"`
	AntiCheat   AntiCheatConfig   `yaml:"anti_cheat"`
	Combat      CombatConfig      `yaml:"combat"`
	LagComp     LagCompConfig     `yaml:"lag_compensation"`
	Replication ReplicationConfig `yaml:"replication"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Aura        AuraConfig        `yaml:"aura"`
	Migration   MigrationConfig   `yaml:"migration"`
	Handoff     HandoffConfig     `yaml:"handoff"`
	Redis       RedisConfig       `yaml:"redis"`
	Scylla      ScyllaConfig      `yaml:"scylla"`
	Auth        AuthConfig        `yaml:"auth"`
	Logging     logging.Config    `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Protocol    ProtocolConfig    `yaml:"protocol"`
	Validation  ValidationConfig  `yaml:"validation"`
}

// ProtocolConfig carries the handshake version-compatibility rule.
type ProtocolConfig struct {
	VersionMajor uint8 `yaml:"version_major"`
	VersionMinor uint8 `yaml:"version_minor"`
}

// ValidationConfig carries the packet validator limits.
type ValidationConfig struct {
	MaxRotationRateDegPerSec float64 `yaml:"max_rotation_rate_deg_per_sec"`
	MaxAbilityID             uint32  `yaml:"max_ability_id"`
	MaxAttackRange           float64 `yaml:"max_attack_range"`
	MaxPlayerNameLength      int     `yaml:"max_player_name_length"`
	MaxChatMessageLength     int     `yaml:"max_chat_message_length"`
	MinPacketSize            int     `yaml:"min_packet_size"`
	MaxPacketSize            int     `yaml:"max_packet_size"`
	MinInputSequenceDelta    uint32  `yaml:"min_input_sequence_delta"`
	MaxInputSequenceDelta    uint32  `yaml:"max_input_sequence_delta"`
}

// ZoneConfig identifies this process and its listen address.
type ZoneConfig struct {
	ID         uint32 `yaml:"id"`
	Port       int    `yaml:"port"`
	TickRateHz int    `yaml:"tick_rate_hz"`
}

// WorldConfig describes the rectangle this zone owns.
type WorldConfig struct {
	MinX            float64 `yaml:"min_x"`
	MaxX            float64 `yaml:"max_x"`
	MinZ            float64 `yaml:"min_z"`
	MaxZ            float64 `yaml:"max_z"`
	MinY            float64 `yaml:"min_y"`
	MaxY            float64 `yaml:"max_y"`
	SpatialCellSize float64 `yaml:"spatial_cell_size"`
}

// MovementConfig carries the physical movement constants.
type MovementConfig struct {
	MaxPlayerSpeed float64 `yaml:"max_player_speed"`
	MaxSprintSpeed float64 `yaml:"max_sprint_speed"`
	SprintMult     float64 `yaml:"sprint_multiplier"`
	Acceleration   float64 `yaml:"acceleration"`
	Friction       float64 `yaml:"friction"`
	SpeedTolerance float64 `yaml:"speed_tolerance"`
}

// AntiCheatConfig carries the detector thresholds.
type AntiCheatConfig struct {
	ViolationWindow     int     `yaml:"violation_window"`
	NewPlayerGraceSecs  int64   `yaml:"new_player_grace_seconds"`
	TrustDecayPerTick   float64 `yaml:"trust_decay_per_tick"`
	TrustGainPerTick    float64 `yaml:"trust_gain_per_tick"`
	TrustStrictBelow    float64 `yaml:"trust_strict_threshold"`
	MaxDamagePerHit     uint32  `yaml:"max_damage_per_hit"`
	MaxHitboxRangeBonus float64 `yaml:"max_hitbox_range_bonus"`
}

// CombatConfig carries the attack resolution constants.
type CombatConfig struct {
	MeleeAngleRadians float64       `yaml:"melee_angle_radians"`
	MeleeRange        float64       `yaml:"melee_range"`
	RangedAngleRad    float64       `yaml:"ranged_angle_radians"`
	RangedRange       float64       `yaml:"ranged_range"`
	AttackCooldown    time.Duration `yaml:"attack_cooldown"`
	BaseDamage        uint32        `yaml:"base_damage"`
	DamageVariance    float64       `yaml:"damage_variance"`
	CriticalChance    float64       `yaml:"critical_chance"`
	CriticalMult      float64       `yaml:"critical_multiplier"`
	RegenAmount       uint32        `yaml:"regen_amount"`
	RegenInterval     time.Duration `yaml:"regen_interval"`
	RegenIdleWindow   time.Duration `yaml:"regen_idle_window"`
	FriendlyFire      bool          `yaml:"friendly_fire"`
}

// LagCompConfig exposes the open-question resolution: MAX_REWIND_MS is a
// configurable knob, not a compile-time constant.
type LagCompConfig struct {
	MaxRewindMs  int64   `yaml:"max_rewind_ms"`
	HitTolerance float64 `yaml:"hit_tolerance"`
}

// ReplicationConfig carries the AOI tiering.
type ReplicationConfig struct {
	NearRadius             float64 `yaml:"near_radius"`
	MidRadius              float64 `yaml:"mid_radius"`
	FarRadius              float64 `yaml:"far_radius"`
	NearRateHz             int     `yaml:"near_rate_hz"`
	MidRateHz              int     `yaml:"mid_rate_hz"`
	FarRateHz              int     `yaml:"far_rate_hz"`
	MaxEntitiesPerSnapshot int     `yaml:"max_entities_per_snapshot"`
}

// RateLimitConfig carries the DDoS-layer thresholds and the circuit
// breaker tuning for external-service calls.
type RateLimitConfig struct {
	MaxConnectionsPerIP   int           `yaml:"max_connections_per_ip"`
	ConnWindowSeconds     int           `yaml:"conn_window_seconds"`
	BlockDurationSeconds  int           `yaml:"block_duration_seconds"`
	MaxTokens             float64       `yaml:"max_tokens"`
	TokensPerSecond       float64       `yaml:"tokens_per_second"`
	SpikeThresholdPercent float64       `yaml:"spike_threshold_percent"`
	ViolationThreshold    int           `yaml:"violation_threshold"`
	CircuitFailureThresh  int           `yaml:"circuit_failure_threshold"`
	CircuitSuccessThresh  int           `yaml:"circuit_success_threshold"`
	CircuitTimeout        time.Duration `yaml:"circuit_timeout"`
}

// AuraConfig carries the border-overlap constants.
type AuraConfig struct {
	BufferMeters               float64       `yaml:"buffer_meters"`
	OwnershipTransferThreshold float64       `yaml:"ownership_transfer_threshold"`
	SyncInterval               time.Duration `yaml:"sync_interval"`
}

// MigrationConfig carries the state-machine timeout.
type MigrationConfig struct {
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	SyncOverlap    time.Duration `yaml:"sync_overlap"`
}

// HandoffConfig carries the distance thresholds.
type HandoffConfig struct {
	PreparationDistance float64 `yaml:"preparation_distance"`
	AuraEnterDistance   float64 `yaml:"aura_enter_distance"`
	MigrationDistance   float64 `yaml:"migration_distance"`
	HandoffDistance     float64 `yaml:"handoff_distance"`
}

// RedisConfig points at the hot-state KV/pub-sub service.
type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	DB   int    `yaml:"db"`
}

// ScyllaConfig points at the cold wide-column analytics store.
type ScyllaConfig struct {
	Hosts    []string `yaml:"hosts"`
	Port     int      `yaml:"port"`
	Keyspace string   `yaml:"keyspace"`
}

// AuthConfig holds the shared HS256 verification secret for client
// handshake tokens. The zone only verifies; an external service issues.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// MetricsConfig configures the scrape/admin HTTP surface.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Defaults returns a Config populated with the zone's production tuning.
func Defaults() *Config {
	return &Config{
		Zone: ZoneConfig{ID: 1, Port: 9400, TickRateHz: 60},
		World: WorldConfig{
			MinX: 0, MaxX: 1000, MinZ: 0, MaxZ: 1000,
			MinY: -100, MaxY: 500,
			SpatialCellSize: 16,
		},
		Movement: MovementConfig{
			MaxPlayerSpeed: 6, MaxSprintSpeed: 9.6, SprintMult: 1.6,
			Acceleration: 40, Friction: 30, SpeedTolerance: 1.2,
		},
		AntiCheat: AntiCheatConfig{
			ViolationWindow: 30, NewPlayerGraceSecs: 300,
			TrustDecayPerTick: 2.0, TrustGainPerTick: 0.02,
			TrustStrictBelow: 40, MaxDamagePerHit: 500,
			MaxHitboxRangeBonus: 0.5,
		},
		Combat: CombatConfig{
			MeleeAngleRadians: 1.0471975512, MeleeRange: 2.5,
			RangedAngleRad: 0.2617993878, RangedRange: 50,
			AttackCooldown: 500 * time.Millisecond,
			BaseDamage:     20, DamageVariance: 0.15,
			CriticalChance: 0.1, CriticalMult: 2.0,
			RegenAmount: 2, RegenInterval: time.Second,
			RegenIdleWindow: 5 * time.Second,
		},
		LagComp: LagCompConfig{MaxRewindMs: 500, HitTolerance: 0.1},
		Replication: ReplicationConfig{
			NearRadius: 50, MidRadius: 100, FarRadius: 200,
			NearRateHz: 20, MidRateHz: 10, FarRateHz: 5,
			MaxEntitiesPerSnapshot: 64,
		},
		RateLimit: RateLimitConfig{
			MaxConnectionsPerIP: 5, ConnWindowSeconds: 60,
			BlockDurationSeconds: 300,
			MaxTokens:            100, TokensPerSecond: 100,
			SpikeThresholdPercent: 300, ViolationThreshold: 5,
			CircuitFailureThresh: 5, CircuitSuccessThresh: 3,
			CircuitTimeout: 30 * time.Second,
		},
		Aura: AuraConfig{
			BufferMeters: 50, OwnershipTransferThreshold: 25,
			SyncInterval: 50 * time.Millisecond,
		},
		Migration: MigrationConfig{
			DefaultTimeout: 5 * time.Second, SyncOverlap: 500 * time.Millisecond,
		},
		Handoff: HandoffConfig{
			PreparationDistance: 75, AuraEnterDistance: 50,
			MigrationDistance: 25, HandoffDistance: 10,
		},
		Redis:  RedisConfig{Host: "127.0.0.1", Port: 6379},
		Scylla: ScyllaConfig{Hosts: []string{"127.0.0.1"}, Port: 9042, Keyspace: "mmo_zone"},
		Auth:   AuthConfig{JWTSecret: "dev-insecure-change-me"},
		Logging: logging.Config{
			Level: "INFO", LogDir: "/var/log/darkages-zoned",
		},
		Metrics:  MetricsConfig{ListenAddr: ":9600"},
		Protocol: ProtocolConfig{VersionMajor: 1, VersionMinor: 0},
		Validation: ValidationConfig{
			MaxRotationRateDegPerSec: 720,
			MaxAbilityID:             1000,
			MaxAttackRange:           50,
			MaxPlayerNameLength:      32,
			MaxChatMessageLength:     256,
			MinPacketSize:            1,
			MaxPacketSize:            1400,
			MinInputSequenceDelta:    1,
			MaxInputSequenceDelta:    10,
		},
	}
}

// Load builds a Config by layering, in priority order: compiled defaults,
// an optional YAML file, environment variables (DAZ_* prefix), then CLI
// flags parsed from args — flags beat environment variables beat the
// config file beat defaults.
func Load(args []string) (*Config, error) {
	cfg := Defaults()

	fs := flag.NewFlagSet("zone", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	port := fs.Int("port", 0, "listen port")
	zoneID := fs.Uint("zone-id", 0, "zone id")
	redisHost := fs.String("redis-host", "", "hot-state redis host")
	redisPort := fs.Int("redis-port", 0, "hot-state redis port")
	scyllaHost := fs.String("scylla-host", "", "cold-store scylla host")
	scyllaPort := fs.Int("scylla-port", 0, "cold-store scylla port")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", *configPath, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", *configPath, err)
		}
	}

	applyEnv(cfg)

	if *port != 0 {
		cfg.Zone.Port = *port
	}
	if *zoneID != 0 {
		cfg.Zone.ID = uint32(*zoneID)
	}
	if *redisHost != "" {
		cfg.Redis.Host = *redisHost
	}
	if *redisPort != 0 {
		cfg.Redis.Port = *redisPort
	}
	if *scyllaHost != "" {
		cfg.Scylla.Hosts = []string{*scyllaHost}
	}
	if *scyllaPort != 0 {
		cfg.Scylla.Port = *scyllaPort
	}

	return cfg, cfg.validate()
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DAZ_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Zone.Port = n
		}
	}
	if v := os.Getenv("DAZ_ZONE_ID"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Zone.ID = uint32(n)
		}
	}
	if v := os.Getenv("DAZ_REDIS_HOST"); v != "" {
		cfg.Redis.Host = v
	}
	if v := os.Getenv("DAZ_SCYLLA_HOSTS"); v != "" {
		cfg.Scylla.Hosts = strings.Split(v, ",")
	}
	if v := os.Getenv("DAZ_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("DAZ_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToUpper(v)
	}
}

func (c *Config) validate() error {
	if c.Zone.TickRateHz <= 0 {
		return fmt.Errorf("config: zone.tick_rate_hz must be positive")
	}
	if c.World.MaxX <= c.World.MinX || c.World.MaxZ <= c.World.MinZ {
		return fmt.Errorf("config: world bounds must be non-empty")
	}
	if c.World.SpatialCellSize <= 0 {
		return fmt.Errorf("config: world.spatial_cell_size must be positive")
	}
	return nil
}
