// Command zone is the authoritative MMO zone server process entry point.
// One process owns one rectangular world region and runs the 60 Hz tick
// loop described by package zone; this file only handles wiring and
// lifecycle: parse configuration, dial the hot/cold
// collaborators, construct the Zone, start its background goroutines, serve
// the WebRTC signaling + metrics HTTP surface, and drain on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aycrith/darkages-zoned/auth"
	"github.com/aycrith/darkages-zoned/config"
	"github.com/aycrith/darkages-zoned/logging"
	"github.com/aycrith/darkages-zoned/metrics"
	"github.com/aycrith/darkages-zoned/persistence"
	"github.com/aycrith/darkages-zoned/zone"
)

func main() {
	if hasHelpFlag(os.Args[1:]) {
		displayHelp()
		return
	}

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Logging.LogDir, logging.ParseLevel(cfg.Logging.Level), cfg.Logging.TraceModules)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logging init failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	logger.Info("zone server starting", map[string]interface{}{
		"zone_id":      cfg.Zone.ID,
		"port":         cfg.Zone.Port,
		"tick_rate_hz": cfg.Zone.TickRateHz,
	})

	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		DB:   cfg.Redis.DB,
	})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		cancelPing()
		logger.Fatal("redis ping failed", map[string]interface{}{"error": err.Error()})
	}
	cancelPing()

	scyllaSession, err := persistence.NewScyllaCluster(cfg.Scylla.Hosts, cfg.Scylla.Port, cfg.Scylla.Keyspace).CreateSession()
	if err != nil {
		logger.Fatal("scylla session failed", map[string]interface{}{"error": err.Error()})
	}
	defer scyllaSession.Close()

	deps := zone.Deps{
		Config:          cfg,
		Logger:          logger,
		RedisClient:     redisClient,
		Hot:             persistence.NewRedisStore(redisClient),
		Cold:            persistence.NewScyllaStore(scyllaSession),
		Auth:            auth.NewVerifier(cfg.Auth.JWTSecret),
		PartitionLookup: ownZonePartitionLookup(cfg),
	}
	z := zone.New(deps)

	mux := http.NewServeMux()
	mux.HandleFunc("/webrtc/offer", z.ServeSignaling)
	metricsSrv := metrics.NewServer(cfg.Metrics.ListenAddr, z.Registry(), logger)
	metricsErrCh := make(chan error, 1)
	metricsSrv.Start(metricsErrCh)

	signalingSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Zone.Port), Handler: mux}
	signalingErrCh := make(chan error, 1)
	go func() {
		if err := signalingSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			signalingErrCh <- err
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("shutdown signal received", map[string]interface{}{"signal": sig.String()})
		case err := <-metricsErrCh:
			logger.Error("metrics server failed", map[string]interface{}{"error": err.Error()})
		case err := <-signalingErrCh:
			logger.Error("signaling server failed", map[string]interface{}{"error": err.Error()})
		}
		z.RequestShutdown()
	}()

	z.Run(ctx)

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = signalingSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown()

	logger.Info("zone server stopped", map[string]interface{}{"zone_id": cfg.Zone.ID})
}

// ownZonePartitionLookup is the minimal handoff.PartitionLookup a single
// process can offer on its own: it recognizes points inside its own world
// rectangle and otherwise reports no opinion, leaving adjacent-zone
// resolution to the orchestrator-provided partition map (out of scope,
// "orchestrator process-spawning"). A multi-zone deployment replaces
// this with a lookup backed by the orchestrator's partition directory.
func ownZonePartitionLookup(cfg *config.Config) func(x, z float64) (uint32, bool) {
	return func(x, zc float64) (uint32, bool) {
		if x >= cfg.World.MinX && x <= cfg.World.MaxX && zc >= cfg.World.MinZ && zc <= cfg.World.MaxZ {
			return cfg.Zone.ID, true
		}
		return 0, false
	}
}

func hasHelpFlag(args []string) bool {
	for _, a := range args {
		if a == "--help" || a == "-help" || a == "-h" {
			return true
		}
	}
	return false
}

func displayHelp() {
	fmt.Println("zone - authoritative MMO zone server")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  zone [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  --config PATH       YAML config file")
	fmt.Println("  --port PORT         listen port")
	fmt.Println("  --zone-id ID        zone id")
	fmt.Println("  --redis-host HOST   hot-state redis host")
	fmt.Println("  --redis-port PORT   hot-state redis port")
	fmt.Println("  --scylla-host HOST  cold-store scylla host")
	fmt.Println("  --scylla-port PORT  cold-store scylla port")
	fmt.Println("  --help              show this help message")
	fmt.Println()
	fmt.Println("SIGNALS:")
	fmt.Println("  SIGINT, SIGTERM     request a graceful drain and shutdown")
}
