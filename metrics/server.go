package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/aycrith/darkages-zoned/logging"
)

// Server exposes the registry and a log tail over HTTP for operators,
// routed through gorilla/mux to stay consistent with the rest of the
// stack's routing.
type Server struct {
	registry *Registry
	logger   *logging.Logger
	httpSrv  *http.Server
}

// NewServer builds the admin HTTP surface; call Start to begin serving.
func NewServer(addr string, registry *Registry, logger *logging.Logger) *Server {
	r := mux.NewRouter()
	s := &Server{registry: registry, logger: logger}

	r.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	r.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
	r.HandleFunc("/logs/tail", s.handleLogTail).Methods("GET")

	s.httpSrv = &http.Server{Addr: addr, Handler: r}
	return s
}

// Start serves in the background. Errors other than a clean shutdown are
// sent to errCh.
func (s *Server) Start(errCh chan<- error) {
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
}

// Shutdown closes the admin HTTP server immediately; open connections are
// dropped rather than drained.
func (s *Server) Shutdown() error {
	return s.httpSrv.Close()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type metricsSnapshot struct {
	TicksProcessed      int64   `json:"ticks_processed"`
	TickOverBudget      int64   `json:"ticks_over_budget"`
	PacketsReceived     int64   `json:"packets_received"`
	PacketsDropped      int64   `json:"packets_dropped"`
	AttacksProcessed    int64   `json:"attacks_processed"`
	ViolationsFlagged   int64   `json:"violations_flagged"`
	MigrationsStarted   int64   `json:"migrations_started"`
	MigrationsCompleted int64   `json:"migrations_completed"`
	MigrationsFailed    int64   `json:"migrations_failed"`
	ConnectedPlayers    int64   `json:"connected_players"`
	EntityCount         int64   `json:"entity_count"`
	AvgEntitiesPerCell  int64   `json:"avg_entities_per_cell"`
	TickCount           int     `json:"tick_duration_samples"`
	TickMeanMs          float64 `json:"tick_duration_mean_ms"`
	TickP95Ms           float64 `json:"tick_duration_p95_ms"`
	TickMaxMs           float64 `json:"tick_duration_max_ms"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	count, mean, p95, max := s.registry.TickDuration.Snapshot()
	snap := metricsSnapshot{
		TicksProcessed:      s.registry.TicksProcessed.Value(),
		TickOverBudget:      s.registry.TickOverBudget.Value(),
		PacketsReceived:     s.registry.PacketsReceived.Value(),
		PacketsDropped:      s.registry.PacketsDropped.Value(),
		AttacksProcessed:    s.registry.AttacksProcessed.Value(),
		ViolationsFlagged:   s.registry.ViolationsFlagged.Value(),
		MigrationsStarted:   s.registry.MigrationsStarted.Value(),
		MigrationsCompleted: s.registry.MigrationsCompleted.Value(),
		MigrationsFailed:    s.registry.MigrationsFailed.Value(),
		ConnectedPlayers:    s.registry.ConnectedPlayers.Value(),
		EntityCount:         s.registry.EntityCount.Value(),
		AvgEntitiesPerCell:  s.registry.AvgEntitiesPerCell.Value(),
		TickCount:           count,
		TickMeanMs:          mean,
		TickP95Ms:           p95,
		TickMaxMs:           max,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}

func (s *Server) handleLogTail(w http.ResponseWriter, r *http.Request) {
	count := 100
	if v := r.URL.Query().Get("n"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			count = n
		}
	}
	if s.logger == nil {
		http.Error(w, "logging not configured", http.StatusServiceUnavailable)
		return
	}
	entries, err := s.logger.ReadLogEntries(count)
	if err != nil {
		http.Error(w, fmt.Sprintf("reading log: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(entries)
}
