package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"tmgbattle.ai/internal/persistence/indexdb"
	"tmgbattle.ai/internal/sim/arena"
	"tmgbattle.ai/internal/sim/battle"
	"tmgbattle.ai/internal/transport/ws"
)

func newMux(a *arena.Arena, idx *indexdb.SQLiteIndex, wsSrv *ws.Server, enableAdmin bool, logger *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, a.ID(), a.Metrics(), idx.Stats())
	})
	mux.HandleFunc("/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			ArenaID string      `json:"arena_id"`
			Cycle   uint64      `json:"cycle"`
			Battle  battle.View `json:"battle"`
		}{
			ArenaID: a.ID(),
			Cycle:   a.CurrentCycle(),
			Battle:  a.View(),
		}
		_ = json.NewEncoder(rw).Encode(resp)
	})
	if idx != nil {
		mux.HandleFunc("/v1/games", func(rw http.ResponseWriter, r *http.Request) {
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			games, err := idx.Games(r.Context(), limit)
			if err != nil {
				http.Error(rw, err.Error(), http.StatusInternalServerError)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(map[string]any{"games": games})
		})
	}
	if enableAdmin {
		// Local-only; does not affect determinism.
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			cycle, err := a.RequestSnapshot(ctx)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "cycle": cycle, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "cycle": cycle})
		})
	} else {
		logger.Info("admin endpoints disabled (TMG_ENABLE_ADMIN_HTTP=false)")
	}
	if wsSrv != nil {
		mux.HandleFunc("/v1/ws", wsSrv.Handler())
	}
	return mux
}

// writeMetrics emits the minimal Prometheus exposition format.
func writeMetrics(rw http.ResponseWriter, id string, m arena.Metrics, is indexdb.Stats) {
	gauge := func(name, help string, v any) {
		fmt.Fprintf(rw, "# HELP tmgbattle_%s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE tmgbattle_%s gauge\n", name)
		fmt.Fprintf(rw, "tmgbattle_%s{arena=%q} %v\n", name, id, v)
	}
	counter := func(name, help string, v uint64) {
		fmt.Fprintf(rw, "# HELP tmgbattle_%s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE tmgbattle_%s counter\n", name)
		fmt.Fprintf(rw, "tmgbattle_%s{arena=%q} %d\n", name, id, v)
	}

	gauge("arena_cycle", "Last completed arena cycle.", m.Cycle)
	gauge("arena_players", "Registered players.", m.Players)
	gauge("arena_clients", "Attached client sessions.", m.Clients)
	gauge("arena_timers", "Pending delayed self-deliveries.", m.Timers)
	gauge("arena_deferred", "Actions deferred behind a suspended registration.", m.Deferred)
	gauge("arena_suspended", "1 while a registration awaits its owner reply.", boolGauge(m.Suspended))
	gauge("arena_reservations", "Pooled gas vouchers.", m.Reservations)
	gauge("arena_step_ms", "Last cycle step duration in milliseconds.", fmt.Sprintf("%.3f", m.StepMS))
	counter("arena_games_played_total", "Finished games.", m.GamesPlayed)
	counter("arena_invocations_total", "Handled invocations.", m.InvocationsTotal)
	counter("arena_rejections_total", "Rule rejections.", m.RejectionsTotal)

	fmt.Fprintf(rw, "# HELP tmgbattle_arena_state Current battle state (1 for the active state).\n")
	fmt.Fprintf(rw, "# TYPE tmgbattle_arena_state gauge\n")
	for _, st := range []string{"REGISTRATION", "MOVES", "WAITING", "GAME_IS_OVER"} {
		fmt.Fprintf(rw, "tmgbattle_arena_state{arena=%q,state=%q} %d\n", id, st, boolGauge(m.State == st))
	}

	fmt.Fprintf(rw, "# HELP tmgbattle_arena_queue_depth Inbound queue depths.\n")
	fmt.Fprintf(rw, "# TYPE tmgbattle_arena_queue_depth gauge\n")
	fmt.Fprintf(rw, "tmgbattle_arena_queue_depth{arena=%q,queue=%q} %d\n", id, "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(rw, "tmgbattle_arena_queue_depth{arena=%q,queue=%q} %d\n", id, "replies", m.QueueDepths.Replies)
	fmt.Fprintf(rw, "tmgbattle_arena_queue_depth{arena=%q,queue=%q} %d\n", id, "attach", m.QueueDepths.Attach)
	fmt.Fprintf(rw, "tmgbattle_arena_queue_depth{arena=%q,queue=%q} %d\n", id, "leave", m.QueueDepths.Leave)

	if is.QueueCapacity > 0 {
		gauge("index_queue_depth", "Read-model index queue depth.", is.QueueDepth)
		counter("index_dropped_total", "Index writes dropped under backpressure.", is.DropCycleTotal+is.DropAuditTotal+is.DropSnapshotTotal)
	}
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
