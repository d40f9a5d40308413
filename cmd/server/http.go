package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"railrush.io/internal/persistence/indexdb"
	"railrush.io/internal/sim/directory"
)

type statusSource interface {
	Stats(ctx context.Context) (directory.Stats, error)
	Metrics() directory.Metrics
}

// stateCache is the read side of the redis room cache.
type stateCache interface {
	RoomState(ctx context.Context, roomID string) ([]byte, error)
	Health(ctx context.Context) error
	Dropped() uint64
}

type eventBus interface {
	Connected() bool
	Published() uint64
	Failed() uint64
}

type wsEndpoint interface {
	Handler() http.HandlerFunc
	Active() int64
	Rejected() uint64
}

type httpDeps struct {
	Sessions statusSource
	Store    statsStore // nil when the index is disabled
	WS       wsEndpoint
	TickLog  interface{ Dropped() uint64 }
	Cache    stateCache // nil when redis is not configured
	Bus      eventBus   // nil when nats is not configured

	CORSOrigin string
	Pprof      bool
	Started    time.Time
	Log        *log.Logger
}

func newRouter(d httpDeps) http.Handler {
	if d.Log == nil {
		d.Log = log.Default()
	}
	h := &handlers{d: d}

	r := mux.NewRouter()
	r.Use(corsMiddleware(d.CORSOrigin))
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/stats", h.stats).Methods(http.MethodGet)
	r.HandleFunc("/leaderboard", h.leaderboard).Methods(http.MethodGet)
	r.HandleFunc("/metrics", h.metrics).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{id}/state", h.roomState).Methods(http.MethodGet)
	if d.WS != nil {
		r.HandleFunc("/v1/ws", d.WS.Handler())
	}

	if d.Pprof {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.PathPrefix("/debug/pprof/").HandlerFunc(pprof.Index)
	} else {
		d.Log.Printf("pprof endpoints disabled (RR_ENABLE_PPROF_HTTP=false)")
	}
	return r
}

func corsMiddleware(origin string) mux.MiddlewareFunc {
	if origin == "" {
		origin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type handlers struct {
	d httpDeps
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	st, err := h.d.Sessions.Stats(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
		return
	}
	resp := map[string]any{
		"status":               "ok",
		"current_player_count": st.TotalPlayers,
	}
	if h.d.Store != nil {
		if err := h.d.Store.Health(ctx); err != nil {
			resp["store"] = err.Error()
		} else {
			resp["store"] = "ok"
		}
	}
	if h.d.Cache != nil {
		if err := h.d.Cache.Health(ctx); err != nil {
			resp["room_cache"] = err.Error()
		} else {
			resp["room_cache"] = "ok"
		}
	}
	if h.d.Bus != nil {
		if h.d.Bus.Connected() {
			resp["event_bus"] = "ok"
		} else {
			resp["event_bus"] = "disconnected"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// roomState serves the last GAME_STATE frame cached for a room.
func (h *handlers) roomState(w http.ResponseWriter, r *http.Request) {
	if h.d.Cache == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "room cache disabled"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	id := mux.Vars(r)["id"]
	b, err := h.d.Cache.RoomState(ctx, id)
	if err != nil {
		h.d.Log.Printf("room state %s: %v", id, err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "room cache unavailable"})
		return
	}
	if b == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "room not cached"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

type statsResponse struct {
	ActiveRooms   int                `json:"active_room_count"`
	TotalPlayers  int                `json:"total_player_count"`
	Connections   int                `json:"connections"`
	ProcessUptime float64            `json:"process_uptime"`
	Games         *indexdb.GameStats `json:"games,omitempty"`
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	st, err := h.d.Sessions.Stats(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	resp := statsResponse{
		ActiveRooms:   st.ActiveRooms,
		TotalPlayers:  st.TotalPlayers,
		Connections:   st.Connections,
		ProcessUptime: time.Since(h.d.Started).Seconds(),
	}
	if h.d.Store != nil {
		if gs, err := h.d.Store.GameStats(ctx, time.Now()); err == nil {
			resp.Games = &gs
		} else {
			h.d.Log.Printf("stats: game stats: %v", err)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) leaderboard(w http.ResponseWriter, r *http.Request) {
	if h.d.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "leaderboard disabled"})
		return
	}
	limit := indexdb.DefaultLeaderboardLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	entries, err := h.d.Store.Leaderboard(ctx, limit)
	if err != nil {
		h.d.Log.Printf("leaderboard: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "leaderboard unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handlers) metrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
	m := h.d.Sessions.Metrics()

	gauge := func(name, help string, v any) {
		fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE %s gauge\n", name)
		fmt.Fprintf(rw, "%s %v\n", name, v)
	}
	counter := func(name, help string, v uint64) {
		fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE %s counter\n", name)
		fmt.Fprintf(rw, "%s %d\n", name, v)
	}

	gauge("railrush_tick", "Directory tick counter.", m.Tick)
	gauge("railrush_rooms", "Active rooms.", m.Rooms)
	gauge("railrush_players", "Players across all rooms.", m.Players)
	gauge("railrush_connections", "Connections attached to a player.", m.Connections)
	gauge("railrush_step_ms", "Last tick step duration in milliseconds.", fmt.Sprintf("%.3f", m.StepMS))
	counter("railrush_room_faults_total", "Room steps that panicked and were skipped.", m.RoomFaults)
	counter("railrush_dropped_inputs_total", "Inputs dropped because the input queue was full.", m.DroppedInputs)
	counter("railrush_dropped_sends_total", "Outbound frames dropped for clients that fell behind.", m.DroppedSends)

	fmt.Fprintf(rw, "# HELP railrush_queue_depth Directory channel backlog.\n")
	fmt.Fprintf(rw, "# TYPE railrush_queue_depth gauge\n")
	fmt.Fprintf(rw, "railrush_queue_depth{queue=%q} %d\n", "join", m.QueueDepths.Join)
	fmt.Fprintf(rw, "railrush_queue_depth{queue=%q} %d\n", "input", m.QueueDepths.Input)
	fmt.Fprintf(rw, "railrush_queue_depth{queue=%q} %d\n", "place", m.QueueDepths.Place)
	fmt.Fprintf(rw, "railrush_queue_depth{queue=%q} %d\n", "leave", m.QueueDepths.Leave)

	if h.d.WS != nil {
		gauge("railrush_ws_active", "Websocket connections past the handshake.", h.d.WS.Active())
		counter("railrush_ws_rejected_total", "Websocket handshakes that failed.", h.d.WS.Rejected())
	}
	if h.d.TickLog != nil {
		counter("railrush_ticklog_dropped_total", "Tick log entries dropped because the writer fell behind.", h.d.TickLog.Dropped())
	}
	if idx, ok := h.d.Store.(*indexdb.SQLiteIndex); ok {
		st := idx.Stats()
		gauge("railrush_index_queue_depth", "Index writer backlog.", st.QueueDepth)
		counter("railrush_index_dropped_total", "Index writes dropped because the queue was full.",
			st.DropOutcome+st.DropBoard+st.DropSession+st.DropSnapshot+st.DropTick)
	}
	if h.d.Cache != nil {
		counter("railrush_roomcache_dropped_total", "Room cache writes dropped because the queue was full.", h.d.Cache.Dropped())
	}
	if h.d.Bus != nil {
		connected := 0
		if h.d.Bus.Connected() {
			connected = 1
		}
		gauge("railrush_eventbus_connected", "1 while the NATS connection is up.", connected)
		counter("railrush_eventbus_published_total", "Room events published to the bus.", h.d.Bus.Published())
		counter("railrush_eventbus_failed_total", "Room events that failed to publish.", h.d.Bus.Failed())
	}
}
