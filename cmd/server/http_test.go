package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"railrush.io/internal/persistence/indexdb"
	"railrush.io/internal/protocol"
	"railrush.io/internal/sim/directory"
)

type fakeStatus struct {
	stats directory.Stats
	err   error
}

func (f fakeStatus) Stats(context.Context) (directory.Stats, error) { return f.stats, f.err }
func (f fakeStatus) Metrics() directory.Metrics {
	return directory.Metrics{Tick: 42, Rooms: 2, Players: 3, StepMS: 0.5, DroppedSends: 7}
}

type fakeStore struct {
	lastLimit int
	entries   []protocol.LeaderboardEntry
}

func (f *fakeStore) RecordPlayerOutcome(directory.PlayerOutcome) {}
func (f *fakeStore) UpsertLeaderboard(string, string, int)       {}
func (f *fakeStore) RecordRoomSession(directory.RoomSession)     {}
func (f *fakeStore) Leaderboard(_ context.Context, limit int) ([]protocol.LeaderboardEntry, error) {
	f.lastLimit = limit
	return f.entries, nil
}
func (f *fakeStore) GameStats(context.Context, time.Time) (indexdb.GameStats, error) {
	return indexdb.GameStats{TotalGames: 5}, nil
}
func (f *fakeStore) Cleanup(context.Context, time.Time) (int64, int64, error) { return 0, 0, nil }
func (f *fakeStore) Health(context.Context) error                             { return nil }
func (f *fakeStore) Close() error                                             { return nil }

type fakeCache struct {
	states map[string][]byte
	err    error
}

func (f *fakeCache) RoomState(_ context.Context, id string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.states[id], nil
}
func (f *fakeCache) Health(context.Context) error { return f.err }
func (f *fakeCache) Dropped() uint64              { return 3 }

type fakeBus struct{ up bool }

func (f fakeBus) Connected() bool   { return f.up }
func (f fakeBus) Published() uint64 { return 11 }
func (f fakeBus) Failed() uint64    { return 1 }

func newTestRouter(status statusSource, store statsStore) http.Handler {
	d := httpDeps{
		Sessions: status,
		Started:  time.Now().Add(-10 * time.Second),
		Log:      log.New(io.Discard, "", 0),
	}
	if store != nil {
		d.Store = store
	}
	return newRouter(d)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestHealth(t *testing.T) {
	h := newTestRouter(fakeStatus{stats: directory.Stats{TotalPlayers: 4}}, nil)
	rr := get(t, h, "/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("code=%d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body["status"] != "ok" || body["current_player_count"] != float64(4) {
		t.Fatalf("body=%v", body)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}
}

func TestHealth_DirectoryDown(t *testing.T) {
	h := newTestRouter(fakeStatus{err: directory.ErrClosed}, nil)
	if rr := get(t, h, "/health"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("code=%d", rr.Code)
	}
}

func TestStats(t *testing.T) {
	h := newTestRouter(fakeStatus{stats: directory.Stats{ActiveRooms: 2, TotalPlayers: 7}}, &fakeStore{})
	rr := get(t, h, "/stats")
	var body statsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.ActiveRooms != 2 || body.TotalPlayers != 7 || body.ProcessUptime < 10 {
		t.Fatalf("body=%+v", body)
	}
	if body.Games == nil || body.Games.TotalGames != 5 {
		t.Fatalf("games=%+v", body.Games)
	}
}

func TestLeaderboard(t *testing.T) {
	store := &fakeStore{entries: []protocol.LeaderboardEntry{{Rank: 1, PlayerID: "p", Name: "P", Score: 9}}}
	h := newTestRouter(fakeStatus{}, store)

	rr := get(t, h, "/leaderboard")
	if rr.Code != http.StatusOK || store.lastLimit != indexdb.DefaultLeaderboardLimit {
		t.Fatalf("code=%d limit=%d", rr.Code, store.lastLimit)
	}
	var entries []protocol.LeaderboardEntry
	if err := json.Unmarshal(rr.Body.Bytes(), &entries); err != nil || len(entries) != 1 || entries[0].Score != 9 {
		t.Fatalf("entries=%+v err=%v", entries, err)
	}

	get(t, h, "/leaderboard?limit=3")
	if store.lastLimit != 3 {
		t.Fatalf("limit=%d", store.lastLimit)
	}
	if rr := get(t, h, "/leaderboard?limit=abc"); rr.Code != http.StatusBadRequest {
		t.Fatalf("code=%d", rr.Code)
	}
}

func TestLeaderboard_Disabled(t *testing.T) {
	h := newTestRouter(fakeStatus{}, nil)
	if rr := get(t, h, "/leaderboard"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("code=%d", rr.Code)
	}
}

func TestMetrics(t *testing.T) {
	h := newTestRouter(fakeStatus{}, nil)
	body := get(t, h, "/metrics").Body.String()
	for _, want := range []string{
		"railrush_tick 42",
		"railrush_rooms 2",
		"railrush_step_ms 0.500",
		"railrush_dropped_sends_total 7",
		`railrush_queue_depth{queue="input"} 0`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestPreflight(t *testing.T) {
	h := newTestRouter(fakeStatus{}, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/leaderboard", nil))
	if rr.Code != http.StatusOK || rr.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Fatalf("code=%d headers=%v", rr.Code, rr.Header())
	}
}

func TestRoomState(t *testing.T) {
	d := httpDeps{
		Sessions: fakeStatus{},
		Cache:    &fakeCache{states: map[string][]byte{"ABC123": []byte(`{"type":"GAME_STATE","tick":9}`)}},
		Log:      log.New(io.Discard, "", 0),
	}
	h := newRouter(d)

	rr := get(t, h, "/rooms/ABC123/state")
	if rr.Code != http.StatusOK || rr.Body.String() != `{"type":"GAME_STATE","tick":9}` {
		t.Fatalf("code=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr := get(t, h, "/rooms/NOPE00/state"); rr.Code != http.StatusNotFound {
		t.Fatalf("missing room code=%d", rr.Code)
	}

	d.Cache = &fakeCache{err: errors.New("redis down")}
	if rr := get(t, newRouter(d), "/rooms/ABC123/state"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("cache error code=%d", rr.Code)
	}
	if rr := get(t, newTestRouter(fakeStatus{}, nil), "/rooms/ABC123/state"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("no cache code=%d", rr.Code)
	}
}

func TestHealth_ReportsCacheAndBus(t *testing.T) {
	d := httpDeps{
		Sessions: fakeStatus{},
		Cache:    &fakeCache{},
		Bus:      fakeBus{up: false},
		Log:      log.New(io.Discard, "", 0),
	}
	rr := get(t, newRouter(d), "/health")
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body["room_cache"] != "ok" || body["event_bus"] != "disconnected" {
		t.Fatalf("body=%v", body)
	}

	d.Bus = fakeBus{up: true}
	rr = get(t, newRouter(d), "/metrics")
	for _, want := range []string{"railrush_eventbus_connected 1", "railrush_eventbus_published_total 11", "railrush_roomcache_dropped_total 3"} {
		if !strings.Contains(rr.Body.String(), want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}
