package indexdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"railrush.io/internal/persistence/snapshot"
	"railrush.io/internal/sim/directory"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: directory.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(directory.TickLogEntry{Tick: 2, Fault: true})
	s.RecordPlayerOutcome(directory.PlayerOutcome{PlayerID: "p"})
	s.UpsertLeaderboard("p", "P", 1)
	s.RecordRoomSession(directory.RoomSession{SessionID: "s"})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.RoomV1{})

	st := s.Stats()
	if st.DropTick != 1 || st.DropOutcome != 1 || st.DropBoard != 1 || st.DropSession != 1 || st.DropSnapshot != 1 {
		t.Fatalf("drop counters: %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_NilIsNoop(t *testing.T) {
	var s *SQLiteIndex
	s.RecordPlayerOutcome(directory.PlayerOutcome{})
	s.UpsertLeaderboard("p", "P", 1)
	if err := s.WriteTick(directory.TickLogEntry{}); err != nil {
		t.Fatalf("WriteTick: %v", err)
	}
	if st := s.Stats(); st.QueueCapacity != 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func openTemp(t *testing.T) (string, *SQLiteIndex) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index", "railrush.sqlite")
	s, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return path, s
}

// reopen closes s, which drains the write queue, and opens the same file again.
func reopen(t *testing.T, path string, s *SQLiteIndex) *SQLiteIndex {
	t.Helper()
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	s2, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = s2.Close() })
	return s2
}

func TestSQLiteIndex_LeaderboardKeepsBestScoreAndRanks(t *testing.T) {
	path, s := openTemp(t)
	s.UpsertLeaderboard("a", "Alice", 30)
	s.UpsertLeaderboard("b", "Bob", 50)
	s.UpsertLeaderboard("c", "Cara", 10)
	s.UpsertLeaderboard("a", "Alice2", 20)
	s.UpsertLeaderboard("c", "Cara", 70)
	s = reopen(t, path, s)

	got, err := s.Leaderboard(context.Background(), 0)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("entries=%+v", got)
	}
	want := []struct {
		id    string
		score int64
	}{{"c", 70}, {"b", 50}, {"a", 30}}
	for i, w := range want {
		if got[i].PlayerID != w.id || got[i].Score != w.score || got[i].Rank != i+1 {
			t.Fatalf("entry %d = %+v, want %s/%d rank %d", i, got[i], w.id, w.score, i+1)
		}
	}
	if got[2].Name != "Alice2" {
		t.Fatalf("name not refreshed: %+v", got[2])
	}

	top, err := s.Leaderboard(context.Background(), 1)
	if err != nil || len(top) != 1 || top[0].PlayerID != "c" {
		t.Fatalf("limit 1: %+v err=%v", top, err)
	}
}

func TestSQLiteIndex_PlayerOutcomesAccumulate(t *testing.T) {
	path, s := openTemp(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.RecordPlayerOutcome(directory.PlayerOutcome{PlayerID: "p1", Name: "A", Score: 10, RailsPlaced: 3, Reason: "off_rails", At: at})
	s.RecordPlayerOutcome(directory.PlayerOutcome{PlayerID: "p1", Name: "A", Score: 5, RailsPlaced: 2, At: at.Add(time.Minute)})
	s.RecordPlayerOutcome(directory.PlayerOutcome{PlayerID: "p2", Name: "B", Score: 1, At: at})
	s = reopen(t, path, s)

	rows, err := s.Players(context.Background(), 10)
	if err != nil {
		t.Fatalf("players: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows=%+v", rows)
	}
	p := rows[0]
	if p.PlayerID != "p1" || p.TotalScore != 15 || p.GamesPlayed != 2 || p.TotalRailsPlaced != 5 {
		t.Fatalf("p1=%+v", p)
	}
	if p.LastSeen != ts(at.Add(time.Minute)) {
		t.Fatalf("last_seen=%q", p.LastSeen)
	}
}

func TestSQLiteIndex_SessionsStatsAndCleanup(t *testing.T) {
	path, s := openTemp(t)
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	s.RecordRoomSession(directory.RoomSession{SessionID: "old", RoomID: "R1", PeakPlayers: 4, StartedAt: now.Add(-31 * 24 * time.Hour), EndedAt: now.Add(-31*24*time.Hour + time.Minute)})
	s.RecordRoomSession(directory.RoomSession{SessionID: "new", RoomID: "R2", PeakPlayers: 2, StartedAt: now.Add(-10 * time.Minute), EndedAt: now.Add(-5 * time.Minute)})
	s = reopen(t, path, s)
	ctx := context.Background()

	st, err := s.GameStats(ctx, now)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalGames != 2 || st.AvgPlayersPerGame != 3 || st.GamesLastHour != 1 {
		t.Fatalf("stats=%+v", st)
	}

	sessions, _, err := s.Cleanup(ctx, now)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if sessions != 1 {
		t.Fatalf("cleaned=%d want 1", sessions)
	}
	rows, err := s.Sessions(ctx, 0)
	if err != nil || len(rows) != 1 || rows[0].SessionID != "new" || rows[0].DurationMS != 5*60*1000 {
		t.Fatalf("rows=%+v err=%v", rows, err)
	}
}

func TestSQLiteIndex_SnapshotsAndTicks(t *testing.T) {
	path, s := openTemp(t)
	snap := snapshot.RoomV1{
		Header:  snapshot.Header{Version: snapshot.Version, RoomID: "ABC123", Tick: 40, TakenAt: 1000},
		Seed:    7,
		Players: []snapshot.PlayerV1{{ID: "p1"}},
	}
	s.RecordSnapshot("/data/snapshots/ABC123/40.snap.zst", snap)
	join := []directory.RecordedCommand{{Kind: directory.CmdJoin, At: 1040, PlayerID: "p2"}}
	_ = s.WriteTick(directory.TickLogEntry{RoomID: "ABC123", Tick: 41, Now: 1050, Commands: join, Digest: "x"})
	_ = s.WriteTick(directory.TickLogEntry{RoomID: "ABC123", Tick: 42, Now: 1100, Digest: "idle"})
	s = reopen(t, path, s)

	rows, err := s.Snapshots(context.Background(), "ABC123", 0)
	if err != nil || len(rows) != 1 {
		t.Fatalf("rows=%+v err=%v", rows, err)
	}
	if rows[0].Tick != 40 || rows[0].Seed != 7 || rows[0].Players != 1 {
		t.Fatalf("row=%+v", rows[0])
	}

	var digest string
	if err := s.db.QueryRow(`SELECT digest FROM ticks WHERE room_id=? AND tick=?`, "ABC123", 41).Scan(&digest); err != nil {
		t.Fatalf("tick row: %v", err)
	}
	if digest != "x" {
		t.Fatalf("digest=%q", digest)
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM ticks`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("tick rows=%d err=%v (idle ticks are not indexed)", n, err)
	}
}

func TestSQLiteIndex_CleanupPrunesReplayIndex(t *testing.T) {
	path, s := openTemp(t)
	now := time.UnixMilli(1_700_000_000_000)
	cmds := []directory.RecordedCommand{{Kind: directory.CmdLeave, PlayerID: "p1"}}
	for i := 0; i < 500; i++ {
		at := now.Add(-8 * 24 * time.Hour).Add(time.Duration(i) * 50 * time.Millisecond)
		_ = s.WriteTick(directory.TickLogEntry{RoomID: "OLD001", Tick: uint64(i + 1), Now: at.UnixMilli(), Commands: cmds, Digest: "d"})
	}
	_ = s.WriteTick(directory.TickLogEntry{RoomID: "NEW001", Tick: 1, Now: now.UnixMilli(), Commands: cmds, Digest: "d"})

	kept := filepath.Join(t.TempDir(), "10.snap.zst")
	if err := os.WriteFile(kept, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s.RecordSnapshot(kept, snapshot.RoomV1{Header: snapshot.Header{RoomID: "NEW001", Tick: 10}})
	s.RecordSnapshot(filepath.Join(t.TempDir(), "missing.snap.zst"), snapshot.RoomV1{Header: snapshot.Header{RoomID: "OLD001", Tick: 20}})
	s = reopen(t, path, s)

	ticks, snaps, err := s.pruneReplayIndex(context.Background(), now)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if ticks != 500 || snaps != 1 {
		t.Fatalf("pruned ticks=%d snapshots=%d", ticks, snaps)
	}

	// A year later the remaining tick row goes too, through Cleanup.
	if _, _, err := s.Cleanup(context.Background(), now.Add(365*24*time.Hour)); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM ticks`).Scan(&n); err != nil || n != 0 {
		t.Fatalf("tick rows=%d err=%v", n, err)
	}
	rows, err := s.Snapshots(context.Background(), "", 0)
	if err != nil || len(rows) != 1 || rows[0].RoomID != "NEW001" {
		t.Fatalf("snapshots=%+v err=%v", rows, err)
	}
}
