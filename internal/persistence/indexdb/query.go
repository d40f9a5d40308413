package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"time"

	"railrush.io/internal/protocol"
)

type SessionRow struct {
	SessionID   string `json:"session_id"`
	RoomID      string `json:"room_id"`
	PlayerCount int    `json:"player_count"`
	DurationMS  int64  `json:"duration_ms"`
	CreatedAt   string `json:"created_at"`
	EndedAt     string `json:"ended_at,omitempty"`
}

type PlayerRow struct {
	PlayerID         string `json:"player_id"`
	Name             string `json:"name"`
	TotalScore       int64  `json:"total_score"`
	GamesPlayed      int64  `json:"games_played"`
	TotalRailsPlaced int64  `json:"total_rails_placed"`
	LastSeen         string `json:"last_seen"`
}

type SnapshotRow struct {
	RoomID  string `json:"room_id"`
	Tick    uint64 `json:"tick"`
	Path    string `json:"path"`
	Seed    int64  `json:"seed"`
	Players int    `json:"players"`
	Tracks  int    `json:"tracks"`
	TakenAt int64  `json:"taken_at"`
}

// GameStats aggregates the session table for the /stats endpoint.
type GameStats struct {
	TotalGames        int64   `json:"total_games"`
	AvgPlayersPerGame float64 `json:"avg_players_per_game"`
	AvgGameDurationMS float64 `json:"avg_game_duration_ms"`
	GamesLastHour     int64   `json:"games_last_hour"`
}

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100

	sessionRetention = 30 * 24 * time.Hour
	tickRetention    = 7 * 24 * time.Hour
	maxRetainedRank  = 1000
)

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func (s *SQLiteIndex) Leaderboard(ctx context.Context, limit int) ([]protocol.LeaderboardEntry, error) {
	limit = clampLimit(limit, DefaultLeaderboardLimit, MaxLeaderboardLimit)
	rows, err := s.db.QueryContext(ctx, `SELECT COALESCE(rank,0), player_id, player_name, score
		FROM leaderboard ORDER BY score DESC, player_id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []protocol.LeaderboardEntry{}
	for rows.Next() {
		var e protocol.LeaderboardEntry
		if err := rows.Scan(&e.Rank, &e.PlayerID, &e.Name, &e.Score); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) Sessions(ctx context.Context, limit int) ([]SessionRow, error) {
	limit = clampLimit(limit, 50, 1000)
	rows, err := s.db.QueryContext(ctx, `SELECT session_id, room_id, player_count, duration_ms, created_at, COALESCE(ended_at,'')
		FROM game_sessions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		if err := rows.Scan(&r.SessionID, &r.RoomID, &r.PlayerCount, &r.DurationMS, &r.CreatedAt, &r.EndedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) Players(ctx context.Context, limit int) ([]PlayerRow, error) {
	limit = clampLimit(limit, 50, 1000)
	rows, err := s.db.QueryContext(ctx, `SELECT player_id, name, total_score, games_played, total_rails_placed, last_seen
		FROM players ORDER BY total_score DESC, player_id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PlayerRow
	for rows.Next() {
		var r PlayerRow
		if err := rows.Scan(&r.PlayerID, &r.Name, &r.TotalScore, &r.GamesPlayed, &r.TotalRailsPlaced, &r.LastSeen); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Snapshots lists indexed snapshots for roomID, newest first. An empty roomID lists every room.
func (s *SQLiteIndex) Snapshots(ctx context.Context, roomID string, limit int) ([]SnapshotRow, error) {
	limit = clampLimit(limit, 50, 1000)
	var (
		rows *sql.Rows
		err  error
	)
	if roomID == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT room_id, tick, path, seed, players, tracks, taken_at
			FROM snapshots ORDER BY taken_at DESC, room_id ASC LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT room_id, tick, path, seed, players, tracks, taken_at
			FROM snapshots WHERE room_id=? ORDER BY tick DESC LIMIT ?`, roomID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotRow
	for rows.Next() {
		var (
			r    SnapshotRow
			tick int64
		)
		if err := rows.Scan(&r.RoomID, &tick, &r.Path, &r.Seed, &r.Players, &r.Tracks, &r.TakenAt); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) GameStats(ctx context.Context, now time.Time) (GameStats, error) {
	var st GameStats
	err := s.db.QueryRowContext(ctx, `SELECT
			COUNT(*),
			COALESCE(AVG(player_count), 0),
			COALESCE(AVG(duration_ms), 0),
			COALESCE(SUM(CASE WHEN created_at > ? THEN 1 ELSE 0 END), 0)
		FROM game_sessions`, ts(now.Add(-time.Hour))).Scan(&st.TotalGames, &st.AvgPlayersPerGame, &st.AvgGameDurationMS, &st.GamesLastHour)
	return st, err
}

// Cleanup drops sessions older than 30 days and leaderboard rows ranked beyond 1000. It also
// prunes the replay index: tick rows older than 7 days and snapshot rows whose file is gone.
func (s *SQLiteIndex) Cleanup(ctx context.Context, now time.Time) (sessions, ranks int64, err error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM game_sessions WHERE created_at < ?`, ts(now.Add(-sessionRetention)))
	if err != nil {
		return 0, 0, err
	}
	sessions, _ = res.RowsAffected()

	res, err = s.db.ExecContext(ctx, `DELETE FROM leaderboard WHERE rank > ?`, maxRetainedRank)
	if err != nil {
		return sessions, 0, err
	}
	ranks, _ = res.RowsAffected()

	ticks, snaps, err := s.pruneReplayIndex(ctx, now)
	if err != nil {
		return sessions, ranks, err
	}
	if ticks > 0 || snaps > 0 {
		s.log.Printf("index cleanup: ticks=%d snapshots=%d", ticks, snaps)
	}
	return sessions, ranks, nil
}

func (s *SQLiteIndex) pruneReplayIndex(ctx context.Context, now time.Time) (ticks, snaps int64, err error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ticks WHERE now_ms < ?`, now.Add(-tickRetention).UnixMilli())
	if err != nil {
		return 0, 0, err
	}
	ticks, _ = res.RowsAffected()

	gone, err := s.missingSnapshots(ctx)
	if err != nil {
		return ticks, 0, err
	}
	for _, k := range gone {
		res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE room_id=? AND tick=?`, k.room, k.tick)
		if err != nil {
			return ticks, snaps, err
		}
		n, _ := res.RowsAffected()
		snaps += n
	}
	return ticks, snaps, nil
}

type snapshotKey struct {
	room string
	tick int64
}

func (s *SQLiteIndex) missingSnapshots(ctx context.Context) ([]snapshotKey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT room_id, tick, path FROM snapshots`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var gone []snapshotKey
	for rows.Next() {
		var k snapshotKey
		var path string
		if err := rows.Scan(&k.room, &k.tick, &path); err != nil {
			return nil, err
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			gone = append(gone, k)
		}
	}
	return gone, rows.Err()
}

func (s *SQLiteIndex) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
