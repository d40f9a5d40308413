// Package pgstore mirrors the sqlite index into Postgres for deployments that share
// leaderboards across server instances.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq"

	"railrush.io/internal/persistence/indexdb"
	"railrush.io/internal/protocol"
	"railrush.io/internal/sim/directory"
)

const writeTimeout = 5 * time.Second

type Store struct {
	db  *sql.DB
	log *log.Logger

	ch   chan op
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
	failed  atomic.Uint64
}

type op struct {
	outcome *directory.PlayerOutcome
	board   *boardOp
	session *directory.RoomSession
}

type boardOp struct {
	playerID string
	name     string
	score    int
}

func Open(ctx context.Context, dsn string, logger *log.Logger) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("pgstore: empty dsn")
	}
	if logger == nil {
		logger = log.Default()
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgstore: migrate: %w", err)
	}

	s := &Store{db: db, log: logger, ch: make(chan op, 4096)}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id SERIAL PRIMARY KEY,
			player_id VARCHAR(255) UNIQUE NOT NULL,
			name VARCHAR(255) NOT NULL,
			total_score BIGINT NOT NULL DEFAULT 0,
			games_played INTEGER NOT NULL DEFAULT 0,
			total_rails_placed INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_seen TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS leaderboard (
			id SERIAL PRIMARY KEY,
			player_id VARCHAR(255) UNIQUE NOT NULL,
			player_name VARCHAR(255) NOT NULL,
			score BIGINT NOT NULL DEFAULT 0,
			rank INTEGER,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_leaderboard_score ON leaderboard(score DESC)`,
		`CREATE TABLE IF NOT EXISTS game_sessions (
			id SERIAL PRIMARY KEY,
			session_id VARCHAR(255) UNIQUE NOT NULL,
			room_id VARCHAR(255) NOT NULL,
			player_count INTEGER NOT NULL DEFAULT 0,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_game_sessions_created ON game_sessions(created_at)`,
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *Store) enqueue(o op) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- o:
	default:
		if n := s.dropped.Add(1); n == 1 || n%1000 == 0 {
			s.log.Printf("pgstore: queue full, dropped=%d", n)
		}
	}
}

func (s *Store) RecordPlayerOutcome(o directory.PlayerOutcome) { s.enqueue(op{outcome: &o}) }

func (s *Store) UpsertLeaderboard(playerID, name string, score int) {
	s.enqueue(op{board: &boardOp{playerID: playerID, name: name, score: score}})
}

func (s *Store) RecordRoomSession(rs directory.RoomSession) { s.enqueue(op{session: &rs}) }

func (s *Store) Dropped() uint64 { return s.dropped.Load() }
func (s *Store) Failed() uint64  { return s.failed.Load() }

func (s *Store) loop() {
	rankDirty := false
	for o := range s.ch {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := s.apply(ctx, o)
		if err == nil && o.board != nil {
			rankDirty = true
		}
		// Ranks are recomputed once the queue drains instead of after every upsert.
		if rankDirty && len(s.ch) == 0 {
			if _, rerr := s.db.ExecContext(ctx, rerankSQL); rerr != nil {
				s.log.Printf("pgstore: rerank: %v", rerr)
			}
			rankDirty = false
		}
		cancel()
		if err != nil {
			s.failed.Add(1)
			s.log.Printf("pgstore: write: %v", err)
		}
	}
}

func (s *Store) apply(ctx context.Context, o op) error {
	switch {
	case o.outcome != nil:
		p := o.outcome
		_, err := s.db.ExecContext(ctx, `INSERT INTO players (player_id, name, total_score, games_played, total_rails_placed, created_at, last_seen)
			VALUES ($1, $2, $3, 1, $4, $5, $5)
			ON CONFLICT (player_id) DO UPDATE SET
				name = EXCLUDED.name,
				total_score = players.total_score + EXCLUDED.total_score,
				games_played = players.games_played + 1,
				total_rails_placed = players.total_rails_placed + EXCLUDED.total_rails_placed,
				last_seen = EXCLUDED.last_seen`,
			p.PlayerID, p.Name, p.Score, p.RailsPlaced, p.At.UTC())
		return err
	case o.board != nil:
		b := o.board
		_, err := s.db.ExecContext(ctx, `INSERT INTO leaderboard (player_id, player_name, score)
			VALUES ($1, $2, $3)
			ON CONFLICT (player_id) DO UPDATE SET
				player_name = EXCLUDED.player_name,
				score = GREATEST(leaderboard.score, EXCLUDED.score),
				updated_at = NOW()`,
			b.playerID, b.name, b.score)
		return err
	case o.session != nil:
		rs := o.session
		_, err := s.db.ExecContext(ctx, `INSERT INTO game_sessions (session_id, room_id, player_count, duration_ms, created_at, ended_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (session_id) DO NOTHING`,
			rs.SessionID, rs.RoomID, rs.PeakPlayers, rs.EndedAt.Sub(rs.StartedAt).Milliseconds(), rs.StartedAt.UTC(), rs.EndedAt.UTC())
		return err
	}
	return nil
}

const rerankSQL = `UPDATE leaderboard SET rank = sub.rank
	FROM (SELECT player_id, ROW_NUMBER() OVER (ORDER BY score DESC, player_id ASC) AS rank FROM leaderboard) sub
	WHERE leaderboard.player_id = sub.player_id`

func (s *Store) Leaderboard(ctx context.Context, limit int) ([]protocol.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = indexdb.DefaultLeaderboardLimit
	}
	if limit > indexdb.MaxLeaderboardLimit {
		limit = indexdb.MaxLeaderboardLimit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT COALESCE(rank, 0), player_id, player_name, score
		FROM leaderboard ORDER BY score DESC, player_id ASC LIMIT $1`, limit)
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

func (s *Store) GameStats(ctx context.Context, now time.Time) (indexdb.GameStats, error) {
	var st indexdb.GameStats
	err := s.db.QueryRowContext(ctx, `SELECT
			COUNT(*),
			COALESCE(AVG(player_count), 0),
			COALESCE(AVG(duration_ms), 0),
			COUNT(*) FILTER (WHERE created_at > $1)
		FROM game_sessions`, now.Add(-time.Hour).UTC()).Scan(&st.TotalGames, &st.AvgPlayersPerGame, &st.AvgGameDurationMS, &st.GamesLastHour)
	return st, err
}

func (s *Store) Cleanup(ctx context.Context, now time.Time) (sessions, ranks int64, err error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM game_sessions WHERE created_at < $1`, now.Add(-30*24*time.Hour).UTC())
	if err != nil {
		return 0, 0, err
	}
	sessions, _ = res.RowsAffected()
	res, err = s.db.ExecContext(ctx, `DELETE FROM leaderboard WHERE rank > 1000`)
	if err != nil {
		return sessions, 0, err
	}
	ranks, _ = res.RowsAffected()
	return sessions, ranks, nil
}

func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
