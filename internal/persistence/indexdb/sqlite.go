package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"railrush.io/internal/persistence/snapshot"
	"railrush.io/internal/sim/directory"
)

type SQLiteIndex struct {
	db  *sql.DB
	log *log.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropOutcome  atomic.Uint64
	dropBoard    atomic.Uint64
	dropSession  atomic.Uint64
	dropSnapshot atomic.Uint64
	dropTick     atomic.Uint64
}

type reqKind int

const (
	reqOutcome reqKind = iota + 1
	reqLeaderboard
	reqSession
	reqSnapshot
	reqTick
)

type req struct {
	kind reqKind

	outcome  directory.PlayerOutcome
	board    boardRow
	session  directory.RoomSession
	snapshot snapshotRow
	tick     directory.TickLogEntry
}

type boardRow struct {
	PlayerID string
	Name     string
	Score    int
	At       time.Time
}

type snapshotRow struct {
	RoomID    string
	Tick      uint64
	Path      string
	Seed      int64
	Players   int
	Tracks    int
	Resources int
	PowerUps  int
	TakenAt   int64
}

func OpenSQLite(path string, logger *log.Logger) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:  db,
		log: logger,
		ch:  make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS players (
			player_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			total_score INTEGER NOT NULL DEFAULT 0,
			games_played INTEGER NOT NULL DEFAULT 0,
			total_rails_placed INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			last_seen TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS leaderboard (
			player_id TEXT PRIMARY KEY,
			player_name TEXT NOT NULL,
			score INTEGER NOT NULL DEFAULT 0,
			rank INTEGER,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_leaderboard_score ON leaderboard(score DESC);`,
		`CREATE TABLE IF NOT EXISTS game_sessions (
			session_id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL,
			player_count INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			ended_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_game_sessions_created ON game_sessions(created_at);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			room_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			players INTEGER NOT NULL,
			tracks INTEGER NOT NULL,
			resources INTEGER NOT NULL,
			power_ups INTEGER NOT NULL,
			taken_at INTEGER NOT NULL,
			PRIMARY KEY (room_id, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			room_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			now_ms INTEGER NOT NULL,
			commands INTEGER NOT NULL,
			digest TEXT NOT NULL,
			PRIMARY KEY (room_id, tick)
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// enqueue never blocks; the counter records what was lost when the writer falls behind.
func (s *SQLiteIndex) enqueue(r req, dropped *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		dropped.Add(1)
	}
}

func (s *SQLiteIndex) RecordPlayerOutcome(o directory.PlayerOutcome) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqOutcome, outcome: o}, &s.dropOutcome)
}

func (s *SQLiteIndex) UpsertLeaderboard(playerID, name string, score int) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqLeaderboard, board: boardRow{PlayerID: playerID, Name: name, Score: score, At: time.Now()}}, &s.dropBoard)
}

func (s *SQLiteIndex) RecordRoomSession(rs directory.RoomSession) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqSession, session: rs}, &s.dropSession)
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.RoomV1) {
	if s == nil {
		return
	}
	r := snapshotRow{
		RoomID:    snap.Header.RoomID,
		Tick:      snap.Header.Tick,
		Path:      path,
		Seed:      snap.Seed,
		Players:   len(snap.Players),
		Tracks:    len(snap.Tracks),
		Resources: len(snap.Resources),
		PowerUps:  len(snap.PowerUps),
		TakenAt:   snap.Header.TakenAt,
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: r}, &s.dropSnapshot)
}

// WriteTick indexes digests of ticks that consumed commands or faulted. Idle ticks are only
// in the JSONL tick log, which remains the source of truth.
func (s *SQLiteIndex) WriteTick(e directory.TickLogEntry) error {
	if s == nil || (len(e.Commands) == 0 && !e.Fault) {
		return nil
	}
	s.enqueue(req{kind: reqTick, tick: e}, &s.dropTick)
	return nil
}

type QueueStats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	DropOutcome   uint64 `json:"drop_outcome_total"`
	DropBoard     uint64 `json:"drop_leaderboard_total"`
	DropSession   uint64 `json:"drop_session_total"`
	DropSnapshot  uint64 `json:"drop_snapshot_total"`
	DropTick      uint64 `json:"drop_tick_total"`
}

func (s *SQLiteIndex) Stats() QueueStats {
	if s == nil {
		return QueueStats{}
	}
	return QueueStats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropOutcome:   s.dropOutcome.Load(),
		DropBoard:     s.dropBoard.Load(),
		DropSession:   s.dropSession.Load(),
		DropSnapshot:  s.dropSnapshot.Load(),
		DropTick:      s.dropTick.Load(),
	}
}

// tsLayout is fixed width so timestamps compare correctly as strings.
const tsLayout = "2006-01-02T15:04:05.000Z"

func ts(t time.Time) string { return t.UTC().Format(tsLayout) }

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	upsertPlayer, _ := s.db.Prepare(`INSERT INTO players(player_id,name,total_score,games_played,total_rails_placed,created_at,last_seen)
		VALUES(?,?,?,1,?,?,?)
		ON CONFLICT(player_id) DO UPDATE SET
			name=excluded.name,
			total_score=players.total_score+excluded.total_score,
			games_played=players.games_played+1,
			total_rails_placed=players.total_rails_placed+excluded.total_rails_placed,
			last_seen=excluded.last_seen`)
	upsertBoard, _ := s.db.Prepare(`INSERT INTO leaderboard(player_id,player_name,score,updated_at) VALUES(?,?,?,?)
		ON CONFLICT(player_id) DO UPDATE SET
			player_name=excluded.player_name,
			score=MAX(leaderboard.score, excluded.score),
			updated_at=excluded.updated_at`)
	insertSession, _ := s.db.Prepare(`INSERT OR REPLACE INTO game_sessions(session_id,room_id,player_count,duration_ms,created_at,ended_at) VALUES(?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(room_id,tick,path,seed,players,tracks,resources,power_ups,taken_at) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(room_id,tick,now_ms,commands,digest) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{upsertPlayer, upsertBoard, insertSession, insertSnapshot, insertTick} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		rankDirty     bool
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.log.Printf("indexdb: begin: %v", err)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if rankDirty {
			if _, err := tx.Exec(rerankSQL); err != nil {
				s.log.Printf("indexdb: rerank: %v", err)
			}
			rankDirty = false
		}
		if err := tx.Commit(); err != nil {
			s.log.Printf("indexdb: commit: %v", err)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func(err error) {
		s.log.Printf("indexdb: write failed, dropping batch: %v", err)
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		rankDirty = false
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback(err)
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqOutcome:
			o := r.outcome
			at := ts(o.At)
			exec(upsertPlayer, o.PlayerID, o.Name, o.Score, o.RailsPlaced, at, at)

		case reqLeaderboard:
			b := r.board
			if exec(upsertBoard, b.PlayerID, b.Name, b.Score, ts(b.At)) {
				rankDirty = true
			}

		case reqSession:
			rs := r.session
			exec(insertSession, rs.SessionID, rs.RoomID, rs.PeakPlayers, rs.EndedAt.Sub(rs.StartedAt).Milliseconds(), ts(rs.StartedAt), ts(rs.EndedAt))

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, sn.RoomID, int64(sn.Tick), sn.Path, sn.Seed, sn.Players, sn.Tracks, sn.Resources, sn.PowerUps, sn.TakenAt)

		case reqTick:
			e := r.tick
			exec(insertTick, e.RoomID, int64(e.Tick), e.Now, len(e.Commands), e.Digest)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

// rerankSQL assigns dense 1-based ranks by score, ties broken by player id.
const rerankSQL = `UPDATE leaderboard SET rank = (
	SELECT COUNT(*) FROM leaderboard AS o
	WHERE o.score > leaderboard.score
	   OR (o.score = leaderboard.score AND o.player_id < leaderboard.player_id)
) + 1`
