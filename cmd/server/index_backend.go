package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"railrush.io/internal/persistence/indexdb"
	"railrush.io/internal/persistence/pgstore"
	"railrush.io/internal/persistence/snapshot"
	"railrush.io/internal/protocol"
	"railrush.io/internal/sim/directory"
)

// statsStore is the leaderboard and session backend. It never affects simulation.
type statsStore interface {
	directory.Recorder
	Leaderboard(ctx context.Context, limit int) ([]protocol.LeaderboardEntry, error)
	GameStats(ctx context.Context, now time.Time) (indexdb.GameStats, error)
	Cleanup(ctx context.Context, now time.Time) (sessions, ranks int64, err error)
	Health(ctx context.Context) error
	Close() error
}

type snapshotIndexer interface {
	RecordSnapshot(path string, snap snapshot.RoomV1)
}

func openStore(ctx context.Context, dataDir string, disableDB bool, logger *log.Logger) (statsStore, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(envString("RR_INDEX_BACKEND", "sqlite"))
	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(dataDir, "index", "railrush.sqlite")
		return indexdb.OpenSQLite(dbPath, log.New(os.Stdout, "[indexdb] ", log.LstdFlags))
	case "postgres", "pg":
		dsn := envString("RR_POSTGRES_DSN", "")
		if dsn == "" {
			return nil, fmt.Errorf("RR_INDEX_BACKEND=%s but RR_POSTGRES_DSN is empty", backend)
		}
		return pgstore.Open(ctx, dsn, log.New(os.Stdout, "[pgstore] ", log.LstdFlags))
	default:
		return nil, fmt.Errorf("unsupported RR_INDEX_BACKEND: %s", backend)
	}
}

// tickIndexer returns the store's tick digest index when it keeps one.
func tickIndexer(store statsStore) directory.TickLogger {
	if tl, ok := store.(directory.TickLogger); ok {
		return tl
	}
	return nil
}
