package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"railrush.io/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional; defaults to <data>/index/railrush.sqlite)")
	limit := fs.Int("limit", 20, "result limit")
	roomID := fs.String("room", "", "room filter (snapshots)")
	_ = fs.Parse(args)

	q := "leaderboard"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "railrush.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "index:", err)
		os.Exit(1)
	}

	idx, err := indexdb.OpenSQLite(path, log.New(io.Discard, "", 0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var rows any
	switch q {
	case "leaderboard":
		rows, err = idx.Leaderboard(ctx, *limit)
	case "sessions":
		rows, err = idx.Sessions(ctx, *limit)
	case "players":
		rows, err = idx.Players(ctx, *limit)
	case "snapshots":
		rows, err = idx.Snapshots(ctx, *roomID, *limit)
	case "games":
		rows, err = idx.GameStats(ctx, time.Now())
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(want leaderboard|sessions|players|snapshots|games)")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(rows)
}
