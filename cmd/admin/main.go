package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	persistlog "railrush.io/internal/persistence/log"
	"railrush.io/internal/persistence/snapshot"
	"railrush.io/internal/sim/directory"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "stats":
			getCmd("stats", "/stats", os.Args[2:])
			return
		case "health":
			getCmd("health", "/health", os.Args[2:])
			return
		case "room-state":
			roomStateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "ticks":
			ticksCmd(os.Args[2:])
			return
		case "list":
			listCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints every room that has snapshots, with its latest snapshot.
func listCmd(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "rooms")
	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		ticks := snapshotTicks(filepath.Join(base, e.Name(), "snapshots"))
		if len(ticks) == 0 {
			fmt.Printf("%s\tsnapshots=0\n", e.Name())
			continue
		}
		last := ticks[len(ticks)-1]
		h, err := snapshot.ReadHeader(snapshot.Path(*dataDir, e.Name(), last))
		if err != nil {
			fmt.Printf("%s\tsnapshots=%d\tlatest=%d\theader_error=%v\n", e.Name(), len(ticks), last, err)
			continue
		}
		fmt.Printf("%s\tsnapshots=%d\tlatest=%d\ttaken_at=%d\n", e.Name(), len(ticks), h.Tick, h.TakenAt)
	}
}

func snapshotTicks(dir string) []uint64 {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []uint64
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, tick)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// snapshotCmd summarizes one snapshot file.
func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	path := fs.String("path", "", "snapshot path")
	_ = fs.Parse(args)
	if *path == "" {
		fmt.Fprintln(os.Stderr, "missing -path")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("room=%s tick=%d seed=%d created_at=%d peak_players=%d\n",
		snap.Header.RoomID, snap.Header.Tick, snap.Seed, snap.CreatedAt, snap.PeakPlayers)
	for _, p := range snap.Players {
		fmt.Printf("  player %s %q alive=%v score=%d rails=%d pos=(%.1f,%.1f) speed=%.1f\n",
			p.ID, p.Name, p.Alive, p.Score, p.Rails, p.Pos[0], p.Pos[1], p.Speed)
	}
	fmt.Printf("  tracks=%d resources=%d power_ups=%d\n", len(snap.Tracks), len(snap.Resources), len(snap.PowerUps))
}

// ticksCmd counts logged ticks and commands per room.
func ticksCmd(args []string) {
	fs := flag.NewFlagSet("ticks", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	roomID := fs.String("room", "", "only this room (optional)")
	_ = fs.Parse(args)

	files, err := persistlog.TickLogFiles(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	type agg struct {
		ticks, commands uint64
		first, last     uint64
	}
	rooms := map[string]*agg{}
	for _, path := range files {
		err := persistlog.ReadTicks(path, func(e directory.TickLogEntry) error {
			if *roomID != "" && e.RoomID != *roomID {
				return nil
			}
			a := rooms[e.RoomID]
			if a == nil {
				a = &agg{first: e.Tick}
				rooms[e.RoomID] = a
			}
			a.ticks++
			a.commands += uint64(len(e.Commands))
			a.last = e.Tick
			return nil
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
	}
	ids := make([]string, 0, len(rooms))
	for id := range rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		a := rooms[id]
		fmt.Printf("%s\tticks=%d\tfirst=%d\tlast=%d\tcommands=%d\n", id, a.ticks, a.first, a.last, a.commands)
	}
}
