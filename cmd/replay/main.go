package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	persistlog "railrush.io/internal/persistence/log"
	"railrush.io/internal/persistence/snapshot"
	"railrush.io/internal/sim/directory"
	"railrush.io/internal/sim/room"
)

var errStop = errors.New("stop")

func main() {
	var (
		snapPath = flag.String("snapshot", "", "path to a room .snap.zst")
		dataDir  = flag.String("data", "", "data directory holding ticks/ticks-*.jsonl.zst (optional)")
		toTick   = flag.Uint64("to_tick", 0, "stop after this tick (inclusive, optional)")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("snapshot v%d room=%s tick=%d seed=%d players=%d tracks=%d resources=%d power_ups=%d\n",
		snap.Header.Version, snap.Header.RoomID, snap.Header.Tick, snap.Seed,
		len(snap.Players), len(snap.Tracks), len(snap.Resources), len(snap.PowerUps))

	if *dataDir == "" {
		return
	}

	r, err := room.FromSnapshot(snap)
	if err != nil {
		fmt.Fprintln(os.Stderr, "restore room:", err)
		os.Exit(1)
	}

	files, err := persistlog.TickLogFiles(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list tick logs:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no tick logs found in", persistlog.TickLogDir(*dataDir))
		os.Exit(1)
	}

	startTick := r.Tick()
	var checked uint64
	for _, path := range files {
		err := persistlog.ReadTicks(path, func(e directory.TickLogEntry) error {
			if e.RoomID != r.ID() || e.Tick <= startTick {
				return nil
			}
			if *toTick != 0 && e.Tick > *toTick {
				return errStop
			}
			got, err := directory.Replay(r, e)
			if err != nil {
				return err
			}
			if got != e.Digest {
				return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", e.Tick, got, e.Digest)
			}
			checked++
			return nil
		})
		if errors.Is(err, errStop) {
			break
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}
	fmt.Printf("replay ok: room=%s checked=%d ticks (from snapshot tick=%d, now tick=%d players=%d)\n",
		r.ID(), checked, snap.Header.Tick, r.Tick(), r.Len())
}
