package directory

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"railrush.io/internal/persistence/snapshot"
	"railrush.io/internal/protocol"
	"railrush.io/internal/sim/room"
	"railrush.io/internal/sim/tuning"
)

func TestReplay_ReproducesLoggedDigests(t *testing.T) {
	tl := &fakeTickLog{}
	snaps := make(chan snapshot.RoomV1, 64)
	d, clk := newTestDirectory(t, func(c *Config) {
		c.TickLogger = tl
		c.Snapshots = snaps
		c.Tuning.SnapshotEveryTicks = 0
	})
	resp, _ := join(t, d, "c1")
	join(t, d, "c2")

	right, up, place := true, true, true
	d.handleInput("c1", protocol.InputMsg{Right: &right, PlaceTrack: &place})
	for i := 0; i < 120; i++ {
		if i == 5 {
			d.handleInput("c2", protocol.InputMsg{Up: &up})
		}
		if i == 10 {
			x, y := 12.5, -3.25
			d.handlePlace("c2", protocol.PlaceTrackMsg{X: &x, Y: &y})
		}
		if i == 100 {
			d.handleLeave("c2")
		}
		d.StepOnce(clk.advance(50 * time.Millisecond))
	}
	if len(tl.entries) != 120 {
		t.Fatalf("entries=%d", len(tl.entries))
	}

	// Round-trip through the on-disk formats.
	path := filepath.Join(t.TempDir(), "0.snap.zst")
	if err := snapshot.WriteSnapshot(path, <-snaps); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	r, err := room.FromSnapshot(snap)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if r.ID() != resp.RoomID {
		t.Fatalf("room=%s want %s", r.ID(), resp.RoomID)
	}

	for _, orig := range tl.entries {
		b, _ := json.Marshal(orig)
		var e TickLogEntry
		if err := json.Unmarshal(b, &e); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		got, err := Replay(r, e)
		if err != nil {
			t.Fatalf("replay tick %d: %v", e.Tick, err)
		}
		if got != e.Digest {
			t.Fatalf("digest mismatch at tick %d", e.Tick)
		}
	}
	if r.Len() != 1 {
		t.Fatalf("players after replay=%d", r.Len())
	}
}

func TestReplay_RejectsOutOfOrderTick(t *testing.T) {
	r := room.New(room.Config{ID: "ROOM01", Tuning: tuning.Defaults(), Seed: 1})
	if _, err := Replay(r, TickLogEntry{RoomID: "ROOM01", Tick: 2}); err == nil {
		t.Fatalf("expected tick mismatch")
	}
	if _, err := Replay(r, TickLogEntry{RoomID: "OTHER1", Tick: 1}); err == nil {
		t.Fatalf("expected room mismatch")
	}
	if _, err := Replay(r, TickLogEntry{Tick: 1, Commands: []RecordedCommand{{Kind: "fly"}}}); err == nil {
		t.Fatalf("expected unknown command error")
	}
	if _, err := Replay(r, TickLogEntry{RoomID: "ROOM01", Tick: 1, Now: 50, Fault: true}); err == nil {
		t.Fatalf("expected error for a fault that does not reproduce")
	}
}
