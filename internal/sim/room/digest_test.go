package room

import (
	"testing"

	"railrush.io/internal/protocol"
	"railrush.io/internal/sim/tuning"
)

func TestDigest_IgnoresTuningOnlyChanges(t *testing.T) {
	a := newTestRoom(t)
	tu := tuning.Defaults()
	tu.CacheStateEveryTicks = 999
	tu.SnapshotEveryTicks = 7
	b := New(Config{ID: "ROOM01", Tuning: tu, Seed: 42, Now: 0})

	for _, r := range []*Room{a, b} {
		r.Join("p1", "alice", "", 0)
		r.Step(50)
	}
	if a.Digest() != b.Digest() {
		t.Fatalf("digest depends on persistence tuning")
	}
	if len(a.Digest()) != 64 {
		t.Fatalf("digest=%q", a.Digest())
	}
}

func TestDigest_TracksSimulationState(t *testing.T) {
	r := newTestRoom(t)
	r.Join("p1", "alice", "", 0)
	before := r.Digest()
	if r.Digest() != before {
		t.Fatalf("digest not stable")
	}

	right := true
	r.SetInput("p1", protocol.InputMsg{Right: &right})
	afterInput := r.Digest()
	if afterInput == before {
		t.Fatalf("buffered input not covered")
	}

	r.Step(50)
	if r.Digest() == afterInput {
		t.Fatalf("step not covered")
	}

	other := newTestRoom(t)
	other.Join("p1", "alicf", "", 0)
	if other.Digest() == before {
		t.Fatalf("player name not covered")
	}
}
