package snapshot

import (
	"path/filepath"
	"strings"
	"testing"

	"railrush.io/internal/sim/tuning"
)

func TestWriteReadSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir, "ABC123", 40)
	if !strings.HasSuffix(path, filepath.Join("rooms", "ABC123", "snapshots", "40.snap.zst")) {
		t.Fatalf("unexpected path %s", path)
	}

	in := RoomV1{
		Header: Header{Version: Version, RoomID: "ABC123", Tick: 40, TakenAt: 123456},
		Tuning: tuning.Defaults(),
		Seed:   99,
		Players: []PlayerV1{{
			ID: "p1", Name: "alice", Rails: 49, Alive: true, Pos: [2]float64{1.5, -2},
			Effects: []EffectV1{{Kind: "speed", ExpiresAt: 200}},
		}},
		Tracks:   []TrackV1{{Start: [2]float64{0, 0}, Angle: 1, Owner: "p1", CreatedAt: 100, Length: 80, Width: 8}},
		Counters: CountersV1{SpawnSeq: 3, NextResource: 2, NextPowerUp: 1},
	}
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h != in.Header {
		t.Fatalf("header=%+v want %+v", h, in.Header)
	}

	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if out.Seed != 99 || out.Counters != in.Counters || out.Tuning != in.Tuning {
		t.Fatalf("scalar fields lost: %+v", out)
	}
	if len(out.Players) != 1 || out.Players[0].Pos != in.Players[0].Pos || len(out.Players[0].Effects) != 1 {
		t.Fatalf("players=%+v", out.Players)
	}
	if len(out.Tracks) != 1 || out.Tracks[0] != in.Tracks[0] {
		t.Fatalf("tracks=%+v", out.Tracks)
	}
}

func TestReadSnapshot_RejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "1.snap.zst")
	if err := WriteSnapshot(path, RoomV1{Header: Header{Version: Version + 1, RoomID: "X"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected version error")
	}
}
