package room

import (
	"testing"

	"railrush.io/internal/protocol"
	"railrush.io/internal/sim/geom"
	"railrush.io/internal/sim/tuning"
)

func TestCollision_AppliedOncePerWindow(t *testing.T) {
	r := newTestRoom(t)
	a := r.Join("a", "alice", "", 0)
	b := r.Join("b", "bob", "", 0)
	a.Pos = geom.V(0, 0)
	b.Pos = geom.V(10, 0)
	a.Vel = geom.V(8, 0)
	b.Vel = geom.V(-8, 0)

	r.collidePlayers(1000)
	if a.Pos != geom.V(-100, 0) || b.Pos != geom.V(110, 0) {
		t.Fatalf("push: a=%v b=%v", a.Pos, b.Pos)
	}
	if a.Vel != geom.V(4, 0) || b.Vel != geom.V(-4, 0) {
		t.Fatalf("damping: a=%v b=%v", a.Vel, b.Vel)
	}

	// Overlap again inside the cooldown window: nothing changes.
	a.Pos = geom.V(0, 0)
	b.Pos = geom.V(10, 0)
	r.collidePlayers(2000)
	if a.Pos != geom.V(0, 0) || b.Pos != geom.V(10, 0) || a.Vel != geom.V(4, 0) {
		t.Fatalf("second collision applied: a=%v/%v b=%v", a.Pos, a.Vel, b.Pos)
	}

	r.collidePlayers(2001)
	if a.Pos != geom.V(-100, 0) {
		t.Fatalf("collision after cooldown not applied: a=%v", a.Pos)
	}
	if !a.Alive || !b.Alive {
		t.Fatalf("collision killed a player")
	}
}

func TestCollision_EitherPartyCooldownBlocks(t *testing.T) {
	r := newTestRoom(t)
	a := r.Join("a", "alice", "", 0)
	b := r.Join("b", "bob", "", 0)
	c := r.Join("c", "carol", "", 0)
	a.Pos = geom.V(0, 0)
	b.Pos = geom.V(10, 0)
	c.Pos = geom.V(500, 0)
	r.collidePlayers(1000)

	// b is still cooling down, so touching c must be a no-op.
	b.Pos = geom.V(500, 30)
	r.collidePlayers(1500)
	if b.Pos != geom.V(500, 30) || c.Pos != geom.V(500, 0) {
		t.Fatalf("b=%v c=%v", b.Pos, c.Pos)
	}
}

func TestCollision_CoincidentPlayersSeparate(t *testing.T) {
	r := newTestRoom(t)
	a := r.Join("a", "alice", "", 0)
	b := r.Join("b", "bob", "", 0)
	r.collidePlayers(1000)
	if a.Pos != geom.V(100, 0) || b.Pos != geom.V(-100, 0) {
		t.Fatalf("a=%v b=%v", a.Pos, b.Pos)
	}
}

func TestCollision_DeadPlayersIgnored(t *testing.T) {
	r := newTestRoom(t)
	a := r.Join("a", "alice", "", 0)
	b := r.Join("b", "bob", "", 0)
	b.Pos = geom.V(5, 0)
	b.Die(protocol.ReasonOffRails)
	r.collidePlayers(1000)
	if a.Pos != (geom.Vec2{}) || b.Pos != geom.V(5, 0) {
		t.Fatalf("a=%v b=%v", a.Pos, b.Pos)
	}
}

func TestOffRails_NoTracks(t *testing.T) {
	r := newTestRoom(t)
	near := r.Join("near", "near", "", 0)
	far := r.Join("far", "far", "", 0)
	near.Pos = geom.V(999, 0)
	far.Pos = geom.V(0, -1001)
	r.Step(50)
	if !near.Alive {
		t.Fatalf("player at 999 died: %s", near.DeathReason)
	}
	if far.Alive || far.DeathReason != protocol.ReasonOffRails {
		t.Fatalf("player at 1001 alive=%v reason=%q", far.Alive, far.DeathReason)
	}
}

func TestOffRails_DistanceToTrackOrigin(t *testing.T) {
	r := newTestRoom(t)
	owner := r.Join("owner", "owner", "", 0)
	near := r.Join("near", "near", "", 0)
	mid := r.Join("mid", "mid", "", 0)
	owner.Pos = geom.V(100, 100)
	r.PlaceTrack("owner", protocol.PlaceTrackMsg{Angle: fp(0)}, 0)

	near.Pos = geom.V(100, 149)
	// 30 units off the middle of the segment is 50 from its origin.
	mid.Pos = geom.V(140, 130)
	r.Step(50)
	if !owner.Alive || !near.Alive {
		t.Fatalf("owner=%v near=%v", owner.Alive, near.Alive)
	}
	if mid.Alive || mid.DeathReason != protocol.ReasonOffRails {
		t.Fatalf("mid alive=%v reason=%q", mid.Alive, mid.DeathReason)
	}
}

func TestOffRails_SegmentDistanceSwitch(t *testing.T) {
	tune := tuning.Defaults()
	tune.RailsCheck.UseSegmentDistance = true
	r := New(Config{ID: "SEG001", Tuning: tune, Seed: 1})
	owner := r.Join("owner", "owner", "", 0)
	mid := r.Join("mid", "mid", "", 0)
	owner.Pos = geom.V(100, 100)
	r.PlaceTrack("owner", protocol.PlaceTrackMsg{Angle: fp(0)}, 0)
	mid.Pos = geom.V(140, 130)
	r.Step(50)
	if !mid.Alive {
		t.Fatalf("segment distance 30 should survive, got %q", mid.DeathReason)
	}
}
