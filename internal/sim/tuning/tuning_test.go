package tuning

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults_Valid(t *testing.T) {
	d := Defaults()
	if err := d.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if d.TickInterval() != 50*time.Millisecond {
		t.Fatalf("tick interval=%v", d.TickInterval())
	}
	if got := d.PhysicsDT(); got != 1.0/60 {
		t.Fatalf("dt=%v", got)
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	raw := "max_players_per_room: 8\nplayer:\n  max_speed: 250\nrails_check:\n  use_segment_distance: true\n"
	if err := os.WriteFile(p, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.MaxPlayersPerRoom != 8 || got.Player.MaxSpeed != 250 || !got.RailsCheck.UseSegmentDistance {
		t.Fatalf("overrides not applied: %+v", got)
	}
	if got.TickRateHz != 20 || got.Track.DecayMS != 30000 || got.Player.Friction != 0.95 {
		t.Fatalf("defaults lost: %+v", got)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(p, []byte("tick_rate_hz: 0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestLoad_RepoConfig(t *testing.T) {
	got, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("load repo tuning: %v", err)
	}
	if got != Defaults() {
		t.Fatalf("configs/tuning.yaml drifted from Defaults():\n got=%+v\nwant=%+v", got, Defaults())
	}
}
