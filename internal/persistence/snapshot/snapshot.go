package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"railrush.io/internal/sim/tuning"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	RoomID  string `json:"room_id"`
	Tick    uint64 `json:"tick"`
	TakenAt int64  `json:"taken_at"`
}

// RoomV1 captures everything a room needs to resume and replay deterministically.
type RoomV1 struct {
	Header Header `json:"header"`

	Tuning tuning.Tuning `json:"tuning"`
	Seed   int64         `json:"seed"`

	CreatedAt         int64 `json:"created_at"`
	LastResourceSpawn int64 `json:"last_resource_spawn"`
	LastPowerUpSpawn  int64 `json:"last_powerup_spawn"`
	PeakPlayers       int   `json:"peak_players"`

	Players   []PlayerV1   `json:"players"`
	Tracks    []TrackV1    `json:"tracks"`
	Resources []ResourceV1 `json:"resources"`
	PowerUps  []PowerUpV1  `json:"power_ups"`

	Counters CountersV1 `json:"counters"`
}

type CountersV1 struct {
	SpawnSeq     uint64 `json:"spawn_seq"`
	NextResource uint64 `json:"next_resource"`
	NextPowerUp  uint64 `json:"next_powerup"`
}

type PlayerV1 struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Skin  string  `json:"skin"`
	Color string  `json:"color"`
	Size  float64 `json:"size"`

	Pos      [2]float64 `json:"pos"`
	Vel      [2]float64 `json:"vel"`
	Speed    float64    `json:"speed"`
	MaxSpeed float64    `json:"max_speed"`

	Score         int    `json:"score"`
	Rails         int    `json:"rails"`
	RailsPlaced   int    `json:"rails_placed"`
	Alive         bool   `json:"alive"`
	DeathReason   string `json:"death_reason,omitempty"`
	DeathReported bool   `json:"death_reported,omitempty"`
	JoinedAt      int64  `json:"joined_at"`

	LastRailAt      int64 `json:"last_rail_at"`
	PlacedRail      bool  `json:"placed_rail"`
	LastCollisionAt int64 `json:"last_collision_at"`
	Collided        bool  `json:"collided"`

	Input    InputV1    `json:"input"`
	Buffered InputV1    `json:"buffered"`
	Effects  []EffectV1 `json:"effects,omitempty"`
}

type InputV1 struct {
	Up         bool `json:"up"`
	Down       bool `json:"down"`
	Left       bool `json:"left"`
	Right      bool `json:"right"`
	PlaceTrack bool `json:"place_track"`
}

type EffectV1 struct {
	Kind      string `json:"kind"`
	ExpiresAt int64  `json:"expires_at"`
}

type TrackV1 struct {
	Start     [2]float64 `json:"start"`
	Angle     float64    `json:"angle"`
	Owner     string     `json:"owner"`
	CreatedAt int64      `json:"created_at"`
	Length    float64    `json:"length"`
	Width     float64    `json:"width"`
}

type ResourceV1 struct {
	ID    string     `json:"id"`
	Pos   [2]float64 `json:"pos"`
	Size  float64    `json:"size"`
	Value int        `json:"value"`
	Rails int        `json:"rails"`
}

type PowerUpV1 struct {
	ID         string     `json:"id"`
	Pos        [2]float64 `json:"pos"`
	Size       float64    `json:"size"`
	Kind       string     `json:"kind"`
	DurationMS int64      `json:"duration_ms"`
}

// Path is the conventional location of a room snapshot under dataDir.
func Path(dataDir, roomID string, tick uint64) string {
	return filepath.Join(dataDir, "rooms", roomID, "snapshots", fmt.Sprintf("%d.snap.zst", tick))
}

func WriteSnapshot(path string, snap RoomV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 64*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (RoomV1, error) {
	var snap RoomV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// The header line is for tools that only need metadata; gob carries it too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader reads only the leading JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
