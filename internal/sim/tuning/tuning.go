package tuning

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid tuning")

type Tuning struct {
	TickRateHz           int `yaml:"tick_rate_hz"`
	PhysicsHz            int `yaml:"physics_hz"`
	MaxPlayersPerRoom    int `yaml:"max_players_per_room"`
	SnapshotEveryTicks   int `yaml:"snapshot_every_ticks"`
	CacheStateEveryTicks int `yaml:"cache_state_every_ticks"`

	Player     Player     `yaml:"player"`
	Track      Track      `yaml:"track"`
	RailsCheck RailsCheck `yaml:"rails_check"`
	Spawn      Spawn      `yaml:"spawn"`
}

type Player struct {
	Size                float64 `yaml:"size"`
	MaxSpeed            float64 `yaml:"max_speed"`
	Acceleration        float64 `yaml:"acceleration"`
	Friction            float64 `yaml:"friction"`
	DiagonalFactor      float64 `yaml:"diagonal_factor"`
	StartRails          int     `yaml:"start_rails"`
	MaxRails            int     `yaml:"max_rails"`
	RailCooldownMS      int64   `yaml:"rail_cooldown_ms"`
	AutoPlaceMinSpeed   float64 `yaml:"auto_place_min_speed"`
	CollisionCooldownMS int64   `yaml:"collision_cooldown_ms"`
	CollisionPush       float64 `yaml:"collision_push"`
	CollisionDamping    float64 `yaml:"collision_damping"`
	Boundary            float64 `yaml:"boundary"`
}

type Track struct {
	Length  float64 `yaml:"length"`
	Width   float64 `yaml:"width"`
	DecayMS int64   `yaml:"decay_ms"`
}

// RailsCheck controls the off-rails death rule.
type RailsCheck struct {
	NoTrackRadius      float64 `yaml:"no_track_radius"`
	MaxDistance        float64 `yaml:"max_distance"`
	UseSegmentDistance bool    `yaml:"use_segment_distance"`
}

type Spawn struct {
	Area              float64 `yaml:"area"`
	ResourceEveryMS   int64   `yaml:"resource_every_ms"`
	PowerUpEveryMS    int64   `yaml:"powerup_every_ms"`
	ResourceSize      float64 `yaml:"resource_size"`
	ResourceValueMin  int     `yaml:"resource_value_min"`
	ResourceValueMax  int     `yaml:"resource_value_max"`
	ResourceRailsMin  int     `yaml:"resource_rails_min"`
	ResourceRailsMax  int     `yaml:"resource_rails_max"`
	PowerUpSize       float64 `yaml:"powerup_size"`
	PowerUpDurationMS int64   `yaml:"powerup_duration_ms"`
	SpeedMultiplier   float64 `yaml:"speed_multiplier"`
	BoostMultiplier   float64 `yaml:"boost_multiplier"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:           20,
		PhysicsHz:            60,
		MaxPlayersPerRoom:    40,
		SnapshotEveryTicks:   600,
		CacheStateEveryTicks: 100,
		Player: Player{
			Size:                20,
			MaxSpeed:            200,
			Acceleration:        50,
			Friction:            0.95,
			DiagonalFactor:      0.707,
			StartRails:          50,
			MaxRails:            100,
			RailCooldownMS:      500,
			AutoPlaceMinSpeed:   50,
			CollisionCooldownMS: 1000,
			CollisionPush:       100,
			CollisionDamping:    0.5,
			Boundary:            10000,
		},
		Track: Track{
			Length:  80,
			Width:   8,
			DecayMS: 30000,
		},
		RailsCheck: RailsCheck{
			NoTrackRadius: 1000,
			MaxDistance:   50,
		},
		Spawn: Spawn{
			Area:              2000,
			ResourceEveryMS:   5000,
			PowerUpEveryMS:    15000,
			ResourceSize:      15,
			ResourceValueMin:  5,
			ResourceValueMax:  14,
			ResourceRailsMin:  1,
			ResourceRailsMax:  5,
			PowerUpSize:       20,
			PowerUpDurationMS: 10000,
			SpeedMultiplier:   1.5,
			BoostMultiplier:   2,
		},
	}
}

// Load reads a yaml file on top of Defaults, so a file only needs the keys it changes.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch {
	case t.TickRateHz <= 0:
		return fmt.Errorf("%w: tick_rate_hz must be > 0", ErrInvalid)
	case t.PhysicsHz <= 0:
		return fmt.Errorf("%w: physics_hz must be > 0", ErrInvalid)
	case t.MaxPlayersPerRoom <= 0:
		return fmt.Errorf("%w: max_players_per_room must be > 0", ErrInvalid)
	case t.Player.MaxRails < 0 || t.Player.StartRails < 0 || t.Player.StartRails > t.Player.MaxRails:
		return fmt.Errorf("%w: need 0 <= start_rails <= max_rails", ErrInvalid)
	case t.Player.Friction <= 0 || t.Player.Friction > 1:
		return fmt.Errorf("%w: friction must be in (0,1]", ErrInvalid)
	case t.Track.Length < 0 || t.Track.Width < 0:
		return fmt.Errorf("%w: track length and width must be >= 0", ErrInvalid)
	case t.Spawn.ResourceValueMin > t.Spawn.ResourceValueMax:
		return fmt.Errorf("%w: resource_value_min > resource_value_max", ErrInvalid)
	case t.Spawn.ResourceRailsMin > t.Spawn.ResourceRailsMax:
		return fmt.Errorf("%w: resource_rails_min > resource_rails_max", ErrInvalid)
	}
	return nil
}

func (t Tuning) TickInterval() time.Duration {
	return time.Second / time.Duration(t.TickRateHz)
}

// PhysicsDT is the fixed integration step applied once per tick.
func (t Tuning) PhysicsDT() float64 {
	return 1 / float64(t.PhysicsHz)
}
