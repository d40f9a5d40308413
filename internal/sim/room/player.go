package room

import (
	"hash/fnv"
	"math"

	"railrush.io/internal/protocol"
	"railrush.io/internal/sim/geom"
	"railrush.io/internal/sim/tuning"
)

var palette = [...]string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4",
	"#FFEAA7", "#DDA0DD", "#98D8C8", "#F7DC6F",
}

// Input is the live control state of a player.
type Input struct {
	Up         bool              `json:"up"`
	Down       bool              `json:"down"`
	Left       bool              `json:"left"`
	Right      bool              `json:"right"`
	PlaceTrack bool              `json:"place_track"`
	Mouse      *protocol.Pointer `json:"mouse,omitempty"`
	Touch      *protocol.Pointer `json:"touch,omitempty"`
}

// Merge overwrites the flags present in msg and keeps the rest.
func (in Input) Merge(msg protocol.InputMsg) Input {
	set := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	set(&in.Up, msg.Up)
	set(&in.Down, msg.Down)
	set(&in.Left, msg.Left)
	set(&in.Right, msg.Right)
	set(&in.PlaceTrack, msg.PlaceTrack)
	if msg.Mouse != nil {
		m := *msg.Mouse
		in.Mouse = &m
	}
	if msg.Touch != nil {
		t := *msg.Touch
		in.Touch = &t
	}
	return in
}

// Player is owned by exactly one Room and only mutated on that room's goroutine.
type Player struct {
	ID    string
	Name  string
	Skin  string
	Color string
	Size  float64

	Pos      geom.Vec2
	Vel      geom.Vec2
	Speed    float64
	MaxSpeed float64

	Score       int
	Rails       int
	RailsPlaced int
	Alive       bool
	DeathReason string
	JoinedAt    int64

	lastRailAt      int64
	placedRail      bool
	lastCollisionAt int64
	collided        bool
	deathReported   bool

	input    Input
	buffered Input
	effects  []effect

	tune *tuning.Tuning
}

type placement struct {
	pos   geom.Vec2
	angle float64
}

func NewPlayer(id, name, skin string, tune *tuning.Tuning) *Player {
	if skin == "" {
		skin = "default"
	}
	return &Player{
		ID:       id,
		Name:     name,
		Skin:     skin,
		Color:    colorFor(id),
		Size:     tune.Player.Size,
		MaxSpeed: tune.Player.MaxSpeed,
		Rails:    tune.Player.StartRails,
		Alive:    true,
		tune:     tune,
	}
}

func colorFor(id string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return palette[h.Sum32()%uint32(len(palette))]
}

// BufferInput stores msg for the next step. Flags missing from msg keep their previous value.
func (p *Player) BufferInput(msg protocol.InputMsg) {
	p.buffered = p.buffered.Merge(msg)
}

func (p *Player) Input() Input { return p.input }

// Heading is the direction of travel; a player at rest faces +x.
func (p *Player) Heading() float64 {
	return math.Atan2(p.Vel.Y, p.Vel.X)
}

func (p *Player) update(dt float64, now int64) *placement {
	p.applyInput()
	p.expireEffects(now)
	if !p.Alive {
		return nil
	}
	p.move(dt)
	p.integrate(dt)
	req := p.autoPlace(now)
	p.checkBounds()
	return req
}

func (p *Player) applyInput() {
	p.input = p.buffered
}

func (p *Player) move(dt float64) {
	var dx, dy float64
	if p.input.Up {
		dy--
	}
	if p.input.Down {
		dy++
	}
	if p.input.Left {
		dx--
	}
	if p.input.Right {
		dx++
	}
	if dx != 0 && dy != 0 {
		dx *= p.tune.Player.DiagonalFactor
		dy *= p.tune.Player.DiagonalFactor
	}
	if dx != 0 || dy != 0 {
		a := p.tune.Player.Acceleration * dt
		p.Vel.X += dx * a
		p.Vel.Y += dy * a
	}
}

func (p *Player) integrate(dt float64) {
	p.Vel = p.Vel.Scale(p.tune.Player.Friction)
	if s := p.Vel.Len(); s > p.MaxSpeed {
		p.Vel = p.Vel.Scale(p.MaxSpeed / s)
	}
	p.Pos = p.Pos.Add(p.Vel.Scale(dt))
	p.Speed = p.Vel.Len()
}

func (p *Player) autoPlace(now int64) *placement {
	if !p.input.PlaceTrack || p.Speed <= p.tune.Player.AutoPlaceMinSpeed || p.Rails <= 0 {
		return nil
	}
	if p.placedRail && now-p.lastRailAt < p.tune.Player.RailCooldownMS {
		return nil
	}
	p.spendRail(now)
	return &placement{pos: p.Pos, angle: p.Heading()}
}

func (p *Player) spendRail(now int64) {
	p.Rails--
	p.RailsPlaced++
	p.lastRailAt = now
	p.placedRail = true
}

func (p *Player) checkBounds() {
	b := p.tune.Player.Boundary
	if math.Abs(p.Pos.X) > b || math.Abs(p.Pos.Y) > b {
		p.Die(protocol.ReasonOutOfBounds)
	}
}

// Die is terminal; later calls keep the first reason.
func (p *Player) Die(reason string) {
	if !p.Alive {
		return
	}
	p.Alive = false
	p.DeathReason = reason
}

func (p *Player) AddScore(points int) { p.Score += points }

// AddRails grants rails up to the configured maximum.
func (p *Player) AddRails(n int) {
	p.Rails += n
	if p.Rails > p.tune.Player.MaxRails {
		p.Rails = p.tune.Player.MaxRails
	}
	if p.Rails < 0 {
		p.Rails = 0
	}
}

func (p *Player) collisionReady(now int64) bool {
	return !p.collided || now-p.lastCollisionAt > p.tune.Player.CollisionCooldownMS
}

func (p *Player) markCollision(now int64) {
	p.lastCollisionAt = now
	p.collided = true
}

func (p *Player) State() protocol.PlayerState {
	return protocol.PlayerState{
		ID:          p.ID,
		Name:        p.Name,
		Skin:        p.Skin,
		X:           p.Pos.X,
		Y:           p.Pos.Y,
		VX:          p.Vel.X,
		VY:          p.Vel.Y,
		Speed:       p.Speed,
		Score:       p.Score,
		Rails:       p.Rails,
		Alive:       p.Alive,
		DeathReason: p.DeathReason,
		Size:        p.Size,
		Color:       p.Color,
		Shield:      p.HasEffect(PowerUpShield),
		Magnet:      p.HasEffect(PowerUpMagnet),
	}
}
