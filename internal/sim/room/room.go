// Package room is the authoritative per-room simulation. A Room is not safe for concurrent
// use; the directory drives every room from a single goroutine.
package room

import (
	"railrush.io/internal/protocol"
	"railrush.io/internal/sim/geom"
	"railrush.io/internal/sim/track"
	"railrush.io/internal/sim/tuning"
)

type Config struct {
	ID     string
	Tuning tuning.Tuning
	Seed   int64
	// Creation time in unix ms; spawn timers start here.
	Now int64
}

type Room struct {
	id   string
	tune *tuning.Tuning
	seed int64
	tick uint64

	players map[string]*Player
	order   []string // join order; every per-player pass iterates this

	tracks    []track.Segment
	resources []Resource
	powerUps  []PowerUp

	createdAt         int64
	lastResourceSpawn int64
	lastPowerUpSpawn  int64
	peakPlayers       int

	spawnSeq     uint64
	nextResource uint64
	nextPowerUp  uint64

	events []Event
}

func New(cfg Config) *Room {
	t := cfg.Tuning
	return &Room{
		id:                cfg.ID,
		tune:              &t,
		seed:              cfg.Seed,
		players:           make(map[string]*Player),
		createdAt:         cfg.Now,
		lastResourceSpawn: cfg.Now,
		lastPowerUpSpawn:  cfg.Now,
	}
}

func (r *Room) ID() string               { return r.id }
func (r *Room) Tick() uint64             { return r.tick }
func (r *Room) Len() int                 { return len(r.order) }
func (r *Room) Full() bool               { return len(r.order) >= r.tune.MaxPlayersPerRoom }
func (r *Room) CreatedAt() int64         { return r.createdAt }
func (r *Room) PeakPlayers() int         { return r.peakPlayers }
func (r *Room) Tuning() tuning.Tuning    { return *r.tune }
func (r *Room) Player(id string) *Player { return r.players[id] }

// Players returns the room's players in join order.
func (r *Room) Players() []*Player {
	out := make([]*Player, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.players[id])
	}
	return out
}

func (r *Room) Tracks() []track.Segment { return r.tracks }

func (r *Room) emit(ev Event) { r.events = append(r.events, ev) }

// Drain returns and clears the events emitted since the last drain.
func (r *Room) Drain() []Event {
	evs := r.events
	r.events = nil
	return evs
}

// Join adds a fresh player and emits PlayerJoined. Joining an id that is already present
// returns the existing player.
func (r *Room) Join(id, name, skin string, now int64) *Player {
	if p := r.players[id]; p != nil {
		return p
	}
	p := NewPlayer(id, name, skin, r.tune)
	p.JoinedAt = now
	r.players[id] = p
	r.order = append(r.order, id)
	if len(r.order) > r.peakPlayers {
		r.peakPlayers = len(r.order)
	}
	r.emit(PlayerJoined{Player: p.State()})
	return p
}

// Leave removes the player and emits PlayerLeft. It reports whether the player was present.
func (r *Room) Leave(id string) bool {
	if _, ok := r.players[id]; !ok {
		return false
	}
	delete(r.players, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.emit(PlayerLeft{PlayerID: id})
	return true
}

// SetInput buffers input for the next step. Unknown players are ignored.
func (r *Room) SetInput(id string, msg protocol.InputMsg) bool {
	p := r.players[id]
	if p == nil {
		return false
	}
	p.BufferInput(msg)
	return true
}

// PlaceTrack handles an explicit placement command. found is false for unknown players.
func (r *Room) PlaceTrack(id string, msg protocol.PlaceTrackMsg, now int64) (ok bool, reason string, found bool) {
	p := r.players[id]
	if p == nil {
		return false, "", false
	}
	if p.Rails <= 0 {
		return false, protocol.ReasonInsufficientRails, true
	}
	pos := p.Pos
	if msg.X != nil {
		pos.X = *msg.X
	}
	if msg.Y != nil {
		pos.Y = *msg.Y
	}
	angle := p.Heading()
	if msg.Angle != nil {
		angle = *msg.Angle
	}
	p.Rails--
	p.RailsPlaced++
	r.appendTrack(p.ID, pos, angle, now)
	return true, "", true
}

func (r *Room) appendTrack(owner string, pos geom.Vec2, angle float64, now int64) {
	s := track.NewSized(pos, angle, owner, now, r.tune.Track.Length, r.tune.Track.Width)
	r.tracks = append(r.tracks, s)
	r.emit(TrackPlaced{Track: s.State(), PlayerID: owner})
}

// Step advances the room by one tick and returns every event emitted since the last drain,
// ending with the full state broadcast.
func (r *Room) Step(now int64) []Event {
	r.tick++
	dt := r.tune.PhysicsDT()

	for _, id := range r.order {
		p := r.players[id]
		if req := p.update(dt, now); req != nil {
			r.appendTrack(p.ID, req.pos, req.angle, now)
		}
	}
	r.decayTracks(now)
	r.resolveCollisions(now)
	r.spawn(now)

	r.emit(Snapshot{RoomID: r.id, Tick: r.tick, State: r.State(now)})
	return r.Drain()
}

func (r *Room) decayTracks(now int64) {
	kept := r.tracks[:0]
	for _, s := range r.tracks {
		if !s.Expired(now, r.tune.Track.DecayMS) {
			kept = append(kept, s)
		}
	}
	for i := len(kept); i < len(r.tracks); i++ {
		r.tracks[i] = track.Segment{}
	}
	r.tracks = kept
}

// Death is reported once per player.
type Death struct {
	PlayerID    string
	Name        string
	Reason      string
	Score       int
	RailsPlaced int
}

// TakeDeaths returns players that died since the previous call.
func (r *Room) TakeDeaths() []Death {
	var out []Death
	for _, id := range r.order {
		p := r.players[id]
		if p.Alive || p.deathReported {
			continue
		}
		p.deathReported = true
		out = append(out, Death{
			PlayerID:    p.ID,
			Name:        p.Name,
			Reason:      p.DeathReason,
			Score:       p.Score,
			RailsPlaced: p.RailsPlaced,
		})
	}
	return out
}

// State is the read-only projection broadcast every tick.
func (r *Room) State(now int64) protocol.GameState {
	st := protocol.GameState{
		Players:   make([]protocol.PlayerState, 0, len(r.order)),
		Tracks:    make([]protocol.TrackState, 0, len(r.tracks)),
		Resources: make([]protocol.ResourceState, 0, len(r.resources)),
		PowerUps:  make([]protocol.PowerUpState, 0, len(r.powerUps)),
		Timestamp: now,
	}
	for _, id := range r.order {
		st.Players = append(st.Players, r.players[id].State())
	}
	for _, s := range r.tracks {
		st.Tracks = append(st.Tracks, s.State())
	}
	for _, res := range r.resources {
		st.Resources = append(st.Resources, res.State())
	}
	for _, pu := range r.powerUps {
		st.PowerUps = append(st.PowerUps, pu.State())
	}
	return st
}
