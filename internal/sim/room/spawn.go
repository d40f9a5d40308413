package room

import (
	"fmt"
	"math/rand"

	"railrush.io/internal/protocol"
	"railrush.io/internal/sim/geom"
)

type Resource struct {
	ID    string
	Pos   geom.Vec2
	Size  float64
	Value int
	Rails int
}

func (r Resource) State() protocol.ResourceState {
	return protocol.ResourceState{
		ID:    r.ID,
		X:     r.Pos.X,
		Y:     r.Pos.Y,
		Size:  r.Size,
		Value: r.Value,
		Rails: r.Rails,
		Type:  "resource",
	}
}

type PowerUp struct {
	ID         string
	Pos        geom.Vec2
	Size       float64
	Kind       PowerUpKind
	DurationMS int64
}

func (p PowerUp) State() protocol.PowerUpState {
	return protocol.PowerUpState{
		ID:       p.ID,
		X:        p.Pos.X,
		Y:        p.Pos.Y,
		Size:     p.Size,
		Type:     string(p.Kind),
		Duration: p.DurationMS,
	}
}

func (r *Room) spawn(now int64) {
	sp := r.tune.Spawn
	if now-r.lastResourceSpawn > sp.ResourceEveryMS {
		rng := r.nextRNG()
		r.AddResource(Resource{
			Pos:   r.randomPos(rng),
			Size:  sp.ResourceSize,
			Value: sp.ResourceValueMin + rng.Intn(sp.ResourceValueMax-sp.ResourceValueMin+1),
			Rails: sp.ResourceRailsMin + rng.Intn(sp.ResourceRailsMax-sp.ResourceRailsMin+1),
		})
		r.lastResourceSpawn = now
	}
	if now-r.lastPowerUpSpawn > sp.PowerUpEveryMS {
		rng := r.nextRNG()
		r.AddPowerUp(PowerUp{
			Pos:        r.randomPos(rng),
			Size:       sp.PowerUpSize,
			Kind:       powerUpKinds[rng.Intn(len(powerUpKinds))],
			DurationMS: sp.PowerUpDurationMS,
		})
		r.lastPowerUpSpawn = now
	}
}

// nextRNG derives a fresh source from the room seed and spawn counter, so a restored
// room draws the same values as the uninterrupted one.
func (r *Room) nextRNG() *rand.Rand {
	r.spawnSeq++
	mix := uint64(r.seed) ^ (r.spawnSeq * 0x9E3779B97F4A7C15)
	return rand.New(rand.NewSource(int64(mix)))
}

func (r *Room) randomPos(rng *rand.Rand) geom.Vec2 {
	a := r.tune.Spawn.Area
	return geom.V(rng.Float64()*2*a-a, rng.Float64()*2*a-a)
}

// AddResource places a resource and emits ResourceSpawned. An empty ID is assigned.
func (r *Room) AddResource(res Resource) Resource {
	if res.ID == "" {
		r.nextResource++
		res.ID = fmt.Sprintf("R%06d", r.nextResource)
	}
	r.resources = append(r.resources, res)
	r.emit(ResourceSpawned{Resource: res.State()})
	return res
}

// AddPowerUp places a power-up and emits PowerUpSpawned. An empty ID is assigned.
func (r *Room) AddPowerUp(pu PowerUp) PowerUp {
	if pu.ID == "" {
		r.nextPowerUp++
		pu.ID = fmt.Sprintf("U%06d", r.nextPowerUp)
	}
	r.powerUps = append(r.powerUps, pu)
	r.emit(PowerUpSpawned{PowerUp: pu.State()})
	return pu
}

func (r *Room) Resources() []Resource { return r.resources }
func (r *Room) PowerUps() []PowerUp   { return r.powerUps }
