package room

import (
	"math"

	"railrush.io/internal/protocol"
	"railrush.io/internal/sim/geom"
)

func (r *Room) resolveCollisions(now int64) {
	r.collidePlayers(now)
	r.checkRails()
	r.collectResources()
	r.collectPowerUps(now)
}

// collidePlayers bounces overlapping pairs apart. Collisions never kill.
func (r *Room) collidePlayers(now int64) {
	for i := 0; i < len(r.order); i++ {
		a := r.players[r.order[i]]
		if !a.Alive {
			continue
		}
		for j := i + 1; j < len(r.order); j++ {
			b := r.players[r.order[j]]
			if !b.Alive {
				continue
			}
			if !a.collisionReady(now) || !b.collisionReady(now) {
				continue
			}
			d := a.Pos.Sub(b.Pos)
			dist := d.Len()
			if dist >= a.Size+b.Size {
				continue
			}
			dir := geom.V(1, 0)
			if dist > 0 {
				dir = d.Scale(1 / dist)
			}
			push := dir.Scale(r.tune.Player.CollisionPush)
			a.Pos = a.Pos.Add(push)
			b.Pos = b.Pos.Sub(push)

			k := r.tune.Player.CollisionDamping
			a.Vel = a.Vel.Scale(k)
			b.Vel = b.Vel.Scale(k)
			a.Speed = a.Vel.Len()
			b.Speed = b.Vel.Len()

			a.markCollision(now)
			b.markCollision(now)
		}
	}
}

func (r *Room) checkRails() {
	for _, id := range r.order {
		p := r.players[id]
		if !p.Alive {
			continue
		}
		if !r.onRails(p.Pos) {
			p.Die(protocol.ReasonOffRails)
		}
	}
}

// onRails is the survival rule. With no tracks the origin disc is safe; otherwise a player
// must stay near a track origin, or near any track when segment distance is enabled.
func (r *Room) onRails(pos geom.Vec2) bool {
	rc := r.tune.RailsCheck
	if len(r.tracks) == 0 {
		return pos.Len() < rc.NoTrackRadius
	}
	best := math.Inf(1)
	for i := range r.tracks {
		var d float64
		if rc.UseSegmentDistance {
			d = r.tracks[i].DistanceToPoint(pos)
		} else {
			d = geom.Distance(pos, r.tracks[i].Start)
		}
		if d < best {
			best = d
		}
	}
	return best < rc.MaxDistance
}

func (r *Room) collectResources() {
	if len(r.resources) == 0 {
		return
	}
	taken := make([]bool, len(r.resources))
	for _, id := range r.order {
		p := r.players[id]
		if !p.Alive {
			continue
		}
		for i := range r.resources {
			res := &r.resources[i]
			if taken[i] || !geom.CirclesOverlap(p.Pos, p.Size, res.Pos, res.Size) {
				continue
			}
			taken[i] = true
			p.AddScore(res.Value)
			p.AddRails(res.Rails)
			r.emit(ResourceCollected{PlayerID: p.ID, ResourceID: res.ID, Score: res.Value, Rails: res.Rails})
		}
	}
	kept := r.resources[:0]
	for i, res := range r.resources {
		if !taken[i] {
			kept = append(kept, res)
		}
	}
	r.resources = kept
}

func (r *Room) collectPowerUps(now int64) {
	if len(r.powerUps) == 0 {
		return
	}
	taken := make([]bool, len(r.powerUps))
	for _, id := range r.order {
		p := r.players[id]
		if !p.Alive {
			continue
		}
		for i := range r.powerUps {
			pu := &r.powerUps[i]
			if taken[i] || !geom.CirclesOverlap(p.Pos, p.Size, pu.Pos, pu.Size) {
				continue
			}
			taken[i] = true
			p.ApplyPowerUp(pu.Kind, now, pu.DurationMS)
			r.emit(PowerUpCollected{PlayerID: p.ID, PowerUpID: pu.ID, Kind: pu.Kind})
		}
	}
	kept := r.powerUps[:0]
	for i, pu := range r.powerUps {
		if !taken[i] {
			kept = append(kept, pu)
		}
	}
	r.powerUps = kept
}
