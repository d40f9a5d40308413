package room

import (
	"fmt"

	"railrush.io/internal/persistence/snapshot"
	"railrush.io/internal/sim/geom"
	"railrush.io/internal/sim/track"
)

func snapshotHeader(roomID string, tick uint64, takenAt int64) snapshot.Header {
	return snapshot.Header{Version: snapshot.Version, RoomID: roomID, Tick: tick, TakenAt: takenAt}
}

func vec(a [2]float64) geom.Vec2 { return geom.V(a[0], a[1]) }
func arr(v geom.Vec2) [2]float64 { return [2]float64{v.X, v.Y} }

// Export captures the room at the current tick.
func (r *Room) Export(now int64) snapshot.RoomV1 {
	snap := snapshot.RoomV1{
		Header:            snapshotHeader(r.id, r.tick, now),
		Tuning:            *r.tune,
		Seed:              r.seed,
		CreatedAt:         r.createdAt,
		LastResourceSpawn: r.lastResourceSpawn,
		LastPowerUpSpawn:  r.lastPowerUpSpawn,
		PeakPlayers:       r.peakPlayers,
		Counters: snapshot.CountersV1{
			SpawnSeq:     r.spawnSeq,
			NextResource: r.nextResource,
			NextPowerUp:  r.nextPowerUp,
		},
	}
	for _, id := range r.order {
		snap.Players = append(snap.Players, exportPlayer(r.players[id]))
	}
	for _, s := range r.tracks {
		snap.Tracks = append(snap.Tracks, snapshot.TrackV1{
			Start: arr(s.Start), Angle: s.Angle, Owner: s.Owner,
			CreatedAt: s.CreatedAt, Length: s.Length, Width: s.Width,
		})
	}
	for _, res := range r.resources {
		snap.Resources = append(snap.Resources, snapshot.ResourceV1{
			ID: res.ID, Pos: arr(res.Pos), Size: res.Size, Value: res.Value, Rails: res.Rails,
		})
	}
	for _, pu := range r.powerUps {
		snap.PowerUps = append(snap.PowerUps, snapshot.PowerUpV1{
			ID: pu.ID, Pos: arr(pu.Pos), Size: pu.Size, Kind: string(pu.Kind), DurationMS: pu.DurationMS,
		})
	}
	return snap
}

func exportInput(in Input) snapshot.InputV1 {
	return snapshot.InputV1{Up: in.Up, Down: in.Down, Left: in.Left, Right: in.Right, PlaceTrack: in.PlaceTrack}
}

func importInput(in snapshot.InputV1) Input {
	return Input{Up: in.Up, Down: in.Down, Left: in.Left, Right: in.Right, PlaceTrack: in.PlaceTrack}
}

func exportPlayer(p *Player) snapshot.PlayerV1 {
	out := snapshot.PlayerV1{
		ID: p.ID, Name: p.Name, Skin: p.Skin, Color: p.Color, Size: p.Size,
		Pos: arr(p.Pos), Vel: arr(p.Vel), Speed: p.Speed, MaxSpeed: p.MaxSpeed,
		Score: p.Score, Rails: p.Rails, RailsPlaced: p.RailsPlaced,
		Alive: p.Alive, DeathReason: p.DeathReason, DeathReported: p.deathReported, JoinedAt: p.JoinedAt,
		LastRailAt: p.lastRailAt, PlacedRail: p.placedRail,
		LastCollisionAt: p.lastCollisionAt, Collided: p.collided,
		Input: exportInput(p.input), Buffered: exportInput(p.buffered),
	}
	for _, e := range p.effects {
		out.Effects = append(out.Effects, snapshot.EffectV1{Kind: string(e.kind), ExpiresAt: e.expiresAt})
	}
	return out
}

// FromSnapshot rebuilds a room that continues exactly where the exported one stopped.
func FromSnapshot(snap snapshot.RoomV1) (*Room, error) {
	if snap.Header.Version != snapshot.Version {
		return nil, fmt.Errorf("room: unsupported snapshot version %d", snap.Header.Version)
	}
	if err := snap.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("room: snapshot tuning: %w", err)
	}
	r := New(Config{ID: snap.Header.RoomID, Tuning: snap.Tuning, Seed: snap.Seed, Now: snap.CreatedAt})
	r.tick = snap.Header.Tick
	r.lastResourceSpawn = snap.LastResourceSpawn
	r.lastPowerUpSpawn = snap.LastPowerUpSpawn
	r.peakPlayers = snap.PeakPlayers
	r.spawnSeq = snap.Counters.SpawnSeq
	r.nextResource = snap.Counters.NextResource
	r.nextPowerUp = snap.Counters.NextPowerUp

	for _, pv := range snap.Players {
		if _, dup := r.players[pv.ID]; dup {
			return nil, fmt.Errorf("room: duplicate player %q in snapshot", pv.ID)
		}
		p := &Player{
			ID: pv.ID, Name: pv.Name, Skin: pv.Skin, Color: pv.Color, Size: pv.Size,
			Pos: vec(pv.Pos), Vel: vec(pv.Vel), Speed: pv.Speed, MaxSpeed: pv.MaxSpeed,
			Score: pv.Score, Rails: pv.Rails, RailsPlaced: pv.RailsPlaced,
			Alive: pv.Alive, DeathReason: pv.DeathReason, JoinedAt: pv.JoinedAt,
			lastRailAt: pv.LastRailAt, placedRail: pv.PlacedRail,
			lastCollisionAt: pv.LastCollisionAt, collided: pv.Collided,
			deathReported: pv.DeathReported,
			input:         importInput(pv.Input),
			buffered:      importInput(pv.Buffered),
			tune:          r.tune,
		}
		for _, e := range pv.Effects {
			p.effects = append(p.effects, effect{kind: PowerUpKind(e.Kind), expiresAt: e.ExpiresAt})
		}
		r.players[p.ID] = p
		r.order = append(r.order, p.ID)
	}
	for _, tv := range snap.Tracks {
		r.tracks = append(r.tracks, track.NewSized(vec(tv.Start), tv.Angle, tv.Owner, tv.CreatedAt, tv.Length, tv.Width))
	}
	for _, rv := range snap.Resources {
		r.resources = append(r.resources, Resource{ID: rv.ID, Pos: vec(rv.Pos), Size: rv.Size, Value: rv.Value, Rails: rv.Rails})
	}
	for _, pv := range snap.PowerUps {
		r.powerUps = append(r.powerUps, PowerUp{ID: pv.ID, Pos: vec(pv.Pos), Size: pv.Size, Kind: PowerUpKind(pv.Kind), DurationMS: pv.DurationMS})
	}
	return r, nil
}
