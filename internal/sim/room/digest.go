package room

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

// Digest hashes the simulation state for replay verification. It covers everything Export
// carries except the tuning block and the wall clock.
func (r *Room) Digest() string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, r.tick)
	digestWriteI64(h, &tmp, r.seed)
	digestWriteI64(h, &tmp, r.createdAt)
	digestWriteI64(h, &tmp, r.lastResourceSpawn)
	digestWriteI64(h, &tmp, r.lastPowerUpSpawn)
	digestWriteI64(h, &tmp, int64(r.peakPlayers))
	digestWriteU64(h, &tmp, r.spawnSeq)
	digestWriteU64(h, &tmp, r.nextResource)
	digestWriteU64(h, &tmp, r.nextPowerUp)

	r.digestPlayers(h, &tmp)
	r.digestWorld(h, &tmp)

	return hex.EncodeToString(h.Sum(nil))
}

func (r *Room) digestPlayers(h hashWriter, tmp *[8]byte) {
	digestWriteU64(h, tmp, uint64(len(r.order)))
	for _, id := range r.order {
		p := r.players[id]
		digestWriteString(h, tmp, p.ID)
		digestWriteString(h, tmp, p.Name)
		digestWriteString(h, tmp, p.Skin)
		digestWriteString(h, tmp, p.Color)
		digestWriteF64(h, tmp, p.Size)
		digestWriteF64(h, tmp, p.Pos.X)
		digestWriteF64(h, tmp, p.Pos.Y)
		digestWriteF64(h, tmp, p.Vel.X)
		digestWriteF64(h, tmp, p.Vel.Y)
		digestWriteF64(h, tmp, p.Speed)
		digestWriteF64(h, tmp, p.MaxSpeed)
		digestWriteI64(h, tmp, int64(p.Score))
		digestWriteI64(h, tmp, int64(p.Rails))
		digestWriteI64(h, tmp, int64(p.RailsPlaced))
		digestWriteString(h, tmp, p.DeathReason)
		digestWriteI64(h, tmp, p.JoinedAt)
		digestWriteI64(h, tmp, p.lastRailAt)
		digestWriteI64(h, tmp, p.lastCollisionAt)
		h.Write([]byte{
			boolByte(p.Alive), boolByte(p.deathReported), boolByte(p.placedRail), boolByte(p.collided),
			inputBits(p.input), inputBits(p.buffered),
		})
		digestWriteU64(h, tmp, uint64(len(p.effects)))
		for _, e := range p.effects {
			digestWriteString(h, tmp, string(e.kind))
			digestWriteI64(h, tmp, e.expiresAt)
		}
	}
}

func (r *Room) digestWorld(h hashWriter, tmp *[8]byte) {
	digestWriteU64(h, tmp, uint64(len(r.tracks)))
	for _, s := range r.tracks {
		digestWriteF64(h, tmp, s.Start.X)
		digestWriteF64(h, tmp, s.Start.Y)
		digestWriteF64(h, tmp, s.Angle)
		digestWriteString(h, tmp, s.Owner)
		digestWriteI64(h, tmp, s.CreatedAt)
		digestWriteF64(h, tmp, s.Length)
		digestWriteF64(h, tmp, s.Width)
	}
	digestWriteU64(h, tmp, uint64(len(r.resources)))
	for _, res := range r.resources {
		digestWriteString(h, tmp, res.ID)
		digestWriteF64(h, tmp, res.Pos.X)
		digestWriteF64(h, tmp, res.Pos.Y)
		digestWriteF64(h, tmp, res.Size)
		digestWriteI64(h, tmp, int64(res.Value))
		digestWriteI64(h, tmp, int64(res.Rails))
	}
	digestWriteU64(h, tmp, uint64(len(r.powerUps)))
	for _, pu := range r.powerUps {
		digestWriteString(h, tmp, pu.ID)
		digestWriteF64(h, tmp, pu.Pos.X)
		digestWriteF64(h, tmp, pu.Pos.Y)
		digestWriteF64(h, tmp, pu.Size)
		digestWriteString(h, tmp, string(pu.Kind))
		digestWriteI64(h, tmp, pu.DurationMS)
	}
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) { digestWriteU64(h, tmp, uint64(v)) }

func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

// Strings are length-prefixed so adjacent fields cannot alias.
func digestWriteString(h hashWriter, tmp *[8]byte, s string) {
	digestWriteU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func inputBits(in Input) byte {
	return boolByte(in.Up) | boolByte(in.Down)<<1 | boolByte(in.Left)<<2 | boolByte(in.Right)<<3 | boolByte(in.PlaceTrack)<<4
}
