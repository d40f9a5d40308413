package room

type PowerUpKind string

const (
	PowerUpSpeed  PowerUpKind = "speed"
	PowerUpShield PowerUpKind = "shield"
	PowerUpMagnet PowerUpKind = "magnet"
	PowerUpBoost  PowerUpKind = "boost"
)

var powerUpKinds = [...]PowerUpKind{PowerUpSpeed, PowerUpShield, PowerUpMagnet, PowerUpBoost}

// effect is a timed overlay. It is reverted by the tick once now reaches expiresAt.
type effect struct {
	kind      PowerUpKind
	expiresAt int64
}

// ApplyPowerUp starts a timed effect, or for boost applies the one-shot velocity change.
func (p *Player) ApplyPowerUp(kind PowerUpKind, now, durationMS int64) {
	switch kind {
	case PowerUpBoost:
		p.Vel = p.Vel.Scale(p.tune.Spawn.BoostMultiplier)
		return
	case PowerUpSpeed, PowerUpShield, PowerUpMagnet:
		p.effects = append(p.effects, effect{kind: kind, expiresAt: now + durationMS})
		p.recomputeMaxSpeed()
	}
}

func (p *Player) HasEffect(kind PowerUpKind) bool {
	for _, e := range p.effects {
		if e.kind == kind {
			return true
		}
	}
	return false
}

func (p *Player) expireEffects(now int64) {
	if len(p.effects) == 0 {
		return
	}
	kept := p.effects[:0]
	for _, e := range p.effects {
		if e.expiresAt > now {
			kept = append(kept, e)
		}
	}
	p.effects = kept
	p.recomputeMaxSpeed()
}

// recomputeMaxSpeed derives the cap from the baseline so expiry restores it exactly.
func (p *Player) recomputeMaxSpeed() {
	m := p.tune.Player.MaxSpeed
	for _, e := range p.effects {
		if e.kind == PowerUpSpeed {
			m *= p.tune.Spawn.SpeedMultiplier
		}
	}
	p.MaxSpeed = m
}
