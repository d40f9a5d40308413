package room

import (
	"encoding/json"
	"fmt"

	"railrush.io/internal/protocol"
)

// Event is one outbound room event. The set of implementations is closed.
type Event interface {
	Type() string
	isEvent()
}

type PlayerJoined struct{ Player protocol.PlayerState }

type PlayerLeft struct{ PlayerID string }

type TrackPlaced struct {
	Track    protocol.TrackState
	PlayerID string
}

type ResourceSpawned struct{ Resource protocol.ResourceState }

type ResourceCollected struct {
	PlayerID   string
	ResourceID string
	Score      int
	Rails      int
}

type PowerUpSpawned struct{ PowerUp protocol.PowerUpState }

type PowerUpCollected struct {
	PlayerID  string
	PowerUpID string
	Kind      PowerUpKind
}

// Snapshot is the full room state broadcast at the end of every step.
type Snapshot struct {
	RoomID string
	Tick   uint64
	State  protocol.GameState
}

func (PlayerJoined) Type() string      { return protocol.TypePlayerJoined }
func (PlayerLeft) Type() string        { return protocol.TypePlayerLeft }
func (TrackPlaced) Type() string       { return protocol.TypeTrackPlaced }
func (ResourceSpawned) Type() string   { return protocol.TypeResourceSpawned }
func (ResourceCollected) Type() string { return protocol.TypeResourceCollected }
func (PowerUpSpawned) Type() string    { return protocol.TypePowerUpSpawned }
func (PowerUpCollected) Type() string  { return protocol.TypePowerUpCollected }
func (Snapshot) Type() string          { return protocol.TypeGameState }

func (PlayerJoined) isEvent()      {}
func (PlayerLeft) isEvent()        {}
func (TrackPlaced) isEvent()       {}
func (ResourceSpawned) isEvent()   {}
func (ResourceCollected) isEvent() {}
func (PowerUpSpawned) isEvent()    {}
func (PowerUpCollected) isEvent()  {}
func (Snapshot) isEvent()          {}

// Message maps an event to its wire message.
func Message(ev Event) (any, error) {
	v := protocol.Version
	switch e := ev.(type) {
	case PlayerJoined:
		return protocol.PlayerJoinedMsg{Type: e.Type(), ProtocolVersion: v, Player: e.Player}, nil
	case PlayerLeft:
		return protocol.PlayerLeftMsg{Type: e.Type(), ProtocolVersion: v, PlayerID: e.PlayerID}, nil
	case TrackPlaced:
		return protocol.TrackPlacedMsg{Type: e.Type(), ProtocolVersion: v, Track: e.Track, PlayerID: e.PlayerID}, nil
	case ResourceSpawned:
		return protocol.ResourceSpawnedMsg{Type: e.Type(), ProtocolVersion: v, Resource: e.Resource}, nil
	case ResourceCollected:
		return protocol.ResourceCollectedMsg{
			Type: e.Type(), ProtocolVersion: v,
			PlayerID: e.PlayerID, ResourceID: e.ResourceID, Score: e.Score, Rails: e.Rails,
		}, nil
	case PowerUpSpawned:
		return protocol.PowerUpSpawnedMsg{Type: e.Type(), ProtocolVersion: v, PowerUp: e.PowerUp}, nil
	case PowerUpCollected:
		return protocol.PowerUpCollectedMsg{
			Type: e.Type(), ProtocolVersion: v,
			PlayerID: e.PlayerID, PowerUpID: e.PowerUpID, PowerUpType: string(e.Kind),
		}, nil
	case Snapshot:
		return protocol.GameStateMsg{Type: e.Type(), ProtocolVersion: v, RoomID: e.RoomID, Tick: e.Tick, GameState: e.State}, nil
	default:
		return nil, fmt.Errorf("room: unknown event %T", ev)
	}
}

// Encode returns the JSON wire form of ev.
func Encode(ev Event) ([]byte, error) {
	m, err := Message(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}
