package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	// client -> server
	TypeJoin       = "JOIN"
	TypeInput      = "INPUT"
	TypePlaceTrack = "PLACE_TRACK"

	// server -> client (direct replies)
	TypeJoined           = "JOINED"
	TypePlaceTrackResult = "PLACE_TRACK_RESULT"
	TypeError            = "ERROR"

	// server -> room subscribers
	TypePlayerJoined      = "PLAYER_JOINED"
	TypePlayerLeft        = "PLAYER_LEFT"
	TypeTrackPlaced       = "TRACK_PLACED"
	TypeResourceSpawned   = "RESOURCE_SPAWNED"
	TypeResourceCollected = "RESOURCE_COLLECTED"
	TypePowerUpSpawned    = "POWERUP_SPAWNED"
	TypePowerUpCollected  = "POWERUP_COLLECTED"
	TypeGameState         = "GAME_STATE"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
