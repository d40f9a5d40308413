package protocol

// JOIN (client -> server). Must be the first message on a connection.
type JoinMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Name            string `json:"name"`
	Skin            string `json:"skin,omitempty"`
	MaxQueue        int    `json:"max_queue,omitempty"`
}

// JOINED (server -> client)
type JoinedMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	RoomID          string    `json:"room_id"`
	PlayerID        string    `json:"player_id"`
	TickRateHz      int       `json:"tick_rate_hz"`
	State           GameState `json:"state"`
}

// INPUT (client -> server). Absent flags keep their last received value.
type InputMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Up              *bool    `json:"up,omitempty"`
	Down            *bool    `json:"down,omitempty"`
	Left            *bool    `json:"left,omitempty"`
	Right           *bool    `json:"right,omitempty"`
	PlaceTrack      *bool    `json:"place_track,omitempty"`
	Mouse           *Pointer `json:"mouse,omitempty"`
	Touch           *Pointer `json:"touch,omitempty"`
}

// Pointer is the client's raw mouse or touch state, carried for clients that steer with it.
type Pointer struct {
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Pressed      bool    `json:"pressed"`
	LeftPressed  bool    `json:"left_pressed,omitempty"`
	RightPressed bool    `json:"right_pressed,omitempty"`
}

// PLACE_TRACK (client -> server). Missing fields default to the player's position and heading.
type PlaceTrackMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	X               *float64 `json:"x,omitempty"`
	Y               *float64 `json:"y,omitempty"`
	Angle           *float64 `json:"angle,omitempty"`
}

// PLACE_TRACK_RESULT (server -> client)
type PlaceTrackResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Success         bool   `json:"success"`
	Reason          string `json:"reason,omitempty"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}

type PlayerState struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Skin        string  `json:"skin"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	VX          float64 `json:"vx"`
	VY          float64 `json:"vy"`
	Speed       float64 `json:"speed"`
	Score       int     `json:"score"`
	Rails       int     `json:"rails"`
	Alive       bool    `json:"alive"`
	DeathReason string  `json:"death_reason,omitempty"`
	Size        float64 `json:"size"`
	Color       string  `json:"color"`
	Shield      bool    `json:"shield,omitempty"`
	Magnet      bool    `json:"magnet,omitempty"`
}

type TrackState struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	EndX      float64 `json:"end_x"`
	EndY      float64 `json:"end_y"`
	Angle     float64 `json:"angle"`
	PlayerID  string  `json:"player_id"`
	CreatedAt int64   `json:"created_at"`
	Color     string  `json:"color"`
	Width     float64 `json:"width"`
}

type ResourceState struct {
	ID    string  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Size  float64 `json:"size"`
	Value int     `json:"value"`
	Rails int     `json:"rails"`
	Type  string  `json:"type"`
}

type PowerUpState struct {
	ID       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Size     float64 `json:"size"`
	Type     string  `json:"type"`
	Duration int64   `json:"duration"`
}

// GameState is the full, non-incremental room projection sent every tick.
type GameState struct {
	Players   []PlayerState   `json:"players"`
	Tracks    []TrackState    `json:"tracks"`
	Resources []ResourceState `json:"resources"`
	PowerUps  []PowerUpState  `json:"power_ups"`
	Timestamp int64           `json:"timestamp"`
}

// GAME_STATE (server -> room)
type GameStateMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RoomID          string `json:"room_id"`
	Tick            uint64 `json:"tick"`
	GameState
}

// PLAYER_JOINED (server -> room)
type PlayerJoinedMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Player          PlayerState `json:"player"`
}

// PLAYER_LEFT (server -> room)
type PlayerLeftMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerID        string `json:"player_id"`
}

// TRACK_PLACED (server -> room)
type TrackPlacedMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Track           TrackState `json:"track"`
	PlayerID        string     `json:"player_id"`
}

// RESOURCE_SPAWNED (server -> room)
type ResourceSpawnedMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Resource        ResourceState `json:"resource"`
}

// RESOURCE_COLLECTED (server -> room)
type ResourceCollectedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerID        string `json:"player_id"`
	ResourceID      string `json:"resource_id"`
	Score           int    `json:"score"`
	Rails           int    `json:"rails"`
}

// POWERUP_SPAWNED (server -> room)
type PowerUpSpawnedMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	PowerUp         PowerUpState `json:"power_up"`
}

// POWERUP_COLLECTED (server -> room)
type PowerUpCollectedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerID        string `json:"player_id"`
	PowerUpID       string `json:"power_up_id"`
	PowerUpType     string `json:"power_up_type"`
}

// LeaderboardEntry is served by /leaderboard.
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Score    int64  `json:"score"`
}
