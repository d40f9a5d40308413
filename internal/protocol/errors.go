package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrBadVersion      = "E_BAD_VERSION"

	// Directory routing.
	ErrRoomBusy = "E_ROOM_BUSY"
	ErrInternal = "E_INTERNAL"
)

// Gameplay reasons. These are plain lowercase strings because clients render them directly.
const (
	ReasonInsufficientRails = "insufficient_rails"
	ReasonOutOfBounds       = "out_of_bounds"
	ReasonOffRails          = "off_rails"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:      {},
	ErrBadVersion:           {},
	ErrRoomBusy:             {},
	ErrInternal:             {},
	ReasonInsufficientRails: {},
	ReasonOutOfBounds:       {},
	ReasonOffRails:          {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
