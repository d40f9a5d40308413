package directory

import (
	"fmt"

	"railrush.io/internal/sim/room"
)

// Replay applies one logged tick to r: the recorded commands in order, then the step.
// It returns the resulting digest and an error when the room is not at the entry's tick.
// Faulted entries return an empty digest, matching what was logged.
func Replay(r *room.Room, e TickLogEntry) (string, error) {
	if e.RoomID != "" && e.RoomID != r.ID() {
		return "", fmt.Errorf("room mismatch: entry=%s room=%s", e.RoomID, r.ID())
	}
	if want := r.Tick() + 1; e.Tick != want {
		return "", fmt.Errorf("tick mismatch: entry=%d want=%d", e.Tick, want)
	}
	for i, c := range e.Commands {
		switch c.Kind {
		case CmdJoin:
			r.Join(c.PlayerID, c.Name, c.Skin, c.At)
		case CmdInput:
			if c.Input == nil {
				return "", fmt.Errorf("tick %d command %d: input without payload", e.Tick, i)
			}
			r.SetInput(c.PlayerID, *c.Input)
		case CmdPlace:
			if c.Place == nil {
				return "", fmt.Errorf("tick %d command %d: place without payload", e.Tick, i)
			}
			r.PlaceTrack(c.PlayerID, *c.Place, c.At)
		case CmdLeave:
			r.Leave(c.PlayerID)
		default:
			return "", fmt.Errorf("tick %d command %d: unknown kind %q", e.Tick, i, c.Kind)
		}
	}
	if e.Fault {
		// The live step panicked; replaying it reproduces the same partial step.
		if _, err := stepRoom(r, e.Now); err == nil {
			return "", fmt.Errorf("tick %d: logged fault did not reproduce", e.Tick)
		}
		return "", nil
	}
	r.Step(e.Now)
	r.TakeDeaths()
	return r.Digest(), nil
}
