package room

import (
	"encoding/json"
	"testing"

	"railrush.io/internal/protocol"
)

func TestEncode_EveryEventCarriesItsType(t *testing.T) {
	evs := []Event{
		PlayerJoined{Player: protocol.PlayerState{ID: "a"}},
		PlayerLeft{PlayerID: "a"},
		TrackPlaced{PlayerID: "a"},
		ResourceSpawned{Resource: protocol.ResourceState{ID: "R000001"}},
		ResourceCollected{PlayerID: "a", ResourceID: "R000001", Score: 8, Rails: 2},
		PowerUpSpawned{PowerUp: protocol.PowerUpState{ID: "U000001"}},
		PowerUpCollected{PlayerID: "a", PowerUpID: "U000001", Kind: PowerUpMagnet},
		Snapshot{RoomID: "ROOM01", Tick: 3},
	}
	for _, ev := range evs {
		b, err := Encode(ev)
		if err != nil {
			t.Fatalf("%T: %v", ev, err)
		}
		var base protocol.BaseMessage
		if err := json.Unmarshal(b, &base); err != nil {
			t.Fatalf("%T: %v", ev, err)
		}
		if base.Type != ev.Type() || base.ProtocolVersion != protocol.Version {
			t.Fatalf("%T encoded as %s", ev, b)
		}
	}
}

func TestEncode_CollectedPayload(t *testing.T) {
	b, err := Encode(PowerUpCollected{PlayerID: "a", PowerUpID: "U000002", Kind: PowerUpSpeed})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var m protocol.PowerUpCollectedMsg
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.PowerUpType != "speed" || m.PowerUpID != "U000002" || m.PlayerID != "a" {
		t.Fatalf("msg=%+v", m)
	}
}
