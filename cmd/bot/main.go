package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"railrush.io/internal/protocol"
)

// square is the steering cycle: right, down, left, up.
var square = []struct{ up, down, left, right bool }{
	{right: true},
	{down: true},
	{left: true},
	{up: true},
}

func main() {
	var (
		url     = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name    = flag.String("name", "bot", "player name")
		skin    = flag.String("skin", "", "player skin")
		leg     = flag.Duration("leg", 2*time.Second, "time spent on each side of the square")
		placeTo = flag.Duration("place_every", 0, "also send explicit PLACE_TRACK at this interval (0 disables)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	join := protocol.JoinMsg{
		Type:            protocol.TypeJoin,
		ProtocolVersion: protocol.Version,
		Name:            *name,
		Skin:            *skin,
		MaxQueue:        16,
	}
	if err := conn.WriteJSON(join); err != nil {
		logger.Fatalf("send JOIN: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	msgs := make(chan []byte, 64)
	go func() {
		defer close(msgs)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				logger.Printf("read: %v", err)
				return
			}
			msgs <- b
		}
	}()

	steer := time.NewTicker(*leg)
	defer steer.Stop()
	var placeC <-chan time.Time
	if *placeTo > 0 {
		pt := time.NewTicker(*placeTo)
		defer pt.Stop()
		placeC = pt.C
	}

	var (
		playerID string
		side     int
		alive    = true
		lastLog  time.Time
	)
	sendInput := func() {
		s := square[side%len(square)]
		hold := true
		in := protocol.InputMsg{
			Type:            protocol.TypeInput,
			ProtocolVersion: protocol.Version,
			Up:              &s.up,
			Down:            &s.down,
			Left:            &s.left,
			Right:           &s.right,
			PlaceTrack:      &hold,
		}
		if err := conn.WriteJSON(in); err != nil {
			logger.Printf("send INPUT: %v", err)
		}
	}

	for {
		select {
		case <-stop:
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
			return

		case <-steer.C:
			if playerID == "" || !alive {
				continue
			}
			side++
			sendInput()

		case <-placeC:
			if playerID == "" || !alive {
				continue
			}
			if err := conn.WriteJSON(protocol.PlaceTrackMsg{Type: protocol.TypePlaceTrack, ProtocolVersion: protocol.Version}); err != nil {
				logger.Printf("send PLACE_TRACK: %v", err)
			}

		case b, ok := <-msgs:
			if !ok {
				return
			}
			base, err := protocol.DecodeBase(b)
			if err != nil {
				continue
			}
			switch base.Type {
			case protocol.TypeJoined:
				var j protocol.JoinedMsg
				if err := json.Unmarshal(b, &j); err != nil {
					continue
				}
				playerID = j.PlayerID
				logger.Printf("JOINED room=%s player=%s tick_rate=%d players=%d", j.RoomID, j.PlayerID, j.TickRateHz, len(j.State.Players))
				sendInput()

			case protocol.TypePlaceTrackResult:
				var r protocol.PlaceTrackResultMsg
				if err := json.Unmarshal(b, &r); err != nil {
					continue
				}
				logger.Printf("PLACE_TRACK success=%v reason=%s", r.Success, r.Reason)

			case protocol.TypeError:
				var e protocol.ErrorMsg
				if err := json.Unmarshal(b, &e); err != nil {
					continue
				}
				logger.Printf("ERROR code=%s message=%s", e.Code, e.Message)

			case protocol.TypeGameState:
				var gs protocol.GameStateMsg
				if err := json.Unmarshal(b, &gs); err != nil {
					continue
				}
				for _, p := range gs.Players {
					if p.ID != playerID {
						continue
					}
					if alive && !p.Alive {
						alive = false
						logger.Printf("DIED reason=%s score=%d tick=%d", p.DeathReason, p.Score, gs.Tick)
					}
					if time.Since(lastLog) >= 5*time.Second {
						lastLog = time.Now()
						logger.Printf("tick=%d pos=(%.0f,%.0f) speed=%.1f rails=%d score=%d tracks=%d",
							gs.Tick, p.X, p.Y, p.Speed, p.Rails, p.Score, len(gs.Tracks))
					}
				}
			}
		}
	}
}
