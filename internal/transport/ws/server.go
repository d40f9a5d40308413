package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"railrush.io/internal/protocol"
	"railrush.io/internal/sim/directory"
)

const (
	handshakeTimeout = 5 * time.Second
	writeWait        = 5 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = 54 * time.Second
	requestTimeout   = 3 * time.Second

	maxMessageSize = 64 * 1024

	defaultQueue = 16
	maxQueue     = 64
)

// Sessions is the part of the directory a connection talks to.
type Sessions interface {
	Join(ctx context.Context, connID, name, skin string, out chan []byte) (directory.JoinResponse, error)
	Input(connID string, msg protocol.InputMsg) error
	PlaceTrack(ctx context.Context, connID string, msg protocol.PlaceTrackMsg) (directory.PlaceResponse, error)
	Disconnect(ctx context.Context, connID string) error
}

type Server struct {
	sessions  Sessions
	validator *protocol.Validator
	log       *log.Logger

	upgrader websocket.Upgrader

	active   atomic.Int64
	rejected atomic.Uint64
}

func NewServer(sessions Sessions, validator *protocol.Validator, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		sessions:  sessions,
		validator: validator,
		log:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // browsers connect from any game host
		},
	}
}

// Active is the number of connections past the handshake.
func (s *Server) Active() int64 { return s.active.Load() }

// Rejected counts handshakes that failed.
func (s *Server) Rejected() uint64 { return s.rejected.Load() }

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		connID := uuid.NewString()
		out, ok := s.handshake(r.Context(), conn, connID)
		if !ok {
			s.rejected.Add(1)
			return
		}
		s.active.Add(1)
		defer s.active.Add(-1)

		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			if err := s.sessions.Disconnect(ctx, connID); err != nil && !errors.Is(err, directory.ErrClosed) {
				s.log.Printf("disconnect %s: %v", connID, err)
			}
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		replies := make(chan []byte, 8)
		go s.writer(ctx, cancel, conn, out, replies)
		s.reader(ctx, conn, connID, replies)
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn, connID string) (chan []byte, bool) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeJoin {
		closePolicy(conn, "expected JOIN")
		return nil, false
	}
	if base.ProtocolVersion != protocol.Version {
		_ = writeJSON(conn, errorMsg(protocol.ErrBadVersion, "unsupported protocol_version"))
		closePolicy(conn, "bad protocol_version")
		return nil, false
	}
	if err := s.validator.Validate(protocol.TypeJoin, msg); err != nil {
		_ = writeJSON(conn, errorMsg(protocol.ErrProtoBadRequest, err.Error()))
		closePolicy(conn, "invalid JOIN")
		return nil, false
	}
	var join protocol.JoinMsg
	if err := json.Unmarshal(msg, &join); err != nil {
		closePolicy(conn, "invalid JOIN")
		return nil, false
	}

	q := join.MaxQueue
	if q <= 0 {
		q = defaultQueue
	}
	if q > maxQueue {
		q = maxQueue
	}
	out := make(chan []byte, q)

	jctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	resp, err := s.sessions.Join(jctx, connID, join.Name, join.Skin, out)
	if err != nil {
		code := protocol.ErrInternal
		if errors.Is(err, directory.ErrBusy) || errors.Is(err, context.DeadlineExceeded) {
			code = protocol.ErrRoomBusy
		}
		_ = writeJSON(conn, errorMsg(code, err.Error()))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "join failed"), time.Now().Add(time.Second))
		return nil, false
	}

	joined := protocol.JoinedMsg{
		Type:            protocol.TypeJoined,
		ProtocolVersion: protocol.Version,
		RoomID:          resp.RoomID,
		PlayerID:        resp.PlayerID,
		TickRateHz:      resp.TickRateHz,
		State:           resp.State,
	}
	// A failed write surfaces in the reader, which then disconnects the player.
	_ = writeJSON(conn, joined)
	return out, true
}

// writer owns every write after the handshake: broadcasts from the room, direct replies, and pings.
func (s *Server) writer(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out <-chan []byte, replies <-chan []byte) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	defer cancel()
	write := func(b []byte) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, b) == nil
	}
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-replies:
			if !write(b) {
				_ = conn.Close()
				return
			}
		case b, ok := <-out:
			if !ok {
				_ = conn.Close()
				return
			}
			if !write(b) {
				_ = conn.Close()
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func (s *Server) reader(ctx context.Context, conn *websocket.Conn, connID string, replies chan<- []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	reply := func(v any) {
		b, err := json.Marshal(v)
		if err != nil {
			return
		}
		select {
		case replies <- b:
		case <-ctx.Done():
		}
	}
	badRequest := func(msg string) {
		reply(errorMsg(protocol.ErrProtoBadRequest, msg))
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		base, err := protocol.DecodeBase(msg)
		if err != nil {
			badRequest("malformed json")
			continue
		}
		if base.ProtocolVersion != "" && base.ProtocolVersion != protocol.Version {
			reply(errorMsg(protocol.ErrBadVersion, "unsupported protocol_version"))
			continue
		}
		if err := s.validator.Validate(base.Type, msg); err != nil {
			badRequest(err.Error())
			continue
		}

		switch base.Type {
		case protocol.TypeInput:
			var in protocol.InputMsg
			if err := json.Unmarshal(msg, &in); err != nil {
				badRequest("invalid INPUT")
				continue
			}
			if err := s.sessions.Input(connID, in); errors.Is(err, directory.ErrClosed) {
				return
			}

		case protocol.TypePlaceTrack:
			var pt protocol.PlaceTrackMsg
			if err := json.Unmarshal(msg, &pt); err != nil {
				badRequest("invalid PLACE_TRACK")
				continue
			}
			pctx, cancel := context.WithTimeout(ctx, requestTimeout)
			res, err := s.sessions.PlaceTrack(pctx, connID, pt)
			cancel()
			if errors.Is(err, directory.ErrClosed) {
				return
			}
			if err != nil {
				reply(errorMsg(protocol.ErrRoomBusy, err.Error()))
				continue
			}
			if !res.Found {
				continue
			}
			reply(protocol.PlaceTrackResultMsg{
				Type:            protocol.TypePlaceTrackResult,
				ProtocolVersion: protocol.Version,
				Success:         res.Success,
				Reason:          res.Reason,
			})

		case protocol.TypeJoin:
			badRequest("already joined")

		default:
			badRequest("unknown message type")
		}
	}
}

func errorMsg(code, message string) protocol.ErrorMsg {
	return protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	}
}

func closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}
