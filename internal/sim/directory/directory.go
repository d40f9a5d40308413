// Package directory owns every room and routes connection commands to them. All room state is
// touched only by the goroutine running Run.
package directory

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync/atomic"
	"time"

	"railrush.io/internal/persistence/snapshot"
	"railrush.io/internal/protocol"
	"railrush.io/internal/sim/room"
	"railrush.io/internal/sim/tuning"
)

var (
	// ErrBusy is returned when a command could not be queued in time.
	ErrBusy = errors.New("directory busy")
	// ErrClosed is returned once the loop has stopped.
	ErrClosed = errors.New("directory closed")
	// ErrDuplicateConn is returned when a connection joins twice.
	ErrDuplicateConn = errors.New("connection already joined")
)

const requestTimeout = 3 * time.Second

// Recorder receives player and room outcomes. Implementations must not block.
type Recorder interface {
	RecordPlayerOutcome(o PlayerOutcome)
	UpsertLeaderboard(playerID, name string, score int)
	RecordRoomSession(s RoomSession)
}

// StateCache mirrors encoded room state somewhere readable by other processes.
type StateCache interface {
	CacheRoomState(roomID string, state []byte)
	RemoveRoomState(roomID string)
}

// EventSink publishes encoded room events.
type EventSink interface {
	PublishRoomEvent(roomID, eventType string, payload []byte)
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type PlayerOutcome struct {
	PlayerID    string
	Name        string
	RoomID      string
	Score       int
	RailsPlaced int
	Reason      string // death reason, empty on a clean disconnect
	At          time.Time
}

type RoomSession struct {
	SessionID   string
	RoomID      string
	PeakPlayers int
	StartedAt   time.Time
	EndedAt     time.Time
}

// TickLogEntry is one room tick: the commands applied since the previous tick, in order,
// and the state digest after stepping. Fault marks a step that panicked; it has no digest.
type TickLogEntry struct {
	RoomID   string            `json:"room_id"`
	Tick     uint64            `json:"tick"`
	Now      int64             `json:"now"`
	Commands []RecordedCommand `json:"commands,omitempty"`
	Digest   string            `json:"digest"`
	Fault    bool              `json:"fault,omitempty"`
}

const (
	CmdJoin  = "join"
	CmdInput = "input"
	CmdPlace = "place"
	CmdLeave = "leave"
)

type RecordedCommand struct {
	Kind     string                  `json:"kind"`
	At       int64                   `json:"at"`
	PlayerID string                  `json:"player_id"`
	Name     string                  `json:"name,omitempty"`
	Skin     string                  `json:"skin,omitempty"`
	Input    *protocol.InputMsg      `json:"input,omitempty"`
	Place    *protocol.PlaceTrackMsg `json:"place,omitempty"`
}

type Config struct {
	Tuning tuning.Tuning
	Seed   int64
	Logger *log.Logger

	Recorder   Recorder
	Cache      StateCache
	Events     EventSink
	TickLogger TickLogger
	// Snapshots receives room exports at creation and every SnapshotEveryTicks; full sends are dropped.
	Snapshots chan<- snapshot.RoomV1

	// Clock defaults to time.Now.
	Clock func() time.Time
}

type JoinRequest struct {
	ConnID string
	Name   string
	Skin   string
	Out    chan []byte
	Resp   chan JoinResponse
}

type JoinResponse struct {
	RoomID     string
	PlayerID   string
	TickRateHz int
	State      protocol.GameState
	Err        error
}

type PlaceResponse struct {
	Found   bool
	Success bool
	Reason  string
}

type inputReq struct {
	ConnID string
	Msg    protocol.InputMsg
}

type placeReq struct {
	ConnID string
	Msg    protocol.PlaceTrackMsg
	Resp   chan PlaceResponse
}

type statsReq struct {
	Resp chan Stats
}

type member struct {
	playerID string
	roomID   string
	out      chan []byte
}

type roomEntry struct {
	room      *room.Room
	sessionID string
	startedAt time.Time
	members   map[string]*member // by player id
	pending   []RecordedCommand
}

type Directory struct {
	cfg  Config
	log  *log.Logger
	tune tuning.Tuning

	join  chan JoinRequest
	input chan inputReq
	place chan placeReq
	leave chan string
	stats chan statsReq
	stop  chan struct{}
	done  chan struct{}

	// Loop-owned.
	conns        map[string]string // conn id -> player id
	players      map[string]*member
	rooms        map[string]*roomEntry
	roomOrder    []string
	roomsCreated int64
	rng          *rand.Rand
	startedAt    time.Time

	tick          atomic.Uint64
	roomFaults    atomic.Uint64
	droppedInputs atomic.Uint64
	droppedSends  atomic.Uint64
	metrics       atomic.Value
}

func New(cfg Config) *Directory {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	d := &Directory{
		cfg:     cfg,
		log:     cfg.Logger,
		tune:    cfg.Tuning,
		join:    make(chan JoinRequest, 64),
		input:   make(chan inputReq, 1024),
		place:   make(chan placeReq, 256),
		leave:   make(chan string, 256),
		stats:   make(chan statsReq, 16),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		conns:   make(map[string]string),
		players: make(map[string]*member),
		rooms:   make(map[string]*roomEntry),
		rng:     rand.New(rand.NewSource(cfg.Seed)),
	}
	d.startedAt = cfg.Clock()
	d.metrics.Store(Metrics{})
	return d
}

func (d *Directory) TickRateHz() int { return d.tune.TickRateHz }

// Join places the connection into the first room with spare capacity, creating one if needed.
func (d *Directory) Join(ctx context.Context, connID, name, skin string, out chan []byte) (JoinResponse, error) {
	resp := make(chan JoinResponse, 1)
	req := JoinRequest{ConnID: connID, Name: name, Skin: skin, Out: out, Resp: resp}
	if err := send(ctx, d, d.join, req); err != nil {
		return JoinResponse{}, err
	}
	select {
	case r := <-resp:
		return r, r.Err
	case <-ctx.Done():
		return JoinResponse{}, ctx.Err()
	case <-d.done:
		return JoinResponse{}, ErrClosed
	}
}

// Input buffers the connection's input for the next tick. When the queue is full the input
// is dropped; the client resends on its next change.
func (d *Directory) Input(connID string, msg protocol.InputMsg) error {
	select {
	case <-d.done:
		return ErrClosed
	default:
	}
	select {
	case d.input <- inputReq{ConnID: connID, Msg: msg}:
		return nil
	default:
		d.droppedInputs.Add(1)
		return ErrBusy
	}
}

func (d *Directory) PlaceTrack(ctx context.Context, connID string, msg protocol.PlaceTrackMsg) (PlaceResponse, error) {
	resp := make(chan PlaceResponse, 1)
	req := placeReq{ConnID: connID, Msg: msg, Resp: resp}
	if err := send(ctx, d, d.place, req); err != nil {
		return PlaceResponse{}, err
	}
	select {
	case r := <-resp:
		return r, nil
	case <-ctx.Done():
		return PlaceResponse{}, ctx.Err()
	case <-d.done:
		return PlaceResponse{}, ErrClosed
	}
}

// Disconnect removes the connection's player. Unknown connections are ignored.
func (d *Directory) Disconnect(ctx context.Context, connID string) error {
	return send(ctx, d, d.leave, connID)
}

// Stats asks the loop for a consistent view. Metrics is cheaper when staleness is fine.
func (d *Directory) Stats(ctx context.Context) (Stats, error) {
	resp := make(chan Stats, 1)
	if err := send(ctx, d, d.stats, statsReq{Resp: resp}); err != nil {
		return Stats{}, err
	}
	select {
	case s := <-resp:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	case <-d.done:
		return Stats{}, ErrClosed
	}
}

// send queues v for the loop, giving up after requestTimeout.
func send[T any](ctx context.Context, d *Directory, ch chan<- T, v T) error {
	timer := time.NewTimer(requestTimeout)
	defer timer.Stop()
	select {
	case ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrClosed
	case <-timer.C:
		return ErrBusy
	}
}

func (d *Directory) nowMS() int64 { return d.cfg.Clock().UnixMilli() }
