package directory

import (
	"bytes"
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"railrush.io/internal/protocol"
	"railrush.io/internal/sim/room"
)

func (d *Directory) Run(ctx context.Context) error {
	defer close(d.done)
	ticker := time.NewTicker(d.tune.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return ctx.Err()
		case <-d.stop:
			d.shutdown()
			return nil
		case req := <-d.join:
			req.Resp <- d.handleJoin(req)
		case req := <-d.input:
			d.handleInput(req.ConnID, req.Msg)
		case req := <-d.place:
			req.Resp <- d.handlePlace(req.ConnID, req.Msg)
		case connID := <-d.leave:
			d.handleLeave(connID)
		case req := <-d.stats:
			req.Resp <- d.snapshotStats()
		case <-ticker.C:
			d.step(d.cfg.Clock())
		}
	}
}

func (d *Directory) Stop() { close(d.stop) }

// StepOnce runs one tick at now. It must not be called while Run is active.
func (d *Directory) StepOnce(now time.Time) uint64 {
	d.step(now)
	return d.tick.Load()
}

func (d *Directory) handleJoin(req JoinRequest) JoinResponse {
	if _, ok := d.conns[req.ConnID]; ok {
		return JoinResponse{Err: ErrDuplicateConn}
	}
	now := d.nowMS()
	e := d.pickRoom(now)
	playerID := uuid.NewString()
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Player"
	}
	e.room.Join(playerID, name, req.Skin, now)
	e.record(RecordedCommand{Kind: CmdJoin, At: now, PlayerID: playerID, Name: name, Skin: req.Skin})

	m := &member{playerID: playerID, roomID: e.room.ID(), out: req.Out}
	d.conns[req.ConnID] = playerID
	d.players[playerID] = m
	e.members[playerID] = m
	d.log.Printf("join conn=%s player=%s room=%s name=%q players=%d", req.ConnID, playerID, e.room.ID(), name, e.room.Len())

	return JoinResponse{
		RoomID:     e.room.ID(),
		PlayerID:   playerID,
		TickRateHz: d.tune.TickRateHz,
		State:      e.room.State(now),
	}
}

// pickRoom returns the oldest room with spare capacity, or a new one.
func (d *Directory) pickRoom(now int64) *roomEntry {
	for _, id := range d.roomOrder {
		if e := d.rooms[id]; !e.room.Full() {
			return e
		}
	}
	id := d.newRoomID()
	d.roomsCreated++
	r := room.New(room.Config{ID: id, Tuning: d.tune, Seed: d.cfg.Seed + d.roomsCreated, Now: now})
	e := &roomEntry{
		room:      r,
		sessionID: uuid.NewString(),
		startedAt: time.UnixMilli(now),
		members:   make(map[string]*member),
	}
	d.rooms[id] = e
	d.roomOrder = append(d.roomOrder, id)
	d.offerSnapshot(e, now)
	d.log.Printf("room created id=%s rooms=%d", id, len(d.rooms))
	return e
}

const roomIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

func (d *Directory) newRoomID() string {
	for {
		var b [6]byte
		for i := range b {
			b[i] = roomIDAlphabet[d.rng.Intn(len(roomIDAlphabet))]
		}
		id := string(b[:])
		if _, taken := d.rooms[id]; !taken {
			return id
		}
	}
}

// lookup resolves a connection to its player and room. Stale mappings resolve to nothing.
func (d *Directory) lookup(connID string) (*member, *roomEntry) {
	pid, ok := d.conns[connID]
	if !ok {
		return nil, nil
	}
	m := d.players[pid]
	if m == nil {
		return nil, nil
	}
	e := d.rooms[m.roomID]
	if e == nil {
		return nil, nil
	}
	return m, e
}

func (d *Directory) handleInput(connID string, msg protocol.InputMsg) {
	m, e := d.lookup(connID)
	if m == nil {
		return
	}
	if e.room.SetInput(m.playerID, msg) {
		in := msg
		e.record(RecordedCommand{Kind: CmdInput, At: d.nowMS(), PlayerID: m.playerID, Input: &in})
	}
}

func (d *Directory) handlePlace(connID string, msg protocol.PlaceTrackMsg) PlaceResponse {
	m, e := d.lookup(connID)
	if m == nil {
		return PlaceResponse{}
	}
	now := d.nowMS()
	ok, reason, found := e.room.PlaceTrack(m.playerID, msg, now)
	if !found {
		return PlaceResponse{}
	}
	pm := msg
	e.record(RecordedCommand{Kind: CmdPlace, At: now, PlayerID: m.playerID, Place: &pm})
	return PlaceResponse{Found: true, Success: ok, Reason: reason}
}

func (d *Directory) handleLeave(connID string) {
	m, e := d.lookup(connID)
	delete(d.conns, connID)
	if m == nil {
		return
	}
	delete(d.players, m.playerID)
	delete(e.members, m.playerID)

	now := d.nowMS()
	if p := e.room.Player(m.playerID); p != nil && p.Alive {
		d.reportOutcome(e.room.ID(), p.ID, p.Name, p.Score, p.RailsPlaced, "", now)
	}
	e.room.Leave(m.playerID)
	e.record(RecordedCommand{Kind: CmdLeave, At: now, PlayerID: m.playerID})
	d.log.Printf("leave conn=%s player=%s room=%s players=%d", connID, m.playerID, e.room.ID(), e.room.Len())

	if e.room.Len() == 0 {
		d.destroyRoom(e, now)
	}
}

func (d *Directory) destroyRoom(e *roomEntry, now int64) {
	id := e.room.ID()
	delete(d.rooms, id)
	for i, rid := range d.roomOrder {
		if rid == id {
			d.roomOrder = append(d.roomOrder[:i], d.roomOrder[i+1:]...)
			break
		}
	}
	if d.cfg.Recorder != nil {
		d.cfg.Recorder.RecordRoomSession(RoomSession{
			SessionID:   e.sessionID,
			RoomID:      id,
			PeakPlayers: e.room.PeakPlayers(),
			StartedAt:   e.startedAt,
			EndedAt:     time.UnixMilli(now),
		})
	}
	if d.cfg.Cache != nil {
		d.cfg.Cache.RemoveRoomState(id)
	}
	d.log.Printf("room destroyed id=%s ticks=%d peak=%d", id, e.room.Tick(), e.room.PeakPlayers())
}

func (d *Directory) reportOutcome(roomID, playerID, name string, score, railsPlaced int, reason string, now int64) {
	if d.cfg.Recorder == nil {
		return
	}
	d.cfg.Recorder.RecordPlayerOutcome(PlayerOutcome{
		PlayerID:    playerID,
		Name:        name,
		RoomID:      roomID,
		Score:       score,
		RailsPlaced: railsPlaced,
		Reason:      reason,
		At:          time.UnixMilli(now),
	})
	d.cfg.Recorder.UpsertLeaderboard(playerID, name, score)
}

func (e *roomEntry) record(c RecordedCommand) { e.pending = append(e.pending, c) }

func (d *Directory) step(now time.Time) {
	start := time.Now()
	nowMS := now.UnixMilli()
	for _, id := range d.roomOrder {
		e := d.rooms[id]
		evs, err := stepRoom(e.room, nowMS)
		if err != nil {
			d.roomFaults.Add(1)
			d.log.Printf("room %s step fault: %v", id, err)
			d.logTick(e, nowMS, true)
			continue
		}
		d.publish(e, evs)
		for _, death := range e.room.TakeDeaths() {
			d.reportOutcome(id, death.PlayerID, death.Name, death.Score, death.RailsPlaced, death.Reason, nowMS)
		}
		d.logTick(e, nowMS, false)
		if n := d.tune.SnapshotEveryTicks; n > 0 && e.room.Tick()%uint64(n) == 0 {
			d.offerSnapshot(e, nowMS)
		}
	}
	tick := d.tick.Add(1)
	d.storeMetrics(tick, time.Since(start))
}

// stepRoom isolates a single room so a panic only costs that room its tick.
func stepRoom(r *room.Room, now int64) (evs []room.Event, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
		}
	}()
	return r.Step(now), nil
}

func (d *Directory) publish(e *roomEntry, evs []room.Event) {
	roomID := e.room.ID()
	for _, ev := range evs {
		b, err := room.Encode(ev)
		if err != nil {
			d.log.Printf("room %s encode %s: %v", roomID, ev.Type(), err)
			continue
		}
		for _, m := range e.members {
			if n := enqueue(m.out, b); n > 0 {
				d.droppedSends.Add(uint64(n))
			}
		}
		snap, isState := ev.(room.Snapshot)
		if !isState {
			if d.cfg.Events != nil {
				d.cfg.Events.PublishRoomEvent(roomID, ev.Type(), b)
			}
			continue
		}
		if n := d.tune.CacheStateEveryTicks; d.cfg.Cache != nil && n > 0 && snap.Tick%uint64(n) == 0 {
			d.cfg.Cache.CacheRoomState(roomID, b)
		}
	}
}

// logTick records the commands consumed by the room's latest tick. A faulted tick is logged
// without a digest so replay stays aligned with the room's tick counter.
func (d *Directory) logTick(e *roomEntry, now int64, faulted bool) {
	r := e.room
	if d.cfg.TickLogger != nil {
		entry := TickLogEntry{RoomID: r.ID(), Tick: r.Tick(), Now: now, Commands: e.pending, Fault: faulted}
		if !faulted {
			entry.Digest = r.Digest()
		}
		if err := d.cfg.TickLogger.WriteTick(entry); err != nil {
			d.log.Printf("room %s tick log: %v", r.ID(), err)
		}
	}
	e.pending = nil
}

func (d *Directory) offerSnapshot(e *roomEntry, now int64) {
	if d.cfg.Snapshots == nil {
		return
	}
	select {
	case d.cfg.Snapshots <- e.room.Export(now):
	default:
		d.log.Printf("room %s snapshot dropped at tick %d", e.room.ID(), e.room.Tick())
	}
}

// shutdown reports players still connected so their scores are not lost.
func (d *Directory) shutdown() {
	now := d.nowMS()
	for _, id := range append([]string(nil), d.roomOrder...) {
		e := d.rooms[id]
		for _, p := range e.room.Players() {
			if p.Alive {
				d.reportOutcome(id, p.ID, p.Name, p.Score, p.RailsPlaced, "", now)
			}
		}
		d.destroyRoom(e, now)
	}
	d.conns = map[string]string{}
	d.players = map[string]*member{}
}

// stateFramePrefix starts every encoded GAME_STATE frame; message structs put Type first.
var stateFramePrefix = []byte(`{"type":"` + protocol.TypeGameState + `"`)

func isStateFrame(b []byte) bool { return bytes.HasPrefix(b, stateFramePrefix) }

// enqueue queues b for a client. When the client is behind, the oldest queued GAME_STATE
// frame is evicted to make room, since the next one supersedes it; one-time events are never
// evicted. If the queue holds only events, b itself is dropped. It returns the number of
// frames lost. The directory is the only sender on ch.
func enqueue(ch chan []byte, b []byte) (dropped int) {
	if ch == nil {
		return 0
	}
	select {
	case ch <- b:
		return 0
	default:
	}

	queued := make([][]byte, 0, cap(ch))
drain:
	for len(queued) < cap(ch) {
		select {
		case q := <-ch:
			queued = append(queued, q)
		default:
			break drain
		}
	}

	evict := -1
	for i, q := range queued {
		if isStateFrame(q) {
			evict = i
			break
		}
	}
	dropped = 1
	if evict >= 0 {
		queued = append(queued[:evict], queued[evict+1:]...)
		queued = append(queued, b)
	}
	for _, q := range queued {
		select {
		case ch <- q:
		default:
			dropped++
		}
	}
	return dropped
}
