package directory

import "time"

// Stats is the status view served by /health and /stats.
type Stats struct {
	ActiveRooms   int           `json:"active_room_count"`
	TotalPlayers  int           `json:"total_player_count"`
	Connections   int           `json:"connections"`
	ProcessUptime time.Duration `json:"-"`
}

// Metrics is a read-only view of loop signals. It is stored by the loop goroutine after each
// tick and read from HTTP handlers without coordination.
type Metrics struct {
	Tick          uint64      `json:"tick"`
	Rooms         int         `json:"rooms"`
	Players       int         `json:"players"`
	Connections   int         `json:"connections"`
	StepMS        float64     `json:"step_ms"`
	RoomFaults    uint64      `json:"room_faults"`
	DroppedInputs uint64      `json:"dropped_inputs"`
	DroppedSends  uint64      `json:"dropped_sends"`
	QueueDepths   QueueDepths `json:"queue_depths"`
}

type QueueDepths struct {
	Join  int `json:"join"`
	Input int `json:"input"`
	Place int `json:"place"`
	Leave int `json:"leave"`
}

func (d *Directory) Metrics() Metrics {
	if d == nil {
		return Metrics{}
	}
	m, _ := d.metrics.Load().(Metrics)
	return m
}

func (d *Directory) playerCount() int {
	n := 0
	for _, e := range d.rooms {
		n += e.room.Len()
	}
	return n
}

func (d *Directory) snapshotStats() Stats {
	return Stats{
		ActiveRooms:   len(d.rooms),
		TotalPlayers:  d.playerCount(),
		Connections:   len(d.conns),
		ProcessUptime: d.cfg.Clock().Sub(d.startedAt),
	}
}

func (d *Directory) storeMetrics(tick uint64, took time.Duration) {
	d.metrics.Store(Metrics{
		Tick:          tick,
		Rooms:         len(d.rooms),
		Players:       d.playerCount(),
		Connections:   len(d.conns),
		StepMS:        float64(took.Microseconds()) / 1000,
		RoomFaults:    d.roomFaults.Load(),
		DroppedInputs: d.droppedInputs.Load(),
		DroppedSends:  d.droppedSends.Load(),
		QueueDepths: QueueDepths{
			Join:  len(d.join),
			Input: len(d.input),
			Place: len(d.place),
			Leave: len(d.leave),
		},
	})
}
