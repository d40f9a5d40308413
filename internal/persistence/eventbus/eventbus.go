// Package eventbus fans room events out over NATS so spectators, analytics and other
// servers can follow a room without a websocket.
package eventbus

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
)

const subjectPrefix = "railrush.room"

// Subject is railrush.room.<roomID>.<lowercase event type>.
func Subject(roomID, eventType string) string {
	return fmt.Sprintf("%s.%s.%s", subjectPrefix, roomID, strings.ToLower(eventType))
}

// RoomWildcard matches every event of one room.
func RoomWildcard(roomID string) string {
	return fmt.Sprintf("%s.%s.>", subjectPrefix, roomID)
}

type Bus struct {
	nc  *nats.Conn
	log *log.Logger

	published atomic.Uint64
	failed    atomic.Uint64
}

func Connect(url string, logger *log.Logger) (*Bus, error) {
	if logger == nil {
		logger = log.Default()
	}
	nc, err := nats.Connect(
		url,
		nats.Name("railrush-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Printf("eventbus: disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Printf("eventbus: reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("eventbus: connect: %w", err)
	}
	return &Bus{nc: nc, log: logger}, nil
}

// PublishRoomEvent is fire-and-forget. The client buffers while reconnecting.
func (b *Bus) PublishRoomEvent(roomID, eventType string, payload []byte) {
	if b == nil {
		return
	}
	if err := b.nc.Publish(Subject(roomID, eventType), payload); err != nil {
		if n := b.failed.Add(1); n == 1 || n%1000 == 0 {
			b.log.Printf("eventbus: publish: %v (failures=%d)", err, n)
		}
		return
	}
	b.published.Add(1)
}

// SubscribeRoom delivers every event of roomID to fn until the subscription is drained.
func (b *Bus) SubscribeRoom(roomID string, fn func(eventType string, payload []byte)) (*nats.Subscription, error) {
	prefix := fmt.Sprintf("%s.%s.", subjectPrefix, roomID)
	return b.nc.Subscribe(RoomWildcard(roomID), func(m *nats.Msg) {
		fn(strings.ToUpper(strings.TrimPrefix(m.Subject, prefix)), m.Data)
	})
}

func (b *Bus) Published() uint64 { return b.published.Load() }
func (b *Bus) Failed() uint64    { return b.failed.Load() }

func (b *Bus) Connected() bool { return b != nil && b.nc.IsConnected() }

// Close flushes buffered messages before closing.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	return b.nc.Drain()
}
