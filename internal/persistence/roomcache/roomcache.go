// Package roomcache keeps the latest encoded state of each room in Redis so other
// services can read a room without joining it.
package roomcache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	TTL       = time.Hour
	keyPrefix = "room:"
)

func Key(roomID string) string { return keyPrefix + roomID }

type Cache struct {
	rdb *redis.Client
	log *log.Logger
	ttl time.Duration

	ch   chan write
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
	failed  atomic.Uint64
}

type write struct {
	roomID string
	state  []byte // nil deletes
}

// Options parses addr as either host:port or a redis:// / rediss:// URL.
func Options(addr string) (*redis.Options, error) {
	opts := &redis.Options{
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
	if !strings.HasPrefix(addr, "redis://") && !strings.HasPrefix(addr, "rediss://") {
		if addr == "" {
			return nil, errors.New("roomcache: empty address")
		}
		opts.Addr = addr
		return opts, nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("roomcache: parse url: %w", err)
	}
	opts.Addr = u.Host
	if u.User != nil {
		opts.Username = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			opts.Password = pw
		}
	}
	if u.Scheme == "rediss" {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

func Open(ctx context.Context, addr string, logger *log.Logger) (*Cache, error) {
	opts, err := Options(addr)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("roomcache: ping: %w", err)
	}
	return New(rdb, logger), nil
}

// New wraps an existing client and starts the write worker.
func New(rdb *redis.Client, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.Default()
	}
	c := &Cache{rdb: rdb, log: logger, ttl: TTL, ch: make(chan write, 1024)}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.loop()
	}()
	return c
}

func (c *Cache) CacheRoomState(roomID string, state []byte) {
	if len(state) == 0 {
		return
	}
	c.enqueue(write{roomID: roomID, state: state})
}

func (c *Cache) RemoveRoomState(roomID string) {
	c.enqueue(write{roomID: roomID})
}

func (c *Cache) enqueue(w write) {
	if c == nil || c.closed.Load() {
		return
	}
	select {
	case c.ch <- w:
	default:
		c.dropped.Add(1)
	}
}

func (c *Cache) loop() {
	for w := range c.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		var err error
		if w.state == nil {
			err = c.rdb.Del(ctx, Key(w.roomID)).Err()
		} else {
			err = c.rdb.Set(ctx, Key(w.roomID), w.state, c.ttl).Err()
		}
		cancel()
		if err != nil {
			if n := c.failed.Add(1); n == 1 || n%100 == 0 {
				c.log.Printf("roomcache: %s %s: %v (failures=%d)", opName(w), w.roomID, err, n)
			}
		}
	}
}

func opName(w write) string {
	if w.state == nil {
		return "del"
	}
	return "set"
}

// RoomState returns the cached state for roomID, or nil when the room is not cached.
func (c *Cache) RoomState(ctx context.Context, roomID string) ([]byte, error) {
	b, err := c.rdb.Get(ctx, Key(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return b, err
}

func (c *Cache) Dropped() uint64 { return c.dropped.Load() }

func (c *Cache) Health(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

// Close flushes pending writes and closes the client.
func (c *Cache) Close() error {
	var err error
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.ch)
		c.wg.Wait()
		err = c.rdb.Close()
	})
	return err
}
