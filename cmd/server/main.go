package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"railrush.io/internal/persistence/eventbus"
	persistlog "railrush.io/internal/persistence/log"
	"railrush.io/internal/persistence/roomcache"
	"railrush.io/internal/persistence/snapshot"
	"railrush.io/internal/protocol"
	"railrush.io/internal/sim/directory"
	"railrush.io/internal/sim/tuning"
	"railrush.io/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", envString("RR_ADDR", ":8080"), "http listen address")
		seed       = flag.Int64("seed", 1337, "directory seed; room n uses seed+n")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the stats index (leaderboard, sessions, snapshot metadata)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	ctx, cancel := signalContext()
	defer cancel()

	store, err := openStore(ctx, *dataDir, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open stats store: %v", err)
	}

	var cache *roomcache.Cache
	if u := envString("RR_REDIS_URL", ""); u != "" {
		cache, err = roomcache.Open(ctx, u, log.New(os.Stdout, "[roomcache] ", log.LstdFlags))
		if err != nil {
			logger.Printf("room cache disabled: %v", err)
			cache = nil
		}
	}

	var bus *eventbus.Bus
	if u := envString("RR_NATS_URL", ""); u != "" {
		bus, err = eventbus.Connect(u, log.New(os.Stdout, "[eventbus] ", log.LstdFlags))
		if err != nil {
			logger.Printf("event bus disabled: %v", err)
			bus = nil
		}
	}

	tickLog := persistlog.NewTickLogger(*dataDir, logger)

	cfg := directory.Config{
		Tuning:     tune,
		Seed:       *seed,
		Logger:     log.New(os.Stdout, "[directory] ", log.LstdFlags|log.Lmicroseconds),
		TickLogger: multiTickLogger{a: tickLog, b: tickIndexer(store)},
	}
	if store != nil {
		cfg.Recorder = store
	}
	if cache != nil {
		cfg.Cache = cache
	}
	if bus != nil {
		cfg.Events = bus
	}
	snapCh := make(chan snapshot.RoomV1, 8)
	cfg.Snapshots = snapCh
	dir := directory.New(cfg)

	go writeSnapshots(ctx, *dataDir, snapCh, store, logger)
	if store != nil {
		go cleanupLoop(ctx, store, time.Duration(envInt("RR_CLEANUP_EVERY_MIN", 60))*time.Minute, logger)
	}

	dirDone := make(chan struct{})
	go func() {
		defer close(dirDone)
		if err := dir.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("directory stopped: %v", err)
		}
	}()

	validator, err := protocol.NewValidator()
	if err != nil {
		logger.Fatalf("schemas: %v", err)
	}
	wsSrv := ws.NewServer(dir, validator, log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds))

	deps := httpDeps{
		Sessions:   dir,
		Store:      store,
		WS:         wsSrv,
		TickLog:    tickLog,
		CORSOrigin: envString("RR_CORS_ORIGIN", "*"),
		Pprof:      envBool("RR_ENABLE_PPROF_HTTP", false),
		Started:    time.Now(),
		Log:        logger,
	}
	if cache != nil {
		deps.Cache = cache
	}
	if bus != nil {
		deps.Bus = bus
	}
	srv := &http.Server{
		Addr:              *addr,
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (tick=%dHz room_cap=%d)", *addr, tune.TickRateHz, tune.MaxPlayersPerRoom)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// The directory reports outcomes for players still connected before the sinks close.
	<-dirDone
	_ = tickLog.Close()
	if store != nil {
		_ = store.Close()
	}
	if cache != nil {
		_ = cache.Close()
	}
	if bus != nil {
		_ = bus.Close()
	}
	logger.Printf("shutdown complete")
}

func writeSnapshots(ctx context.Context, dataDir string, ch <-chan snapshot.RoomV1, store statsStore, logger *log.Logger) {
	idx, _ := store.(snapshotIndexer)
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			path := snapshot.Path(dataDir, snap.Header.RoomID, snap.Header.Tick)
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				logger.Printf("snapshot write: %v", err)
				continue
			}
			if idx != nil {
				idx.RecordSnapshot(path, snap)
			}
		}
	}
}

func cleanupLoop(ctx context.Context, store statsStore, every time.Duration, logger *log.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			sessions, ranks, err := store.Cleanup(cctx, now)
			cancel()
			if err != nil {
				logger.Printf("cleanup: %v", err)
				continue
			}
			if sessions > 0 || ranks > 0 {
				logger.Printf("cleanup: removed sessions=%d leaderboard_rows=%d", sessions, ranks)
			}
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

type multiTickLogger struct {
	a directory.TickLogger
	b directory.TickLogger
}

func (m multiTickLogger) WriteTick(entry directory.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
