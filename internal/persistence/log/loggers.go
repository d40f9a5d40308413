package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	stdlog "log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"

	"railrush.io/internal/sim/directory"
)

type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Flush pushes buffered lines into the current zstd frame.
func (w *JSONLZstdWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// TickLogger writes one JSONL entry per room tick. WriteTick only queues the entry; a
// background goroutine does the file I/O so the simulation loop never waits on disk.
type TickLogger struct {
	w   *JSONLZstdWriter
	log *stdlog.Logger

	ch      chan directory.TickLogEntry
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

// TickLogDir is where a data directory keeps its tick logs.
func TickLogDir(dataDir string) string { return filepath.Join(dataDir, "ticks") }

func NewTickLogger(dataDir string, logger *stdlog.Logger) *TickLogger {
	if logger == nil {
		logger = stdlog.Default()
	}
	l := &TickLogger{
		w:   NewJSONLZstdWriter(TickLogDir(dataDir), "ticks"),
		log: logger,
		ch:  make(chan directory.TickLogEntry, 8192),
	}
	l.wg.Add(1)
	go l.loop()
	return l
}

func (l *TickLogger) WriteTick(e directory.TickLogEntry) error {
	if l.closed.Load() {
		return nil
	}
	select {
	case l.ch <- e:
	default:
		if n := l.dropped.Add(1); n == 1 || n%1000 == 0 {
			l.log.Printf("tick log queue full, dropped=%d", n)
		}
	}
	return nil
}

func (l *TickLogger) Dropped() uint64 { return l.dropped.Load() }

func (l *TickLogger) loop() {
	defer l.wg.Done()
	flush := time.NewTicker(time.Second)
	defer flush.Stop()
	for {
		select {
		case e, ok := <-l.ch:
			if !ok {
				return
			}
			if err := l.w.Write(e); err != nil {
				l.log.Printf("tick log write: %v", err)
			}
		case <-flush.C:
			if err := l.w.Flush(); err != nil {
				l.log.Printf("tick log flush: %v", err)
			}
		}
	}
}

// Close drains queued entries and closes the current file.
func (l *TickLogger) Close() error {
	l.once.Do(func() {
		l.closed.Store(true)
		close(l.ch)
	})
	l.wg.Wait()
	return l.w.Close()
}
