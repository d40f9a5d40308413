package log

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"railrush.io/internal/sim/directory"
)

func TestTickLogger_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir, nil)
	for i := 1; i <= 3; i++ {
		_ = l.WriteTick(directory.TickLogEntry{
			RoomID: "ABC123",
			Tick:   uint64(i),
			Now:    int64(i) * 50,
			Commands: []directory.RecordedCommand{
				{Kind: directory.CmdLeave, At: int64(i) * 50, PlayerID: "p1"},
			},
			Digest: "d",
		})
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := l.WriteTick(directory.TickLogEntry{Tick: 99}); err != nil {
		t.Fatalf("write after close: %v", err)
	}

	files, err := TickLogFiles(dir)
	if err != nil || len(files) != 1 {
		t.Fatalf("files=%v err=%v", files, err)
	}
	var got []directory.TickLogEntry
	if err := ReadTicks(files[0], func(e directory.TickLogEntry) error {
		got = append(got, e)
		return nil
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 3 || got[2].Tick != 3 || got[0].Commands[0].PlayerID != "p1" {
		t.Fatalf("entries=%+v", got)
	}
}

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "x")
	now := time.Date(2026, 1, 2, 3, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return now }
	if err := w.Write(map[string]int{"a": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"a": 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	files, _ := filepath.Glob(filepath.Join(dir, "x-*.jsonl.zst"))
	if len(files) != 2 {
		t.Fatalf("files=%v", files)
	}
	if !strings.HasSuffix(files[1], "x-2026-01-02-04.jsonl.zst") {
		t.Fatalf("unexpected name %s", files[1])
	}
}
