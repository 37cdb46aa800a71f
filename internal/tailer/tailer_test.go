package tailer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTailerEmptyPath(t *testing.T) {
	err := New(Options{}).Start(context.Background(), make(chan string))
	if !errors.Is(err, ErrEmptyPath) {
		t.Fatalf("err = %v; want ErrEmptyPath", err)
	}
}

func TestTailerBasicFollowAndTruncate(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "log.txt")

	// initial content with CRLF and LF
	writeAppend(t, logPath, "foo\r\n")
	writeAppend(t, logPath, "bar\n")

	_, out := startTailer(t, Options{Path: logPath, FromStart: true, PollEvery: 50 * time.Millisecond, ReadChunk: 1024})

	expectLine(t, out, "foo", 2*time.Second)
	expectLine(t, out, "bar", 2*time.Second)

	writeAppend(t, logPath, "baz\n")
	expectLine(t, out, "baz", 2*time.Second)

	// simulate truncation and new content
	if err := os.Truncate(logPath, 0); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	writeAppend(t, logPath, "new\n")
	expectLine(t, out, "new", 3*time.Second)
}

// FromStart=false starts tailing at EOF and doesn't emit historical lines.
func TestTailerFromEndSkipsHistory(t *testing.T) {
	p := filepath.Join(t.TempDir(), "log.txt")
	if err := os.WriteFile(p, []byte("old1\nold2\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, out := startTailer(t, Options{Path: p, PollEvery: 30 * time.Millisecond, ReadChunk: 32})

	expectSilence(t, out, 120*time.Millisecond)
	writeAppend(t, p, "new\n")
	expectLine(t, out, "new", 2*time.Second)
}

// The tailer can start before the file exists and begin emitting once it appears.
func TestTailerWaitsForFileThenReads(t *testing.T) {
	p := filepath.Join(t.TempDir(), "later.log")
	_, out := startTailer(t, Options{Path: p, FromStart: true, PollEvery: 20 * time.Millisecond, ReadChunk: 64})

	time.Sleep(120 * time.Millisecond)
	if err := os.WriteFile(p, []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectLine(t, out, "hello", 2*time.Second)
}

func TestTailerSplitAcrossReads(t *testing.T) {
	p := filepath.Join(t.TempDir(), "log.txt")
	if err := os.WriteFile(p, []byte{}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, out := startTailer(t, Options{Path: p, FromStart: true, PollEvery: 20 * time.Millisecond, ReadChunk: 4})

	// partial line without newline must not be emitted yet
	writeAppend(t, p, "hello")
	expectSilence(t, out, 120*time.Millisecond)
	writeAppend(t, p, " world\n")
	expectLine(t, out, "hello world", 2*time.Second)
}

func TestTailerRotationRecover(t *testing.T) {
	p := filepath.Join(t.TempDir(), "log.txt")
	if err := os.WriteFile(p, []byte("a1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, out := startTailer(t, Options{Path: p, FromStart: true, PollEvery: 20 * time.Millisecond, ReadChunk: 64})
	expectLine(t, out, "a1", 2*time.Second)

	// Rotate: rename old and create new file with same name
	if err := os.Rename(p, p+".old"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if err := os.WriteFile(p, []byte("b1\n"), 0o644); err != nil {
		t.Fatalf("write new: %v", err)
	}
	expectLine(t, out, "b1", 2*time.Second)
}

func TestTailerResumesFromCheckpoint(t *testing.T) {
	p := filepath.Join(t.TempDir(), "log.txt")
	if err := os.WriteFile(p, []byte("one\ntwo\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tlr, out := startTailer(t, Options{Path: p, FromStart: true, PollEvery: 20 * time.Millisecond})
	expectLine(t, out, "one", 2*time.Second)
	expectLine(t, out, "two", 2*time.Second)
	writeAppend(t, p, "par")
	time.Sleep(100 * time.Millisecond)
	if got := tlr.Offset(); got != int64(len("one\ntwo\n")) {
		t.Fatalf("Offset() = %d; want %d (partial line excluded)", got, len("one\ntwo\n"))
	}
	cp, err := tlr.Checkpoint()
	if err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if cp.Offset != int64(len("one\ntwo\n")) || cp.Head == "" {
		t.Fatalf("checkpoint = %+v", cp)
	}

	writeAppend(t, p, "tial\nthree\n")
	_, out2 := startTailer(t, Options{Path: p, Resume: cp, PollEvery: 20 * time.Millisecond})
	expectLine(t, out2, "partial", 2*time.Second)
	expectLine(t, out2, "three", 2*time.Second)
}

func TestTailerIgnoresCheckpointOfReplacedFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "log.txt")
	if err := os.WriteFile(p, []byte("one\ntwo\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tlr, out := startTailer(t, Options{Path: p, FromStart: true, PollEvery: 20 * time.Millisecond})
	expectLine(t, out, "two", 2*time.Second)
	cp, err := tlr.Checkpoint()
	if err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	// Same length, different content: a new session of the game.
	if err := os.WriteFile(p, []byte("uno\ndos\nold tail\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	_, out2 := startTailer(t, Options{Path: p, Resume: cp, PollEvery: 20 * time.Millisecond})
	expectSilence(t, out2, 150*time.Millisecond)
	writeAppend(t, p, "fresh\n")
	expectLine(t, out2, "fresh", 2*time.Second)
}

func TestTailerStopBeforeStart(t *testing.T) {
	p := filepath.Join(t.TempDir(), "log.txt")
	tlr := New(Options{Path: p, PollEvery: 20 * time.Millisecond})
	tlr.Stop()
	done := make(chan error, 1)
	go func() { done <- tlr.Start(context.Background(), make(chan string)) }()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Start after Stop = %v; want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Start did not return after Stop")
	}
}

func TestTailerWatchWakesBeforePoll(t *testing.T) {
	p := filepath.Join(t.TempDir(), "log.txt")
	if err := os.WriteFile(p, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	// A long poll interval means only the watcher can deliver the line in time.
	_, out := startTailer(t, Options{Path: p, PollEvery: 10 * time.Second, Watch: true})
	time.Sleep(100 * time.Millisecond)
	writeAppend(t, p, "woken\n")
	expectLine(t, out, "woken", 3*time.Second)
}
