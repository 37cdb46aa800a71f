package tailer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrEmptyPath is returned by Start when no log path is configured.
var ErrEmptyPath = errors.New("tailer: empty path")

// headSize is how many leading bytes fingerprint a log file.
const headSize = 4096

// Checkpoint is a resumable read position. Head fingerprints the start of the
// file so that a replaced log is never resumed at a stale offset.
type Checkpoint struct {
	Offset int64
	Head   string
}

// Options control tailing behavior.
type Options struct {
	Path      string        // Log file path
	FromStart bool          // If true, start reading from start, else from end
	PollEvery time.Duration // How often to poll for new data
	ReadChunk int           // Read buffer size per iteration

	// Resume continues a previous run. It is honored on the first open only,
	// when FromStart is false, the file is at least Resume.Offset long and its
	// head still matches.
	Resume Checkpoint
	// Watch enables filesystem notifications as an extra wake-up source.
	Watch  bool
	Logger *zap.Logger
}

// Tailer tails a single file with polling, optionally woken early by fsnotify.
// Cross-platform (Windows/macOS/Linux).
type Tailer struct {
	opt Options
	log *zap.Logger

	mu        sync.Mutex
	f         *os.File
	pos       int64 // bytes read from f
	committed int64 // offset just past the last emitted line
	st        os.FileInfo
	lastSt    os.FileInfo // identity of the last opened file, kept across closes
	can       context.CancelFunc
	stopped   bool
	opened    bool
}

func New(opt Options) *Tailer {
	if opt.PollEvery <= 0 {
		opt.PollEvery = 300 * time.Millisecond
	}
	if opt.ReadChunk <= 0 {
		opt.ReadChunk = 64 * 1024
	}
	log := opt.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Tailer{opt: opt, log: log.Named("tailer")}
}

// Offset returns the byte offset just past the last complete line emitted.
func (t *Tailer) Offset() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.committed
}

// Start begins tailing. It sends complete lines on out. It returns when ctx is done or on fatal error.
func (t *Tailer) Start(ctx context.Context, out chan<- string) error {
	if t.opt.Path == "" {
		return ErrEmptyPath
	}
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.can = cancel
	if t.stopped {
		cancel()
	}
	t.mu.Unlock()
	defer cancel()
	defer t.closeFile()

	wake := t.watch(ctx)

	retryDelay := 500 * time.Millisecond
	var pending []byte

	// Wait for file to exist if needed
	for {
		if err := t.openFile(); err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-wake:
			case <-time.After(retryDelay):
			}
			continue
		}
		break
	}

	buf := make([]byte, t.opt.ReadChunk)

	// flushLines sends every complete line of b, which starts at offset base.
	flushLines := func(b []byte, base int64) bool {
		// Split on \n; handle Windows \r\n
		start := 0
		for i := 0; i < len(b); i++ {
			if b[i] == '\n' {
				line := b[start:i]
				if len(line) > 0 && line[len(line)-1] == '\r' {
					line = line[:len(line)-1]
				}
				select {
				case out <- string(line):
				case <-ctx.Done():
					return false
				}
				start = i + 1
				t.mu.Lock()
				t.committed = base + int64(start)
				t.mu.Unlock()
			}
		}
		pending = append(pending[:0], b[start:]...)
		return true
	}

	for {
		t.mu.Lock()
		f := t.f
		st := t.st
		pos := t.pos
		t.mu.Unlock()

		// Detect rotation or truncation
		curSt, err := os.Stat(t.opt.Path)
		switch {
		case err != nil:
			// File temporarily missing; try reopen later
			t.closeFile()
		case f == nil || !sameFile(st, curSt) || curSt.Size() < pos:
			if f != nil {
				t.log.Info("log rotated or truncated, reopening", zap.String("path", t.opt.Path))
			}
			t.closeFile()
			if err := t.openFile(); err == nil {
				pending = pending[:0]
				continue
			}
		default:
			// Drain everything appended since the last tick.
			for {
				n, err := f.Read(buf)
				if n > 0 {
					data := append(pending, buf[:n]...)
					base := pos - int64(len(pending))
					if !flushLines(data, base) {
						return ctx.Err()
					}
					pos += int64(n)
					t.mu.Lock()
					t.pos = pos
					t.mu.Unlock()
				}
				if errors.Is(err, io.EOF) || n == 0 {
					break
				}
				if err != nil {
					// transient read error, try reopening
					t.log.Warn("read failed", zap.Error(err))
					t.closeFile()
					break
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		case <-time.After(t.opt.PollEvery):
		}
	}
}

func (t *Tailer) openFile() error {
	f, err := os.Open(t.opt.Path)
	if err != nil {
		return err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}

	t.mu.Lock()
	first := !t.opened
	lastSt := t.lastSt
	committed := t.committed
	t.mu.Unlock()

	var startPos int64
	switch {
	case first && t.opt.FromStart:
		startPos = 0
	case first && t.opt.Resume.Offset > 0 && t.resumable(f, st):
		startPos = t.opt.Resume.Offset
	case first:
		startPos = st.Size()
	case sameFile(lastSt, st) && st.Size() >= committed:
		// Same file briefly unavailable: continue after the last emitted line.
		startPos = committed
	default:
		// A replaced or truncated file is read from its beginning.
		startPos = 0
	}
	if _, err := f.Seek(startPos, io.SeekStart); err != nil {
		f.Close()
		return err
	}
	t.mu.Lock()
	t.f = f
	t.st = st
	t.lastSt = st
	t.pos = startPos
	t.committed = startPos
	t.opened = true
	t.mu.Unlock()
	t.log.Debug("opened log", zap.String("path", t.opt.Path), zap.Int64("offset", startPos))
	return nil
}

func (t *Tailer) resumable(f *os.File, st os.FileInfo) bool {
	cp := t.opt.Resume
	if st.Size() < cp.Offset {
		t.log.Info("log shorter than saved offset, not resuming", zap.Int64("offset", cp.Offset))
		return false
	}
	head, err := fingerprint(f, cp.Offset)
	if err != nil || head != cp.Head {
		t.log.Info("log replaced since last run, not resuming", zap.Error(err))
		return false
	}
	return true
}

// Checkpoint returns the position just past the last emitted line together
// with the fingerprint of the file it belongs to.
func (t *Tailer) Checkpoint() (Checkpoint, error) {
	t.mu.Lock()
	off, last := t.committed, t.lastSt
	t.mu.Unlock()
	if last == nil {
		return Checkpoint{}, errors.New("tailer: no file opened")
	}
	f, err := os.Open(t.opt.Path)
	if err != nil {
		return Checkpoint{}, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return Checkpoint{}, err
	}
	if !sameFile(last, st) {
		return Checkpoint{}, fmt.Errorf("tailer: %s was replaced", t.opt.Path)
	}
	head, err := fingerprint(f, off)
	if err != nil {
		return Checkpoint{}, err
	}
	return Checkpoint{Offset: off, Head: head}, nil
}

// fingerprint hashes the first min(limit, headSize) bytes of f.
func fingerprint(f *os.File, limit int64) (string, error) {
	n := limit
	if n > headSize {
		n = headSize
	}
	h := sha256.New()
	if _, err := io.Copy(h, io.NewSectionReader(f, 0, n)); err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", f.Name(), err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// watch returns a channel that receives when the tailed file changes.
// The parent directory is watched so rotations and late creation are seen.
func (t *Tailer) watch(ctx context.Context) <-chan struct{} {
	wake := make(chan struct{}, 1)
	if !t.opt.Watch {
		return wake
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		t.log.Warn("fsnotify unavailable, polling only", zap.Error(err))
		return wake
	}
	dir := filepath.Dir(t.opt.Path)
	if err := w.Add(dir); err != nil {
		t.log.Warn("cannot watch log directory, polling only", zap.String("dir", dir), zap.Error(err))
		_ = w.Close()
		return wake
	}
	target := filepath.Clean(t.opt.Path)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				t.log.Debug("watch error", zap.Error(err))
			}
		}
	}()
	return wake
}

func (t *Tailer) closeFile() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f != nil {
		_ = t.f.Close()
	}
	t.f = nil
	t.st = nil
	t.pos = 0
}

// Stop cancels the tailing context. A Start that has not begun yet returns at once.
func (t *Tailer) Stop() {
	t.mu.Lock()
	can := t.can
	t.stopped = true
	t.mu.Unlock()
	if can != nil {
		can()
	}
}

// sameFile reports whether a and b refer to the same file identity.
func sameFile(a, b os.FileInfo) bool {
	if a == nil || b == nil {
		return false
	}
	return os.SameFile(a, b)
}
