package opc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio"
)

// Backing is a medium a Session reads from and flushes to: a file path, an
// in-memory buffer, or a caller-supplied seekable stream. A backing is held
// by at most one live session at a time; opening a second session over the
// same backing fails until the first is closed.
type Backing interface {
	load() ([]byte, error)
	store(data []byte) error
	// lockKey identifies the underlying resource for checkout tracking and
	// the save/clone flush lock. File backings use the absolute path so two
	// Backing values over one file alias to the same lock.
	lockKey() any
	describe() string
}

// FileBacking flushes through an atomic rename, so a failed save leaves the
// previous file contents intact.
type FileBacking struct {
	path string
	key  string
}

// NewFileBacking returns a backing over path. The file need not exist yet;
// Create sessions write it on first save.
func NewFileBacking(path string) *FileBacking {
	key := path
	if abs, err := filepath.Abs(path); err == nil {
		key = abs
	}
	return &FileBacking{path: path, key: filepath.Clean(key)}
}

func (f *FileBacking) load() ([]byte, error) { return os.ReadFile(f.path) }
func (f *FileBacking) store(data []byte) error { return renameio.WriteFile(f.path, data, 0o644) }
func (f *FileBacking) lockKey() any { return f.key }
func (f *FileBacking) describe() string { return "file " + f.path }

// BufferBacking holds the serialized document in memory.
type BufferBacking struct {
	data []byte
}

func NewBufferBacking() *BufferBacking { return &BufferBacking{} }

// Bytes returns a copy of the last flushed document.
func (b *BufferBacking) Bytes() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

func (b *BufferBacking) load() ([]byte, error) { return b.data, nil }
func (b *BufferBacking) store(data []byte) error {
	b.data = make([]byte, len(data))
	copy(b.data, data)
	return nil
}
func (b *BufferBacking) lockKey() any { return b }
func (b *BufferBacking) describe() string { return "buffer" }

// StreamBacking wraps a caller-supplied random-access stream, typically an
// *os.File the caller keeps ownership of. Flushing a document smaller than
// the previous contents requires the stream to support Truncate.
type StreamBacking struct {
	rw io.ReadWriteSeeker
}

func NewStreamBacking(rw io.ReadWriteSeeker) *StreamBacking {
	return &StreamBacking{rw: rw}
}

func (s *StreamBacking) load() ([]byte, error) {
	if _, err := s.rw.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(s.rw)
}

func (s *StreamBacking) store(data []byte) error {
	size, err := s.rw.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if _, err := s.rw.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := s.rw.Write(data); err != nil {
		return err
	}
	if t, ok := s.rw.(interface{ Truncate(int64) error }); ok {
		return t.Truncate(int64(len(data)))
	}
	if int64(len(data)) < size {
		return errors.New("opc: stream backing cannot truncate")
	}
	return nil
}

func (s *StreamBacking) lockKey() any { return s.rw }
func (s *StreamBacking) describe() string { return "stream" }

// checkouts tracks which backings are held by a live session.
var checkouts = struct {
	mu   sync.Mutex
	live map[any]struct{}
}{live: make(map[any]struct{})}

func checkoutBacking(b Backing) error {
	checkouts.mu.Lock()
	defer checkouts.mu.Unlock()
	key := b.lockKey()
	if _, held := checkouts.live[key]; held {
		return fmt.Errorf("%w: %s already checked out", ErrConcurrencyConflict, b.describe())
	}
	checkouts.live[key] = struct{}{}
	return nil
}

func releaseBacking(b Backing) {
	checkouts.mu.Lock()
	defer checkouts.mu.Unlock()
	delete(checkouts.live, b.lockKey())
}

// flushLocks serializes Save and Clone flushes per backing identity. The
// table is process-wide: sessions in different goroutines writing through
// aliased backings contend on one lock.
var flushLocks = struct {
	mu sync.Mutex
	m  map[any]*flushLock
}{m: make(map[any]*flushLock)}

type flushLock struct {
	ch   chan struct{}
	refs int
}

// acquireFlushLock takes the exclusive flush lock for key. A zero timeout
// waits indefinitely; otherwise contention past the deadline fails with
// ErrConcurrencyConflict. The returned release must run on every exit path.
func acquireFlushLock(key any, timeout time.Duration) (release func(), err error) {
	flushLocks.mu.Lock()
	l, ok := flushLocks.m[key]
	if !ok {
		l = &flushLock{ch: make(chan struct{}, 1)}
		flushLocks.m[key] = l
	}
	l.refs++
	flushLocks.mu.Unlock()

	drop := func() {
		flushLocks.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(flushLocks.m, key)
		}
		flushLocks.mu.Unlock()
	}

	if timeout <= 0 {
		l.ch <- struct{}{}
	} else {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case l.ch <- struct{}{}:
		case <-timer.C:
			drop()
			return nil, fmt.Errorf("%w: flush lock timeout after %v", ErrConcurrencyConflict, timeout)
		}
	}
	return func() {
		<-l.ch
		drop()
	}, nil
}
