package sink

import (
	"fmt"
	"os"
	"sync"
)

// flushSize is the buffer capacity that triggers a write to the file.
const flushSize = 64 * 1024

// FileSink appends to a file through an internal buffer. The buffer keeps
// the event recording hot path free of syscalls most of the time.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
	buf  []byte
	off  int64
	err  error // sticky error
}

// NewFile creates or truncates path and returns a FileSink appending to it.
func NewFile(path string) (*FileSink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sink: %w", err)
	}
	return &FileSink{file: file, buf: make([]byte, 0, flushSize)}, nil
}

// WriteAtomic implements Sink. Regions up to flushSize bytes are filled in
// place in the buffer and do not allocate.
func (s *FileSink) WriteAtomic(size int, fill func([]byte)) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	off := s.off
	if len(s.buf)+size > cap(s.buf) && !s.flushLocked() {
		return 0, s.err
	}
	if size > cap(s.buf) {
		// Oversized region, write it through directly.
		big := make([]byte, size)
		fill(big)
		if _, err := s.file.Write(big); err != nil {
			s.err = fmt.Errorf("sink: write: %w", err)
			return 0, s.err
		}
	} else {
		n := len(s.buf)
		s.buf = s.buf[:n+size]
		fill(s.buf[n : n+size])
	}
	s.off += int64(size)
	return off, nil
}

// flushLocked writes buffered bytes to the file. It reports success and
// records the first failure in s.err.
func (s *FileSink) flushLocked() bool {
	if len(s.buf) == 0 {
		return true
	}
	if _, err := s.file.Write(s.buf); err != nil {
		s.err = fmt.Errorf("sink: write: %w", err)
		return false
	}
	s.buf = s.buf[:0]
	return true
}

// Close flushes remaining bytes, syncs and closes the file. After Close all
// writes fail with ErrClosed.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		s.file.Close()
		return s.err
	}
	if !s.flushLocked() {
		s.file.Close()
		return s.err
	}
	if err := s.file.Sync(); err != nil {
		s.err = fmt.Errorf("sink: sync: %w", err)
		s.file.Close()
		return s.err
	}
	if err := s.file.Close(); err != nil {
		s.err = fmt.Errorf("sink: close: %w", err)
		return s.err
	}
	s.err = ErrClosed
	return nil
}
