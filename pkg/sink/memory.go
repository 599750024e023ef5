package sink

import "sync"

// MemorySink collects writes in memory. It backs tests and conversions that
// assemble a session without touching disk.
type MemorySink struct {
	mu  sync.Mutex
	buf []byte
	err error // sticky error
}

// NewMemory returns an empty MemorySink.
func NewMemory() *MemorySink {
	return &MemorySink{}
}

// WriteAtomic implements Sink.
func (s *MemorySink) WriteAtomic(size int, fill func([]byte)) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	off := len(s.buf)
	s.buf = append(s.buf, make([]byte, size)...)
	fill(s.buf[off : off+size])
	return int64(off), nil
}

// Close implements Sink. The buffered bytes stay readable via Bytes.
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.err = ErrClosed
	return nil
}

// Bytes returns the written stream. The slice is owned by the sink and must
// not be modified.
func (s *MemorySink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf
}
