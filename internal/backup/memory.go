package backup

import (
	"context"
	"sync"
)

// MemorySlot keeps the backup in process memory. It does not survive a
// crash and is meant for tests and for devices without writable storage.
type MemorySlot struct {
	mu   sync.Mutex
	data []byte
}

func NewMemorySlot() *MemorySlot {
	return &MemorySlot{}
}

func (s *MemorySlot) Load(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, nil
	}
	return append([]byte(nil), s.data...), nil
}

func (s *MemorySlot) Save(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
	return nil
}

func (s *MemorySlot) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	return nil
}
