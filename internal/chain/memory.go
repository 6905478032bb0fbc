package chain

import (
	"sync"

	"ragchat/internal/domain"
)

// Memory is the ordered list of turns a conversation has seen so far.
type Memory struct {
	mu    sync.RWMutex
	turns []domain.Turn
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Turns() []domain.Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

func (m *Memory) Add(t domain.Turn) {
	m.mu.Lock()
	m.turns = append(m.turns, t)
	m.mu.Unlock()
}

func (m *Memory) Clear() {
	m.mu.Lock()
	m.turns = nil
	m.mu.Unlock()
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.turns)
}
