package archive

import (
	"context"
	"sync"
)

// Memory keeps the most recent records per kind in process
type Memory struct {
	mu        sync.RWMutex
	limit     int
	reasoning []ReasoningRecord
	hands     []HandRecord
}

// NewMemory returns an archive holding at most limit records of each kind.
// A limit <= 0 keeps everything.
func NewMemory(limit int) *Memory {
	return &Memory{limit: limit}
}

func (m *Memory) ArchiveReasoning(_ context.Context, rec ReasoningRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reasoning = trim(append(m.reasoning, rec), m.limit)
	return nil
}

func (m *Memory) ArchiveHand(_ context.Context, rec HandRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = trim(append(m.hands, rec), m.limit)
	return nil
}

func (m *Memory) Close() error { return nil }

// Reasoning returns the stored reasoning records of a session, oldest first
func (m *Memory) Reasoning(sessionID string) []ReasoningRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ReasoningRecord
	for _, r := range m.reasoning {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out
}

// Hands returns the stored hand records of a session, oldest first
func (m *Memory) Hands(sessionID string) []HandRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []HandRecord
	for _, h := range m.hands {
		if h.SessionID == sessionID {
			out = append(out, h)
		}
	}
	return out
}

func trim[T any](records []T, limit int) []T {
	if limit <= 0 || len(records) <= limit {
		return records
	}
	return append(records[:0:0], records[len(records)-limit:]...)
}
