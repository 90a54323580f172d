package store

import (
	"context"
	"sync"
)

type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	bets     []BetRecord
}

// NewMemoryStore is a process-local SessionRepo and BetRepo, used when no
// database is configured and in tests.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

func (m *MemoryStore) UpsertSession(ctx context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.UserID] = s
	return nil
}

func (m *MemoryStore) FindSession(ctx context.Context, userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

func (m *MemoryStore) CreateBet(ctx context.Context, b BetRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bets = append(m.bets, b)
	return nil
}

func (m *MemoryStore) SumByUser(ctx context.Context, roundID string, pot int) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64)
	for _, b := range m.bets {
		if b.RoundID == roundID && b.Pot == pot {
			out[b.UserID] += b.Amount
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteRound(ctx context.Context, roundID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.bets[:0]
	var n int64
	for _, b := range m.bets {
		if b.RoundID == roundID {
			n++
			continue
		}
		kept = append(kept, b)
	}
	m.bets = kept
	return n, nil
}

// Bets returns a copy of every stored bet.
func (m *MemoryStore) Bets() []BetRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]BetRecord, len(m.bets))
	copy(out, m.bets)
	return out
}
