package session

import (
	"context"
	"sort"
	"sync"
)

type memSeats struct {
	mu      sync.Mutex
	tables  map[string]map[string]struct{} // tableID -> set(userID)
	players map[string]string              // userID -> tableID
}

func NewMemorySeats() SeatRepo {
	return &memSeats{
		tables:  make(map[string]map[string]struct{}),
		players: make(map[string]string),
	}
}

func (m *memSeats) Seat(ctx context.Context, tableID, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.players[userID]
	if prev != "" && prev != tableID {
		m.removeLocked(prev, userID)
	}
	if _, ok := m.tables[tableID]; !ok {
		m.tables[tableID] = make(map[string]struct{})
	}
	m.tables[tableID][userID] = struct{}{}
	m.players[userID] = tableID
	if prev == tableID {
		prev = ""
	}
	return prev, nil
}

func (m *memSeats) Unseat(ctx context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tableID, ok := m.players[userID]
	if !ok {
		return "", nil
	}
	m.removeLocked(tableID, userID)
	delete(m.players, userID)
	return tableID, nil
}

// removeLocked drops the user from the table set and deletes empty sets, like
// the redis version does.
func (m *memSeats) removeLocked(tableID, userID string) {
	if s, ok := m.tables[tableID]; ok {
		delete(s, userID)
		if len(s) == 0 {
			delete(m.tables, tableID)
		}
	}
}

func (m *memSeats) Players(ctx context.Context, tableID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.tables[tableID]))
	for u := range m.tables[tableID] {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memSeats) Count(ctx context.Context, tableID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.tables[tableID])), nil
}
