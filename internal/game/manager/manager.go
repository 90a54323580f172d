package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"TriPot/config"
	"TriPot/internal/events"
	"TriPot/internal/game/engine"
	"TriPot/internal/game/table"
	"TriPot/internal/store"
	"TriPot/internal/utils"
	"TriPot/internal/websocket"
)

var (
	ErrTableExists  = errors.New("manager: table already exists")
	ErrTableUnknown = errors.New("manager: no such table")
)

// Incoming websocket events.
const (
	EventPlaceBet      = "placeBet"
	EventPlaceBatchBet = "placeBatchBet"
	EventJoinTable     = "joinTable"
	EventLeaveTable    = "leaveTable"
)

// Seating is what the manager needs from the session registry.
type Seating interface {
	Lookup(ctx context.Context, userID string) (*store.Session, error)
	JoinTable(ctx context.Context, tableID, userID string) ([]string, error)
	LeaveTable(ctx context.Context, userID string) error
}

// Deps are shared by every table's engine.
type Deps struct {
	Game   config.Game
	Hub    engine.Delivery
	Wallet engine.Wallet
	Seats  Seating
	// nil disables bet persistence
	Bets store.BetRepo
	Bus  events.Publisher
	// zero means one second
	Tick time.Duration
}

// TableManager 每张桌一个 engine，按 table id 索引
type TableManager struct {
	mu      sync.RWMutex
	engines map[string]*engine.Engine
	deps    Deps
}

func NewTableManager(deps Deps) *TableManager {
	return &TableManager{
		engines: make(map[string]*engine.Engine),
		deps:    deps,
	}
}

// Create registers an engine for t without starting it. Only the default
// table broadcasts to every connection; other tables talk to their group.
func (m *TableManager) Create(t table.Table) (*engine.Engine, error) {
	if t.ID == "" {
		return nil, errors.New("manager: empty table id")
	}
	if t.GameID == "" {
		t.GameID = m.deps.Game.PrimaryGameID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.engines[t.ID]; ok {
		return nil, fmt.Errorf("table %s: %w", t.ID, ErrTableExists)
	}
	eng := engine.New(engine.Options{
		Table:       t,
		Game:        m.deps.Game,
		Hub:         m.deps.Hub,
		Wallet:      m.deps.Wallet,
		Sessions:    m.deps.Seats,
		Bets:        m.deps.Bets,
		Bus:         m.deps.Bus,
		Tick:        m.deps.Tick,
		TableScoped: t.ID != m.deps.Game.DefaultTable,
	})
	m.engines[t.ID] = eng
	return eng, nil
}

// Open creates and starts a table.
func (m *TableManager) Open(ctx context.Context, t table.Table) (*engine.Engine, error) {
	eng, err := m.Create(t)
	if err != nil {
		return nil, err
	}
	if err := eng.Start(ctx); err != nil {
		return nil, err
	}
	return eng, nil
}

func (m *TableManager) Get(tableID string) (*engine.Engine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	eng, ok := m.engines[tableID]
	return eng, ok
}

func (m *TableManager) Start(ctx context.Context, tableID string) error {
	eng, ok := m.Get(tableID)
	if !ok {
		return fmt.Errorf("start %s: %w", tableID, ErrTableUnknown)
	}
	return eng.Start(ctx)
}

func (m *TableManager) Stop(tableID string) error {
	eng, ok := m.Get(tableID)
	if !ok {
		return fmt.Errorf("stop %s: %w", tableID, ErrTableUnknown)
	}
	eng.Stop()
	return nil
}

// StopAll stops every table and waits for their settlements.
func (m *TableManager) StopAll() {
	m.mu.RLock()
	engines := make([]*engine.Engine, 0, len(m.engines))
	for _, e := range m.engines {
		engines = append(engines, e)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, e := range engines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Stop()
		}()
	}
	wg.Wait()
}

// Statuses lists every table ordered by id.
func (m *TableManager) Statuses() []engine.Status {
	m.mu.RLock()
	out := make([]engine.Status, 0, len(m.engines))
	for _, e := range m.engines {
		out = append(out, e.Status())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TableID < out[j].TableID })
	return out
}

type batchPayload struct {
	Bets []engine.BetRequest `json:"bets"`
}

type joinPayload struct {
	TableID string `json:"tableId"`
}

// HandlePlayerMessage routes one incoming websocket event. Bets go to the
// table the user sits at, or the default table when they sit nowhere.
func (m *TableManager) HandlePlayerMessage(ctx context.Context, msg websocket.IncomingMessage) {
	switch msg.Event {
	case EventPlaceBet:
		var req engine.BetRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			m.reply(msg.From, engine.EventBetResponse, engine.Ack{Message: "malformed bet"})
			return
		}
		if eng := m.tableOf(ctx, msg.From); eng != nil {
			_, _ = eng.PlaceBet(ctx, msg.From, req)
		}

	case EventPlaceBatchBet:
		var p batchPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			m.reply(msg.From, engine.EventBatchBetResponse, engine.BatchAck{Message: "malformed batch"})
			return
		}
		if eng := m.tableOf(ctx, msg.From); eng != nil {
			eng.PlaceBatch(ctx, msg.From, p.Bets)
		}

	case EventJoinTable:
		var p joinPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.TableID == "" {
			utils.Log.Warn("Bad joinTable payload", "user", msg.From)
			return
		}
		if _, ok := m.Get(p.TableID); !ok {
			utils.Log.Warn("Join of unknown table", "user", msg.From, "table", p.TableID)
			return
		}
		if _, err := m.deps.Seats.JoinTable(ctx, p.TableID, msg.From); err != nil {
			utils.Log.Warn("Join table failed", "user", msg.From, "table", p.TableID, "err", err)
		}

	case EventLeaveTable:
		if err := m.deps.Seats.LeaveTable(ctx, msg.From); err != nil {
			utils.Log.Warn("Leave table failed", "user", msg.From, "err", err)
		}

	default:
		utils.Log.Debug("Ignoring event", "user", msg.From, "event", msg.Event)
	}
}

func (m *TableManager) tableOf(ctx context.Context, userID string) *engine.Engine {
	tableID := m.deps.Game.DefaultTable
	if s, err := m.deps.Seats.Lookup(ctx, userID); err == nil && s.TableID != "" {
		tableID = s.TableID
	}
	eng, ok := m.Get(tableID)
	if !ok {
		utils.Log.Warn("Bet for table without engine", "user", userID, "table", tableID)
		return nil
	}
	return eng
}

func (m *TableManager) reply(userID, event string, data any) {
	m.deps.Hub.SendToUser(userID, websocket.OutgoingMessage{Event: event, Data: data})
}
