package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"TriPot/config"
	"TriPot/internal/events"
	"TriPot/internal/game/dealer"
	"TriPot/internal/game/fairness"
	"TriPot/internal/game/table"
	"TriPot/internal/store"
	"TriPot/internal/utils"
	"TriPot/internal/wallet"
	"TriPot/internal/websocket"

	"github.com/sourcegraph/conc"
)

var ErrAlreadyRunning = errors.New("engine: already running")

// Delivery is the part of the hub the engine talks to. Private events always
// go through the per-user group, never a raw connection.
type Delivery interface {
	Broadcast(msg websocket.OutgoingMessage)
	SendToUser(userID string, msg websocket.OutgoingMessage)
	SendToTable(tableID string, msg websocket.OutgoingMessage)
}

type Wallet interface {
	Debit(ctx context.Context, acct wallet.Account, amount int64) (*wallet.Receipt, error)
	Credit(ctx context.Context, acct wallet.Account, amount int64) (*wallet.Receipt, error)
}

type Sessions interface {
	Lookup(ctx context.Context, userID string) (*store.Session, error)
}

// Options wires an engine. Ledger, History, Dealer and Selector default to
// fresh instances; tests inject their own.
type Options struct {
	Table    table.Table
	Game     config.Game
	Hub      Delivery
	Wallet   Wallet
	Sessions Sessions
	// nil disables bet persistence
	Bets store.BetRepo
	Bus  events.Publisher

	Ledger   *table.Ledger
	History  *fairness.History
	Dealer   *dealer.Dealer
	Selector *fairness.Selector

	// length of one countdown second
	Tick time.Duration
	Seed int64
	// public events go to the table group instead of every connection
	TableScoped bool
}

type Status struct {
	TableID   string              `json:"tableId"`
	GameID    string              `json:"gameId"`
	Running   bool                `json:"running"`
	Phase     Phase               `json:"phase"`
	Remaining int                 `json:"remaining"`
	Rounds    int64               `json:"rounds"`
	RoundID   string              `json:"roundId"`
	Totals    map[string]int64    `json:"potTotals"`
	History   []fairness.Category `json:"history"`
	Last      *RoundResult        `json:"lastResult,omitempty"`
}

// Engine runs the round cycle of one table.
type Engine struct {
	table       table.Table
	game        config.Game
	hub         Delivery
	wallet      Wallet
	sessions    Sessions
	bets        store.BetRepo
	bus         events.Publisher
	tick        time.Duration
	tableScoped bool

	ledger  *table.Ledger
	history *fairness.History

	// settleMu serialises the selector, dealer and decoy rng
	settleMu sync.Mutex
	dealer   *dealer.Dealer
	selector *fairness.Selector
	rnd      *rand.Rand

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	phase     Phase
	remaining int
	rounds    int64
	settled   bool
	last      *RoundResult

	bg conc.WaitGroup
}

func New(o Options) *Engine {
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	if o.Tick <= 0 {
		o.Tick = time.Second
	}
	if o.Bus == nil {
		o.Bus = events.Nop{}
	}
	if o.Ledger == nil {
		o.Ledger = table.NewLedger()
	}
	if o.History == nil {
		o.History = fairness.NewHistory(o.Game.HistorySize)
	}
	if o.Dealer == nil {
		o.Dealer = dealer.NewDealer(o.Seed)
	}
	if o.Selector == nil {
		o.Selector = fairness.NewSelector(fairness.Weights{
			fairness.Low:    o.Game.Weights.Low,
			fairness.Medium: o.Game.Weights.Medium,
			fairness.High:   o.Game.Weights.High,
		}, o.Seed+1)
	}
	if o.Table.CreatedAt.IsZero() {
		o.Table.CreatedAt = time.Now()
	}
	return &Engine{
		table:       o.Table,
		game:        o.Game,
		hub:         o.Hub,
		wallet:      o.Wallet,
		sessions:    o.Sessions,
		bets:        o.Bets,
		bus:         o.Bus,
		tick:        o.Tick,
		tableScoped: o.TableScoped,
		ledger:      o.Ledger,
		history:     o.History,
		dealer:      o.Dealer,
		selector:    o.Selector,
		rnd:         rand.New(rand.NewSource(o.Seed + 2)),
		phase:       Betting,
	}
}

func (e *Engine) Table() table.Table { return e.table }

// Start launches the round loop. Calling it on a running engine does nothing
// and returns ErrAlreadyRunning.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	e.running = true
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.run(ctx, e.done)
	utils.Log.Info("Table started", "table", e.table.ID, "game", e.table.GameID)
	return nil
}

// Stop cancels the loop and waits for it and any settlement in flight.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	cancel()
	<-done
	e.Wait()
	utils.Log.Info("Table stopped", "table", e.table.ID)
}

// Wait blocks until every settlement started so far has finished.
func (e *Engine) Wait() {
	if r := e.bg.WaitAndRecover(); r != nil {
		utils.Log.Error("Settlement panicked", "table", e.table.ID, "panic", r.Value)
	}
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	st := Status{
		TableID:   e.table.ID,
		GameID:    e.table.GameID,
		Running:   e.running,
		Phase:     e.phase,
		Remaining: e.remaining,
		Rounds:    e.rounds,
		Last:      e.last,
	}
	e.mu.Unlock()

	snap := e.ledger.Snapshot()
	st.RoundID = snap.RoundID
	st.Totals = potTotals(snap.Totals)
	st.History = e.History()
	return st
}

// Phase reports the current phase.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	for {
		for _, p := range phaseOrder {
			if p == Betting {
				e.mu.Lock()
				e.settled = false
				e.mu.Unlock()
			}
			if !e.countdown(ctx, ticker, p) {
				return
			}
			e.OnPhaseComplete(ctx, p)
		}
		e.mu.Lock()
		e.rounds++
		e.mu.Unlock()
	}
}

// countdown publishes roundTimer from the phase duration down to 0, one tick
// apart. It reports false when ctx is cancelled.
func (e *Engine) countdown(ctx context.Context, ticker *time.Ticker, p Phase) bool {
	for remaining := e.duration(p); remaining >= 0; remaining-- {
		e.mu.Lock()
		e.phase = p
		e.remaining = remaining
		e.mu.Unlock()

		e.publish(ctx, EventRoundTimer, TimerTick{Phase: p, Remaining: remaining})

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return true
}

func (e *Engine) duration(p Phase) int {
	switch p {
	case Betting:
		return e.game.Phases.Betting
	case WinCalculation:
		return e.game.Phases.WinCalculation
	case ResultAnnounce:
		return e.game.Phases.ResultAnnounce
	default:
		return e.game.Phases.NewGameStart
	}
}

// OnPhaseComplete announces the end of p. After WinCalculation it starts
// settlement, at most once per cycle no matter how often it is called.
func (e *Engine) OnPhaseComplete(ctx context.Context, p Phase) {
	e.publish(ctx, EventRoundTimer, PhaseComplete{Phase: p, Message: fmt.Sprintf("%s complete", p)})
	if p != WinCalculation {
		return
	}

	e.mu.Lock()
	if e.settled {
		e.mu.Unlock()
		utils.Log.Debug("Settlement already ran this round", "table", e.table.ID)
		return
	}
	e.settled = true
	e.mu.Unlock()

	// payouts outlive a Stop; Stop waits for them instead
	sctx := context.WithoutCancel(ctx)
	e.bg.Go(func() {
		if _, err := e.Settle(sctx); err != nil {
			utils.Log.Error("Settlement failed", "table", e.table.ID, "err", err)
		}
	})
}

// publish sends a public event to the table's audience and mirrors it to the
// bus.
func (e *Engine) publish(ctx context.Context, event string, data any) {
	msg := websocket.OutgoingMessage{Event: event, Data: data}
	if e.tableScoped {
		e.hub.SendToTable(e.table.ID, msg)
	} else {
		e.hub.Broadcast(msg)
	}
	if err := e.bus.Publish(ctx, e.table.ID, event, data); err != nil && ctx.Err() == nil {
		utils.Log.Warn("Bus publish failed", "table", e.table.ID, "event", event, "err", err)
	}
}

func (e *Engine) sendTo(userID, event string, data any) {
	e.hub.SendToUser(userID, websocket.OutgoingMessage{Event: event, Data: data})
}
