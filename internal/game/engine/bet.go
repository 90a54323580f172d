package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"TriPot/internal/game/table"
	"TriPot/internal/session"
	"TriPot/internal/store"
	"TriPot/internal/utils"
	"TriPot/internal/wallet"

	"github.com/sourcegraph/conc"
)

// ValidationError rejects a bet before any side effect.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid bet: " + e.Reason }

// MaxBetAmount caps a single bet so pot totals stay far from int64 overflow.
const MaxBetAmount int64 = 1_000_000_000

type BetRequest struct {
	Amount   int64 `json:"amount"`
	PotIndex int   `json:"potIndex"`
	BetType  int   `json:"betType"`
}

type BetResult struct {
	TransactionID string
	RoundID       string
	At            time.Time
}

func (r BetRequest) validate() error {
	if r.Amount <= 0 {
		return &ValidationError{Reason: "amount must be positive"}
	}
	if r.Amount > MaxBetAmount {
		return &ValidationError{Reason: fmt.Sprintf("amount above %d", MaxBetAmount)}
	}
	if r.PotIndex < 0 || r.PotIndex >= table.PotCount {
		return &ValidationError{Reason: fmt.Sprintf("pot index %d out of range", r.PotIndex)}
	}
	return nil
}

// PlaceBet debits the user and, on success, adds the bet to the pot. Users
// without a session are dropped silently; every other failure is answered
// with a private betResponse.
func (e *Engine) PlaceBet(ctx context.Context, userID string, req BetRequest) (*BetResult, error) {
	sess, err := e.sessions.Lookup(ctx, userID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			utils.Log.Warn("Bet from user without session", "user", userID)
		} else {
			utils.Log.Error("Session lookup failed", "user", userID, "err", err)
		}
		return nil, fmt.Errorf("place bet for %s: %w", userID, err)
	}

	if err := req.validate(); err != nil {
		e.rejectBet(userID, err.Error())
		return nil, err
	}
	if e.Phase() != Betting {
		err := &ValidationError{Reason: "betting closed"}
		e.rejectBet(userID, err.Error())
		return nil, err
	}

	receipt, err := e.wallet.Debit(ctx, wallet.Account{Tenant: sess.Tenant, Token: sess.Token}, req.Amount)
	if err != nil {
		utils.Log.Warn("Debit failed", "user", userID, "amount", req.Amount, "err", err)
		e.rejectBet(userID, "bet failed: "+wallet.Cause(err))
		return nil, fmt.Errorf("debit %s: %w", userID, err)
	}

	c := table.Contribution{
		UserID:        userID,
		Pot:           req.PotIndex,
		Amount:        req.Amount,
		BetType:       req.BetType,
		TransactionID: receipt.TransactionID,
		CreatedAt:     receipt.At,
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.RoundID = e.ledger.Add(c)

	e.publish(ctx, EventPotTotals, potTotals(e.ledger.Totals()))
	e.sendTo(userID, EventBetResponse, Ack{
		Success: true,
		Message: "bet accepted",
		Data: BetData{
			TransactionID: c.TransactionID,
			RoundID:       c.RoundID,
			UserID:        userID,
			PotIndex:      c.Pot,
			Amount:        c.Amount,
			BetType:       c.BetType,
			CreatedAt:     c.CreatedAt.UnixMilli(),
		},
	})
	utils.Log.Info("Bet accepted", "table", e.table.ID, "user", userID, "pot", c.Pot, "amount", c.Amount)

	if e.persists() {
		rec := store.BetRecord{
			RoundID:       c.RoundID,
			GameID:        e.table.GameID,
			TableID:       e.table.ID,
			UserID:        userID,
			Pot:           c.Pot,
			Amount:        c.Amount,
			BetType:       c.BetType,
			TransactionID: c.TransactionID,
			CreatedAt:     c.CreatedAt,
		}
		if err := e.bets.CreateBet(ctx, rec); err != nil {
			utils.Log.Error("Persist bet failed", "user", userID, "tx", c.TransactionID, "err", err)
		}
	}

	return &BetResult{TransactionID: c.TransactionID, RoundID: c.RoundID, At: c.CreatedAt}, nil
}

// PlaceBatch places every bet independently and reports how many went
// through.
func (e *Engine) PlaceBatch(ctx context.Context, userID string, reqs []BetRequest) int {
	if _, err := e.sessions.Lookup(ctx, userID); err != nil {
		utils.Log.Warn("Batch bet from user without session", "user", userID, "err", err)
		return 0
	}
	if len(reqs) == 0 {
		e.sendTo(userID, EventBatchBetResponse, BatchAck{Message: "no bets in batch"})
		return 0
	}

	var accepted atomic.Int64
	var wg conc.WaitGroup
	for _, req := range reqs {
		wg.Go(func() {
			if _, err := e.PlaceBet(ctx, userID, req); err == nil {
				accepted.Add(1)
			}
		})
	}
	if r := wg.WaitAndRecover(); r != nil {
		utils.Log.Error("Batch bet panicked", "user", userID, "panic", r.Value)
	}

	n := int(accepted.Load())
	ack := BatchAck{Success: n == len(reqs), Count: n}
	if ack.Success {
		ack.Message = fmt.Sprintf("%d bets accepted", n)
	} else {
		ack.Message = fmt.Sprintf("%d of %d bets accepted", n, len(reqs))
	}
	e.sendTo(userID, EventBatchBetResponse, ack)
	return n
}

func (e *Engine) rejectBet(userID, message string) {
	e.sendTo(userID, EventBetResponse, Ack{Success: false, Message: message})
}

func (e *Engine) persists() bool {
	return e.bets != nil && e.table.GameID == e.game.PrimaryGameID
}
