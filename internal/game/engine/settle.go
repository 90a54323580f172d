package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"

	"TriPot/internal/game/dealer"
	"TriPot/internal/game/fairness"
	"TriPot/internal/game/table"
	"TriPot/internal/utils"
	"TriPot/internal/wallet"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"
)

const defaultMultiplier = 2.9

// Decoys pad the public winners list. They never reach the wallet.
var Decoys = []Winner{
	{UserID: "decoy-01", Name: "LuckyLin", Avatar: "/avatars/decoy-01.png"},
	{UserID: "decoy-02", Name: "AceHunter", Avatar: "/avatars/decoy-02.png"},
	{UserID: "decoy-03", Name: "PotShot", Avatar: "/avatars/decoy-03.png"},
	{UserID: "decoy-04", Name: "RiverRat", Avatar: "/avatars/decoy-04.png"},
	{UserID: "decoy-05", Name: "HighRoller", Avatar: "/avatars/decoy-05.png"},
	{UserID: "decoy-06", Name: "Kicker", Avatar: "/avatars/decoy-06.png"},
}

type payout struct {
	userID  string
	amount  int64
	betType int
}

// Settle closes the current round: it resets the ledger, picks the winning
// pot, deals the hands, announces the result and pays the winners. Each
// winner is paid on its own; one failed credit does not hold up the rest.
func (e *Engine) Settle(ctx context.Context) (*RoundResult, error) {
	snap := e.ledger.TakeSnapshot()

	e.settleMu.Lock()
	sel, err := e.selector.Select(snap.TotalsMap(), e.history)
	var cards dealer.RoundResult
	if err == nil {
		cards, err = e.dealer.GenerateRoundResult()
	}
	e.settleMu.Unlock()
	if err != nil {
		utils.Log.Error("Round aborted", "table", e.table.ID, "round", snap.RoundID, "err", err)
		return nil, fmt.Errorf("settle round %s: %w", snap.RoundID, err)
	}

	byUser := snap.TotalsByUser(sel.Pot)
	if e.persists() {
		e.reconcile(ctx, snap.RoundID, sel.Pot, byUser)
	}
	payouts := e.payouts(snap, sel.Pot, byUser)

	winners := make([]Winner, 0, max(len(payouts), e.game.MinWinners))
	for _, p := range payouts {
		w := Winner{UserID: p.userID, Amount: p.amount}
		if s, err := e.sessions.Lookup(ctx, p.userID); err == nil {
			w.Name, w.Avatar = s.Name, s.Avatar
		}
		winners = append(winners, w)
	}
	e.settleMu.Lock()
	winners = e.padWinners(winners, snap.Totals)
	e.settleMu.Unlock()

	res := &RoundResult{
		RoundID:         snap.RoundID,
		Winners:         winners,
		WinningPot:      PotLabel(sel.Pot),
		WinningPotIndex: sel.Pot,
		WinningCards:    cards.WinnerHand,
		LoserCards:      loserCards(sel.Pot, cards.LoserHands),
		RankText:        cards.RankText,
	}
	e.publish(ctx, EventRoundResult, res)
	utils.Log.Info("Round settled",
		"table", e.table.ID, "round", snap.RoundID,
		"pot", sel.Pot, "category", sel.Category, "winners", len(payouts))

	var wg conc.WaitGroup
	for _, p := range payouts {
		wg.Go(func() { e.pay(ctx, sel.Pot, p) })
	}
	if r := wg.WaitAndRecover(); r != nil {
		utils.Log.Error("Payout panicked", "table", e.table.ID, "panic", r.Value)
	}

	if e.persists() {
		if n, err := e.bets.DeleteRound(ctx, snap.RoundID); err != nil {
			utils.Log.Error("Clear round bets failed", "round", snap.RoundID, "err", err)
		} else {
			utils.Log.Debug("Cleared round bets", "round", snap.RoundID, "rows", n)
		}
	}

	e.mu.Lock()
	e.last = res
	e.mu.Unlock()
	return res, nil
}

// payouts applies the pot multiplier to each winner's stake. Output is
// ordered by user id.
func (e *Engine) payouts(snap table.Snapshot, pot int, byUser map[string]int64) []payout {
	mult := decimal.NewFromFloat(e.multiplier(pot))
	betType := make(map[string]int, len(byUser))
	for _, c := range snap.Contributions {
		if c.Pot == pot {
			betType[c.UserID] = c.BetType
		}
	}
	out := make([]payout, 0, len(byUser))
	for user, stake := range byUser {
		amount := decimal.NewFromInt(stake).Mul(mult).Round(0).IntPart()
		out = append(out, payout{userID: user, amount: amount, betType: betType[user]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].userID < out[j].userID })
	return out
}

func (e *Engine) multiplier(pot int) float64 {
	if pot < len(e.game.Multipliers) && e.game.Multipliers[pot] > 0 {
		return e.game.Multipliers[pot]
	}
	return defaultMultiplier
}

// pay credits one winner and only then tells them they won.
func (e *Engine) pay(ctx context.Context, pot int, p payout) {
	notice := WinnerNotice{
		UserID:          p.userID,
		WinningAmount:   p.amount,
		BetType:         p.betType,
		WinningPotIndex: pot,
	}
	sess, err := e.sessions.Lookup(ctx, p.userID)
	if err != nil {
		utils.Log.Error("Winner has no session, payout skipped", "user", p.userID, "amount", p.amount, "err", err)
		return
	}
	if _, err := e.wallet.Credit(ctx, wallet.Account{Tenant: sess.Tenant, Token: sess.Token}, p.amount); err != nil {
		utils.Log.Warn("Credit failed", "user", p.userID, "amount", p.amount, "err", err)
		notice.Message = "payout failed: " + wallet.Cause(err)
		e.sendTo(p.userID, EventWinnerNotice, notice)
		return
	}
	notice.Success = true
	notice.Message = "you won"
	e.sendTo(p.userID, EventWinnerNotice, notice)
}

// reconcile compares the in-memory stakes with the persisted ones. The
// ledger stays authoritative; a mismatch is only reported.
func (e *Engine) reconcile(ctx context.Context, roundID string, pot int, byUser map[string]int64) {
	stored, err := e.bets.SumByUser(ctx, roundID, pot)
	if err != nil {
		utils.Log.Warn("Load persisted bets failed", "round", roundID, "err", err)
		return
	}
	for user, amount := range byUser {
		if stored[user] != amount {
			utils.Log.Warn("Persisted bets disagree with ledger",
				"round", roundID, "user", user, "ledger", amount, "stored", stored[user])
		}
	}
	for user, amount := range stored {
		if _, ok := byUser[user]; !ok {
			utils.Log.Warn("Persisted bet missing from ledger", "round", roundID, "user", user, "stored", amount)
		}
	}
}

// padWinners tops the list up to MinWinners with decoys not already listed.
// Decoy amounts fall between the smallest and largest pot of the round.
// Callers hold settleMu.
func (e *Engine) padWinners(winners []Winner, totals [table.PotCount]int64) []Winner {
	if len(winners) >= e.game.MinWinners {
		return winners
	}
	lo, hi := totals[0], totals[0]
	for _, t := range totals[1:] {
		lo, hi = min(lo, t), max(hi, t)
	}
	taken := make(map[string]bool, len(winners))
	for _, w := range winners {
		taken[w.UserID] = true
	}
	for _, i := range e.rnd.Perm(len(Decoys)) {
		if len(winners) >= e.game.MinWinners {
			break
		}
		d := Decoys[i]
		if taken[d.UserID] {
			continue
		}
		d.Amount = between(e.rnd, lo, hi)
		winners = append(winners, d)
	}
	return winners
}

// between draws from [lo, hi], 0 <= lo <= hi.
func between(rnd *rand.Rand, lo, hi int64) int64 {
	if span := hi - lo; span < math.MaxInt64 {
		return lo + rnd.Int63n(span+1)
	}
	// 区间覆盖整个 int64，span+1 会溢出
	return rnd.Int63()
}

// loserCards hands the two losing hands to the other pots in index order.
func loserCards(winner int, hands [2][]table.Card) map[string][]table.Card {
	out := make(map[string][]table.Card, 2)
	i := 0
	for pot := 0; pot < table.PotCount; pot++ {
		if pot == winner {
			continue
		}
		out[strconv.Itoa(pot)] = hands[i]
		i++
	}
	return out
}

// History returns the trailing winning categories, oldest first.
func (e *Engine) History() []fairness.Category {
	e.settleMu.Lock()
	defer e.settleMu.Unlock()
	return e.history.Entries()
}
