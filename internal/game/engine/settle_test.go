package engine

import (
	"context"
	"math"
	"strconv"
	"testing"

	"TriPot/internal/game/dealer"
	"TriPot/internal/game/fairness"
	"TriPot/internal/game/table"
	"TriPot/internal/store"
	"TriPot/internal/wallet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// forcePot primes the history so only the category of pot can win.
func forcePot(t *testing.T, f *fixture, totals [3]int64, pot int) {
	t.Helper()
	cats, err := fairness.Categorize(map[int]int64{0: totals[0], 1: totals[1], 2: totals[2]})
	require.NoError(t, err)

	quota := f.eng.selector.MaxAllowed(10)
	var initial []fairness.Category
	for _, c := range fairness.Categories {
		if cats[c] == pot {
			continue
		}
		for i := 0; i < quota[c]; i++ {
			initial = append(initial, c)
		}
	}
	f.eng.history = fairness.NewHistory(10, initial...)
}

func bet(t *testing.T, f *fixture, user string, pot int, amount int64) {
	t.Helper()
	_, err := f.eng.PlaceBet(context.Background(), user, BetRequest{Amount: amount, PotIndex: pot, BetType: 7})
	require.NoError(t, err)
}

func TestSettlePadsWinnersWithDecoys(t *testing.T) {
	f := newFixture(t, "u1", "u2", "u3")
	bet(t, f, "u1", 1, 100)
	bet(t, f, "u2", 1, 40)
	bet(t, f, "u3", 0, 500)
	bet(t, f, "u3", 2, 60)
	forcePot(t, f, [3]int64{500, 140, 60}, 1)

	res, err := f.eng.Settle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.WinningPotIndex)
	assert.Equal(t, "Pot 2", res.WinningPot)

	require.Len(t, res.Winners, 3)
	assert.Equal(t, Winner{UserID: "u1", Name: "name-u1", Avatar: "img-u1", Amount: 290}, res.Winners[0])
	assert.Equal(t, Winner{UserID: "u2", Name: "name-u2", Avatar: "img-u2", Amount: 116}, res.Winners[1])

	decoy := res.Winners[2]
	assert.NotEqual(t, "u1", decoy.UserID)
	assert.NotEqual(t, "u2", decoy.UserID)
	assert.Contains(t, Decoys, Winner{UserID: decoy.UserID, Name: decoy.Name, Avatar: decoy.Avatar})
	assert.GreaterOrEqual(t, decoy.Amount, int64(60))
	assert.LessOrEqual(t, decoy.Amount, int64(500))

	// decoys are never paid
	f.wallet.mu.Lock()
	assert.Len(t, f.wallet.credits, 2)
	f.wallet.mu.Unlock()
	assert.Equal(t, int64(290), f.wallet.credited("u1"))
	assert.Equal(t, int64(116), f.wallet.credited("u2"))
	assert.Equal(t, int64(0), f.wallet.credited("u3"))

	published := f.hub.public(EventRoundResult)
	require.Len(t, published, 1)
	assert.Equal(t, res, published[0].Data)
}

func TestSettleResetsPotsAndRows(t *testing.T) {
	f := newFixture(t, "u1", "u2")
	bet(t, f, "u1", 0, 100)
	bet(t, f, "u2", 2, 200)
	before := f.eng.ledger.RoundID()
	require.Len(t, f.bets.Bets(), 2)

	res, err := f.eng.Settle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, res.RoundID)

	assert.Equal(t, [3]int64{}, f.eng.ledger.Totals())
	assert.NotEqual(t, before, f.eng.ledger.RoundID())
	assert.Empty(t, f.eng.ledger.Snapshot().Contributions)
	assert.Empty(t, f.bets.Bets())
	assert.Len(t, f.eng.History(), 1)
}

func TestSettleOnlyClearsItsOwnRound(t *testing.T) {
	f := newFixture(t, "u1")
	ctx := context.Background()
	bet(t, f, "u1", 0, 100)
	require.NoError(t, f.bets.CreateBet(ctx, store.BetRecord{RoundID: "other-round", UserID: "u9", Amount: 5}))

	_, err := f.eng.Settle(ctx)
	require.NoError(t, err)
	rows := f.bets.Bets()
	require.Len(t, rows, 1)
	assert.Equal(t, "other-round", rows[0].RoundID)
}

func TestWinnerNoticeOnlyAfterCredit(t *testing.T) {
	f := newFixture(t, "u1", "u2")
	bet(t, f, "u1", 0, 100)
	bet(t, f, "u2", 0, 50)
	f.wallet.failFor("u2", wallet.ErrUnavailable)
	forcePot(t, f, [3]int64{150, 0, 0}, 0)

	_, err := f.eng.Settle(context.Background())
	require.NoError(t, err)

	ok := f.hub.private("u1", EventWinnerNotice)
	require.Len(t, ok, 1)
	assert.Equal(t, WinnerNotice{
		UserID:          "u1",
		WinningAmount:   290,
		BetType:         7,
		WinningPotIndex: 0,
		Success:         true,
		Message:         "you won",
	}, ok[0].Data)

	failed := f.hub.private("u2", EventWinnerNotice)
	require.Len(t, failed, 1)
	notice := failed[0].Data.(WinnerNotice)
	assert.False(t, notice.Success)
	assert.Equal(t, "payout failed: unavailable", notice.Message)
	assert.Equal(t, int64(145), notice.WinningAmount)
}

func TestWinnerWithoutSessionIsSkipped(t *testing.T) {
	f := newFixture(t, "u1")
	bet(t, f, "u1", 2, 100)
	delete(f.eng.sessions.(fakeSessions), "u1")
	forcePot(t, f, [3]int64{0, 0, 100}, 2)

	res, err := f.eng.Settle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", res.Winners[0].UserID)
	assert.Empty(t, res.Winners[0].Name)
	assert.Empty(t, f.hub.private("u1", EventWinnerNotice))
	assert.Equal(t, int64(0), f.wallet.credited("u1"))
}

func TestSettleEmptyRound(t *testing.T) {
	f := newFixture(t)
	res, err := f.eng.Settle(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Winners, 3)
	seen := map[string]bool{}
	for _, w := range res.Winners {
		assert.Equal(t, int64(0), w.Amount)
		assert.False(t, seen[w.UserID])
		seen[w.UserID] = true
	}
}

func TestSettleDealsValidDisjointHands(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 50; i++ {
		res, err := f.eng.Settle(context.Background())
		require.NoError(t, err)

		require.Len(t, res.WinningCards, 3)
		assert.True(t, dealer.IsPair(res.WinningCards))
		assert.Equal(t, dealer.PairRankText, res.RankText)
		require.Len(t, res.LoserCards, 2)
		assert.NotContains(t, res.LoserCards, strconv.Itoa(res.WinningPotIndex))

		seen := map[table.Card]bool{}
		for _, c := range res.WinningCards {
			seen[c] = true
		}
		for _, hand := range res.LoserCards {
			assert.True(t, dealer.IsHighCard(hand))
			for _, c := range hand {
				assert.False(t, seen[c], "card %s dealt twice", c)
				seen[c] = true
			}
		}
	}
}

func TestPadWinnersFullInt64Range(t *testing.T) {
	f := newFixture(t)
	var got []Winner
	require.NotPanics(t, func() {
		got = f.eng.padWinners(nil, [table.PotCount]int64{0, math.MaxInt64, 7})
	})
	require.Len(t, got, 3)
	for _, w := range got {
		assert.GreaterOrEqual(t, w.Amount, int64(0))
	}

	got = f.eng.padWinners(nil, [table.PotCount]int64{9, 9, 9})
	for _, w := range got {
		assert.Equal(t, int64(9), w.Amount)
	}
}

func TestPayoutRounding(t *testing.T) {
	f := newFixture(t)
	f.eng.game.Multipliers = []float64{2.9, 1.55, 0}
	snap := table.Snapshot{Contributions: []table.Contribution{
		{UserID: "a", Pot: 1, Amount: 3, BetType: 2},
		{UserID: "b", Pot: 1, Amount: 1},
	}}
	got := f.eng.payouts(snap, 1, snap.TotalsByUser(1))
	assert.Equal(t, []payout{{userID: "a", amount: 5, betType: 2}, {userID: "b", amount: 2}}, got)

	// unset multiplier falls back to the nominal one
	assert.Equal(t, 2.9, f.eng.multiplier(2))
	assert.Equal(t, 2.9, f.eng.multiplier(5))
}

func TestLoserCardsKeyedByLosingPots(t *testing.T) {
	a := []table.Card{{Rank: 2}}
	b := []table.Card{{Rank: 3}}
	assert.Equal(t, map[string][]table.Card{"1": a, "2": b}, loserCards(0, [2][]table.Card{a, b}))
	assert.Equal(t, map[string][]table.Card{"0": a, "2": b}, loserCards(1, [2][]table.Card{a, b}))
	assert.Equal(t, map[string][]table.Card{"0": a, "1": b}, loserCards(2, [2][]table.Card{a, b}))
}
