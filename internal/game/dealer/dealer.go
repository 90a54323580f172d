package dealer

import (
	"errors"
	"math/rand"

	"TriPot/internal/game/table"
)

const (
	handSize = 3
	// 高牌一般几次内就能抽到
	maxDrawAttempts = 1000
	PairRankText    = "Pair"
)

var ErrDeckExhausted = errors.New("dealer: not enough cards left for a valid hand")

// RoundResult is what the table shows after a round: the pair hand goes to
// the winning pot, the two high-card hands to the losing pots.
type RoundResult struct {
	WinnerHand []table.Card    `json:"winningCards"`
	LoserHands [2][]table.Card `json:"loserCards"`
	RankText   string          `json:"winningPotRankText"`
}

// Dealer shuffles and deals; it is not safe for concurrent use.
type Dealer struct {
	deck []table.Card
	rnd  *rand.Rand
}

func NewDealer(seed int64) *Dealer {
	return &Dealer{
		deck: make([]table.Card, 0, 52),
		rnd:  rand.New(rand.NewSource(seed)),
	}
}

// BuildDeck returns the 52 rank x suit combinations in order.
func BuildDeck() []table.Card {
	deck := make([]table.Card, 0, 52)
	for s := 0; s < 4; s++ {
		for r := 2; r <= table.Ace; r++ {
			deck = append(deck, table.Card{Suit: s, Rank: r})
		}
	}
	return deck
}

// NewDeck replaces the dealer's deck with a freshly shuffled one.
func (d *Dealer) NewDeck() {
	d.deck = BuildDeck()
	d.Shuffle(d.deck)
}

// Shuffle 原地洗牌（Fisher-Yates）
func (d *Dealer) Shuffle(cards []table.Card) {
	d.rnd.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
}

func (d *Dealer) Remaining() int {
	return len(d.deck)
}

// CreatePairHand takes a pair plus a kicker of another rank out of the deck.
// The deck is scanned in shuffled order, so the chosen pair is random.
func (d *Dealer) CreatePairHand() ([]table.Card, error) {
	byRank := make(map[int][]int)
	order := make([]int, 0, 13)
	for i, c := range d.deck {
		if _, ok := byRank[c.Rank]; !ok {
			order = append(order, c.Rank)
		}
		byRank[c.Rank] = append(byRank[c.Rank], i)
	}

	for _, rank := range order {
		idx := byRank[rank]
		if len(idx) < 2 {
			continue
		}
		pair := []table.Card{d.deck[idx[0]], d.deck[idx[1]]}
		for k, kicker := range d.deck {
			if kicker.Rank == rank {
				continue
			}
			hand := append(append([]table.Card{}, pair...), kicker)
			if IsSequence(hand) || IsFlush(hand) {
				continue
			}
			d.remove(idx[0], idx[1], k)
			return hand, nil
		}
	}
	return nil, ErrDeckExhausted
}

// CreateHighCardHand draws three cards from the top until they form a plain
// high-card hand. Rejected draws go back into the deck, which is reshuffled.
func (d *Dealer) CreateHighCardHand() ([]table.Card, error) {
	if len(d.deck) < handSize {
		return nil, ErrDeckExhausted
	}
	for attempt := 0; attempt < maxDrawAttempts; attempt++ {
		hand := make([]table.Card, handSize)
		copy(hand, d.deck[:handSize])
		if IsHighCard(hand) {
			d.deck = d.deck[handSize:]
			return hand, nil
		}
		d.Shuffle(d.deck)
	}
	return nil, ErrDeckExhausted
}

// GenerateRoundResult deals one pair hand and two high-card hands from a
// single shuffled deck; no card appears twice.
func (d *Dealer) GenerateRoundResult() (RoundResult, error) {
	d.NewDeck()

	winner, err := d.CreatePairHand()
	if err != nil {
		return RoundResult{}, err
	}
	var res RoundResult
	res.WinnerHand = winner
	res.RankText = PairRankText
	for i := range res.LoserHands {
		hand, err := d.CreateHighCardHand()
		if err != nil {
			return RoundResult{}, err
		}
		res.LoserHands[i] = hand
	}
	return res, nil
}

// remove 从牌堆中移除指定位置的牌
func (d *Dealer) remove(positions ...int) {
	drop := make(map[int]bool, len(positions))
	for _, p := range positions {
		drop[p] = true
	}
	kept := d.deck[:0]
	for i, c := range d.deck {
		if !drop[i] {
			kept = append(kept, c)
		}
	}
	d.deck = kept
}
