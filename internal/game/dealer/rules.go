package dealer

import (
	"sort"

	"TriPot/internal/game/table"
)

// RankValue is the comparison value of a card: numerals at face value,
// J=11 Q=12 K=13 A=14.
func RankValue(c table.Card) int {
	return c.Rank
}

// IsSequence reports whether three cards form a straight. A-2-3 counts.
func IsSequence(cards []table.Card) bool {
	if len(cards) != 3 {
		return false
	}
	v := []int{RankValue(cards[0]), RankValue(cards[1]), RankValue(cards[2])}
	sort.Ints(v)
	if v[0]+1 == v[1] && v[1]+1 == v[2] {
		return true
	}
	return v[0] == 2 && v[1] == 3 && v[2] == table.Ace
}

func IsFlush(cards []table.Card) bool {
	if len(cards) != 3 {
		return false
	}
	return cards[0].Suit == cards[1].Suit && cards[1].Suit == cards[2].Suit
}

func distinctRanks(cards []table.Card) bool {
	seen := make(map[int]bool, len(cards))
	for _, c := range cards {
		if seen[c.Rank] {
			return false
		}
		seen[c.Rank] = true
	}
	return true
}

// IsPair: exactly two cards share a rank.
func IsPair(cards []table.Card) bool {
	if len(cards) != 3 {
		return false
	}
	counts := make(map[int]int, 3)
	for _, c := range cards {
		counts[c.Rank]++
	}
	return len(counts) == 2
}

// IsHighCard: three distinct ranks, no straight, no flush.
func IsHighCard(cards []table.Card) bool {
	return len(cards) == 3 && distinctRanks(cards) && !IsSequence(cards) && !IsFlush(cards)
}
