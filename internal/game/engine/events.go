package engine

import (
	"strconv"

	"TriPot/internal/game/table"
)

// Event names pushed to clients.
const (
	EventRoundTimer       = "roundTimer"
	EventPotTotals        = "potTotals"
	EventBetResponse      = "betResponse"
	EventBatchBetResponse = "batchBetResponse"
	EventRoundResult      = "roundResultAnnounced"
	EventWinnerNotice     = "winnerNotice"
)

type Phase string

const (
	Betting        Phase = "Betting"
	WinCalculation Phase = "WinCalculation"
	ResultAnnounce Phase = "ResultAnnounce"
	NewGameStart   Phase = "NewGameStart"
)

var phaseOrder = []Phase{Betting, WinCalculation, ResultAnnounce, NewGameStart}

type TimerTick struct {
	Phase     Phase `json:"phase"`
	Remaining int   `json:"remaining"`
}

type PhaseComplete struct {
	Phase   Phase  `json:"phase"`
	Message string `json:"message"`
}

// Ack is the private answer to a single bet.
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type BatchAck struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

type BetData struct {
	TransactionID string `json:"transactionId"`
	RoundID       string `json:"roundId"`
	UserID        string `json:"userId"`
	PotIndex      int    `json:"potIndex"`
	Amount        int64  `json:"amount"`
	BetType       int    `json:"betType"`
	CreatedAt     int64  `json:"createdAt"`
}

type Winner struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
	Avatar string `json:"avatar"`
}

// RoundResult is the public announcement of a settled round.
type RoundResult struct {
	RoundID         string                  `json:"roundId"`
	Winners         []Winner                `json:"winners"`
	WinningPot      string                  `json:"winningPot"`
	WinningPotIndex int                     `json:"winningPotIndex"`
	WinningCards    []table.Card            `json:"winningCards"`
	LoserCards      map[string][]table.Card `json:"loserCards"`
	RankText        string                  `json:"winningPotRankText"`
}

type WinnerNotice struct {
	UserID          string `json:"userId"`
	WinningAmount   int64  `json:"winningAmount"`
	BetType         int    `json:"betType"`
	WinningPotIndex int    `json:"winningPotIndex"`
	Success         bool   `json:"success"`
	Message         string `json:"message,omitempty"`
}

func PotLabel(pot int) string {
	return "Pot " + strconv.Itoa(pot+1)
}

func potTotals(t [table.PotCount]int64) map[string]int64 {
	out := make(map[string]int64, table.PotCount)
	for i, v := range t {
		out[strconv.Itoa(i)] = v
	}
	return out
}
