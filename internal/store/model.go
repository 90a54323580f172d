package store

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("store: not found")

// Session is the persisted state of one connected player, keyed by user id.
// Token and Tenant are opaque and only forwarded to the wallet service.
type Session struct {
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	Avatar      string    `json:"avatar"`
	Token       string    `json:"token"`
	Tenant      string    `json:"tenant"`
	TableID     string    `json:"tableId"`
	ConnID      string    `json:"connId"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// BetRecord is a persisted bet contribution.
type BetRecord struct {
	RoundID       string
	GameID        string
	TableID       string
	UserID        string
	Pot           int
	Amount        int64
	BetType       int
	TransactionID string
	CreatedAt     time.Time
}
