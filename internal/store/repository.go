package store

import "context"

// SessionRepo persists sessions. Upsert overwrites any previous session of the
// same user.
type SessionRepo interface {
	UpsertSession(ctx context.Context, s Session) error
	// FindSession returns ErrNotFound when the user has no session.
	FindSession(ctx context.Context, userID string) (*Session, error)
	DeleteSession(ctx context.Context, userID string) error
}

// BetRepo persists the primary game's bet contributions.
type BetRepo interface {
	CreateBet(ctx context.Context, b BetRecord) error
	// SumByUser groups one round's bets on pot by user.
	SumByUser(ctx context.Context, roundID string, pot int) (map[string]int64, error)
	// DeleteRound removes every row of the round and reports how many went.
	DeleteRound(ctx context.Context, roundID string) (int64, error)
}
