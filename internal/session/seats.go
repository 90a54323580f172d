package session

import "context"

// SeatRepo tracks which table each user sits at. A user sits at most at one
// table; seating elsewhere moves them.
type SeatRepo interface {
	// Seat puts the user at tableID and returns the table they left, if any.
	Seat(ctx context.Context, tableID, userID string) (previous string, err error)
	// Unseat removes the user and returns the table they left ("" if none).
	Unseat(ctx context.Context, userID string) (string, error)
	Players(ctx context.Context, tableID string) ([]string, error)
	Count(ctx context.Context, tableID string) (int64, error)
}
