package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore serves sessions and bets from the migrated schema in
// internal/storage/migrations.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) UpsertSession(ctx context.Context, s Session) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO sessions (user_id, name, avatar, token, tenant, table_id, connected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name,
			avatar = EXCLUDED.avatar,
			token = EXCLUDED.token,
			tenant = EXCLUDED.tenant,
			table_id = EXCLUDED.table_id,
			connected_at = EXCLUDED.connected_at`,
		s.UserID, s.Name, s.Avatar, s.Token, s.Tenant, s.TableID, s.ConnectedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", s.UserID, err)
	}
	return nil
}

func (p *PostgresStore) FindSession(ctx context.Context, userID string) (*Session, error) {
	var s Session
	err := p.db.QueryRowContext(ctx, `
		SELECT user_id, name, avatar, token, tenant, table_id, connected_at
		FROM sessions WHERE user_id = $1`, userID,
	).Scan(&s.UserID, &s.Name, &s.Avatar, &s.Token, &s.Tenant, &s.TableID, &s.ConnectedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find session %s: %w", userID, err)
	}
	return &s, nil
}

func (p *PostgresStore) DeleteSession(ctx context.Context, userID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}

func (p *PostgresStore) CreateBet(ctx context.Context, b BetRecord) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO bet_contributions
			(round_id, game_id, table_id, user_id, pot_index, amount, bet_type, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		b.RoundID, b.GameID, b.TableID, b.UserID, b.Pot, b.Amount, b.BetType, b.TransactionID, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create bet %s: %w", b.TransactionID, err)
	}
	return nil
}

func (p *PostgresStore) SumByUser(ctx context.Context, roundID string, pot int) (map[string]int64, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT user_id, SUM(amount)
		FROM bet_contributions
		WHERE round_id = $1 AND pot_index = $2
		GROUP BY user_id`, roundID, pot,
	)
	if err != nil {
		return nil, fmt.Errorf("sum bets: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var user string
		var total int64
		if err := rows.Scan(&user, &total); err != nil {
			return nil, err
		}
		out[user] = total
	}
	return out, rows.Err()
}

func (p *PostgresStore) DeleteRound(ctx context.Context, roundID string) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM bet_contributions WHERE round_id = $1`, roundID)
	if err != nil {
		return 0, fmt.Errorf("delete round %s: %w", roundID, err)
	}
	return res.RowsAffected()
}
