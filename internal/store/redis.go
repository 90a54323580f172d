package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisSessions struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisSessionRepo keeps sessions as JSON under sess:{userId}. A zero ttl
// keeps them until deleted.
func NewRedisSessionRepo(rdb *redis.Client, ttl time.Duration) SessionRepo {
	return &redisSessions{rdb: rdb, ttl: ttl}
}

func sessionKey(userID string) string {
	return fmt.Sprintf("sess:%s", userID)
}

func (r *redisSessions) UpsertSession(ctx context.Context, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, sessionKey(s.UserID), data, r.ttl).Err()
}

func (r *redisSessions) FindSession(ctx context.Context, userID string) (*Session, error) {
	raw, err := r.rdb.Get(ctx, sessionKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", userID, err)
	}
	return &s, nil
}

func (r *redisSessions) DeleteSession(ctx context.Context, userID string) error {
	return r.rdb.Del(ctx, sessionKey(userID)).Err()
}
