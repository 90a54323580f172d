package session

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

type redisSeats struct {
	rdb *redis.Client
}

func NewRedisSeats(rdb *redis.Client) SeatRepo {
	return &redisSeats{rdb: rdb}
}

const seatsPrefix = "tbl:seats:"

// key layout:
//
//	set: tbl:seats:{tableID}   -> Set(userID,...)
//	kv : tbl:player:{userID}   -> tableID (to find the set on leave)
func seatsKey(tableID string) string {
	return seatsPrefix + tableID
}
func playerKey(userID string) string {
	return fmt.Sprintf("tbl:player:%s", userID)
}

// 换桌和离桌都在一个脚本里完成，并发 join 不会让用户同时出现在两个桌
//
// KEYS[1] = playerKey, KEYS[2] = seatsKey of the new table
// ARGV[1] = userID, ARGV[2] = tableID, ARGV[3] = seats key prefix
var seatScript = redis.NewScript(`
local prev = redis.call("GET", KEYS[1])
if prev and prev ~= ARGV[2] then
    local old = ARGV[3] .. prev
    redis.call("SREM", old, ARGV[1])
    if redis.call("SCARD", old) == 0 then
        redis.call("DEL", old)
    end
end
redis.call("SADD", KEYS[2], ARGV[1])
redis.call("SET", KEYS[1], ARGV[2])
if prev and prev ~= ARGV[2] then
    return prev
end
return ""
`)

// KEYS[1] = playerKey, ARGV[1] = userID, ARGV[2] = seats key prefix
var unseatScript = redis.NewScript(`
local prev = redis.call("GET", KEYS[1])
if not prev then
    return ""
end
redis.call("DEL", KEYS[1])
local old = ARGV[2] .. prev
redis.call("SREM", old, ARGV[1])
if redis.call("SCARD", old) == 0 then
    redis.call("DEL", old)
end
return prev
`)

// Seat moves the user to tableID and returns the table they left, if any.
func (r *redisSeats) Seat(ctx context.Context, tableID, userID string) (string, error) {
	keys := []string{playerKey(userID), seatsKey(tableID)}
	return seatScript.Run(ctx, r.rdb, keys, userID, tableID, seatsPrefix).Text()
}

func (r *redisSeats) Unseat(ctx context.Context, userID string) (string, error) {
	return unseatScript.Run(ctx, r.rdb, []string{playerKey(userID)}, userID, seatsPrefix).Text()
}

func (r *redisSeats) Players(ctx context.Context, tableID string) ([]string, error) {
	out, err := r.rdb.SMembers(ctx, seatsKey(tableID)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (r *redisSeats) Count(ctx context.Context, tableID string) (int64, error) {
	return r.rdb.SCard(ctx, seatsKey(tableID)).Result()
}
