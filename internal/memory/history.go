// Package memory holds the volatile short-term conversation log backing
// agent context. Entries live in Redis under a per-session key with a coarse
// TTL; durable gist lives in memory_summaries, not here.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "agent:history:"

type Entry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryStore is the log as the engine consumes it. Append reports the new
// length so callers can detect a threshold crossing without a second trip.
type HistoryStore interface {
	Append(ctx context.Context, sessionId string, entries ...Entry) (int64, error)
	History(ctx context.Context, sessionId string) ([]Entry, error)
	TrimOldest(ctx context.Context, sessionId string, n int) error
	Clear(ctx context.Context, sessionId string) error
}

type RedisHistory struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisHistory(addr string, ttl time.Duration) *RedisHistory {
	return &RedisHistory{
		rdb: redis.NewClient(&redis.Options{
			Addr:        addr,
			DialTimeout: 10 * time.Second,
		}),
		ttl: ttl,
	}
}

func (h *RedisHistory) Close() error {
	return h.rdb.Close()
}

func (h *RedisHistory) Ping(ctx context.Context) error {
	return h.rdb.Ping(ctx).Err()
}

func key(sessionId string) string {
	return keyPrefix + sessionId
}

// Append pushes entries onto the tail of the session log and refreshes the
// TTL. Returns the new length of the log.
func (h *RedisHistory) Append(ctx context.Context, sessionId string, entries ...Entry) (int64, error) {
	values := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return 0, fmt.Errorf("marshal history entry: %w", err)
		}
		values = append(values, raw)
	}

	pipe := h.rdb.TxPipeline()
	pushCmd := pipe.RPush(ctx, key(sessionId), values...)
	pipe.Expire(ctx, key(sessionId), h.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("append history: %w", err)
	}

	return pushCmd.Val(), nil
}

func (h *RedisHistory) History(ctx context.Context, sessionId string) ([]Entry, error) {
	raw, err := h.rdb.LRange(ctx, key(sessionId), 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("read history: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("unmarshal history entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// TrimOldest drops the n oldest entries, keeping the tail.
func (h *RedisHistory) TrimOldest(ctx context.Context, sessionId string, n int) error {
	if n <= 0 {
		return nil
	}

	if err := h.rdb.LTrim(ctx, key(sessionId), int64(n), -1).Err(); err != nil {
		return fmt.Errorf("trim history: %w", err)
	}

	return nil
}

func (h *RedisHistory) Clear(ctx context.Context, sessionId string) error {
	if err := h.rdb.Del(ctx, key(sessionId)).Err(); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}

	return nil
}
